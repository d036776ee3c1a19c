// Package llmgateway is the LLM Gateway (C4): a uniform call interface
// across three quality tiers (fast/balanced/reasoning), multi-provider
// dispatch via a hooks-composition pattern, rolling quota accounting,
// and tolerant response parsing.
//
// The provider composition is grounded on the teacher's mcp package
// (ArchitectClient/LocalAIClient/LocalFuncClient embedding a shared
// *Client and swapping its `hooks` field for provider-specific
// URL-building, auth, and response-shape handling).
package llmgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/realmrhigh/hightrade/apperr"
)

// Tier is one of the three uniform call tiers SPEC_FULL.md §4.4 defines.
type Tier string

const (
	TierFast      Tier = "fast"
	TierBalanced  Tier = "balanced"
	TierReasoning Tier = "reasoning"
)

// Request is a tier-agnostic call: a system prompt, a user prompt, and
// free-form metadata a provider's hooks may consult (mirrors the
// teacher's Request.Metadata used by ArchitectClient to recover
// symbol/timeframe/question fields).
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Metadata     map[string]any
}

// Response is the tier-agnostic result: raw text plus the parsed
// reasoning trace, once ParseResponse has run.
type Response struct {
	RawText   string
	Reasoning string
}

// hooks is the seam each provider overrides, exactly mirroring the
// teacher's dynamic-dispatch pattern: a provider embeds *client and
// reassigns client.hooks to itself so the shared call path reaches
// provider-specific behavior through an interface rather than a type
// switch.
type hooks interface {
	buildURL(c *client) string
	buildRequestBody(c *client, req Request) map[string]any
	setAuthHeader(c *client, h http.Header)
	parseBody(c *client, body []byte) (string, error)
}

// client is the shared provider scaffold: HTTP transport, identity
// (provider/model/baseURL/apiKey), and a hooks seam for dispatch.
type client struct {
	httpClient *http.Client
	provider   string
	model      string
	baseURL    string
	apiKey     string
	hooks      hooks
}

type Option func(*client)

func WithProvider(p string) Option  { return func(c *client) { c.provider = p } }
func WithModel(m string) Option     { return func(c *client) { c.model = m } }
func WithBaseURL(u string) Option   { return func(c *client) { c.baseURL = u } }
func WithAPIKey(k string) Option    { return func(c *client) { c.apiKey = k } }

func newClient(opts ...Option) *client {
	c := &client{httpClient: &http.Client{Timeout: 60 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call runs the shared request/response path, delegating every
// provider-specific decision to c.hooks.
func (c *client) Call(ctx context.Context, req Request) (string, error) {
	if c.provider == ProviderLocalFunc {
		return "", nil
	}
	url := c.hooks.buildURL(c)
	bodyMap := c.hooks.buildRequestBody(c, req)

	payload, err := json.Marshal(bodyMap)
	if err != nil {
		return "", apperr.Transient("llmgateway.Call.marshal", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", apperr.Transient("llmgateway.Call.newRequest", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.hooks.setAuthHeader(c, httpReq.Header)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", apperr.Transient("llmgateway.Call", err)
	}
	defer resp.Body.Close()

	var respBody bytes.Buffer
	if _, err := respBody.ReadFrom(resp.Body); err != nil {
		return "", apperr.Transient("llmgateway.Call.read", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", apperr.QuotaExhausted("llmgateway.Call", fmt.Errorf("provider %s rate limited", c.provider))
	}
	if resp.StatusCode >= 400 {
		return "", apperr.Transient("llmgateway.Call", fmt.Errorf("provider %s status %d: %s", c.provider, resp.StatusCode, respBody.String()))
	}

	return c.hooks.parseBody(c, respBody.Bytes())
}

// --- OpenAI-compatible default hooks, shared by Architect/LocalAI ---

type openAICompatHooks struct{}

func (openAICompatHooks) buildURL(c *client) string {
	return c.baseURL + "/chat/completions"
}

func (openAICompatHooks) buildRequestBody(c *client, req Request) map[string]any {
	return map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": req.SystemPrompt},
			{"role": "user", "content": req.UserPrompt},
		},
	}
}

func (openAICompatHooks) setAuthHeader(c *client, h http.Header) {
	if c.apiKey != "" {
		h.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (openAICompatHooks) parseBody(c *client, body []byte) (string, error) {
	var payload struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", apperr.ParseFailure("llmgateway.parseBody", err)
	}
	if len(payload.Choices) == 0 {
		return "", apperr.ParseFailure("llmgateway.parseBody", fmt.Errorf("no choices in response"))
	}
	return payload.Choices[0].Message.Content, nil
}

// --- Architect provider: proprietary decision endpoint, OpenAI-compatible fallback ---

const (
	ProviderArchitect = "architect"
	ProviderLocalAI   = "localai"
	ProviderLocalFunc = "localfunc" // never makes HTTP calls; intercepted upstream
)

type architectHooks struct{ openAICompatHooks }

func (architectHooks) buildURL(c *client) string {
	return c.baseURL + "/decision"
}

func (architectHooks) buildRequestBody(c *client, req Request) map[string]any {
	body := map[string]any{
		"symbol":         "UNKNOWN",
		"timeframe":      "1m",
		"market_context": map[string]any{"system_prompt": req.SystemPrompt, "user_prompt": req.UserPrompt},
		"question":       req.UserPrompt,
	}
	if req.Metadata != nil {
		if symbol, ok := req.Metadata["symbol"].(string); ok {
			body["symbol"] = symbol
		}
		if timeframe, ok := req.Metadata["timeframe"].(string); ok {
			body["timeframe"] = timeframe
		}
	}
	return body
}

func (architectHooks) parseBody(c *client, body []byte) (string, error) {
	var result struct {
		Decision   string  `json:"decision"`
		Confidence float64 `json:"confidence"`
		Reason     string  `json:"reason"`
	}
	if err := json.Unmarshal(body, &result); err != nil || result.Reason == "" {
		return openAICompatHooks{}.parseBody(c, body)
	}
	return fmt.Sprintf("<reasoning>\n%s\n</reasoning>\n<decision>\n{\"confidence\":%d,\"decision\":%q}\n</decision>",
		result.Reason, int(result.Confidence*100), result.Decision), nil
}

// NewArchitectClient builds a provider client hitting a locally hosted
// Architect-style decision service.
func NewArchitectClient(baseURL, apiKey, model string) *client {
	c := newClient(WithProvider(ProviderArchitect), WithBaseURL(baseURL), WithAPIKey(apiKey), WithModel(model))
	c.hooks = architectHooks{}
	return c
}

// NewLocalAIClient builds a provider client against a local OpenAI-compatible
// server (e.g. llama.cpp/LocalAI/vLLM).
func NewLocalAIClient(baseURL, apiKey, model string) *client {
	c := newClient(WithProvider(ProviderLocalAI), WithBaseURL(baseURL), WithAPIKey(apiKey), WithModel(model))
	c.hooks = openAICompatHooks{}
	return c
}

// localFuncHooks never performs an HTTP call; client.Call short-circuits
// for this provider with an empty reply before any hook runs, matching the teacher's
// comment that the decision flow intercepts LocalFunc before CallWithMessages.
type localFuncHooks struct{}

func (localFuncHooks) buildURL(*client) string                              { return "" }
func (localFuncHooks) buildRequestBody(*client, Request) map[string]any     { return nil }
func (localFuncHooks) setAuthHeader(*client, http.Header)                   {}
func (localFuncHooks) parseBody(*client, []byte) (string, error)            { return "", nil }

func NewLocalFuncClient(model string) *client {
	c := newClient(WithProvider(ProviderLocalFunc), WithModel(model), WithAPIKey("local-function"))
	c.hooks = localFuncHooks{}
	return c
}
