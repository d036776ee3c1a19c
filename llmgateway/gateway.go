package llmgateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/realmrhigh/hightrade/apperr"
	"github.com/realmrhigh/hightrade/metrics"
)

// QuotaStatus is the tri-state soft-quota verdict CheckQuota returns, per
// SPEC_FULL.md §4.4's rolling 24h per-model accounting.
type QuotaStatus string

const (
	QuotaOK    QuotaStatus = "ok"
	QuotaWarn  QuotaStatus = "warn"
	QuotaBlock QuotaStatus = "block"
)

// quotaWindow tracks calls to one model over a rolling 24h window.
type quotaWindow struct {
	calls     []time.Time
	softLimit int
}

func (w *quotaWindow) prune(now time.Time) {
	cutoff := now.Add(-24 * time.Hour)
	i := 0
	for i < len(w.calls) && w.calls[i].Before(cutoff) {
		i++
	}
	w.calls = w.calls[i:]
}

func (w *quotaWindow) status(now time.Time) QuotaStatus {
	w.prune(now)
	if w.softLimit <= 0 {
		return QuotaOK
	}
	n := len(w.calls)
	switch {
	case n >= w.softLimit:
		return QuotaBlock
	case n >= int(float64(w.softLimit)*0.8):
		return QuotaWarn
	default:
		return QuotaOK
	}
}

func (w *quotaWindow) record(now time.Time) {
	w.prune(now)
	w.calls = append(w.calls, now)
}

// caller is the minimal interface a tier's backing provider satisfies —
// *client from provider.go implements it.
type caller interface {
	Call(ctx context.Context, req Request) (string, error)
}

// tierBinding pairs a provider with the model name used for quota
// accounting (the provider's own c.model, kept here too since
// localFuncHooks never touches the network).
type tierBinding struct {
	provider caller
	model    string
}

// Gateway is the uniform, tier-keyed call surface: Gateway.Call(tier, req)
// dispatches to whichever provider is bound to that tier, accounting
// quota per model and parsing the response before returning it.
type Gateway struct {
	mu      sync.Mutex
	tiers   map[Tier]tierBinding
	quotas  map[string]*quotaWindow
	now     func() time.Time
}

func NewGateway() *Gateway {
	return &Gateway{
		tiers:  make(map[Tier]tierBinding),
		quotas: make(map[string]*quotaWindow),
		now:    time.Now,
	}
}

// Bind assigns a provider+model to a tier and sets that model's soft
// quota limit (0 disables quota enforcement for that model).
func (g *Gateway) Bind(tier Tier, provider caller, model string, softLimit int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tiers[tier] = tierBinding{provider: provider, model: model}
	if _, ok := g.quotas[model]; !ok {
		g.quotas[model] = &quotaWindow{softLimit: softLimit}
	}
}

// CheckQuota reports whether a tier's bound model has room for another
// call without making one.
func (g *Gateway) CheckQuota(tier Tier) QuotaStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	binding, ok := g.tiers[tier]
	if !ok {
		return QuotaBlock
	}
	w, ok := g.quotas[binding.model]
	if !ok {
		return QuotaOK
	}
	return w.status(g.now())
}

// Call dispatches req to the provider bound to tier, recording a quota
// sample and parsing the raw text into a Response. Blocks (does not
// call) when the bound model's quota is exhausted.
func (g *Gateway) Call(ctx context.Context, tier Tier, req Request) (*Response, error) {
	g.mu.Lock()
	binding, ok := g.tiers[tier]
	g.mu.Unlock()
	if !ok {
		return nil, apperr.Validation("llmgateway.Call", fmt.Errorf("tier %q has no bound provider", tier))
	}

	if g.CheckQuota(tier) == QuotaBlock {
		return nil, apperr.QuotaExhausted("llmgateway.Call", fmt.Errorf("model %q quota exhausted", binding.model))
	}

	start := time.Now()
	raw, err := binding.provider.Call(ctx, req)
	metrics.RecordLLMCall(string(tier), binding.model, time.Since(start).Milliseconds(), err != nil)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	if w, ok := g.quotas[binding.model]; ok {
		w.record(g.now())
	}
	g.mu.Unlock()

	return ParseResponse(raw), nil
}
