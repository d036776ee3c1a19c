package llmgateway

import (
	"encoding/json"
	"regexp"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"

	"github.com/realmrhigh/hightrade/apperr"
	"github.com/realmrhigh/hightrade/log"
)

var (
	reReasoningTag = regexp.MustCompile(`(?s)<reasoning>(.*?)</reasoning>`)
	reThinkTag     = regexp.MustCompile(`(?s)<think>(.*?)</think>`)
	reJSONFence    = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)```")
)

// ParseResponse splits a raw model response into its reasoning trace and
// the remaining body, mirroring the teacher's extractCoTTrace: prefer an
// explicit <reasoning> tag, then strip a <think> block, then fall back to
// everything before the first JSON-looking character.
func ParseResponse(raw string) *Response {
	resp := &Response{RawText: raw}

	if m := reReasoningTag.FindStringSubmatch(raw); m != nil {
		resp.Reasoning = strings.TrimSpace(m[1])
		return resp
	}
	if m := reThinkTag.FindStringSubmatch(raw); m != nil {
		resp.Reasoning = strings.TrimSpace(m[1])
		return resp
	}

	if idx := strings.IndexAny(raw, "[{"); idx > 0 {
		resp.Reasoning = strings.TrimSpace(raw[:idx])
		return resp
	}

	resp.Reasoning = strings.TrimSpace(raw)
	return resp
}

// ExtractJSON pulls a JSON payload out of a raw model response and
// unmarshals it into v. It tries, in order:
//  1. a fenced ```json ... ``` block,
//  2. the substring from the first '{' or '[' to the last '}' or ']',
//  3. RealAlexandreAI/json-repair on whichever candidate string it found,
//  4. the teacher's truncation-counting brace-closing loop as a last
//     resort for the one shape json-repair doesn't target: a payload cut
//     off mid-stream by a max-tokens limit, missing only trailing closers.
func ExtractJSON(raw string, v any) error {
	candidate := raw
	if m := reJSONFence.FindStringSubmatch(raw); m != nil {
		candidate = strings.TrimSpace(m[1])
	} else if start := strings.IndexAny(raw, "[{"); start >= 0 {
		end := lastJSONCloser(raw)
		if end > start {
			candidate = raw[start : end+1]
		}
	}

	if err := json.Unmarshal([]byte(candidate), v); err == nil {
		return nil
	}

	if repaired, err := jsonrepair.RepairJSON(candidate); err == nil {
		if err := json.Unmarshal([]byte(repaired), v); err == nil {
			return nil
		}
	}

	fallback := closeTruncatedBraces(candidate)
	if err := json.Unmarshal([]byte(fallback), v); err == nil {
		log.Component("llmgateway").Warn().Msg("JSON recovered via truncation-closing fallback, json-repair did not handle this shape")
		return nil
	}

	return apperr.ParseFailure("llmgateway.ExtractJSON", errUnparseable(raw))
}

func lastJSONCloser(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '}' || s[i] == ']' {
			return i
		}
	}
	return -1
}

// closeTruncatedBraces appends whatever closing brackets a response is
// missing, counting unbalanced '{'/'[' the way the teacher's fallback
// parser does when a response is cut off by a token limit rather than
// malformed mid-structure.
func closeTruncatedBraces(s string) string {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	var b strings.Builder
	b.WriteString(s)
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String()
}

func errUnparseable(raw string) error {
	n := len(raw)
	if n > 80 {
		n = 80
	}
	return &unparseableError{snippet: raw[:n]}
}

type unparseableError struct{ snippet string }

func (e *unparseableError) Error() string {
	return "could not extract JSON from model response: " + e.snippet
}
