package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/realmrhigh/hightrade/defcon"
	"github.com/realmrhigh/hightrade/llmgateway"
	"github.com/realmrhigh/hightrade/news"
)

// fakeNewsTierProvider is the minimal llmgateway "caller" implementation
// (Call(ctx, Request) (string, error)), standing in for a real HTTP-backed
// provider so callNewsTier can be exercised without a network call.
type fakeNewsTierProvider struct {
	reply string
	calls int
}

func (f *fakeNewsTierProvider) Call(ctx context.Context, req llmgateway.Request) (string, error) {
	f.calls++
	return f.reply, nil
}

const fakeAnalysisJSON = `{"coherence":"coherent","hidden_risks":"contagion to regional banks",` +
	`"recommended_action":"monitor","reasoning":"multiple corroborating wires",` +
	`"enhanced_confidence":92,"confidence_adjustment":5}`

func newFakeNewsGateway(reply string) (*llmgateway.Gateway, *fakeNewsTierProvider) {
	provider := &fakeNewsTierProvider{reply: reply}
	gw := llmgateway.NewGateway()
	gw.Bind(llmgateway.TierFast, provider, "fake-fast", 0)
	gw.Bind(llmgateway.TierReasoning, provider, "fake-reasoning", 0)
	return gw, provider
}

func TestRunNewsCycleSkipsLLMTiersWithNoNewContentAndNoDefconChange(t *testing.T) {
	s, _ := newTestScheduler(t)
	gw, provider := newFakeNewsGateway(fakeAnalysisJSON)
	s.gateway = gw

	score, reasoning := s.runNewsCycle(context.Background(), false)

	assert.Equal(t, 0, provider.calls, "an empty batch with no DEFCON change must issue zero LLM calls")
	assert.Nil(t, reasoning)
	assert.Equal(t, news.CategoryNone, score.DominantCategory)
}

func TestRunNewsCycleRunsBothTiersOnDefconChangeAlone(t *testing.T) {
	s, _ := newTestScheduler(t)
	gw, provider := newFakeNewsGateway(fakeAnalysisJSON)
	s.gateway = gw

	_, reasoning := s.runNewsCycle(context.Background(), true)

	assert.Equal(t, 2, provider.calls, "a DEFCON change alone satisfies both the fast-tier gate and the reasoning-tier gate (which is additive on defcon-changed too)")
	if assert.NotNil(t, reasoning, "the reasoning tier's result must be returned so the DEFCON engine can apply its hard overrides this same cycle") {
		assert.Equal(t, 92.0, reasoning.EnhancedConfidence)
	}
}

func TestRunNewsCycleWithNilGatewayNeverCallsLLM(t *testing.T) {
	s, _ := newTestScheduler(t)
	s.gateway = nil

	assert.NotPanics(t, func() {
		_, reasoning := s.runNewsCycle(context.Background(), true)
		assert.Nil(t, reasoning)
	})
}

func TestFinalizeDefconCycleAppliesReasoningHardOverride(t *testing.T) {
	s, _ := newTestScheduler(t)
	s.previousDefcon = 3

	raw := defcon.RawSignals{TenYearYield: 4.0, VIX: 15, SP500ChangePct: 0}
	level := s.finalizeDefconCycle(context.Background(), raw, 50, 0, news.Score{Total: 10},
		&newsAnalysis{EnhancedConfidence: 92, ConfidenceAdjustment: 0})

	assert.Equal(t, 2, level, "enhanced_confidence >= 85 must force DEFCON 2 regardless of the quantitative base")
}

func TestFinalizeDefconCycleWithoutReasoningUsesQuantBase(t *testing.T) {
	s, _ := newTestScheduler(t)
	raw := defcon.RawSignals{TenYearYield: 4.0, VIX: 15, SP500ChangePct: 0}
	level := s.finalizeDefconCycle(context.Background(), raw, 10, 0, news.Score{Total: 0}, nil)
	assert.Equal(t, 5, level, "no reasoning analysis this cycle falls through to the plain quant/macro base level")
}

func TestTriggerKindForClassifiesBreakingElevatedScheduled(t *testing.T) {
	assert.Equal(t, "breaking", triggerKindFor(news.Score{IsBreaking: true}, false))
	assert.Equal(t, "elevated", triggerKindFor(news.Score{Total: 45}, false))
	assert.Equal(t, "elevated", triggerKindFor(news.Score{Total: 0}, true))
	assert.Equal(t, "scheduled", triggerKindFor(news.Score{Total: 0}, false))
}

func TestEstimateTokensIsLengthProportional(t *testing.T) {
	assert.Equal(t, 0, estimateTokens(""))
	assert.Equal(t, 10, estimateTokens(string(make([]byte, 40))))
}
