package acquisition

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realmrhigh/hightrade/llmgateway"
	"github.com/realmrhigh/hightrade/store"
)

type fakeLLM struct {
	reply string
	err   error
	calls int
}

func (f *fakeLLM) Call(ctx context.Context, req llmgateway.Request) (string, error) {
	f.calls++
	return f.reply, f.err
}

func seedResearch(t *testing.T, s *store.Store, watchlistID int64, ticker string) {
	t.Helper()
	require.NoError(t, s.UpsertResearch(&store.ResearchRow{
		Ticker:           ticker,
		WatchlistEntryID: nullInt(watchlistID),
		ResearchDate:     "2026-07-29",
		Status:           store.ResearchLibraryReady,
		CreatedAt:        time.Now().UTC(),
	}))
}

func TestAnalystPromotesHighConfidencePlan(t *testing.T) {
	s := newTestStore(t)
	wlID, err := s.AddToWatchlist("ABC", "news", 0.8)
	require.NoError(t, err)
	seedResearch(t, s, wlID, "ABC")

	gw := llmgateway.NewGateway()
	gw.Bind(llmgateway.TierReasoning, &fakeLLM{reply: `{
		"should_enter": true, "research_confidence": 0.85, "watch_tag": "breakout",
		"entry_price_target": 110, "stop_loss": 100, "take_profit_1": 130,
		"position_size_pct": 0.5, "time_horizon_days": 30,
		"entry_conditions": ["break above 110"], "invalidation_conditions": ["close below 95"],
		"thesis_summary": "strong breakout setup"
	}`}, "reasoning-model", 0)

	a := NewAnalyst(s, gw)
	plans, err := a.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.True(t, plans[0].ShouldEnter)

	actives, err := s.ActiveConditionalEntries()
	require.NoError(t, err)
	require.Len(t, actives, 1)
	assert.Equal(t, "ABC", actives[0].Ticker)
	assert.Equal(t, MaxPositionSizePct, actives[0].PositionSizePct, "position size must be capped")

	active, err := s.ActiveWatchlist()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, store.WatchlistConditionalSet, active[0].Status)

	ready, err := s.ResearchReadyForAnalysis(10)
	require.NoError(t, err)
	assert.Len(t, ready, 0, "analysed rows must drop out of the ready set")
}

func TestAnalystPassesLowConfidencePlan(t *testing.T) {
	s := newTestStore(t)
	wlID, err := s.AddToWatchlist("XYZ", "news", 0.5)
	require.NoError(t, err)
	seedResearch(t, s, wlID, "XYZ")

	gw := llmgateway.NewGateway()
	gw.Bind(llmgateway.TierReasoning, &fakeLLM{reply: `{
		"should_enter": false, "research_confidence": 0.40, "watch_tag": "mean-reversion",
		"thesis_summary": "not enough conviction", "data_gaps": ["no recent filing"]
	}`}, "reasoning-model", 0)

	a := NewAnalyst(s, gw)
	_, err = a.RunCycle(context.Background())
	require.NoError(t, err)

	actives, err := s.ActiveConditionalEntries()
	require.NoError(t, err)
	assert.Len(t, actives, 0)

	active, err := s.ActiveWatchlist()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, store.WatchlistAnalystPass, active[0].Status)
}

func TestAnalystDowngradesTierWhenReasoningQuotaBlocked(t *testing.T) {
	s := newTestStore(t)
	wlID, err := s.AddToWatchlist("ABC", "news", 0.8)
	require.NoError(t, err)
	seedResearch(t, s, wlID, "ABC")

	gw := llmgateway.NewGateway()
	gw.Bind(llmgateway.TierReasoning, &fakeLLM{reply: `{}`}, "reasoning-model", 1)
	fastFake := &fakeLLM{reply: `{"should_enter": false, "research_confidence": 0.2, "thesis_summary": "pass"}`}
	gw.Bind(llmgateway.TierBalanced, fastFake, "balanced-model", 0)

	// exhaust the reasoning tier's quota of 1 with an unrelated call
	_, err = gw.Call(context.Background(), llmgateway.TierReasoning, llmgateway.Request{})
	require.NoError(t, err)

	a := NewAnalyst(s, gw)
	_, err = a.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fastFake.calls, "must downgrade to balanced tier once reasoning quota is blocked")
}

func TestAnalystErrorLeavesResearchRowInAnalystError(t *testing.T) {
	s := newTestStore(t)
	wlID, err := s.AddToWatchlist("BAD", "news", 0.8)
	require.NoError(t, err)
	seedResearch(t, s, wlID, "BAD")

	gw := llmgateway.NewGateway()
	gw.Bind(llmgateway.TierReasoning, &fakeLLM{reply: "not json at all and no braces"}, "reasoning-model", 0)

	a := NewAnalyst(s, gw)
	plans, err := a.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Len(t, plans, 0)

	ready, err := s.ResearchReadyForAnalysis(10)
	require.NoError(t, err)
	assert.Len(t, ready, 0, "a failed analysis flips the row from library_ready to analyst_error, which ResearchReadyForAnalysis excludes")
}
