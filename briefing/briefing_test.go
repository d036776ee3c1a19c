package briefing

import (
	"context"
	"database/sql"
	"encoding/json"
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

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

const sampleReply = `{
	"market_regime": "risk-on", "regime_confidence": 0.7,
	"headline_summary": "markets drifted higher on soft inflation data",
	"key_themes": ["disinflation", "earnings beats"],
	"biggest_risk_today": "yield curve re-steepening",
	"biggest_opportunity_today": "semiconductor breakout",
	"signal_quality_assessment": "signals were coherent today",
	"macro_alignment": "macro confirms risk-on news tone",
	"congressional_alpha": "cluster buying in NVDA",
	"portfolio_assessment": "open positions tracking thesis",
	"watchlist_tomorrow": ["nvda", " amd ", ""],
	"entry_conditions_tomorrow": "break above prior day high on volume",
	"defcon_forecast": "3",
	"reasoning_chain": "news + macro + congressional all aligned bullish",
	"model_confidence": 0.8
}`

func TestRunPersistsBriefingAndQueuesWatchlist(t *testing.T) {
	s := newTestStore(t)

	gw := llmgateway.NewGateway()
	gw.Bind(llmgateway.TierReasoning, &fakeLLM{reply: sampleReply}, "reasoning-model", 0)

	r := NewRunner(s, gw, nil, nil)
	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "risk-on", result.MarketRegime)
	assert.Equal(t, []string{"nvda", " amd ", ""}, result.WatchlistTomorrow)

	latest, err := s.LatestBriefing()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "markets drifted higher on soft inflation data", latest.Summary)
	assert.Equal(t, string(llmgateway.TierReasoning), latest.Tier)
	assert.InDelta(t, 0.8, latest.ModelConfidence, 0.0001)

	var themes []string
	require.NoError(t, json.Unmarshal([]byte(latest.KeyThemes), &themes))
	assert.Equal(t, []string{"disinflation", "earnings beats"}, themes)

	has, err := s.HasBriefingToday(time.Now())
	require.NoError(t, err)
	assert.True(t, has)

	pending, err := s.PendingWatchlist(10)
	require.NoError(t, err)
	tickers := map[string]bool{}
	for _, p := range pending {
		tickers[p.Ticker] = true
	}
	assert.True(t, tickers["NVDA"])
	assert.True(t, tickers["AMD"])
	assert.Len(t, pending, 2, "blank ticker entries must be skipped")
}

func TestRunTriggersVerifyCallback(t *testing.T) {
	s := newTestStore(t)
	gw := llmgateway.NewGateway()
	gw.Bind(llmgateway.TierReasoning, &fakeLLM{reply: sampleReply}, "reasoning-model", 0)

	called := false
	r := NewRunner(s, gw, nil, func(ctx context.Context) error {
		called = true
		return nil
	})
	_, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, called, "verify callback must fire after a successful briefing")
}

func TestRunSurvivesVerifyError(t *testing.T) {
	s := newTestStore(t)
	gw := llmgateway.NewGateway()
	gw.Bind(llmgateway.TierReasoning, &fakeLLM{reply: sampleReply}, "reasoning-model", 0)

	r := NewRunner(s, gw, nil, func(ctx context.Context) error {
		return assert.AnError
	})
	result, err := r.Run(context.Background())
	require.NoError(t, err, "a failed verification pass must not fail the briefing itself")
	assert.NotNil(t, result)
}

func TestGatherContextAggregatesOpenAndClosedTrades(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	wlID, err := s.AddToWatchlist("ABC", "news", 0.6)
	require.NoError(t, err)

	openID, err := s.OpenTrade(&store.Trade{
		Ticker: "ABC", EntryPrice: 100, EntryTime: now, Quantity: 10,
		DefconAtEntry: 3, Confidence: 0.8, WatchlistEntryID: nullInt(wlID),
	})
	require.NoError(t, err)
	_ = openID

	closedID, err := s.OpenTrade(&store.Trade{
		Ticker: "XYZ", EntryPrice: 50, EntryTime: now.Add(-48 * time.Hour), Quantity: 5,
		DefconAtEntry: 3, Confidence: 0.7,
	})
	require.NoError(t, err)
	require.NoError(t, s.CloseTrade(closedID, 55, now.Add(-24*time.Hour), "manual", 10.0))

	r := NewRunner(s, nil, nil, nil)
	ctxData, err := r.gatherContext(now)
	require.NoError(t, err)
	assert.Len(t, ctxData.openTrades, 1)
	assert.Equal(t, "ABC", ctxData.openTrades[0].Ticker)
	assert.Len(t, ctxData.closedTrades, 1)
	assert.Equal(t, "XYZ", ctxData.closedTrades[0].Ticker)
}

func TestBuildPromptIncludesEveryDataSection(t *testing.T) {
	ctxData := &dailyContext{
		date:         "2026-07-30",
		latestDefcon: 3,
	}
	prompt := buildPrompt(ctxData)
	assert.Contains(t, prompt, "SECTION 1: NEWS INTELLIGENCE")
	assert.Contains(t, prompt, "SECTION 2: DEFCON TIMELINE")
	assert.Contains(t, prompt, "SECTION 3: MACROECONOMIC ENVIRONMENT")
	assert.Contains(t, prompt, "SECTION 4: CONGRESSIONAL TRADING SIGNALS")
	assert.Contains(t, prompt, "SECTION 5: PORTFOLIO STATUS")
	assert.Contains(t, prompt, "watchlist_tomorrow")
}

func nullInt(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: true}
}
