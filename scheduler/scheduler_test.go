package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realmrhigh/hightrade/broker"
	"github.com/realmrhigh/hightrade/cmdbus"
	"github.com/realmrhigh/hightrade/config"
	"github.com/realmrhigh/hightrade/market"
	"github.com/realmrhigh/hightrade/notify"
	"github.com/realmrhigh/hightrade/store"
)

type fakeDataSource struct {
	quotes map[string]*market.Quote
}

func (f *fakeDataSource) Quote(ctx context.Context, ticker string) (*market.Quote, error) {
	if q, ok := f.quotes[ticker]; ok {
		return q, nil
	}
	return &market.Quote{Ticker: ticker, Price: 100, Timestamp: time.Now()}, nil
}
func (f *fakeDataSource) Bars(ctx context.Context, ticker, timeframe string, start, end time.Time) ([]market.Bar, error) {
	return nil, nil
}
func (f *fakeDataSource) Fundamentals(ctx context.Context, ticker string) (*market.Fundamentals, error) {
	return nil, nil
}
func (f *fakeDataSource) AnalystTarget(ctx context.Context, ticker string) (*market.AnalystTarget, error) {
	return nil, nil
}
func (f *fakeDataSource) Filings(ctx context.Context, ticker string) ([]market.Filing, error) {
	return nil, nil
}

// newTestScheduler builds a Scheduler wired to an in-memory store and a
// broker-disabled config, so a held-mode cycle never touches the news,
// macro, political, or defcon collectors, the entry engine, or the daily
// briefing pipeline — only the command bus, the exit manager, and the
// cycle summary are exercised, matching this suite's scope.
func newTestScheduler(t *testing.T) (*Scheduler, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := config.Default()
	cfg.BrokerMode = config.BrokerDisabled

	deps := Deps{
		Store: st,
		Data:  &fakeDataSource{quotes: map[string]*market.Quote{}},
		Sink:  notify.New(nil),
		Bus:   cmdbus.New(t.TempDir()),
	}
	s := New(cfg, deps)
	// Push the clock well before the daily-briefing trigger hour so
	// maybeRunDailyBriefing's gate short-circuits without needing a
	// researcher/analyst/briefing runner.
	s.now = func() time.Time { return time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC) }
	return s, st
}

func TestHoldCommandPreventsMonitoringButNotExitEvaluation(t *testing.T) {
	s, _ := newTestScheduler(t)
	resp := s.handleHold()
	assert.True(t, resp.OK)
	assert.True(t, s.held)

	// RunOnce in held mode must still complete a cycle (exit check +
	// summary) without touching any of the nil collector/entry fields.
	assert.NotPanics(t, func() {
		require.NoError(t, s.RunOnce(context.Background()))
	})
	assert.Equal(t, 1, s.cycleCount)
}

func TestStartCommandClearsHold(t *testing.T) {
	s, _ := newTestScheduler(t)
	s.handleHold()
	resp := s.handleStart()
	assert.True(t, resp.OK)
	assert.False(t, s.held)
}

func TestStopAndEstopSetDistinctFlags(t *testing.T) {
	s, _ := newTestScheduler(t)
	s.handleStop()
	assert.True(t, s.stopRequested)
	assert.False(t, s.estopRequested)

	s2, _ := newTestScheduler(t)
	s2.handleEstop()
	assert.True(t, s2.estopRequested)
}

func TestRunStopsImmediatelyOnEstop(t *testing.T) {
	s, _ := newTestScheduler(t)
	s.estopRequested = true
	err := s.Run(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 0, s.cycleCount, "estop before the first cycle must prevent it from running at all")
}

func TestHandleStatusReportsCurrentFields(t *testing.T) {
	s, _ := newTestScheduler(t)
	s.handleHold()
	resp := s.handleStatus()
	assert.True(t, resp.OK)
	data := resp.Data.(map[string]any)
	assert.Equal(t, true, data["held"])
	assert.Equal(t, config.BrokerDisabled, data["broker_mode"])
}

func TestSnapshotMirrorsHandleStatus(t *testing.T) {
	s, _ := newTestScheduler(t)
	s.handleHold()
	snap := s.Snapshot()
	statusResp := s.handleStatus()
	assert.Equal(t, statusResp.Data, snap)
}

func TestHandleModeRejectsUnknownMode(t *testing.T) {
	s, _ := newTestScheduler(t)
	resp := s.handleMode("full_throttle")
	assert.False(t, resp.OK)
	assert.Equal(t, config.BrokerDisabled, s.cfg.BrokerMode, "an invalid mode must not mutate the config")
}

func TestHandleModeAcceptsKnownMode(t *testing.T) {
	s, _ := newTestScheduler(t)
	resp := s.handleMode("semi_auto")
	assert.True(t, resp.OK)
	assert.Equal(t, config.BrokerSemiAuto, s.cfg.BrokerMode)
}

func TestHandleIntervalSetsPendingIntervalNotCurrent(t *testing.T) {
	s, _ := newTestScheduler(t)
	original := s.interval
	resp := s.handleInterval("45")
	assert.True(t, resp.OK)
	assert.Equal(t, original, s.interval, "a new interval only takes effect at the next sleep boundary")
	assert.Equal(t, 45*time.Minute, s.pendingInterval)
}

func TestRunOnceClosesPositionOnStopLoss(t *testing.T) {
	s, st := newTestScheduler(t)
	// Hold mode skips the monitoring pipeline (news/macro/political/defcon
	// collectors, all nil in this fixture) but exit evaluation still
	// runs every cycle — so the quote it needs is seeded directly rather
	// than produced by a live refreshQuotes pass.
	s.handleHold()
	s.quotes = map[string]*market.Quote{"ABC": {Ticker: "ABC", Price: 95, Timestamp: s.now()}}

	tradeID, err := st.OpenTrade(&store.Trade{
		Ticker:     "ABC",
		Status:     store.TradeOpen,
		EntryPrice: 100,
		EntryTime:  s.now().Add(-2 * time.Hour),
		Quantity:   10,
	})
	require.NoError(t, err)

	require.NoError(t, s.RunOnce(context.Background()))

	open, err := st.OpenTrades()
	require.NoError(t, err)
	for _, t2 := range open {
		assert.NotEqual(t, tradeID, t2.ID, "a stop-loss breach must close the position within the cycle")
	}
}

func TestExitManagerResetAfterClose(t *testing.T) {
	s, _ := newTestScheduler(t)
	// ResetTrailingStop must be callable on an unknown trade ID without
	// panicking — RunOnce's exit loop calls it unconditionally after
	// every close.
	assert.NotPanics(t, func() { s.exitManager.ResetTrailingStop(999) })
}

func TestPositionInputFromMapsTradeFields(t *testing.T) {
	tr := store.Trade{ID: 7, Ticker: "XYZ", EntryPrice: 50, DefconAtEntry: 3}
	pos := positionInputFrom(tr)
	assert.Equal(t, broker.PositionInput{TradeID: 7, Ticker: "XYZ", EntryPrice: 50, DefconAtEntry: 3}, pos)
}
