package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func managerAt(t time.Time) *Manager {
	m := NewManager(DefaultExitConfig())
	m.now = func() time.Time { return t }
	return m
}

func TestStopLossFiresRegardlessOfMinHold(t *testing.T) {
	entry := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	m := managerAt(entry.Add(10 * time.Second)) // under min hold
	sig := m.EvaluatePosition(PositionInput{TradeID: 1, Ticker: "ABC", EntryPrice: 100, EntryTime: entry}, 96, 3)
	if assert.NotNil(t, sig) {
		assert.Equal(t, ReasonStopLoss, sig.Reason)
		assert.Equal(t, PersistStopLoss, sig.PersistedReason)
	}
}

func TestProfitTargetGatedByMinHold(t *testing.T) {
	entry := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	m := managerAt(entry.Add(30 * time.Second))
	sig := m.EvaluatePosition(PositionInput{TradeID: 1, Ticker: "ABC", EntryPrice: 100, EntryTime: entry}, 110, 3)
	assert.Nil(t, sig, "profit target must not fire before min hold elapses")
}

func TestProfitTargetFiresAfterMinHold(t *testing.T) {
	entry := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	m := managerAt(entry.Add(90 * time.Minute))
	sig := m.EvaluatePosition(PositionInput{TradeID: 1, Ticker: "ABC", EntryPrice: 100, EntryTime: entry}, 106, 3)
	if assert.NotNil(t, sig) {
		assert.Equal(t, ReasonProfitTarget, sig.Reason)
		assert.Equal(t, PersistProfitTarget, sig.PersistedReason)
	}
}

func TestTrailingStopOnlyActivatesAbovePeak(t *testing.T) {
	entry := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	m := managerAt(entry.Add(90 * time.Minute))
	pos := PositionInput{TradeID: 1, Ticker: "ABC", EntryPrice: 100, EntryTime: entry}

	assert.Nil(t, m.EvaluatePosition(pos, 102, 3))
	assert.Nil(t, m.EvaluatePosition(pos, 104.5, 3))

	sig := m.EvaluatePosition(pos, 102.3, 3) // drawdown from 104.5 peak: -2.1% > 2%, still under the 5% profit target
	if assert.NotNil(t, sig) {
		assert.Equal(t, ReasonTrailingStop, sig.Reason)
		assert.Equal(t, PersistManual, sig.PersistedReason, "trailing stop collapses to manual per persisted-reason resolution")
	}
}

func TestTrailingStopNeverActivatesIfPriceNeverExceedsEntry(t *testing.T) {
	entry := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	m := managerAt(entry.Add(90 * time.Minute))
	pos := PositionInput{TradeID: 1, Ticker: "ABC", EntryPrice: 100, EntryTime: entry}
	assert.Nil(t, m.EvaluatePosition(pos, 99, 3))
	assert.Nil(t, m.EvaluatePosition(pos, 97.9, 3))
}

func TestDefconReversionFiresWhenEnteredAtLowAndReverts(t *testing.T) {
	entry := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	m := managerAt(entry.Add(90 * time.Minute))
	pos := PositionInput{TradeID: 1, Ticker: "ABC", EntryPrice: 100, EntryTime: entry, DefconAtEntry: 2}
	sig := m.EvaluatePosition(pos, 100.5, 3)
	if assert.NotNil(t, sig) {
		assert.Equal(t, ReasonDefconRevert, sig.Reason)
		assert.Equal(t, PersistInvalidation, sig.PersistedReason)
	}
}

func TestTimeLimitFiresAtMaxHoldHours(t *testing.T) {
	entry := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	m := managerAt(entry.Add(72 * time.Hour))
	pos := PositionInput{TradeID: 1, Ticker: "ABC", EntryPrice: 100, EntryTime: entry}
	sig := m.EvaluatePosition(pos, 100.2, 3)
	if assert.NotNil(t, sig) {
		assert.Equal(t, ReasonTimeLimit, sig.Reason)
	}
}

func TestTimeAndLossFiresAt80PctOfMaxHoldWhenLosing(t *testing.T) {
	entry := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	m := managerAt(entry.Add(60 * time.Hour)) // 0.8*72=57.6h
	pos := PositionInput{TradeID: 1, Ticker: "ABC", EntryPrice: 100, EntryTime: entry}
	sig := m.EvaluatePosition(pos, 98, 3)
	if assert.NotNil(t, sig) {
		assert.Equal(t, ReasonTimeAndLoss, sig.Reason)
	}
}

func TestPriorityOrderStopLossBeatsEverything(t *testing.T) {
	// Holding long enough to trip time_limit AND deep enough to trip stop_loss:
	// stop_loss must win since it is checked first.
	entry := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	m := managerAt(entry.Add(100 * time.Hour))
	pos := PositionInput{TradeID: 1, Ticker: "ABC", EntryPrice: 100, EntryTime: entry, DefconAtEntry: 2}
	sig := m.EvaluatePosition(pos, 90, 5) // -10%, also defcon-revert eligible and time-limit eligible
	if assert.NotNil(t, sig) {
		assert.Equal(t, ReasonStopLoss, sig.Reason)
	}
}

func TestResetTrailingStopClearsPeak(t *testing.T) {
	entry := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	m := managerAt(entry.Add(90 * time.Minute))
	pos := PositionInput{TradeID: 7, Ticker: "ABC", EntryPrice: 100, EntryTime: entry}
	m.EvaluatePosition(pos, 120, 3)
	m.ResetTrailingStop(7)
	_, ok := m.peaks[7]
	assert.False(t, ok)
}

func TestNoExitWhenNothingTriggers(t *testing.T) {
	entry := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	m := managerAt(entry.Add(2 * time.Hour))
	pos := PositionInput{TradeID: 1, Ticker: "ABC", EntryPrice: 100, EntryTime: entry}
	assert.Nil(t, m.EvaluatePosition(pos, 101, 3))
}
