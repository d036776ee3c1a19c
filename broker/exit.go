// Package broker implements position-lifecycle management: entry
// triggering, priority-ordered exit evaluation, trailing-stop peak
// tracking, and loss/profit-triggered watchlist re-entry.
//
// Exit evaluation is grounded almost line-for-line on
// original_source/exit_strategies.py's ExitStrategyManager.
package broker

import "time"

// ExitReason is the *internal* (pre-normalization) reason an exit check
// identified. Persisted reasons are narrower — see normalizeExitReason.
type ExitReason string

const (
	ReasonStopLoss      ExitReason = "stop_loss"
	ReasonProfitTarget  ExitReason = "profit_target"
	ReasonTrailingStop  ExitReason = "trailing_stop"
	ReasonTimeAndLoss   ExitReason = "time_and_loss"
	ReasonDefconRevert  ExitReason = "defcon_revert"
	ReasonTimeLimit     ExitReason = "time_limit"
)

// PersistedReason is the narrow, closed enum the Trade Record actually
// stores, per spec.md §3 and the §9 open-question resolution.
type PersistedReason string

const (
	PersistProfitTarget PersistedReason = "profit_target"
	PersistStopLoss     PersistedReason = "stop_loss"
	PersistManual       PersistedReason = "manual"
	PersistInvalidation PersistedReason = "invalidation"
)

// normalizeExitReason implements the §9 open-question resolution: the
// source mixes a broad internal exit-reason enum with the narrow
// persisted one. trailing_stop/time_limit/time_and_loss collapse to
// "manual" with a descriptive note; defcon_revert collapses to
// "invalidation".
func normalizeExitReason(r ExitReason) PersistedReason {
	switch r {
	case ReasonStopLoss:
		return PersistStopLoss
	case ReasonProfitTarget:
		return PersistProfitTarget
	case ReasonDefconRevert:
		return PersistInvalidation
	case ReasonTrailingStop, ReasonTimeAndLoss, ReasonTimeLimit:
		return PersistManual
	default:
		return PersistManual
	}
}

// priority returns the priority (higher fires first) per the §4.10 table.
func (r ExitReason) priority() int {
	switch r {
	case ReasonStopLoss:
		return 5
	case ReasonProfitTarget:
		return 4
	case ReasonTrailingStop, ReasonTimeAndLoss:
		return 3
	case ReasonDefconRevert, ReasonTimeLimit:
		return 2
	default:
		return 0
	}
}

// ExitSignal is the outcome of evaluating one open position.
type ExitSignal struct {
	TradeID         int64
	Ticker          string
	Reason          ExitReason
	PersistedReason PersistedReason
	EntryPrice      float64
	ExitPrice       float64
	ProfitLossPct   float64
	Message         string
	Priority        int
}

// PositionInput is everything EvaluatePosition needs; it is a pure
// function of these fields plus the trailing-stop peak tracked in Manager.
type PositionInput struct {
	TradeID      int64
	Ticker       string
	EntryPrice   float64
	EntryTime    time.Time
	DefconAtEntry int
}

// ExitConfig holds the thresholds of §4.10, defaulting to spec.md's stated
// values (5% profit target, -3% stop loss, 2% trailing, 72h max hold, 1h
// min hold).
type ExitConfig struct {
	ProfitTargetPct float64
	StopLossPct     float64 // negative, e.g. -0.03
	TrailingStopPct float64
	MaxHoldHours    float64
	MinHoldHours    float64
}

// DefaultExitConfig matches exit_strategies.py's documented defaults.
func DefaultExitConfig() ExitConfig {
	return ExitConfig{
		ProfitTargetPct: 0.05,
		StopLossPct:     -0.03,
		TrailingStopPct: 0.02,
		MaxHoldHours:    72,
		MinHoldHours:    1,
	}
}

// Manager tracks per-trade trailing-stop peaks in memory, exactly as
// ExitStrategyManager.highest_prices does in the Python source. It is the
// sole piece of mutable state in this package; everything else is pure.
type Manager struct {
	cfg     ExitConfig
	peaks   map[int64]float64
	now     func() time.Time
}

func NewManager(cfg ExitConfig) *Manager {
	return &Manager{cfg: cfg, peaks: make(map[int64]float64), now: time.Now}
}

func (m *Manager) updateTrailingStop(tradeID int64, currentPrice float64) {
	if existing, ok := m.peaks[tradeID]; !ok || currentPrice > existing {
		m.peaks[tradeID] = currentPrice
	}
}

// ResetTrailingStop clears a trade's tracked peak; called when a trade is
// closed by any means.
func (m *Manager) ResetTrailingStop(tradeID int64) {
	delete(m.peaks, tradeID)
}

func (m *Manager) checkStopLoss(entry, current float64) (float64, bool) {
	lossPct := (current - entry) / entry
	if lossPct <= m.cfg.StopLossPct {
		return lossPct, true
	}
	return 0, false
}

func (m *Manager) checkProfitTarget(entry, current float64, minHoldMet bool) (float64, bool) {
	if !minHoldMet {
		return 0, false
	}
	profitPct := (current - entry) / entry
	if profitPct >= m.cfg.ProfitTargetPct {
		return profitPct, true
	}
	return 0, false
}

func (m *Manager) checkTrailingStop(tradeID int64, entry, current float64, minHoldMet bool) (*ExitSignal, bool) {
	if !minHoldMet {
		return nil, false
	}
	m.updateTrailingStop(tradeID, current)
	peak := m.peaks[tradeID]
	if peak <= entry {
		return nil, false
	}
	drawdown := (current - peak) / peak
	if drawdown <= -m.cfg.TrailingStopPct {
		profitPct := (current - entry) / entry
		return &ExitSignal{
			Reason:        ReasonTrailingStop,
			ProfitLossPct: profitPct,
			Priority:      ReasonTrailingStop.priority(),
		}, true
	}
	return nil, false
}

func (m *Manager) checkTimeAndLoss(entry, current float64, holdingHours float64) (*ExitSignal, bool) {
	profitPct := (current - entry) / entry
	if holdingHours >= m.cfg.MaxHoldHours*0.8 && profitPct < 0 {
		return &ExitSignal{Reason: ReasonTimeAndLoss, ProfitLossPct: profitPct, Priority: ReasonTimeAndLoss.priority()}, true
	}
	return nil, false
}

func (m *Manager) checkTimeLimit(entry, current float64, holdingHours float64) (*ExitSignal, bool) {
	if holdingHours >= m.cfg.MaxHoldHours {
		profitPct := (current - entry) / entry
		return &ExitSignal{Reason: ReasonTimeLimit, ProfitLossPct: profitPct, Priority: ReasonTimeLimit.priority()}, true
	}
	return nil, false
}

func (m *Manager) checkDefconReversion(entryDefcon, currentDefcon int, entry, current float64) (*ExitSignal, bool) {
	if entryDefcon >= 1 && entryDefcon <= 2 && currentDefcon >= 3 {
		profitPct := (current - entry) / entry
		return &ExitSignal{Reason: ReasonDefconRevert, ProfitLossPct: profitPct, Priority: ReasonDefconRevert.priority()}, true
	}
	return nil, false
}

// EvaluatePosition runs every exit check in priority order and returns at
// most one signal — the highest-priority match. Pure given (position,
// currentPrice, currentDefcon) and the trailing-stop peak already tracked
// for this trade.
func (m *Manager) EvaluatePosition(pos PositionInput, currentPrice float64, currentDefcon int) *ExitSignal {
	holdingHours := m.now().Sub(pos.EntryTime).Hours()
	minHoldMet := holdingHours >= m.cfg.MinHoldHours

	// 1. Stop loss — never gated by minimum hold, a safety mechanism.
	if lossPct, ok := m.checkStopLoss(pos.EntryPrice, currentPrice); ok {
		return m.finalize(pos, currentPrice, ExitSignal{
			Reason: ReasonStopLoss, ProfitLossPct: lossPct, Priority: ReasonStopLoss.priority(),
		})
	}

	// 2. Profit target.
	if profitPct, ok := m.checkProfitTarget(pos.EntryPrice, currentPrice, minHoldMet); ok {
		return m.finalize(pos, currentPrice, ExitSignal{
			Reason: ReasonProfitTarget, ProfitLossPct: profitPct, Priority: ReasonProfitTarget.priority(),
		})
	}

	// 3. Trailing stop.
	if sig, ok := m.checkTrailingStop(pos.TradeID, pos.EntryPrice, currentPrice, minHoldMet); ok {
		return m.finalize(pos, currentPrice, *sig)
	}

	// 4. Time-and-loss.
	if sig, ok := m.checkTimeAndLoss(pos.EntryPrice, currentPrice, holdingHours); ok {
		return m.finalize(pos, currentPrice, *sig)
	}

	// 5. DEFCON reversion.
	if sig, ok := m.checkDefconReversion(pos.DefconAtEntry, currentDefcon, pos.EntryPrice, currentPrice); ok {
		return m.finalize(pos, currentPrice, *sig)
	}

	// 6. Time limit (last resort).
	if sig, ok := m.checkTimeLimit(pos.EntryPrice, currentPrice, holdingHours); ok {
		return m.finalize(pos, currentPrice, *sig)
	}

	return nil
}

func (m *Manager) finalize(pos PositionInput, currentPrice float64, sig ExitSignal) *ExitSignal {
	sig.TradeID = pos.TradeID
	sig.Ticker = pos.Ticker
	sig.EntryPrice = pos.EntryPrice
	sig.ExitPrice = currentPrice
	sig.PersistedReason = normalizeExitReason(sig.Reason)
	sig.Message = formatMessage(sig)
	return &sig
}

func formatMessage(sig ExitSignal) string {
	switch sig.Reason {
	case ReasonStopLoss:
		return "stop loss: " + sig.Ticker
	case ReasonProfitTarget:
		return "profit target: " + sig.Ticker
	case ReasonTrailingStop:
		return "trailing stop: " + sig.Ticker
	case ReasonTimeAndLoss:
		return "time and loss: " + sig.Ticker
	case ReasonDefconRevert:
		return "defcon reversion: " + sig.Ticker
	case ReasonTimeLimit:
		return "time limit: " + sig.Ticker
	default:
		return sig.Ticker
	}
}
