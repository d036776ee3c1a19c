package broker

import (
	"fmt"
	"time"

	"github.com/realmrhigh/hightrade/store"
)

// Watchlist sources for the two re-entry loops a closed trade can queue.
const (
	SourceStopLossRebound            = "stop_loss_rebound"
	SourceProfitTargetReaccumulation = "profit_target_reaccumulation"
)

// reentryRelevance seeds the requeued watchlist entry below the analyst
// pass/fail threshold's neighborhood — high enough that the Researcher
// picks it up promptly, not so high it jumps the FIFO queue ahead of
// fresher signal.
const reentryRelevance = 0.6

// ExecuteExit closes a trade for the signal EvaluatePosition produced,
// clears its trailing-stop peak, and — for a stop-loss or profit-target
// exit — queues a fresh watchlist entry that binds re-entry to the exit
// price, matching §4.10's rebound/reaccumulation loop.
func (m *Manager) ExecuteExit(s *store.Store, sig *ExitSignal, exitTime time.Time) error {
	if err := s.CloseTrade(sig.TradeID, sig.ExitPrice, exitTime, string(sig.PersistedReason), sig.ProfitLossPct); err != nil {
		return err
	}
	m.ResetTrailingStop(sig.TradeID)

	switch sig.Reason {
	case ReasonStopLoss:
		return queueReentry(s, sig.Ticker, SourceStopLossRebound,
			fmt.Sprintf("stopped out at $%.2f — re-enter only below this price on a confirmed bounce", sig.ExitPrice))
	case ReasonProfitTarget:
		return queueReentry(s, sig.Ticker, SourceProfitTargetReaccumulation,
			fmt.Sprintf("profit target hit at $%.2f — re-enter on a pullback below this price", sig.ExitPrice))
	default:
		return nil
	}
}

func queueReentry(s *store.Store, ticker, source, notes string) error {
	id, err := s.AddToWatchlist(ticker, source, reentryRelevance)
	if err != nil {
		return err
	}
	return s.TransitionWatchlistStatus(id, store.WatchlistPending, notes)
}
