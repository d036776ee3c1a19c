package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/realmrhigh/hightrade/cmdbus"
	"github.com/realmrhigh/hightrade/config"
	"github.com/realmrhigh/hightrade/store"
)

// buildHandlers wires every canonical command to a closure over scheduler
// state. Every handler here runs on the scheduler's own goroutine — it is
// only ever invoked from drainCommands, between cycles — so none of them
// need their own locking, matching §5's single-writer model.
//
// Yes/No return a generic "no pending decision" acknowledgement: this
// build has no manual-approval queue (semi_auto mode trades immediately
// off a triggered conditional, and the disabled-mode "alert" is the
// defcon_change notification itself — see notifyDefconChange), so there
// is never a decision actually pending for Yes/No to resolve.
func (s *Scheduler) buildHandlers() cmdbus.Handlers {
	return cmdbus.Handlers{
		Yes:       s.handleYesNo,
		No:        s.handleYesNo,
		Hold:      s.handleHold,
		Start:     s.handleStart,
		Stop:      s.handleStop,
		Estop:     s.handleEstop,
		Update:    s.handleUpdate,
		Status:    s.handleStatus,
		Portfolio: s.handlePortfolio,
		Defcon:    s.handleDefcon,
		Trades:    s.handleTrades,
		Broker:    s.handleBroker,
		Mode:      s.handleMode,
		Interval:  s.handleInterval,
		Buy:       s.handleBuy,
		Sell:      s.handleSell,
		Briefing:  s.handleBriefing,
		Research:  s.handleResearch,
		Hunt:      s.handleHunt,
	}
}

func (s *Scheduler) handleYesNo() cmdbus.Response {
	return cmdbus.Response{OK: true, Message: "no pending decision to resolve in this build"}
}

func (s *Scheduler) handleHold() cmdbus.Response {
	s.held = true
	return cmdbus.Response{OK: true, Message: "holding — monitoring continues, no new trades"}
}

func (s *Scheduler) handleStart() cmdbus.Response {
	s.held = false
	return cmdbus.Response{OK: true, Message: "resumed"}
}

func (s *Scheduler) handleStop() cmdbus.Response {
	s.stopRequested = true
	return cmdbus.Response{OK: true, Message: "stopping after the current cycle completes"}
}

func (s *Scheduler) handleEstop() cmdbus.Response {
	s.estopRequested = true
	return cmdbus.Response{OK: true, Message: "emergency stop — halting immediately"}
}

func (s *Scheduler) handleUpdate() cmdbus.Response {
	s.updateRequested = true
	return cmdbus.Response{OK: true, Message: "forcing an immediate cycle"}
}

func (s *Scheduler) handleStatus() cmdbus.Response {
	return cmdbus.Response{OK: true, Message: "status", Data: map[string]any{
		"held":        s.held,
		"broker_mode": s.cfg.BrokerMode,
		"defcon":      s.previousDefcon,
		"interval":    s.interval.String(),
		"cycle":       s.cycleCount,
	}}
}

// Snapshot exposes the same fields handleStatus reports, as a plain map
// rather than a cmdbus.Response — the admin bridge's StatusFunc uses this
// to serve GET /status without importing the command-bus wire types.
func (s *Scheduler) Snapshot() map[string]any {
	return map[string]any{
		"held":        s.held,
		"broker_mode": s.cfg.BrokerMode,
		"defcon":      s.previousDefcon,
		"interval":    s.interval.String(),
		"cycle":       s.cycleCount,
	}
}

func (s *Scheduler) handlePortfolio() cmdbus.Response {
	open, err := s.store.OpenTrades()
	if err != nil {
		return cmdbus.Response{OK: false, Message: "failed to load open trades: " + err.Error()}
	}
	return cmdbus.Response{OK: true, Message: "portfolio", Data: map[string]any{
		"open_positions": open,
		"cash_available": s.availableCash(open),
	}}
}

func (s *Scheduler) handleDefcon() cmdbus.Response {
	level, err := s.store.LatestDefconLevel()
	if err != nil {
		return cmdbus.Response{OK: false, Message: "failed to load defcon level: " + err.Error()}
	}
	return cmdbus.Response{OK: true, Message: fmt.Sprintf("defcon %d", level), Data: map[string]any{"defcon_level": level}}
}

func (s *Scheduler) handleTrades() cmdbus.Response {
	open, err := s.store.OpenTrades()
	if err != nil {
		return cmdbus.Response{OK: false, Message: "failed to load trades: " + err.Error()}
	}
	closed, err := s.store.ClosedTradesSince(s.now().AddDate(0, 0, -7))
	if err != nil {
		closed = nil
	}
	return cmdbus.Response{OK: true, Message: "trades", Data: map[string]any{
		"open":   open,
		"closed": closed,
	}}
}

func (s *Scheduler) handleBroker() cmdbus.Response {
	return cmdbus.Response{OK: true, Message: "broker status", Data: map[string]any{
		"mode": s.cfg.BrokerMode,
	}}
}

func (s *Scheduler) handleMode(args string) cmdbus.Response {
	mode := config.BrokerMode(strings.ToLower(strings.TrimSpace(args)))
	switch mode {
	case config.BrokerDisabled, config.BrokerSemiAuto, config.BrokerFullAuto:
		s.cfg.BrokerMode = mode
		return cmdbus.Response{OK: true, Message: "broker mode set to " + string(mode)}
	default:
		return cmdbus.Response{OK: false, Message: "usage: mode disabled|semi_auto|full_auto"}
	}
}

func (s *Scheduler) handleInterval(args string) cmdbus.Response {
	minutes, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil || minutes <= 0 {
		return cmdbus.Response{OK: false, Message: "usage: interval <minutes>"}
	}
	s.pendingInterval = time.Duration(minutes) * time.Minute
	return cmdbus.Response{OK: true, Message: fmt.Sprintf("interval will change to %dm at the next sleep boundary", minutes)}
}

// handleBuy parses "TICKER SHARES [@ PRICE]". A missing price falls
// back to a live quote, matching a manual entry placed at market.
func (s *Scheduler) handleBuy(args string) cmdbus.Response {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return cmdbus.Response{OK: false, Message: "usage: buy TICKER SHARES [@ PRICE]"}
	}
	ticker := strings.ToUpper(fields[0])
	shares, err := strconv.ParseFloat(fields[1], 64)
	if err != nil || shares <= 0 {
		return cmdbus.Response{OK: false, Message: "invalid share count"}
	}

	price := 0.0
	if len(fields) >= 4 && fields[2] == "@" {
		price, err = strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return cmdbus.Response{OK: false, Message: "invalid price"}
		}
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		q, err := s.data.Quote(ctx, ticker)
		if err != nil {
			return cmdbus.Response{OK: false, Message: "quote unavailable, specify a price with @ PRICE: " + err.Error()}
		}
		price = q.Price
	}

	id, err := s.store.OpenTrade(&store.Trade{
		Ticker:        ticker,
		EntryPrice:    price,
		EntryTime:     s.now(),
		Quantity:      shares,
		DefconAtEntry: s.previousDefcon,
		Confidence:    0,
	})
	if err != nil {
		return cmdbus.Response{OK: false, Message: "failed to open position: " + err.Error()}
	}
	return cmdbus.Response{OK: true, Message: fmt.Sprintf("opened %s x%g @ %.2f", ticker, shares, price),
		Data: map[string]any{"trade_id": id}}
}

// handleSell parses "TICKER [TRADE_ID]". With no trade ID it closes the
// single open position for that ticker, matching the common case; an
// ambiguous multi-position ticker requires the explicit ID.
func (s *Scheduler) handleSell(args string) cmdbus.Response {
	fields := strings.Fields(args)
	if len(fields) < 1 {
		return cmdbus.Response{OK: false, Message: "usage: sell TICKER [TRADE_ID]"}
	}
	ticker := strings.ToUpper(fields[0])

	open, err := s.store.OpenTrades()
	if err != nil {
		return cmdbus.Response{OK: false, Message: "failed to load open trades: " + err.Error()}
	}

	var target *store.Trade
	if len(fields) >= 2 {
		id, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return cmdbus.Response{OK: false, Message: "invalid trade id"}
		}
		for i := range open {
			if open[i].ID == id {
				target = &open[i]
				break
			}
		}
	} else {
		var matches []store.Trade
		for _, t := range open {
			if t.Ticker == ticker {
				matches = append(matches, t)
			}
		}
		switch len(matches) {
		case 0:
			return cmdbus.Response{OK: false, Message: "no open position for " + ticker}
		case 1:
			target = &matches[0]
		default:
			return cmdbus.Response{OK: false, Message: fmt.Sprintf("%d open positions for %s — specify TRADE_ID", len(matches), ticker)}
		}
	}
	if target == nil {
		return cmdbus.Response{OK: false, Message: "no matching open position found"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	q, err := s.data.Quote(ctx, target.Ticker)
	if err != nil {
		return cmdbus.Response{OK: false, Message: "quote unavailable: " + err.Error()}
	}
	pnlPct := (q.Price - target.EntryPrice) / target.EntryPrice

	if err := s.store.CloseTrade(target.ID, q.Price, s.now(), "manual", pnlPct); err != nil {
		return cmdbus.Response{OK: false, Message: "failed to close position: " + err.Error()}
	}
	s.exitManager.ResetTrailingStop(target.ID)
	return cmdbus.Response{OK: true, Message: fmt.Sprintf("closed %s @ %.2f (%.2f%%)", target.Ticker, q.Price, pnlPct*100)}
}

func (s *Scheduler) handleBriefing() cmdbus.Response {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	result, err := s.briefingRunner.Run(ctx)
	if err != nil {
		return cmdbus.Response{OK: false, Message: "briefing failed: " + err.Error()}
	}
	s.briefingDate = s.now().Format("2006-01-02")
	return cmdbus.Response{OK: true, Message: "briefing generated", Data: result}
}

func (s *Scheduler) handleResearch() cmdbus.Response {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	tickers, err := s.researcher.RunCycle(ctx)
	if err != nil {
		return cmdbus.Response{OK: false, Message: "research cycle failed: " + err.Error()}
	}
	return cmdbus.Response{OK: true, Message: fmt.Sprintf("researched %d tickers", len(tickers)), Data: tickers}
}

// handleHunt has nothing to wire to: this build has no momentum-scan
// watchlist source (only the LLM-driven Researcher populates the
// watchlist), so /hunt reports as not implemented rather than aliasing
// Research under a different name.
func (s *Scheduler) handleHunt() cmdbus.Response {
	return cmdbus.Response{OK: false, Message: "hunt is not implemented in this build — use /research"}
}
