// Entry triggering checks every active Conditional Entry against the
// live tape and, on a touch, opens a Trade Record — grounded on
// broker_agent.py's pre-trade gate idiom but driven by the
// watch-tag/entry-price-target model the Acquisition Pipeline produces
// rather than that script's crisis-driven decision flow.
package broker

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/realmrhigh/hightrade/apperr"
	"github.com/realmrhigh/hightrade/llmgateway"
	"github.com/realmrhigh/hightrade/log"
	"github.com/realmrhigh/hightrade/market"
	"github.com/realmrhigh/hightrade/store"
)

// EntryConfig bounds position sizing for the trigger check.
type EntryConfig struct {
	MaxPositionSizePct float64
}

// DefaultEntryConfig caps any single triggered position at 20% of
// available cash, matching the Analyst's own promotion cap.
func DefaultEntryConfig() EntryConfig {
	return EntryConfig{MaxPositionSizePct: 0.20}
}

// TriggerResult is one conditional that touched its entry target and was
// opened as a trade.
type TriggerResult struct {
	ConditionalID int64
	TradeID       int64
	Ticker        string
	EntryPrice    float64
	Shares        float64
}

// EntryEngine evaluates active conditionals against live quotes and
// opens positions off the ones that trigger.
type EntryEngine struct {
	store   *store.Store
	data    market.DataSource
	gateway *llmgateway.Gateway
	cfg     EntryConfig
	now     func() time.Time
}

func NewEntryEngine(s *store.Store, data market.DataSource, gw *llmgateway.Gateway, cfg EntryConfig) *EntryEngine {
	return &EntryEngine{store: s, data: data, gateway: gw, cfg: cfg, now: time.Now}
}

// watchTagSide reports which direction of price movement through the
// entry target counts as a touch: "above" for setups that enter on
// strength breaking through a level, "below" for setups that enter on a
// pullback down to one.
func watchTagSide(tag string) string {
	switch tag {
	case "breakout", "momentum", "earnings-play":
		return "above"
	default: // mean-reversion, defensive-hedge, macro-hedge, rebound
		return "below"
	}
}

// entryTriggered reports whether currentPrice has touched target under
// the side implied by tag.
func entryTriggered(tag string, currentPrice, target float64) bool {
	if target <= 0 {
		return false
	}
	if watchTagSide(tag) == "above" {
		return currentPrice >= target
	}
	return currentPrice <= target
}

// RunCycle checks every active conditional entry against the current
// quote and opens a trade for each one that has triggered.
func (e *EntryEngine) RunCycle(ctx context.Context, availableCash float64) ([]TriggerResult, error) {
	conditionals, err := e.store.ActiveConditionalEntries()
	if err != nil {
		return nil, err
	}
	if len(conditionals) == 0 {
		return nil, nil
	}

	defcon, err := e.store.LatestDefconLevel()
	if err != nil {
		return nil, err
	}

	var results []TriggerResult
	for _, cond := range conditionals {
		if !cond.EntryPriceTarget.Valid {
			continue
		}
		quote, err := e.data.Quote(ctx, cond.Ticker)
		if err != nil {
			log.Component("broker.entry").Warn().Str("ticker", cond.Ticker).Err(err).Msg("quote unavailable, skipping trigger check")
			continue
		}
		if !entryTriggered(cond.WatchTag, quote.Price, cond.EntryPriceTarget.Float64) {
			continue
		}

		if !e.gate(ctx, cond, quote.Price) {
			log.Component("broker.entry").Info().Str("ticker", cond.Ticker).Msg("pre-trade gate declined entry")
			continue
		}

		result, err := e.openPosition(cond, quote.Price, defcon, availableCash)
		if err != nil {
			log.Component("broker.entry").Warn().Str("ticker", cond.Ticker).Err(err).Msg("failed to open triggered position")
			continue
		}
		results = append(results, *result)
	}
	return results, nil
}

// gate consults the reasoning tier on whether current conditions still
// support entering. Any LLM failure — quota exhaustion, a malformed
// reply, a transport error — fails open: the entry proceeds rather than
// stalling on an unreachable model.
func (e *EntryEngine) gate(ctx context.Context, cond store.ConditionalEntry, currentPrice float64) bool {
	if e.gateway == nil {
		return true
	}
	resp, err := e.gateway.Call(ctx, llmgateway.TierReasoning, llmgateway.Request{
		SystemPrompt: "You are a pre-trade risk gate for a paper-trading system. Answer only YES or NO.",
		UserPrompt: fmt.Sprintf(
			"Conditional entry for %s (watch tag %s) has just touched its entry target of $%.2f at a current price of $%.2f. "+
				"Thesis: %s. Stop loss: $%.2f. Should this entry still proceed? Reply YES or NO.",
			cond.Ticker, cond.WatchTag, cond.EntryPriceTarget.Float64, currentPrice,
			nullStringOrNA(cond.ThesisSummary), cond.StopLoss.Float64),
		Metadata: map[string]any{"ticker": cond.Ticker, "gate": "pre_trade"},
	})
	if err != nil {
		log.Component("broker.entry").Warn().Str("ticker", cond.Ticker).Err(err).Msg("pre-trade gate call failed, failing open")
		return true
	}
	return !containsNo(resp.RawText)
}

func (e *EntryEngine) openPosition(cond store.ConditionalEntry, entryPrice float64, defcon int, availableCash float64) (*TriggerResult, error) {
	sizePct := cond.ResearchConfidence * cond.PositionSizePct
	if sizePct > e.cfg.MaxPositionSizePct {
		sizePct = e.cfg.MaxPositionSizePct
	}
	positionDollars := sizePct * availableCash
	shares := math.Floor(positionDollars / entryPrice)
	if shares <= 0 {
		return nil, apperr.Validation("broker.EntryEngine.openPosition",
			fmt.Errorf("position size %.2f at price %.2f rounds to zero shares", positionDollars, entryPrice))
	}

	tradeID, err := e.store.OpenTrade(&store.Trade{
		Ticker:           cond.Ticker,
		EntryPrice:       entryPrice,
		EntryTime:        e.now().UTC(),
		Quantity:         shares,
		DefconAtEntry:    defcon,
		Confidence:       cond.ResearchConfidence,
		WatchlistEntryID: cond.WatchlistEntryID,
	})
	if err != nil {
		return nil, err
	}
	if err := e.store.TriggerConditionalEntry(cond.ID); err != nil {
		return nil, err
	}
	if cond.WatchlistEntryID.Valid {
		_ = e.store.TransitionWatchlistStatus(cond.WatchlistEntryID.Int64, store.WatchlistTriggered,
			fmt.Sprintf("triggered at $%.2f, %.0f shares", entryPrice, shares))
	}

	return &TriggerResult{
		ConditionalID: cond.ID,
		TradeID:       tradeID,
		Ticker:        cond.Ticker,
		EntryPrice:    entryPrice,
		Shares:        shares,
	}, nil
}

func nullStringOrNA(s sql.NullString) string {
	if !s.Valid || s.String == "" {
		return "n/a"
	}
	return s.String
}

// containsNo reads the gate's YES/NO reply by its first word; anything
// else, including a malformed reply, reads as an affirmative, consistent
// with the gate's fail-open posture.
func containsNo(raw string) bool {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(raw)))
	if len(fields) == 0 {
		return false
	}
	return strings.HasPrefix(fields[0], "no")
}
