package acquisition

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/realmrhigh/hightrade/apperr"
	"github.com/realmrhigh/hightrade/llmgateway"
	"github.com/realmrhigh/hightrade/log"
	"github.com/realmrhigh/hightrade/store"
)

const (
	// ConfidenceThreshold is the minimum research_confidence required to
	// promote a plan to an active Conditional Entry.
	ConfidenceThreshold = 0.70
	// MaxPositionSizePct hard-caps any single trade at 20% of capital.
	MaxPositionSizePct = 0.20
	// ReadyPerCycle caps how many library rows one Analyst cycle reviews.
	ReadyPerCycle = 5
)

// watchTagDefinitions is injected into every analyst prompt so the model
// chooses exactly one setup type; it shapes entry, sizing, and conditions
// downstream the same way it does in the originating prompt template.
const watchTagDefinitions = `WATCH TAGS — assign exactly one:
  breakout        price testing/clearing resistance; entry above it, tight stop.
  mean-reversion  overextended pullback to support; entry at support, wider stop.
  momentum        established trend, adding on a healthy pullback.
  defensive-hedge risk-off asset held during macro uncertainty; small size.
  macro-hedge     inverse/volatility instrument; strict VIX/DEFCON gated entry.
  earnings-play   setup driven by an upcoming earnings catalyst; short horizon.
  rebound         post-stop-loss recovery attempt; reduced size, exhaustion signal required.`

// AnalystPlan is the fixed-schema JSON an analyst call must return.
type AnalystPlan struct {
	ShouldEnter            bool     `json:"should_enter"`
	ResearchConfidence     float64  `json:"research_confidence"`
	WatchTag               string   `json:"watch_tag"`
	WatchTagRationale      string   `json:"watch_tag_rationale"`
	EntryPriceTarget       float64  `json:"entry_price_target"`
	EntryPriceRationale    string   `json:"entry_price_rationale"`
	StopLoss               float64  `json:"stop_loss"`
	StopLossRationale      string   `json:"stop_loss_rationale"`
	TakeProfit1            float64  `json:"take_profit_1"`
	TakeProfit2            float64  `json:"take_profit_2"`
	TakeProfitRationale    string   `json:"take_profit_rationale"`
	PositionSizePct        float64  `json:"position_size_pct"`
	PositionSizeRationale  string   `json:"position_size_rationale"`
	TimeHorizonDays        int      `json:"time_horizon_days"`
	EntryConditions        []string `json:"entry_conditions"`
	InvalidationConditions []string `json:"invalidation_conditions"`
	ThesisSummary          string   `json:"thesis_summary"`
	KeyRisks               []string `json:"key_risks"`
	MacroAlignment         string   `json:"macro_alignment"`
	ReasoningChain         string   `json:"reasoning_chain"`
	DataGaps               []string `json:"data_gaps"`
}

// Analyst reads a researched ticker and decides whether to set a
// conditional entry order on it.
type Analyst struct {
	store   *store.Store
	gateway *llmgateway.Gateway
	now     func() time.Time
}

func NewAnalyst(s *store.Store, gw *llmgateway.Gateway) *Analyst {
	return &Analyst{store: s, gateway: gw, now: time.Now}
}

// RunCycle analyzes up to ReadyPerCycle library_ready/partial rows.
func (a *Analyst) RunCycle(ctx context.Context) ([]AnalystPlan, error) {
	ready, err := a.store.ResearchReadyForAnalysis(ReadyPerCycle)
	if err != nil {
		return nil, err
	}
	if len(ready) == 0 {
		log.Component("acquisition.analyst").Debug().Msg("no research ready for analysis")
		return nil, nil
	}

	var plans []AnalystPlan
	for _, research := range ready {
		plan, err := a.analyzeTicker(ctx, research)
		if err != nil {
			log.Component("acquisition.analyst").Warn().
				Str("ticker", research.Ticker).Err(err).Msg("analysis failed")
			_ = a.store.SetResearchStatus(research.ID, store.ResearchAnalystError, err.Error())
			continue
		}
		plans = append(plans, *plan)
	}
	return plans, nil
}

func (a *Analyst) analyzeTicker(ctx context.Context, research store.ResearchRow) (*AnalystPlan, error) {
	tier := llmgateway.TierReasoning
	if a.gateway.CheckQuota(llmgateway.TierReasoning) == llmgateway.QuotaBlock {
		log.Component("acquisition.analyst").Warn().
			Str("ticker", research.Ticker).Msg("reasoning tier quota near limit, downgrading to balanced")
		tier = llmgateway.TierBalanced
	}

	resp, err := a.gateway.Call(ctx, tier, llmgateway.Request{
		SystemPrompt: "You are a senior acquisition analyst for a paper-trading system. Be precise and specific — no vague answers.",
		UserPrompt:   buildAnalystPrompt(research),
		Metadata:     map[string]any{"ticker": research.Ticker},
	})
	if err != nil {
		return nil, err
	}

	var plan AnalystPlan
	if err := llmgateway.ExtractJSON(resp.RawText, &plan); err != nil {
		return nil, err
	}

	dateStr := a.now().UTC().Format("2006-01-02")

	if plan.ShouldEnter && plan.ResearchConfidence >= ConfidenceThreshold {
		if err := a.promote(research, plan, dateStr); err != nil {
			return nil, err
		}
	} else {
		a.pass(research, plan)
	}

	_ = a.store.SetResearchStatus(research.ID, store.ResearchAnalysed, "")
	return &plan, nil
}

func (a *Analyst) promote(research store.ResearchRow, plan AnalystPlan, dateStr string) error {
	sizePct := plan.PositionSizePct
	if sizePct > MaxPositionSizePct {
		sizePct = MaxPositionSizePct
	}

	entryConds, _ := json.Marshal(plan.EntryConditions)
	invConds, _ := json.Marshal(plan.InvalidationConditions)

	entry := &store.ConditionalEntry{
		Ticker:                 research.Ticker,
		DateCreated:            dateStr,
		WatchTag:               plan.WatchTag,
		EntryPriceTarget:       nullFloat(plan.EntryPriceTarget),
		StopLoss:               nullFloat(plan.StopLoss),
		TakeProfit1:            nullFloat(plan.TakeProfit1),
		TakeProfit2:            nullFloat(plan.TakeProfit2),
		PositionSizePct:        sizePct,
		TimeHorizonDays:        nullInt(int64(plan.TimeHorizonDays)),
		EntryConditions:        nullString(string(entryConds)),
		InvalidationConditions: nullString(string(invConds)),
		ThesisSummary:          nullString(plan.ThesisSummary),
		ResearchConfidence:     plan.ResearchConfidence,
	}
	if _, err := a.store.InsertConditionalEntry(entry); err != nil {
		return apperr.Transient("acquisition.Analyst.promote", err)
	}

	if !research.WatchlistEntryID.Valid {
		return nil
	}
	thesis := thesisText(plan)
	return a.store.TransitionWatchlistStatus(research.WatchlistEntryID.Int64, store.WatchlistConditionalSet, thesis)
}

func (a *Analyst) pass(research store.ResearchRow, plan AnalystPlan) {
	reason := fmt.Sprintf("confidence %.2f below threshold %.2f", plan.ResearchConfidence, ConfidenceThreshold)
	if plan.ShouldEnter && plan.ResearchConfidence >= ConfidenceThreshold {
		reason = "analyst_pass"
	}
	passText := fmt.Sprintf("PASS (%.0f%% conf)", plan.ResearchConfidence*100)
	if plan.ThesisSummary != "" {
		passText += " — " + plan.ThesisSummary
	}
	if len(plan.DataGaps) > 0 {
		passText += " ◆ Re-entry if: " + strings.Join(firstN(plan.DataGaps, 2), "; ")
	} else {
		passText += " ◆ Re-entry if: insufficient data / low confidence"
	}
	if len(plan.KeyRisks) > 0 {
		passText += " ◆ Risks: " + strings.Join(firstN(plan.KeyRisks, 2), ", ")
	}

	log.Component("acquisition.analyst").Info().Str("ticker", research.Ticker).Str("reason", reason).Msg("analyst pass")
	if !research.WatchlistEntryID.Valid {
		return
	}
	_ = a.store.TransitionWatchlistStatus(research.WatchlistEntryID.Int64, store.WatchlistAnalystPass, truncate(passText, 500))
}

func thesisText(plan AnalystPlan) string {
	text := plan.ThesisSummary
	if plan.EntryPriceTarget != 0 {
		text += fmt.Sprintf(" ◆ Entry: $%.2f", plan.EntryPriceTarget)
	}
	if plan.StopLoss != 0 {
		text += fmt.Sprintf(" / Stop: $%.2f", plan.StopLoss)
	}
	if len(plan.EntryConditions) > 0 {
		text += " ◆ " + strings.Join(firstN(plan.EntryConditions, 2), " | ")
	}
	return truncate(text, 500)
}

func firstN(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func buildAnalystPrompt(r store.ResearchRow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ticker: %s (research date %s)\n\n", r.Ticker, r.ResearchDate)

	b.WriteString("PRICE & TECHNICALS\n")
	fmt.Fprintf(&b, "  Current price: %s\n", floatOrNA(r.CurrentPrice))
	fmt.Fprintf(&b, "  1-week change: %s%%\n", floatOrNA(r.Price1WChangePct))
	fmt.Fprintf(&b, "  1-month change: %s%%\n", floatOrNA(r.Price1MChangePct))
	fmt.Fprintf(&b, "  52w high/low: %s / %s\n", floatOrNA(r.Price52WHigh), floatOrNA(r.Price52WLow))
	fmt.Fprintf(&b, "  Market regime: %s\n\n", stringOrNA(r.MarketRegime))

	b.WriteString("FUNDAMENTALS\n")
	fmt.Fprintf(&b, "  Market cap: %s\n", floatOrNA(r.MarketCap))
	fmt.Fprintf(&b, "  P/E (trailing): %s  forward: %s\n", floatOrNA(r.PERatio), floatOrNA(r.ForwardPE))
	fmt.Fprintf(&b, "  Price/Book: %s  Debt/Equity: %s\n", floatOrNA(r.PriceToBook), floatOrNA(r.DebtToEquity))
	fmt.Fprintf(&b, "  Profit margin: %s  Revenue growth YoY: %s\n\n", floatOrNA(r.ProfitMargin), floatOrNA(r.RevenueGrowthYoY))

	b.WriteString("ANALYST CONSENSUS\n")
	fmt.Fprintf(&b, "  Target mean: %s\n", floatOrNA(r.AnalystTargetMean))
	fmt.Fprintf(&b, "  Ratings: %d buy / %d hold / %d sell\n\n", r.AnalystBuyCount.Int64, r.AnalystHoldCount.Int64, r.AnalystSellCount.Int64)

	b.WriteString("SEC FILINGS\n")
	fmt.Fprintf(&b, "  Latest filing: %s on %s\n\n", stringOrNA(r.LatestFilingType), stringOrNA(r.LatestFilingDate))

	b.WriteString("INTERNAL INTELLIGENCE SIGNALS\n")
	fmt.Fprintf(&b, "  News mentions (30d): %d, avg sentiment %s\n", r.NewsMentionCount, floatOrNA(r.NewsSentimentAvg))
	fmt.Fprintf(&b, "  Congressional signal strength: %.0f, buy count %d\n", r.CongressionalSignalStrength, r.CongressionalBuyCount)
	fmt.Fprintf(&b, "  Macro composite score: %s\n\n", floatOrNA(r.MacroScore))

	b.WriteString(watchTagDefinitions)
	b.WriteString("\n\nDecide whether to set a conditional entry order. Set research_confidence 0.0-1.0; ")
	fmt.Fprintf(&b, "only set should_enter=true if research_confidence >= %.2f. Position size 0.0-%.2f of available cash.\n", ConfidenceThreshold, MaxPositionSizePct)
	b.WriteString("Respond with the exact JSON schema fields: should_enter, research_confidence, watch_tag, ")
	b.WriteString("watch_tag_rationale, entry_price_target, entry_price_rationale, stop_loss, stop_loss_rationale, ")
	b.WriteString("take_profit_1, take_profit_2, take_profit_rationale, position_size_pct, position_size_rationale, ")
	b.WriteString("time_horizon_days, entry_conditions, invalidation_conditions, thesis_summary, key_risks, ")
	b.WriteString("macro_alignment, reasoning_chain, data_gaps.")

	return b.String()
}

func floatOrNA(v sql.NullFloat64) string {
	if !v.Valid {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", v.Float64)
}

func stringOrNA(v sql.NullString) string {
	if !v.Valid {
		return "N/A"
	}
	return v.String
}
