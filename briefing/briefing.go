// Package briefing implements the Daily Briefing (C14): a once-per-day
// synthesis of every signal accumulated over the trading day, produced
// by a single reasoning-tier call against a fixed JSON schema and
// persisted as one row per calendar day. Its watchlist_tomorrow field
// feeds new tickers into the Acquisition Pipeline's watchlist.
//
// Grounded on original_source/daily_briefing.py's _gather_daily_context
// (per-table aggregation into one context dict), _build_daily_prompt
// (section-headered prompt), run_daily_briefing (single reasoning-tier
// call in production mode), and _queue_acquisition_watchlist (pushing
// watchlist_tomorrow into the pending queue).
package briefing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/realmrhigh/hightrade/llmgateway"
	"github.com/realmrhigh/hightrade/log"
	"github.com/realmrhigh/hightrade/notify"
	"github.com/realmrhigh/hightrade/store"
)

const (
	// ClosedTradesWindowDays bounds how far back the "recent closed
	// trades" section of the prompt looks.
	ClosedTradesWindowDays = 7
	// TopNewsLimit caps how many of the day's news signals are detailed.
	TopNewsLimit = 5
	// TopClusterLimit caps how many congressional clusters are detailed.
	TopClusterLimit = 5
	// Source tags the watchlist entries this briefing enqueues.
	Source = "daily_briefing"
)

// Result is the fixed-schema JSON a briefing call must return.
type Result struct {
	MarketRegime            string   `json:"market_regime"`
	RegimeConfidence        float64  `json:"regime_confidence"`
	HeadlineSummary         string   `json:"headline_summary"`
	KeyThemes               []string `json:"key_themes"`
	BiggestRiskToday        string   `json:"biggest_risk_today"`
	BiggestOpportunityToday string   `json:"biggest_opportunity_today"`
	SignalQualityAssessment string   `json:"signal_quality_assessment"`
	MacroAlignment          string   `json:"macro_alignment"`
	CongressionalAlpha      string   `json:"congressional_alpha"`
	PortfolioAssessment     string   `json:"portfolio_assessment"`
	WatchlistTomorrow       []string `json:"watchlist_tomorrow"`
	EntryConditionsTomorrow string   `json:"entry_conditions_tomorrow"`
	DefconForecast          string   `json:"defcon_forecast"`
	ReasoningChain          string   `json:"reasoning_chain"`
	ModelConfidence         float64  `json:"model_confidence"`
}

// Runner produces and persists one Daily Briefing.
type Runner struct {
	store   *store.Store
	gateway *llmgateway.Gateway
	sink    *notify.Sink
	verify  func(ctx context.Context) error
	now     func() time.Time
}

// NewRunner builds a Runner. verify is invoked after a successful
// briefing — wired by the scheduler to the Verifier's RunCycle, since
// the Verifier depends on a market data source this package has no
// reason to hold. A nil verify is a no-op, useful in tests.
func NewRunner(s *store.Store, gw *llmgateway.Gateway, sink *notify.Sink, verify func(ctx context.Context) error) *Runner {
	return &Runner{store: s, gateway: gw, sink: sink, verify: verify, now: time.Now}
}

// Run gathers the day's context, calls the reasoning tier, persists the
// result, enqueues watchlist_tomorrow tickers, and triggers the Verifier.
// The caller (the scheduler) is responsible for the once-per-day gate
// via store.HasBriefingToday.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	now := r.now()
	ctxData, err := r.gatherContext(now)
	if err != nil {
		return nil, err
	}

	prompt := buildPrompt(ctxData)
	resp, err := r.gateway.Call(ctx, llmgateway.TierReasoning, llmgateway.Request{
		SystemPrompt: "You are a senior market strategist synthesizing a full day of automated monitoring data into a structured daily briefing. Be direct and specific — no hedging, no disclaimers. This is a paper trading system for learning purposes.",
		UserPrompt:   prompt,
		Metadata:     map[string]any{"date": now.UTC().Format("2006-01-02")},
	})
	if err != nil {
		return nil, err
	}

	var result Result
	if err := llmgateway.ExtractJSON(resp.RawText, &result); err != nil {
		return nil, err
	}

	if err := r.persist(now, &result); err != nil {
		log.Component("briefing").Warn().Err(err).Msg("failed to persist daily briefing")
	}

	r.queueWatchlist(&result)

	if r.sink != nil {
		r.sink.Notify(ctx, notify.KindFlashBriefing, map[string]any{
			"emoji": "📋", "label": "daily", "summary": result.HeadlineSummary,
			"defcon": ctxData.latestDefcon, "macro_score": ctxData.macro.CompositeScore,
		})
	}

	if r.verify != nil {
		if err := r.verify(ctx); err != nil {
			log.Component("briefing").Warn().Err(err).Msg("post-briefing verification pass failed")
		}
	}

	return &result, nil
}

func (r *Runner) persist(now time.Time, result *Result) error {
	watchlistJSON, _ := json.Marshal(result.WatchlistTomorrow)
	themesJSON, _ := json.Marshal(result.KeyThemes)
	fullJSON, _ := json.Marshal(result)

	_, err := r.store.InsertBriefing(&store.Briefing{
		GeneratedAt:         now.UTC(),
		Tier:                string(llmgateway.TierReasoning),
		Summary:             result.HeadlineSummary,
		WatchlistTomorrow:   string(watchlistJSON),
		MarketRegime:        result.MarketRegime,
		RegimeConfidence:    result.RegimeConfidence,
		KeyThemes:           string(themesJSON),
		BiggestRisk:         result.BiggestRiskToday,
		BiggestOpportunity:  result.BiggestOpportunityToday,
		SignalQuality:       result.SignalQualityAssessment,
		MacroAlignment:      result.MacroAlignment,
		CongressionalAlpha:  result.CongressionalAlpha,
		PortfolioAssessment: result.PortfolioAssessment,
		EntryConditions:     result.EntryConditionsTomorrow,
		DefconForecast:      result.DefconForecast,
		ReasoningChain:      result.ReasoningChain,
		ModelConfidence:     result.ModelConfidence,
		FullResponseJSON:    string(fullJSON),
	})
	return err
}

// queueWatchlist pushes every ticker in watchlist_tomorrow into the
// Acquisition Pipeline's pending queue. Failures on one ticker don't
// block the rest.
func (r *Runner) queueWatchlist(result *Result) {
	for _, ticker := range result.WatchlistTomorrow {
		ticker = strings.ToUpper(strings.TrimSpace(ticker))
		if ticker == "" {
			continue
		}
		if _, err := r.store.AddToWatchlist(ticker, Source, result.ModelConfidence); err != nil {
			log.Component("briefing").Warn().Str("ticker", ticker).Err(err).Msg("failed to queue watchlist ticker")
		}
	}
}

// dailyContext bundles everything gathered for the prompt, the Go
// equivalent of _gather_daily_context's returned dict.
type dailyContext struct {
	date          string
	news          store.NewsDaySummary
	topNews       []store.NewsArticleRef
	defconHistory []store.DefconSample
	latestDefcon  int
	macro         store.MacroSnapshot
	clusters      []store.ClusterSummary
	openTrades    []store.Trade
	closedTrades  []store.Trade
}

func (r *Runner) gatherContext(now time.Time) (*dailyContext, error) {
	news, err := r.store.NewsDaySummaryFor(now)
	if err != nil {
		return nil, err
	}
	topNews, err := r.store.TopNewsToday(now, TopNewsLimit)
	if err != nil {
		return nil, err
	}
	defconHistory, err := r.store.DefconHistoryFor(now)
	if err != nil {
		return nil, err
	}
	latestDefcon, err := r.store.LatestDefconLevel()
	if err != nil {
		return nil, err
	}
	macro, err := r.store.LatestMacroSnapshot()
	if err != nil {
		return nil, err
	}
	if macro == nil {
		macro = &store.MacroSnapshot{}
	}
	clusters, err := r.store.TopCongressionalClusters(30, TopClusterLimit)
	if err != nil {
		return nil, err
	}
	openTrades, err := r.store.OpenTrades()
	if err != nil {
		return nil, err
	}
	closedTrades, err := r.store.ClosedTradesSince(now.AddDate(0, 0, -ClosedTradesWindowDays))
	if err != nil {
		return nil, err
	}

	return &dailyContext{
		date:          now.UTC().Format("2006-01-02"),
		news:          news,
		topNews:       topNews,
		defconHistory: defconHistory,
		latestDefcon:  latestDefcon,
		macro:         *macro,
		clusters:      clusters,
		openTrades:    openTrades,
		closedTrades:  closedTrades,
	}, nil
}

const jsonSchema = `{
  "market_regime": "one of: risk-on / risk-off / neutral / transitioning",
  "regime_confidence": 0.0,
  "headline_summary": "2-3 sentence summary of today's most important market story",
  "key_themes": ["theme1", "theme2", "theme3"],
  "biggest_risk_today": "specific risk factor with evidence from data",
  "biggest_opportunity_today": "specific opportunity with evidence from data",
  "signal_quality_assessment": "assessment of whether today's signals were meaningful or noise",
  "macro_alignment": "how macro data aligns with or contradicts news signals",
  "congressional_alpha": "any actionable intelligence from political trading data",
  "portfolio_assessment": "assessment of current open positions given today's data",
  "watchlist_tomorrow": ["TICKER1", "TICKER2", "TICKER3"],
  "entry_conditions_tomorrow": "specific conditions that would trigger a buy signal",
  "defcon_forecast": "expected DEFCON level tomorrow if current trends continue",
  "reasoning_chain": "step-by-step walk through how you connected the data points",
  "model_confidence": 0.0
}`

func buildPrompt(c *dailyContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Today is %s. You have a full day of automated market monitoring data.\n\n", c.date)

	divider := "═══════════════════════════════════════════════════════════\n"

	b.WriteString(divider)
	fmt.Fprintf(&b, "SECTION 1: NEWS INTELLIGENCE (%d articles today)\n", c.news.ArticleCount)
	b.WriteString(divider)
	fmt.Fprintf(&b, "Average relevance: %.1f (peak %.1f) | Breaking events: %d\n\n",
		c.news.AvgRelevance, c.news.PeakRelevance, c.news.BreakingCount)
	if len(c.topNews) > 0 {
		b.WriteString("Top signals today:\n")
		for _, n := range c.topNews {
			fmt.Fprintf(&b, "  [%s] score=%.0f %s: %s\n", n.PublishedAt.Format("15:04"), n.RelevanceScore, n.Source, n.Title)
		}
	} else {
		b.WriteString("  No news signals recorded today\n")
	}

	b.WriteString("\n" + divider)
	b.WriteString("SECTION 2: DEFCON TIMELINE\n")
	b.WriteString(divider)
	if len(c.defconHistory) > 0 {
		for _, d := range c.defconHistory {
			fmt.Fprintf(&b, "  %s — DEFCON %d, composite %.1f\n", d.RecordedAt.Format("15:04"), d.Level, d.Composite)
		}
	} else {
		b.WriteString("  No monitoring data recorded today\n")
	}
	fmt.Fprintf(&b, "Current DEFCON: %d\n", c.latestDefcon)

	b.WriteString("\n" + divider)
	b.WriteString("SECTION 3: MACROECONOMIC ENVIRONMENT\n")
	b.WriteString(divider)
	fmt.Fprintf(&b, "  Composite macro score: %.0f/100 | DEFCON modifier: %+.1f\n", c.macro.CompositeScore, c.macro.DefconModifier)

	b.WriteString("\n" + divider)
	b.WriteString("SECTION 4: CONGRESSIONAL TRADING SIGNALS\n")
	b.WriteString(divider)
	if len(c.clusters) > 0 {
		for _, cl := range c.clusters {
			fmt.Fprintf(&b, "  $%s: %d buys, strength=%.0f, bipartisan=%v, total=$%.0f\n",
				cl.Ticker, cl.BuyCount, cl.Strength, cl.Bipartisan, cl.TotalAmount)
		}
	} else {
		b.WriteString("  No significant cluster signals detected today\n")
	}

	b.WriteString("\n" + divider)
	b.WriteString("SECTION 5: PORTFOLIO STATUS\n")
	b.WriteString(divider)
	b.WriteString("Open positions:\n")
	if len(c.openTrades) > 0 {
		for _, t := range c.openTrades {
			fmt.Fprintf(&b, "  %s: %.0f shares @ $%.2f — entered %s\n", t.Ticker, t.Quantity, t.EntryPrice, t.EntryTime.Format("2006-01-02"))
		}
	} else {
		b.WriteString("  No open positions\n")
	}
	b.WriteString("Recent closed trades:\n")
	if len(c.closedTrades) > 0 {
		for _, t := range c.closedTrades {
			pct := 0.0
			if t.ProfitLossPct.Valid {
				pct = t.ProfitLossPct.Float64
			}
			reason := "n/a"
			if t.ExitReason.Valid {
				reason = t.ExitReason.String
			}
			fmt.Fprintf(&b, "  %s exited via %s: %+.1f%%\n", t.Ticker, reason, pct)
		}
	} else {
		b.WriteString("  No closed trades this week\n")
	}

	b.WriteString("\n" + divider)
	b.WriteString("YOUR TASK\n")
	b.WriteString(divider)
	b.WriteString("Synthesize all of the above into a structured daily briefing. ")
	b.WriteString("You MUST populate every field. regime_confidence and model_confidence must be actual numbers 0.0-1.0.\n\n")
	b.WriteString("Respond in this exact JSON format:\n")
	b.WriteString(jsonSchema)

	return b.String()
}
