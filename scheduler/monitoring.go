package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/realmrhigh/hightrade/broker"
	"github.com/realmrhigh/hightrade/config"
	"github.com/realmrhigh/hightrade/defcon"
	"github.com/realmrhigh/hightrade/llmgateway"
	"github.com/realmrhigh/hightrade/log"
	"github.com/realmrhigh/hightrade/macro"
	"github.com/realmrhigh/hightrade/market"
	"github.com/realmrhigh/hightrade/metrics"
	"github.com/realmrhigh/hightrade/news"
	"github.com/realmrhigh/hightrade/notify"
	"github.com/realmrhigh/hightrade/political"
	"github.com/realmrhigh/hightrade/store"
)

// runMonitoringCycle implements §4.12 step 2's C5 → C6 → C7 (cadence
// gated) → C8 → persist pipeline and returns the inputs the rest of
// runCycle needs: the news score (for the cycle summary), the new
// DEFCON level, and the raw composite/drop inputs that produced it.
func (s *Scheduler) runMonitoringCycle(ctx context.Context) (news.Score, int, float64, float64) {
	openTrades, err := s.store.OpenTrades()
	if err != nil {
		log.Component("scheduler").Warn().Err(err).Msg("failed to load open trades for quote refresh")
	}
	s.quotes = s.refreshQuotes(ctx, openTrades)

	// The news LLM gate needs to know whether DEFCON moved "since last
	// cycle" before the news pipeline itself has run — computed here from
	// quantitative signals alone (no news override, no reasoning-tier
	// override yet), since those two hard overrides are exactly what this
	// cycle's news analysis might produce.
	raw := s.defconFetcher.FetchRawSignals(ctx)
	composite, dropPct := defcon.CompositeScore(raw)
	quantLevel := defcon.Compute(defcon.Inputs{
		CompositeScore: composite,
		MarketDropPct:  dropPct,
		MacroModifier:  s.lastMacroResult.DefconModifier,
	})
	defconChanged := s.previousDefcon != 0 && quantLevel != s.previousDefcon

	newsScore, reasoning := s.runNewsCycle(ctx, defconChanged)

	if s.lastMacroFetch.IsZero() || s.now().Sub(s.lastMacroFetch) >= macroFetchCadence {
		s.runMacroCycle(ctx)
		s.lastMacroFetch = s.now()
	}
	if s.lastPoliticalFetch.IsZero() || s.now().Sub(s.lastPoliticalFetch) >= politicalFetchCadence {
		s.runPoliticalCycle(ctx)
		s.lastPoliticalFetch = s.now()
	}

	level := s.finalizeDefconCycle(ctx, raw, composite, dropPct, newsScore, reasoning)
	return newsScore, level, composite, dropPct
}

// refreshQuotes pulls one live quote per distinct open-position ticker,
// the Market Data Adapter's (C5) role in the monitoring cycle: the exit
// evaluation stage and the cycle summary's unrealized P&L both need a
// fresh price, and a failed quote degrades that ticker out of this
// cycle's exit check rather than failing the whole cycle.
func (s *Scheduler) refreshQuotes(ctx context.Context, open []store.Trade) map[string]*market.Quote {
	quotes := make(map[string]*market.Quote, len(open))
	for _, t := range open {
		if _, ok := quotes[t.Ticker]; ok {
			continue
		}
		q, err := s.data.Quote(ctx, t.Ticker)
		if err != nil {
			log.Component("scheduler").Warn().Str("ticker", t.Ticker).Err(err).Msg("quote unavailable this cycle")
			continue
		}
		quotes[t.Ticker] = q
	}
	return quotes
}

// tierLabel names a SourceTier for persistence; news.Article carries no
// provider name of its own, only its tier.
func tierLabel(t news.SourceTier) string {
	switch t {
	case news.TierOne:
		return "wire"
	case news.TierTwo:
		return "financial_press"
	case news.TierThree:
		return "aggregator"
	default:
		return "other"
	}
}

// newsAnalysis is the fixed-schema JSON a news LLM tier call must return,
// the LLM Analysis Record entity's parsed-fields attribute.
type newsAnalysis struct {
	Coherence            string  `json:"coherence"`
	HiddenRisks          string  `json:"hidden_risks"`
	RecommendedAction    string  `json:"recommended_action"`
	Reasoning            string  `json:"reasoning"`
	EnhancedConfidence   float64 `json:"enhanced_confidence"`
	ConfidenceAdjustment float64 `json:"confidence_adjustment"`
}

// triggerKindFor classifies this batch the way a News Signal's LLM
// Analysis Record trigger_kind attribute requires: breaking news always
// wins, a DEFCON move or an already-elevated score counts as "elevated",
// anything else is a routine scheduled pass.
func triggerKindFor(score news.Score, defconChanged bool) string {
	switch {
	case score.IsBreaking:
		return "breaking"
	case defconChanged || score.Total >= 40:
		return "elevated"
	default:
		return "scheduled"
	}
}

// estimateTokens gives a rough token count from text length — no bound
// provider in this build returns real usage accounting, so this is the
// same order-of-magnitude approximation (~4 chars/token) used elsewhere
// in the ecosystem when a provider's response omits it.
func estimateTokens(s string) int {
	return len(s) / 4
}

func buildNewsAnalysisPrompt(score news.Score, articles []news.Article) string {
	var b strings.Builder
	fmt.Fprintf(&b, "News batch: %d articles, composite score %.1f/100, dominant category %s.\n",
		len(articles), score.Total, score.DominantCategory)
	fmt.Fprintf(&b, "Breaking count: %d. Sentiment net: %.1f. %s\n\n", score.BreakingCount, score.SentimentNet, news.SentimentSummary(articles))
	for i, a := range topArticleTitles(articles, 8) {
		fmt.Fprintf(&b, "%d. %s\n", i+1, a)
	}
	b.WriteString("\nAssess this batch for a paper-trading DEFCON engine. Respond with exact JSON fields: ")
	b.WriteString("coherence (does the story hang together or look like noise), hidden_risks, recommended_action, ")
	b.WriteString("reasoning, enhanced_confidence (0-100, your confidence this batch truly warrants elevated risk), ")
	b.WriteString("confidence_adjustment (-100..100, how much to adjust the automated news score by).")
	return b.String()
}

// callNewsTier issues one LLM gateway call for a news batch and parses its
// structured response, recording a token-accounting estimate alongside the
// parsed fields.
func (s *Scheduler) callNewsTier(ctx context.Context, tier llmgateway.Tier, score news.Score, articles []news.Article) (*newsAnalysis, int, int, error) {
	prompt := buildNewsAnalysisPrompt(score, articles)
	resp, err := s.gateway.Call(ctx, tier, llmgateway.Request{
		SystemPrompt: "You are a risk analyst reviewing a batch of financial news for a paper-trading system. Be concise and specific.",
		UserPrompt:   prompt,
		Metadata:     map[string]any{"dominant_category": string(score.DominantCategory)},
	})
	if err != nil {
		return nil, 0, 0, err
	}
	var out newsAnalysis
	if err := llmgateway.ExtractJSON(resp.RawText, &out); err != nil {
		return nil, 0, 0, err
	}
	return &out, estimateTokens(prompt), estimateTokens(resp.RawText), nil
}

// runNewsCycle is the News Pipeline (C6) stage: concurrent fetch,
// keyword classification, composite scoring, persistence of every
// surviving article and of the batch's own News Signal row, and — when
// §4.6's gates say so — the fast/reasoning-tier LLM analysis passes. A
// reasoning-tier result is returned so the DEFCON engine can apply its
// hard overrides in the same cycle that produced it.
func (s *Scheduler) runNewsCycle(ctx context.Context, defconChanged bool) (news.Score, *newsAnalysis) {
	articles := news.FetchAll(ctx, s.newsSources, s.limiter)
	articles = news.Classify(articles, s.now())
	score := news.ComputeScore(articles)

	for _, a := range articles {
		tier := tierLabel(a.SourceTier)
		if err := s.store.InsertNewsArticle(a.URL, a.Title, tier, a.Confidence,
			time.Unix(a.PublishedAt, 0), s.now(), a.IsBreaking); err != nil {
			log.Component("scheduler").Warn().Str("url", a.URL).Err(err).Msg("failed to persist news article")
			continue
		}
		metrics.RecordNewsArticle(tier)
	}

	fresh := news.NewArticleURLs(articles, s.priorArticleURLs, s.now().Sub(s.priorBatchAt))
	if len(fresh) > 0 || score.IsBreaking {
		s.sink.Notify(ctx, notify.KindNewsUpdate, map[string]any{
			"breaking_count": score.BreakingCount,
			"news_score":     score.Total,
			"crisis_type":    string(score.DominantCategory),
			"sentiment":      score.SentimentNet,
			"article_count":  len(articles),
			"top_articles":   topArticleTitles(articles, 3),
		})
	}

	signalID, err := s.store.InsertNewsSignal(store.NewsSignal{
		RecordedAt:               s.now(),
		NewsScore:                score.Total,
		DominantCategory:         string(score.DominantCategory),
		SentimentSummary:         news.SentimentSummary(articles),
		SentimentNet:             score.SentimentNet,
		Concentration:            score.Concentration,
		UrgencyPremium:           score.UrgencyPremium,
		SourceWeightedConfidence: score.SourceWeightedConfidence,
		KeywordSpecificity:       score.KeywordSpecificity,
		KeywordHistogram:         news.KeywordHistogram(articles),
		ArticleCount:             len(articles),
		BreakingCount:            score.BreakingCount,
		IsBreaking:               score.IsBreaking,
		Articles:                 newsSignalArticleRefs(articles),
	})
	if err != nil {
		log.Component("scheduler").Warn().Err(err).Msg("failed to persist news signal")
	}

	var reasoningResult *newsAnalysis
	if s.gateway != nil && signalID != 0 {
		trigger := triggerKindFor(score, defconChanged)
		fastGate := news.ShouldRunFastTier(len(fresh), score.IsBreaking, defconChanged)
		reasoningGate := news.ShouldRunReasoningTier(fastGate, score.Total, score.BreakingCount, defconChanged)

		if fastGate {
			if analysis, inTok, outTok, err := s.callNewsTier(ctx, llmgateway.TierFast, score, articles); err != nil {
				log.Component("scheduler").Warn().Err(err).Msg("fast-tier news analysis failed")
			} else {
				s.persistNewsAnalysis(signalID, llmgateway.TierFast, trigger, analysis, inTok, outTok)
				if err := s.store.UpdateNewsSignalFastTierSummary(signalID, analysis.Coherence); err != nil {
					log.Component("scheduler").Warn().Err(err).Msg("failed to attach fast-tier summary")
				}
			}
		}

		if reasoningGate {
			if analysis, inTok, outTok, err := s.callNewsTier(ctx, llmgateway.TierReasoning, score, articles); err != nil {
				log.Component("scheduler").Warn().Err(err).Msg("reasoning-tier news analysis failed")
			} else {
				s.persistNewsAnalysis(signalID, llmgateway.TierReasoning, trigger, analysis, inTok, outTok)
				reasoningResult = analysis
			}
		}
	}

	s.priorArticleURLs = make(map[string]bool, len(articles))
	for _, a := range articles {
		s.priorArticleURLs[a.URL] = true
	}
	s.priorBatchAt = s.now()

	return score, reasoningResult
}

func (s *Scheduler) persistNewsAnalysis(signalID int64, tier llmgateway.Tier, trigger string, analysis *newsAnalysis, inTok, outTok int) {
	if err := s.store.InsertLLMAnalysisRecord(store.LLMAnalysisRecord{
		NewsSignalID:         signalID,
		ModelTier:            string(tier),
		TriggerKind:          trigger,
		Coherence:            analysis.Coherence,
		HiddenRisks:          analysis.HiddenRisks,
		RecommendedAction:    analysis.RecommendedAction,
		Reasoning:            analysis.Reasoning,
		EnhancedConfidence:   sql.NullFloat64{Float64: analysis.EnhancedConfidence, Valid: true},
		ConfidenceAdjustment: sql.NullFloat64{Float64: analysis.ConfidenceAdjustment, Valid: true},
		InputTokens:          inTok,
		OutputTokens:         outTok,
		RecordedAt:           s.now(),
	}); err != nil {
		log.Component("scheduler").Warn().Str("tier", string(tier)).Err(err).Msg("failed to persist LLM analysis record")
	}
}

func newsSignalArticleRefs(articles []news.Article) []store.NewsSignalArticleRef {
	out := make([]store.NewsSignalArticleRef, 0, len(articles))
	for _, a := range articles {
		out = append(out, store.NewsSignalArticleRef{
			URL:        a.URL,
			Title:      a.Title,
			Source:     tierLabel(a.SourceTier),
			Confidence: a.Confidence,
			IsBreaking: a.IsBreaking,
		})
	}
	return out
}

func topArticleTitles(articles []news.Article, n int) []string {
	var out []string
	for i, a := range articles {
		if i >= n {
			break
		}
		out = append(out, a.Title)
	}
	return out
}

// runMacroCycle is the macro half of the Macro & Political Collectors
// (C7): pull the tracked FRED series, compute the composite score and
// DEFCON modifier band, and cache the result for this cycle's DEFCON
// computation and the next cadence window's worth of cycles.
func (s *Scheduler) runMacroCycle(ctx context.Context) {
	indicators := s.macroFetcher.FetchIndicators(ctx)
	result := macro.Compute(indicators)
	if err := s.store.RecordMacroSnapshot(result.CompositeScore, result.DefconModifier, s.now()); err != nil {
		log.Component("scheduler").Warn().Err(err).Msg("failed to persist macro snapshot")
	}
	s.lastMacroResult = result

	bearish, bullish := 0, 0
	for _, sig := range result.Signals {
		switch sig.Severity {
		case "bearish":
			bearish++
		case "bullish":
			bullish++
		}
	}
	s.sink.Notify(ctx, notify.KindMacroUpdate, map[string]any{
		"macro_score":    result.CompositeScore,
		"defcon_modifier": result.DefconModifier,
		"bearish_count":  bearish,
		"bullish_count":  bullish,
		"yield_curve":    indicators.YieldCurveSpread,
		"fed_funds":      indicators.FedFunds3MChange,
		"unemployment":   indicators.UnemploymentRate,
	})
}

// runPoliticalCycle is the political half of C7: pull disclosures,
// filter to material trades, persist each one, and detect same-ticker
// cluster buys for notification.
func (s *Scheduler) runPoliticalCycle(ctx context.Context) {
	trades := s.politicalFetcher.FetchAll(ctx, political.ClusterWindowDays)
	trades = political.FilterByMinSize(trades, political.MinTradeSize)

	for _, t := range trades {
		relevant := len(political.CommitteeRelevance(t.Ticker)) > 0
		if err := s.store.InsertCongressionalTrade(t.Ticker, t.Politician, t.Party, t.Direction,
			t.AmountMidpoint, t.DisclosureDate, t.DisclosureDate, relevant); err != nil {
			log.Component("scheduler").Warn().Str("ticker", t.Ticker).Err(err).Msg("failed to persist congressional trade")
		}
	}

	clusters := political.DetectClusterBuys(trades, political.ClusterWindowDays, political.ClusterMinCount, s.now())
	for _, c := range clusters {
		if c.SignalStrength < 50 {
			continue
		}
		s.sink.Notify(ctx, notify.KindCongressionalCluster, map[string]any{
			"signal_strength":     c.SignalStrength,
			"bipartisan":          c.Bipartisan,
			"committee_relevance": c.CommitteeRelevance,
			"politicians":         c.Politicians,
			"ticker":              c.Ticker,
			"buy_count":           c.BuyCount,
			"window_days":         c.WindowDays,
			"total_amount":        c.TotalEstimatedAmount,
		})
	}
}

// finalizeDefconCycle is the Composite DEFCON Engine (C8) stage's second
// half: fold the cached macro modifier, the news pipeline's breaking-news
// override, and — when this cycle produced one — the reasoning tier's
// hard overrides into a final level, then persist the Signal Snapshot
// with its raw as-of-cycle inputs. FlashForecast is always zero in this
// build — no flash-forecast component is wired (see DESIGN.md).
func (s *Scheduler) finalizeDefconCycle(ctx context.Context, raw defcon.RawSignals, composite, dropPct float64, newsScore news.Score, reasoning *newsAnalysis) (level int) {
	overrideNews, recommendedDefcon := newsScore.CheckDefconOverride()
	inputs := defcon.Inputs{
		CompositeScore:        composite,
		MarketDropPct:         dropPct,
		MacroModifier:         s.lastMacroResult.DefconModifier,
		FlashForecast:         0,
		NewsBreakingOverride:  overrideNews,
		NewsRecommendedDEFCON: recommendedDefcon,
	}
	if reasoning != nil {
		inputs.HasReasoningAnalysis = true
		inputs.EnhancedConfidence = reasoning.EnhancedConfidence
		inputs.ConfidenceAdjustment = reasoning.ConfidenceAdjustment
	}
	level = defcon.Compute(inputs)

	if err := s.store.RecordDefconLevel(level, composite, dropPct, raw.TenYearYield, raw.VIX, newsScore.Total, s.now()); err != nil {
		log.Component("scheduler").Warn().Err(err).Msg("failed to persist defcon level")
	}
	metrics.UpdateSignalMetrics(level, newsScore.Total)
	return level
}

// runExitsAndEntries implements §4.12 step 4: exit evaluation always
// runs, every cycle, regardless of hold or broker mode — a position can
// exist from a manual /buy even while the broker is disabled, and a
// stop loss must still fire. Entry triggering is gated on broker mode:
// disabled means alert-only, so EntryEngine.RunCycle never opens a
// position in that mode.
func (s *Scheduler) runExitsAndEntries(ctx context.Context, defconLevel int) {
	openTrades, err := s.store.OpenTrades()
	if err != nil {
		log.Component("scheduler").Warn().Err(err).Msg("failed to load open trades for exit evaluation")
		return
	}

	for _, t := range openTrades {
		quote, ok := s.quotes[t.Ticker]
		if !ok {
			continue
		}
		sig := s.exitManager.EvaluatePosition(positionInputFrom(t), quote.Price, defconLevel)
		if sig == nil {
			continue
		}
		if err := s.store.CloseTrade(sig.TradeID, sig.ExitPrice, s.now(), string(sig.PersistedReason), sig.ProfitLossPct); err != nil {
			log.Component("scheduler").Warn().Str("ticker", sig.Ticker).Err(err).Msg("failed to close exited trade")
			continue
		}
		s.exitManager.ResetTrailingStop(sig.TradeID)
		metrics.RecordTrade(string(sig.PersistedReason), sig.ProfitLossPct > 0)
		metrics.ClearPositionMetrics(sig.Ticker)
		s.sink.Notify(ctx, notify.KindTradeExit, map[string]any{
			"ticker":     sig.Ticker,
			"reason":     string(sig.PersistedReason),
			"pnl_pct":    sig.ProfitLossPct * 100,
			"entry_time": t.EntryTime,
			"exit_time":  s.now(),
		})
	}

	if s.cfg.BrokerMode == config.BrokerDisabled {
		return
	}

	available := s.availableCash(openTrades)
	triggered, err := s.entryEngine.RunCycle(ctx, available)
	if err != nil {
		log.Component("scheduler").Warn().Err(err).Msg("entry cycle failed")
		return
	}
	for _, tr := range triggered {
		s.sink.Notify(ctx, notify.KindTradeEntry, map[string]any{
			"ticker":        tr.Ticker,
			"position_size": tr.Shares * tr.EntryPrice,
			"defcon":        defconLevel,
		})
	}
}

// availableCash derives deployable cash from the paper account's fixed
// starting capital minus the cost basis of every open position — the
// scheduler's own bookkeeping, since neither config nor store tracks
// account equity directly.
func (s *Scheduler) availableCash(open []store.Trade) float64 {
	var deployed float64
	for _, t := range open {
		deployed += t.EntryPrice * t.Quantity
	}
	cash := TotalCapitalDefault - deployed
	if cash < 0 {
		cash = 0
	}
	return cash
}

// maybeRunDailyBriefing implements §4.12 step 5: once the configured
// time-of-day window is crossed and no briefing has fired yet today,
// run the Researcher and Analyst with a spacing pause, then the
// Briefing Runner (which itself invokes the Verifier on success).
func (s *Scheduler) maybeRunDailyBriefing(ctx context.Context) {
	now := s.now()
	today := now.Format("2006-01-02")
	if s.briefingDate == today {
		return
	}
	if now.Hour() < s.briefingHour || (now.Hour() == s.briefingHour && now.Minute() < s.briefingMinute) {
		return
	}

	has, err := s.store.HasBriefingToday(now)
	if err != nil {
		log.Component("scheduler").Warn().Err(err).Msg("failed to check briefing gate")
		return
	}
	if has {
		s.briefingDate = today
		return
	}

	if _, err := s.researcher.RunCycle(ctx); err != nil {
		log.Component("scheduler").Warn().Err(err).Msg("pre-briefing researcher cycle failed")
	}
	sleepFor(ctx, briefingStageSpacing)
	if _, err := s.analyst.RunCycle(ctx); err != nil {
		log.Component("scheduler").Warn().Err(err).Msg("pre-briefing analyst cycle failed")
	}

	if _, err := s.briefingRunner.Run(ctx); err != nil {
		log.Component("scheduler").Warn().Err(err).Msg("daily briefing failed")
	}
	s.briefingDate = today
}

// emitCycleSummary implements §4.12 step 6: a structured summary posted
// to the Notification Sink (C13) covering account state, win rate, and
// every open position's live unrealized P&L.
func (s *Scheduler) emitCycleSummary(ctx context.Context, defconLevel int, newsScore news.Score) {
	open, err := s.store.OpenTrades()
	if err != nil {
		log.Component("scheduler").Warn().Err(err).Msg("failed to load open trades for cycle summary")
		open = nil
	}
	closed, err := s.store.ClosedTradesSince(s.now().AddDate(0, 0, -1))
	if err != nil {
		closed = nil
	}

	var deployed, unrealizedPnL, realizedPnL float64
	wins := 0
	positions := make([]map[string]any, 0, len(open))
	for _, t := range open {
		deployed += t.EntryPrice * t.Quantity
		price := t.EntryPrice
		if q, ok := s.quotes[t.Ticker]; ok {
			price = q.Price
		}
		pnlDollars := (price - t.EntryPrice) * t.Quantity
		pnlPct := (price - t.EntryPrice) / t.EntryPrice
		unrealizedPnL += pnlDollars
		positions = append(positions, map[string]any{
			"ticker":                  t.Ticker,
			"shares":                  t.Quantity,
			"entry_price":             t.EntryPrice,
			"current_price":           price,
			"unrealized_pnl_dollars":  pnlDollars,
			"unrealized_pnl_percent":  pnlPct * 100,
		})
		metrics.UpdatePositionMetrics(t.Ticker, pnlDollars, s.now().Sub(t.EntryTime).Seconds())
	}
	metrics.SetOpenPositionsCount(len(open))
	for _, t := range closed {
		if t.ProfitLossPct.Valid {
			realizedPnL += t.ProfitLossPct.Float64 * t.EntryPrice * t.Quantity
			if t.ProfitLossPct.Float64 > 0 {
				wins++
			}
		}
	}
	winRate := 0.0
	if len(closed) > 0 {
		winRate = float64(wins) / float64(len(closed))
	}

	accountValue := TotalCapitalDefault + realizedPnL + unrealizedPnL
	totalPnLPct := (accountValue - TotalCapitalDefault) / TotalCapitalDefault
	cashAvailable := s.availableCash(open)

	metrics.UpdateAccountMetrics(accountValue, cashAvailable, realizedPnL, unrealizedPnL)
	metrics.WinRate.Set(winRate)

	s.sink.Notify(ctx, notify.KindCycleSummary, map[string]any{
		"cycle":            s.cycleCount,
		"defcon_level":     defconLevel,
		"signal_score":     newsScore.Total,
		"account_value":    accountValue,
		"cash_available":   cashAvailable,
		"deployed":         deployed,
		"realized_pnl":     realizedPnL,
		"total_pnl_pct":    totalPnLPct * 100,
		"win_rate":         winRate * 100,
		"open_trades":      len(open),
		"closed_trades":    len(closed),
		"open_positions":   positions,
	})
}

func positionInputFrom(t store.Trade) broker.PositionInput {
	return broker.PositionInput{
		TradeID:       t.ID,
		Ticker:        t.Ticker,
		EntryPrice:    t.EntryPrice,
		EntryTime:     t.EntryTime,
		DefconAtEntry: t.DefconAtEntry,
	}
}

// sleepFor pauses for d or until ctx is cancelled, whichever comes
// first — used for the researcher/analyst spacing pause in the daily
// briefing gate so an estop during that pause doesn't block shutdown.
func sleepFor(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
