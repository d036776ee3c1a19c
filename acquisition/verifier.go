package acquisition

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/realmrhigh/hightrade/llmgateway"
	"github.com/realmrhigh/hightrade/log"
	"github.com/realmrhigh/hightrade/market"
	"github.com/realmrhigh/hightrade/store"
)

const (
	// VerifierNewsLookbackDays bounds how far back the recent-news check
	// for a conditional's ticker searches.
	VerifierNewsLookbackDays = 2
	// VerifierNewsLimit caps how many articles are folded into one prompt.
	VerifierNewsLimit = 3
)

// VerifierVerdict is the fixed-schema JSON a verification call must return.
type VerifierVerdict struct {
	Verdict              string  `json:"verdict"`
	ConfidenceAdjustment float64 `json:"confidence_adjustment"`
	FlagReason           string  `json:"flag_reason"`
	InvalidationReason   string  `json:"invalidation_reason"`
	UpdatedThesis        string  `json:"updated_thesis"`
	PriceStillValid      bool    `json:"price_still_valid"`
	Reasoning            string  `json:"reasoning"`
}

// VerificationSummary tallies one cycle's outcomes across every active
// conditional entry reviewed.
type VerificationSummary struct {
	Confirmed   int
	Flagged     int
	Invalidated int
	Errors      int
}

// Verifier reverifies every active Conditional Entry daily — a cheap,
// fast-tier check that a thesis is still intact, grounded on the daily
// flash-reverification pass run once the main briefing has completed.
type Verifier struct {
	store   *store.Store
	data    market.DataSource
	gateway *llmgateway.Gateway
	now     func() time.Time
}

func NewVerifier(s *store.Store, data market.DataSource, gw *llmgateway.Gateway) *Verifier {
	return &Verifier{store: s, data: data, gateway: gw, now: time.Now}
}

// RunCycle verifies every active conditional entry, confirming, flagging,
// or invalidating it and returning a tally of outcomes.
func (v *Verifier) RunCycle(ctx context.Context) (VerificationSummary, error) {
	var summary VerificationSummary

	actives, err := v.store.ActiveConditionalEntries()
	if err != nil {
		return summary, err
	}
	if len(actives) == 0 {
		log.Component("acquisition.verifier").Debug().Msg("no active conditionals to verify")
		return summary, nil
	}

	macroScore, _ := v.store.LatestMacroScore()

	for _, cond := range actives {
		verdict, err := v.verifyOne(ctx, cond, macroScore)
		if err != nil {
			log.Component("acquisition.verifier").Warn().
				Str("ticker", cond.Ticker).Err(err).Msg("verification failed")
			summary.Errors++
			continue
		}

		switch strings.ToLower(strings.TrimSpace(verdict.Verdict)) {
		case "invalidate":
			reason := verdict.InvalidationReason
			if reason == "" {
				reason = verdict.Reasoning
			}
			if err := v.store.InvalidateConditionalEntry(cond.ID, reason); err != nil {
				summary.Errors++
				continue
			}
			if cond.WatchlistEntryID.Valid {
				_ = v.store.TransitionWatchlistStatus(cond.WatchlistEntryID.Int64, store.WatchlistInvalidated, reason)
			}
			summary.Invalidated++
			log.Component("acquisition.verifier").Info().Str("ticker", cond.Ticker).Str("reason", reason).Msg("conditional invalidated")

		case "flag":
			reason := verdict.FlagReason
			if reason == "" {
				reason = verdict.Reasoning
			}
			note := fmt.Sprintf("[FLAGGED %s] %s", v.now().UTC().Format("2006-01-02"), reason)
			if err := v.store.FlagConditionalEntry(cond.ID, note); err != nil {
				summary.Errors++
				continue
			}
			summary.Flagged++
			log.Component("acquisition.verifier").Warn().Str("ticker", cond.Ticker).Str("reason", reason).Msg("conditional flagged")

		default: // confirm, or any unrecognized verdict defaults to confirm
			if err := v.store.ConfirmConditionalEntry(cond.ID); err != nil {
				summary.Errors++
				continue
			}
			summary.Confirmed++
		}
	}

	log.Component("acquisition.verifier").Info().
		Int("confirmed", summary.Confirmed).Int("flagged", summary.Flagged).
		Int("invalidated", summary.Invalidated).Int("errors", summary.Errors).
		Msg("verification cycle complete")
	return summary, nil
}

func (v *Verifier) verifyOne(ctx context.Context, cond store.ConditionalEntry, macroScore sql.NullFloat64) (VerifierVerdict, error) {
	var currentPrice sql.NullFloat64
	if q, err := v.data.Quote(ctx, cond.Ticker); err == nil {
		currentPrice = sql.NullFloat64{Float64: q.Price, Valid: true}
	}

	news, err := v.store.RecentNewsForTicker(cond.Ticker, VerifierNewsLookbackDays, VerifierNewsLimit)
	if err != nil {
		news = nil
	}

	resp, err := v.gateway.Call(ctx, llmgateway.TierFast, llmgateway.Request{
		SystemPrompt: "You are a trading system verifier. Be decisive and terse.",
		UserPrompt:   buildVerifierPrompt(cond, currentPrice, news, macroScore, v.now()),
		Metadata:     map[string]any{"ticker": cond.Ticker},
	})
	if err != nil {
		return VerifierVerdict{}, err
	}

	var verdict VerifierVerdict
	if err := llmgateway.ExtractJSON(resp.RawText, &verdict); err != nil {
		// A parse failure defaults to confirm rather than failing the
		// conditional outright — mirrors the cheap-call fallback: don't
		// let a flaky Flash response kill a thesis.
		return VerifierVerdict{Verdict: "confirm", Reasoning: "parse_failed"}, nil
	}
	if verdict.Verdict == "" {
		verdict.Verdict = "confirm"
	}
	return verdict, nil
}

func buildVerifierPrompt(cond store.ConditionalEntry, currentPrice sql.NullFloat64, news []store.NewsArticleRef, macroScore sql.NullFloat64, now time.Time) string {
	var entryConds, invConds []string
	if cond.EntryConditions.Valid {
		_ = json.Unmarshal([]byte(cond.EntryConditions.String), &entryConds)
	}
	if cond.InvalidationConditions.Valid {
		_ = json.Unmarshal([]byte(cond.InvalidationConditions.String), &invConds)
	}

	priceStr := "N/A"
	distanceStr := ""
	if currentPrice.Valid {
		priceStr = fmt.Sprintf("$%.2f", currentPrice.Float64)
		if cond.EntryPriceTarget.Valid && cond.EntryPriceTarget.Float64 != 0 {
			distance := (currentPrice.Float64 - cond.EntryPriceTarget.Float64) / cond.EntryPriceTarget.Float64 * 100
			distanceStr = fmt.Sprintf("%+.1f%% from entry target", distance)
		}
	}

	newsText := "  • No recent mentions"
	if len(news) > 0 {
		var lines []string
		for _, n := range news {
			lines = append(lines, fmt.Sprintf("  • [%s] score=%.0f %s: %s",
				n.PublishedAt.Format("2006-01-02 15:04"), n.RelevanceScore, n.Source, n.Title))
		}
		newsText = strings.Join(lines, "\n")
	}

	condText := "  • N/A"
	if len(entryConds) > 0 {
		condText = "  • " + strings.Join(firstN(entryConds, 3), "\n  • ")
	}
	invText := "  • N/A"
	if len(invConds) > 0 {
		invText = "  • " + strings.Join(firstN(invConds, 2), "\n  • ")
	}

	macroText := ""
	if macroScore.Valid {
		macroText = fmt.Sprintf("  Macro composite score: %.1f\n", macroScore.Float64)
	}

	today := now.UTC().Format("2006-01-02")
	return fmt.Sprintf(
		"You are reverifying a conditional entry on %s set on %s. Today is %s.\n"+
			"Decide if this conditional is still VALID.\n\n"+
			"CONDITIONAL SUMMARY\n"+
			"  Thesis: %s\n"+
			"  Entry target: %s  |  Stop: %s  |  TP1: %s\n"+
			"  Original confidence: %.2f\n\n"+
			"ENTRY CONDITIONS\n%s\n\n"+
			"INVALIDATION TRIGGERS\n%s\n\n"+
			"CURRENT STATE (%s)\n"+
			"  Current price: %s %s\n"+
			"%s\n"+
			"RECENT NEWS MENTIONS\n%s\n\n"+
			"VERDICT OPTIONS:\n"+
			"  confirm    — thesis intact, nothing has changed materially\n"+
			"  flag       — a concern exists, analyst should review, don't kill it yet\n"+
			"  invalidate — a core invalidation condition has triggered or the thesis has clearly failed\n\n"+
			"Respond with the exact JSON schema fields: verdict, confidence_adjustment, flag_reason, "+
			"invalidation_reason, updated_thesis, price_still_valid, reasoning.",
		cond.Ticker, cond.DateCreated, today,
		stringOrNA(cond.ThesisSummary),
		floatOrNA(cond.EntryPriceTarget), floatOrNA(cond.StopLoss), floatOrNA(cond.TakeProfit1),
		cond.ResearchConfidence,
		condText, invText,
		today, priceStr, distanceStr,
		macroText, newsText,
	)
}
