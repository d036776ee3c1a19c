// Package acquisition is the Acquisition Pipeline (C9): three independent
// substages — Researcher, Analyst, Verifier — that walk a ticker from a
// pending watchlist entry to an actively-watched conditional entry the
// broker can trigger on.
//
// Grounded on original_source/acquisition_researcher.py,
// acquisition_analyst.py, and acquisition_verifier.py: the same
// gather-then-analyse-then-reverify staging, translated from direct
// sqlite3 access into calls against store.Store, and from the Gemini
// client into llmgateway.Gateway.
package acquisition

import (
	"context"
	"time"

	"github.com/realmrhigh/hightrade/apperr"
	"github.com/realmrhigh/hightrade/log"
	"github.com/realmrhigh/hightrade/market"
	"github.com/realmrhigh/hightrade/store"
)

const (
	// StaleDays is how long a library_ready research row is trusted
	// before the Researcher re-gathers it fresh.
	StaleDays = 3
	// MaxTickersPerCycle caps how many pending tickers one Researcher
	// cycle processes, a safety valve against hammering upstream APIs.
	MaxTickersPerCycle = 10
	// CongressionalLookbackDays bounds how far back the internal
	// congressional signal lookup searches.
	CongressionalLookbackDays = 30
)

// Researcher gathers fundamentals, filings, and internal signals for
// pending watchlist tickers and writes a Research Library row for each.
type Researcher struct {
	store *store.Store
	data  market.DataSource
	now   func() time.Time
}

func NewResearcher(s *store.Store, data market.DataSource) *Researcher {
	return &Researcher{store: s, data: data, now: time.Now}
}

// RunCycle expires stale research, then researches up to
// MaxTickersPerCycle pending watchlist tickers. Returns the tickers
// successfully researched this cycle.
func (r *Researcher) RunCycle(ctx context.Context) ([]string, error) {
	if err := r.store.ExpireStaleResearch(StaleDays); err != nil {
		return nil, err
	}

	pending, err := r.store.PendingWatchlist(MaxTickersPerCycle)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		log.Component("acquisition.researcher").Debug().Msg("no pending tickers to research")
		return nil, nil
	}

	var researched []string
	for _, entry := range pending {
		if err := r.researchTicker(ctx, entry); err != nil {
			log.Component("acquisition.researcher").Warn().
				Str("ticker", entry.Ticker).Err(err).Msg("research failed")
			_ = r.store.TransitionWatchlistStatus(entry.ID, store.WatchlistResearchError, "research failed: "+err.Error())
			continue
		}
		_ = r.store.TransitionWatchlistStatus(entry.ID, store.WatchlistResearched, "researched "+r.now().UTC().Format("2006-01-02"))
		researched = append(researched, entry.Ticker)
	}
	return researched, nil
}

// researchTicker gathers every data point for one ticker and upserts the
// Research Library row. Partial data (a missing fundamental, a failed
// filings lookup) does not fail the ticker — it downgrades the row's
// status to "partial" and records what was missing.
func (r *Researcher) researchTicker(ctx context.Context, entry store.WatchlistEntry) error {
	ticker := entry.Ticker
	now := r.now().UTC()
	dateStr := now.Format("2006-01-02")

	row := &store.ResearchRow{
		Ticker:           ticker,
		WatchlistEntryID: nullInt(entry.ID),
		ResearchDate:     dateStr,
		Status:           store.ResearchLibraryReady,
		CreatedAt:        now,
	}

	var errNotes []string

	quote, err := r.data.Quote(ctx, ticker)
	if err != nil {
		errNotes = append(errNotes, "quote: "+err.Error())
	} else {
		row.CurrentPrice = nullFloat(quote.Price)
	}

	bars, err := r.data.Bars(ctx, ticker, "1Day", now.AddDate(-1, 0, 0), now)
	if err != nil {
		errNotes = append(errNotes, "bars: "+err.Error())
	} else {
		applyPriceHistory(row, bars)
	}

	fund, err := r.data.Fundamentals(ctx, ticker)
	if err != nil {
		errNotes = append(errNotes, "fundamentals: "+err.Error())
	} else {
		row.MarketCap = nullFloat(fund.MarketCapUSD)
		row.PERatio = nullFloat(fund.PERatio)
	}

	target, err := r.data.AnalystTarget(ctx, ticker)
	if err != nil {
		errNotes = append(errNotes, "analyst_target: "+err.Error())
	} else {
		row.AnalystTargetMean = nullFloat(target.TargetMean)
		row.AnalystBuyCount = nullInt(int64(target.NumAnalysts))
	}

	filings, err := r.data.Filings(ctx, ticker)
	if err != nil {
		errNotes = append(errNotes, "filings: "+err.Error())
	} else if len(filings) > 0 {
		row.LatestFilingType = nullString(filings[0].Form)
		row.LatestFilingDate = nullString(filings[0].FiledAt.Format("2006-01-02"))
	}

	strength, buyCount, err := r.store.CongressionalSignalForTicker(ticker, CongressionalLookbackDays)
	if err != nil {
		errNotes = append(errNotes, "congressional: "+err.Error())
	} else {
		row.CongressionalSignalStrength = strength
		row.CongressionalBuyCount = buyCount
	}

	if macroScore, err := r.store.LatestMacroScore(); err == nil {
		row.MacroScore = macroScore
	}
	if regime, err := r.store.LatestMarketRegime(); err == nil {
		row.MarketRegime = nullString(regime)
	}

	if len(errNotes) > 0 {
		row.Status = store.ResearchPartial
		row.ErrorNotes = nullString(joinNotes(errNotes))
	}

	if err := r.store.UpsertResearch(row); err != nil {
		return apperr.Transient("acquisition.researchTicker", err)
	}
	return nil
}

func applyPriceHistory(row *store.ResearchRow, bars []market.Bar) {
	if len(bars) == 0 {
		return
	}
	latest := bars[len(bars)-1]
	row.CurrentPrice = nullFloat(latest.Close)

	high, low := latest.High, latest.Low
	for _, b := range bars {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}
	row.Price52WHigh = nullFloat(high)
	row.Price52WLow = nullFloat(low)

	if len(bars) >= 6 {
		weekAgo := bars[len(bars)-6].Close
		if weekAgo != 0 {
			row.Price1WChangePct = nullFloat((latest.Close - weekAgo) / weekAgo * 100)
		}
	}
	monthAgo := bars[0].Close
	if len(bars) >= 22 {
		monthAgo = bars[len(bars)-22].Close
	}
	if monthAgo != 0 {
		row.Price1MChangePct = nullFloat((latest.Close - monthAgo) / monthAgo * 100)
	}
}

func joinNotes(notes []string) string {
	out := notes[0]
	for _, n := range notes[1:] {
		out += "; " + n
	}
	return out
}
