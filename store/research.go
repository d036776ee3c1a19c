package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/realmrhigh/hightrade/apperr"
)

// ResearchStatus is the closed status-transition enum a research library
// row moves through on its way from freshly gathered to analyst-reviewed.
type ResearchStatus string

const (
	ResearchLibraryReady ResearchStatus = "library_ready"
	ResearchPartial      ResearchStatus = "partial"
	ResearchAnalysed     ResearchStatus = "analysed"
	ResearchAnalystPass  ResearchStatus = "analyst_pass"
	ResearchAnalystError ResearchStatus = "analyst_error"
	ResearchExpired      ResearchStatus = "expired"
)

// ResearchRow mirrors one ticker's gathered fundamentals, filings, and
// internal signals, keyed by (ticker, research_date).
type ResearchRow struct {
	ID                          int64
	Ticker                      string
	WatchlistEntryID            sql.NullInt64
	ResearchDate                string
	CurrentPrice                sql.NullFloat64
	Price1WChangePct            sql.NullFloat64
	Price1MChangePct            sql.NullFloat64
	Price52WHigh                sql.NullFloat64
	Price52WLow                 sql.NullFloat64
	MarketCap                   sql.NullFloat64
	PERatio                     sql.NullFloat64
	ForwardPE                   sql.NullFloat64
	PriceToBook                 sql.NullFloat64
	ProfitMargin                sql.NullFloat64
	RevenueGrowthYoY            sql.NullFloat64
	DebtToEquity                sql.NullFloat64
	AnalystTargetMean           sql.NullFloat64
	AnalystBuyCount             sql.NullInt64
	AnalystHoldCount            sql.NullInt64
	AnalystSellCount            sql.NullInt64
	LatestFilingType            sql.NullString
	LatestFilingDate            sql.NullString
	NewsMentionCount            int
	NewsSentimentAvg            sql.NullFloat64
	CongressionalSignalStrength float64
	CongressionalBuyCount       int
	MacroScore                  sql.NullFloat64
	MarketRegime                sql.NullString
	Status                      ResearchStatus
	ErrorNotes                  sql.NullString
	CreatedAt                   time.Time
}

var researchColumns = `id, ticker, watchlist_entry_id, research_date, current_price, price_1w_change_pct,
	price_1m_change_pct, price_52w_high, price_52w_low, market_cap, pe_ratio,
	forward_pe, price_to_book, profit_margin, revenue_growth_yoy, debt_to_equity,
	analyst_target_mean, analyst_buy_count, analyst_hold_count, analyst_sell_count,
	latest_filing_type, latest_filing_date, news_mention_count, news_sentiment_avg,
	congressional_signal_strength, congressional_buy_count, macro_score, market_regime,
	status, error_notes, created_at`

func scanResearchRow(scan func(dest ...any) error) (ResearchRow, error) {
	var r ResearchRow
	err := scan(&r.ID, &r.Ticker, &r.WatchlistEntryID, &r.ResearchDate, &r.CurrentPrice, &r.Price1WChangePct,
		&r.Price1MChangePct, &r.Price52WHigh, &r.Price52WLow, &r.MarketCap, &r.PERatio,
		&r.ForwardPE, &r.PriceToBook, &r.ProfitMargin, &r.RevenueGrowthYoY, &r.DebtToEquity,
		&r.AnalystTargetMean, &r.AnalystBuyCount, &r.AnalystHoldCount, &r.AnalystSellCount,
		&r.LatestFilingType, &r.LatestFilingDate, &r.NewsMentionCount, &r.NewsSentimentAvg,
		&r.CongressionalSignalStrength, &r.CongressionalBuyCount, &r.MacroScore, &r.MarketRegime,
		&r.Status, &r.ErrorNotes, &r.CreatedAt)
	return r, err
}

// UpsertResearch writes (or overwrites) the row for (ticker, research_date),
// matching the original's INSERT OR REPLACE upsert keyed on that pair.
func (s *Store) UpsertResearch(r *ResearchRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO research_library (
			ticker, watchlist_entry_id, research_date, current_price, price_1w_change_pct, price_1m_change_pct,
			price_52w_high, price_52w_low, market_cap, pe_ratio, forward_pe, price_to_book,
			profit_margin, revenue_growth_yoy, debt_to_equity, analyst_target_mean,
			analyst_buy_count, analyst_hold_count, analyst_sell_count,
			latest_filing_type, latest_filing_date, news_mention_count, news_sentiment_avg,
			congressional_signal_strength, congressional_buy_count, macro_score, market_regime,
			status, error_notes, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(ticker, research_date) DO UPDATE SET
			watchlist_entry_id=excluded.watchlist_entry_id,
			current_price=excluded.current_price, price_1w_change_pct=excluded.price_1w_change_pct,
			price_1m_change_pct=excluded.price_1m_change_pct, price_52w_high=excluded.price_52w_high,
			price_52w_low=excluded.price_52w_low, market_cap=excluded.market_cap, pe_ratio=excluded.pe_ratio,
			forward_pe=excluded.forward_pe, price_to_book=excluded.price_to_book,
			profit_margin=excluded.profit_margin, revenue_growth_yoy=excluded.revenue_growth_yoy,
			debt_to_equity=excluded.debt_to_equity, analyst_target_mean=excluded.analyst_target_mean,
			analyst_buy_count=excluded.analyst_buy_count, analyst_hold_count=excluded.analyst_hold_count,
			analyst_sell_count=excluded.analyst_sell_count, latest_filing_type=excluded.latest_filing_type,
			latest_filing_date=excluded.latest_filing_date, news_mention_count=excluded.news_mention_count,
			news_sentiment_avg=excluded.news_sentiment_avg,
			congressional_signal_strength=excluded.congressional_signal_strength,
			congressional_buy_count=excluded.congressional_buy_count, macro_score=excluded.macro_score,
			market_regime=excluded.market_regime, status=excluded.status, error_notes=excluded.error_notes,
			created_at=excluded.created_at`,
		r.Ticker, r.WatchlistEntryID, r.ResearchDate, r.CurrentPrice, r.Price1WChangePct, r.Price1MChangePct,
		r.Price52WHigh, r.Price52WLow, r.MarketCap, r.PERatio, r.ForwardPE, r.PriceToBook,
		r.ProfitMargin, r.RevenueGrowthYoY, r.DebtToEquity, r.AnalystTargetMean,
		r.AnalystBuyCount, r.AnalystHoldCount, r.AnalystSellCount,
		r.LatestFilingType, r.LatestFilingDate, r.NewsMentionCount, r.NewsSentimentAvg,
		r.CongressionalSignalStrength, r.CongressionalBuyCount, r.MacroScore, r.MarketRegime,
		r.Status, r.ErrorNotes, r.CreatedAt)
	if err != nil {
		return apperr.Transient("store.UpsertResearch", err)
	}
	return nil
}

// ExpireStaleResearch marks library_ready rows older than staleDays as
// expired, so the researcher re-runs fresh on them next cycle.
func (s *Store) ExpireStaleResearch(staleDays int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := nowUTC().AddDate(0, 0, -staleDays).Format("2006-01-02")
	_, err := s.db.Exec(`
		UPDATE research_library SET status = ?
		WHERE research_date < ? AND status = ?`, ResearchExpired, cutoff, ResearchLibraryReady)
	if err != nil {
		return apperr.Transient("store.ExpireStaleResearch", err)
	}
	return nil
}

// ResearchReadyForAnalysis returns library_ready/partial rows FIFO by
// created_at, capped at limit — the Analyst's input set.
func (s *Store) ResearchReadyForAnalysis(limit int) ([]ResearchRow, error) {
	rows, err := s.db.Query(`
		SELECT `+researchColumns+`
		FROM research_library
		WHERE status IN (?, ?)
		ORDER BY created_at ASC LIMIT ?`, ResearchLibraryReady, ResearchPartial, limit)
	if err != nil {
		return nil, apperr.Transient("store.ResearchReadyForAnalysis", err)
	}
	defer rows.Close()

	var out []ResearchRow
	for rows.Next() {
		r, err := scanResearchRow(rows.Scan)
		if err != nil {
			return nil, apperr.Transient("store.ResearchReadyForAnalysis.scan", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SetResearchStatus transitions a research row's status, optionally
// recording an error note.
func (s *Store) SetResearchStatus(id int64, status ResearchStatus, errorNotes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var note sql.NullString
	if errorNotes != "" {
		note = sql.NullString{String: errorNotes, Valid: true}
	}
	_, err := s.db.Exec(`UPDATE research_library SET status = ?, error_notes = ? WHERE id = ?`,
		status, note, id)
	if err != nil {
		return apperr.Transient("store.SetResearchStatus", err)
	}
	return nil
}

// ConditionalStatus is the closed status-transition enum a conditional
// entry moves through from analyst-set to broker-resolved.
type ConditionalStatus string

const (
	ConditionalActive      ConditionalStatus = "active"
	ConditionalTriggered   ConditionalStatus = "triggered"
	ConditionalInvalidated ConditionalStatus = "invalidated"
	ConditionalExpired     ConditionalStatus = "expired"
)

// ConditionalEntry mirrors the Conditional Entry produced by the Analyst
// and watched by the Verifier and the broker's entry-trigger check.
type ConditionalEntry struct {
	ID                     int64
	Ticker                 string
	WatchlistEntryID       sql.NullInt64
	DateCreated            string
	WatchTag               string
	EntryPriceTarget       sql.NullFloat64
	StopLoss               sql.NullFloat64
	TakeProfit1            sql.NullFloat64
	TakeProfit2            sql.NullFloat64
	PositionSizePct        float64
	TimeHorizonDays        sql.NullInt64
	EntryConditions        sql.NullString // JSON array
	InvalidationConditions sql.NullString // JSON array
	ThesisSummary          sql.NullString
	ResearchConfidence     float64
	Status                 ConditionalStatus
	LastVerified           sql.NullTime
	VerificationCount      int
	VerificationNotes      sql.NullString
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// InsertConditionalEntry supersedes any prior active conditional on the
// same ticker (marking it invalidated) before inserting the new one,
// matching the original's "supersede before insert" sequencing.
func (s *Store) InsertConditionalEntry(c *ConditionalEntry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowUTC()
	tx, err := s.db.Begin()
	if err != nil {
		return 0, apperr.Transient("store.InsertConditionalEntry.begin", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		UPDATE conditional_entries
		SET status = ?, verification_notes = ?, updated_at = ?
		WHERE ticker = ? AND status = ?`,
		ConditionalInvalidated, "superseded by fresh analyst run", now, c.Ticker, ConditionalActive); err != nil {
		return 0, apperr.Transient("store.InsertConditionalEntry.supersede", err)
	}

	res, err := tx.Exec(`
		INSERT INTO conditional_entries (
			ticker, watchlist_entry_id, date_created, watch_tag,
			entry_price_target, stop_loss, take_profit_1, take_profit_2,
			position_size_pct, time_horizon_days, entry_conditions, invalidation_conditions,
			thesis_summary, research_confidence, status, verification_count, created_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,0,?,?)`,
		c.Ticker, c.WatchlistEntryID, c.DateCreated, c.WatchTag,
		c.EntryPriceTarget, c.StopLoss, c.TakeProfit1, c.TakeProfit2,
		c.PositionSizePct, c.TimeHorizonDays, c.EntryConditions, c.InvalidationConditions,
		c.ThesisSummary, c.ResearchConfidence, ConditionalActive, now, now)
	if err != nil {
		return 0, apperr.Transient("store.InsertConditionalEntry.insert", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, apperr.Transient("store.InsertConditionalEntry.id", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, apperr.Transient("store.InsertConditionalEntry.commit", err)
	}
	return id, nil
}

// ActiveConditionalEntries returns every conditional the Verifier and the
// broker's entry-trigger check must consider this cycle.
func (s *Store) ActiveConditionalEntries() ([]ConditionalEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, ticker, watchlist_entry_id, date_created, watch_tag,
			entry_price_target, stop_loss, take_profit_1, take_profit_2,
			position_size_pct, time_horizon_days, entry_conditions, invalidation_conditions,
			thesis_summary, research_confidence, status, last_verified, verification_count,
			verification_notes, created_at, updated_at
		FROM conditional_entries WHERE status = ? ORDER BY research_confidence DESC`, ConditionalActive)
	if err != nil {
		return nil, apperr.Transient("store.ActiveConditionalEntries", err)
	}
	defer rows.Close()

	var out []ConditionalEntry
	for rows.Next() {
		var c ConditionalEntry
		if err := rows.Scan(&c.ID, &c.Ticker, &c.WatchlistEntryID, &c.DateCreated, &c.WatchTag,
			&c.EntryPriceTarget, &c.StopLoss, &c.TakeProfit1, &c.TakeProfit2,
			&c.PositionSizePct, &c.TimeHorizonDays, &c.EntryConditions, &c.InvalidationConditions,
			&c.ThesisSummary, &c.ResearchConfidence, &c.Status, &c.LastVerified, &c.VerificationCount,
			&c.VerificationNotes, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, apperr.Transient("store.ActiveConditionalEntries.scan", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ConfirmConditionalEntry bumps verification_count and last_verified
// without changing status — the Verifier's "confirm" verdict.
func (s *Store) ConfirmConditionalEntry(id int64) error {
	return s.touchConditionalEntry(id, "")
}

// FlagConditionalEntry leaves status active but prepends a flag note for
// analyst review — the Verifier's "flag" verdict.
func (s *Store) FlagConditionalEntry(id int64, note string) error {
	return s.touchConditionalEntry(id, note)
}

func (s *Store) touchConditionalEntry(id int64, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowUTC()
	if note == "" {
		_, err := s.db.Exec(`
			UPDATE conditional_entries SET last_verified = ?, verification_count = verification_count + 1, updated_at = ?
			WHERE id = ?`, now, now, id)
		if err != nil {
			return apperr.Transient("store.touchConditionalEntry", err)
		}
		return nil
	}
	_, err := s.db.Exec(`
		UPDATE conditional_entries
		SET last_verified = ?, verification_count = verification_count + 1,
			verification_notes = ? || COALESCE(' | ' || verification_notes, ''), updated_at = ?
		WHERE id = ?`, now, note, now, id)
	if err != nil {
		return apperr.Transient("store.touchConditionalEntry.flag", err)
	}
	return nil
}

// InvalidateConditionalEntry sets status = invalidated — the Verifier's
// "invalidate" verdict, a terminal transition.
func (s *Store) InvalidateConditionalEntry(id int64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowUTC()
	res, err := s.db.Exec(`
		UPDATE conditional_entries
		SET status = ?, verification_notes = ?, last_verified = ?, verification_count = verification_count + 1, updated_at = ?
		WHERE id = ? AND status = ?`, ConditionalInvalidated, reason, now, now, id, ConditionalActive)
	if err != nil {
		return apperr.Transient("store.InvalidateConditionalEntry", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Transient("store.InvalidateConditionalEntry.rows", err)
	}
	if n == 0 {
		return apperr.Invariant("store.InvalidateConditionalEntry", errors.New("conditional entry not active or does not exist"))
	}
	return nil
}

// TriggerConditionalEntry marks a conditional as triggered once the
// broker has opened a position off it — also terminal.
func (s *Store) TriggerConditionalEntry(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowUTC()
	res, err := s.db.Exec(`
		UPDATE conditional_entries SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		ConditionalTriggered, now, id, ConditionalActive)
	if err != nil {
		return apperr.Transient("store.TriggerConditionalEntry", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Transient("store.TriggerConditionalEntry.rows", err)
	}
	if n == 0 {
		return apperr.Invariant("store.TriggerConditionalEntry", errors.New("conditional entry not active or does not exist"))
	}
	return nil
}
