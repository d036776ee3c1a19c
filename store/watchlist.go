package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/realmrhigh/hightrade/apperr"
)

// WatchlistStatus is the closed status-transition enum for watchlist
// entries: a ticker moves forward through research, never backward, and
// is never deleted once added.
type WatchlistStatus string

const (
	WatchlistPending        WatchlistStatus = "pending"
	WatchlistResearched     WatchlistStatus = "researched"
	WatchlistConditionalSet WatchlistStatus = "conditional_set"
	WatchlistAnalystPass    WatchlistStatus = "analyst_pass"
	WatchlistTriggered      WatchlistStatus = "triggered"
	WatchlistInvalidated    WatchlistStatus = "invalidated"
	WatchlistExpired        WatchlistStatus = "expired"
	WatchlistResearchError  WatchlistStatus = "research_error"
)

// WatchlistEntry mirrors the Watchlist Entry entity of the data model,
// including the conditional-entry trigger fields used by the Acquisition
// Pipeline's "conditional_tracking" substage.
type WatchlistEntry struct {
	ID                 int64
	Ticker             string
	Status             WatchlistStatus
	Source             string
	RelevanceScore     float64
	AddedAt            time.Time
	UpdatedAt          time.Time
	Notes              sql.NullString
	ConditionalTrigger sql.NullString
	ConditionalTarget  sql.NullFloat64
	SupersededBy       sql.NullInt64
}

// AddToWatchlist inserts a new pending entry.
func (s *Store) AddToWatchlist(ticker, source string, relevance float64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowUTC()
	res, err := s.db.Exec(`
		INSERT INTO watchlist_entries (ticker, status, source, relevance_score, added_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ticker, WatchlistPending, source, relevance, now, now)
	if err != nil {
		return 0, apperr.Transient("store.AddToWatchlist", err)
	}
	return res.LastInsertId()
}

// TransitionWatchlistStatus moves an entry forward in its lifecycle.
// Entries are never deleted — only status-transitioned and timestamped.
func (s *Store) TransitionWatchlistStatus(id int64, status WatchlistStatus, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE watchlist_entries SET status = ?, updated_at = ?, notes = ?
		WHERE id = ?`, status, nowUTC(), notes, id)
	if err != nil {
		return apperr.Transient("store.TransitionWatchlistStatus", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Transient("store.TransitionWatchlistStatus.rows", err)
	}
	if n == 0 {
		return apperr.Validation("store.TransitionWatchlistStatus", errors.New("no such watchlist entry"))
	}
	return nil
}

// SetConditionalTrigger attaches a conditional-entry condition to an
// entry and marks it "conditional". supersede, if non-zero, marks an
// existing conditional entry on the same ticker as superseded rather
// than deleting it.
func (s *Store) SetConditionalTrigger(id int64, trigger string, target float64, supersede int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if supersede != 0 {
		if _, err := s.db.Exec(`UPDATE watchlist_entries SET status = ?, superseded_by = ?, updated_at = ?
			WHERE id = ?`, WatchlistInvalidated, id, nowUTC(), supersede); err != nil {
			return apperr.Transient("store.SetConditionalTrigger.supersede", err)
		}
	}

	_, err := s.db.Exec(`
		UPDATE watchlist_entries SET status = ?, conditional_trigger = ?, conditional_target = ?, updated_at = ?
		WHERE id = ?`, WatchlistConditionalSet, trigger, target, nowUTC(), id)
	if err != nil {
		return apperr.Transient("store.SetConditionalTrigger", err)
	}
	return nil
}

// PendingWatchlist returns up to limit pending entries, most recently
// added first with ties broken by relevance, the Researcher's input set.
func (s *Store) PendingWatchlist(limit int) ([]WatchlistEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, ticker, status, source, relevance_score, added_at, updated_at,
			notes, conditional_trigger, conditional_target, superseded_by
		FROM watchlist_entries
		WHERE status = ?
		ORDER BY added_at DESC, relevance_score DESC
		LIMIT ?`, WatchlistPending, limit)
	if err != nil {
		return nil, apperr.Transient("store.PendingWatchlist", err)
	}
	defer rows.Close()

	var out []WatchlistEntry
	for rows.Next() {
		var e WatchlistEntry
		if err := rows.Scan(&e.ID, &e.Ticker, &e.Status, &e.Source, &e.RelevanceScore,
			&e.AddedAt, &e.UpdatedAt, &e.Notes, &e.ConditionalTrigger, &e.ConditionalTarget,
			&e.SupersededBy); err != nil {
			return nil, apperr.Transient("store.PendingWatchlist.scan", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ActiveWatchlist returns every entry not yet terminal (invalidated or
// expired), the set the Acquisition Pipeline re-evaluates each cycle.
func (s *Store) ActiveWatchlist() ([]WatchlistEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, ticker, status, source, relevance_score, added_at, updated_at,
			notes, conditional_trigger, conditional_target, superseded_by
		FROM watchlist_entries
		WHERE status NOT IN (?, ?)`, WatchlistInvalidated, WatchlistExpired)
	if err != nil {
		return nil, apperr.Transient("store.ActiveWatchlist", err)
	}
	defer rows.Close()

	var out []WatchlistEntry
	for rows.Next() {
		var e WatchlistEntry
		if err := rows.Scan(&e.ID, &e.Ticker, &e.Status, &e.Source, &e.RelevanceScore,
			&e.AddedAt, &e.UpdatedAt, &e.Notes, &e.ConditionalTrigger, &e.ConditionalTarget,
			&e.SupersededBy); err != nil {
			return nil, apperr.Transient("store.ActiveWatchlist.scan", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// StaleWatchlistEntries returns pending/researched entries older than
// staleDays, candidates for automatic expiry.
func (s *Store) StaleWatchlistEntries(staleDays int) ([]WatchlistEntry, error) {
	cutoff := nowUTC().AddDate(0, 0, -staleDays)
	rows, err := s.db.Query(`
		SELECT id, ticker, status, source, relevance_score, added_at, updated_at,
			notes, conditional_trigger, conditional_target, superseded_by
		FROM watchlist_entries
		WHERE status IN (?, ?) AND added_at < ?`, WatchlistPending, WatchlistResearched, cutoff)
	if err != nil {
		return nil, apperr.Transient("store.StaleWatchlistEntries", err)
	}
	defer rows.Close()

	var out []WatchlistEntry
	for rows.Next() {
		var e WatchlistEntry
		if err := rows.Scan(&e.ID, &e.Ticker, &e.Status, &e.Source, &e.RelevanceScore,
			&e.AddedAt, &e.UpdatedAt, &e.Notes, &e.ConditionalTrigger, &e.ConditionalTarget,
			&e.SupersededBy); err != nil {
			return nil, apperr.Transient("store.StaleWatchlistEntries.scan", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
