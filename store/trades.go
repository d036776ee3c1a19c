package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/realmrhigh/hightrade/apperr"
)

// TradeStatus is the closed status-transition enum a trade record moves
// through. Transitions only ever move forward; rows are never deleted.
type TradeStatus string

const (
	TradeOpen   TradeStatus = "open"
	TradeClosed TradeStatus = "closed"
)

// Trade mirrors the Trade Record entity of the data model.
type Trade struct {
	ID                int64
	Ticker            string
	Status            TradeStatus
	EntryPrice        float64
	EntryTime         time.Time
	ExitPrice         sql.NullFloat64
	ExitTime          sql.NullTime
	ExitReason        sql.NullString
	Quantity          float64
	DefconAtEntry     int
	Confidence        float64
	ProfitLossPct     sql.NullFloat64
	WatchlistEntryID  sql.NullInt64
	Notes             sql.NullString
}

// OpenTrade inserts a new open position.
func (s *Store) OpenTrade(t *Trade) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		INSERT INTO trades (ticker, status, entry_price, entry_time, quantity,
			defcon_at_entry, confidence, watchlist_entry_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Ticker, TradeOpen, t.EntryPrice, t.EntryTime, t.Quantity,
		t.DefconAtEntry, t.Confidence, t.WatchlistEntryID)
	if err != nil {
		return 0, apperr.Transient("store.OpenTrade", err)
	}
	return res.LastInsertId()
}

// CloseTrade transitions an open trade to closed, recording the exit. It
// refuses to reopen or re-close an already-closed trade — the
// never-delete model means closed is terminal.
func (s *Store) CloseTrade(tradeID int64, exitPrice float64, exitTime time.Time, reason string, profitLossPct float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE trades SET status = ?, exit_price = ?, exit_time = ?, exit_reason = ?, profit_loss_pct = ?
		WHERE id = ? AND status = ?`,
		TradeClosed, exitPrice, exitTime, reason, profitLossPct, tradeID, TradeOpen)
	if err != nil {
		return apperr.Transient("store.CloseTrade", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Transient("store.CloseTrade.rows", err)
	}
	if n == 0 {
		return apperr.Invariant("store.CloseTrade", errors.New("trade not open or does not exist"))
	}
	return nil
}

// OpenTrades returns every trade currently in the open state, the set the
// exit engine evaluates each cycle.
func (s *Store) OpenTrades() ([]Trade, error) {
	rows, err := s.db.Query(`
		SELECT id, ticker, status, entry_price, entry_time, exit_price, exit_time,
			exit_reason, quantity, defcon_at_entry, confidence, profit_loss_pct,
			watchlist_entry_id, notes
		FROM trades WHERE status = ?`, TradeOpen)
	if err != nil {
		return nil, apperr.Transient("store.OpenTrades", err)
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		var t Trade
		if err := rows.Scan(&t.ID, &t.Ticker, &t.Status, &t.EntryPrice, &t.EntryTime,
			&t.ExitPrice, &t.ExitTime, &t.ExitReason, &t.Quantity, &t.DefconAtEntry,
			&t.Confidence, &t.ProfitLossPct, &t.WatchlistEntryID, &t.Notes); err != nil {
			return nil, apperr.Transient("store.OpenTrades.scan", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Trade returns a single trade by ID.
func (s *Store) Trade(tradeID int64) (*Trade, error) {
	var t Trade
	err := s.db.QueryRow(`
		SELECT id, ticker, status, entry_price, entry_time, exit_price, exit_time,
			exit_reason, quantity, defcon_at_entry, confidence, profit_loss_pct,
			watchlist_entry_id, notes
		FROM trades WHERE id = ?`, tradeID).Scan(
		&t.ID, &t.Ticker, &t.Status, &t.EntryPrice, &t.EntryTime,
		&t.ExitPrice, &t.ExitTime, &t.ExitReason, &t.Quantity, &t.DefconAtEntry,
		&t.Confidence, &t.ProfitLossPct, &t.WatchlistEntryID, &t.Notes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Validation("store.Trade", errors.New("no such trade"))
	}
	if err != nil {
		return nil, apperr.Transient("store.Trade", err)
	}
	return &t, nil
}

// RecordDefconLevel appends a DEFCON history sample; never overwritten.
// bondYield/volatilityIndex/newsScore are the raw as-of-cycle inputs the
// Signal Snapshot entity requires alongside the derived level/composite.
func (s *Store) RecordDefconLevel(level int, composite, dropPct, bondYield, volatilityIndex, newsScore float64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO defcon_history
		(level, composite_score, market_drop_pct, bond_yield, volatility_index, news_score, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, level, composite, dropPct, bondYield, volatilityIndex, newsScore, at)
	if err != nil {
		return apperr.Transient("store.RecordDefconLevel", err)
	}
	return nil
}

// LatestDefconLevel returns the most recently recorded DEFCON sample.
func (s *Store) LatestDefconLevel() (int, error) {
	var level int
	err := s.db.QueryRow(`SELECT level FROM defcon_history ORDER BY recorded_at DESC LIMIT 1`).Scan(&level)
	if errors.Is(err, sql.ErrNoRows) {
		return 3, nil // neutral default, no history yet
	}
	if err != nil {
		return 0, apperr.Transient("store.LatestDefconLevel", err)
	}
	return level, nil
}
