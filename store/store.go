// Package store is the persistent store (C1): a single embedded SQLite
// database in WAL mode, additive-only schema migration, and a
// never-delete status-transition model for trades and watchlist entries.
//
// Grounded on the teacher's strategy.go (raw-SQL CRUD via database/sql,
// CREATE TABLE IF NOT EXISTS + best-effort index creation) generalized
// from a single strategies table to the full trading data model, and on
// original_source/acquisition_analyst.py's migrate-loop pattern for
// additive ALTER TABLE columns.
package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/realmrhigh/hightrade/apperr"
)

// Store wraps the database handle. All writes go through a single mutex
// to keep the embedded SQLite writer serialized, matching the single
// mutex-guarded writer required by §5.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if absent) the SQLite database at path, enables
// WAL mode, and runs the additive migration set.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, apperr.Fatal("store.Open", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, apperr.Fatal("store.Open.wal", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return nil, apperr.Fatal("store.Open.fk", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates every table IF NOT EXISTS, then best-effort adds any
// columns introduced after a table's original shape. Columns are never
// dropped and rows are never deleted — only appended or status-transitioned.
func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS watchlist_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ticker TEXT NOT NULL,
			status TEXT NOT NULL,
			source TEXT NOT NULL,
			relevance_score REAL NOT NULL DEFAULT 0,
			added_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			notes TEXT,
			conditional_trigger TEXT,
			conditional_target REAL,
			superseded_by INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_watchlist_ticker ON watchlist_entries(ticker)`,
		`CREATE INDEX IF NOT EXISTS idx_watchlist_status ON watchlist_entries(status)`,

		`CREATE TABLE IF NOT EXISTS trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ticker TEXT NOT NULL,
			status TEXT NOT NULL,
			entry_price REAL NOT NULL,
			entry_time DATETIME NOT NULL,
			exit_price REAL,
			exit_time DATETIME,
			exit_reason TEXT,
			quantity REAL NOT NULL,
			defcon_at_entry INTEGER NOT NULL,
			confidence REAL NOT NULL DEFAULT 0,
			profit_loss_pct REAL,
			watchlist_entry_id INTEGER,
			notes TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_ticker ON trades(ticker)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status)`,

		`CREATE TABLE IF NOT EXISTS defcon_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			level INTEGER NOT NULL,
			composite_score REAL NOT NULL,
			market_drop_pct REAL NOT NULL,
			bond_yield REAL NOT NULL DEFAULT 0,
			volatility_index REAL NOT NULL DEFAULT 0,
			news_score REAL NOT NULL DEFAULT 0,
			recorded_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_defcon_history_recorded_at ON defcon_history(recorded_at)`,

		`CREATE TABLE IF NOT EXISTS news_signals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			recorded_at DATETIME NOT NULL,
			news_score REAL NOT NULL,
			dominant_category TEXT NOT NULL,
			sentiment_summary TEXT NOT NULL,
			sentiment_net REAL NOT NULL,
			concentration REAL NOT NULL,
			urgency_premium REAL NOT NULL,
			source_weighted_confidence REAL NOT NULL,
			keyword_specificity REAL NOT NULL,
			keyword_histogram TEXT NOT NULL,
			article_count INTEGER NOT NULL,
			breaking_count INTEGER NOT NULL,
			is_breaking BOOLEAN NOT NULL,
			articles_json TEXT NOT NULL,
			fast_tier_summary TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_news_signals_recorded_at ON news_signals(recorded_at)`,

		`CREATE TABLE IF NOT EXISTS llm_analysis_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			news_signal_id INTEGER NOT NULL REFERENCES news_signals(id),
			model_tier TEXT NOT NULL,
			trigger_kind TEXT NOT NULL,
			coherence TEXT,
			hidden_risks TEXT,
			recommended_action TEXT,
			reasoning TEXT,
			enhanced_confidence REAL,
			confidence_adjustment REAL,
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			recorded_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_llm_analysis_news_signal_id ON llm_analysis_records(news_signal_id)`,

		`CREATE TABLE IF NOT EXISTS news_articles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			url_hash TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL,
			source TEXT NOT NULL,
			relevance_score REAL NOT NULL DEFAULT 0,
			published_at DATETIME NOT NULL,
			fetched_at DATETIME NOT NULL,
			is_breaking BOOLEAN NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_news_published_at ON news_articles(published_at)`,

		`CREATE TABLE IF NOT EXISTS congressional_trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ticker TEXT NOT NULL,
			member TEXT NOT NULL,
			party TEXT NOT NULL,
			transaction_type TEXT NOT NULL,
			amount_midpoint REAL NOT NULL,
			transaction_date DATETIME NOT NULL,
			disclosed_at DATETIME NOT NULL,
			committee_relevant BOOLEAN NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_congressional_ticker ON congressional_trades(ticker)`,

		`CREATE TABLE IF NOT EXISTS command_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			correlation_id TEXT NOT NULL,
			command TEXT NOT NULL,
			args TEXT,
			response TEXT,
			issued_at DATETIME NOT NULL,
			responded_at DATETIME
		)`,

		`CREATE TABLE IF NOT EXISTS briefings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			generated_at DATETIME NOT NULL,
			summary TEXT NOT NULL,
			watchlist_tomorrow TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS research_library (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ticker TEXT NOT NULL,
			watchlist_entry_id INTEGER,
			research_date TEXT NOT NULL,
			current_price REAL,
			price_1w_change_pct REAL,
			price_1m_change_pct REAL,
			price_52w_high REAL,
			price_52w_low REAL,
			market_cap REAL,
			pe_ratio REAL,
			forward_pe REAL,
			price_to_book REAL,
			profit_margin REAL,
			revenue_growth_yoy REAL,
			debt_to_equity REAL,
			analyst_target_mean REAL,
			analyst_buy_count INTEGER,
			analyst_hold_count INTEGER,
			analyst_sell_count INTEGER,
			latest_filing_type TEXT,
			latest_filing_date TEXT,
			news_mention_count INTEGER NOT NULL DEFAULT 0,
			news_sentiment_avg REAL,
			congressional_signal_strength REAL NOT NULL DEFAULT 0,
			congressional_buy_count INTEGER NOT NULL DEFAULT 0,
			macro_score REAL,
			market_regime TEXT,
			status TEXT NOT NULL DEFAULT 'library_ready',
			error_notes TEXT,
			created_at DATETIME NOT NULL,
			UNIQUE(ticker, research_date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_research_library_ticker ON research_library(ticker)`,
		`CREATE INDEX IF NOT EXISTS idx_research_library_status ON research_library(status)`,

		`CREATE TABLE IF NOT EXISTS conditional_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ticker TEXT NOT NULL,
			watchlist_entry_id INTEGER,
			date_created TEXT NOT NULL,
			watch_tag TEXT NOT NULL,
			entry_price_target REAL,
			stop_loss REAL,
			take_profit_1 REAL,
			take_profit_2 REAL,
			position_size_pct REAL NOT NULL,
			time_horizon_days INTEGER,
			entry_conditions TEXT,
			invalidation_conditions TEXT,
			thesis_summary TEXT,
			research_confidence REAL NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			last_verified DATETIME,
			verification_count INTEGER NOT NULL DEFAULT 0,
			verification_notes TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conditional_entries_ticker ON conditional_entries(ticker)`,
		`CREATE INDEX IF NOT EXISTS idx_conditional_entries_status ON conditional_entries(status)`,

		`CREATE TABLE IF NOT EXISTS macro_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			composite_score REAL NOT NULL,
			defcon_modifier REAL NOT NULL,
			recorded_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_macro_snapshots_recorded_at ON macro_snapshots(recorded_at)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return apperr.Fatal("store.migrate", fmt.Errorf("%s: %w", stmt[:40], err))
		}
	}

	// Additive column migrations: best-effort ALTER TABLE, ignoring the
	// "duplicate column" error SQLite returns when already applied.
	additive := []string{
		`ALTER TABLE watchlist_entries ADD COLUMN attention_score REAL DEFAULT 0`,
		`ALTER TABLE trades ADD COLUMN persisted_reason_note TEXT`,
		`ALTER TABLE briefings ADD COLUMN market_regime TEXT`,
		`ALTER TABLE briefings ADD COLUMN tier TEXT`,
		`ALTER TABLE briefings ADD COLUMN regime_confidence REAL`,
		`ALTER TABLE briefings ADD COLUMN key_themes_json TEXT`,
		`ALTER TABLE briefings ADD COLUMN biggest_risk TEXT`,
		`ALTER TABLE briefings ADD COLUMN biggest_opportunity TEXT`,
		`ALTER TABLE briefings ADD COLUMN signal_quality TEXT`,
		`ALTER TABLE briefings ADD COLUMN macro_alignment TEXT`,
		`ALTER TABLE briefings ADD COLUMN congressional_alpha TEXT`,
		`ALTER TABLE briefings ADD COLUMN portfolio_assessment TEXT`,
		`ALTER TABLE briefings ADD COLUMN entry_conditions TEXT`,
		`ALTER TABLE briefings ADD COLUMN defcon_forecast TEXT`,
		`ALTER TABLE briefings ADD COLUMN reasoning_chain TEXT`,
		`ALTER TABLE briefings ADD COLUMN model_confidence REAL`,
		`ALTER TABLE briefings ADD COLUMN input_tokens INTEGER`,
		`ALTER TABLE briefings ADD COLUMN output_tokens INTEGER`,
		`ALTER TABLE briefings ADD COLUMN full_response_json TEXT`,
		`ALTER TABLE defcon_history ADD COLUMN bond_yield REAL NOT NULL DEFAULT 0`,
		`ALTER TABLE defcon_history ADD COLUMN volatility_index REAL NOT NULL DEFAULT 0`,
		`ALTER TABLE defcon_history ADD COLUMN news_score REAL NOT NULL DEFAULT 0`,
	}
	for _, stmt := range additive {
		_, _ = s.db.Exec(stmt) // duplicate-column errors are expected and ignored
	}

	return nil
}

func nowUTC() time.Time { return time.Now().UTC() }
