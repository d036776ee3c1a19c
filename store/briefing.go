package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/realmrhigh/hightrade/apperr"
)

// Briefing is one persisted Daily Briefing result — one row per
// (calendar day, model tier), mirroring daily_briefing.py's
// daily_briefings table.
type Briefing struct {
	ID                  int64
	GeneratedAt         time.Time
	Tier                string
	Summary             string
	WatchlistTomorrow   string // JSON-encoded []string
	MarketRegime        string
	RegimeConfidence    float64
	KeyThemes           string // JSON-encoded []string
	BiggestRisk         string
	BiggestOpportunity  string
	SignalQuality       string
	MacroAlignment      string
	CongressionalAlpha  string
	PortfolioAssessment string
	EntryConditions     string
	DefconForecast      string
	ReasoningChain      string
	ModelConfidence     float64
	InputTokens         int
	OutputTokens        int
	FullResponseJSON    string
}

// InsertBriefing appends one Daily Briefing result. Briefings are never
// updated or deleted — the scheduler's once-per-day gate is what keeps
// this to one row per tier per day, not a uniqueness constraint here.
func (s *Store) InsertBriefing(b *Briefing) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		INSERT INTO briefings (generated_at, summary, watchlist_tomorrow, market_regime, tier,
			regime_confidence, key_themes_json, biggest_risk, biggest_opportunity, signal_quality,
			macro_alignment, congressional_alpha, portfolio_assessment, entry_conditions,
			defcon_forecast, reasoning_chain, model_confidence, input_tokens, output_tokens,
			full_response_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.GeneratedAt, b.Summary, b.WatchlistTomorrow, b.MarketRegime, b.Tier,
		b.RegimeConfidence, b.KeyThemes, b.BiggestRisk, b.BiggestOpportunity, b.SignalQuality,
		b.MacroAlignment, b.CongressionalAlpha, b.PortfolioAssessment, b.EntryConditions,
		b.DefconForecast, b.ReasoningChain, b.ModelConfidence, b.InputTokens, b.OutputTokens,
		b.FullResponseJSON)
	if err != nil {
		return 0, apperr.Transient("store.InsertBriefing", err)
	}
	return res.LastInsertId()
}

// LatestBriefing returns the most recently generated briefing, used by
// the admin bridge's status endpoint.
func (s *Store) LatestBriefing() (*Briefing, error) {
	var b Briefing
	var tier, keyThemes, risk, opp, quality, macroAl, cong, portfolio, entryConds, forecast, reasoning, fullJSON sql.NullString
	var regimeConf, modelConf sql.NullFloat64
	var inTok, outTok sql.NullInt64

	err := s.db.QueryRow(`
		SELECT generated_at, summary, watchlist_tomorrow, market_regime, tier,
			regime_confidence, key_themes_json, biggest_risk, biggest_opportunity, signal_quality,
			macro_alignment, congressional_alpha, portfolio_assessment, entry_conditions,
			defcon_forecast, reasoning_chain, model_confidence, input_tokens, output_tokens,
			full_response_json
		FROM briefings ORDER BY generated_at DESC LIMIT 1`).Scan(
		&b.GeneratedAt, &b.Summary, &b.WatchlistTomorrow, &b.MarketRegime, &tier,
		&regimeConf, &keyThemes, &risk, &opp, &quality,
		&macroAl, &cong, &portfolio, &entryConds,
		&forecast, &reasoning, &modelConf, &inTok, &outTok,
		&fullJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Transient("store.LatestBriefing", err)
	}

	b.Tier = tier.String
	b.RegimeConfidence = regimeConf.Float64
	b.KeyThemes = keyThemes.String
	b.BiggestRisk = risk.String
	b.BiggestOpportunity = opp.String
	b.SignalQuality = quality.String
	b.MacroAlignment = macroAl.String
	b.CongressionalAlpha = cong.String
	b.PortfolioAssessment = portfolio.String
	b.EntryConditions = entryConds.String
	b.DefconForecast = forecast.String
	b.ReasoningChain = reasoning.String
	b.ModelConfidence = modelConf.Float64
	b.InputTokens = int(inTok.Int64)
	b.OutputTokens = int(outTok.Int64)
	b.FullResponseJSON = fullJSON.String
	return &b, nil
}

// HasBriefingToday reports whether a briefing row already exists for
// the calendar day containing at, the scheduler's once-per-day gate.
func (s *Store) HasBriefingToday(at time.Time) (bool, error) {
	day := at.UTC().Format("2006-01-02")
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM briefings WHERE DATE(generated_at) = ?`, day).Scan(&count)
	if err != nil {
		return false, apperr.Transient("store.HasBriefingToday", err)
	}
	return count > 0, nil
}

// NewsDaySummary aggregates the day's news_articles rows, the Daily
// Briefing's "news intelligence" section input.
type NewsDaySummary struct {
	ArticleCount  int
	BreakingCount int
	AvgRelevance  float64
	PeakRelevance float64
}

// NewsDaySummaryFor aggregates news_articles published on the calendar
// day containing at.
func (s *Store) NewsDaySummaryFor(at time.Time) (NewsDaySummary, error) {
	day := at.UTC().Format("2006-01-02")
	var out NewsDaySummary
	var avg, peak sql.NullFloat64
	err := s.db.QueryRow(`
		SELECT COUNT(*), SUM(CASE WHEN is_breaking THEN 1 ELSE 0 END),
			AVG(relevance_score), MAX(relevance_score)
		FROM news_articles WHERE DATE(published_at) = ?`, day).Scan(
		&out.ArticleCount, &out.BreakingCount, &avg, &peak)
	if err != nil {
		return NewsDaySummary{}, apperr.Transient("store.NewsDaySummaryFor", err)
	}
	out.AvgRelevance = avg.Float64
	out.PeakRelevance = peak.Float64
	return out, nil
}

// TopNewsToday returns the day's highest-relevance articles.
func (s *Store) TopNewsToday(at time.Time, limit int) ([]NewsArticleRef, error) {
	day := at.UTC().Format("2006-01-02")
	rows, err := s.db.Query(`
		SELECT title, source, relevance_score, published_at
		FROM news_articles WHERE DATE(published_at) = ?
		ORDER BY relevance_score DESC LIMIT ?`, day, limit)
	if err != nil {
		return nil, apperr.Transient("store.TopNewsToday", err)
	}
	defer rows.Close()

	var out []NewsArticleRef
	for rows.Next() {
		var a NewsArticleRef
		if err := rows.Scan(&a.Title, &a.Source, &a.RelevanceScore, &a.PublishedAt); err != nil {
			return nil, apperr.Transient("store.TopNewsToday.scan", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DefconSample is one recorded DEFCON history point, for the day's
// timeline section of the Daily Briefing.
type DefconSample struct {
	Level      int
	Composite  float64
	RecordedAt time.Time
}

// DefconHistoryFor returns the DEFCON samples recorded on the calendar
// day containing at, oldest first.
func (s *Store) DefconHistoryFor(at time.Time) ([]DefconSample, error) {
	day := at.UTC().Format("2006-01-02")
	rows, err := s.db.Query(`
		SELECT level, composite_score, recorded_at FROM defcon_history
		WHERE DATE(recorded_at) = ? ORDER BY recorded_at ASC`, day)
	if err != nil {
		return nil, apperr.Transient("store.DefconHistoryFor", err)
	}
	defer rows.Close()

	var out []DefconSample
	for rows.Next() {
		var d DefconSample
		if err := rows.Scan(&d.Level, &d.Composite, &d.RecordedAt); err != nil {
			return nil, apperr.Transient("store.DefconHistoryFor.scan", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// LatestMacroSnapshot returns the most recent macro_snapshots row in
// full, unlike LatestMacroScore which returns only the composite score.
func (s *Store) LatestMacroSnapshot() (*MacroSnapshot, error) {
	var m MacroSnapshot
	err := s.db.QueryRow(`
		SELECT composite_score, defcon_modifier, recorded_at FROM macro_snapshots
		ORDER BY recorded_at DESC LIMIT 1`).Scan(&m.CompositeScore, &m.DefconModifier, &m.RecordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Transient("store.LatestMacroSnapshot", err)
	}
	return &m, nil
}

// MacroSnapshot is one recorded macro-composite reading.
type MacroSnapshot struct {
	CompositeScore float64
	DefconModifier float64
	RecordedAt     time.Time
}

// ClusterSummary is one ticker's congressional cluster signal, computed
// the same way CongressionalSignalForTicker scores a single ticker but
// ranked across every ticker with recent buy activity.
type ClusterSummary struct {
	Ticker      string
	BuyCount    int
	Strength    float64
	Bipartisan  bool
	TotalAmount float64
}

// TopCongressionalClusters ranks tickers by congressional buy-cluster
// strength over the trailing window, the Daily Briefing's "congressional
// trading signals" section input.
func (s *Store) TopCongressionalClusters(windowDays, limit int) ([]ClusterSummary, error) {
	cutoff := nowUTC().AddDate(0, 0, -windowDays)
	rows, err := s.db.Query(`
		SELECT ticker, amount_midpoint, party FROM congressional_trades
		WHERE transaction_type = 'buy' AND disclosed_at >= ?`, cutoff)
	if err != nil {
		return nil, apperr.Transient("store.TopCongressionalClusters", err)
	}
	defer rows.Close()

	type acc struct {
		count   int
		amount  float64
		parties map[string]bool
	}
	byTicker := map[string]*acc{}
	for rows.Next() {
		var ticker, party string
		var amt float64
		if err := rows.Scan(&ticker, &amt, &party); err != nil {
			return nil, apperr.Transient("store.TopCongressionalClusters.scan", err)
		}
		a, ok := byTicker[ticker]
		if !ok {
			a = &acc{parties: map[string]bool{}}
			byTicker[ticker] = a
		}
		a.count++
		a.amount += amt
		a.parties[party] = true
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Transient("store.TopCongressionalClusters.rows", err)
	}

	out := make([]ClusterSummary, 0, len(byTicker))
	for ticker, a := range byTicker {
		bipartisan := len(a.parties) > 1
		out = append(out, ClusterSummary{
			Ticker:      ticker,
			BuyCount:    a.count,
			Strength:    congressionalStrength(a.count, a.amount, bipartisan),
			Bipartisan:  bipartisan,
			TotalAmount: a.amount,
		})
	}
	sortClustersByStrengthDesc(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortClustersByStrengthDesc(c []ClusterSummary) {
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && c[j].Strength > c[j-1].Strength; j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}

// ClosedTradesSince returns every trade closed at or after since, the
// Daily Briefing's "recent closed trades" window (default 7 days).
func (s *Store) ClosedTradesSince(since time.Time) ([]Trade, error) {
	rows, err := s.db.Query(`
		SELECT id, ticker, status, entry_price, entry_time, exit_price, exit_time,
			exit_reason, quantity, defcon_at_entry, confidence, profit_loss_pct,
			watchlist_entry_id, notes
		FROM trades WHERE status = ? AND exit_time >= ?
		ORDER BY exit_time DESC`, TradeClosed, since)
	if err != nil {
		return nil, apperr.Transient("store.ClosedTradesSince", err)
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		var t Trade
		if err := rows.Scan(&t.ID, &t.Ticker, &t.Status, &t.EntryPrice, &t.EntryTime,
			&t.ExitPrice, &t.ExitTime, &t.ExitReason, &t.Quantity, &t.DefconAtEntry,
			&t.Confidence, &t.ProfitLossPct, &t.WatchlistEntryID, &t.Notes); err != nil {
			return nil, apperr.Transient("store.ClosedTradesSince.scan", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
