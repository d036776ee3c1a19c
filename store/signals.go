package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/realmrhigh/hightrade/apperr"
)

// urlHash is the unique key news_articles dedupes inserts on, matching
// dedup.Article's own URL-or-title fallback basis.
func urlHash(url, title string) string {
	basis := strings.ToLower(strings.TrimSpace(url))
	if basis == "" {
		basis = strings.ToLower(strings.TrimSpace(title))
	}
	sum := sha256.Sum256([]byte(basis))
	return hex.EncodeToString(sum[:])
}

// InsertNewsArticle records one surviving (post-dedup, post-scoring)
// article. A duplicate url_hash updates the stored relevance score and
// breaking flag rather than erroring — the News Pipeline may see the same
// article again across cycles before it ages out of relevance.
func (s *Store) InsertNewsArticle(url, title, source string, relevanceScore float64, publishedAt, fetchedAt time.Time, isBreaking bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO news_articles (url_hash, title, source, relevance_score, published_at, fetched_at, is_breaking)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url_hash) DO UPDATE SET relevance_score = excluded.relevance_score, is_breaking = excluded.is_breaking`,
		urlHash(url, title), title, source, relevanceScore, publishedAt, fetchedAt, isBreaking)
	if err != nil {
		return apperr.Transient("store.InsertNewsArticle", err)
	}
	return nil
}

// NewsSignalArticleRef is one entry of a News Signal's full article-list
// blob — deliberately narrower than news.Article so the store package
// never imports news (store sits below every collector in the dependency
// graph).
type NewsSignalArticleRef struct {
	URL        string  `json:"url"`
	Title      string  `json:"title"`
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
	IsBreaking bool    `json:"is_breaking"`
}

// NewsSignal mirrors the News Signal entity of the data model: one row per
// news-ingestion batch, persisted even when the batch is empty so the
// cycle timeline stays continuous.
type NewsSignal struct {
	RecordedAt               time.Time
	NewsScore                float64
	DominantCategory         string
	SentimentSummary         string
	SentimentNet             float64
	Concentration            float64
	UrgencyPremium           float64
	SourceWeightedConfidence float64
	KeywordSpecificity       float64
	KeywordHistogram         map[string]int
	ArticleCount             int
	BreakingCount            int
	IsBreaking               bool
	Articles                 []NewsSignalArticleRef
	FastTierSummary          sql.NullString
}

// InsertNewsSignal persists one News Signal row and returns its id, the
// key LLM Analysis Records are filed under. Called once per news batch,
// including the empty-batch case — §3 requires the row exist regardless
// of whether any articles survived this cycle's fetch+dedup.
func (s *Store) InsertNewsSignal(sig NewsSignal) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	histogram, err := json.Marshal(sig.KeywordHistogram)
	if err != nil {
		return 0, apperr.Invariant("store.InsertNewsSignal.histogram", err)
	}
	articles, err := json.Marshal(sig.Articles)
	if err != nil {
		return 0, apperr.Invariant("store.InsertNewsSignal.articles", err)
	}

	res, err := s.db.Exec(`
		INSERT INTO news_signals
			(recorded_at, news_score, dominant_category, sentiment_summary, sentiment_net,
			 concentration, urgency_premium, source_weighted_confidence, keyword_specificity,
			 keyword_histogram, article_count, breaking_count, is_breaking, articles_json, fast_tier_summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.RecordedAt, sig.NewsScore, sig.DominantCategory, sig.SentimentSummary, sig.SentimentNet,
		sig.Concentration, sig.UrgencyPremium, sig.SourceWeightedConfidence, sig.KeywordSpecificity,
		string(histogram), sig.ArticleCount, sig.BreakingCount, sig.IsBreaking, string(articles), sig.FastTierSummary)
	if err != nil {
		return 0, apperr.Transient("store.InsertNewsSignal", err)
	}
	return res.LastInsertId()
}

// UpdateNewsSignalFastTierSummary attaches the fast-tier LLM's coherence
// read to an already-persisted News Signal row — the entity's "optional
// linked fast-tier LLM summary" attribute, filled in only when the
// fast-tier gate actually ran this cycle.
func (s *Store) UpdateNewsSignalFastTierSummary(signalID int64, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`UPDATE news_signals SET fast_tier_summary = ? WHERE id = ?`, summary, signalID)
	if err != nil {
		return apperr.Transient("store.UpdateNewsSignalFastTierSummary", err)
	}
	return nil
}

// LLMAnalysisRecord mirrors the LLM Analysis Record entity: zero, one, or
// two of these attach to a single News Signal, one per model tier that
// ran against it.
type LLMAnalysisRecord struct {
	NewsSignalID         int64
	ModelTier            string
	TriggerKind          string
	Coherence            string
	HiddenRisks          string
	RecommendedAction    string
	Reasoning            string
	EnhancedConfidence   sql.NullFloat64
	ConfidenceAdjustment sql.NullFloat64
	InputTokens          int
	OutputTokens         int
	RecordedAt           time.Time
}

// InsertLLMAnalysisRecord persists one tier's parsed analysis against its
// News Signal.
func (s *Store) InsertLLMAnalysisRecord(rec LLMAnalysisRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO llm_analysis_records
			(news_signal_id, model_tier, trigger_kind, coherence, hidden_risks, recommended_action,
			 reasoning, enhanced_confidence, confidence_adjustment, input_tokens, output_tokens, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.NewsSignalID, rec.ModelTier, rec.TriggerKind, rec.Coherence, rec.HiddenRisks, rec.RecommendedAction,
		rec.Reasoning, rec.EnhancedConfidence, rec.ConfidenceAdjustment, rec.InputTokens, rec.OutputTokens, rec.RecordedAt)
	if err != nil {
		return apperr.Transient("store.InsertLLMAnalysisRecord", err)
	}
	return nil
}

// InsertCongressionalTrade records one normalized disclosure, the
// write side of TopCongressionalClusters/CongressionalSignalForTicker's
// reads.
func (s *Store) InsertCongressionalTrade(ticker, member, party, transactionType string, amountMidpoint float64, transactionDate, disclosedAt time.Time, committeeRelevant bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO congressional_trades (ticker, member, party, transaction_type, amount_midpoint, transaction_date, disclosed_at, committee_relevant)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ticker, member, party, transactionType, amountMidpoint, transactionDate, disclosedAt, committeeRelevant)
	if err != nil {
		return apperr.Transient("store.InsertCongressionalTrade", err)
	}
	return nil
}

// RecordMacroSnapshot appends one macro-composite reading; never
// overwritten, mirroring the append-only history tables.
func (s *Store) RecordMacroSnapshot(compositeScore, defconModifier float64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO macro_snapshots (composite_score, defcon_modifier, recorded_at)
		VALUES (?, ?, ?)`, compositeScore, defconModifier, at)
	if err != nil {
		return apperr.Transient("store.RecordMacroSnapshot", err)
	}
	return nil
}

// LatestMacroScore returns the most recently recorded composite macro
// score, used by the Acquisition Researcher to stamp a research row.
func (s *Store) LatestMacroScore() (sql.NullFloat64, error) {
	var score sql.NullFloat64
	err := s.db.QueryRow(`SELECT composite_score FROM macro_snapshots ORDER BY recorded_at DESC LIMIT 1`).Scan(&score)
	if errors.Is(err, sql.ErrNoRows) {
		return sql.NullFloat64{}, nil
	}
	if err != nil {
		return sql.NullFloat64{}, apperr.Transient("store.LatestMacroScore", err)
	}
	return score, nil
}

// LatestMarketRegime returns the market_regime recorded by the most
// recent daily briefing, defaulting to "unknown" when none exists yet.
func (s *Store) LatestMarketRegime() (string, error) {
	var regime sql.NullString
	err := s.db.QueryRow(`SELECT market_regime FROM briefings ORDER BY generated_at DESC LIMIT 1`).Scan(&regime)
	if errors.Is(err, sql.ErrNoRows) || !regime.Valid {
		return "unknown", nil
	}
	if err != nil {
		return "unknown", apperr.Transient("store.LatestMarketRegime", err)
	}
	return regime.String, nil
}

// CongressionalSignalForTicker returns the strongest recent congressional
// cluster signal strength and buy count recorded against ticker, the
// internal signal the Researcher folds into a research row.
func (s *Store) CongressionalSignalForTicker(ticker string, windowDays int) (strength float64, buyCount int, err error) {
	cutoff := nowUTC().AddDate(0, 0, -windowDays)
	row := s.db.QueryRow(`
		SELECT COUNT(*) FROM congressional_trades
		WHERE UPPER(ticker) = UPPER(?) AND transaction_type = 'buy' AND disclosed_at >= ?`,
		ticker, cutoff)
	if scanErr := row.Scan(&buyCount); scanErr != nil {
		return 0, 0, apperr.Transient("store.CongressionalSignalForTicker", scanErr)
	}
	if buyCount == 0 {
		return 0, 0, nil
	}
	// Reconstitute the same inner-capped scoring political.scoreCluster
	// applies at detection time, from the persisted trade rows alone —
	// avoids a cross-package dependency from store on political.
	var totalAmount float64
	var bipartisan int
	rows, qerr := s.db.Query(`
		SELECT amount_midpoint, party FROM congressional_trades
		WHERE UPPER(ticker) = UPPER(?) AND transaction_type = 'buy' AND disclosed_at >= ?`,
		ticker, cutoff)
	if qerr != nil {
		return 0, buyCount, apperr.Transient("store.CongressionalSignalForTicker.rows", qerr)
	}
	defer rows.Close()
	parties := map[string]bool{}
	for rows.Next() {
		var amt float64
		var party string
		if scanErr := rows.Scan(&amt, &party); scanErr != nil {
			return 0, buyCount, apperr.Transient("store.CongressionalSignalForTicker.scan", scanErr)
		}
		totalAmount += amt
		parties[party] = true
	}
	if len(parties) > 1 {
		bipartisan = 1
	}
	strength = congressionalStrength(buyCount, totalAmount, bipartisan == 1)
	return strength, buyCount, rows.Err()
}

// NewsArticleRef is the compact shape the Verifier folds into its prompt
// — just enough to judge relevance without pulling the full article body.
type NewsArticleRef struct {
	Title          string
	Source         string
	RelevanceScore float64
	PublishedAt    time.Time
}

// RecentNewsForTicker returns the top-scoring recent articles whose title
// mentions ticker, the Verifier's compact "recent news" input. Matching
// is a title substring search since article bodies are not persisted.
func (s *Store) RecentNewsForTicker(ticker string, windowDays, limit int) ([]NewsArticleRef, error) {
	cutoff := nowUTC().AddDate(0, 0, -windowDays)
	rows, err := s.db.Query(`
		SELECT title, source, relevance_score, published_at
		FROM news_articles
		WHERE published_at >= ? AND title LIKE ?
		ORDER BY relevance_score DESC LIMIT ?`,
		cutoff, "%"+ticker+"%", limit)
	if err != nil {
		return nil, apperr.Transient("store.RecentNewsForTicker", err)
	}
	defer rows.Close()

	var out []NewsArticleRef
	for rows.Next() {
		var a NewsArticleRef
		if err := rows.Scan(&a.Title, &a.Source, &a.RelevanceScore, &a.PublishedAt); err != nil {
			return nil, apperr.Transient("store.RecentNewsForTicker.scan", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// congressionalStrength mirrors political.scoreCluster's inner-capped
// formula without a package dependency: min(100, min(50,10*count) +
// min(20,3*log10(amount)) + 15*bipartisan). Committee relevance is scored
// by the political package at detection time and is not recomputed here.
func congressionalStrength(count int, totalAmount float64, bipartisan bool) float64 {
	score := float64(count) * 10
	if score > 50 {
		score = 50
	}
	if totalAmount > 0 {
		amt := math.Log10(math.Max(1, totalAmount)) * 3
		if amt > 20 {
			amt = 20
		}
		score += amt
	}
	if bipartisan {
		score += 15
	}
	if score > 100 {
		score = 100
	}
	return score
}
