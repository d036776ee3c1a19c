package store

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMacroSnapshotRoundTrip(t *testing.T) {
	s := newTestStore(t)

	score, err := s.LatestMacroScore()
	require.NoError(t, err)
	assert.False(t, score.Valid, "no snapshot recorded yet")

	require.NoError(t, s.RecordMacroSnapshot(62.5, -0.1, time.Now().UTC()))
	require.NoError(t, s.RecordMacroSnapshot(70.0, 0.0, time.Now().UTC()))

	score, err = s.LatestMacroScore()
	require.NoError(t, err)
	require.True(t, score.Valid)
	assert.Equal(t, 70.0, score.Float64, "must return the most recently recorded snapshot")
}

func TestLatestMarketRegimeDefaultsToUnknown(t *testing.T) {
	s := newTestStore(t)

	regime, err := s.LatestMarketRegime()
	require.NoError(t, err)
	assert.Equal(t, "unknown", regime)

	_, err = s.db.Exec(`INSERT INTO briefings (generated_at, summary, watchlist_tomorrow, market_regime)
		VALUES (?, ?, ?, ?)`, time.Now().UTC(), "calm session", "[]", "risk-on")
	require.NoError(t, err)

	regime, err = s.LatestMarketRegime()
	require.NoError(t, err)
	assert.Equal(t, "risk-on", regime)
}

func TestCongressionalSignalForTickerCapsAndAggregates(t *testing.T) {
	s := newTestStore(t)

	now := time.Now().UTC()
	insert := func(ticker, member, party string) {
		_, err := s.db.Exec(`INSERT INTO congressional_trades
			(ticker, member, party, transaction_type, amount_midpoint, transaction_date, disclosed_at, committee_relevant)
			VALUES (?, ?, ?, 'buy', ?, ?, ?, 0)`, ticker, member, party, 75000.0, now, now)
		require.NoError(t, err)
	}
	insert("ABC", "Member A", "D")
	insert("ABC", "Member B", "R")

	strength, buyCount, err := s.CongressionalSignalForTicker("ABC", 30)
	require.NoError(t, err)
	assert.Equal(t, 2, buyCount)
	assert.InDelta(t, congressionalStrength(2, 150000, true), strength, 0.001)
}

func TestCongressionalSignalForTickerNoTradesReturnsZero(t *testing.T) {
	s := newTestStore(t)
	strength, buyCount, err := s.CongressionalSignalForTicker("NOPE", 30)
	require.NoError(t, err)
	assert.Equal(t, 0, buyCount)
	assert.Equal(t, 0.0, strength)
}

func TestInsertNewsArticleDedupesByURLAndUpdatesScore(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, s.InsertNewsArticle("https://wire.example/1", "ABC Corp faces regulatory probe", "wire", 40, now, now, false))
	refs, err := s.RecentNewsForTicker("ABC", 7, 5)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, 40.0, refs[0].RelevanceScore)

	// Same URL seen again with a revised score and newly flagged breaking —
	// must update in place rather than insert a second row.
	require.NoError(t, s.InsertNewsArticle("https://wire.example/1", "ABC Corp faces regulatory probe", "wire", 85, now, now, true))
	refs, err = s.RecentNewsForTicker("ABC", 7, 5)
	require.NoError(t, err)
	require.Len(t, refs, 1, "a repeat URL must update the existing row, not duplicate it")
	assert.Equal(t, 85.0, refs[0].RelevanceScore)
}

func TestInsertNewsArticleFallsBackToTitleHashWhenURLEmpty(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, s.InsertNewsArticle("", "XYZ rallies on breakthrough deal", "wire", 50, now, now, false))
	refs, err := s.RecentNewsForTicker("XYZ", 7, 5)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "XYZ rallies on breakthrough deal", refs[0].Title)
}

func TestInsertCongressionalTradeIsReadableByCongressionalSignalForTicker(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, s.InsertCongressionalTrade("DEF", "Member C", "D", "buy", 60000, now, now, true))
	require.NoError(t, s.InsertCongressionalTrade("DEF", "Member D", "R", "buy", 90000, now, now, false))
	require.NoError(t, s.InsertCongressionalTrade("DEF", "Member E", "D", "sell", 20000, now, now, false))

	strength, buyCount, err := s.CongressionalSignalForTicker("DEF", 30)
	require.NoError(t, err)
	assert.Equal(t, 2, buyCount, "only transaction_type='buy' rows count")
	assert.InDelta(t, congressionalStrength(2, 150000, true), strength, 0.001)
}

func TestInsertNewsSignalPersistsEmptyBatch(t *testing.T) {
	s := newTestStore(t)

	id, err := s.InsertNewsSignal(NewsSignal{
		RecordedAt:       time.Now().UTC(),
		DominantCategory: "none",
		SentimentSummary: "No articles",
		ArticleCount:     0,
	})
	require.NoError(t, err)
	assert.NotZero(t, id, "a News Signal row must be written even for an empty batch")

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM news_signals`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestInsertNewsSignalRoundTripsHistogramAndArticles(t *testing.T) {
	s := newTestStore(t)

	id, err := s.InsertNewsSignal(NewsSignal{
		RecordedAt:       time.Now().UTC(),
		NewsScore:        72.5,
		DominantCategory: "banking",
		SentimentSummary: "Bearish: 80%, Bullish: 0%, Neutral: 20%",
		KeywordHistogram: map[string]int{"crisis": 3, "bailout": 1},
		ArticleCount:     2,
		BreakingCount:    1,
		IsBreaking:       true,
		Articles: []NewsSignalArticleRef{
			{URL: "https://wire.example/1", Title: "Bank run spreads", Source: "wire", Confidence: 90, IsBreaking: true},
		},
	})
	require.NoError(t, err)
	require.NotZero(t, id)

	var histogram, articlesJSON string
	require.NoError(t, s.db.QueryRow(`SELECT keyword_histogram, articles_json FROM news_signals WHERE id = ?`, id).
		Scan(&histogram, &articlesJSON))
	assert.Contains(t, histogram, `"crisis":3`)
	assert.Contains(t, articlesJSON, "Bank run spreads")
}

func TestUpdateNewsSignalFastTierSummaryAttachesToExistingRow(t *testing.T) {
	s := newTestStore(t)

	id, err := s.InsertNewsSignal(NewsSignal{RecordedAt: time.Now().UTC(), DominantCategory: "none"})
	require.NoError(t, err)

	require.NoError(t, s.UpdateNewsSignalFastTierSummary(id, "story holds together, no contagion risk"))

	var summary sql.NullString
	require.NoError(t, s.db.QueryRow(`SELECT fast_tier_summary FROM news_signals WHERE id = ?`, id).Scan(&summary))
	require.True(t, summary.Valid)
	assert.Equal(t, "story holds together, no contagion risk", summary.String)
}

func TestInsertLLMAnalysisRecordLinksToNewsSignal(t *testing.T) {
	s := newTestStore(t)

	signalID, err := s.InsertNewsSignal(NewsSignal{RecordedAt: time.Now().UTC(), DominantCategory: "geopolitical"})
	require.NoError(t, err)

	require.NoError(t, s.InsertLLMAnalysisRecord(LLMAnalysisRecord{
		NewsSignalID:         signalID,
		ModelTier:            "reasoning",
		TriggerKind:          "breaking",
		Coherence:            "coherent escalation",
		EnhancedConfidence:   sql.NullFloat64{Float64: 92, Valid: true},
		ConfidenceAdjustment: sql.NullFloat64{Float64: 10, Valid: true},
		InputTokens:          120,
		OutputTokens:         45,
		RecordedAt:           time.Now().UTC(),
	}))

	var tier, trigger string
	var linkedID int64
	require.NoError(t, s.db.QueryRow(`SELECT news_signal_id, model_tier, trigger_kind FROM llm_analysis_records WHERE news_signal_id = ?`, signalID).
		Scan(&linkedID, &tier, &trigger))
	assert.Equal(t, signalID, linkedID)
	assert.Equal(t, "reasoning", tier)
	assert.Equal(t, "breaking", trigger)
}

func TestRecentNewsForTickerMatchesTitleAndOrdersByRelevance(t *testing.T) {
	s := newTestStore(t)

	now := time.Now().UTC()
	insert := func(urlHash, title string, relevance float64) {
		_, err := s.db.Exec(`INSERT INTO news_articles
			(url_hash, title, source, relevance_score, published_at, fetched_at, is_breaking)
			VALUES (?, ?, 'wire', ?, ?, ?, 0)`, urlHash, title, relevance, now, now)
		require.NoError(t, err)
	}
	insert("h1", "ABC Corp posts strong earnings", 40)
	insert("h2", "ABC Corp faces regulatory probe", 80)
	insert("h3", "Unrelated ticker XYZ rallies", 90)

	refs, err := s.RecentNewsForTicker("ABC", 7, 3)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "ABC Corp faces regulatory probe", refs[0].Title, "higher relevance_score sorts first")
}
