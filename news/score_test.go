package news

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/realmrhigh/hightrade/dedup"
)

func TestComputeScoreWeightsFiveComponents(t *testing.T) {
	articles := []Article{
		{SourceTier: TierOne, Category: CategoryBanking, Confidence: 80, IsBreaking: true, Sentiment: 60,
			Article: articleOf("Bank run fears spread as contagion worries grow")},
		{SourceTier: TierOne, Category: CategoryBanking, Confidence: 70, IsBreaking: true, Sentiment: 55,
			Article: articleOf("Contagion concerns mount amid bank run reports")},
		{SourceTier: TierTwo, Category: CategoryBanking, Confidence: 60, IsBreaking: true, Sentiment: 50,
			Article: articleOf("Third bank faces liquidity crunch amid broader selloff")},
	}
	score := ComputeScore(articles)

	expected := 0.35*score.SentimentNet + 0.25*score.Concentration + 0.20*score.UrgencyPremium +
		0.15*score.SourceWeightedConfidence + 0.05*score.KeywordSpecificity
	assert.InDelta(t, expected, score.Total, 0.05, "documented weights must sum to the total within ±0.05 per the testable property")
	assert.Equal(t, CategoryBanking, score.DominantCategory)
	assert.True(t, score.IsBreaking, "3 breaking articles force the urgency ceiling and breaking flag")
}

func TestEmptyBatchScoresZero(t *testing.T) {
	score := ComputeScore(nil)
	assert.Equal(t, 0.0, score.Total)
	assert.Equal(t, CategoryNone, score.DominantCategory)
}

func TestLowConfidenceArticlesExcludedFromConfidenceComponent(t *testing.T) {
	articles := []Article{
		{SourceTier: TierOne, Confidence: 10, Sentiment: 0, Article: articleOf("noise")},
	}
	score := ComputeScore(articles)
	assert.Equal(t, 0.0, score.SourceWeightedConfidence)
}

func TestUrgencyPremiumCapsAt80BelowBreakingThreshold(t *testing.T) {
	articles := []Article{
		{IsBreaking: true, Article: articleOf("a")},
		{IsBreaking: true, Article: articleOf("b")},
		{IsHigh: true, Article: articleOf("c")},
		{IsHigh: true, Article: articleOf("d")},
	}
	urgency, breaking := urgencyPremium(articles)
	assert.Equal(t, 2, breaking)
	assert.Equal(t, 70.0, urgency) // 30*2 + 5*2 = 70, under the cap
}

func TestFastTierGateRequiresNewContentOrBreakingOrDefconChange(t *testing.T) {
	assert.False(t, ShouldRunFastTier(0, false, false))
	assert.True(t, ShouldRunFastTier(1, false, false))
	assert.True(t, ShouldRunFastTier(0, true, false))
	assert.True(t, ShouldRunFastTier(0, false, true))
}

func TestReasoningTierGateIsAdditiveOnFastTier(t *testing.T) {
	assert.False(t, ShouldRunReasoningTier(false, 90, 5, true), "reasoning tier never runs if fast tier gate fails")
	assert.True(t, ShouldRunReasoningTier(true, 45, 0, false))
	assert.True(t, ShouldRunReasoningTier(true, 10, 2, false))
	assert.False(t, ShouldRunReasoningTier(true, 10, 0, false))
}

func TestKeywordHistogramCountsTrackedTermsAndCapsAtFifteen(t *testing.T) {
	articles := []Article{
		{Article: articleOf("Fed signals emergency rate crisis as panic selloff spreads")},
		{Article: articleOf("Crisis deepens: panic grips markets amid rate fears")},
	}
	hist := KeywordHistogram(articles)
	assert.Equal(t, 2, hist["crisis"])
	assert.Equal(t, 2, hist["panic"])
	assert.LessOrEqual(t, len(hist), 15)
	assert.NotContains(t, hist, "optimism", "untracked-in-text terms must not appear")
}

func TestKeywordHistogramEmptyBatch(t *testing.T) {
	assert.Empty(t, KeywordHistogram(nil))
}

func TestSentimentSummaryBucketsByThreshold(t *testing.T) {
	articles := []Article{
		{Sentiment: -50}, // bearish
		{Sentiment: -20}, // bearish
		{Sentiment: 30},  // bullish
		{Sentiment: 0},   // neutral
	}
	summary := SentimentSummary(articles)
	assert.Contains(t, summary, "Bearish: 50%")
	assert.Contains(t, summary, "Bullish: 25%")
	assert.Contains(t, summary, "Neutral: 25%")
}

func TestSentimentSummaryEmptyBatch(t *testing.T) {
	assert.Equal(t, "No articles", SentimentSummary(nil))
}

func articleOf(title string) dedup.Article {
	return dedup.Article{Title: title}
}
