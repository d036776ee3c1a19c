package news

import (
	"math"
	"strings"
	"time"
)

// crisisPattern is one candidate CrisisCategory and the keywords that
// match it, grounded on news_sentiment.py's CRISIS_PATTERNS table.
type crisisPattern struct {
	category CrisisCategory
	keywords []string
}

var crisisPatterns = []crisisPattern{
	{CategoryBanking, []string{"bank run", "contagion", "insolvency", "bailout", "financial stress", "banking", "credit", "liquidity", "spread"}},
	{CategoryGeopolitical, []string{"tariff", "trade war", "sanctions", "invasion", "geopolitical", "conflict", "war"}},
	{CategoryMonetary, []string{"inflation", "yield", "rate hike", "fed", "tightening", "bonds", "interest rate"}},
	{CategoryEnergy, []string{"oil", "opec", "pipeline", "crude", "energy prices", "gas prices"}},
	{CategorySupplyChain, []string{"supply chain", "shortage", "shipping", "port congestion", "chip shortage"}},
	{CategoryMarketStructure, []string{"circuit breaker", "flash crash", "trading halt", "margin call", "selloff", "correction", "crash", "drawdown"}},
}

var bearishKeywords = []string{
	"crash", "collapse", "crisis", "plunge", "plummet", "fear", "panic",
	"sell-off", "selloff", "tumble", "slump", "recession", "depression",
	"downturn", "bearish", "negative", "warning", "alert", "emergency",
	"concern", "worry", "risk", "threat", "decline", "fall", "drop",
}

var bullishKeywords = []string{
	"rally", "surge", "soar", "recovery", "rebound", "deal", "agreement",
	"resolution", "bullish", "positive", "optimism", "growth", "gain",
	"rise", "climb", "advance", "breakthrough", "success", "profit",
	"strong", "robust", "improving", "upturn",
}

// Classify fills each article's Category, Confidence, Sentiment,
// IsBreaking, and IsHigh fields from its title/description text and
// publish age, grounded on news_sentiment.py's
// analyze_article/_match_crisis_pattern/_analyze_sentiment/
// _classify_urgency. It is a pure keyword match, not an LLM call — the
// two LLM tiers (ShouldRunFastTier/ShouldRunReasoningTier) gate a
// separate narrative pass over the already-classified batch.
func Classify(articles []Article, now time.Time) []Article {
	out := make([]Article, len(articles))
	for i, a := range articles {
		classifyArticle(&a, now)
		out[i] = a
	}
	return out
}

func classifyArticle(a *Article, now time.Time) {
	// Title is weighted 3x relative to the description, matching the
	// Python source's combined_text construction.
	text := strings.ToLower(a.Title + " " + a.Title + " " + a.Title + " " + a.Description)

	category, confidence := matchCrisisPattern(text)
	a.Category = category
	a.Confidence = confidence
	a.Sentiment = sentimentScore(text)

	age := now.Sub(time.Unix(a.PublishedAt, 0))
	switch {
	case age <= 30*time.Minute && confidence >= 70:
		a.IsBreaking = true
	case age <= 120*time.Minute && confidence >= 50:
		a.IsHigh = true
	}
}

func matchCrisisPattern(text string) (CrisisCategory, float64) {
	var best CrisisCategory
	bestScore := -1.0
	for _, p := range crisisPatterns {
		matched := 0
		seen := make(map[string]bool)
		for _, kw := range p.keywords {
			if strings.Contains(text, kw) {
				matched++
				seen[kw] = true
			}
		}
		if matched == 0 {
			continue
		}
		score := math.Min(100, float64(matched)*15+float64(len(seen))*10)
		if score > bestScore {
			bestScore = score
			best = p.category
		}
	}
	if bestScore < 0 {
		return CategoryMarketStructure, 30.0
	}
	return best, bestScore
}

// sentimentScore returns a -100 (very bearish) to +100 (very bullish)
// score, matching _analyze_sentiment's keyword-density formula.
func sentimentScore(text string) float64 {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}
	bearish := countMatches(text, bearishKeywords)
	bullish := countMatches(text, bullishKeywords)
	score := (float64(bullish-bearish) / math.Max(1, float64(len(words))*0.01)) * 100
	return math.Max(-100, math.Min(100, score))
}

func countMatches(text string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			n++
		}
	}
	return n
}
