// Package news is the News Pipeline (C6): multi-source concurrent fetch,
// two-phase deduplication (package dedup), and the five-component
// weighted scoring model of SPEC_FULL.md §4.6.
//
// Grounded on original_source/news_signals.py and news_aggregator.py's
// scoring weights and on the teacher's concurrent-fetch idiom (goroutines
// joining at a channel/WaitGroup boundary, as in trader/*.go's
// multi-symbol fan-out, generalized here to multi-source fan-out).
package news

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/realmrhigh/hightrade/dedup"
)

// SourceTier weights an article's sentiment contribution by provenance.
type SourceTier int

const (
	TierOne   SourceTier = 1 // wire services, regulators
	TierTwo   SourceTier = 2 // major financial press
	TierThree SourceTier = 3 // aggregators
	TierOther SourceTier = 0
)

func (t SourceTier) weight() float64 {
	switch t {
	case TierOne:
		return 1.0
	case TierTwo:
		return 0.8
	case TierThree:
		return 0.6
	default:
		return 0.4
	}
}

// CrisisCategory is the closed ~7-value enum §3 describes for the
// dominant crisis category of a News Signal.
type CrisisCategory string

const (
	CategoryNone        CrisisCategory = "none"
	CategoryBanking      CrisisCategory = "banking"
	CategoryGeopolitical CrisisCategory = "geopolitical"
	CategoryMonetary     CrisisCategory = "monetary"
	CategoryEnergy       CrisisCategory = "energy"
	CategorySupplyChain  CrisisCategory = "supply_chain"
	CategoryMarketStructure CrisisCategory = "market_structure"
)

// Article is the scored article shape; it embeds dedup.Article so the
// same value flows through Deduplicate without copying.
type Article struct {
	dedup.Article
	SourceTier SourceTier
	Category   CrisisCategory
	Confidence float64 // 0-100
	IsBreaking bool
	IsHigh     bool // "high" urgency, below the breaking threshold
	Sentiment  float64 // bullish-minus-bearish token score, -100..100, already per-article
}

var highSpecificityTerms = []string{
	"bank run", "contagion", "default", "bailout", "insolvency", "collapse", "frozen redemptions",
}
var mediumSpecificityTerms = []string{
	"volatility", "selloff", "downgrade", "liquidity", "margin call", "correction",
}

// Score is the five-component composite of §4.6.
type Score struct {
	SentimentNet             float64
	Concentration            float64
	UrgencyPremium           float64
	SourceWeightedConfidence float64
	KeywordSpecificity       float64
	Total                    float64
	DominantCategory         CrisisCategory
	BreakingCount            int
	IsBreaking               bool
}

// ComputeScore implements §4.6's weighted composite, each sub-score
// already normalized to 0-100 before weighting.
func ComputeScore(articles []Article) Score {
	if len(articles) == 0 {
		return Score{DominantCategory: CategoryNone}
	}

	sentiment := sentimentNet(articles)
	concentration, dominant := concentrationAndDominant(articles)
	urgency, breakingCount := urgencyPremium(articles)
	confidence := sourceWeightedConfidence(articles)
	specificity := keywordSpecificity(articles)

	total := 0.35*sentiment + 0.25*concentration + 0.20*urgency + 0.15*confidence + 0.05*specificity
	total = math.Round(total*100) / 100

	return Score{
		SentimentNet:             sentiment,
		Concentration:            concentration,
		UrgencyPremium:           urgency,
		SourceWeightedConfidence: confidence,
		KeywordSpecificity:       specificity,
		Total:                    total,
		DominantCategory:         dominant,
		BreakingCount:            breakingCount,
		IsBreaking:               total >= 70 || breakingCount >= 3,
	}
}

func sentimentNet(articles []Article) float64 {
	var sum, weightSum float64
	for _, a := range articles {
		w := a.SourceTier.weight()
		sum += a.Sentiment * w
		weightSum += w
	}
	if weightSum == 0 {
		return 0
	}
	return sum / weightSum
}

func concentrationAndDominant(articles []Article) (float64, CrisisCategory) {
	counts := make(map[CrisisCategory]int)
	for _, a := range articles {
		counts[a.Category]++
	}

	var dominant CrisisCategory
	best := -1
	// deterministic tie-break: alphabetically first category wins
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	for _, k := range keys {
		c := CrisisCategory(k)
		if counts[c] > best {
			best = counts[c]
			dominant = c
		}
	}

	share := float64(best) / float64(len(articles))
	// linear map [0.2, 0.8] -> [0, 100], clamped at the ends
	clamped := math.Min(0.8, math.Max(0.2, share))
	pct := (clamped - 0.2) / (0.8 - 0.2) * 100
	return pct, dominant
}

func urgencyPremium(articles []Article) (float64, int) {
	var breaking, high int
	for _, a := range articles {
		if a.IsBreaking {
			breaking++
		} else if a.IsHigh {
			high++
		}
	}
	if breaking >= 3 {
		return 100, breaking
	}
	v := 30*float64(breaking) + 5*float64(high)
	if v > 80 {
		v = 80
	}
	return v, breaking
}

func sourceWeightedConfidence(articles []Article) float64 {
	var sum, weightSum float64
	for _, a := range articles {
		if a.Confidence <= 20 {
			continue
		}
		w := a.SourceTier.weight()
		sum += a.Confidence * w
		weightSum += w
	}
	if weightSum == 0 {
		return 0
	}
	return sum / weightSum
}

func keywordSpecificity(articles []Article) float64 {
	var total float64
	for _, a := range articles {
		text := strings.ToLower(a.Title + " " + a.Description)
		for _, term := range highSpecificityTerms {
			if strings.Contains(text, term) {
				total += 20
			}
		}
		for _, term := range mediumSpecificityTerms {
			if strings.Contains(text, term) {
				total += 5
			}
		}
	}
	if total > 100 {
		total = 100
	}
	return total
}

// CheckDefconOverride decides whether this cycle's news score warrants
// overriding the quantitative DEFCON base level, mirroring
// news_signals.py's _check_defcon_override: a very high score with
// multiple breaking articles and net-bearish sentiment forces DEFCON 1;
// a merely high score with bearish sentiment forces DEFCON 2; anything
// else declines to override. recommendedDEFCON is only meaningful when
// override is true.
func (s Score) CheckDefconOverride() (override bool, recommendedDEFCON int) {
	bearish := s.SentimentNet < 0
	switch {
	case s.Total >= 90 && s.BreakingCount >= 3 && bearish:
		return true, 1
	case s.Total >= 80 && bearish:
		return true, 2
	default:
		return false, 0
	}
}

// trackedKeywords is the closed vocabulary news_signals.py's
// _get_keyword_hits counts occurrences of, in order of that function's own
// list.
var trackedKeywords = []string{
	"emergency", "crisis", "crash", "collapse", "recession", "panic",
	"selloff", "plunge", "rate", "fed", "inflation", "yield", "tariff",
	"china", "sanctions", "liquidity", "credit", "banking", "correction",
	"bearish", "warning", "risk", "threat", "decline", "volatility",
	"rally", "surge", "recovery", "growth", "bullish", "optimism",
}

// KeywordHistogram counts occurrences of each tracked keyword across every
// article's title+description, keeping only the top 15 by count — the
// News Signal entity's keyword histogram attribute.
func KeywordHistogram(articles []Article) map[string]int {
	var all strings.Builder
	for _, a := range articles {
		all.WriteString(strings.ToLower(a.Title))
		all.WriteByte(' ')
		all.WriteString(strings.ToLower(a.Description))
		all.WriteByte(' ')
	}
	text := all.String()

	type kv struct {
		k string
		v int
	}
	var hits []kv
	for _, kw := range trackedKeywords {
		if n := strings.Count(text, kw); n > 0 {
			hits = append(hits, kv{kw, n})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].v > hits[j].v })
	if len(hits) > 15 {
		hits = hits[:15]
	}

	out := make(map[string]int, len(hits))
	for _, h := range hits {
		out[h.k] = h.v
	}
	return out
}

// SentimentSummary renders the bearish/bullish/neutral article split as
// the News Signal entity's human-readable sentiment_summary, mirroring
// news_signals.py's _generate_sentiment_summary.
func SentimentSummary(articles []Article) string {
	if len(articles) == 0 {
		return "No articles"
	}
	var bearish, bullish, neutral int
	for _, a := range articles {
		switch {
		case a.Sentiment < -10:
			bearish++
		case a.Sentiment > 10:
			bullish++
		default:
			neutral++
		}
	}
	total := float64(len(articles))
	return fmt.Sprintf("Bearish: %.0f%%, Bullish: %.0f%%, Neutral: %.0f%%",
		float64(bearish)/total*100, float64(bullish)/total*100, float64(neutral)/total*100)
}

// ShouldRunFastTier implements §4.6's fast-tier LLM gate.
func ShouldRunFastTier(newArticleCount int, breaking, defconChanged bool) bool {
	return newArticleCount > 0 || breaking || defconChanged
}

// ShouldRunReasoningTier implements §4.6's reasoning-tier LLM gate,
// which is strictly additive on top of the fast-tier gate.
func ShouldRunReasoningTier(fastTierGate bool, score float64, breakingCount int, defconChanged bool) bool {
	if !fastTierGate {
		return false
	}
	return score >= 40 || breakingCount >= 2 || defconChanged
}
