// Package political is the political half of the Macro & Political
// Collectors (C7): filters congressional disclosures above a minimum
// trade size and detects same-ticker cluster buys across distinct
// politicians within a rolling window.
//
// Grounded on original_source/congressional_tracker.py's
// detect_cluster_buys/_score_cluster. The signal_strength formula
// follows the inner-capped reading resolved in SPEC_FULL.md §9: caps
// are applied to the count and amount terms individually before the
// outer min(100, ...) cap, not to their sum.
package political

import (
	"math"
	"sort"
	"time"
)

const (
	// MinTradeSize is the default disclosure-value floor below which a
	// trade is not considered for cluster detection.
	MinTradeSize = 15000.0
	// ClusterWindowDays is the rolling lookback for "distinct politicians
	// buying the same ticker."
	ClusterWindowDays = 30
	// ClusterMinCount is how many distinct politicians buying one ticker
	// within the window constitute a cluster.
	ClusterMinCount = 3
)

// Trade is a single disclosed congressional transaction, already
// normalized to a midpoint amount at the collector boundary (per the §9
// open-question resolution: both House and Senate feeds, and any
// scalar-amount feed, are reduced to a midpoint-of-range dollar figure
// before reaching this package).
type Trade struct {
	Ticker         string
	Politician     string
	Party          string
	Direction      string // "buy" | "sell"
	AmountMidpoint float64
	DisclosureDate time.Time
}

// Cluster is a detected same-ticker cluster-buy signal.
type Cluster struct {
	Ticker               string
	BuyCount             int
	Politicians          []string
	TotalEstimatedAmount float64
	Bipartisan           bool
	Parties              []string
	CommitteeRelevance   []string
	WindowDays           int
	SignalStrength       float64
}

// FilterByMinSize drops trades below the minimum disclosure threshold.
func FilterByMinSize(trades []Trade, minSize float64) []Trade {
	if minSize <= 0 {
		minSize = MinTradeSize
	}
	out := make([]Trade, 0, len(trades))
	for _, t := range trades {
		if t.AmountMidpoint >= minSize {
			out = append(out, t)
		}
	}
	return out
}

// committeeIntelMap mirrors COMMITTEE_INTEL_MAP: committees whose
// members have early visibility into a sector, keyed by the tickers
// that sector covers.
var committeeIntelMap = map[string][]string{
	"armed_services":      {"LMT", "RTX", "NOC", "GD", "BA"},
	"energy_and_commerce": {"XOM", "CVX", "NEE", "DUK"},
	"financial_services":  {"JPM", "GS", "MS", "BAC", "WFC"},
	"health":              {"UNH", "PFE", "MRK", "JNJ", "ABBV"},
	"technology":          {"NVDA", "MSFT", "GOOGL", "META", "AAPL"},
}

// CommitteeRelevance returns the committees with early sector visibility
// into ticker, exported so a caller persisting an individual Trade can
// stamp the same committee-relevance judgment DetectClusterBuys applies
// at the cluster level.
func CommitteeRelevance(ticker string) []string {
	return committeeRelevance(ticker)
}

func committeeRelevance(ticker string) []string {
	var relevant []string
	for committee, tickers := range committeeIntelMap {
		for _, t := range tickers {
			if t == ticker {
				relevant = append(relevant, committee)
				break
			}
		}
	}
	sort.Strings(relevant)
	return relevant
}

// DetectClusterBuys groups buy trades by ticker within the rolling
// window and scores each group bought by at least minCount distinct
// politicians.
// `now` is injected so the window boundary is deterministic in tests.
func DetectClusterBuys(trades []Trade, windowDays, minCount int, now time.Time) []Cluster {
	if windowDays <= 0 {
		windowDays = ClusterWindowDays
	}
	if minCount <= 0 {
		minCount = ClusterMinCount
	}
	cutoff := now.AddDate(0, 0, -windowDays)

	groups := make(map[string][]Trade)
	for _, t := range trades {
		if t.Direction != "buy" {
			continue
		}
		if t.DisclosureDate.Before(cutoff) {
			continue
		}
		groups[t.Ticker] = append(groups[t.Ticker], t)
	}

	var clusters []Cluster
	for ticker, group := range groups {
		politicianSet := make(map[string]bool)
		partySet := make(map[string]bool)
		var total float64
		for _, t := range group {
			politicianSet[t.Politician] = true
			partySet[t.Party] = true
			total += t.AmountMidpoint
		}
		if len(politicianSet) < minCount {
			continue
		}

		politicians := setToSortedSlice(politicianSet)
		parties := setToSortedSlice(partySet)
		bipartisan := len(parties) > 1
		relevance := committeeRelevance(ticker)

		clusters = append(clusters, Cluster{
			Ticker:               ticker,
			BuyCount:             len(group),
			Politicians:          politicians,
			TotalEstimatedAmount: total,
			Bipartisan:           bipartisan,
			Parties:              parties,
			CommitteeRelevance:   relevance,
			WindowDays:           windowDays,
			SignalStrength:       scoreCluster(len(group), total, bipartisan, relevance),
		})
	}

	sort.Slice(clusters, func(i, j int) bool {
		return clusters[i].SignalStrength > clusters[j].SignalStrength
	})
	return clusters
}

func setToSortedSlice(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// scoreCluster implements the §9-resolved inner-capped formula:
// min(100, min(50, 10·count) + min(20, 3·log10(amount)) + 15·bipartisan + 15·committee_relevance)
func scoreCluster(count int, totalAmount float64, bipartisan bool, committeeRelevance []string) float64 {
	score := math.Min(50, float64(count)*10)

	if totalAmount > 0 {
		score += math.Min(20, math.Log10(math.Max(1, totalAmount))*3)
	}
	if bipartisan {
		score += 15
	}
	if len(committeeRelevance) > 0 {
		score += 15
	}

	return math.Min(100, score)
}
