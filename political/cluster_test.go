package political

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFilterByMinSizeDropsSmallTrades(t *testing.T) {
	trades := []Trade{
		{Ticker: "A", AmountMidpoint: 10000},
		{Ticker: "B", AmountMidpoint: 20000},
	}
	out := FilterByMinSize(trades, 0)
	assert.Len(t, out, 1)
	assert.Equal(t, "B", out[0].Ticker)
}

func TestClusterRequiresThreeDistinctBuysWithinWindow(t *testing.T) {
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	trades := []Trade{
		{Ticker: "XYZ", Politician: "A", Party: "D", Direction: "buy", AmountMidpoint: 20000, DisclosureDate: now.AddDate(0, 0, -5)},
		{Ticker: "XYZ", Politician: "B", Party: "D", Direction: "buy", AmountMidpoint: 30000, DisclosureDate: now.AddDate(0, 0, -10)},
	}
	clusters := DetectClusterBuys(trades, 30, 3, now)
	assert.Empty(t, clusters, "only 2 distinct buys must not form a cluster")

	trades = append(trades, Trade{Ticker: "XYZ", Politician: "C", Party: "R", Direction: "buy", AmountMidpoint: 25000, DisclosureDate: now.AddDate(0, 0, -2)})
	clusters = DetectClusterBuys(trades, 30, 3, now)
	if assert.Len(t, clusters, 1) {
		assert.Equal(t, "XYZ", clusters[0].Ticker)
		assert.True(t, clusters[0].Bipartisan)
	}
}

func TestClusterExcludesTradesOutsideWindow(t *testing.T) {
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	trades := []Trade{
		{Ticker: "OLD", Politician: "A", Direction: "buy", AmountMidpoint: 20000, DisclosureDate: now.AddDate(0, 0, -40)},
		{Ticker: "OLD", Politician: "B", Direction: "buy", AmountMidpoint: 20000, DisclosureDate: now.AddDate(0, 0, -35)},
		{Ticker: "OLD", Politician: "C", Direction: "buy", AmountMidpoint: 20000, DisclosureDate: now.AddDate(0, 0, -31)},
	}
	clusters := DetectClusterBuys(trades, 30, 3, now)
	assert.Empty(t, clusters)
}

func TestScoreClusterAppliesInnerCapsBeforeOuterCap(t *testing.T) {
	// 10 buyers (count term would be 100 uncapped, capped to 50),
	// $50,000,000 amount (log10(5e7)*3 ≈ 23.1, capped to 20),
	// bipartisan +15, committee +15 => 50+20+15+15 = 100, outer cap no-op.
	s := scoreCluster(10, 50_000_000, true, []string{"financial_services"})
	assert.Equal(t, 100.0, s)
}

func TestScoreClusterCapsCountTermAtFifty(t *testing.T) {
	// count=8 alone would contribute 80 under the uncapped literal
	// reading; the inner-capped resolution limits the count term to 50.
	capped := scoreCluster(8, 0, false, nil)
	assert.Equal(t, 50.0, capped)
}

func TestCommitteeRelevanceDetectedForMappedTicker(t *testing.T) {
	assert.Contains(t, committeeRelevance("NVDA"), "technology")
	assert.Empty(t, committeeRelevance("UNKNOWNTICKER"))
}
