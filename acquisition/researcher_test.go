package acquisition

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realmrhigh/hightrade/market"
	"github.com/realmrhigh/hightrade/store"
)

type fakeDataSource struct {
	quote        *market.Quote
	quoteErr     error
	bars         []market.Bar
	barsErr      error
	fundamentals *market.Fundamentals
	fundErr      error
	target       *market.AnalystTarget
	targetErr    error
	filings      []market.Filing
	filingsErr   error
}

func (f *fakeDataSource) Quote(ctx context.Context, ticker string) (*market.Quote, error) {
	return f.quote, f.quoteErr
}
func (f *fakeDataSource) Bars(ctx context.Context, ticker, timeframe string, start, end time.Time) ([]market.Bar, error) {
	return f.bars, f.barsErr
}
func (f *fakeDataSource) Fundamentals(ctx context.Context, ticker string) (*market.Fundamentals, error) {
	return f.fundamentals, f.fundErr
}
func (f *fakeDataSource) AnalystTarget(ctx context.Context, ticker string) (*market.AnalystTarget, error) {
	return f.target, f.targetErr
}
func (f *fakeDataSource) Filings(ctx context.Context, ticker string) ([]market.Filing, error) {
	return f.filings, f.filingsErr
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestResearcherCyclePromotesPendingToResearched(t *testing.T) {
	s := newTestStore(t)
	id, err := s.AddToWatchlist("ABC", "news", 0.8)
	require.NoError(t, err)

	data := &fakeDataSource{
		quote: &market.Quote{Ticker: "ABC", Price: 105.5, Timestamp: time.Now()},
		bars: []market.Bar{
			{Close: 100, High: 101, Low: 99},
			{Close: 102, High: 103, Low: 98},
			{Close: 105.5, High: 106, Low: 104},
		},
		fundamentals: &market.Fundamentals{MarketCapUSD: 5e9, PERatio: 22.1},
		target:       &market.AnalystTarget{TargetMean: 120, NumAnalysts: 8},
		filings:      []market.Filing{{Form: "10-Q", FiledAt: time.Now()}},
	}

	r := NewResearcher(s, data)
	researched, err := r.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ABC"}, researched)

	active, err := s.ActiveWatchlist()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, store.WatchlistResearched, active[0].Status)

	ready, err := s.ResearchReadyForAnalysis(10)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, store.ResearchLibraryReady, ready[0].Status)
	assert.True(t, ready[0].WatchlistEntryID.Valid)
	assert.Equal(t, id, ready[0].WatchlistEntryID.Int64)
	assert.Equal(t, 105.5, ready[0].CurrentPrice.Float64)
}

func TestResearcherPartialFailureDowngradesStatus(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AddToWatchlist("XYZ", "congressional", 0.6)
	require.NoError(t, err)

	data := &fakeDataSource{
		quote:     &market.Quote{Ticker: "XYZ", Price: 50},
		bars:      []market.Bar{{Close: 50, High: 51, Low: 49}},
		fundErr:   assertErr{},
		targetErr: assertErr{},
		filingsErr: assertErr{},
	}

	r := NewResearcher(s, data)
	_, err = r.RunCycle(context.Background())
	require.NoError(t, err)

	ready, err := s.ResearchReadyForAnalysis(10)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, store.ResearchPartial, ready[0].Status)
	assert.True(t, ready[0].ErrorNotes.Valid)
}

func TestResearcherCycleNoopsWhenNothingPending(t *testing.T) {
	s := newTestStore(t)
	r := NewResearcher(s, &fakeDataSource{})
	researched, err := r.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Nil(t, researched)
}

type assertErr struct{}

func (assertErr) Error() string { return "simulated failure" }
