package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	a := NewAdapter("key", "secret")
	a.baseURL = srv.URL
	a.client.RetryMax = 0
	return a
}

func TestQuoteParsesLatestTrade(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"trade":{"p":123.45,"t":"2026-07-30T10:00:00Z"}}`))
	})
	q, err := a.Quote(context.Background(), "ABC")
	require.NoError(t, err)
	assert.Equal(t, 123.45, q.Price)
}

func TestQuoteReturnsUnavailableOnZeroPrice(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"trade":{}}`))
	})
	_, err := a.Quote(context.Background(), "ABC")
	assert.Error(t, err)
}

func TestBarsSkipsUnparseableTimestamps(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bars":[
			{"t":"2026-07-30T10:00:00Z","o":1,"h":2,"l":0.5,"c":1.5,"v":100},
			{"t":"not-a-time","o":1,"h":2,"l":0.5,"c":1.5,"v":100}
		]}`))
	})
	bars, err := a.Bars(context.Background(), "ABC", "1Day", time.Now().Add(-24*time.Hour), time.Now())
	require.NoError(t, err)
	assert.Len(t, bars, 1)
}

func TestDoGetSurfacesHTTPErrorStatus(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("rate limited"))
	})
	_, err := a.Quote(context.Background(), "ABC")
	assert.Error(t, err)
}

func TestUnsupportedFieldsReturnUnavailable(t *testing.T) {
	a := NewAdapter("key", "secret")
	_, err := a.Fundamentals(context.Background(), "ABC")
	assert.Error(t, err)
	_, err = a.AnalystTarget(context.Background(), "ABC")
	assert.Error(t, err)
	_, err = a.Filings(context.Background(), "ABC")
	assert.Error(t, err)
}
