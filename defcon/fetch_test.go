package defcon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompositeScoreAveragesThreeSignals(t *testing.T) {
	composite, dropPct := CompositeScore(RawSignals{TenYearYield: 4.5, VIX: 30, SP500ChangePct: -5})
	assert.InDelta(t, (10.0+30.0+25.0)/3, composite, 0.001)
	assert.InDelta(t, -0.05, dropPct, 0.0001)
}

func TestCompositeScoreZeroBelowThresholds(t *testing.T) {
	composite, dropPct := CompositeScore(RawSignals{TenYearYield: 3.8, VIX: 18, SP500ChangePct: -0.5})
	assert.Equal(t, 0.0, composite)
	assert.InDelta(t, -0.005, dropPct, 0.0001)
}

func TestFetchRawSignalsDegradesPerLegOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/fred/") || strings.Contains(r.URL.RawQuery, "series_id"):
			w.Write([]byte(`{"observations":[{"value":"4.25"}]}`))
		case strings.Contains(r.URL.Path, "VIX"):
			w.Write([]byte(`{"chart":{"result":[{"meta":{"regularMarketPrice":28.5,"chartPreviousClose":27.0}}]}}`))
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	f := NewFetcher("test-key")
	f.client.HTTPClient = srv.Client()
	origFred, origYahoo := fredObservationsURLOverride, yahooChartURLOverride
	fredObservationsURLOverride = srv.URL
	yahooChartURLOverride = srv.URL + "/"
	defer func() { fredObservationsURLOverride, yahooChartURLOverride = origFred, origYahoo }()

	raw := f.FetchRawSignals(context.Background())
	assert.InDelta(t, 4.25, raw.TenYearYield, 0.001)
	assert.InDelta(t, 28.5, raw.VIX, 0.001)
	// SP500 leg gets a 500 (path doesn't contain "VIX"), so it degrades to zero.
	assert.Equal(t, 0.0, raw.SP500ChangePct)
}
