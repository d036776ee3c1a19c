package macro

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seriesServer(t *testing.T, values map[string][]observation) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("series_id")
		obs := values[id]
		// fixture data is chronological; the real FRED API returns
		// newest-first when sort_order=desc, so reverse here too.
		reversed := make([]observation, len(obs))
		for i, o := range obs {
			reversed[len(obs)-1-i] = o
		}
		require.NoError(t, json.NewEncoder(w).Encode(seriesResponse{Observations: reversed}))
	}))
}

func TestFetchIndicatorsAssemblesFromAllSeries(t *testing.T) {
	now := time.Now()
	fmtDate := func(d time.Time) string { return d.Format("2006-01-02") }

	values := map[string][]observation{
		seriesYieldCurve:        {{Date: fmtDate(now), Value: "0.75"}},
		seriesFedFunds:          {{Date: fmtDate(now.AddDate(0, -3, 0)), Value: "5.0"}, {Date: fmtDate(now), Value: "5.5"}},
		seriesUnemploymentRate:  {{Date: fmtDate(now), Value: "4.2"}},
		seriesM2:                {{Date: fmtDate(now.AddDate(-1, 0, 0)), Value: "20000"}, {Date: fmtDate(now), Value: "21000"}},
		seriesHYOAS:             {{Date: fmtDate(now), Value: "3.5"}},
		seriesConsumerSentiment: {{Date: fmtDate(now), Value: "72"}},
	}

	srv := seriesServer(t, values)
	defer srv.Close()

	f := NewFetcher("test-key")
	f.client.HTTPClient = srv.Client()
	overrideBaseURL(t, srv.URL)

	in := f.FetchIndicators(context.Background())
	assert.True(t, in.HasYieldCurve)
	assert.InDelta(t, 0.75, in.YieldCurveSpread, 0.001)
	assert.True(t, in.HasFedFunds3M)
	assert.InDelta(t, 0.5, in.FedFunds3MChange, 0.001)
	assert.True(t, in.HasUnemployment)
	assert.InDelta(t, 4.2, in.UnemploymentRate, 0.001)
	assert.True(t, in.HasHYOAS)
	assert.InDelta(t, 350, in.HYOASBps, 0.001)
	assert.True(t, in.HasConsumerSent)
	assert.InDelta(t, 72, in.ConsumerSentiment, 0.001)
}

// overrideBaseURL points the package-level FRED endpoint at a test
// server for the duration of the test.
func overrideBaseURL(t *testing.T, url string) {
	t.Helper()
	orig := fredBaseURLOverride
	fredBaseURLOverride = url
	t.Cleanup(func() { fredBaseURLOverride = orig })
}
