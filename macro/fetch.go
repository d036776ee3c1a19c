package macro

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/realmrhigh/hightrade/apperr"
)

const fredBaseURL = "https://api.stlouisfed.org/fred/series/observations"

// fredBaseURLOverride lets tests redirect fetchSeries at a local server;
// production code never reassigns it.
var fredBaseURLOverride = fredBaseURL

// Series IDs pulled each cycle, grounded on fred_macro.py's run_full_analysis.
const (
	seriesYieldCurve        = "T10Y2Y"
	seriesFedFunds          = "FEDFUNDS"
	seriesUnemploymentRate  = "UNRATE"
	seriesM2                = "M2SL"
	seriesHYOAS             = "BAMLH0A0HYM2"
	seriesConsumerSentiment = "UMCSENT"
)

type observation struct {
	Date  string `json:"date"`
	Value string `json:"value"`
}

type seriesResponse struct {
	Observations []observation `json:"observations"`
}

// Fetcher pulls the tracked FRED series over HTTP.
type Fetcher struct {
	apiKey string
	client *retryablehttp.Client
}

func NewFetcher(apiKey string) *Fetcher {
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = 3
	return &Fetcher{apiKey: apiKey, client: client}
}

// fetchSeries returns the chronological (date, value) observations for a
// series over the trailing 6 months, skipping FRED's "." missing-data
// sentinel, mirroring fetch_series.
func (f *Fetcher) fetchSeries(ctx context.Context, seriesID string, limit int) ([]observation, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, fredBaseURLOverride, nil)
	if err != nil {
		return nil, apperr.Transient("macro.fetchSeries", err)
	}
	start := time.Now().AddDate(0, 0, -180).Format("2006-01-02")
	q := req.URL.Query()
	q.Set("series_id", seriesID)
	q.Set("api_key", f.apiKey)
	q.Set("file_type", "json")
	q.Set("sort_order", "desc")
	q.Set("limit", strconv.Itoa(limit))
	q.Set("observation_start", start)
	req.URL.RawQuery = q.Encode()

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, apperr.Transient("macro.fetchSeries", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Transient("macro.fetchSeries", fmt.Errorf("fred returned status %d", resp.StatusCode))
	}

	var out seriesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperr.ParseFailure("macro.fetchSeries", err)
	}

	var valid []observation
	for i := len(out.Observations) - 1; i >= 0; i-- {
		obs := out.Observations[i]
		if obs.Value == "." {
			continue
		}
		valid = append(valid, obs)
	}
	return valid, nil
}

func latestValue(obs []observation) (float64, bool) {
	if len(obs) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(obs[len(obs)-1].Value, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// change3m compares the latest observation to the one roughly 3 months
// earlier, mirroring calculate_3m_change's "closest-prior" lookup.
func change3m(obs []observation) (float64, bool) {
	if len(obs) < 2 {
		return 0, false
	}
	latest, ok := latestValue(obs)
	if !ok {
		return 0, false
	}
	cutoff := time.Now().AddDate(0, -3, 0)
	for i := len(obs) - 1; i >= 0; i-- {
		d, err := time.Parse("2006-01-02", obs[i].Date)
		if err != nil {
			continue
		}
		if d.Before(cutoff) || d.Equal(cutoff) {
			v, err := strconv.ParseFloat(obs[i].Value, 64)
			if err != nil {
				return 0, false
			}
			return latest - v, true
		}
	}
	return 0, false
}

// FetchIndicators pulls every tracked series and assembles an Indicators
// value for Compute. A series that fails to fetch is left unset (its
// Has* flag stays false), matching the Python source's per-series
// best-effort degradation.
func (f *Fetcher) FetchIndicators(ctx context.Context) Indicators {
	var in Indicators

	if obs, err := f.fetchSeries(ctx, seriesYieldCurve, 12); err == nil {
		if v, ok := latestValue(obs); ok {
			in.YieldCurveSpread = v
			in.HasYieldCurve = true
		}
	}

	if obs, err := f.fetchSeries(ctx, seriesFedFunds, 12); err == nil {
		if v, ok := change3m(obs); ok {
			in.FedFunds3MChange = v
			in.HasFedFunds3M = true
		}
	}

	if obs, err := f.fetchSeries(ctx, seriesUnemploymentRate, 12); err == nil {
		if v, ok := latestValue(obs); ok {
			in.UnemploymentRate = v
			in.HasUnemployment = true
		}
		if v, ok := change3m(obs); ok {
			in.Unemployment3MChange = v
		}
	}

	if obs, err := f.fetchSeries(ctx, seriesM2, 18); err == nil {
		if v, ok := yoyChange(obs); ok {
			in.M2YoYChange = v
			in.HasM2YoY = true
		}
	}

	if obs, err := f.fetchSeries(ctx, seriesHYOAS, 12); err == nil {
		if v, ok := latestValue(obs); ok {
			in.HYOASBps = v * 100 // FRED reports this series in percent, spec works in bps
			in.HasHYOAS = true
		}
	}

	if obs, err := f.fetchSeries(ctx, seriesConsumerSentiment, 12); err == nil {
		if v, ok := latestValue(obs); ok {
			in.ConsumerSentiment = v
			in.HasConsumerSent = true
		}
	}

	return in
}

// yoyChange compares the latest observation to the one ~12 months
// earlier, mirroring calculate_yoy_change.
func yoyChange(obs []observation) (float64, bool) {
	if len(obs) < 2 {
		return 0, false
	}
	latest, ok := latestValue(obs)
	if !ok {
		return 0, false
	}
	cutoff := time.Now().AddDate(-1, 0, 0)
	for i := len(obs) - 1; i >= 0; i-- {
		d, err := time.Parse("2006-01-02", obs[i].Date)
		if err != nil {
			continue
		}
		if d.Before(cutoff) || d.Equal(cutoff) {
			v, err := strconv.ParseFloat(obs[i].Value, 64)
			if err != nil {
				return 0, false
			}
			if v == 0 {
				return 0, false
			}
			return (latest - v) / v * 100, true
		}
	}
	return 0, false
}
