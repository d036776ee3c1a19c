package defcon

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/realmrhigh/hightrade/apperr"
)

const (
	fredObservationsURL = "https://api.stlouisfed.org/fred/series/observations"
	yahooChartURL       = "https://query1.finance.yahoo.com/v8/finance/chart/"
)

var yahooChartURLOverride = yahooChartURL
var fredObservationsURLOverride = fredObservationsURL

// Fetcher pulls the three raw inputs CompositeScore needs: the 10-year
// Treasury yield (FRED), and VIX/S&P 500 quotes (Yahoo Finance's public
// chart endpoint), grounded on monitoring.py's fetch_bond_yield/
// fetch_vix/fetch_market_prices. Each leg degrades independently — a
// failed fetch leaves that RawSignals field at its zero value rather
// than failing the whole cycle, matching the Python source's per-call
// try/except.
type Fetcher struct {
	fredAPIKey string
	client     *retryablehttp.Client
}

func NewFetcher(fredAPIKey string) *Fetcher {
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = 2
	client.RetryWaitMin = 50 * time.Millisecond
	client.RetryWaitMax = 200 * time.Millisecond
	return &Fetcher{fredAPIKey: fredAPIKey, client: client}
}

// FetchRawSignals pulls all three legs and assembles a RawSignals,
// leaving any failed leg at zero.
func (f *Fetcher) FetchRawSignals(ctx context.Context) RawSignals {
	var raw RawSignals
	if v, err := f.fetchBondYield(ctx); err == nil {
		raw.TenYearYield = v
	}
	if v, err := f.fetchYahooPrice(ctx, "%5EVIX"); err == nil {
		raw.VIX = v
	}
	if price, prevClose, err := f.fetchYahooPriceAndPrevClose(ctx, "%5EGSPC"); err == nil && prevClose != 0 {
		raw.SP500ChangePct = (price - prevClose) / prevClose * 100
	}
	return raw
}

func (f *Fetcher) fetchBondYield(ctx context.Context) (float64, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, fredObservationsURLOverride, nil)
	if err != nil {
		return 0, apperr.Transient("defcon.fetchBondYield", err)
	}
	q := req.URL.Query()
	q.Set("series_id", "DGS10")
	q.Set("api_key", f.fredAPIKey)
	q.Set("file_type", "json")
	q.Set("sort_order", "desc")
	q.Set("limit", "5")
	req.URL.RawQuery = q.Encode()

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, apperr.Transient("defcon.fetchBondYield", err)
	}
	defer resp.Body.Close()

	var out struct {
		Observations []struct {
			Value string `json:"value"`
		} `json:"observations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, apperr.ParseFailure("defcon.fetchBondYield", err)
	}
	for _, obs := range out.Observations {
		if obs.Value == "." {
			continue
		}
		return strconv.ParseFloat(obs.Value, 64)
	}
	return 0, apperr.Transient("defcon.fetchBondYield", errNoObservations)
}

func (f *Fetcher) fetchYahooPrice(ctx context.Context, symbol string) (float64, error) {
	price, _, err := f.fetchYahooPriceAndPrevClose(ctx, symbol)
	return price, err
}

func (f *Fetcher) fetchYahooPriceAndPrevClose(ctx context.Context, symbol string) (price, prevClose float64, err error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, yahooChartURLOverride+symbol, nil)
	if err != nil {
		return 0, 0, apperr.Transient("defcon.fetchYahoo", err)
	}
	q := req.URL.Query()
	q.Set("interval", "1d")
	q.Set("range", "1d")
	req.URL.RawQuery = q.Encode()
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, 0, apperr.Transient("defcon.fetchYahoo", err)
	}
	defer resp.Body.Close()

	var out struct {
		Chart struct {
			Result []struct {
				Meta struct {
					RegularMarketPrice float64 `json:"regularMarketPrice"`
					ChartPreviousClose float64 `json:"chartPreviousClose"`
				} `json:"meta"`
			} `json:"result"`
		} `json:"chart"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, 0, apperr.ParseFailure("defcon.fetchYahoo", err)
	}
	if len(out.Chart.Result) == 0 {
		return 0, 0, apperr.Transient("defcon.fetchYahoo", errNoObservations)
	}
	meta := out.Chart.Result[0].Meta
	return meta.RegularMarketPrice, meta.ChartPreviousClose, nil
}

var errNoObservations = &noObservationsErr{}

type noObservationsErr struct{}

func (e *noObservationsErr) Error() string { return "no usable observations in response" }
