// Package market is the Market Data Adapter (C5): quotes, historical
// bars, fundamentals, analyst price targets, and filings, fetched over
// a retrying HTTP client and normalized into a common shape.
//
// Grounded on the teacher's Alpaca-backed api_client.go/historical.go
// (http.Client-based REST calls, interval/timeframe mapping, Kline
// parsing) generalized to the broader adapter surface of SPEC_FULL.md
// §4.5, with github.com/hashicorp/go-retryablehttp replacing the bare
// http.Client for transient-failure resilience and
// github.com/relvacode/iso8601 replacing manual timestamp parsing.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/relvacode/iso8601"

	"github.com/realmrhigh/hightrade/apperr"
	"github.com/realmrhigh/hightrade/log"
)

const alpacaDataBaseURL = "https://data.alpaca.markets"

// Unavailable is returned by adapter methods when a data point could not
// be fetched — a typed, explicit "no data" rather than a bare error, so
// callers (e.g. the Acquisition Pipeline) can treat a missing fundamental
// differently from a network fatal.
type Unavailable struct {
	Ticker string
	Field  string
	Reason string
}

func (u *Unavailable) Error() string {
	return fmt.Sprintf("%s.%s unavailable: %s", u.Ticker, u.Field, u.Reason)
}

// Quote is a single real-time price snapshot.
type Quote struct {
	Ticker    string
	Price     float64
	Timestamp time.Time
}

// Bar is one OHLCV candle.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Fundamentals is the subset of fundamental data the Analyst substage
// consumes — deliberately narrow, not a full financial-statement model.
type Fundamentals struct {
	Ticker        string
	MarketCapUSD  float64
	PERatio       float64
	SectorName    string
	EmployeeCount int
}

// AnalystTarget is a consensus price target reading.
type AnalystTarget struct {
	Ticker       string
	TargetMean   float64
	TargetHigh   float64
	TargetLow    float64
	NumAnalysts  int
	RatingScore  float64 // 1 (strong buy) - 5 (strong sell), consensus-weighted
}

// Filing is a single regulatory filing reference (e.g. an 8-K or 10-Q).
type Filing struct {
	Ticker    string
	Form      string
	FiledAt   time.Time
	URL       string
}

// Adapter is the Market Data Adapter. Each method returns a typed
// *Unavailable wrapped in apperr when the upstream has no data, and a
// transient apperr.Error for network/parse failures the caller may retry.
type Adapter struct {
	client    *retryablehttp.Client
	apiKey    string
	apiSecret string
	baseURL   string
}

// NewAdapter builds an Adapter, sourcing Alpaca credentials from the
// environment if not passed explicitly — mirrors the teacher's
// credential-resolution order (explicit > environment).
func NewAdapter(apiKey, apiSecret string) *Adapter {
	if apiKey == "" {
		apiKey = os.Getenv("ALPACA_API_KEY")
	}
	if apiSecret == "" {
		apiSecret = os.Getenv("ALPACA_API_SECRET")
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.Logger = nil // quiet by default; failures surface through apperr instead
	client.HTTPClient.Timeout = 30 * time.Second

	return &Adapter{client: client, apiKey: apiKey, apiSecret: apiSecret, baseURL: alpacaDataBaseURL}
}

func (a *Adapter) doGet(ctx context.Context, path string, query map[string]string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return nil, apperr.Transient("market.doGet", err)
	}
	req.Header.Set("APCA-API-KEY-ID", a.apiKey)
	req.Header.Set("APCA-API-SECRET-KEY", a.apiSecret)

	q := req.URL.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, apperr.Transient("market.doGet", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Transient("market.doGet", err)
	}

	if resp.StatusCode >= 400 {
		return nil, apperr.Transient("market.doGet", fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}
	return body, nil
}

// Quote fetches the latest trade price for ticker.
func (a *Adapter) Quote(ctx context.Context, ticker string) (*Quote, error) {
	body, err := a.doGet(ctx, fmt.Sprintf("/v2/stocks/%s/trades/latest", ticker), nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Trade struct {
			Price     float64 `json:"p"`
			Timestamp string  `json:"t"`
		} `json:"trade"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperr.ParseFailure("market.Quote", err)
	}
	if payload.Trade.Price == 0 {
		return nil, apperr.Validation("market.Quote", &Unavailable{Ticker: ticker, Field: "quote", Reason: "no trade data"})
	}

	ts, err := iso8601.ParseString(payload.Trade.Timestamp)
	if err != nil {
		ts = time.Now().UTC()
		log.Component("market").Warn().Str("ticker", ticker).Msg("quote timestamp parse failed, using now")
	}

	return &Quote{Ticker: ticker, Price: payload.Trade.Price, Timestamp: ts}, nil
}

// Bars fetches OHLCV bars for ticker between start and end at the given
// timeframe (Alpaca-style strings like "1Min", "1Day").
func (a *Adapter) Bars(ctx context.Context, ticker, timeframe string, start, end time.Time) ([]Bar, error) {
	body, err := a.doGet(ctx, fmt.Sprintf("/v2/stocks/%s/bars", ticker), map[string]string{
		"timeframe": timeframe,
		"start":     start.Format(time.RFC3339),
		"end":       end.Format(time.RFC3339),
		"limit":     "1000",
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Bars []struct {
			Timestamp string  `json:"t"`
			Open      float64 `json:"o"`
			High      float64 `json:"h"`
			Low       float64 `json:"l"`
			Close     float64 `json:"c"`
			Volume    float64 `json:"v"`
		} `json:"bars"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperr.ParseFailure("market.Bars", err)
	}

	bars := make([]Bar, 0, len(payload.Bars))
	for _, b := range payload.Bars {
		ts, err := iso8601.ParseString(b.Timestamp)
		if err != nil {
			continue
		}
		bars = append(bars, Bar{Timestamp: ts, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume})
	}
	return bars, nil
}

// Fundamentals, AnalystTarget, and Filings are secondary, best-effort
// data points: the Alpaca market-data API does not carry them, so these
// return Unavailable rather than attempting an unsupported fetch. A
// deployment wiring a fundamentals provider overrides these via the
// DataSource interface below.
func (a *Adapter) Fundamentals(ctx context.Context, ticker string) (*Fundamentals, error) {
	return nil, apperr.Validation("market.Fundamentals", &Unavailable{Ticker: ticker, Field: "fundamentals", Reason: "no fundamentals provider configured"})
}

func (a *Adapter) AnalystTarget(ctx context.Context, ticker string) (*AnalystTarget, error) {
	return nil, apperr.Validation("market.AnalystTarget", &Unavailable{Ticker: ticker, Field: "analyst_target", Reason: "no analyst-target provider configured"})
}

func (a *Adapter) Filings(ctx context.Context, ticker string) ([]Filing, error) {
	return nil, apperr.Validation("market.Filings", &Unavailable{Ticker: ticker, Field: "filings", Reason: "no filings provider configured"})
}

// DataSource is the interface the Acquisition Pipeline depends on,
// letting tests substitute a fake without touching the network.
type DataSource interface {
	Quote(ctx context.Context, ticker string) (*Quote, error)
	Bars(ctx context.Context, ticker, timeframe string, start, end time.Time) ([]Bar, error)
	Fundamentals(ctx context.Context, ticker string) (*Fundamentals, error)
	AnalystTarget(ctx context.Context, ticker string) (*AnalystTarget, error)
	Filings(ctx context.Context, ticker string) ([]Filing, error)
}

var _ DataSource = (*Adapter)(nil)
