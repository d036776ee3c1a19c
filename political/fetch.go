package political

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	houseWatcherURL  = "https://house-stock-watcher-data.s3-us-west-2.amazonaws.com/data/all_transactions.json"
	senateWatcherURL = "https://senate-stock-watcher-data.s3-us-west-2.amazonaws.com/aggregate/all_transactions.json"
)

// rawTransaction is the shared shape of a House/Senate Stock Watcher
// record; field names differ slightly across the two feeds but both
// expose these keys.
type rawTransaction struct {
	Representative  string `json:"representative"`
	Senator         string `json:"senator"`
	Party           string `json:"party"`
	Ticker          string `json:"ticker"`
	Type            string `json:"type"`
	Amount          string `json:"amount"`
	DisclosureDate  string `json:"disclosure_date"`
	TransactionDate string `json:"transaction_date"`
}

// Fetcher pulls House and Senate disclosure feeds over HTTP.
type Fetcher struct {
	client *retryablehttp.Client
}

func NewFetcher() *Fetcher {
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = 3
	return &Fetcher{client: client}
}

// FetchAll pulls both chambers' disclosures and normalizes them to
// midpoint-of-range Trade values, already filtered to the last
// daysBack days — the §9-resolved normalization boundary: amounts are
// collapsed to a midpoint before reaching the cluster-detection package.
// A feed that fails to fetch degrades to an empty slice rather than
// failing the whole call, mirroring fetch_house_trades'/
// fetch_senate_trades' "returns [] on error" contract.
func (f *Fetcher) FetchAll(ctx context.Context, daysBack int) []Trade {
	var all []Trade
	all = append(all, f.fetchChamber(ctx, houseWatcherURL, "house")...)
	all = append(all, f.fetchChamber(ctx, senateWatcherURL, "senate")...)

	cutoff := time.Now().AddDate(0, 0, -daysBack)
	out := make([]Trade, 0, len(all))
	for _, t := range all {
		if t.DisclosureDate.Before(cutoff) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (f *Fetcher) fetchChamber(ctx context.Context, url, chamber string) []Trade {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var raw []rawTransaction
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil
	}

	out := make([]Trade, 0, len(raw))
	for _, r := range raw {
		t, ok := normalize(r, chamber)
		if ok {
			out = append(out, t)
		}
	}
	return out
}

var dateLayouts = []string{"01/02/2006", "2006-01-02", "2006/01/02"}

func normalize(r rawTransaction, chamber string) (Trade, bool) {
	ticker := strings.ToUpper(strings.TrimSpace(r.Ticker))
	if ticker == "" || ticker == "N/A" || ticker == "--" {
		return Trade{}, false
	}

	disclosureStr := r.DisclosureDate
	if disclosureStr == "" {
		disclosureStr = r.TransactionDate
	}
	disclosureStr = strings.TrimSpace(disclosureStr)
	var disclosureDate time.Time
	var parsed bool
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, disclosureStr); err == nil {
			disclosureDate = d
			parsed = true
			break
		}
	}
	if !parsed {
		return Trade{}, false
	}

	politician := r.Representative
	if chamber == "senate" {
		politician = r.Senator
	}
	if politician == "" {
		politician = "Unknown"
	}
	party := r.Party
	if party == "" {
		party = "?"
	}

	direction := "unknown"
	lowerType := strings.ToLower(r.Type)
	switch {
	case strings.Contains(lowerType, "purchase"), strings.Contains(lowerType, "buy"):
		direction = "buy"
	case strings.Contains(lowerType, "sale"), strings.Contains(lowerType, "sell"):
		direction = "sell"
	}

	return Trade{
		Ticker:         ticker,
		Politician:     politician,
		Party:          party,
		Direction:      direction,
		AmountMidpoint: parseAmountRange(r.Amount),
		DisclosureDate: disclosureDate,
	}, true
}

// parseAmountRange parses "$15,001 - $50,000"-style ranges to their
// midpoint, mirroring _parse_amount_range.
func parseAmountRange(raw string) float64 {
	clean := strings.ReplaceAll(raw, "$", "")
	clean = strings.ReplaceAll(clean, ",", "")
	clean = strings.TrimSpace(clean)
	if clean == "" {
		return 0
	}

	if strings.Contains(clean, " - ") {
		parts := strings.SplitN(clean, " - ", 2)
		low, lerr := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		high, herr := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if lerr == nil && herr == nil {
			return (low + high) / 2
		}
		return 0
	}

	if v, err := strconv.ParseFloat(clean, 64); err == nil {
		return v
	}
	return 0
}
