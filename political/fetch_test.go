package political

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmountRangeMidpoint(t *testing.T) {
	assert.Equal(t, 32500.5, parseAmountRange("$15,001 - $50,000"))
	assert.Equal(t, 0.0, parseAmountRange(""))
	assert.Equal(t, 1000.0, parseAmountRange("$1,000"))
}

func TestNormalizeSkipsMissingTicker(t *testing.T) {
	_, ok := normalize(rawTransaction{Ticker: "N/A", DisclosureDate: "01/02/2024"}, "house")
	assert.False(t, ok)
}

func TestNormalizeClassifiesDirection(t *testing.T) {
	tr, ok := normalize(rawTransaction{
		Ticker: "nvda", Representative: "Jane Doe", Party: "D",
		Type: "Purchase", Amount: "$50,001 - $100,000",
		DisclosureDate: "03/15/2024",
	}, "house")
	assert.True(t, ok)
	assert.Equal(t, "NVDA", tr.Ticker)
	assert.Equal(t, "buy", tr.Direction)
	assert.Equal(t, 75000.5, tr.AmountMidpoint)
	assert.Equal(t, "Jane Doe", tr.Politician)
}

func TestFetchChamberParsesBothTrades(t *testing.T) {
	recent := time.Now().Format("01/02/2006")
	old := time.Now().AddDate(0, 0, -90).Format("01/02/2006")

	payload := `[
		{"ticker":"ABC","representative":"A","party":"D","type":"purchase","amount":"$1,001 - $15,000","disclosure_date":"` + recent + `"},
		{"ticker":"XYZ","representative":"B","party":"R","type":"sale","amount":"$1,001 - $15,000","disclosure_date":"` + old + `"}
	]`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	f := NewFetcher()
	f.client.HTTPClient = srv.Client()

	trades := f.fetchChamber(context.Background(), srv.URL, "house")
	require.Len(t, trades, 2)

	cutoff := time.Now().AddDate(0, 0, -30)
	var kept []Trade
	for _, tr := range trades {
		if !tr.DisclosureDate.Before(cutoff) {
			kept = append(kept, tr)
		}
	}
	assert.Len(t, kept, 1, "FetchAll applies the same days-back cutoff used here")
	assert.Equal(t, "ABC", kept[0].Ticker)
}
