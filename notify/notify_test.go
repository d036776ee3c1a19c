package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realmrhigh/hightrade/config"
)

func TestFormatCycleSummaryIncludesAccountFigures(t *testing.T) {
	text := format(KindCycleSummary, map[string]any{
		"cycle": 12, "defcon_level": 3, "signal_score": 61.5,
		"account_value": 100000.0, "cash_available": 40000.0, "deployed": 60000.0,
		"realized_pnl": 250.75, "total_pnl_pct": 1.2, "win_rate": 66.0,
		"open_trades": 2, "closed_trades": 5,
	})
	assert.Contains(t, text, "Cycle #12")
	assert.Contains(t, text, "DEFCON 3")
	assert.Contains(t, text, "Win Rate: 66%")
}

func TestFormatCycleSummaryListsOpenPositions(t *testing.T) {
	text := format(KindCycleSummary, map[string]any{
		"cycle": 1, "defcon_level": 5, "signal_score": 10.0,
		"open_positions": []map[string]any{
			{"ticker": "ABC", "shares": 10.0, "entry_price": 50.0, "current_price": 55.0,
				"unrealized_pnl_dollars": 50.0, "unrealized_pnl_percent": 10.0},
		},
	})
	assert.Contains(t, text, "ABC")
	assert.Contains(t, text, "entry $50.00")
}

func TestFormatDefconChange(t *testing.T) {
	text := format(KindDefconChange, map[string]any{"old_defcon": 4, "new_defcon": 2, "signal_score": 78.0})
	assert.Contains(t, text, "4 → 2")
}

func TestFormatNewsUpdateTruncatesLongHeadline(t *testing.T) {
	longTitle := ""
	for i := 0; i < 200; i++ {
		longTitle += "x"
	}
	text := format(KindNewsUpdate, map[string]any{
		"news_score": 80.0, "article_count": 3,
		"top_articles": []map[string]any{{"source": "Reuters", "title": longTitle, "urgency": "breaking"}},
	})
	assert.Contains(t, text, "...")
	assert.NotContains(t, text, longTitle)
}

func TestFormatTradeExitShowsReasonAndPnL(t *testing.T) {
	text := format(KindTradeExit, map[string]any{"ticker": "XYZ", "reason": "manual", "pnl_pct": -5.4})
	assert.Contains(t, text, "XYZ")
	assert.Contains(t, text, "manual")
	assert.Contains(t, text, "-5.4%")
}

func TestFormatCongressionalClusterCapsPoliticianList(t *testing.T) {
	text := format(KindCongressionalCluster, map[string]any{
		"ticker": "NVDA", "buy_count": 7, "window_days": 30, "signal_strength": 85.0,
		"bipartisan": true, "politicians": []string{"A", "B", "C", "D", "E", "F", "G"},
	})
	assert.Contains(t, text, "BIPARTISAN")
	assert.NotContains(t, text, "G")
}

func TestFormatReboundWatchlist(t *testing.T) {
	text := format(KindReboundWatchlist, map[string]any{
		"ticker": "TSLA", "loss_pct": -6.2, "loss_dollars": -620.0, "exit_price": 240.5, "entry_price": 256.0,
	})
	assert.Contains(t, text, "TSLA")
	assert.Contains(t, text, "REBOUND WATCHLIST")
}

func TestNotifyPostsOnlyToChannelsSubscribedToKind(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		var body payload
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Contains(t, body.Text, "DEFCON")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := New(map[string]config.ChannelConfig{
		"slack_main": {Enabled: true, WebhookURL: srv.URL, Events: map[string]bool{"defcon_change": true}},
		"slack_other": {Enabled: true, WebhookURL: srv.URL, Events: map[string]bool{"trade_entry": true}},
		"slack_disabled": {Enabled: false, WebhookURL: srv.URL, Events: map[string]bool{"defcon_change": true}},
	})

	sink.Notify(context.Background(), KindDefconChange, map[string]any{"old_defcon": 4, "new_defcon": 2})

	assert.Equal(t, int32(1), hits)
}

func TestNotifySwallowsWebhookFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := New(map[string]config.ChannelConfig{
		"slack": {Enabled: true, WebhookURL: srv.URL, Events: map[string]bool{"trade_exit": true}},
	})

	require.NotPanics(t, func() {
		sink.Notify(context.Background(), KindTradeExit, map[string]any{"ticker": "ABC"})
	})
}

func TestNotifySkipsChannelsMissingWebhookURL(t *testing.T) {
	sink := New(map[string]config.ChannelConfig{
		"slack": {Enabled: true, WebhookURL: "", Events: map[string]bool{"trade_exit": true}},
	})
	require.NotPanics(t, func() {
		sink.Notify(context.Background(), KindTradeExit, map[string]any{"ticker": "ABC"})
	})
}
