// Package notify is the Notification Sink (C13): a stateless formatter
// and best-effort poster. Every event kind maps to a fixed text
// template and is POSTed as a Slack-compatible payload to every channel
// configured for that kind. A send failure is logged and swallowed —
// notification never blocks or fails a monitoring cycle.
//
// Grounded on original_source/alerts.py's AlertSystem.send_slack /
// send_silent_log / send_defcon_alert, collapsed onto the Slack
// incoming-webhook payload shape since that is the channel the teacher
// corpus actually exercises (github.com/gorilla/websocket and
// github.com/hashicorp/go-retryablehttp already cover the transport
// concerns elsewhere in this codebase).
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/realmrhigh/hightrade/config"
	"github.com/realmrhigh/hightrade/log"
)

// Event is the raw (kind, data) pair a live subscriber — the admin
// bridge's /stream route — receives alongside the formatted webhook
// text, so a connected operator console gets the same structured
// payload C13's templates render from.
type Event struct {
	Kind Kind           `json:"kind"`
	Data map[string]any `json:"data"`
	Time time.Time      `json:"time"`
}

// Kind is one of the closed set of notifiable event kinds.
type Kind string

const (
	KindCycleSummary         Kind = "cycle_summary"
	KindDefconChange         Kind = "defcon_change"
	KindNewsUpdate           Kind = "news_update"
	KindMacroUpdate          Kind = "macro_update"
	KindTradeEntry           Kind = "trade_entry"
	KindTradeExit            Kind = "trade_exit"
	KindCongressionalCluster Kind = "congressional_cluster"
	KindFlashBriefing        Kind = "flash_briefing"
	KindReboundWatchlist     Kind = "rebound_watchlist"
)

const (
	maxHeadlineLen  = 80
	maxReasoningLen = 180
	maxTopArticles  = 3
	maxPoliticians  = 5
)

// payload mirrors the Slack incoming-webhook body the teacher corpus
// posts elsewhere (username/icon_emoji cosmetic fields, text the body).
type payload struct {
	Text      string `json:"text"`
	Username  string `json:"username"`
	IconEmoji string `json:"icon_emoji"`
}

// Sink formats and posts notifications for every channel subscribed to
// a given event kind.
type Sink struct {
	channels map[string]config.ChannelConfig
	client   *retryablehttp.Client

	mu          sync.Mutex
	subscribers map[int]chan Event
	nextSubID   int
}

func New(channels map[string]config.ChannelConfig) *Sink {
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = 2
	client.RetryWaitMin = 50 * time.Millisecond
	client.RetryWaitMax = 200 * time.Millisecond
	return &Sink{channels: channels, client: client, subscribers: make(map[int]chan Event)}
}

// Notify formats data for kind and posts it to every enabled channel
// subscribed to that event kind. Errors are logged, never returned —
// a misconfigured or unreachable webhook must not interrupt a cycle.
// It also broadcasts the raw event to every live Subscribe()r, reusing
// this same event model for the admin bridge's push feed.
func (s *Sink) Notify(ctx context.Context, kind Kind, data map[string]any) {
	text := format(kind, data)
	logger := log.Component("notify")

	for name, ch := range s.channels {
		if !ch.Enabled || ch.WebhookURL == "" {
			continue
		}
		if !ch.Events[string(kind)] {
			continue
		}
		if err := s.post(ctx, ch.WebhookURL, text); err != nil {
			logger.Debug().Err(err).Str("channel", name).Str("kind", string(kind)).Msg("notification send failed")
		}
	}

	s.broadcast(Event{Kind: kind, Data: data, Time: time.Now().UTC()})
}

// Subscribe registers a live listener for every Notify call and returns
// a channel of events plus a cancel func to unregister it. The channel
// is buffered and non-blocking on the sender side — a slow or stalled
// subscriber drops events rather than stalling a monitoring cycle.
func (s *Sink) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	ch := make(chan Event, 16)
	s.subscribers[id] = ch
	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existing, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(existing)
		}
	}
	return ch, cancel
}

func (s *Sink) broadcast(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *Sink) post(ctx context.Context, webhookURL, text string) error {
	body, err := json.Marshal(payload{Text: text, Username: "HighTrade", IconEmoji: ":robot_face:"})
	if err != nil {
		return err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return fmt.Errorf("notify: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func format(kind Kind, d map[string]any) string {
	switch kind {
	case KindCycleSummary:
		return formatCycleSummary(d)
	case KindDefconChange:
		return formatDefconChange(d)
	case KindNewsUpdate:
		return formatNewsUpdate(d)
	case KindMacroUpdate:
		return formatMacroUpdate(d)
	case KindTradeEntry:
		return formatTradeEntry(d)
	case KindTradeExit:
		return formatTradeExit(d)
	case KindCongressionalCluster:
		return formatCongressionalCluster(d)
	case KindFlashBriefing:
		return formatFlashBriefing(d)
	case KindReboundWatchlist:
		return formatReboundWatchlist(d)
	default:
		return fmt.Sprintf("%s: %v", kind, d)
	}
}

func formatCycleSummary(d map[string]any) string {
	cycle := intOf(d, "cycle")
	defconLevel := intOf(d, "defcon_level")
	score := floatOf(d, "signal_score")
	accountValue := floatOf(d, "account_value")
	cash := floatOf(d, "cash_available")
	deployed := floatOf(d, "deployed")
	realizedPnL := floatOf(d, "realized_pnl")
	pnlPct := floatOf(d, "total_pnl_pct")
	winRate := floatOf(d, "win_rate")
	openTrades := intOf(d, "open_trades")
	closedTrades := intOf(d, "closed_trades")

	defconEmoji := defconEmojiFor(defconLevel)
	pnlEmoji := "📈"
	if realizedPnL < 0 {
		pnlEmoji = "📉"
	}

	text := fmt.Sprintf(
		"🔄 Cycle #%d | %s DEFCON %d | Score %.1f/100\n"+
			"💰 Account: %s | Cash: %s | Deployed: %s\n"+
			"%s Realized P&L: %s (%+.2f%%) | Win Rate: %.0f%% | %d open / %d closed",
		cycle, defconEmoji, defconLevel, score,
		"$"+humanize.FormatFloat("#,###.", accountValue), "$"+humanize.FormatFloat("#,###.", cash), "$"+humanize.FormatFloat("#,###.", deployed),
		pnlEmoji, signedDollars(realizedPnL), pnlPct, winRate, openTrades, closedTrades,
	)

	if positions, ok := d["open_positions"].([]map[string]any); ok && len(positions) > 0 {
		var b strings.Builder
		b.WriteString("\n📋 Positions:")
		for _, p := range positions {
			sym := stringOf(p, "ticker")
			shares := floatOf(p, "shares")
			entry := floatOf(p, "entry_price")
			if curr, ok := p["current_price"].(float64); ok {
				upnl := floatOf(p, "unrealized_pnl_dollars")
				upct := floatOf(p, "unrealized_pnl_percent")
				upnlEmoji := "📈"
				if upnl < 0 {
					upnlEmoji = "📉"
				}
				fmt.Fprintf(&b, "\n  • %s — %.0f shares | entry $%.2f → now $%.2f | %s %s (%+.1f%%)",
					sym, shares, entry, curr, upnlEmoji, signedDollars(upnl), upct)
			} else {
				fmt.Fprintf(&b, "\n  • %s — %.0f shares @ $%.2f", sym, shares, entry)
			}
		}
		text += b.String()
	}
	return text
}

func formatDefconChange(d map[string]any) string {
	return fmt.Sprintf("🚨 DEFCON Changed: %v → %v\nSignal Score: %.1f/100",
		d["old_defcon"], d["new_defcon"], floatOf(d, "signal_score"))
}

func formatNewsUpdate(d map[string]any) string {
	breaking := "📰"
	if intOf(d, "breaking_count") > 0 {
		breaking = "🚨 BREAKING"
	}
	score := floatOf(d, "news_score")
	text := fmt.Sprintf("%s News Update\nScore: [%s] %.1f/100 | Crisis: %s\nSentiment: %s | Articles: %d",
		breaking, scoreBar(score), score, stringOf(d, "crisis_type"), stringOf(d, "sentiment"), intOf(d, "article_count"))

	if articles, ok := d["top_articles"].([]map[string]any); ok && len(articles) > 0 {
		text += "\n\nLatest Headlines:"
		for i, a := range articles {
			if i >= maxTopArticles {
				break
			}
			title := truncate(stringOf(a, "title"), maxHeadlineLen)
			urgencyEmoji := "•"
			switch stringOf(a, "urgency") {
			case "breaking":
				urgencyEmoji = "🔥"
			case "high":
				urgencyEmoji = "⚡"
			}
			text += fmt.Sprintf("\n%s %d. [%s] %s", urgencyEmoji, i+1, stringOf(a, "source"), title)
		}
	}
	return text
}

func formatMacroUpdate(d map[string]any) string {
	score := floatOf(d, "macro_score")
	mod := floatOf(d, "defcon_modifier")
	modStr := "±0"
	if mod != 0 {
		modStr = fmt.Sprintf("%+.1f", mod)
	}
	text := fmt.Sprintf("📊 Macro Environment Alert\nScore: [%s] %.0f/100 | DEFCON modifier: %s\nSignals: %d bearish, %d bullish",
		scoreBar(score), score, modStr, intOf(d, "bearish_count"), intOf(d, "bullish_count"))

	if yc, ok := d["yield_curve"].(float64); ok {
		text += fmt.Sprintf("\n• Yield Curve: %+.2f%%", yc)
	}
	if ff, ok := d["fed_funds"].(float64); ok {
		text += fmt.Sprintf(" | Fed Funds: %.2f%%", ff)
	}
	if ur, ok := d["unemployment"].(float64); ok {
		text += fmt.Sprintf(" | Unemployment: %.1f%%", ur)
	}
	return text
}

func formatTradeEntry(d map[string]any) string {
	return fmt.Sprintf("📈 Trade Entry\nTicker: %s | Size: %s | DEFCON: %v",
		stringOf(d, "ticker"), "$"+humanize.FormatFloat("#,###.", floatOf(d, "position_size")), d["defcon"])
}

func formatTradeExit(d map[string]any) string {
	return fmt.Sprintf("📉 Trade Exit\nTicker: %s | Reason: %s | P&L: %+.1f%% | Held %s",
		stringOf(d, "ticker"), stringOf(d, "reason"), floatOf(d, "pnl_pct"), holdDuration(d))
}

func holdDuration(d map[string]any) string {
	entry, ok1 := d["entry_time"].(time.Time)
	exit, ok2 := d["exit_time"].(time.Time)
	if !ok1 || !ok2 {
		return "n/a"
	}
	return humanize.RelTime(entry, exit, "", "")
}

func formatCongressionalCluster(d map[string]any) string {
	strength := floatOf(d, "signal_strength")
	bipartisanFlag := ""
	if b, ok := d["bipartisan"].(bool); ok && b {
		bipartisanFlag = " 🤝 BIPARTISAN"
	}
	committeeFlag := ""
	if committees, ok := d["committee_relevance"].([]string); ok && len(committees) > 0 {
		committeeFlag = " | Committees: " + strings.Join(committees, ", ")
	}
	politicians, _ := d["politicians"].([]string)
	if len(politicians) > maxPoliticians {
		politicians = politicians[:maxPoliticians]
	}

	return fmt.Sprintf(
		"🏛️ Congressional Cluster Buy Signal%s\nTicker: $%s | %d politicians in %d-day window\n"+
			"Signal Strength: [%s] %.0f/100%s\nEst. Total: %s\nPoliticians: %s",
		bipartisanFlag, stringOf(d, "ticker"), intOf(d, "buy_count"), intOf(d, "window_days"),
		scoreBar(strength), strength, committeeFlag,
		"$"+humanize.FormatFloat("#,###.", floatOf(d, "total_amount")), strings.Join(politicians, ", "),
	)
}

func formatFlashBriefing(d map[string]any) string {
	emoji := stringOf(d, "emoji")
	if emoji == "" {
		emoji = "📊"
	}
	reasoning := truncate(stringOf(d, "reasoning"), maxReasoningLen)
	text := fmt.Sprintf("%s *%s Flash Briefing* — DEFCON %v/5 | Macro %.0f/100\n%s",
		emoji, capitalize(stringOf(d, "label")), d["defcon"], floatOf(d, "macro_score"), stringOf(d, "summary"))
	if reasoning != "" {
		text += "\n" + reasoning
	}
	return text
}

func formatReboundWatchlist(d map[string]any) string {
	lossPct := floatOf(d, "loss_pct")
	lossDollars := floatOf(d, "loss_dollars")
	exitPrice := floatOf(d, "exit_price")
	entryPrice := floatOf(d, "entry_price")
	return fmt.Sprintf(
		"🔄 *REBOUND WATCHLIST* — `%s` queued for recovery research\n"+
			"Stop-loss exit: `%.1f%%` | `$%s` loss\n"+
			"Exited @ `$%.2f` (entered @ `$%.2f`)\n"+
			"Pipeline: researcher → analyst → verifier will find re-entry below `$%.2f`",
		stringOf(d, "ticker"), lossPct, humanize.Commaf(absFloat(lossDollars)), exitPrice, entryPrice, exitPrice,
	)
}

func scoreBar(score float64) string {
	filled := int(score / 10)
	if filled < 0 {
		filled = 0
	}
	if filled > 10 {
		filled = 10
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", 10-filled)
}

func defconEmojiFor(level int) string {
	switch {
	case level <= 2:
		return "🔴"
	case level == 3:
		return "🟠"
	case level == 4:
		return "🟡"
	default:
		return "🟢"
	}
}

func signedDollars(v float64) string {
	sign := ""
	if v >= 0 {
		sign = "+"
	}
	return sign + "$" + humanize.Commaf(v)
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}

func intOf(d map[string]any, key string) int {
	switch v := d[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func floatOf(d map[string]any, key string) float64 {
	switch v := d[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

func stringOf(d map[string]any, key string) string {
	s, _ := d[key].(string)
	if s == "" {
		return "?"
	}
	return s
}
