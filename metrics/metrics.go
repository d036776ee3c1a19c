package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Registry is the custom prometheus registry for the orchestrator.
	Registry = prometheus.NewRegistry()

	// Mutex for thread-safe metric updates
	mu sync.RWMutex

	// ============================================
	// Account Metrics
	// ============================================

	// AccountEquity tracks total account value (cash + open positions)
	AccountEquity = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hightrade",
			Subsystem: "account",
			Name:      "equity_dollars",
			Help:      "Total account value in dollars",
		},
	)

	// AccountCashAvailable tracks uncommitted cash
	AccountCashAvailable = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hightrade",
			Subsystem: "account",
			Name:      "cash_available_dollars",
			Help:      "Cash available for new entries in dollars",
		},
	)

	// AccountRealizedPnL tracks cumulative realized P&L
	AccountRealizedPnL = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hightrade",
			Subsystem: "account",
			Name:      "realized_pnl_dollars",
			Help:      "Cumulative realized P&L in dollars",
		},
	)

	// AccountUnrealizedPnL tracks mark-to-market P&L across open positions
	AccountUnrealizedPnL = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hightrade",
			Subsystem: "account",
			Name:      "unrealized_pnl_dollars",
			Help:      "Unrealized P&L across open positions in dollars",
		},
	)

	// ============================================
	// Win/Loss Statistics
	// ============================================

	// TradesTotal tracks closed trades by exit reason and result
	TradesTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hightrade",
			Subsystem: "trade",
			Name:      "closed_total",
			Help:      "Total number of closed trades",
		},
		[]string{"reason", "result"}, // result: "win", "loss"
	)

	// WinRate tracks the rolling win rate percentage
	WinRate = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hightrade",
			Subsystem: "trade",
			Name:      "win_rate",
			Help:      "Win rate percentage across closed trades",
		},
	)

	// ============================================
	// Position Metrics
	// ============================================

	// OpenPositionsCount tracks open position count
	OpenPositionsCount = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hightrade",
			Subsystem: "position",
			Name:      "open_count",
			Help:      "Number of open positions",
		},
	)

	// PositionUnrealizedPnL tracks per-position unrealized P&L
	PositionUnrealizedPnL = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "hightrade",
			Subsystem: "position",
			Name:      "unrealized_pnl_dollars",
			Help:      "Unrealized P&L per position in dollars",
		},
		[]string{"ticker"},
	)

	// PositionHoldDuration tracks how long a position has been held
	PositionHoldDuration = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "hightrade",
			Subsystem: "position",
			Name:      "hold_duration_seconds",
			Help:      "Duration a position has been held in seconds",
		},
		[]string{"ticker"},
	)

	// ============================================
	// Signal Metrics
	// ============================================

	// DefconLevel tracks the current DEFCON level (1 most severe, 5 calmest)
	DefconLevel = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hightrade",
			Subsystem: "signal",
			Name:      "defcon_level",
			Help:      "Current DEFCON level",
		},
	)

	// NewsScore tracks the most recent composite news score
	NewsScore = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hightrade",
			Subsystem: "signal",
			Name:      "news_score",
			Help:      "Most recent composite news score",
		},
	)

	// NewsArticlesTotal tracks articles persisted per source tier
	NewsArticlesTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hightrade",
			Subsystem: "signal",
			Name:      "news_articles_total",
			Help:      "Total number of news articles persisted",
		},
		[]string{"tier"},
	)

	// ============================================
	// LLM Gateway Metrics
	// ============================================

	// LLMCallDuration tracks per-tier LLM call latency as a histogram
	LLMCallDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hightrade",
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "LLM call duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 45, 60, 90},
		},
		[]string{"tier", "model"},
	)

	// LLMCallsTotal tracks total LLM calls per tier
	LLMCallsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hightrade",
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "Total number of LLM calls",
		},
		[]string{"tier", "model"},
	)

	// LLMErrorsTotal tracks LLM call errors per tier
	LLMErrorsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hightrade",
			Subsystem: "llm",
			Name:      "errors_total",
			Help:      "Total number of LLM call errors",
		},
		[]string{"tier", "model"},
	)

	// ============================================
	// System Metrics
	// ============================================

	// CycleDuration tracks one monitoring/trading cycle's wall time
	CycleDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "hightrade",
			Subsystem: "scheduler",
			Name:      "cycle_duration_seconds",
			Help:      "Monitoring cycle duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 180, 300},
		},
	)

	// CyclesTotal tracks total cycles run
	CyclesTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: "hightrade",
			Subsystem: "scheduler",
			Name:      "cycles_total",
			Help:      "Total number of monitoring cycles run",
		},
	)

	// SchedulerRunning tracks whether the scheduler is running (1) or held (0)
	SchedulerRunning = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hightrade",
			Subsystem: "scheduler",
			Name:      "running",
			Help:      "Whether the scheduler is actively trading (1) or held (0)",
		},
	)

	// SystemUptime tracks process uptime in seconds
	SystemUptime = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hightrade",
			Subsystem: "system",
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds",
		},
	)
)

// UpdateAccountMetrics updates the account-level gauges emitted at the
// end of every cycle summary.
func UpdateAccountMetrics(equity, cashAvailable, realizedPnL, unrealizedPnL float64) {
	mu.Lock()
	defer mu.Unlock()

	AccountEquity.Set(equity)
	AccountCashAvailable.Set(cashAvailable)
	AccountRealizedPnL.Set(realizedPnL)
	AccountUnrealizedPnL.Set(unrealizedPnL)
}

// UpdateSignalMetrics updates the DEFCON/news gauges after C8 runs.
func UpdateSignalMetrics(defconLevel int, newsScore float64) {
	mu.Lock()
	defer mu.Unlock()

	DefconLevel.Set(float64(defconLevel))
	NewsScore.Set(newsScore)
}

// RecordNewsArticle increments the per-tier article counter.
func RecordNewsArticle(tier string) {
	NewsArticlesTotal.WithLabelValues(tier).Inc()
}

// RecordTrade increments the closed-trade counter for reason/result.
func RecordTrade(reason string, isWin bool) {
	result := "loss"
	if isWin {
		result = "win"
	}
	TradesTotal.WithLabelValues(reason, result).Inc()
}

// UpdatePositionMetrics updates per-position gauges.
func UpdatePositionMetrics(ticker string, unrealizedPnL, holdDurationSeconds float64) {
	mu.Lock()
	defer mu.Unlock()

	PositionUnrealizedPnL.WithLabelValues(ticker).Set(unrealizedPnL)
	PositionHoldDuration.WithLabelValues(ticker).Set(holdDurationSeconds)
}

// ClearPositionMetrics removes metrics for a closed position so it
// doesn't linger in scrape output after the position is gone.
func ClearPositionMetrics(ticker string) {
	mu.Lock()
	defer mu.Unlock()

	PositionUnrealizedPnL.DeleteLabelValues(ticker)
	PositionHoldDuration.DeleteLabelValues(ticker)
}

// SetOpenPositionsCount sets the open-position gauge.
func SetOpenPositionsCount(count int) {
	OpenPositionsCount.Set(float64(count))
}

// RecordLLMCall records an LLM gateway call and its duration.
func RecordLLMCall(tier, model string, durationMs int64, hasError bool) {
	seconds := float64(durationMs) / 1000.0
	LLMCallDuration.WithLabelValues(tier, model).Observe(seconds)
	LLMCallsTotal.WithLabelValues(tier, model).Inc()
	if hasError {
		LLMErrorsTotal.WithLabelValues(tier, model).Inc()
	}
}

// RecordCycleDuration records one cycle's wall-clock duration.
func RecordCycleDuration(durationSeconds float64) {
	CycleDuration.Observe(durationSeconds)
	CyclesTotal.Inc()
}

// SetSchedulerRunning sets whether the scheduler is actively trading.
func SetSchedulerRunning(running bool) {
	val := 0.0
	if running {
		val = 1.0
	}
	SchedulerRunning.Set(val)
}

// Init registers the standard Go/process collectors alongside the
// domain metrics above.
func Init() {
	Registry.MustRegister(prometheus.NewGoCollector())
	Registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
}
