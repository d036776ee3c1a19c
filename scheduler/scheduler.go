// Package scheduler is the orchestrator's single control loop: it owns
// every in-memory cross-cycle state (previous DEFCON, hold/stop flags,
// the trailing-stop manager, cached macro/political readings) and is
// the only writer that advances a monitoring cycle from market data all
// the way through to a persisted Signal Snapshot and notification.
//
// Grounded on the teacher's trader/auto_trader.go AutoTrader.Run/Stop
// control-loop idiom (ticker + select + stop channel), generalized here
// to a 2-second-subdivided sleep so the command bus can be drained
// between full monitoring cycles without waiting out the whole
// interval, and on original_source/hightrade_orchestrator.py's
// run_cycle for stage ordering.
package scheduler

import (
	"context"
	"time"

	"github.com/realmrhigh/hightrade/acquisition"
	"github.com/realmrhigh/hightrade/briefing"
	"github.com/realmrhigh/hightrade/broker"
	"github.com/realmrhigh/hightrade/cmdbus"
	"github.com/realmrhigh/hightrade/config"
	"github.com/realmrhigh/hightrade/defcon"
	"github.com/realmrhigh/hightrade/llmgateway"
	"github.com/realmrhigh/hightrade/log"
	"github.com/realmrhigh/hightrade/macro"
	"github.com/realmrhigh/hightrade/market"
	"github.com/realmrhigh/hightrade/metrics"
	"github.com/realmrhigh/hightrade/news"
	"github.com/realmrhigh/hightrade/notify"
	"github.com/realmrhigh/hightrade/political"
	"github.com/realmrhigh/hightrade/ratelimit"
	"github.com/realmrhigh/hightrade/store"
)

// TotalCapitalDefault is the paper-trading account's starting equity.
// config.Config carries no such field — this mirrors
// PaperTradingEngine.__init__'s total_capital=100000 default from the
// original source, since nothing in this build rebalances it against
// real brokerage equity.
const TotalCapitalDefault = 100_000.0

// pollInterval is how often the sleep loop wakes to drain the command
// bus between full monitoring cycles.
const pollInterval = 2 * time.Second

// macroFetchCadence and politicalFetchCadence gate the two slow-moving
// collectors (C7) so they are not re-fetched every monitoring cycle —
// FRED series update daily at best and congressional disclosures lag
// their trade date by days, so polling them every cycle would only
// waste rate-limit budget for the same answer.
const (
	macroFetchCadence     = 4 * time.Hour
	politicalFetchCadence = 12 * time.Hour
)

// defaultBriefingHour/Minute is the default daily-briefing trigger time
// of SPEC_FULL.md §4.12 step 5 (4:30 PM local market time).
const (
	defaultBriefingHour   = 16
	defaultBriefingMinute = 30
)

const briefingStageSpacing = 10 * time.Second

// Deps bundles every externally-constructed component the scheduler
// wires together. Constructing providers (LLM bindings, HTTP clients,
// the store file) is the caller's job — cmd/orchestrator's main, not
// this package — so the scheduler itself never does I/O setup.
type Deps struct {
	Store            *store.Store
	Data             market.DataSource
	Gateway          *llmgateway.Gateway // nil disables every LLM-gated stage
	NewsSources      []news.Source
	Limiter          *ratelimit.Limiter
	MacroFetcher     *macro.Fetcher
	PoliticalFetcher *political.Fetcher
	DefconFetcher    *defcon.Fetcher
	Sink             *notify.Sink
	Bus              *cmdbus.Bus
}

// Scheduler is the single goroutine that owns an orchestrator run. No
// field here is touched from any other goroutine — commands mutate it
// only through drainCommands, which runs on the scheduler's own
// goroutine between cycles, matching §5's single-writer model.
type Scheduler struct {
	cfg *config.Config

	store            *store.Store
	data             market.DataSource
	gateway          *llmgateway.Gateway
	newsSources      []news.Source
	limiter          *ratelimit.Limiter
	macroFetcher     *macro.Fetcher
	politicalFetcher *political.Fetcher
	defconFetcher    *defcon.Fetcher
	sink             *notify.Sink
	bus              *cmdbus.Bus
	dispatcher       *cmdbus.Dispatcher

	entryEngine    *broker.EntryEngine
	exitManager    *broker.Manager
	researcher     *acquisition.Researcher
	analyst        *acquisition.Analyst
	verifier       *acquisition.Verifier
	briefingRunner *briefing.Runner

	now func() time.Time

	// Runtime state, mutated only on the scheduler goroutine.
	held           bool
	stopRequested  bool
	estopRequested bool
	updateRequested bool

	previousDefcon int
	interval        time.Duration
	pendingInterval time.Duration

	lastMacroFetch     time.Time
	lastPoliticalFetch time.Time
	lastMacroResult    macro.Result

	priorArticleURLs map[string]bool
	priorBatchAt     time.Time

	quotes map[string]*market.Quote

	briefingDate string // YYYY-MM-DD of the last briefing run, local scheduler clock
	briefingHour, briefingMinute int

	cycleCount int
}

// New wires every dependency into a Scheduler, constructing the broker
// entry/exit engines and acquisition-pipeline stages from cfg's
// thresholds. The command bus Dispatcher is wired separately via
// Handlers (see commands.go) once the Scheduler itself exists, since the
// handlers close over scheduler state.
func New(cfg *config.Config, d Deps) *Scheduler {
	exitCfg := broker.ExitConfig{
		ProfitTargetPct: cfg.ProfitTargetPct,
		StopLossPct:     cfg.StopLossPct,
		TrailingStopPct: cfg.TrailingStopPct,
		MaxHoldHours:    cfg.MaxHoldHours,
		MinHoldHours:    cfg.MinHoldHours,
	}
	entryCfg := broker.DefaultEntryConfig()
	entryCfg.MaxPositionSizePct = cfg.MaxPositionPct

	s := &Scheduler{
		cfg:              cfg,
		store:            d.Store,
		data:             d.Data,
		gateway:          d.Gateway,
		newsSources:      d.NewsSources,
		limiter:          d.Limiter,
		macroFetcher:     d.MacroFetcher,
		politicalFetcher: d.PoliticalFetcher,
		defconFetcher:    d.DefconFetcher,
		sink:             d.Sink,
		bus:              d.Bus,

		entryEngine: broker.NewEntryEngine(d.Store, d.Data, d.Gateway, entryCfg),
		exitManager: broker.NewManager(exitCfg),
		researcher:  acquisition.NewResearcher(d.Store, d.Data),
		analyst:     acquisition.NewAnalyst(d.Store, d.Gateway),
		verifier:    acquisition.NewVerifier(d.Store, d.Data, d.Gateway),

		now:              time.Now,
		interval:         time.Duration(cfg.MonitoringIntervalMinutes) * time.Minute,
		priorArticleURLs: make(map[string]bool),
		briefingHour:     defaultBriefingHour,
		briefingMinute:   defaultBriefingMinute,
	}
	s.briefingRunner = briefing.NewRunner(d.Store, d.Gateway, d.Sink, func(ctx context.Context) error {
		_, err := s.verifier.RunCycle(ctx)
		return err
	})
	s.dispatcher = cmdbus.NewDispatcher(s.buildHandlers())
	return s
}

// Run drives the control loop until ctx is cancelled or a stop/estop
// command is drained. It always returns nil — a fatal condition (store
// or config failure) is the caller's responsibility to detect before
// Run is ever invoked, per §7's error-taxonomy propagation policy.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Component("scheduler").Info().Dur("interval", s.interval).Msg("orchestrator starting")
	for {
		if ctx.Err() != nil {
			log.Component("scheduler").Info().Msg("context cancelled, stopping")
			return nil
		}

		s.drainCommands()
		if s.estopRequested {
			log.Component("scheduler").Warn().Msg("emergency stop — halting before next cycle")
			return nil
		}
		if s.stopRequested {
			log.Component("scheduler").Info().Msg("graceful stop requested — halting before next cycle")
			return nil
		}

		cycleCtx, cancel := context.WithCancel(ctx)
		s.runCycle(cycleCtx)
		cancel()

		if !s.sleep(ctx) {
			return nil
		}
	}
}

// RunOnce drains pending commands and executes exactly one cycle,
// without entering the sleep loop — backs the `orchestrator test`
// single-shot CLI invocation of SPEC_FULL.md §6.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	s.drainCommands()
	s.runCycle(ctx)
	return nil
}

// sleep subdivides the monitoring interval into pollInterval ticks,
// draining the command bus at each one. It returns false when an
// estop/stop was seen (the caller should exit Run) and true otherwise —
// either the full interval elapsed or update broke the sleep early. A
// pending interval change (from the `interval` command) takes effect
// here, at the sleep boundary, never mid-cycle.
func (s *Scheduler) sleep(ctx context.Context) bool {
	if s.pendingInterval > 0 {
		s.interval = s.pendingInterval
		s.pendingInterval = 0
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	deadline := s.now().Add(s.interval)

	for s.now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			s.drainCommands()
			if s.estopRequested || s.stopRequested {
				return false
			}
			if s.updateRequested {
				s.updateRequested = false
				return true
			}
		}
	}
	return true
}

// drainCommands processes every command currently pending on the bus.
// It only ever reads one at a time (commands do not queue — a second
// Send before the first is drained overwrites the pending file, matching
// cmdbus.Bus's single pending-command slot) but loops defensively in
// case a handler itself enqueues a follow-up.
func (s *Scheduler) drainCommands() {
	for {
		req, err := s.bus.Poll()
		if err != nil {
			log.Component("scheduler").Warn().Err(err).Msg("command poll failed")
			return
		}
		if req == nil {
			return
		}
		resp := s.dispatcher.Dispatch(*req)
		if err := s.bus.Respond(resp); err != nil {
			log.Component("scheduler").Warn().Err(err).Msg("command response write failed")
		}
	}
}

// runCycle executes exactly one monitoring+trading+briefing pass. Every
// stage is independently fault-tolerant — a failure in one never
// prevents the cycle from completing and persisting a summary, per §7's
// "cycle always completes" propagation policy.
func (s *Scheduler) runCycle(ctx context.Context) {
	s.cycleCount++
	start := s.now()
	log.Component("scheduler").Info().Int("cycle", s.cycleCount).Bool("held", s.held).Msg("cycle starting")
	metrics.SetSchedulerRunning(!s.held)
	defer func() { metrics.RecordCycleDuration(s.now().Sub(start).Seconds()) }()

	var newsScore news.Score
	defconLevel := s.previousDefcon
	var compositeScore, dropPct float64

	if !s.held {
		newsScore, defconLevel, compositeScore, dropPct = s.runMonitoringCycle(ctx)
	} else {
		log.Component("scheduler").Info().Msg("holding — skipping monitoring fetches this cycle")
	}

	if s.previousDefcon != 0 && defconLevel != s.previousDefcon {
		s.notifyDefconChange(ctx, s.previousDefcon, defconLevel, compositeScore)
	}
	s.previousDefcon = defconLevel

	s.runExitsAndEntries(ctx, defconLevel)
	s.maybeRunDailyBriefing(ctx)
	s.emitCycleSummary(ctx, defconLevel, newsScore)
}

// notifyDefconChange always fires on any DEFCON change; an escalation
// (current < previous, i.e. a more severe level) is flagged distinctly
// so a downstream consumer can page louder, but in disabled broker mode
// this notification IS the "trade alert" SPEC_FULL.md §4.12 step 3
// describes — there is no separate manual-approval queue in this build
// (see commands.go's Yes/No scope note).
func (s *Scheduler) notifyDefconChange(ctx context.Context, oldLevel, newLevel int, compositeScore float64) {
	escalation := newLevel < oldLevel
	log.Component("scheduler").Warn().Int("old", oldLevel).Int("new", newLevel).Bool("escalation", escalation).Msg("defcon level changed")
	s.sink.Notify(ctx, notify.KindDefconChange, map[string]any{
		"old_defcon":   oldLevel,
		"new_defcon":   newLevel,
		"signal_score": compositeScore,
		"escalation":   escalation,
	})
}
