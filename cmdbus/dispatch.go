package cmdbus

import "sort"

// Handlers holds one callback per Command, wired by the scheduler to the
// live orchestrator/broker/store state. A nil field dispatches to a
// generic "not wired" response rather than panicking — lets a caller
// stand up a partial Dispatcher in tests.
type Handlers struct {
	Yes       func() Response
	No        func() Response
	Hold      func() Response
	Start     func() Response
	Stop      func() Response
	Estop     func() Response
	Update    func() Response
	Status    func() Response
	Portfolio func() Response
	Defcon    func() Response
	Trades    func() Response
	Broker    func() Response
	Mode      func(args string) Response
	Interval  func(args string) Response
	Buy       func(args string) Response
	Sell      func(args string) Response
	Briefing  func() Response
	Research  func() Response
	Hunt      func() Response
}

// Dispatcher routes a Request to its Handlers entry, matching
// CommandProcessor._dispatch's handler table.
type Dispatcher struct {
	h Handlers
}

func NewDispatcher(h Handlers) *Dispatcher {
	return &Dispatcher{h: h}
}

// Dispatch routes req to its handler and returns the structured
// response. Handler panics are not recovered here, and the scheduler
// has no recover boundary either: a panicking handler propagates out of
// the scheduler's command drain.
func (d *Dispatcher) Dispatch(req Request) Response {
	switch req.Command {
	case CmdYes:
		return call0(d.h.Yes)
	case CmdNo:
		return call0(d.h.No)
	case CmdHold:
		return call0(d.h.Hold)
	case CmdStart:
		return call0(d.h.Start)
	case CmdStop:
		return call0(d.h.Stop)
	case CmdEstop:
		return call0(d.h.Estop)
	case CmdUpdate:
		return call0(d.h.Update)
	case CmdStatus:
		return call0(d.h.Status)
	case CmdPortfolio:
		return call0(d.h.Portfolio)
	case CmdDefcon:
		return call0(d.h.Defcon)
	case CmdTrades:
		return call0(d.h.Trades)
	case CmdBroker:
		return call0(d.h.Broker)
	case CmdMode:
		return call1(d.h.Mode, req.Args)
	case CmdInterval:
		return call1(d.h.Interval, req.Args)
	case CmdBuy:
		return call1(d.h.Buy, req.Args)
	case CmdSell:
		return call1(d.h.Sell, req.Args)
	case CmdBriefing:
		return call0(d.h.Briefing)
	case CmdResearch:
		return call0(d.h.Research)
	case CmdHunt:
		return call0(d.h.Hunt)
	case CmdHelp:
		return Response{OK: true, Message: "Available commands", Data: HelpText()}
	default:
		return Response{OK: false, Message: "unknown command: " + string(req.Command)}
	}
}

func call0(fn func() Response) Response {
	if fn == nil {
		return Response{OK: false, Message: "command not wired in this build"}
	}
	return fn()
}

func call1(fn func(string) Response, args string) Response {
	if fn == nil {
		return Response{OK: false, Message: "command not wired in this build"}
	}
	return fn(args)
}

// commandInfo describes one canonical command for /help output.
type commandInfo struct {
	Command     string   `json:"command"`
	Description string   `json:"description"`
	Aliases     []string `json:"aliases"`
	Category    string   `json:"category"`
}

// HelpText lists every canonical command with its description, aliases,
// and category, for the /help response's Data field.
func HelpText() []commandInfo {
	defs := []struct {
		cmd      Command
		desc     string
		category string
	}{
		{CmdYes, "Approve pending trade or action", "decisions"},
		{CmdNo, "Reject pending trade or action", "decisions"},
		{CmdHold, "Pause trading — keep monitoring but do not execute", "control"},
		{CmdStart, "Resume trading after a hold", "control"},
		{CmdStop, "Gracefully stop the bot after the current cycle", "control"},
		{CmdEstop, "Emergency stop — halt ALL activity immediately", "control"},
		{CmdUpdate, "Force an immediate monitoring cycle (skip wait)", "control"},
		{CmdStatus, "Show current system status and DEFCON level", "info"},
		{CmdPortfolio, "Show portfolio summary and open positions", "info"},
		{CmdDefcon, "Show current DEFCON level and signal scores", "info"},
		{CmdTrades, "Show pending and recent trades", "info"},
		{CmdBroker, "Show the current broker mode", "info"},
		{CmdMode, "Switch broker mode (disabled/semi_auto/full_auto). Usage: mode semi_auto", "config"},
		{CmdInterval, "Change monitoring interval. Usage: interval 5", "config"},
		{CmdBuy, "Manually open a paper position. Usage: buy TICKER SHARES [@ PRICE]", "decisions"},
		{CmdSell, "Manually close a paper position. Usage: sell TICKER [TRADE_ID]", "decisions"},
		{CmdBriefing, "Run daily market briefing now", "info"},
		{CmdResearch, "Run acquisition researcher now for pending queue", "control"},
		{CmdHunt, "Momentum-scan watchlist source; not implemented in this build and always answers with an error", "control"},
		{CmdHelp, "Show all available commands", "info"},
	}

	out := make([]commandInfo, 0, len(defs))
	for _, d := range defs {
		out = append(out, commandInfo{
			Command:     string(d.cmd),
			Description: d.desc,
			Aliases:     aliasesOf(d.cmd),
			Category:    d.category,
		})
	}
	return out
}

func aliasesOf(cmd Command) []string {
	var aliases []string
	for alias, canonical := range aliasMap {
		if canonical == cmd && alias != string(cmd) {
			aliases = append(aliases, alias)
		}
	}
	sort.Strings(aliases)
	return aliases
}
