// Package cmdbus implements the file-drop command channel operators use
// to steer a running orchestrator: a pending-command file the scheduler
// polls for, a response file the caller polls back, and a rolling history
// log — all written atomically via a temp-file-then-rename, mirroring
// original_source/hightrade_cmd.py's on-disk protocol exactly.
package cmdbus

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/realmrhigh/hightrade/apperr"
)

// Command is the closed, exact-name command enum of SPEC_FULL.md §4.11.
type Command string

const (
	CmdYes       Command = "yes"
	CmdNo        Command = "no"
	CmdHold      Command = "hold"
	CmdStart     Command = "start"
	CmdStop      Command = "stop"
	CmdEstop     Command = "estop"
	CmdUpdate    Command = "update"
	CmdStatus    Command = "status"
	CmdPortfolio Command = "portfolio"
	CmdDefcon    Command = "defcon"
	CmdTrades    Command = "trades"
	CmdBroker    Command = "broker"
	CmdMode      Command = "mode"
	CmdInterval  Command = "interval"
	CmdBuy       Command = "buy"
	CmdSell      Command = "sell"
	CmdBriefing  Command = "briefing"
	CmdResearch  Command = "research"
	CmdHunt      Command = "hunt"
	CmdHelp      Command = "help"
)

// aliasMap resolves every alias (and each canonical name itself) to its
// canonical Command, matching hightrade_cmd.py's ALIAS_MAP construction.
var aliasMap = buildAliasMap(map[Command][]string{
	CmdYes:       {"y", "approve"},
	CmdNo:        {"n", "reject", "deny"},
	CmdHold:      {"pause", "wait"},
	CmdStart:     {"resume", "go"},
	CmdStop:      {"quit", "shutdown"},
	CmdEstop:     {"emergency", "kill", "panic"},
	CmdUpdate:    {"refresh", "cycle", "now"},
	CmdStatus:    {"info", "s"},
	CmdPortfolio: {"pf", "positions"},
	CmdDefcon:    {"dc", "alert"},
	CmdTrades:    {"pending", "recent"},
	CmdBroker:    {"agent"},
	CmdMode:      nil,
	CmdInterval:  {"freq"},
	CmdBuy:       {"long"},
	CmdSell:      {"exit", "close"},
	CmdBriefing:  {"daily", "report"},
	CmdResearch:  {"scan", "fetch"},
	CmdHunt:      {"hound", "sniff"},
	CmdHelp:      {"h", "?"},
})

func buildAliasMap(defs map[Command][]string) map[string]Command {
	out := make(map[string]Command, len(defs)*2)
	for cmd, aliases := range defs {
		out[string(cmd)] = cmd
		for _, a := range aliases {
			out[a] = cmd
		}
	}
	return out
}

// Resolve strips a leading '/' and maps an alias to its canonical
// Command. ok is false for anything not in the closed enum.
func Resolve(raw string) (cmd Command, ok bool) {
	name := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), "/"))
	c, ok := aliasMap[name]
	return c, ok
}

// Request is one parsed command, as written to and read from the
// pending-command file.
type Request struct {
	ID        string    `json:"id"`
	Command   Command   `json:"command"`
	Args      string    `json:"args"`
	Raw       string    `json:"raw"`
	Timestamp time.Time `json:"timestamp"`
}

// Response is the structured reply every handler produces.
type Response struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Warning string `json:"warning,omitempty"`
}

const historyLimit = 200

// Bus owns the three well-known files under dir: pending_command.json,
// command_response.json, command_history.json.
type Bus struct {
	dir string
}

func New(dir string) *Bus {
	return &Bus{dir: dir}
}

func (b *Bus) pendingPath() string { return filepath.Join(b.dir, "pending_command.json") }
func (b *Bus) responsePath() string { return filepath.Join(b.dir, "command_response.json") }
func (b *Bus) historyPath() string { return filepath.Join(b.dir, "command_history.json") }

// Send writes a new pending command for the scheduler to pick up — the
// client side of the protocol. It clears any stale response first so a
// waiting caller never reads a previous command's result.
func (b *Bus) Send(raw string) (*Request, error) {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return nil, apperr.Fatal("cmdbus.Send.mkdir", err)
	}
	parts := strings.SplitN(strings.TrimSpace(raw), " ", 2)
	cmd, ok := Resolve(parts[0])
	if !ok {
		return nil, apperr.Validation("cmdbus.Send", unknownCommandError(raw))
	}
	args := ""
	if len(parts) > 1 {
		args = parts[1]
	}

	req := &Request{ID: uuid.NewString(), Command: cmd, Args: args, Raw: raw, Timestamp: time.Now().UTC()}

	_ = os.Remove(b.responsePath())

	if err := writeAtomic(b.pendingPath(), req); err != nil {
		return nil, err
	}
	if err := b.appendHistory(req); err != nil {
		return nil, err
	}
	return req, nil
}

// Poll checks for (and removes) a pending command file, matching
// check_for_commands' read-then-unlink sequencing. Returns nil, nil when
// nothing is pending.
func (b *Bus) Poll() (*Request, error) {
	data, err := os.ReadFile(b.pendingPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperr.Transient("cmdbus.Poll", err)
	}
	_ = os.Remove(b.pendingPath())

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		// A malformed pending file is dropped silently, same as the
		// original's bare except around json.load.
		return nil, nil
	}
	return &req, nil
}

// Respond writes resp for the waiting client, atomically.
func (b *Bus) Respond(resp Response) error {
	return writeAtomic(b.responsePath(), resp)
}

// WaitForResponse polls the response file until it appears or timeout
// elapses, mirroring _wait_for_response's 300ms poll loop.
func (b *Bus) WaitForResponse(timeout time.Duration) (*Response, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(b.responsePath())
		if err == nil {
			_ = os.Remove(b.responsePath())
			var resp Response
			if err := json.Unmarshal(data, &resp); err == nil {
				return &resp, nil
			}
		}
		time.Sleep(300 * time.Millisecond)
	}
	return nil, nil
}

func (b *Bus) appendHistory(req *Request) error {
	var history []Request
	if data, err := os.ReadFile(b.historyPath()); err == nil {
		_ = json.Unmarshal(data, &history) // a corrupt history file just resets to empty
	}
	history = append(history, *req)
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	return writeAtomic(b.historyPath(), history)
}

func writeAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return apperr.Validation("cmdbus.writeAtomic.marshal", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apperr.Transient("cmdbus.writeAtomic.write", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return apperr.Transient("cmdbus.writeAtomic.rename", err)
	}
	return nil
}

type unknownCommandErr struct{ raw string }

func (e unknownCommandErr) Error() string { return "unknown command: " + e.raw }

func unknownCommandError(raw string) error { return unknownCommandErr{raw: raw} }
