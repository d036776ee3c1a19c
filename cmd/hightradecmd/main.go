// Command hightradecmd sends one operator command through the file-drop
// bus and prints the orchestrator's response — the `cmd CMD [ARGS]`
// surface of SPEC_FULL.md §6. It never touches the store or any
// component directly; it only ever writes into cfg.CommandDir and waits
// for the running orchestrator to pick the request up.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/realmrhigh/hightrade/cmdbus"
	"github.com/realmrhigh/hightrade/config"
)

const responseTimeout = 10 * time.Second

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: cmd CMD [ARGS]")
		os.Exit(1)
	}

	configPath := os.Getenv("HIGHTRADE_CONFIG")
	if configPath == "" {
		configPath = "config.json"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error loading config:", err)
		os.Exit(1)
	}

	raw := strings.Join(os.Args[1:], " ")
	bus := cmdbus.New(cfg.CommandDir)

	if _, err := bus.Send(raw); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	resp, err := bus.WaitForResponse(responseTimeout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error waiting for response:", err)
		os.Exit(1)
	}
	if resp == nil {
		fmt.Fprintln(os.Stderr, "no response — is the orchestrator running?")
		os.Exit(1)
	}

	printResponse(*resp)
	if !resp.OK {
		os.Exit(1)
	}
}

func printResponse(resp cmdbus.Response) {
	fmt.Println(resp.Message)
	if resp.Warning != "" {
		fmt.Println("warning:", resp.Warning)
	}
	if resp.Data == nil {
		return
	}
	data, err := json.MarshalIndent(resp.Data, "", "  ")
	if err != nil {
		return
	}
	fmt.Println(string(data))
}
