// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// main.go - Entry point for qlaw, a terminal client for streaming
// agent and workflow backends.
//
// Commands:
//   qlaw                       Start the chat TUI
//   qlaw chat                  Start the chat TUI
//   qlaw chat --plain          Readline REPL without the full-screen UI
//   qlaw ask "question"        One-shot question, streamed to stdout
//   qlaw history [subcommand]  Manage saved sessions
//   qlaw version               Print version information
//
// Global flags (chat and ask):
//   --url URL        Backend base URL (overrides config)
//   --entity NAME    Agent or workflow entity id
//   --mode MODE      "standard" or "workflow"
//   -q, --quiet      Minimal output

package main

import (
	"fmt"
	"os"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Qredence/qlaw-cli/internal/backend"
	"github.com/Qredence/qlaw-cli/internal/cli"
	"github.com/Qredence/qlaw-cli/internal/config"
	"github.com/Qredence/qlaw-cli/internal/history"
	"github.com/Qredence/qlaw-cli/internal/ui/chat"
)

// Version information, set at build time via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Program reference for delivering messages from streaming goroutines.
var (
	programMu  sync.Mutex
	programRef *tea.Program
)

func sendToProgram(msg tea.Msg) {
	programMu.Lock()
	p := programRef
	programMu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func main() {
	command := ""
	rest := []string{}
	if len(os.Args) > 1 {
		command = os.Args[1]
		rest = os.Args[2:]
	}

	switch command {
	case "", "chat", "tui":
		args := cli.NewArgParser(rest)
		cfg, err := loadConfig(args)
		if err != nil {
			fatal(err)
		}
		if args.BoolFlag("plain") || !cli.IsTTY() {
			if err := cli.RunREPL(cfg, args.BoolFlag("quiet", "q")); err != nil {
				fatal(err)
			}
			return
		}
		runTUI(cfg)

	case "ask":
		args := cli.NewArgParser(rest)
		cfg, err := loadConfig(args)
		if err != nil {
			fatal(err)
		}
		if err := cli.RunAsk(cfg, args); err != nil {
			fatal(err)
		}

	case "history":
		args := cli.NewArgParser(rest)
		cfg, err := loadConfig(args)
		if err != nil {
			fatal(err)
		}
		if err := cli.RunHistory(cfg, args); err != nil {
			fatal(err)
		}

	case "version", "--version", "-V":
		fmt.Printf("qlaw %s (%s, built %s)\n", Version, GitCommit, BuildDate)

	case "help", "--help", "-h":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

// loadConfig loads the config file and applies CLI flag overrides on top.
func loadConfig(args *cli.ArgParser) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if url := args.Flag("url"); url != "" {
		cfg.Backend.BaseURL = url
	}
	if entity := args.Flag("entity", "e"); entity != "" {
		cfg.Backend.Entity = entity
	}
	if mode := args.Flag("mode", "m"); mode != "" {
		cfg.Backend.Mode = mode
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// =============================================================================
// TUI BOOTSTRAP
// =============================================================================

// appModel adapts chat.Model to the tea.Model interface.
type appModel struct {
	chat chat.Model
}

func (a appModel) Init() tea.Cmd {
	return a.chat.Init()
}

func (a appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	a.chat, cmd = a.chat.Update(msg)
	return a, cmd
}

func (a appModel) View() string {
	return a.chat.View()
}

func runTUI(cfg *config.Config) {
	if cfg.Backend.BaseURL == "" {
		fatal(fmt.Errorf("no backend URL configured; set backend.base_url in the config file or QLAW_BASE_URL"))
	}

	client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.APIKey)
	if cfg.Backend.RateLimit > 0 {
		client = client.WithRateLimit(cfg.Backend.RateLimit)
	}
	client = client.WithFrameLog(cfg.Backend.FrameLog)

	var store *history.Store
	if cfg.History.Enabled {
		if path, err := cfg.HistoryPath(); err == nil {
			if s, err := history.Open(path); err == nil {
				s.MaxSessions = cfg.History.MaxSessions
				store = s
				defer store.Close()
			} else {
				fmt.Fprintf(os.Stderr, "Warning: history disabled: %v\n", err)
			}
		}
	}

	m := chat.New(cfg, client, store, sendToProgram)

	p := tea.NewProgram(
		appModel{chat: m},
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	programMu.Lock()
	programRef = p
	programMu.Unlock()

	// Live-reload entity and mode when the config file changes on disk.
	if path, err := config.ConfigPath(); err == nil {
		watcher, werr := config.NewWatcher(path, func(next *config.Config) {
			sendToProgram(chat.ConfigReloadedMsg{
				Entity: next.Backend.Entity,
				Mode:   next.Backend.Mode,
			})
		})
		if werr == nil {
			defer watcher.Close()
		}
	}

	if _, err := p.Run(); err != nil {
		fatal(fmt.Errorf("error running qlaw: %w", err))
	}
}

func printUsage() {
	fmt.Print(`qlaw - terminal client for streaming agent backends

Usage:
  qlaw [chat] [flags]        Start the chat TUI
  qlaw chat --plain          Plain readline chat (no full-screen UI)
  qlaw ask "question"        One-shot question, streamed to stdout
  qlaw history [subcommand]  Manage saved sessions (list, search, show, delete)
  qlaw version               Print version information

Flags:
  --url URL        Backend base URL (overrides config)
  --entity NAME    Agent or workflow entity id
  --mode MODE      "standard" or "workflow"
  -q, --quiet      Minimal output

Configuration lives at ~/.qlaw/config.toml and can be overridden with
QLAW_BASE_URL, QLAW_API_KEY, QLAW_ENTITY, and QLAW_MODE.
`)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
