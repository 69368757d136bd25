// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// repl.go - Plain-terminal interactive chat for qlaw.
//
// Handles `qlaw chat --plain`: a readline-style REPL that streams
// responses to stdout without taking over the screen. Used when the
// terminal can't run the TUI, or the user prefers scrollback.
//
// Interactive commands (during chat):
//   /help, /h           Show available commands
//   /clear, /c          Clear conversation history
//   /status, /s         Show session statistics
//   /history            Show conversation history
//   /quit, /q           Exit chat
//   Ctrl+C              Cancel current response
//   Ctrl+D              Exit chat

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/peterh/liner"

	"github.com/Qredence/qlaw-cli/internal/backend"
	"github.com/Qredence/qlaw-cli/internal/config"
	"github.com/Qredence/qlaw-cli/internal/history"
	"github.com/Qredence/qlaw-cli/internal/model"
	"github.com/Qredence/qlaw-cli/internal/workflow"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ReplInput provides line editing and input history for the plain REPL.
type ReplInput struct {
	line        *liner.State
	historyFile string
}

// NewReplInput creates a liner-backed reader with persistent history.
func NewReplInput() *ReplInput {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}

	in := &ReplInput{
		line:        line,
		historyFile: filepath.Join(configDir, "repl_history"),
	}
	in.loadHistory()
	return in
}

func (r *ReplInput) loadHistory() {
	if f, err := os.Open(r.historyFile); err == nil {
		r.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line with the given prompt. Non-empty input is added
// to the arrow-key history.
func (r *ReplInput) ReadInput(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

// saveHistory persists input history with owner-only permissions.
func (r *ReplInput) saveHistory() {
	if err := config.EnsureConfigDir(); err != nil {
		return
	}
	f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	r.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (r *ReplInput) Close() {
	r.saveHistory()
	r.line.Close()
}

// =============================================================================
// SESSION STATE
// =============================================================================

// ReplSession holds the state for one plain-mode chat session.
type ReplSession struct {
	Config  *config.Config
	Client  *backend.Client
	Tracker *workflow.Tracker
	Session *model.Session
	Store   *history.Store

	Mode     workflow.Mode
	Entity   string
	Quiet    bool
	Markdown bool

	StartTime   time.Time
	TotalTokens int

	CancelFunc context.CancelFunc
	Input      *ReplInput
}

// NewReplSession builds a session from loaded configuration.
func NewReplSession(cfg *config.Config, quiet bool) *ReplSession {
	client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.APIKey)
	if cfg.Backend.RateLimit > 0 {
		client = client.WithRateLimit(cfg.Backend.RateLimit)
	}
	client = client.WithFrameLog(cfg.Backend.FrameLog)

	mode := workflow.ModeStandard
	if cfg.Backend.Mode == config.ModeWorkflow {
		mode = workflow.ModeWorkflow
	}

	var store *history.Store
	if cfg.History.Enabled {
		path, err := cfg.HistoryPath()
		if err == nil {
			var s *history.Store
			if s, err = history.Open(path); err == nil {
				s.MaxSessions = cfg.History.MaxSessions
				store = s
			}
		}
		if store == nil && !quiet {
			fmt.Fprintf(os.Stderr, "%s history disabled: %v\n",
				warningStyle.Render("[Warning]"), err)
		}
	}

	return &ReplSession{
		Config:    cfg,
		Client:    client,
		Tracker:   &workflow.Tracker{},
		Session:   model.NewSession(cfg.Backend.Entity, cfg.Backend.Mode),
		Store:     store,
		Mode:      mode,
		Entity:    cfg.Backend.Entity,
		Quiet:     quiet,
		Markdown:  cfg.UI.Markdown && IsStdoutTTY(),
		StartTime: time.Now(),
		Input:     NewReplInput(),
	}
}

// =============================================================================
// REPL LOOP
// =============================================================================

// RunREPL runs the plain interactive chat loop until the user exits.
func RunREPL(cfg *config.Config, quiet bool) error {
	if cfg.Backend.BaseURL == "" {
		return fmt.Errorf("no backend URL configured; set backend.base_url in %s or QLAW_BASE_URL", configPathHint())
	}

	session := NewReplSession(cfg, quiet)
	defer session.Input.Close()
	defer session.persist()

	if !session.Quiet {
		printWelcome(session)
	}

	// First Ctrl+C during a stream cancels it instead of killing the
	// process. Liner handles Ctrl+C at the prompt itself.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			if session.CancelFunc != nil {
				session.CancelFunc()
				session.CancelFunc = nil
			}
		}
	}()

	for {
		prompt := promptStyle.Render("qlaw> ")
		if session.Tracker.Pending() != nil {
			prompt = pendingStyle.Render("answer> ")
		}

		input, err := session.Input.ReadInput(prompt)
		if err != nil {
			// liner.ErrPromptAborted is Ctrl+C, anything else is EOF.
			fmt.Println()
			printExitSummary(session)
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			cont, err := handleSlashCommand(input, session)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
			}
			if !cont {
				printExitSummary(session)
				return nil
			}
			continue
		}

		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			printExitSummary(session)
			return nil
		}

		session.processTurn(input)
	}
}

// processTurn sends one user turn and streams the reply to stdout.
func (s *ReplSession) processTurn(input string) {
	s.Session.AddUserMessage(input)

	turn := workflow.TurnContext{
		Mode:       s.Mode,
		EntityID:   s.Entity,
		Transcript: s.Session.FlattenPrompt(),
		UserText:   input,
		Pending:    s.Tracker.Pending(),
	}
	req := workflow.BuildRequest(turn)
	s.Tracker.Consume()

	ctx, cancel := context.WithCancel(context.Background())
	s.CancelFunc = cancel
	defer func() {
		s.CancelFunc = nil
		cancel()
	}()

	stats := model.NewStatistics()
	var content strings.Builder
	firstToken := true

	fmt.Println()
	s.Client.RunStream(ctx, req, backend.Callbacks{
		OnDelta: func(text string) {
			if firstToken {
				firstToken = false
				stats.RecordFirstToken()
			}
			content.WriteString(text)
			if !s.Markdown {
				fmt.Print(text)
			}
		},
		OnError: func(message string) {
			fmt.Fprintf(os.Stderr, "\n%s %s\n", errorStyle.Render("[Error]"), message)
		},
		OnTrace: func(raw map[string]any) {
			s.Tracker.Observe(raw)
		},
	})

	response := content.String()
	msg := s.Session.AddAssistantMessage()
	msg.AppendToken(response)

	tokens := msg.EstimateTokens()
	stats.Finalize(tokens)
	s.Session.FinalizeLast(stats)
	s.TotalTokens += tokens

	if s.Markdown {
		displayResponse(response)
	}
	fmt.Println()

	if !s.Quiet && response != "" {
		fmt.Fprintf(os.Stderr, "%s %s\n",
			mutedStyle.Render("[Stats]"),
			mutedStyle.Render(msg.FormatStats()))
	}

	if pending := s.Tracker.Pending(); pending != nil {
		printPendingRequest(pending)
	}
	fmt.Println()
}

// persist saves the session to history on exit.
func (s *ReplSession) persist() {
	if s.Store == nil {
		return
	}
	defer s.Store.Close()
	if s.Session.IsEmpty() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Store.Save(ctx, s.Session); err != nil && !s.Quiet {
		fmt.Fprintf(os.Stderr, "%s session not saved: %v\n",
			warningStyle.Render("[Warning]"), err)
	}
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand processes slash commands. A false return means exit.
func handleSlashCommand(cmd string, session *ReplSession) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return true, nil
	}

	switch strings.ToLower(parts[0]) {
	case "/help", "/h", "/?", "/":
		printHelp()
		return true, nil

	case "/clear", "/c":
		session.Session = model.NewSession(session.Entity, session.Config.Backend.Mode)
		session.Tracker.Consume()
		fmt.Println(commandStyle.Render("[Conversation cleared]"))
		return true, nil

	case "/status", "/s":
		printStatus(session)
		return true, nil

	case "/history":
		printTranscript(session)
		return true, nil

	case "/quit", "/q", "/exit":
		return false, nil

	default:
		return true, fmt.Errorf("unknown command: %s (type /help for commands)", parts[0])
	}
}

// =============================================================================
// DISPLAY
// =============================================================================

// printPendingRequest shows a workflow pause that needs a human answer.
func printPendingRequest(p *workflow.PendingRequest) {
	fmt.Println()
	fmt.Println(pendingStyle.Render("[Input requested]"))
	if p.Prompt != "" {
		fmt.Println(p.Prompt)
	}
	if len(p.Conversation) > 0 {
		fmt.Println(mutedStyle.Render("Recent messages:"))
		turns := p.Conversation
		if len(turns) > 5 {
			turns = turns[len(turns)-5:]
		}
		for _, t := range turns {
			name := t.AuthorName
			if name == "" {
				name = t.Role
			}
			fmt.Printf("  %s %s\n", mutedStyle.Render(name+":"), t.Text)
		}
	}
	fmt.Println(infoStyle.Render("Type your answer to resume the workflow."))
}

func printWelcome(session *ReplSession) {
	fmt.Println()
	fmt.Println(welcomeStyle.Render("qlaw chat (plain mode)"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 30)))
	fmt.Printf("%s %s\n",
		infoStyle.Render("Backend:"),
		commandStyle.Render(session.Config.Backend.BaseURL))
	if session.Entity != "" {
		fmt.Printf("%s %s\n",
			infoStyle.Render("Entity:"),
			commandStyle.Render(session.Entity))
	}
	if session.Mode == workflow.ModeWorkflow {
		fmt.Printf("%s %s\n",
			infoStyle.Render("Mode:"),
			commandStyle.Render("Workflow (multi-agent)"))
	} else {
		fmt.Printf("%s %s\n",
			infoStyle.Render("Mode:"),
			commandStyle.Render("Standard"))
	}
	fmt.Println()
	fmt.Println(infoStyle.Render("Type your message and press Enter. Commands: /help, /quit"))
	fmt.Println()
}

func printHelp() {
	fmt.Println()
	fmt.Println(summaryHeaderStyle.Render("Available Commands"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 20)))
	fmt.Println()

	commands := []struct {
		cmd  string
		desc string
	}{
		{"/help, /h", "Show this help"},
		{"/clear, /c", "Clear conversation history"},
		{"/status, /s", "Show session statistics"},
		{"/history", "Show conversation history"},
		{"/quit, /q", "Exit chat"},
	}
	for _, c := range commands {
		fmt.Printf("  %s  %s\n",
			commandStyle.Render(fmt.Sprintf("%-15s", c.cmd)),
			infoStyle.Render(c.desc))
	}

	fmt.Println()
	fmt.Println(infoStyle.Render("Tip: Ctrl+C cancels the current response, Ctrl+D exits"))
	fmt.Println()
}

func printStatus(session *ReplSession) {
	elapsed := time.Since(session.StartTime).Round(time.Second)

	fmt.Println()
	fmt.Println(summaryHeaderStyle.Render("Session Status"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 20)))
	fmt.Println()

	fmt.Printf("  %s %s\n",
		infoStyle.Render("Backend:"),
		commandStyle.Render(session.Config.Backend.BaseURL))
	if session.Entity != "" {
		fmt.Printf("  %s %s\n",
			infoStyle.Render("Entity:"),
			commandStyle.Render(session.Entity))
	}
	fmt.Printf("  %s %s\n",
		infoStyle.Render("Duration:"),
		elapsed.String())
	fmt.Printf("  %s %d messages\n",
		infoStyle.Render("History:"),
		session.Session.MessageCount())
	fmt.Printf("  %s ~%d\n",
		infoStyle.Render("Tokens:"),
		session.TotalTokens)
	if session.Tracker.Pending() != nil {
		fmt.Printf("  %s %s\n",
			infoStyle.Render("Workflow:"),
			pendingStyle.Render("awaiting your answer"))
	}
	fmt.Println()
}

func printTranscript(session *ReplSession) {
	if session.Session.IsEmpty() {
		fmt.Println(infoStyle.Render("[No messages yet]"))
		return
	}

	fmt.Println()
	fmt.Println(summaryHeaderStyle.Render("Conversation History"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 25)))
	fmt.Println()

	for i, msg := range session.Session.Messages {
		label := msg.Role.DisplayName()
		if msg.AuthorName != "" {
			label = msg.AuthorName
		}
		switch msg.Role {
		case model.RoleUser:
			label = promptStyle.Render(label)
		case model.RoleAssistant:
			label = welcomeStyle.Render(label)
		default:
			label = warningStyle.Render(label)
		}
		fmt.Printf("  %d. %s: %s\n", i+1, label, msg.Preview(100))
	}
	fmt.Println()
}

func printExitSummary(session *ReplSession) {
	if session.Session.IsEmpty() {
		fmt.Println(infoStyle.Render("Goodbye!"))
		return
	}

	elapsed := time.Since(session.StartTime).Round(time.Second)

	fmt.Println()
	fmt.Println(summaryHeaderStyle.Render("Session Summary"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 15)))
	fmt.Printf("  %s %d\n",
		infoStyle.Render("Messages:"),
		session.Session.MessageCount())
	fmt.Printf("  %s ~%d\n",
		infoStyle.Render("Tokens:"),
		session.TotalTokens)
	fmt.Printf("  %s %s\n",
		infoStyle.Render("Duration:"),
		elapsed.String())
	if session.Store != nil {
		fmt.Printf("  %s %s\n",
			infoStyle.Render("Saved:"),
			commandStyle.Render(session.Session.Title))
	}
	fmt.Println()
	fmt.Println(infoStyle.Render("Goodbye!"))
}

// configPathHint returns the config path for error messages, tolerating
// lookup failure.
func configPathHint() string {
	path, err := config.ConfigPath()
	if err != nil {
		return "~/.qlaw/config.toml"
	}
	return path
}
