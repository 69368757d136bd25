// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/Qredence/qlaw-cli/internal/backend"
	"github.com/Qredence/qlaw-cli/internal/config"
	"github.com/Qredence/qlaw-cli/internal/history"
	"github.com/Qredence/qlaw-cli/internal/model"
	"github.com/Qredence/qlaw-cli/internal/ui/styles"
	"github.com/Qredence/qlaw-cli/internal/workflow"
)

// =============================================================================
// STATE
// =============================================================================

// State is the chat view's interaction state.
type State int

const (
	// StateReady accepts a new user turn.
	StateReady State = iota

	// StateStreaming has a response in flight.
	StateStreaming

	// StateAwaitingInput means a workflow paused and asked the human a
	// question; the next submit answers it instead of opening a new turn.
	StateAwaitingInput
)

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
type Model struct {
	// Collaborators
	client  *backend.Client
	tracker *workflow.Tracker
	store   *history.Store // nil disables persistence
	theme   *styles.Theme

	// Turn routing
	entity   string
	mode     workflow.Mode
	showStat bool
	markdown bool

	// Transcript
	session *model.Session
	stats   *model.Statistics

	// Streaming plumbing
	buf         *StreamingBuffer
	cancelMgr   *cancelManager
	send        func(tea.Msg)
	streamingID string

	// Components
	viewport   viewport.Model
	input      textinput.Model
	spin       spinner.Model
	mdRenderer *glamour.TermRenderer

	state  State
	width  int
	height int
	ready  bool
}

// New builds a chat model. send delivers messages from streaming
// goroutines into the program loop (tea.Program.Send once the program
// exists). store may be nil.
func New(cfg *config.Config, client *backend.Client, store *history.Store, send func(tea.Msg)) Model {
	theme := styles.NewTheme(cfg.UI.Theme)

	input := textinput.New()
	input.Placeholder = "Type a message..."
	input.Focus()
	input.CharLimit = 0

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = theme.Spinner

	mode := workflow.ModeStandard
	if cfg.Backend.Mode == config.ModeWorkflow {
		mode = workflow.ModeWorkflow
	}

	return Model{
		client:    client,
		tracker:   &workflow.Tracker{},
		store:     store,
		theme:     theme,
		entity:    cfg.Backend.Entity,
		mode:      mode,
		showStat:  cfg.UI.ShowStats,
		markdown:  cfg.UI.Markdown,
		session:   model.NewSession(cfg.Backend.Entity, cfg.Backend.Mode),
		buf:       NewStreamingBuffer(),
		cancelMgr: newCancelManager(),
		send:      send,
		input:     input,
		spin:      spin,
	}
}

// Session exposes the transcript (for saving on exit).
func (m *Model) Session() *model.Session {
	return m.session
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// =============================================================================
// UPDATE
// =============================================================================

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			if m.state == StateStreaming {
				m.cancelMgr.cancel()
				return m, nil
			}
			return m, tea.Sequence(m.saveSessionCmd(), tea.Quit)

		case "esc":
			if m.state == StateStreaming {
				m.cancelMgr.cancel()
			}
			return m, nil

		case "enter":
			if m.state != StateStreaming {
				if cmd := m.submit(); cmd != nil {
					return m, cmd
				}
			}
			return m, nil

		case "pgup":
			m.viewport.HalfViewUp()
			return m, nil

		case "pgdown":
			m.viewport.HalfViewDown()
			return m, nil
		}

	case StreamStartMsg:
		m.state = StateStreaming
		m.streamingID = msg.MessageID
		m.stats = model.NewStatistics()
		cmds = append(cmds, m.spin.Tick, streamTickCmd())

	case StreamTickMsg:
		if content, ok := m.buf.Flush(); ok {
			m.session.AppendToLast(content)
			m.refreshViewport()
		}
		if m.state == StateStreaming {
			cmds = append(cmds, streamTickCmd())
		}

	case StreamFirstTokenMsg:
		if m.stats != nil {
			m.stats.RecordFirstToken()
		}

	case StreamErrorMsg:
		m.drainBuffer()
		m.session.AppendToLast("[Error] " + msg.Message)
		m.refreshViewport()

	case StreamTraceMsg:
		m.tracker.Observe(msg.Raw)
		if display := workflow.FormatForDisplay(msg.Raw); display != "" {
			m.drainBuffer()
			m.session.AppendToLast(display)
			m.refreshViewport()
		}

	case StreamDoneMsg:
		m.finishStream()
		cmds = append(cmds, m.saveSessionCmd())

	case ConfigReloadedMsg:
		m.entity = msg.Entity
		m.mode = workflow.ModeStandard
		if msg.Mode == config.ModeWorkflow {
			m.mode = workflow.ModeWorkflow
		}

	case SessionSavedMsg:
		// Save failures are not worth interrupting the chat for.

	case spinner.TickMsg:
		if m.state == StateStreaming {
			var cmd tea.Cmd
			m.spin, cmd = m.spin.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	if m.state != StateStreaming {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// =============================================================================
// TURN SUBMISSION
// =============================================================================

// submit sends the typed input as the next turn. Returns nil when there is
// nothing to send.
func (m *Model) submit() tea.Cmd {
	text := m.input.Value()
	if text == "" {
		return nil
	}
	m.input.Reset()

	pending := m.tracker.Pending()
	m.session.AddUserMessage(text)
	assistant := m.session.AddAssistantMessage()
	m.buf.Reset()
	m.refreshViewport()

	turn := workflow.TurnContext{
		Mode:       m.mode,
		EntityID:   m.entity,
		Transcript: m.session.FlattenPrompt(),
		UserText:   text,
		Pending:    pending,
	}
	req := workflow.BuildRequest(turn)

	ctx, cancel := context.WithCancel(context.Background())
	m.cancelMgr.set(cancel)

	send := m.send
	client := m.client
	messageID := assistant.ID
	buf := m.buf
	var firstToken sync.Once

	go func() {
		defer cancel()
		client.RunStream(ctx, req, backend.Callbacks{
			OnDelta: func(token string) {
				firstToken.Do(func() { send(StreamFirstTokenMsg{MessageID: messageID}) })
				buf.Write(token)
			},
			OnError: func(message string) {
				send(StreamErrorMsg{MessageID: messageID, Message: message})
			},
			OnTrace: func(raw map[string]any) {
				send(StreamTraceMsg{MessageID: messageID, Raw: raw})
			},
			OnDone: func() {
				send(StreamDoneMsg{MessageID: messageID})
			},
		})
	}()

	// The answer is spent once the resume request is on the wire.
	if pending != nil {
		m.tracker.Consume()
	}

	start := StreamStartMsg{MessageID: messageID, StartTime: time.Now()}
	return func() tea.Msg { return start }
}

// finishStream settles transcript state after the terminal OnDone.
func (m *Model) finishStream() {
	m.drainBuffer()
	if m.stats != nil {
		m.stats.Finalize(tokenEstimate(m.session))
	}
	m.session.FinalizeLast(m.stats)
	m.stats = nil
	m.streamingID = ""
	m.cancelMgr.cancel()

	if m.tracker.Pending() != nil {
		m.state = StateAwaitingInput
		m.input.Placeholder = "Answer the request above..."
	} else {
		m.state = StateReady
		m.input.Placeholder = "Type a message..."
	}
	m.input.Focus()
	m.refreshViewport()
}

// drainBuffer folds any buffered tokens into the transcript immediately.
func (m *Model) drainBuffer() {
	if content, ok := m.buf.ForceFlush(); ok {
		m.session.AppendToLast(content)
	}
}

func tokenEstimate(s *model.Session) int {
	if msg := s.LastMessage(); msg != nil {
		return msg.EstimateTokens()
	}
	return 0
}

// saveSessionCmd persists the session in the background.
func (m *Model) saveSessionCmd() tea.Cmd {
	if m.store == nil || m.session.IsEmpty() {
		return nil
	}
	store := m.store
	session := m.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return SessionSavedMsg{Err: store.Save(ctx, session)}
	}
}
