// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/Qredence/qlaw-cli/internal/model"
)

// =============================================================================
// LAYOUT
// =============================================================================

const (
	headerHeight = 1
	inputHeight  = 3
	statusHeight = 1
)

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.theme.SetSize(width, height)

	contentHeight := height - headerHeight - inputHeight - statusHeight
	if contentHeight < 1 {
		contentHeight = 1
	}
	if !m.ready {
		m.viewport = viewport.New(width, contentHeight)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = contentHeight
	}
	m.input.Width = width - 6
	m.rebuildRenderer()
	m.refreshViewport()
}

// refreshViewport re-renders the transcript and keeps the view pinned to
// the bottom while streaming.
func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderTranscript())
	if atBottom || m.state == StateStreaming {
		m.viewport.GotoBottom()
	}
}

// =============================================================================
// VIEW
// =============================================================================

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.theme.InputBox.Width(m.width - 2).Render(m.input.View()))
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m Model) renderHeader() string {
	title := "qlaw"
	if m.entity != "" {
		title = "qlaw | " + m.entity
	}
	return m.theme.Header.Render(title)
}

func (m Model) renderStatusBar() string {
	var status string
	switch m.state {
	case StateStreaming:
		status = m.spin.View() + " streaming (esc to cancel)"
	case StateAwaitingInput:
		status = "workflow waiting for your answer"
	default:
		status = "enter to send | ctrl+c to quit"
	}
	return m.theme.StatusBar.Width(m.width).Render(status)
}

// renderTranscript renders all messages with role labels, inline errors,
// and a stats line for finished assistant turns.
func (m Model) renderTranscript() string {
	if m.session.IsEmpty() {
		return m.theme.Help.Render("No messages yet. Say something.")
	}

	var parts []string
	for _, msg := range m.session.Messages {
		parts = append(parts, m.renderMessage(msg))
	}
	return strings.Join(parts, "\n\n")
}

func (m Model) renderMessage(msg *model.Message) string {
	var label lipgloss.Style
	switch msg.Role {
	case model.RoleUser:
		label = m.theme.UserLabel
	case model.RoleAssistant:
		label = m.theme.AssistantLabel
	default:
		label = m.theme.SystemLabel
	}

	name := msg.Role.DisplayName()
	if msg.AuthorName != "" {
		name = msg.AuthorName
	}

	content := msg.GetDisplayContent()
	if msg.IsStreaming && content == "" {
		content = m.spin.View()
	} else if !msg.IsStreaming && msg.Role == model.RoleAssistant && m.markdown {
		content = m.renderMarkdown(content)
	}

	out := label.Render(name+":") + "\n" + m.theme.MessageBody.Render(content)
	if m.showStat {
		if stats := msg.FormatStats(); stats != "" {
			out += "\n" + m.theme.StatsLine.Render(stats)
		}
	}
	return out
}

// renderMarkdown renders finished assistant output through glamour,
// falling back to the raw text on any rendering failure.
func (m Model) renderMarkdown(content string) string {
	if m.mdRenderer == nil {
		return content
	}
	rendered, err := m.mdRenderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(rendered, "\n")
}

// rebuildRenderer recreates the glamour renderer for the current width.
// Renderers are word-wrap-bound, so a resize invalidates the old one.
func (m *Model) rebuildRenderer() {
	if !m.markdown {
		return
	}
	width := m.width - 4
	if width < 20 {
		width = 20
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		m.mdRenderer = nil
		return
	}
	m.mdRenderer = renderer
}
