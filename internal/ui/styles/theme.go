// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds the styled components for the application. It detects the
// terminal's color capability and adjusts accordingly.
type Theme struct {
	IsDark       bool
	ColorProfile termenv.Profile

	Width  int
	Height int

	// ==========================================================================
	// MESSAGE STYLES
	// ==========================================================================

	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	SystemLabel    lipgloss.Style
	MessageBody    lipgloss.Style
	ErrorText      lipgloss.Style
	StatsLine      lipgloss.Style

	// ==========================================================================
	// HUMAN-INPUT PROMPT STYLES
	// ==========================================================================

	PendingPrompt lipgloss.Style
	PendingBox    lipgloss.Style

	// ==========================================================================
	// CHROME
	// ==========================================================================

	Header    lipgloss.Style
	StatusBar lipgloss.Style
	InputBox  lipgloss.Style
	Spinner   lipgloss.Style
	Help      lipgloss.Style
}

// NewTheme builds a theme for the current terminal. mode is "dark",
// "light", or "auto".
func NewTheme(mode string) *Theme {
	t := &Theme{
		ColorProfile: termenv.ColorProfile(),
	}
	switch mode {
	case "light":
		t.IsDark = false
	case "dark":
		t.IsDark = true
	default:
		t.IsDark = termenv.HasDarkBackground()
	}
	lipgloss.SetHasDarkBackground(t.IsDark)
	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	t.UserLabel = lipgloss.NewStyle().Foreground(Cyan).Bold(true)
	t.AssistantLabel = lipgloss.NewStyle().Foreground(Purple).Bold(true)
	t.SystemLabel = lipgloss.NewStyle().Foreground(TextMuted).Bold(true)
	t.MessageBody = lipgloss.NewStyle().Foreground(TextPrimary)
	t.ErrorText = lipgloss.NewStyle().Foreground(Rose)
	t.StatsLine = lipgloss.NewStyle().Foreground(TextMuted).Italic(true)

	t.PendingPrompt = lipgloss.NewStyle().Foreground(Amber).Bold(true)
	t.PendingBox = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Amber).
		Padding(0, 1)

	t.Header = lipgloss.NewStyle().Foreground(Purple).Bold(true).Padding(0, 1)
	t.StatusBar = lipgloss.NewStyle().Foreground(TextSecondary).Background(Overlay).Padding(0, 1)
	t.InputBox = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Overlay).
		Padding(0, 1)
	t.Spinner = lipgloss.NewStyle().Foreground(Emerald)
	t.Help = lipgloss.NewStyle().Foreground(TextMuted)
}

// SetSize records the current terminal dimensions.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}
