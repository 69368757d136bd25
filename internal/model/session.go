// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// SESSION TYPE
// =============================================================================

// Session is one chat transcript against one entity.
type Session struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Entity    string     `json:"entity"`
	Mode      string     `json:"mode"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Messages  []*Message `json:"messages"`
}

// NewSession creates an empty session for the given entity and mode.
func NewSession(entity, mode string) *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		Entity:    entity,
		Mode:      mode,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AddMessage appends a message to the session.
func (s *Session) AddMessage(msg *Message) {
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = time.Now()
	s.updateTitle()
}

// AddUserMessage appends a new user message and returns it.
func (s *Session) AddUserMessage(content string) *Message {
	msg := NewUserMessage(content)
	s.AddMessage(msg)
	return msg
}

// AddAssistantMessage appends a new streaming assistant message and
// returns it.
func (s *Session) AddAssistantMessage() *Message {
	msg := NewAssistantMessage()
	s.AddMessage(msg)
	return msg
}

// AddSystemMessage appends a new system message and returns it.
func (s *Session) AddSystemMessage(content string) *Message {
	msg := NewSystemMessage(content)
	s.AddMessage(msg)
	return msg
}

// LastMessage returns the most recent message, or nil.
func (s *Session) LastMessage() *Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return s.Messages[len(s.Messages)-1]
}

// LastUserMessage returns the most recent user message, or nil.
func (s *Session) LastUserMessage() *Message {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i]
		}
	}
	return nil
}

// AppendToLast appends a streamed token to the last message.
func (s *Session) AppendToLast(token string) {
	if msg := s.LastMessage(); msg != nil {
		msg.AppendToken(token)
		s.UpdatedAt = time.Now()
	}
}

// FinalizeLast completes streaming on the last message.
func (s *Session) FinalizeLast(stats *Statistics) {
	if msg := s.LastMessage(); msg != nil {
		msg.FinalizeStream(stats)
		s.UpdatedAt = time.Now()
	}
}

// MessageCount returns the number of messages.
func (s *Session) MessageCount() int {
	return len(s.Messages)
}

// IsEmpty reports whether the session has no messages.
func (s *Session) IsEmpty() bool {
	return len(s.Messages) == 0
}

// =============================================================================
// DERIVED VIEWS
// =============================================================================

// FlattenPrompt renders the transcript as a single prompt for single-turn
// completion requests: one "Role: text" line per message, ending with the
// latest user input.
func (s *Session) FlattenPrompt() string {
	var b strings.Builder
	for i, msg := range s.Messages {
		if msg.IsEmpty() && msg.Role == RoleAssistant {
			continue
		}
		if i > 0 && b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(msg.Role.DisplayName())
		b.WriteString(": ")
		b.WriteString(msg.GetDisplayContent())
	}
	return b.String()
}

// EstimateTokens sums the rough token estimate across all messages.
func (s *Session) EstimateTokens() int {
	total := 0
	for _, msg := range s.Messages {
		total += msg.EstimateTokens()
	}
	return total
}

// Preview returns the first user message, truncated, for listings.
func (s *Session) Preview() string {
	for _, msg := range s.Messages {
		if msg.Role == RoleUser {
			return msg.Preview(80)
		}
	}
	return ""
}

// updateTitle derives the title from the first user message.
func (s *Session) updateTitle() {
	if s.Title != "" {
		return
	}
	for _, msg := range s.Messages {
		if msg.Role == RoleUser && !msg.IsEmpty() {
			s.Title = msg.Preview(50)
			return
		}
	}
}

// SetTitle sets the session title explicitly.
func (s *Session) SetTitle(title string) {
	s.Title = title
}
