// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package workflow

import (
	"strings"
	"sync"
)

// =============================================================================
// PENDING REQUEST
// =============================================================================

// Turn is one prior conversation entry attached to a human-input request.
type Turn struct {
	Role       string
	AuthorName string
	Text       string
}

// PendingRequest is a workflow pause point awaiting a human answer.
type PendingRequest struct {
	RequestID        string
	SourceExecutorID string
	Prompt           string
	Conversation     []Turn
}

// displayTurnLimit caps how many recent turns are shown with a prompt.
const displayTurnLimit = 5

// =============================================================================
// EXTRACTION
// =============================================================================

// ExtractPendingRequest inspects a raw trace-completion payload and returns
// the pending request it describes, or nil when the payload is not a
// human-input pause. Malformed shapes never error; extraction either
// succeeds or returns nil.
//
// Two upstream shapes are accepted: the record nested at
// data.data.request_info, and a flatter variant with request_info at the
// top level.
func ExtractPendingRequest(raw map[string]any) *PendingRequest {
	data := childObject(raw, "data")
	if stringField(data, "trace_type") != "workflow_info" {
		return nil
	}
	if stringField(data, "event_type") != "RequestInfoEvent" {
		return nil
	}

	record := childObject(childObject(data, "data"), "request_info")
	if record == nil {
		record = childObject(raw, "request_info")
	}
	requestID := stringField(record, "request_id")
	if requestID == "" {
		return nil
	}

	inner := childObject(record, "data")
	return &PendingRequest{
		RequestID:        requestID,
		SourceExecutorID: stringField(record, "source_executor_id"),
		Prompt:           stringField(inner, "prompt"),
		Conversation:     extractTurns(inner),
	}
}

// extractTurns pulls well-formed conversation entries; anything without
// string role and text is dropped.
func extractTurns(inner map[string]any) []Turn {
	list, _ := inner["conversation"].([]any)
	turns := make([]Turn, 0, len(list))
	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		role, okRole := entry["role"].(string)
		text, okText := entry["text"].(string)
		if !okRole || !okText {
			continue
		}
		author, _ := entry["author_name"].(string)
		turns = append(turns, Turn{Role: role, AuthorName: author, Text: text})
	}
	return turns
}

// FormatForDisplay renders a trace payload's pending request for inline
// display in the transcript. Returns "" when the payload is not a pending
// request or its prompt is empty. The result starts with a blank line so it
// separates visually from streamed text, and ends with up to the last five
// conversation turns.
func FormatForDisplay(raw map[string]any) string {
	pending := ExtractPendingRequest(raw)
	if pending == nil || pending.Prompt == "" {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n\n")
	b.WriteString(pending.Prompt)

	if len(pending.Conversation) > 0 {
		b.WriteString("\n\nRecent messages:")
		turns := pending.Conversation
		if len(turns) > displayTurnLimit {
			turns = turns[len(turns)-displayTurnLimit:]
		}
		for _, turn := range turns {
			name := turn.AuthorName
			if name == "" {
				name = turn.Role
			}
			b.WriteString("\n- ")
			b.WriteString(name)
			b.WriteString(": ")
			b.WriteString(turn.Text)
		}
	}
	return b.String()
}

// =============================================================================
// TRACKER
// =============================================================================

// Tracker holds the single active pending request for a session. Stream
// goroutines set it while the UI reads and consumes it, hence the lock.
// Last one wins when the remote emits several pauses before an answer.
type Tracker struct {
	mu      sync.Mutex
	pending *PendingRequest
}

// Observe extracts a pending request from a trace payload and records it.
// Returns the recorded request, or nil if the payload was not a pause.
func (t *Tracker) Observe(raw map[string]any) *PendingRequest {
	pending := ExtractPendingRequest(raw)
	if pending == nil {
		return nil
	}
	t.mu.Lock()
	t.pending = pending
	t.mu.Unlock()
	return pending
}

// Set records a pending request directly.
func (t *Tracker) Set(p *PendingRequest) {
	t.mu.Lock()
	t.pending = p
	t.mu.Unlock()
}

// Pending returns the active request without consuming it.
func (t *Tracker) Pending() *PendingRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// Consume returns and clears the active request. Call after the resume
// request has been issued; the answer is spent whatever the new stream
// does, and that stream may set a fresh one.
func (t *Tracker) Consume() *PendingRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	pending := t.pending
	t.pending = nil
	return pending
}

// =============================================================================
// PAYLOAD ACCESSORS
// =============================================================================

func stringField(p map[string]any, key string) string {
	if p == nil {
		return ""
	}
	s, _ := p[key].(string)
	return s
}

func childObject(p map[string]any, key string) map[string]any {
	if p == nil {
		return nil
	}
	child, _ := p[key].(map[string]any)
	return child
}
