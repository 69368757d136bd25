// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package wire

import (
	"encoding/json"
)

// =============================================================================
// CLASSIFIED EVENTS
// =============================================================================

// Event is a classified wire frame. Exactly one of the concrete types below
// is returned by Classify; a nil Event means the frame was noise (malformed
// JSON, keep-alive) and must be skipped.
type Event interface {
	isEvent()
}

// DeltaEvent carries an incremental piece of assistant output text. Text may
// be empty; empty deltas are dropped by the caller, not reported as errors.
type DeltaEvent struct {
	Text string
}

// ErrorEvent carries a remote-signaled error. The stream is still drained
// after one of these arrives.
type ErrorEvent struct {
	Message string
}

// TraceCompleteEvent carries a workflow trace payload. Human-in-the-loop
// pause points are nested inside Raw; see workflow.ExtractPendingRequest.
type TraceCompleteEvent struct {
	Raw map[string]any
}

// CompletionEvent marks the response as finished on the remote side.
type CompletionEvent struct {
	Raw map[string]any
}

// UnclassifiedEvent is a parseable payload no rule matched. No callback
// fires for it; kept for diagnostics.
type UnclassifiedEvent struct {
	Raw map[string]any
}

func (*DeltaEvent) isEvent()         {}
func (*ErrorEvent) isEvent()         {}
func (*TraceCompleteEvent) isEvent() {}
func (*CompletionEvent) isEvent()    {}
func (*UnclassifiedEvent) isEvent()  {}

// Wire event names the bridge is known to emit. Matching is exact and
// case-sensitive.
const (
	EventOutputTextDelta = "response.output_text.delta"
	EventMessageDelta    = "message.delta"
	EventResponseDelta   = "response.delta"
	EventResponseError   = "response.error"
	EventTraceComplete   = "response.trace.complete"
	EventCompleted       = "response.completed"
)

const unknownErrorMessage = "Unknown error"

// =============================================================================
// CLASSIFIER
// =============================================================================

// classifyRule is one step of the precedence chain. First match wins.
type classifyRule struct {
	match   func(eventName string, payload map[string]any) bool
	extract func(eventName string, payload map[string]any) Event
}

// The order of this table is load-bearing: a trace payload that happens to
// also contain a delta-shaped field must classify as a trace, and a remote
// error must win over delta extraction.
var classifyRules = []classifyRule{
	{
		// 1. Trace completion, by event name or payload type.
		match: func(name string, p map[string]any) bool {
			return name == EventTraceComplete || stringField(p, "type") == EventTraceComplete
		},
		extract: func(_ string, p map[string]any) Event {
			return &TraceCompleteEvent{Raw: p}
		},
	},
	{
		// 2. Remote error signaled via event name.
		match: func(name string, _ map[string]any) bool {
			return name == EventResponseError
		},
		extract: func(_ string, p map[string]any) Event {
			msg := stringField(childObject(p, "error"), "message")
			if msg == "" {
				msg = stringField(p, "message")
			}
			if msg == "" {
				msg = unknownErrorMessage
			}
			return &ErrorEvent{Message: msg}
		},
	},
	{
		// 3. Delta signaled via event name.
		match: func(name string, _ map[string]any) bool {
			return name == EventOutputTextDelta || name == EventMessageDelta || name == EventResponseDelta
		},
		extract: func(_ string, p map[string]any) Event {
			text := firstString(p, "delta", "text", "content")
			if text == "" {
				text = stringField(childObject(p, "output_text"), "delta")
			}
			return &DeltaEvent{Text: text}
		},
	},
	{
		// 4. Completion marker.
		match: func(name string, _ map[string]any) bool {
			return name == EventCompleted
		},
		extract: func(_ string, p map[string]any) Event {
			return &CompletionEvent{Raw: p}
		},
	},
	{
		// 5. Error signaled via payload type only.
		match: func(_ string, p map[string]any) bool {
			return stringField(p, "type") == "error"
		},
		extract: func(_ string, p map[string]any) Event {
			msg := stringField(p, "message")
			if msg == "" {
				msg = unknownErrorMessage
			}
			return &ErrorEvent{Message: msg}
		},
	},
	{
		// 6. Delta signaled via payload type only.
		match: func(_ string, p map[string]any) bool {
			if stringField(p, "type") != EventOutputTextDelta {
				return false
			}
			_, ok := p["delta"].(string)
			return ok
		},
		extract: func(_ string, p map[string]any) Event {
			return &DeltaEvent{Text: p["delta"].(string)}
		},
	},
}

// Classify maps a decoded frame to an Event by the precedence rules above,
// falling back to bare-field delta extraction and finally Unclassified.
// Returns nil when Data is not a JSON object; malformed frames are noise,
// not errors.
func Classify(ev WireEvent) Event {
	var payload map[string]any
	if err := json.Unmarshal([]byte(ev.Data), &payload); err != nil {
		return nil
	}

	for _, rule := range classifyRules {
		if rule.match(ev.Event, payload) {
			return rule.extract(ev.Event, payload)
		}
	}

	// 7. Fallback: some servers send untyped frames with only a text field.
	if text := firstString(payload, "delta", "text", "content"); text != "" {
		return &DeltaEvent{Text: text}
	}
	return &UnclassifiedEvent{Raw: payload}
}

// =============================================================================
// PAYLOAD ACCESSORS
// =============================================================================

// stringField returns the string value of a top-level key, or "" if the key
// is absent or not a string.
func stringField(p map[string]any, key string) string {
	if p == nil {
		return ""
	}
	s, _ := p[key].(string)
	return s
}

// childObject returns a nested object field, or nil if absent or not an
// object.
func childObject(p map[string]any, key string) map[string]any {
	if p == nil {
		return nil
	}
	child, _ := p[key].(map[string]any)
	return child
}

// firstString tries keys in order and returns the first non-empty string
// value found.
func firstString(p map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := stringField(p, key); s != "" {
			return s
		}
	}
	return ""
}
