// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"
)

// =============================================================================
// STREAMING MESSAGES
// =============================================================================

// StreamStartMsg signals that a stream has been opened for a message.
type StreamStartMsg struct {
	MessageID string
	StartTime time.Time
}

// StreamTickMsg drives buffer flushes while a stream is active.
type StreamTickMsg struct {
	Time time.Time
}

// StreamFirstTokenMsg records time-to-first-token for the stats line.
type StreamFirstTokenMsg struct {
	MessageID string
}

// StreamErrorMsg carries a transport or remote error. The stream may still
// be running; errors render inline and do not end the turn by themselves.
type StreamErrorMsg struct {
	MessageID string
	Message   string
}

// StreamTraceMsg carries a raw workflow trace payload.
type StreamTraceMsg struct {
	MessageID string
	Raw       map[string]any
}

// StreamDoneMsg signals the stream has fully settled. Exactly one arrives
// per started stream.
type StreamDoneMsg struct {
	MessageID string
}

// =============================================================================
// UI MESSAGES
// =============================================================================

// ConfigReloadedMsg delivers a hot-reloaded configuration.
type ConfigReloadedMsg struct {
	Entity string
	Mode   string
}

// SessionSavedMsg reports the outcome of a background history save.
type SessionSavedMsg struct {
	Err error
}
