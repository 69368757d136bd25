// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package workflow

import (
	"github.com/Qredence/qlaw-cli/internal/backend"
)

// =============================================================================
// MODES AND TURN CONTEXT
// =============================================================================

// Mode selects how a user turn is sent.
type Mode int

const (
	// ModeStandard sends single-turn completions carrying the flattened
	// local transcript.
	ModeStandard Mode = iota

	// ModeWorkflow addresses a remote workflow by entity id; the remote
	// owns conversation state.
	ModeWorkflow
)

// TurnContext is everything the selector consults for one user turn. All
// fields are caller-supplied; this layer reads no ambient state.
type TurnContext struct {
	Mode Mode

	// EntityID identifies the agent or workflow on the bridge. Used as
	// the model field on start requests and as the path segment on
	// resumes. Empty EntityID downgrades workflow mode to standard.
	EntityID string

	// Transcript is the flattened conversation so far, used for
	// standard single-turn requests.
	Transcript string

	// UserText is the new user input alone, used for workflow starts
	// and as the answer on resumes.
	UserText string

	// Pending is the active human-input request, nil if none.
	Pending *PendingRequest
}

// =============================================================================
// REQUEST BODIES
// =============================================================================

// RunBody is the OpenAI-Responses-shaped body for completions and workflow
// starts.
type RunBody struct {
	Model  string `json:"model"`
	Input  string `json:"input"`
	Stream bool   `json:"stream"`
}

// ResumeBody continues a paused workflow: answers keyed by request id.
type ResumeBody struct {
	Responses map[string]string `json:"responses"`
}

const responsesPath = "/v1/responses"

// =============================================================================
// SELECTOR
// =============================================================================

// BuildRequest chooses the request shape for one user turn:
//
//   - an active pending request always wins and builds a resume,
//   - workflow mode with a configured entity starts a run with just the
//     new user text,
//   - everything else is a single-turn completion carrying the flattened
//     transcript.
//
// The caller consumes the pending request from its Tracker after the
// request has been issued, not before.
func BuildRequest(turn TurnContext) backend.Request {
	if turn.Pending != nil && turn.Pending.RequestID != "" {
		return backend.Request{
			Path: "/v1/workflows/" + turn.EntityID + "/send_responses",
			Body: ResumeBody{
				Responses: map[string]string{turn.Pending.RequestID: turn.UserText},
			},
		}
	}

	if turn.Mode == ModeWorkflow && turn.EntityID != "" {
		return backend.Request{
			Path: responsesPath,
			Body: RunBody{Model: turn.EntityID, Input: turn.UserText, Stream: true},
		}
	}

	return backend.Request{
		Path: responsesPath,
		Body: RunBody{Model: turn.EntityID, Input: turn.Transcript, Stream: true},
	}
}
