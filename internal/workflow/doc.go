// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package workflow handles multi-agent workflow runs and their
// human-in-the-loop pauses.
//
// A workflow run streams like any other response until the remote pauses
// and asks the human for input. That pause arrives as a trace-completion
// payload with a nested RequestInfoEvent shape; ExtractPendingRequest
// recognizes it, Tracker holds the single active request, and BuildRequest
// chooses between starting a run, resuming one, and plain single-turn
// completion.
//
// Only one pending request is tracked at a time: if the remote emits
// several before the user answers, the last one wins. The bridge owns
// workflow conversation state, so a resume sends only the answer keyed by
// request id, never the transcript.
package workflow
