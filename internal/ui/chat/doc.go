// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the interactive chat view for the TUI.
//
// The model drives one session against the bridge: it submits user turns,
// renders streamed tokens at a capped frame rate, surfaces remote errors
// inline, and pauses for human input when a workflow run requests it.
//
// Streaming happens on a goroutine; tokens land in a StreamingBuffer and
// are folded into the transcript on tick messages so rendering stays at
// ~30fps however fast the stream runs. The Bubble Tea update loop is the
// only writer of model state.
package chat
