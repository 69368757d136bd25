// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat sessions and
// messages.
//
// A Session is the local transcript: what the user typed, what streamed
// back, and per-message timing statistics. In workflow mode the remote owns
// the authoritative conversation state; the Session is still kept for
// display, history persistence, and the flattened prompt used by
// single-turn requests.
package model
