// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend provides the streaming HTTP client for the agent bridge.
//
// The bridge exposes OpenAI-Responses-shaped endpoints that answer with
// text/event-stream bodies. This package owns the session lifecycle: it
// issues the request, pumps the body through the wire decoder/classifier,
// and reports everything through a small callback surface.
//
// # Callback contract
//
// Every stream, whatever happens to it, ends with exactly one OnDone call.
// Failures never escape RunStream as panics or errors; they arrive as
// OnError invocations (possibly several per stream, since remote-signaled
// errors do not stop the drain) before the final OnDone.
//
// # Key Types
//
//   - Client: pooled HTTP client with auth-header selection and optional
//     client-side rate limiting
//   - Request: one prepared POST (path + JSON body)
//   - Callbacks: the delta/error/trace/done surface consumed by the UI
//
// A channel variant, RunStreamChan, adapts the same lifecycle to a
// StreamChunk channel for consumers that prefer select loops.
package backend
