// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package wire decodes and classifies server-sent events from the agent
// bridge.
//
// The bridge speaks an OpenAI-Responses-shaped SSE dialect: frames carry an
// optional "event:" name and one or more "data:" lines holding a JSON
// payload, terminated by a blank line. Servers are inconsistent about
// populating the event name, so classification consults both the name and
// the payload shape.
//
// # Key Types
//
//   - Decoder: incremental byte-to-frame decoder, safe across arbitrary
//     chunk boundaries
//   - WireEvent: a raw frame (event name + unparsed data)
//   - Event: the classified result (DeltaEvent, ErrorEvent,
//     TraceCompleteEvent, CompletionEvent, UnclassifiedEvent)
//
// # Usage
//
//	dec := wire.NewDecoder()
//	for _, ev := range dec.Feed(chunk) {
//	    switch e := wire.Classify(ev).(type) {
//	    case *wire.DeltaEvent:
//	        // append e.Text
//	    }
//	}
//	if ev := dec.Flush(); ev != nil {
//	    // trailing frame before EOF
//	}
package wire
