// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package wire

import (
	"bytes"
	"strings"
)

// =============================================================================
// WIRE EVENT
// =============================================================================

// WireEvent is a single decoded SSE frame before classification.
type WireEvent struct {
	// Event is the frame's "event:" name, empty if the server omitted it.
	Event string

	// Data is the raw, unparsed payload accumulated from "data:" lines.
	Data string
}

// DoneSentinel is the data literal the bridge sends to mark logical end of
// stream. It is filtered out by the decoder and never reaches Classify.
const DoneSentinel = "[DONE]"

// =============================================================================
// DECODER
// =============================================================================

// Decoder turns an arbitrarily chunked byte stream into WireEvents. Chunks
// may split lines, frames, or multi-byte characters anywhere; the decoder
// buffers the incomplete tail internally. The zero value is ready to use.
type Decoder struct {
	buf   []byte // incomplete trailing line, kept across Feed calls
	event string // pending "event:" name for the frame in progress
	data  strings.Builder
}

// NewDecoder returns a decoder with empty state.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed consumes the next chunk and returns the frames it completed, in wire
// order. A frame is emitted only when a blank line terminates it and at
// least one "data:" line was accumulated.
func (d *Decoder) Feed(chunk []byte) []WireEvent {
	d.buf = append(d.buf, chunk...)

	var events []WireEvent
	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			break // incomplete line stays buffered
		}
		line := d.buf[:idx]
		d.buf = d.buf[idx+1:]
		if ev := d.consumeLine(strings.TrimSuffix(string(line), "\r")); ev != nil {
			events = append(events, *ev)
		}
	}
	return events
}

// Flush emits the unterminated trailing frame, if any. Call once at end of
// stream so data arriving right before EOF without a closing blank line is
// not dropped. Resets the decoder.
func (d *Decoder) Flush() *WireEvent {
	// An incomplete final line still counts toward the trailing frame.
	if len(d.buf) > 0 {
		line := strings.TrimSuffix(string(d.buf), "\r")
		d.buf = nil
		if ev := d.consumeLine(line); ev != nil {
			// The buffered tail happened to be a blank line boundary.
			d.reset()
			return ev
		}
	}
	if d.data.Len() == 0 {
		d.reset()
		return nil
	}
	ev := &WireEvent{Event: d.event, Data: d.data.String()}
	d.reset()
	return ev
}

// consumeLine routes one complete line. Returns a frame when the line is a
// terminating blank and data was accumulated.
func (d *Decoder) consumeLine(line string) *WireEvent {
	switch {
	case strings.TrimSpace(line) == "":
		if d.data.Len() == 0 {
			d.event = ""
			return nil
		}
		ev := &WireEvent{Event: d.event, Data: d.data.String()}
		d.event = ""
		d.data.Reset()
		return ev

	case strings.HasPrefix(line, "event:"):
		d.event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))

	case strings.HasPrefix(line, "data:"):
		body := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if body == DoneSentinel {
			// Logical end marker. Reset the pending name so a stale
			// "event:" line cannot leak onto a later frame; end of
			// stream itself is detected by the reader, not here.
			d.event = ""
			return nil
		}
		d.data.WriteString(body)

	default:
		// Comments (":keep-alive"), "id:", "retry:" and anything else
		// the server invents are ignored.
	}
	return nil
}

func (d *Decoder) reset() {
	d.buf = nil
	d.event = ""
	d.data.Reset()
}
