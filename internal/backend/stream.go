// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Qredence/qlaw-cli/internal/wire"
)

// =============================================================================
// REQUEST AND CALLBACKS
// =============================================================================

// Request is one prepared streaming POST. Path is joined to the client's
// base URL unless it is already absolute; Body is marshalled to JSON.
type Request struct {
	Path string
	Body any
}

// Callbacks is the consumer surface for one stream. Any field may be nil.
// Invariants: OnDone fires exactly once per RunStream call and is always
// the last invocation; OnError may fire any number of times before it.
type Callbacks struct {
	// OnDelta receives each non-empty text increment.
	OnDelta func(text string)

	// OnError receives transport failures and remote-signaled errors.
	// A remote error does not stop the drain.
	OnError func(message string)

	// OnTrace receives raw trace-completion payloads (workflow progress,
	// human-input requests).
	OnTrace func(raw map[string]any)

	// OnCompleted fires when the remote marks the response finished.
	OnCompleted func()

	// OnDone fires exactly once when the stream is over, whatever the
	// outcome.
	OnDone func()
}

// =============================================================================
// STREAMING SESSION
// =============================================================================

// RunStream issues req and drains the SSE response through cb. It never
// panics and never returns before the stream is fully settled; all failure
// modes surface as OnError followed by the single terminal OnDone. Retry,
// if wanted, is caller policy.
func (c *Client) RunStream(ctx context.Context, req Request, cb Callbacks) {
	done := false
	finish := func() {
		if done {
			return
		}
		done = true
		if cb.OnDone != nil {
			cb.OnDone()
		}
	}
	fail := func(msg string) {
		if cb.OnError != nil {
			cb.OnError(msg)
		}
	}
	defer func() {
		if r := recover(); r != nil {
			fail(fmt.Sprintf("internal error: %v", r))
		}
		finish()
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			c.reportCancelOrError(cb, err)
			return
		}
	}

	target, err := c.resolveURL(req.Path)
	if err != nil {
		fail(err.Error())
		return
	}

	payload, err := json.Marshal(req.Body)
	if err != nil {
		fail(fmt.Sprintf("encode request: %v", err))
		return
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		fail(fmt.Sprintf("build request: %v", err))
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	c.setAuthHeader(httpReq, target)

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		c.reportCancelOrError(cb, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize))
		berr := &BackendError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		fail(berr.Error())
		return
	}

	c.drain(ctx, resp.Body, cb)
}

// drain pumps the response body through the decoder until EOF or
// cancellation, dispatching classified events.
func (c *Client) drain(ctx context.Context, body io.Reader, cb Callbacks) {
	dec := wire.NewDecoder()
	buf := make([]byte, streamReadSize)

	for {
		if ctx.Err() != nil {
			c.reportCancelOrError(cb, ctx.Err())
			return
		}

		n, err := body.Read(buf)
		if n > 0 {
			for _, ev := range dec.Feed(buf[:n]) {
				if c.frameLog != nil {
					c.frameLog.record(ev)
				}
				dispatch(wire.Classify(ev), cb)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if ev := dec.Flush(); ev != nil {
					if c.frameLog != nil {
						c.frameLog.record(*ev)
					}
					dispatch(wire.Classify(*ev), cb)
				}
				return
			}
			c.reportCancelOrError(cb, err)
			return
		}
	}
}

// dispatch routes one classified event to the caller. Empty deltas and
// unclassified payloads are dropped silently.
func dispatch(ev wire.Event, cb Callbacks) {
	switch e := ev.(type) {
	case *wire.DeltaEvent:
		if e.Text != "" && cb.OnDelta != nil {
			cb.OnDelta(e.Text)
		}
	case *wire.ErrorEvent:
		if cb.OnError != nil {
			cb.OnError(e.Message)
		}
	case *wire.TraceCompleteEvent:
		if cb.OnTrace != nil {
			cb.OnTrace(e.Raw)
		}
	case *wire.CompletionEvent:
		if cb.OnCompleted != nil {
			cb.OnCompleted()
		}
	}
}

// reportCancelOrError distinguishes caller-initiated aborts from real
// transport failures. Cancellation shows up in the transcript as a marker,
// not an error.
func (c *Client) reportCancelOrError(cb Callbacks, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if cb.OnDelta != nil {
			cb.OnDelta(CancelledMarker)
		}
		return
	}
	if cb.OnError != nil {
		cb.OnError(err.Error())
	}
}

// =============================================================================
// CHANNEL VARIANT
// =============================================================================

// StreamChunk is one item from RunStreamChan. Exactly one of the fields is
// meaningful per chunk; Done is always the final chunk.
type StreamChunk struct {
	Text  string
	Err   string
	Trace map[string]any
	Done  bool
}

// RunStreamChan adapts RunStream to a channel for select-loop consumers.
// The channel is closed after the Done chunk.
func (c *Client) RunStreamChan(ctx context.Context, req Request) <-chan StreamChunk {
	out := make(chan StreamChunk, 32)
	go func() {
		defer close(out)
		c.RunStream(ctx, req, Callbacks{
			OnDelta: func(text string) { out <- StreamChunk{Text: text} },
			OnError: func(msg string) { out <- StreamChunk{Err: msg} },
			OnTrace: func(raw map[string]any) { out <- StreamChunk{Trace: raw} },
			OnDone:  func() { out <- StreamChunk{Done: true} },
		})
	}()
	return out
}
