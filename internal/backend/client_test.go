// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// recorder collects callback invocations for assertions.
type recorder struct {
	mu     sync.Mutex
	deltas []string
	errors []string
	traces []map[string]any
	done   int
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnDelta: func(t string) { r.mu.Lock(); r.deltas = append(r.deltas, t); r.mu.Unlock() },
		OnError: func(m string) { r.mu.Lock(); r.errors = append(r.errors, m); r.mu.Unlock() },
		OnTrace: func(raw map[string]any) { r.mu.Lock(); r.traces = append(r.traces, raw); r.mu.Unlock() },
		OnDone:  func() { r.mu.Lock(); r.done++; r.mu.Unlock() },
	}
}

func sseServer(t *testing.T, frames ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, frame := range frames {
			fmt.Fprint(w, frame)
			flusher.Flush()
		}
	}))
}

func TestRunStreamDeltas(t *testing.T) {
	server := sseServer(t,
		"event: response.output_text.delta\ndata: {\"delta\":\"Hello\"}\n\n",
		"data: {\"delta\":\" World\"}\n\n",
		"data: [DONE]\n\n",
	)
	defer server.Close()

	rec := &recorder{}
	client := NewClient(server.URL, "")
	client.RunStream(context.Background(), Request{Path: "/v1/responses", Body: map[string]any{}}, rec.callbacks())

	if got := strings.Join(rec.deltas, ""); got != "Hello World" {
		t.Errorf("deltas = %q", got)
	}
	if len(rec.errors) != 0 {
		t.Errorf("unexpected errors: %v", rec.errors)
	}
	if rec.done != 1 {
		t.Errorf("OnDone fired %d times", rec.done)
	}
}

func TestRunStreamHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "server exploded")
	}))
	defer server.Close()

	rec := &recorder{}
	NewClient(server.URL, "").RunStream(context.Background(), Request{Path: "/v1/responses"}, rec.callbacks())

	if len(rec.errors) != 1 {
		t.Fatalf("errors = %v", rec.errors)
	}
	if !strings.Contains(rec.errors[0], "500") || !strings.Contains(rec.errors[0], "server exploded") {
		t.Errorf("error message = %q", rec.errors[0])
	}
	if len(rec.deltas) != 0 {
		t.Errorf("deltas on HTTP failure: %v", rec.deltas)
	}
	if rec.done != 1 {
		t.Errorf("OnDone fired %d times", rec.done)
	}
}

func TestRunStreamRemoteErrorContinuesDrain(t *testing.T) {
	server := sseServer(t,
		"data: {\"delta\":\"before\"}\n\n",
		"event: response.error\ndata: {\"error\":{\"message\":\"hiccup\"}}\n\n",
		"data: {\"delta\":\"after\"}\n\n",
	)
	defer server.Close()

	rec := &recorder{}
	NewClient(server.URL, "").RunStream(context.Background(), Request{Path: "/v1/responses"}, rec.callbacks())

	if got := strings.Join(rec.deltas, ""); got != "beforeafter" {
		t.Errorf("deltas = %q", got)
	}
	if len(rec.errors) != 1 || rec.errors[0] != "hiccup" {
		t.Errorf("errors = %v", rec.errors)
	}
	if rec.done != 1 {
		t.Errorf("OnDone fired %d times", rec.done)
	}
}

func TestRunStreamTracePayload(t *testing.T) {
	trace := `{"type":"response.trace.complete","data":{"trace_type":"workflow_info","event_type":"RequestInfoEvent","data":{"request_info":{"request_id":"req_abc"}}}}`
	server := sseServer(t, "event: response.trace.complete\ndata: "+trace+"\n\n")
	defer server.Close()

	rec := &recorder{}
	NewClient(server.URL, "").RunStream(context.Background(), Request{Path: "/v1/responses"}, rec.callbacks())

	if len(rec.traces) != 1 {
		t.Fatalf("traces = %d", len(rec.traces))
	}
	if rec.done != 1 {
		t.Errorf("OnDone fired %d times", rec.done)
	}
}

// A server that omits the final blank line must not lose the last frame.
func TestRunStreamTruncatedTail(t *testing.T) {
	server := sseServer(t, "data: {\"delta\":\"tail\"}")
	defer server.Close()

	rec := &recorder{}
	NewClient(server.URL, "").RunStream(context.Background(), Request{Path: "/v1/responses"}, rec.callbacks())

	if got := strings.Join(rec.deltas, ""); got != "tail" {
		t.Errorf("deltas = %q", got)
	}
	if rec.done != 1 {
		t.Errorf("OnDone fired %d times", rec.done)
	}
}

func TestRunStreamEmptyBody(t *testing.T) {
	server := sseServer(t)
	defer server.Close()

	rec := &recorder{}
	NewClient(server.URL, "").RunStream(context.Background(), Request{Path: "/v1/responses"}, rec.callbacks())

	if len(rec.deltas)+len(rec.errors) != 0 {
		t.Errorf("callbacks on empty body: %v %v", rec.deltas, rec.errors)
	}
	if rec.done != 1 {
		t.Errorf("OnDone fired %d times", rec.done)
	}
}

func TestRunStreamCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"delta\":\"partial\"}\n\n")
		w.(http.Flusher).Flush()
		<-release
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	NewClient(server.URL, "").RunStream(ctx, Request{Path: "/v1/responses"}, rec.callbacks())

	if len(rec.deltas) == 0 || rec.deltas[len(rec.deltas)-1] != CancelledMarker {
		t.Errorf("deltas = %v, want trailing %q", rec.deltas, CancelledMarker)
	}
	if rec.done != 1 {
		t.Errorf("OnDone fired %d times", rec.done)
	}
}

func TestRunStreamConnectRefused(t *testing.T) {
	rec := &recorder{}
	NewClient("http://127.0.0.1:1", "").RunStream(context.Background(), Request{Path: "/v1/responses"}, rec.callbacks())

	if len(rec.errors) != 1 {
		t.Errorf("errors = %v", rec.errors)
	}
	if rec.done != 1 {
		t.Errorf("OnDone fired %d times", rec.done)
	}
}

func TestRunStreamNilCallbacks(t *testing.T) {
	server := sseServer(t, "data: {\"delta\":\"x\"}\n\n")
	defer server.Close()

	// Must not panic with an entirely empty callback set.
	NewClient(server.URL, "").RunStream(context.Background(), Request{Path: "/v1/responses"}, Callbacks{})
}

func TestRunStreamChan(t *testing.T) {
	server := sseServer(t,
		"data: {\"delta\":\"a\"}\n\n",
		"data: {\"delta\":\"b\"}\n\n",
	)
	defer server.Close()

	var texts []string
	sawDone := false
	for chunk := range NewClient(server.URL, "").RunStreamChan(context.Background(), Request{Path: "/v1/responses"}) {
		if chunk.Done {
			sawDone = true
			continue
		}
		texts = append(texts, chunk.Text)
	}
	if strings.Join(texts, "") != "ab" {
		t.Errorf("texts = %v", texts)
	}
	if !sawDone {
		t.Error("no Done chunk")
	}
}

// =============================================================================
// AUTH HEADER SELECTION
// =============================================================================

func TestAuthHeaderSelection(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		wantAzure  bool
	}{
		{"azure host", "https://myres.openai.azure.com/deployments/x", true},
		{"azure root", "https://azure.com/x", true},
		{"openai path segment", "https://proxy.internal/openai/v1/responses", true},
		{"plain bridge", "http://localhost:8081/v1/responses", false},
		{"openrouter style", "https://openrouter.ai/api/v1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isAzureStyle(tt.target); got != tt.wantAzure {
				t.Errorf("isAzureStyle(%q) = %v, want %v", tt.target, got, tt.wantAzure)
			}
		})
	}
}

func TestAuthHeaderOnRequest(t *testing.T) {
	var gotAuth, gotAPIKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAPIKey = r.Header.Get("api-key")
	}))
	defer server.Close()

	rec := &recorder{}
	NewClient(server.URL, "sk-test").RunStream(context.Background(), Request{Path: "/v1/responses"}, rec.callbacks())
	if gotAuth != "Bearer sk-test" || gotAPIKey != "" {
		t.Errorf("headers = %q / %q", gotAuth, gotAPIKey)
	}

	// No key, no header at all.
	gotAuth, gotAPIKey = "", ""
	NewClient(server.URL, "").RunStream(context.Background(), Request{Path: "/v1/responses"}, rec.callbacks())
	if gotAuth != "" || gotAPIKey != "" {
		t.Errorf("headers without key = %q / %q", gotAuth, gotAPIKey)
	}
}

func TestResolveURL(t *testing.T) {
	c := NewClient("http://bridge:8081/", "")
	got, err := c.resolveURL("v1/responses")
	if err != nil || got != "http://bridge:8081/v1/responses" {
		t.Errorf("resolveURL = %q, %v", got, err)
	}

	got, err = c.resolveURL("https://other.example/full")
	if err != nil || got != "https://other.example/full" {
		t.Errorf("absolute passthrough = %q, %v", got, err)
	}

	if _, err = NewClient("", "").resolveURL("/v1/responses"); err != ErrNoBaseURL {
		t.Errorf("err = %v, want ErrNoBaseURL", err)
	}
}

func TestFrameLogRecordsFrames(t *testing.T) {
	server := sseServer(t,
		"event: response.output_text.delta\ndata: {\"delta\":\"hi\"}\n\n",
		"data: [DONE]\n\n",
	)
	defer server.Close()

	logPath := filepath.Join(t.TempDir(), "frames.log")
	rec := &recorder{}
	client := NewClient(server.URL, "").WithFrameLog(logPath)
	client.RunStream(context.Background(), Request{Path: "/v1/responses"}, rec.callbacks())
	client.frameLog.Close()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("frame log not written: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "event: response.output_text.delta") {
		t.Errorf("missing event line in %q", content)
	}
	if !strings.Contains(content, `data: {"delta":"hi"}`) {
		t.Errorf("missing data line in %q", content)
	}
}
