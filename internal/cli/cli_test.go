// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Qredence/qlaw-cli/internal/backend"
	"github.com/Qredence/qlaw-cli/internal/config"
	"github.com/Qredence/qlaw-cli/internal/model"
	"github.com/Qredence/qlaw-cli/internal/workflow"
)

// bridgeRecorder captures the request each streaming command sends and
// answers with a fixed SSE response.
type bridgeRecorder struct {
	mu   sync.Mutex
	path string
	body map[string]any
}

func (br *bridgeRecorder) server(t *testing.T, frames ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		br.mu.Lock()
		br.path = r.URL.Path
		br.body = body
		br.mu.Unlock()

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, frame := range frames {
			fmt.Fprint(w, frame)
			flusher.Flush()
		}
	}))
}

func (br *bridgeRecorder) input() string {
	br.mu.Lock()
	defer br.mu.Unlock()
	s, _ := br.body["input"].(string)
	return s
}

func testConfig(baseURL string) *config.Config {
	cfg := config.Default()
	cfg.Backend.BaseURL = baseURL
	cfg.UI.Markdown = false
	cfg.History.Enabled = false
	return cfg
}

func TestRunAskSendsQuestion(t *testing.T) {
	br := &bridgeRecorder{}
	server := br.server(t,
		"data: {\"delta\":\"Paris\"}\n\n",
		"data: [DONE]\n\n",
	)
	defer server.Close()

	cfg := testConfig(server.URL)
	args := NewArgParser([]string{"What", "is", "the", "capital", "of", "France?"})
	if err := RunAsk(cfg, args); err != nil {
		t.Fatalf("RunAsk() error = %v", err)
	}

	if br.path != "/v1/responses" {
		t.Errorf("path = %q", br.path)
	}
	if got := br.input(); !strings.Contains(got, "What is the capital of France?") {
		t.Errorf("request input = %q, question missing", got)
	}
}

func TestRunAskWorkflowMode(t *testing.T) {
	br := &bridgeRecorder{}
	server := br.server(t,
		"data: {\"delta\":\"done\"}\n\n",
		"data: [DONE]\n\n",
	)
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Backend.Mode = config.ModeWorkflow
	cfg.Backend.Entity = "triage-workflow"
	if err := RunAsk(cfg, NewArgParser([]string{"Classify", "this"})); err != nil {
		t.Fatalf("RunAsk() error = %v", err)
	}

	br.mu.Lock()
	gotModel, _ := br.body["model"].(string)
	br.mu.Unlock()
	if gotModel != "triage-workflow" {
		t.Errorf("model = %q", gotModel)
	}
	if got := br.input(); got != "Classify this" {
		t.Errorf("request input = %q", got)
	}
}

func TestRunAskNoQuestion(t *testing.T) {
	cfg := testConfig("http://localhost:1")
	if err := RunAsk(cfg, NewArgParser(nil)); err == nil {
		t.Fatal("expected error for empty question")
	}
}

// testReplSession builds a ReplSession without liner, which would grab
// the test terminal.
func testReplSession(cfg *config.Config) *ReplSession {
	client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.APIKey)
	mode := workflow.ModeStandard
	if cfg.Backend.Mode == config.ModeWorkflow {
		mode = workflow.ModeWorkflow
	}
	return &ReplSession{
		Config:    cfg,
		Client:    client,
		Tracker:   &workflow.Tracker{},
		Session:   model.NewSession(cfg.Backend.Entity, cfg.Backend.Mode),
		Mode:      mode,
		Entity:    cfg.Backend.Entity,
		Quiet:     true,
		StartTime: time.Now(),
	}
}

func TestProcessTurnSendsTranscript(t *testing.T) {
	br := &bridgeRecorder{}
	server := br.server(t,
		"data: {\"delta\":\"hello back\"}\n\n",
		"data: [DONE]\n\n",
	)
	defer server.Close()

	session := testReplSession(testConfig(server.URL))
	session.processTurn("hello there")

	if got := br.input(); !strings.Contains(got, "hello there") {
		t.Errorf("request input = %q, user turn missing", got)
	}
	last := session.Session.LastMessage()
	if last == nil || last.Role != model.RoleAssistant {
		t.Fatalf("last message = %+v", last)
	}
	if last.GetDisplayContent() != "hello back" {
		t.Errorf("assistant content = %q", last.GetDisplayContent())
	}
}

func TestProcessTurnResumesPendingWorkflow(t *testing.T) {
	br := &bridgeRecorder{}
	server := br.server(t,
		"data: {\"delta\":\"resumed\"}\n\n",
		"data: [DONE]\n\n",
	)
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Backend.Mode = config.ModeWorkflow
	cfg.Backend.Entity = "triage-workflow"
	session := testReplSession(cfg)
	session.Tracker.Set(&workflow.PendingRequest{RequestID: "req-42", Prompt: "Approve?"})

	session.processTurn("yes, approve")

	if br.path != "/v1/workflows/triage-workflow/send_responses" {
		t.Errorf("path = %q", br.path)
	}
	br.mu.Lock()
	responses, _ := br.body["responses"].(map[string]any)
	br.mu.Unlock()
	if got, _ := responses["req-42"].(string); got != "yes, approve" {
		t.Errorf("responses[req-42] = %q", got)
	}
	if session.Tracker.Pending() != nil {
		t.Error("pending request not consumed after resume")
	}
}
