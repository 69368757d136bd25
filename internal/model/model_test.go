// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"testing"
	"time"
)

func TestMessageStreaming(t *testing.T) {
	msg := NewAssistantMessage()
	if !msg.IsStreaming {
		t.Fatal("new assistant message should be streaming")
	}

	msg.AppendToken("Hello")
	msg.AppendToken(", world")
	if got := msg.GetDisplayContent(); got != "Hello, world" {
		t.Errorf("display content = %q", got)
	}
	if msg.Content != "" {
		t.Errorf("content finalized early: %q", msg.Content)
	}

	stats := NewStatistics()
	stats.RecordFirstToken()
	stats.Finalize(3)
	msg.FinalizeStream(stats)

	if msg.IsStreaming {
		t.Error("still streaming after finalize")
	}
	if msg.Content != "Hello, world" {
		t.Errorf("content = %q", msg.Content)
	}
	if msg.TokenCount != 3 {
		t.Errorf("token count = %d", msg.TokenCount)
	}

	// Tokens after finalize are ignored.
	msg.AppendToken("late")
	if msg.Content != "Hello, world" {
		t.Errorf("content mutated after finalize: %q", msg.Content)
	}
}

func TestMessagePreview(t *testing.T) {
	msg := NewUserMessage("héllo wörld this is a long message")
	if got := msg.Preview(10); len([]rune(got)) != 10 || !strings.HasSuffix(got, "...") {
		t.Errorf("preview = %q", got)
	}
	short := NewUserMessage("hi")
	if got := short.Preview(10); got != "hi" {
		t.Errorf("short preview = %q", got)
	}
}

func TestStatisticsDerivedMetrics(t *testing.T) {
	stats := &Statistics{StartTime: time.Now().Add(-2 * time.Second)}
	stats.RecordFirstToken()
	first := stats.TTFT
	stats.RecordFirstToken()
	if stats.TTFT != first {
		t.Error("TTFT overwritten by second token")
	}

	stats.Finalize(100)
	if stats.TotalDuration < 2*time.Second {
		t.Errorf("duration = %v", stats.TotalDuration)
	}
	if stats.TokensPerSecond <= 0 {
		t.Errorf("tok/s = %v", stats.TokensPerSecond)
	}
}

func TestSessionLifecycle(t *testing.T) {
	session := NewSession("customer-support", "workflow")
	if !session.IsEmpty() {
		t.Fatal("new session not empty")
	}

	session.AddUserMessage("where is my order?")
	assistant := session.AddAssistantMessage()
	session.AppendToLast("Checking")
	session.AppendToLast(" now")
	session.FinalizeLast(nil)

	if session.MessageCount() != 2 {
		t.Fatalf("count = %d", session.MessageCount())
	}
	if assistant.Content != "Checking now" {
		t.Errorf("assistant content = %q", assistant.Content)
	}
	if session.Title == "" || !strings.Contains(session.Title, "where is my order") {
		t.Errorf("title = %q", session.Title)
	}
	if got := session.LastUserMessage().Content; got != "where is my order?" {
		t.Errorf("last user message = %q", got)
	}
}

func TestFlattenPrompt(t *testing.T) {
	session := NewSession("agent", "standard")
	session.AddUserMessage("hi")
	asst := session.AddAssistantMessage()
	asst.AppendToken("hello")
	asst.FinalizeStream(nil)
	session.AddUserMessage("and now?")

	got := session.FlattenPrompt()
	want := "You: hi\nAssistant: hello\nYou: and now?"
	if got != want {
		t.Errorf("flattened = %q, want %q", got, want)
	}
}

func TestFlattenPromptSkipsEmptyAssistant(t *testing.T) {
	session := NewSession("agent", "standard")
	session.AddUserMessage("hi")
	session.AddAssistantMessage() // cancelled before any token

	if got := session.FlattenPrompt(); got != "You: hi" {
		t.Errorf("flattened = %q", got)
	}
}
