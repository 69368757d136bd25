// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package wire

import (
	"testing"
)

func TestClassifyDeltaByEventName(t *testing.T) {
	tests := []struct {
		name  string
		event string
		data  string
		want  string
	}{
		{"delta field", EventOutputTextDelta, `{"delta":"Hello"}`, "Hello"},
		{"text fallback", EventMessageDelta, `{"text":"Hi"}`, "Hi"},
		{"content fallback", EventResponseDelta, `{"content":"Hey"}`, "Hey"},
		{"nested output_text", EventOutputTextDelta, `{"output_text":{"delta":"Ho"}}`, "Ho"},
		{"no text at all", EventResponseDelta, `{"other":1}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := Classify(WireEvent{Event: tt.event, Data: tt.data})
			delta, ok := ev.(*DeltaEvent)
			if !ok {
				t.Fatalf("classified as %T, want *DeltaEvent", ev)
			}
			if delta.Text != tt.want {
				t.Errorf("text = %q, want %q", delta.Text, tt.want)
			}
		})
	}
}

func TestClassifyErrorByEventName(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"nested error message", `{"error":{"message":"rate limited"}}`, "rate limited"},
		{"flat message", `{"message":"boom"}`, "boom"},
		{"no message", `{}`, "Unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := Classify(WireEvent{Event: EventResponseError, Data: tt.data})
			errEv, ok := ev.(*ErrorEvent)
			if !ok {
				t.Fatalf("classified as %T, want *ErrorEvent", ev)
			}
			if errEv.Message != tt.want {
				t.Errorf("message = %q, want %q", errEv.Message, tt.want)
			}
		})
	}
}

// A trace payload that also carries a delta-shaped field must never be
// routed as a delta. Same for an error frame carrying text fields.
func TestClassifyPrecedence(t *testing.T) {
	ev := Classify(WireEvent{
		Event: EventTraceComplete,
		Data:  `{"delta":"tempting","data":{"trace_type":"workflow_info"}}`,
	})
	if _, ok := ev.(*TraceCompleteEvent); !ok {
		t.Fatalf("trace frame classified as %T", ev)
	}

	ev = Classify(WireEvent{
		Event: "",
		Data:  `{"type":"response.trace.complete","delta":"tempting"}`,
	})
	if _, ok := ev.(*TraceCompleteEvent); !ok {
		t.Fatalf("typed trace frame classified as %T", ev)
	}

	ev = Classify(WireEvent{Event: EventResponseError, Data: `{"message":"err","delta":"text"}`})
	if _, ok := ev.(*ErrorEvent); !ok {
		t.Fatalf("error frame classified as %T", ev)
	}
}

func TestClassifyPayloadTypeFallbacks(t *testing.T) {
	// 5. type=error with no event name.
	ev := Classify(WireEvent{Data: `{"type":"error","message":"out of quota"}`})
	errEv, ok := ev.(*ErrorEvent)
	if !ok || errEv.Message != "out of quota" {
		t.Fatalf("got %T %+v", ev, ev)
	}

	ev = Classify(WireEvent{Data: `{"type":"error"}`})
	if errEv, ok = ev.(*ErrorEvent); !ok || errEv.Message != "Unknown error" {
		t.Fatalf("got %T %+v", ev, ev)
	}

	// 6. typed delta without event name.
	ev = Classify(WireEvent{Data: `{"type":"response.output_text.delta","delta":"chunk"}`})
	delta, ok := ev.(*DeltaEvent)
	if !ok || delta.Text != "chunk" {
		t.Fatalf("got %T %+v", ev, ev)
	}

	// Typed delta whose delta field is not a string falls through.
	ev = Classify(WireEvent{Data: `{"type":"response.output_text.delta","delta":7}`})
	if _, ok := ev.(*DeltaEvent); ok {
		t.Fatal("non-string delta classified as DeltaEvent")
	}
}

func TestClassifyCompletion(t *testing.T) {
	ev := Classify(WireEvent{Event: EventCompleted, Data: `{"id":"resp_1"}`})
	if _, ok := ev.(*CompletionEvent); !ok {
		t.Fatalf("got %T", ev)
	}
}

func TestClassifyBareTextFallback(t *testing.T) {
	ev := Classify(WireEvent{Data: `{"content":"untyped text"}`})
	delta, ok := ev.(*DeltaEvent)
	if !ok || delta.Text != "untyped text" {
		t.Fatalf("got %T %+v", ev, ev)
	}

	ev = Classify(WireEvent{Data: `{"usage":{"tokens":9}}`})
	if _, ok := ev.(*UnclassifiedEvent); !ok {
		t.Fatalf("shapeless payload classified as %T", ev)
	}
}

func TestClassifyMalformedJSON(t *testing.T) {
	for _, data := range []string{"not json", "{truncated", "", "[1,2,3]", `"bare string"`} {
		if ev := Classify(WireEvent{Data: data}); ev != nil {
			t.Errorf("Classify(%q) = %T, want nil", data, ev)
		}
	}
}
