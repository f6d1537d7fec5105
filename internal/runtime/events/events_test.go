package events

import (
	"testing"

	"github.com/drblury/parcelflow/internal/runtime/parcel"
)

func TestCaughtExceptionEventShape(t *testing.T) {
	request := parcel.Parcel{
		Headers: parcel.Headers{Kind: "widget.create", UUID: "u"},
		Message: parcel.Message{"name": "x"},
	}
	event := &CaughtExceptionEvent{
		UUID:      "e",
		Context:   request,
		Error:     "errors/error_string",
		Message:   "boom",
		Backtrace: "line 1",
	}

	msg := event.ToMessage()
	for _, key := range []string{"kind", "uuid", "context", "error", "message", "backtrace"} {
		if _, ok := msg[key]; !ok {
			t.Fatalf("expected key %q in %#v", key, msg)
		}
	}
	if msg["kind"] != parcel.KindCaughtException {
		t.Fatalf("unexpected kind %v", msg["kind"])
	}
	ctx := msg["context"].(parcel.Message)
	if ctx["headers"].(parcel.Message)["kind"] != "widget.create" {
		t.Fatalf("expected rendered request headers, got %#v", ctx)
	}

	p := event.Parcel()
	if !p.IsError() || p.Headers.UUID != "e" {
		t.Fatalf("unexpected parcel %#v", p)
	}
}

func TestRenderContextVariants(t *testing.T) {
	var nilParcel *parcel.Parcel
	if renderContext(nilParcel) != nil {
		t.Fatal("expected nil parcel pointer to render as nil")
	}
	if renderContext("raw") != "raw" {
		t.Fatal("expected opaque contexts to pass through")
	}
	msg := parcel.Message{"a": 1}
	rendered := renderContext(msg).(parcel.Message)
	rendered["a"] = 2
	if msg["a"] != 1 {
		t.Fatal("expected message context to be copied")
	}
}

func TestMessageAcceptedEvent(t *testing.T) {
	request := parcel.New("widget.create", parcel.Message{"name": "x"})
	event := NewMessageAcceptedEvent(request)
	if event.UUID == "" {
		t.Fatal("expected uuid")
	}
	p := event.Parcel()
	if p.Kind() != parcel.KindMessageAccepted {
		t.Fatalf("unexpected kind %q", p.Kind())
	}
	if p.Headers.UUID != "" {
		t.Fatal("acknowledgment parcel must be left for the caller to stamp")
	}
	if p.IsError() {
		t.Fatal("acknowledgment must not be an error parcel")
	}
}
