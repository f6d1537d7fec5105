package logging

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
)

func TestWatermillServiceLoggerDelegates(t *testing.T) {
	capture := watermill.NewCaptureLogger()
	logger := NewWatermillServiceLogger(capture)

	logger.Debug("dbg", LogFields{"component": "dispatch"})
	logger.Info("info", nil)
	logger.Trace("trace", LogFields{"trace": true})
	boom := errors.New("boom")
	logger.Error("oops", boom, LogFields{"failed": true})
	logger.With(LogFields{"child": "yes"}).Info("child_info", nil)

	captured := capture.Captured()
	if len(captured[watermill.DebugLogLevel]) != 1 {
		t.Fatalf("expected one debug entry, got %#v", captured[watermill.DebugLogLevel])
	}
	if len(captured[watermill.InfoLogLevel]) != 2 {
		t.Fatalf("expected two info entries, got %#v", captured[watermill.InfoLogLevel])
	}
	if !capture.HasError(boom) {
		t.Fatal("expected boom to be captured")
	}
	child := captured[watermill.InfoLogLevel][1]
	if child.Fields["child"] != "yes" {
		t.Fatalf("expected With to propagate fields, got %#v", child.Fields)
	}
}

func TestConstructorsPanicOnNil(t *testing.T) {
	cases := map[string]func(){
		"watermill": func() { NewWatermillServiceLogger(nil) },
		"slog":      func() { NewSlogServiceLogger(nil) },
		"adapter":   func() { NewWatermillAdapter(nil) },
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if r := recover(); r == nil {
					t.Fatal("expected panic")
				}
			}()
			fn()
		})
	}
}

func TestWatermillAdapterRoundTrip(t *testing.T) {
	capture := watermill.NewCaptureLogger()
	adapter := NewWatermillAdapter(NewWatermillServiceLogger(capture))

	adapter.Info("info", watermill.LogFields{"k": "v"})
	adapter.With(watermill.LogFields{"child": 1}).Debug("dbg", nil)

	captured := capture.Captured()
	if got := captured[watermill.InfoLogLevel]; len(got) != 1 || got[0].Fields["k"] != "v" {
		t.Fatalf("unexpected info entries %#v", got)
	}
	if got := captured[watermill.DebugLogLevel]; len(got) != 1 || got[0].Fields["child"] != 1 {
		t.Fatalf("unexpected debug entries %#v", got)
	}
}

func TestNopLoggerAbsorbsCalls(t *testing.T) {
	logger := OrNop(nil)
	logger.Info("ignored", LogFields{"k": "v"})
	logger.Error("ignored", errors.New("boom"), nil)
	if logger.With(LogFields{"a": 1}) == nil {
		t.Fatal("expected With to return a logger")
	}

	real := NewSlogServiceLogger(slog.New(slog.NewTextHandler(testWriter{}, nil)))
	if OrNop(real) != real {
		t.Fatal("expected OrNop to keep a non-nil logger")
	}
}

func TestWatermillFieldConversions(t *testing.T) {
	if toWatermillFields(nil) != nil {
		t.Fatal("expected nil conversion to return nil")
	}
	if fromWatermillFields(nil) != nil {
		t.Fatal("expected nil conversion to return nil")
	}
	wm := toWatermillFields(LogFields{"a": 1})
	if wm["a"].(int) != 1 {
		t.Fatalf("unexpected watermill fields: %#v", wm)
	}
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }
