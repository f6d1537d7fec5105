package safecall

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/drblury/parcelflow/internal/runtime/channel"
	"github.com/drblury/parcelflow/internal/runtime/logging"
	"github.com/drblury/parcelflow/internal/runtime/parcel"
)

func TestCall(t *testing.T) {
	t.Run("returns value", func(t *testing.T) {
		got, err := Call(func() (int, error) { return 2, nil })
		if err != nil || got != 2 {
			t.Fatalf("expected (2, nil), got (%d, %v)", got, err)
		}
	})

	t.Run("returns error", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := Call(func() (int, error) { return 1, boom })
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
	})

	t.Run("recovers panic", func(t *testing.T) {
		got, err := Call(func() (int, error) { panic("my error") })
		var panicErr *PanicError
		if !errors.As(err, &panicErr) {
			t.Fatalf("expected PanicError, got %T", err)
		}
		if got != 0 {
			t.Fatalf("expected zero value on panic, got %d", got)
		}
		if panicErr.Value != "my error" || len(panicErr.Stack) == 0 {
			t.Fatalf("unexpected panic error %#v", panicErr)
		}
	})

	t.Run("unwraps error panics", func(t *testing.T) {
		boom := errors.New("boom")
		err := Do(func() error { panic(boom) })
		if !errors.Is(err, boom) {
			t.Fatalf("expected panic value to unwrap to boom, got %v", err)
		}
	})
}

func TestWithErrorHandlingSuccess(t *testing.T) {
	errorsCh := channel.NewMemory()
	h := NewErrorHandler(nil, errorsCh)

	got, event := WithErrorHandling(context.Background(), h, "ctx", func() (string, error) {
		return "ok", nil
	})
	if event != nil || got != "ok" {
		t.Fatalf("expected success, got (%q, %#v)", got, event)
	}
	if errorsCh.Len() != 0 {
		t.Fatal("expected nothing on the error channel")
	}
}

func TestWithErrorHandlingFault(t *testing.T) {
	capture := watermill.NewCaptureLogger()
	errorsCh := channel.NewMemory()
	h := NewErrorHandler(logging.NewWatermillServiceLogger(capture), errorsCh)

	request := parcel.New("widget.create", nil)
	boom := errors.New("boom")
	_, event := WithErrorHandling(context.Background(), h, request, func() (any, error) {
		return nil, fmt.Errorf("wrapped: %w", boom)
	})
	if event == nil {
		t.Fatal("expected caught exception event")
	}
	if event.Message != "wrapped: boom" {
		t.Fatalf("unexpected message %q", event.Message)
	}
	if event.Error != "fmt/wrap_error" {
		t.Fatalf("unexpected classification %q", event.Error)
	}
	if !strings.Contains(event.Backtrace, "boom") {
		t.Fatalf("expected wrap chain in backtrace, got %q", event.Backtrace)
	}
	if event.Context.(parcel.Parcel).Kind() != "widget.create" {
		t.Fatal("expected context to be the request parcel")
	}

	published := errorsCh.Parcels()
	if len(published) != 1 || published[0].Headers.UUID != event.UUID {
		t.Fatalf("expected event on error channel, got %#v", published)
	}
	if len(capture.Captured()[watermill.ErrorLogLevel]) != 1 {
		t.Fatal("expected error to be logged")
	}
}

func TestWithErrorHandlingSurvivesBrokenErrorChannel(t *testing.T) {
	capture := watermill.NewCaptureLogger()
	broken := channel.Func(func(context.Context, parcel.Parcel) error {
		panic("channel down")
	})
	h := NewErrorHandler(logging.NewWatermillServiceLogger(capture), broken)

	_, event := WithErrorHandling(context.Background(), h, nil, func() (int, error) {
		panic("handler down")
	})
	if event == nil {
		t.Fatal("expected event despite broken channel")
	}
	if event.Error != "safecall/panic_error" {
		t.Fatalf("unexpected classification %q", event.Error)
	}
	if len(capture.Captured()[watermill.ErrorLogLevel]) != 2 {
		t.Fatalf("expected handler fault and channel fault to be logged, got %#v", capture.Captured()[watermill.ErrorLogLevel])
	}
}

func TestNilErrorHandlerUsesNullObjects(t *testing.T) {
	var h *ErrorHandler
	_, event := WithErrorHandling(context.Background(), h, nil, func() (int, error) {
		return 0, errors.New("boom")
	})
	if event == nil {
		t.Fatal("expected event from nil handler")
	}
}

type policyFailure struct{}

func (policyFailure) Error() string { return "denied" }

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{errors.New("x"), "errors/error_string"},
		{&PanicError{Value: "x"}, "safecall/panic_error"},
		{policyFailure{}, "safecall/policy_failure"},
	}
	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Fatalf("Classify(%T) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestSnakeCase(t *testing.T) {
	for in, want := range map[string]string{
		"PolicyFailure": "policy_failure",
		"HTTPError":     "http_error",
		"errorString":   "error_string",
		"":              "",
	} {
		if got := snakeCase(in); got != want {
			t.Fatalf("snakeCase(%q) = %q, want %q", in, got, want)
		}
	}
}
