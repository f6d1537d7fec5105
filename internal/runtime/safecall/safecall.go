// Package safecall runs arbitrary user code so that neither a returned error
// nor a panic can escape past the unit of work that caused it.
package safecall

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
	"strings"
	"unicode"

	"github.com/drblury/parcelflow/internal/runtime/channel"
	"github.com/drblury/parcelflow/internal/runtime/events"
	"github.com/drblury/parcelflow/internal/runtime/ids"
	"github.com/drblury/parcelflow/internal/runtime/logging"
)

// PanicError carries a recovered panic value and the stack it unwound from.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap exposes the panic value when it was an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Call runs fn and converts a panic into a *PanicError. It never re-panics.
func Call[T any](fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			result = zero
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}

// Do is Call for functions without a result.
func Do(fn func() error) error {
	_, err := Call(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// ErrorHandler turns faults into caught-exception events, logs them and
// publishes them to an error channel.
type ErrorHandler struct {
	logger       logging.ServiceLogger
	errorChannel channel.Channel
}

// NewErrorHandler returns an ErrorHandler. Nil collaborators are replaced by
// null objects.
func NewErrorHandler(logger logging.ServiceLogger, errorChannel channel.Channel) *ErrorHandler {
	return &ErrorHandler{
		logger:       logging.OrNop(logger),
		errorChannel: channel.OrNull(errorChannel),
	}
}

// Logger returns the logger used for fault reports.
func (h *ErrorHandler) Logger() logging.ServiceLogger {
	if h == nil {
		return logging.NopLogger()
	}
	return h.logger
}

// ErrorChannel returns the channel caught-exception events are published to.
func (h *ErrorHandler) ErrorChannel() channel.Channel {
	if h == nil {
		return channel.Null()
	}
	return h.errorChannel
}

// WithErrorHandling runs fn under Call. On success it returns the result and
// a nil event. On fault it builds a caught-exception event around errCtx,
// logs it, publishes it to the error channel and returns it. A failing error
// channel is logged and otherwise ignored.
func WithErrorHandling[T any](ctx context.Context, h *ErrorHandler, errCtx any, fn func() (T, error)) (T, *events.CaughtExceptionEvent) {
	result, err := Call(fn)
	if err == nil {
		return result, nil
	}
	var zero T
	return zero, h.Handle(ctx, errCtx, err)
}

// Handle reports err as a caught-exception event.
func (h *ErrorHandler) Handle(ctx context.Context, errCtx any, err error) *events.CaughtExceptionEvent {
	event := NewCaughtExceptionEvent(errCtx, err)
	logger := h.Logger()

	logger.Error("Caught exception", err, logging.LogFields{
		"event_uuid": event.UUID,
		"error":      event.Error,
	})

	if pubErr := Do(func() error {
		return h.ErrorChannel().Publish(ctx, event.Parcel())
	}); pubErr != nil {
		logger.Error("Failed to publish caught exception", pubErr, logging.LogFields{
			"event_uuid": event.UUID,
		})
	}
	return event
}

// NewCaughtExceptionEvent converts err into an event record.
func NewCaughtExceptionEvent(errCtx any, err error) *events.CaughtExceptionEvent {
	return &events.CaughtExceptionEvent{
		UUID:      ids.CreateCodedUUID(),
		Context:   errCtx,
		Error:     Classify(err),
		Message:   err.Error(),
		Backtrace: backtrace(err),
	}
}

// Classify names the concrete error type as "package/snake_case_type", for
// example "policy/failure" or "safecall/panic_error".
func Classify(err error) string {
	if err == nil {
		return ""
	}
	typ := reflect.TypeOf(err)
	for typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	name := snakeCase(typ.Name())
	pkg := typ.PkgPath()
	if idx := strings.LastIndex(pkg, "/"); idx >= 0 {
		pkg = pkg[idx+1:]
	}
	if pkg == "" {
		return name
	}
	return pkg + "/" + name
}

func snakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func backtrace(err error) string {
	var panicErr *PanicError
	if errors.As(err, &panicErr) {
		return string(panicErr.Stack)
	}
	// Plain errors carry no stack; report the wrap chain instead.
	var lines []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		lines = append(lines, e.Error())
	}
	return strings.Join(lines, "\n")
}
