package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrHandlerRequired         = sterrors.New("parcelflow: handler is required")
	ErrActionRequired          = sterrors.New("parcelflow: action is required")
	ErrMatcherRequired         = sterrors.New("parcelflow: matcher is required")
	ErrRegistryRequired        = sterrors.New("parcelflow: registry is required")
	ErrRunnerRequired          = sterrors.New("parcelflow: runner is required")
	ErrResponseChannelRequired = sterrors.New("parcelflow: response channel is required")
	ErrErrorChannelRequired    = sterrors.New("parcelflow: error channel is required")
	ErrPublisherRequired       = sterrors.New("parcelflow: publisher is required")
	ErrTopicRequired           = sterrors.New("parcelflow: topic is required")
	ErrConfigRequired          = sterrors.New("parcelflow: configuration is required")
	ErrQueueFull               = sterrors.New("parcelflow: deferred queue is full")
	ErrRunnerClosed            = sterrors.New("parcelflow: runner is closed")
	ErrNotFound                = sterrors.New("parcelflow: handler not found")
	ErrServiceStarted          = sterrors.New("parcelflow: service already started")
)

// NotFoundError is returned by the default not-found handler when no route
// matched a parcel.
type NotFoundError struct {
	Kind string
	UUID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("parcelflow: handler not found kind:%s uuid:%s", e.Kind, e.UUID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// LibraryError tags a fault that escaped the dispatcher itself so callers can
// tell configuration problems apart from errors returned by their own code.
type LibraryError struct {
	Err error
}

func (e *LibraryError) Error() string {
	return "parcelflow: " + e.Err.Error()
}

func (e *LibraryError) Unwrap() error {
	return e.Err
}

// TagLibrary wraps err as a LibraryError unless it already is one.
func TagLibrary(err error) error {
	if err == nil {
		return nil
	}
	var lib *LibraryError
	if sterrors.As(err, &lib) {
		return err
	}
	return &LibraryError{Err: err}
}

// IsLibraryError reports whether err originated inside the dispatcher.
func IsLibraryError(err error) bool {
	var lib *LibraryError
	return sterrors.As(err, &lib)
}
