// Package dispatch routes a parcel through every registered registry, gates
// each matched endpoint with its policies and hands the survivors to the
// runner bound to that registry.
package dispatch

import (
	"context"
	"runtime/debug"

	errspkg "github.com/drblury/parcelflow/internal/runtime/errors"
	"github.com/drblury/parcelflow/internal/runtime/logging"
	"github.com/drblury/parcelflow/internal/runtime/parcel"
	"github.com/drblury/parcelflow/internal/runtime/policy"
	"github.com/drblury/parcelflow/internal/runtime/routing"
	"github.com/drblury/parcelflow/internal/runtime/runner"
	"github.com/drblury/parcelflow/internal/runtime/safecall"
)

// Binding pairs a registry with the runner that executes its endpoints.
type Binding struct {
	Runner   runner.Runner
	Registry *routing.Registry
}

// NotFoundFunc answers parcels that no registry matched.
type NotFoundFunc func(ctx context.Context, p parcel.Parcel) ([]parcel.Parcel, error)

// DefaultNotFound fails with a *errors.NotFoundError.
func DefaultNotFound(_ context.Context, p parcel.Parcel) ([]parcel.Parcel, error) {
	return nil, &errspkg.NotFoundError{Kind: p.Kind(), UUID: p.Headers.UUID}
}

// Options configures a Dispatcher.
type Options struct {
	// Bindings are consulted in order. At least one is required.
	Bindings []Binding
	// NotFound answers unmatched parcels. Defaults to DefaultNotFound.
	NotFound NotFoundFunc
	// ErrorHandler reports policy and runner faults. Defaults to a handler
	// that logs to Logger and publishes nowhere.
	ErrorHandler *safecall.ErrorHandler
	Logger       logging.ServiceLogger
}

// Dispatcher is the terminal handler of the pipeline.
type Dispatcher struct {
	bindings []Binding
	notFound NotFoundFunc
	errors   *safecall.ErrorHandler
	logger   logging.ServiceLogger
}

// New validates opts and returns a Dispatcher.
func New(opts Options) (*Dispatcher, error) {
	if len(opts.Bindings) == 0 {
		return nil, errspkg.ErrRegistryRequired
	}
	for _, b := range opts.Bindings {
		if b.Registry == nil {
			return nil, errspkg.ErrRegistryRequired
		}
		if b.Runner == nil {
			return nil, errspkg.ErrRunnerRequired
		}
	}

	logger := logging.OrNop(opts.Logger)
	notFound := opts.NotFound
	if notFound == nil {
		notFound = DefaultNotFound
	}
	errorHandler := opts.ErrorHandler
	if errorHandler == nil {
		errorHandler = safecall.NewErrorHandler(logger, nil)
	}

	return &Dispatcher{
		bindings: append([]Binding(nil), opts.Bindings...),
		notFound: notFound,
		errors:   errorHandler,
		logger:   logger,
	}, nil
}

// Bindings returns a copy of the configured bindings.
func (d *Dispatcher) Bindings() []Binding {
	return append([]Binding(nil), d.bindings...)
}

// Call dispatches p.
//
// When no registry matches, the not-found handler's result is returned as is.
// Otherwise every policy failure and runner fault becomes an error parcel in
// the result and the remaining endpoints still run. Non-error results without
// a UUID receive causality derived from p. Faults of the dispatcher itself,
// including panics, are returned as *errors.LibraryError.
func (d *Dispatcher) Call(ctx context.Context, p parcel.Parcel) (results []parcel.Parcel, err error) {
	defer func() {
		if r := recover(); r != nil {
			results = nil
			err = errspkg.TagLibrary(&safecall.PanicError{Value: r, Stack: debug.Stack()})
		}
	}()

	p = parcel.Normalize(p)

	matched := make([][]routing.Endpoint, len(d.bindings))
	total := 0
	for i, b := range d.bindings {
		matched[i] = b.Registry.Match(p)
		total += len(matched[i])
	}

	fields := logging.LogFields{
		"kind":      p.Kind(),
		"uuid":      p.Headers.UUID,
		"endpoints": total,
	}
	if total == 0 {
		d.logger.Debug("No endpoint matched parcel", fields)
		return d.notFound(ctx, p)
	}
	d.logger.Debug("Dispatching parcel", fields)

	for i, b := range d.bindings {
		if len(matched[i]) == 0 {
			continue
		}

		allowed := make([]routing.Endpoint, 0, len(matched[i]))
		for _, ep := range matched[i] {
			chain := b.Registry.Policies(ep)
			_, event := safecall.WithErrorHandling(ctx, d.errors, p, func() (struct{}, error) {
				return struct{}{}, policy.CheckAll(ctx, chain, p)
			})
			if event != nil {
				results = append(results, event.Parcel())
				continue
			}
			allowed = append(allowed, ep)
		}
		if len(allowed) == 0 {
			continue
		}

		out, event := safecall.WithErrorHandling(ctx, d.errors, p, func() ([]parcel.Parcel, error) {
			return b.Runner.Run(ctx, allowed, p)
		})
		if event != nil {
			results = append(results, event.Parcel())
			continue
		}
		results = append(results, out...)
	}

	for i := range results {
		if !results[i].IsError() {
			results[i] = parcel.Stamp(p, results[i])
		}
	}
	return results, nil
}
