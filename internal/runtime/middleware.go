package runtime

import (
	"context"
	"fmt"

	"github.com/drblury/parcelflow/internal/runtime/channel"
	errspkg "github.com/drblury/parcelflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/parcelflow/internal/runtime/logging"
	"github.com/drblury/parcelflow/internal/runtime/metrics"
	"github.com/drblury/parcelflow/internal/runtime/parcel"
	"github.com/drblury/parcelflow/internal/runtime/policy"
	"github.com/drblury/parcelflow/internal/runtime/safecall"
)

// Handler processes one parcel and answers with zero or more parcels.
type Handler interface {
	Call(ctx context.Context, p parcel.Parcel) ([]parcel.Parcel, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, p parcel.Parcel) ([]parcel.Parcel, error)

// Call calls f.
func (f HandlerFunc) Call(ctx context.Context, p parcel.Parcel) ([]parcel.Parcel, error) {
	return f(ctx, p)
}

// Middleware wraps a handler into another handler.
type Middleware func(next Handler) Handler

// MiddlewareBuilder constructs a middleware from the pipeline being built. It
// may return a nil middleware to opt out, for example when a dependency is
// not configured.
type MiddlewareBuilder func(*Builder) (Middleware, error)

// MiddlewareRegistration names a middleware and describes how to obtain it.
// Exactly one of Middleware and Builder should be set.
type MiddlewareRegistration struct {
	Name       string
	Middleware Middleware
	Builder    MiddlewareBuilder
}

// Builder assembles a pipeline. Middlewares registered first end up
// outermost.
type Builder struct {
	Logger       loggingpkg.ServiceLogger
	ErrorHandler *safecall.ErrorHandler

	registrations []MiddlewareRegistration
	app           Handler
}

// NewBuilder returns an empty builder. A nil error handler falls back to one
// that logs to logger and publishes nowhere.
func NewBuilder(logger loggingpkg.ServiceLogger, errorHandler *safecall.ErrorHandler) *Builder {
	logger = loggingpkg.OrNop(logger)
	if errorHandler == nil {
		errorHandler = safecall.NewErrorHandler(logger, nil)
	}
	return &Builder{Logger: logger, ErrorHandler: errorHandler}
}

// Use appends middleware registrations.
func (b *Builder) Use(regs ...MiddlewareRegistration) *Builder {
	b.registrations = append(b.registrations, regs...)
	return b
}

// UseDefaults appends DefaultMiddlewares.
func (b *Builder) UseDefaults() *Builder {
	return b.Use(DefaultMiddlewares()...)
}

// Run sets the terminal handler, usually a dispatcher.
func (b *Builder) Run(app Handler) *Builder {
	b.app = app
	return b
}

// Names returns the registered middleware names in order.
func (b *Builder) Names() []string {
	names := make([]string, 0, len(b.registrations))
	for _, reg := range b.registrations {
		names = append(names, reg.Name)
	}
	return names
}

// Build folds the registrations around the terminal handler.
func (b *Builder) Build() (Handler, error) {
	if b.app == nil {
		return nil, errspkg.ErrHandlerRequired
	}

	middlewares := make([]Middleware, 0, len(b.registrations))
	for _, reg := range b.registrations {
		mw, err := b.resolve(reg)
		if err != nil {
			return nil, err
		}
		if mw != nil {
			middlewares = append(middlewares, mw)
		}
	}

	h := b.app
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h, nil
}

func (b *Builder) resolve(reg MiddlewareRegistration) (Middleware, error) {
	name := reg.Name
	if name == "" {
		name = "anonymous_middleware"
	}

	switch {
	case reg.Middleware != nil:
		return reg.Middleware, nil
	case reg.Builder != nil:
		mw, err := reg.Builder(b)
		if err != nil {
			return nil, fmt.Errorf("build middleware %s: %w", name, err)
		}
		return mw, nil
	default:
		return nil, fmt.Errorf("middleware %s requires Middleware or Builder", name)
	}
}

// DefaultMiddlewares returns the standard request pipeline: timing, parcel
// shape, uuid tagging, fault isolation and sealing, outermost first.
func DefaultMiddlewares() []MiddlewareRegistration {
	return []MiddlewareRegistration{
		RequestTimerMiddleware(),
		ParcelMasherMiddleware(),
		UUIDTaggerMiddleware(),
		ErrorBoundaryMiddleware(),
		ParcelFreezerMiddleware(),
	}
}

// RequestTimerMiddleware stamps the elapsed processing time, in
// microseconds, on every response.
func RequestTimerMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{Name: "request_timer", Middleware: requestTimer(nowFunc)}
}

// ParcelMasherMiddleware makes sure the parcel has headers and a message and
// takes the kind from the message when the headers carry none.
func ParcelMasherMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{Name: "parcel_masher", Middleware: parcelMasher}
}

// UUIDTaggerMiddleware assigns a uuid and completes the causality chain of
// incoming parcels.
func UUIDTaggerMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{Name: "uuid_tagger", Middleware: uuidTagger}
}

// ErrorBoundaryMiddleware converts any fault of the inner pipeline into a
// caught-exception parcel derived from the request.
func ErrorBoundaryMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "error_boundary",
		Builder: func(b *Builder) (Middleware, error) {
			return errorBoundary(b.ErrorHandler), nil
		},
	}
}

// ParcelFreezerMiddleware hands inner stages a sealed copy of the parcel.
func ParcelFreezerMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{Name: "parcel_freezer", Middleware: parcelFreezer}
}

// PolicyCheckerMiddleware fails the request with the first policy failure of
// chain. Place it inside ErrorBoundaryMiddleware to turn failures into error
// parcels.
func PolicyCheckerMiddleware(chain ...policy.Policy) MiddlewareRegistration {
	return MiddlewareRegistration{Name: "policy_checker", Middleware: policyChecker(chain)}
}

// ParcelTapperMiddleware copies requests and responses to the given
// channels. Tap failures are logged and never affect the request.
func ParcelTapperMiddleware(requests, responses channel.Channel) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "parcel_tapper",
		Builder: func(b *Builder) (Middleware, error) {
			return parcelTapper(b.Logger, channel.OrNull(requests), channel.OrNull(responses)), nil
		},
	}
}

// TracerMiddleware wraps every dispatch in an OpenTelemetry span.
func TracerMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{Name: "tracer", Middleware: tracer}
}

// MetricsMiddleware records dispatch outcomes on m. It is skipped when m is
// nil.
func MetricsMiddleware(m *metrics.Metrics) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "metrics",
		Builder: func(*Builder) (Middleware, error) {
			if m == nil {
				return nil, nil
			}
			return observeMetrics(m), nil
		},
	}
}

// LogParcelsMiddleware logs every parcel and the number of responses. It
// uses the builder's logger when logger is nil.
func LogParcelsMiddleware(logger loggingpkg.ServiceLogger) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "log_parcels",
		Builder: func(b *Builder) (Middleware, error) {
			l := logger
			if l == nil {
				l = b.Logger
			}
			return logParcels(loggingpkg.OrNop(l)), nil
		},
	}
}
