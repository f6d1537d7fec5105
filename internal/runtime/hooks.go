package runtime

import (
	"context"
	"time"

	loggingpkg "github.com/drblury/parcelflow/internal/runtime/logging"
	"github.com/drblury/parcelflow/internal/runtime/parcel"
)

// ParcelContext describes one dispatch to hooks.
type ParcelContext struct {
	// Kind is the routing discriminator of the request.
	Kind string
	// UUID, ParentUUID and OriginUUID are the request's causality ids.
	UUID       string
	ParentUUID string
	OriginUUID string
	// Context is the request context.
	Context context.Context
	// StartedAt is when the dispatch began.
	StartedAt time.Time
	// Duration is set in OnDone and OnError.
	Duration time.Duration
	// Responses and ErrorEvents count the parcels returned (OnDone only).
	Responses   int
	ErrorEvents int
}

// Hooks are optional callbacks around each dispatch. Nil hooks are skipped.
type Hooks struct {
	// OnStart runs before the inner pipeline.
	OnStart func(ctx ParcelContext)

	// OnDone runs when the pipeline returned without error. Error events
	// among the responses are counted, not reported as failures.
	OnDone func(ctx ParcelContext)

	// OnError runs when the pipeline returned an error.
	OnError func(ctx ParcelContext, err error)
}

// Merge returns hooks calling h first and then other.
func (h Hooks) Merge(other Hooks) Hooks {
	return Hooks{
		OnStart: chain(h.OnStart, other.OnStart),
		OnDone:  chain(h.OnDone, other.OnDone),
		OnError: chainErr(h.OnError, other.OnError),
	}
}

func chain(a, b func(ParcelContext)) func(ParcelContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx ParcelContext) {
		a(ctx)
		b(ctx)
	}
}

func chainErr(a, b func(ParcelContext, error)) func(ParcelContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx ParcelContext, err error) {
		a(ctx, err)
		b(ctx, err)
	}
}

// HooksMiddleware invokes hooks around the rest of the pipeline.
func HooksMiddleware(hooks Hooks) MiddlewareRegistration {
	return MiddlewareRegistration{Name: "hooks", Middleware: hooksMiddleware(hooks)}
}

func hooksMiddleware(hooks Hooks) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, p parcel.Parcel) ([]parcel.Parcel, error) {
			pc := ParcelContext{
				Kind:       p.Kind(),
				UUID:       p.Headers.UUID,
				ParentUUID: p.Headers.ParentUUID,
				OriginUUID: p.Headers.OriginUUID,
				Context:    ctx,
				StartedAt:  time.Now(),
			}
			if hooks.OnStart != nil {
				hooks.OnStart(pc)
			}

			results, err := next.Call(ctx, p)
			pc.Duration = time.Since(pc.StartedAt)

			if err != nil {
				if hooks.OnError != nil {
					hooks.OnError(pc, err)
				}
				return results, err
			}

			pc.Responses = len(results)
			for _, r := range results {
				if r.IsError() {
					pc.ErrorEvents++
				}
			}
			if hooks.OnDone != nil {
				hooks.OnDone(pc)
			}
			return results, nil
		})
	}
}

// LoggingHooks logs the lifecycle of each dispatch.
func LoggingHooks(logger loggingpkg.ServiceLogger) Hooks {
	logger = loggingpkg.OrNop(logger)
	return Hooks{
		OnStart: func(ctx ParcelContext) {
			logger.Debug("Dispatch started", loggingpkg.LogFields{
				"kind": ctx.Kind,
				"uuid": ctx.UUID,
			})
		},
		OnDone: func(ctx ParcelContext) {
			logger.Info("Dispatch completed", loggingpkg.LogFields{
				"kind":         ctx.Kind,
				"uuid":         ctx.UUID,
				"responses":    ctx.Responses,
				"error_events": ctx.ErrorEvents,
				"duration_ms":  ctx.Duration.Milliseconds(),
			})
		},
		OnError: func(ctx ParcelContext, err error) {
			logger.Error("Dispatch failed", err, loggingpkg.LogFields{
				"kind":        ctx.Kind,
				"uuid":        ctx.UUID,
				"duration_ms": ctx.Duration.Milliseconds(),
			})
		},
	}
}

// CounterHooks calls the given functions with the parcel kind.
func CounterHooks(onStart, onDone, onError func(kind string)) Hooks {
	return Hooks{
		OnStart: func(ctx ParcelContext) {
			if onStart != nil {
				onStart(ctx.Kind)
			}
		},
		OnDone: func(ctx ParcelContext) {
			if onDone != nil {
				onDone(ctx.Kind)
			}
		},
		OnError: func(ctx ParcelContext, _ error) {
			if onError != nil {
				onError(ctx.Kind)
			}
		},
	}
}

// AlertingHooks calls alert whenever a dispatch fails.
func AlertingHooks(alert func(ctx ParcelContext, err error)) Hooks {
	return Hooks{OnError: alert}
}
