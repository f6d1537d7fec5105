package runtime

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/parcelflow/internal/runtime/channel"
	errspkg "github.com/drblury/parcelflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/parcelflow/internal/runtime/logging"
	"github.com/drblury/parcelflow/internal/runtime/metrics"
	"github.com/drblury/parcelflow/internal/runtime/parcel"
	"github.com/drblury/parcelflow/internal/runtime/policy"
	"github.com/drblury/parcelflow/internal/runtime/safecall"
)

// TracerName is the instrumentation scope of the tracer middleware.
const TracerName = "github.com/drblury/parcelflow"

var nowFunc = time.Now

func requestTimer(now func() time.Time) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, p parcel.Parcel) ([]parcel.Parcel, error) {
			start := now()
			results, err := next.Call(ctx, p)
			elapsed := now().Sub(start).Microseconds()
			for i := range results {
				results[i].Headers.ElapsedTime = elapsed
			}
			return results, err
		})
	}
}

func parcelMasher(next Handler) Handler {
	return HandlerFunc(func(ctx context.Context, p parcel.Parcel) ([]parcel.Parcel, error) {
		p = parcel.Normalize(p)
		if p.Headers.Kind == "" {
			p.Headers.Kind = p.Message.Kind()
		}
		return next.Call(ctx, p)
	})
}

func uuidTagger(next Handler) Handler {
	return HandlerFunc(func(ctx context.Context, p parcel.Parcel) ([]parcel.Parcel, error) {
		return next.Call(ctx, parcel.Tag(p))
	})
}

func errorBoundary(h *safecall.ErrorHandler) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, p parcel.Parcel) ([]parcel.Parcel, error) {
			results, event := safecall.WithErrorHandling(ctx, h, p, func() ([]parcel.Parcel, error) {
				return next.Call(ctx, p)
			})
			if event == nil {
				return results, nil
			}
			failed := parcel.Derive(p, event.ToMessage())
			failed.Headers.UUID = event.UUID
			return []parcel.Parcel{failed}, nil
		})
	}
}

func parcelFreezer(next Handler) Handler {
	return HandlerFunc(func(ctx context.Context, p parcel.Parcel) ([]parcel.Parcel, error) {
		return next.Call(ctx, p.Seal())
	})
}

func policyChecker(chain []policy.Policy) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, p parcel.Parcel) ([]parcel.Parcel, error) {
			if err := policy.CheckAll(ctx, chain, p); err != nil {
				return nil, err
			}
			return next.Call(ctx, p)
		})
	}
}

func parcelTapper(logger loggingpkg.ServiceLogger, requests, responses channel.Channel) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, p parcel.Parcel) ([]parcel.Parcel, error) {
			if err := safecall.Do(func() error { return requests.Publish(ctx, p) }); err != nil {
				logger.Error("Failed to tap request", err, loggingpkg.LogFields{"uuid": p.Headers.UUID})
			}

			results, err := next.Call(ctx, p)

			for _, result := range results {
				if tapErr := safecall.Do(func() error { return responses.Publish(ctx, result) }); tapErr != nil {
					logger.Error("Failed to tap response", tapErr, loggingpkg.LogFields{"uuid": result.Headers.UUID})
				}
			}
			return results, err
		})
	}
}

func tracer(next Handler) Handler {
	return HandlerFunc(func(ctx context.Context, p parcel.Parcel) ([]parcel.Parcel, error) {
		ctx, span := otel.Tracer(TracerName).Start(ctx, "parcelflow.dispatch",
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(
				attribute.String("parcel.kind", p.Kind()),
				attribute.String("parcel.uuid", p.Headers.UUID),
				attribute.String("parcel.parent_uuid", p.Headers.ParentUUID),
				attribute.String("parcel.origin_uuid", p.Headers.OriginUUID),
			),
		)
		defer span.End()

		results, err := next.Call(ctx, p)

		errorEvents := 0
		for _, result := range results {
			if result.IsError() {
				errorEvents++
			}
		}
		span.SetAttributes(
			attribute.Int("parcel.responses", len(results)),
			attribute.Int("parcel.error_events", errorEvents),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return results, err
	})
}

func observeMetrics(m *metrics.Metrics) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, p parcel.Parcel) ([]parcel.Parcel, error) {
			start := time.Now()
			results, err := next.Call(ctx, p)
			m.ObserveDispatch(p.Kind(), results, err, time.Since(start))
			return results, err
		})
	}
}

func logParcels(logger loggingpkg.ServiceLogger) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, p parcel.Parcel) ([]parcel.Parcel, error) {
			fields := loggingpkg.LogFields{
				"kind":        p.Kind(),
				"uuid":        p.Headers.UUID,
				"parent_uuid": p.Headers.ParentUUID,
				"origin_uuid": p.Headers.OriginUUID,
			}
			logger.Debug("Dispatching parcel", fields)

			results, err := next.Call(ctx, p)
			if err != nil {
				logger.Error("Parcel dispatch failed", err, fields)
				return results, err
			}

			done := loggingpkg.LogFields{"responses": len(results)}
			for k, v := range fields {
				done[k] = v
			}
			logger.Debug("Parcel dispatched", done)
			return results, err
		})
	}
}

// isLibraryFault reports whether err escaped from the dispatch runtime itself.
func isLibraryFault(err error) bool {
	return errspkg.IsLibraryError(err)
}
