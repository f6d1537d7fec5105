package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/drblury/parcelflow/internal/runtime/channel"
	errspkg "github.com/drblury/parcelflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/parcelflow/internal/runtime/logging"
	"github.com/drblury/parcelflow/internal/runtime/metrics"
	"github.com/drblury/parcelflow/internal/runtime/parcel"
	"github.com/drblury/parcelflow/internal/runtime/policy"
	"github.com/drblury/parcelflow/internal/runtime/safecall"
)

func echo(results ...parcel.Parcel) HandlerFunc {
	return func(context.Context, parcel.Parcel) ([]parcel.Parcel, error) {
		return results, nil
	}
}

func capture(seen *parcel.Parcel) HandlerFunc {
	return func(_ context.Context, p parcel.Parcel) ([]parcel.Parcel, error) {
		*seen = p
		return nil, nil
	}
}

func tracing(name string, trace *[]string) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: name,
		Middleware: func(next Handler) Handler {
			return HandlerFunc(func(ctx context.Context, p parcel.Parcel) ([]parcel.Parcel, error) {
				*trace = append(*trace, name+">")
				results, err := next.Call(ctx, p)
				*trace = append(*trace, "<"+name)
				return results, err
			})
		},
	}
}

func TestBuilder_FirstRegisteredIsOutermost(t *testing.T) {
	var trace []string
	app := HandlerFunc(func(context.Context, parcel.Parcel) ([]parcel.Parcel, error) {
		trace = append(trace, "app")
		return nil, nil
	})

	h, err := NewBuilder(nil, nil).
		Use(tracing("m1", &trace), tracing("m2", &trace)).
		Run(app).
		Build()
	require.NoError(t, err)

	_, err = h.Call(context.Background(), parcel.New("k", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"m1>", "m2>", "app", "<m2", "<m1"}, trace)
}

func TestBuilder_Validation(t *testing.T) {
	_, err := NewBuilder(nil, nil).Build()
	assert.ErrorIs(t, err, errspkg.ErrHandlerRequired)

	_, err = NewBuilder(nil, nil).Use(MiddlewareRegistration{}).Run(echo()).Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anonymous_middleware requires Middleware or Builder")

	boom := errors.New("boom")
	_, err = NewBuilder(nil, nil).Use(MiddlewareRegistration{
		Name:    "broken",
		Builder: func(*Builder) (Middleware, error) { return nil, boom },
	}).Run(echo()).Build()
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "build middleware broken")
}

func TestBuilder_SkipsNilMiddleware(t *testing.T) {
	want := parcel.New("done", nil)
	h, err := NewBuilder(nil, nil).Use(MetricsMiddleware(nil)).Run(echo(want)).Build()
	require.NoError(t, err)

	got, err := h.Call(context.Background(), parcel.New("k", nil))
	require.NoError(t, err)
	assert.Equal(t, []parcel.Parcel{want}, got)
}

func TestDefaultMiddlewares(t *testing.T) {
	b := NewBuilder(nil, nil).UseDefaults()
	assert.Equal(t, []string{"request_timer", "parcel_masher", "uuid_tagger", "error_boundary", "parcel_freezer"}, b.Names())
}

func TestRequestTimer_StampsResponses(t *testing.T) {
	start := time.Unix(100, 0)
	calls := 0
	now := func() time.Time {
		calls++
		if calls == 1 {
			return start
		}
		return start.Add(1500 * time.Microsecond)
	}

	h := requestTimer(now)(echo(parcel.New("a", nil), parcel.New("b", nil)))
	results, err := h.Call(context.Background(), parcel.New("k", nil))
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, int64(1500), r.Headers.ElapsedTime)
	}
}

func TestParcelMasher(t *testing.T) {
	var seen parcel.Parcel
	h := parcelMasher(capture(&seen))

	_, err := h.Call(context.Background(), parcel.Parcel{Message: parcel.Message{"kind": "widget.create"}})
	require.NoError(t, err)
	assert.Equal(t, "widget.create", seen.Kind())
	assert.NotNil(t, seen.Headers.Extra)

	_, err = h.Call(context.Background(), parcel.Parcel{})
	require.NoError(t, err)
	assert.NotNil(t, seen.Message)
	assert.Empty(t, seen.Kind())
}

func TestUUIDTagger(t *testing.T) {
	var seen parcel.Parcel
	h := uuidTagger(capture(&seen))

	_, err := h.Call(context.Background(), parcel.New("k", nil))
	require.NoError(t, err)
	require.NotEmpty(t, seen.Headers.UUID)
	assert.Equal(t, seen.Headers.UUID, seen.Headers.ParentUUID)
	assert.Equal(t, seen.Headers.UUID, seen.Headers.OriginUUID)

	tagged := parcel.Parcel{Headers: parcel.Headers{UUID: "u", ParentUUID: "p"}}
	_, err = h.Call(context.Background(), tagged)
	require.NoError(t, err)
	assert.Equal(t, "u", seen.Headers.UUID)
	assert.Equal(t, "p", seen.Headers.OriginUUID)
}

func TestErrorBoundary(t *testing.T) {
	request := parcel.Parcel{Headers: parcel.Headers{Kind: "widget.create", UUID: "req", OriginUUID: "origin"}}

	cases := map[string]struct {
		app       HandlerFunc
		wantError string
	}{
		"returned error": {
			app: func(context.Context, parcel.Parcel) ([]parcel.Parcel, error) {
				return nil, policy.Fail("not allowed")
			},
			wantError: "policy/failure",
		},
		"panic": {
			app: func(context.Context, parcel.Parcel) ([]parcel.Parcel, error) {
				panic("boom")
			},
			wantError: "safecall/panic_error",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			errorsCh := channel.NewMemory()
			h := errorBoundary(safecall.NewErrorHandler(nil, errorsCh))(tc.app)

			results, err := h.Call(context.Background(), request)
			require.NoError(t, err)
			require.Len(t, results, 1)

			failed := results[0]
			assert.True(t, failed.IsError())
			assert.Equal(t, tc.wantError, failed.Message["error"])
			assert.Equal(t, "req", failed.Headers.ParentUUID)
			assert.Equal(t, "origin", failed.Headers.OriginUUID)
			assert.Equal(t, failed.Message["uuid"], failed.Headers.UUID)
			assert.Equal(t, 1, errorsCh.Len())
		})
	}
}

func TestErrorBoundary_PassesResults(t *testing.T) {
	want := parcel.New("widget.created", nil)
	h := errorBoundary(safecall.NewErrorHandler(nil, nil))(echo(want))

	results, err := h.Call(context.Background(), parcel.New("widget.create", nil))
	require.NoError(t, err)
	assert.Equal(t, []parcel.Parcel{want}, results)
}

func TestParcelFreezer(t *testing.T) {
	var seen parcel.Parcel
	original := parcel.New("k", parcel.Message{"n": 1})

	_, err := parcelFreezer(capture(&seen)).Call(context.Background(), original)
	require.NoError(t, err)
	assert.True(t, seen.Sealed())

	original.Message["n"] = 2
	assert.Equal(t, 1, seen.Message["n"])
}

func TestPolicyChecker(t *testing.T) {
	called := false
	app := HandlerFunc(func(context.Context, parcel.Parcel) ([]parcel.Parcel, error) {
		called = true
		return nil, nil
	})

	h, err := NewBuilder(nil, nil).
		Use(PolicyCheckerMiddleware(policy.RequireKind("widget.create"))).
		Run(app).
		Build()
	require.NoError(t, err)

	_, err = h.Call(context.Background(), parcel.New("widget.delete", nil))
	assert.ErrorIs(t, err, policy.ErrPolicyFailure)
	assert.False(t, called)

	_, err = h.Call(context.Background(), parcel.New("widget.create", nil))
	require.NoError(t, err)
	assert.True(t, called)
}

func TestPolicyChecker_InsideDefaults(t *testing.T) {
	h, err := NewBuilder(nil, nil).
		UseDefaults().
		Use(PolicyCheckerMiddleware(policy.Func(func(context.Context, parcel.Parcel) error {
			return policy.Fail("closed")
		}))).
		Run(echo()).
		Build()
	require.NoError(t, err)

	results, err := h.Call(context.Background(), parcel.New("widget.create", nil))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].IsError())
	assert.Equal(t, "policy/failure", results[0].Message["error"])
}

func TestParcelTapper(t *testing.T) {
	requests := channel.NewMemory()
	responses := channel.NewMemory()
	out := []parcel.Parcel{parcel.New("a", nil), parcel.New("b", nil)}

	h, err := NewBuilder(nil, nil).Use(ParcelTapperMiddleware(requests, responses)).Run(echo(out...)).Build()
	require.NoError(t, err)

	results, err := h.Call(context.Background(), parcel.New("k", nil))
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, 1, requests.Len())
	assert.Equal(t, 2, responses.Len())
}

func TestParcelTapper_FailuresAreLogged(t *testing.T) {
	logs := watermill.NewCaptureLogger()
	failing := channel.Func(func(context.Context, parcel.Parcel) error { return errors.New("tap down") })
	out := parcel.New("a", nil)

	h, err := NewBuilder(loggingpkg.NewWatermillServiceLogger(logs), nil).
		Use(ParcelTapperMiddleware(failing, failing)).
		Run(echo(out)).
		Build()
	require.NoError(t, err)

	results, err := h.Call(context.Background(), parcel.New("k", nil))
	require.NoError(t, err)
	assert.Equal(t, []parcel.Parcel{out}, results)
	assert.Len(t, logs.Captured()[watermill.ErrorLogLevel], 2)
}

func TestTracerMiddleware(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	boom := errors.New("boom")
	h, err := NewBuilder(nil, nil).
		Use(TracerMiddleware()).
		Run(HandlerFunc(func(context.Context, parcel.Parcel) ([]parcel.Parcel, error) {
			return []parcel.Parcel{parcel.New(parcel.KindCaughtException, nil)}, boom
		})).
		Build()
	require.NoError(t, err)

	request := parcel.Parcel{Headers: parcel.Headers{Kind: "widget.create", UUID: "req"}}
	_, err = h.Call(context.Background(), request)
	assert.ErrorIs(t, err, boom)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "parcelflow.dispatch", span.Name())
	assert.Equal(t, codes.Error, span.Status().Code)
	assert.Contains(t, span.Attributes(), attribute.String("parcel.kind", "widget.create"))
	assert.Contains(t, span.Attributes(), attribute.String("parcel.uuid", "req"))
	assert.Contains(t, span.Attributes(), attribute.Int("parcel.error_events", 1))
}

func TestMetricsMiddleware(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	require.NoError(t, m.Register())

	h, err := NewBuilder(nil, nil).
		Use(MetricsMiddleware(m)).
		Run(echo(parcel.New("widget.created", nil))).
		Build()
	require.NoError(t, err)

	_, err = h.Call(context.Background(), parcel.New("widget.create", nil))
	require.NoError(t, err)

	stats := m.GetKindStats("widget.create")
	require.NotNil(t, stats)
	assert.Equal(t, uint64(1), stats.Dispatched)
	assert.Equal(t, uint64(1), stats.Responses)
}

func TestLogParcelsMiddleware(t *testing.T) {
	logs := watermill.NewCaptureLogger()

	h, err := NewBuilder(loggingpkg.NewWatermillServiceLogger(logs), nil).
		Use(LogParcelsMiddleware(nil)).
		Run(echo(parcel.New("widget.created", nil))).
		Build()
	require.NoError(t, err)

	_, err = h.Call(context.Background(), parcel.Parcel{Headers: parcel.Headers{Kind: "widget.create", UUID: "req"}})
	require.NoError(t, err)

	debug := logs.Captured()[watermill.DebugLogLevel]
	require.Len(t, debug, 2)
	assert.Equal(t, "Dispatching parcel", debug[0].Msg)
	assert.Equal(t, "Parcel dispatched", debug[1].Msg)
	assert.Equal(t, 1, debug[1].Fields["responses"])
}
