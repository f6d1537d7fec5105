package runner

import (
	"context"

	"github.com/drblury/parcelflow/internal/runtime/channel"
	errspkg "github.com/drblury/parcelflow/internal/runtime/errors"
	"github.com/drblury/parcelflow/internal/runtime/logging"
	"github.com/drblury/parcelflow/internal/runtime/parcel"
	"github.com/drblury/parcelflow/internal/runtime/routing"
	"github.com/drblury/parcelflow/internal/runtime/safecall"
)

// DirectOptions configures a Direct runner.
type DirectOptions struct {
	// ResponseChannel receives every successful response parcel. Required.
	ResponseChannel channel.Channel
	// ErrorChannel receives caught-exception events. Required.
	ErrorChannel channel.Channel
	Logger       logging.ServiceLogger
}

// Direct runs endpoints inline, in order, on the calling goroutine.
type Direct struct {
	responses channel.Channel
	errors    *safecall.ErrorHandler
	logger    logging.ServiceLogger
}

// NewDirect validates opts and returns a Direct runner.
func NewDirect(opts DirectOptions) (*Direct, error) {
	if opts.ResponseChannel == nil {
		return nil, errspkg.ErrResponseChannelRequired
	}
	if opts.ErrorChannel == nil {
		return nil, errspkg.ErrErrorChannelRequired
	}
	logger := logging.OrNop(opts.Logger)
	return &Direct{
		responses: opts.ResponseChannel,
		errors:    safecall.NewErrorHandler(logger, opts.ErrorChannel),
		logger:    logger,
	}, nil
}

// Run invokes each endpoint under error handling. Successful responses are
// published to the response channel and returned; a faulting endpoint
// contributes one error parcel, which is returned but not published as a
// response.
func (d *Direct) Run(ctx context.Context, endpoints []routing.Endpoint, p parcel.Parcel) ([]parcel.Parcel, error) {
	var results []parcel.Parcel
	for _, ep := range endpoints {
		responses, event := safecall.WithErrorHandling(ctx, d.errors, p, func() ([]parcel.Parcel, error) {
			out, err := ep.Invoke(ctx, p)
			if err != nil {
				return nil, err
			}
			return Responses(p, out)
		})
		if event != nil {
			results = append(results, event.Parcel())
			continue
		}

		for _, response := range responses {
			d.publish(ctx, response)
		}
		results = append(results, responses...)

		d.logger.Debug("Endpoint completed", logging.LogFields{
			"endpoint":  ep.Label(),
			"kind":      p.Kind(),
			"uuid":      p.Headers.UUID,
			"responses": len(responses),
		})
	}
	return results, nil
}

func (d *Direct) publish(ctx context.Context, response parcel.Parcel) {
	if err := safecall.Do(func() error {
		return d.responses.Publish(ctx, response)
	}); err != nil {
		d.errors.Handle(ctx, response, err)
	}
}
