package runner

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	errspkg "github.com/drblury/parcelflow/internal/runtime/errors"
	"github.com/drblury/parcelflow/internal/runtime/events"
	"github.com/drblury/parcelflow/internal/runtime/logging"
	"github.com/drblury/parcelflow/internal/runtime/parcel"
	"github.com/drblury/parcelflow/internal/runtime/routing"
	"github.com/drblury/parcelflow/internal/runtime/safecall"
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 256
)

// DeferredOptions configures a Deferred runner.
type DeferredOptions struct {
	// Workers is the number of background goroutines. Defaults to 4.
	Workers int
	// QueueSize bounds the number of pending tasks. Defaults to 256.
	QueueSize int
	Logger    logging.ServiceLogger
}

type task struct {
	ctx      context.Context
	endpoint routing.Endpoint
	parcel   parcel.Parcel
}

// Deferred hands each endpoint to a bounded worker pool and acknowledges the
// request immediately. Background faults are logged and never reach the
// caller.
type Deferred struct {
	inner  Runner
	logger logging.ServiceLogger
	tasks  chan task
	group  *errgroup.Group

	mu     sync.RWMutex
	closed bool

	// enqueue serialises batch reservations so a batch is queued whole or
	// not at all.
	enqueue sync.Mutex
}

// NewDeferred starts the worker pool. Each task is executed by inner with a
// single endpoint. Deferred publishes nothing itself: responses and caught
// exceptions go wherever inner sends them, so inner must be built with its
// channels (NewDirect rejects missing ones).
func NewDeferred(inner Runner, opts DeferredOptions) (*Deferred, error) {
	if inner == nil {
		return nil, errspkg.ErrRunnerRequired
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	d := &Deferred{
		inner:  inner,
		logger: logging.OrNop(opts.Logger),
		tasks:  make(chan task, queueSize),
		group:  new(errgroup.Group),
	}
	for range workers {
		d.group.Go(d.work)
	}
	return d, nil
}

// Run enqueues one task per endpoint and returns a single message-accepted
// parcel for p. The batch is queued whole or not at all: it fails with
// ErrQueueFull when the queue cannot hold every endpoint, and with
// ErrRunnerClosed after Close.
func (d *Deferred) Run(ctx context.Context, endpoints []routing.Endpoint, p parcel.Parcel) ([]parcel.Parcel, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, errspkg.ErrRunnerClosed
	}

	d.enqueue.Lock()
	defer d.enqueue.Unlock()
	// Workers only drain the queue, so free capacity can only grow until
	// the batch is sent.
	if cap(d.tasks)-len(d.tasks) < len(endpoints) {
		return nil, errspkg.ErrQueueFull
	}

	background := context.WithoutCancel(ctx)
	for _, ep := range endpoints {
		d.tasks <- task{ctx: background, endpoint: ep, parcel: p}
	}
	return []parcel.Parcel{events.NewMessageAcceptedEvent(p).Parcel()}, nil
}

// Pending returns the number of queued tasks.
func (d *Deferred) Pending() int {
	return len(d.tasks)
}

// Close stops accepting work and waits for queued tasks to finish or for ctx
// to expire.
func (d *Deferred) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.tasks)
	}
	d.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- d.group.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Deferred) work() error {
	for t := range d.tasks {
		d.execute(t)
	}
	return nil
}

func (d *Deferred) execute(t task) {
	fields := logging.LogFields{
		"endpoint": t.endpoint.Label(),
		"kind":     t.parcel.Kind(),
		"uuid":     t.parcel.Headers.UUID,
	}
	results, err := safecall.Call(func() ([]parcel.Parcel, error) {
		return d.inner.Run(t.ctx, []routing.Endpoint{t.endpoint}, t.parcel)
	})
	if err != nil {
		d.logger.Error("Deferred task failed", err, fields)
		return
	}
	for _, result := range results {
		if result.IsError() {
			d.logger.Error("Deferred task produced an error event", nil, logging.LogFields{
				"endpoint":   t.endpoint.Label(),
				"uuid":       t.parcel.Headers.UUID,
				"event_uuid": result.Headers.UUID,
			})
		}
	}
	d.logger.Debug("Deferred task completed", fields)
}
