package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drblury/parcelflow/internal/runtime/channel"
	configpkg "github.com/drblury/parcelflow/internal/runtime/config"
	"github.com/drblury/parcelflow/internal/runtime/dispatch"
	errspkg "github.com/drblury/parcelflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/parcelflow/internal/runtime/logging"
	"github.com/drblury/parcelflow/internal/runtime/metrics"
	"github.com/drblury/parcelflow/internal/runtime/parcel"
	"github.com/drblury/parcelflow/internal/runtime/routing"
	"github.com/drblury/parcelflow/internal/runtime/runner"
	"github.com/drblury/parcelflow/internal/runtime/safecall"
	"github.com/drblury/parcelflow/transport"
)

// DispatchHandlerName is the router handler consuming the request topic.
const DispatchHandlerName = "parcelflow_dispatch"

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

// ServiceDependencies holds the optional collaborators of a Service.
type ServiceDependencies struct {
	// Middlewares are appended after the standard chain, innermost last.
	Middlewares []MiddlewareRegistration
	// DisableDefaultMiddlewares skips DefaultMiddlewares.
	DisableDefaultMiddlewares bool
	// TransportFactory defaults to transport.DefaultFactory.
	TransportFactory transport.Factory
	// NotFound answers parcels no registry matched.
	NotFound dispatch.NotFoundFunc
	// Registerer and Gatherer back the dispatch metrics. They default to the
	// Prometheus default registry.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// Service hosts a dispatch pipeline on a Watermill router: it consumes
// parcels from the request topic and publishes responses and caught
// exceptions to their topics.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	deps      ServiceDependencies
	transport transport.Transport
	router    *message.Router

	responses    *channel.Publisher
	errors       *channel.Publisher
	errorHandler *safecall.ErrorHandler
	direct       *runner.Direct
	deferred     *runner.Deferred
	metrics      *metrics.Metrics

	mu       sync.Mutex
	bindings []dispatch.Binding
	pipeline Handler

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex
	servers       []*http.Server
}

// NewService validates conf, builds the configured transport and prepares
// the runners. Register registries with Handle or HandleDeferred before
// calling Start.
func NewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) (*Service, error) {
	if err := configpkg.ValidateConfig(conf); err != nil {
		return nil, err
	}
	log = loggingpkg.OrNop(log)
	wmLogger := loggingpkg.NewWatermillAdapter(log)
	log.Info("Creating parcel service", loggingpkg.LogFields{
		"pubsub_system": conf.PubSubSystem,
		"config":        conf.String(),
	})

	s := &Service{Conf: conf, Logger: log, deps: deps}

	factory := deps.TransportFactory
	if factory == nil {
		factory = transport.DefaultFactory()
	}
	t, err := factory.Build(ctx, conf, wmLogger)
	if err != nil {
		return nil, err
	}
	s.transport = t

	if err := s.setupRunners(); err != nil {
		_ = t.Close()
		return nil, err
	}
	if err := s.setupMetrics(); err != nil {
		_ = t.Close()
		return nil, err
	}

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: conf.ShutdownTimeout}, wmLogger)
	if err != nil {
		_ = t.Close()
		return nil, err
	}
	router.AddPlugin(plugin.SignalsHandler)
	router.AddMiddleware(middleware.Recoverer)
	s.router = router

	return s, nil
}

func (s *Service) setupRunners() error {
	var err error
	if s.responses, err = channel.NewPublisher(s.transport.Publisher, s.Conf.ResponseTopic); err != nil {
		return err
	}
	if s.errors, err = channel.NewPublisher(s.transport.Publisher, s.Conf.ErrorTopic); err != nil {
		return err
	}
	s.errorHandler = safecall.NewErrorHandler(s.Logger, s.errors)

	s.direct, err = runner.NewDirect(runner.DirectOptions{
		ResponseChannel: s.responses,
		ErrorChannel:    s.errors,
		Logger:          s.Logger,
	})
	if err != nil {
		return err
	}

	s.deferred, err = runner.NewDeferred(s.direct, runner.DeferredOptions{
		Workers:   s.Conf.DeferredWorkers,
		QueueSize: s.Conf.DeferredQueueSize,
		Logger:    s.Logger,
	})
	return err
}

func (s *Service) setupMetrics() error {
	if !s.Conf.MetricsEnabled {
		return nil
	}

	registerer := s.deps.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	gatherer := s.deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s.metrics = metrics.New(registerer)
	if err := s.metrics.TrackQueue("deferred", s.deferred.Pending); err != nil {
		return err
	}
	if err := s.metrics.Register(); err != nil {
		return err
	}

	if s.Conf.MetricsPort > 0 {
		s.RegisterHTTPHandler(s.Conf.MetricsPort, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
		s.registerIntrospection(s.Conf.MetricsPort)
	}
	return nil
}

// Handle binds registry to the direct runner. Endpoints run inline and their
// responses are published to the response topic.
func (s *Service) Handle(registry *routing.Registry) error {
	return s.Bind(s.direct, registry)
}

// HandleDeferred binds registry to the deferred runner. Requests are
// acknowledged at once and processed by the worker pool.
func (s *Service) HandleDeferred(registry *routing.Registry) error {
	return s.Bind(s.deferred, registry)
}

// Bind adds a registry with a custom runner. Bindings are consulted in the
// order they were added.
func (s *Service) Bind(r runner.Runner, registry *routing.Registry) error {
	if registry == nil {
		return errspkg.ErrRegistryRequired
	}
	if r == nil {
		return errspkg.ErrRunnerRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pipeline != nil {
		return errspkg.ErrServiceStarted
	}
	s.bindings = append(s.bindings, dispatch.Binding{Runner: r, Registry: registry})
	return nil
}

// Pipeline returns the assembled pipeline, building it on first use. No
// bindings can be added afterwards.
func (s *Service) Pipeline() (Handler, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pipeline != nil {
		return s.pipeline, nil
	}

	d, err := dispatch.New(dispatch.Options{
		Bindings:     s.bindings,
		NotFound:     s.deps.NotFound,
		ErrorHandler: s.errorHandler,
		Logger:       s.Logger,
	})
	if err != nil {
		return nil, err
	}

	regs, err := s.middlewares()
	if err != nil {
		return nil, err
	}
	h, err := NewBuilder(s.Logger, s.errorHandler).
		Use(regs...).
		Run(d).
		Build()
	if err != nil {
		return nil, err
	}
	s.pipeline = h
	return h, nil
}

// middlewares orders the pipeline: tracing outermost, then the standard
// chain, then metrics and taps, which see the dispatcher's raw outcome.
func (s *Service) middlewares() ([]MiddlewareRegistration, error) {
	var regs []MiddlewareRegistration
	if s.Conf.TracingEnabled {
		regs = append(regs, TracerMiddleware())
	}
	if !s.deps.DisableDefaultMiddlewares {
		regs = append(regs, DefaultMiddlewares()...)
	}
	if s.metrics != nil {
		regs = append(regs, MetricsMiddleware(s.metrics))
	}
	tap, err := s.tapMiddleware()
	if err != nil {
		return nil, err
	}
	if tap != nil {
		regs = append(regs, *tap)
	}
	return append(regs, s.deps.Middlewares...), nil
}

func (s *Service) tapMiddleware() (*MiddlewareRegistration, error) {
	if s.Conf.RequestTapTopic == "" && s.Conf.ResponseTapTopic == "" {
		return nil, nil
	}
	requests, err := s.tapChannel(s.Conf.RequestTapTopic)
	if err != nil {
		return nil, fmt.Errorf("request tap: %w", err)
	}
	responses, err := s.tapChannel(s.Conf.ResponseTapTopic)
	if err != nil {
		return nil, fmt.Errorf("response tap: %w", err)
	}
	reg := ParcelTapperMiddleware(requests, responses)
	return &reg, nil
}

// tapChannel returns a nil Channel, not a typed-nil publisher, when topic is
// empty.
func (s *Service) tapChannel(topic string) (channel.Channel, error) {
	if topic == "" {
		return nil, nil
	}
	pub, err := channel.NewPublisher(s.transport.Publisher, topic)
	if err != nil {
		return nil, err
	}
	return pub, nil
}

// Dispatch runs p through the pipeline without going through the transport.
func (s *Service) Dispatch(ctx context.Context, p parcel.Parcel) ([]parcel.Parcel, error) {
	h, err := s.Pipeline()
	if err != nil {
		return nil, err
	}
	return h.Call(ctx, p)
}

// Publish sends p to the request topic.
func (s *Service) Publish(ctx context.Context, p parcel.Parcel) error {
	requests, err := channel.NewPublisher(s.transport.Publisher, s.Conf.ConsumeTopic)
	if err != nil {
		return err
	}
	return requests.Publish(ctx, p)
}

// Subscriber exposes the transport's subscriber, for example to consume
// the response topic in tests.
func (s *Service) Subscriber() message.Subscriber {
	return s.transport.Subscriber
}

// Metrics returns the dispatch metrics, or nil when disabled.
func (s *Service) Metrics() *metrics.Metrics {
	return s.metrics
}

// Capabilities returns the capabilities of the configured transport.
func (s *Service) Capabilities() transport.Capabilities {
	return s.transport.Capabilities
}

// Start consumes the request topic until ctx is cancelled, then drains the
// deferred pool and closes the transport.
func (s *Service) Start(ctx context.Context) error {
	if _, err := s.Pipeline(); err != nil {
		return err
	}

	s.router.AddNoPublisherHandler(
		DispatchHandlerName,
		s.Conf.ConsumeTopic,
		s.transport.Subscriber,
		s.handleMessage,
	)

	s.startHTTPServers()
	runErr := routerRun(s.router, ctx)
	return errors.Join(runErr, s.shutdown())
}

// Running is closed once the router is consuming.
func (s *Service) Running() chan struct{} {
	return s.router.Running()
}

func (s *Service) handleMessage(msg *message.Message) error {
	ctx := msg.Context()

	p, err := parcel.FromWatermill(msg)
	if err != nil {
		s.errorHandler.Handle(ctx, string(msg.Payload), fmt.Errorf("decode parcel %s: %w", msg.UUID, err))
		return nil
	}

	results, err := s.pipeline.Call(ctx, p)
	if err != nil {
		if isLibraryFault(err) {
			s.Logger.Error("Dispatcher fault", err, loggingpkg.LogFields{"message_uuid": msg.UUID})
		}
		s.errorHandler.Handle(ctx, p, err)
		return nil
	}

	s.Logger.Debug("Parcel handled", loggingpkg.LogFields{
		"message_uuid": msg.UUID,
		"kind":         p.Kind(),
		"responses":    len(results),
	})
	return nil
}

func (s *Service) shutdown() error {
	timeout := s.Conf.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	errs := []error{s.deferred.Close(ctx)}
	errs = append(errs, s.stopHTTPServers(ctx))
	errs = append(errs, s.transport.Close())
	return errors.Join(errs...)
}

// RegisterHTTPHandler serves handler under pattern on port once the service
// starts. Handlers sharing a port share one server.
func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (s *Service) startHTTPServers() {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	for port, mux := range s.httpServers {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		s.servers = append(s.servers, srv)
		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": srv.Addr})
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.Logger.Error("HTTP server failed", err, loggingpkg.LogFields{"address": srv.Addr})
			}
		}()
	}
}

func (s *Service) stopHTTPServers(ctx context.Context) error {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	var errs []error
	for _, srv := range s.servers {
		errs = append(errs, srv.Shutdown(ctx))
	}
	s.servers = nil
	return errors.Join(errs...)
}
