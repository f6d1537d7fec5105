package parcelflow

import (
	"context"

	runtimepkg "github.com/drblury/parcelflow/internal/runtime"
	channelpkg "github.com/drblury/parcelflow/internal/runtime/channel"
	configpkg "github.com/drblury/parcelflow/internal/runtime/config"
	dispatchpkg "github.com/drblury/parcelflow/internal/runtime/dispatch"
	errspkg "github.com/drblury/parcelflow/internal/runtime/errors"
	eventspkg "github.com/drblury/parcelflow/internal/runtime/events"
	idspkg "github.com/drblury/parcelflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/parcelflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/parcelflow/internal/runtime/logging"
	metricspkg "github.com/drblury/parcelflow/internal/runtime/metrics"
	parcelpkg "github.com/drblury/parcelflow/internal/runtime/parcel"
	policypkg "github.com/drblury/parcelflow/internal/runtime/policy"
	routingpkg "github.com/drblury/parcelflow/internal/runtime/routing"
	runnerpkg "github.com/drblury/parcelflow/internal/runtime/runner"
	safecallpkg "github.com/drblury/parcelflow/internal/runtime/safecall"
	transportpkg "github.com/drblury/parcelflow/transport"
)

type (
	Config              = configpkg.Config
	Service             = runtimepkg.Service
	ServiceDependencies = runtimepkg.ServiceDependencies
	BindingInfo         = runtimepkg.BindingInfo

	Parcel        = parcelpkg.Parcel
	Headers       = parcelpkg.Headers
	Message       = parcelpkg.Message
	Causality     = parcelpkg.Causality
	ParcelFactory = parcelpkg.Factory
	CreateOptions = parcelpkg.CreateOptions

	Registry    = routingpkg.Registry
	Endpoint    = routingpkg.Endpoint
	Action      = routingpkg.Action
	Actions     = routingpkg.Actions
	Matcher     = routingpkg.Matcher
	MatcherFunc = routingpkg.MatcherFunc
	Kind        = routingpkg.Kind
	Prefix      = routingpkg.Prefix
	Regexp      = routingpkg.Regexp
	Parser      = routingpkg.Parser
	ParserFunc  = routingpkg.ParserFunc

	// EndpointHandler supplies the actions an Endpoint can run.
	EndpointHandler = routingpkg.Handler
	// EndpointFunc is a single-action EndpointHandler.
	EndpointFunc = routingpkg.HandlerFunc

	Policy        = policypkg.Policy
	PolicyFunc    = policypkg.Func
	PolicyChain   = policypkg.Chain
	PolicyFailure = policypkg.Failure

	Runner          = runnerpkg.Runner
	RunnerFunc      = runnerpkg.Func
	Direct          = runnerpkg.Direct
	DirectOptions   = runnerpkg.DirectOptions
	Deferred        = runnerpkg.Deferred
	DeferredOptions = runnerpkg.DeferredOptions

	Dispatcher      = dispatchpkg.Dispatcher
	DispatchOptions = dispatchpkg.Options
	Binding         = dispatchpkg.Binding
	NotFoundFunc    = dispatchpkg.NotFoundFunc

	Channel        = channelpkg.Channel
	ChannelFunc    = channelpkg.Func
	MemoryChannel  = channelpkg.Memory
	TopicPublisher = channelpkg.Publisher

	ErrorHandler         = safecallpkg.ErrorHandler
	PanicError           = safecallpkg.PanicError
	CaughtExceptionEvent = eventspkg.CaughtExceptionEvent
	MessageAcceptedEvent = eventspkg.MessageAcceptedEvent
	NotFoundError        = errspkg.NotFoundError
	LibraryError         = errspkg.LibraryError

	// Pipeline middleware
	Handler                = runtimepkg.Handler
	HandlerFunc            = runtimepkg.HandlerFunc
	Middleware             = runtimepkg.Middleware
	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration
	PipelineBuilder        = runtimepkg.Builder

	// Parcel lifecycle hooks
	ParcelContext = runtimepkg.ParcelContext
	Hooks         = runtimepkg.Hooks

	Metrics         = metricspkg.Metrics
	MetricsSnapshot = metricspkg.Snapshot
	KindStats       = metricspkg.KindStats

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	Transport             = transportpkg.Transport
	TransportBuilder      = transportpkg.Builder
	TransportConfig       = transportpkg.Config
	TransportRegistry     = transportpkg.Registry
	TransportFactory      = transportpkg.Factory
	TransportCapabilities = transportpkg.Capabilities
)

var (
	FromEnv         = configpkg.FromEnv
	FromEnvironment = configpkg.FromEnvironment
	ValidateConfig  = configpkg.ValidateConfig
	NewService      = runtimepkg.NewService

	NewParcel        = parcelpkg.New
	NewParcelFactory = parcelpkg.NewFactory
	NewCausality     = parcelpkg.NewCausality
	Tag              = parcelpkg.Tag
	Derive           = parcelpkg.Derive
	Stamp            = parcelpkg.Stamp
	Normalize        = parcelpkg.Normalize
	FromWatermill    = parcelpkg.FromWatermill
	ToWatermill      = parcelpkg.ToWatermill

	NewRegistry   = routingpkg.NewRegistry
	NewRegexp     = routingpkg.NewRegexp
	MustRegexp    = routingpkg.MustRegexp
	MessageParser = routingpkg.MessageParser
	ParcelParser  = routingpkg.ParcelParser
	ProtoParser   = routingpkg.ProtoParser

	ErrPolicyFailure   = policypkg.ErrPolicyFailure
	Fail               = policypkg.Fail
	Failf              = policypkg.Failf
	CheckAll           = policypkg.CheckAll
	RequireKind        = policypkg.RequireKind
	RequireMessageKeys = policypkg.RequireMessageKeys

	NewDirect       = runnerpkg.NewDirect
	NewDeferred     = runnerpkg.NewDeferred
	Responses       = runnerpkg.Responses
	NewDispatcher   = dispatchpkg.New
	DefaultNotFound = dispatchpkg.DefaultNotFound

	NullChannel       = channelpkg.Null
	NewMemoryChannel  = channelpkg.NewMemory
	NewTopicPublisher = channelpkg.NewPublisher

	NewErrorHandler         = safecallpkg.NewErrorHandler
	NewCaughtExceptionEvent = safecallpkg.NewCaughtExceptionEvent
	NewMessageAcceptedEvent = eventspkg.NewMessageAcceptedEvent
	Classify                = safecallpkg.Classify
	SafeDo                  = safecallpkg.Do
	IsLibraryError          = errspkg.IsLibraryError

	NewPipelineBuilder      = runtimepkg.NewBuilder
	DefaultMiddlewares      = runtimepkg.DefaultMiddlewares
	RequestTimerMiddleware  = runtimepkg.RequestTimerMiddleware
	ParcelMasherMiddleware  = runtimepkg.ParcelMasherMiddleware
	UUIDTaggerMiddleware    = runtimepkg.UUIDTaggerMiddleware
	ErrorBoundaryMiddleware = runtimepkg.ErrorBoundaryMiddleware
	ParcelFreezerMiddleware = runtimepkg.ParcelFreezerMiddleware
	PolicyCheckerMiddleware = runtimepkg.PolicyCheckerMiddleware
	ParcelTapperMiddleware  = runtimepkg.ParcelTapperMiddleware
	TracerMiddleware        = runtimepkg.TracerMiddleware
	MetricsMiddleware       = runtimepkg.MetricsMiddleware
	LogParcelsMiddleware    = runtimepkg.LogParcelsMiddleware

	HooksMiddleware = runtimepkg.HooksMiddleware
	LoggingHooks    = runtimepkg.LoggingHooks
	CounterHooks    = runtimepkg.CounterHooks
	AlertingHooks   = runtimepkg.AlertingHooks

	NewMetrics = metricspkg.New

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NewWatermillAdapter       = loggingpkg.NewWatermillAdapter
	NopLogger                 = loggingpkg.NopLogger

	DefaultTransportRegistry = transportpkg.DefaultRegistry
	NewTransportRegistry     = transportpkg.NewRegistry
	RegisterTransport        = transportpkg.Register
	BuildTransport           = transportpkg.Build
	GetCapabilities          = transportpkg.GetCapabilities
	StaticTransport          = transportpkg.Static

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	CreateULID       = idspkg.CreateULID
	CreateCodedUUID  = idspkg.CreateCodedUUID
	CodedTime        = idspkg.CodedTime
	CompareCodedUUID = idspkg.Compare

	ErrHandlerRequired         = errspkg.ErrHandlerRequired
	ErrActionRequired          = errspkg.ErrActionRequired
	ErrMatcherRequired         = errspkg.ErrMatcherRequired
	ErrRegistryRequired        = errspkg.ErrRegistryRequired
	ErrRunnerRequired          = errspkg.ErrRunnerRequired
	ErrResponseChannelRequired = errspkg.ErrResponseChannelRequired
	ErrErrorChannelRequired    = errspkg.ErrErrorChannelRequired
	ErrPublisherRequired       = errspkg.ErrPublisherRequired
	ErrTopicRequired           = errspkg.ErrTopicRequired
	ErrConfigRequired          = errspkg.ErrConfigRequired
	ErrQueueFull               = errspkg.ErrQueueFull
	ErrRunnerClosed            = errspkg.ErrRunnerClosed
	ErrNotFound                = errspkg.ErrNotFound
	ErrServiceStarted          = errspkg.ErrServiceStarted
)

const (
	DefaultAction        = routingpkg.DefaultAction
	DefaultTransportName = transportpkg.DefaultTransportName
)

// Typed adapts fn into an Action that asserts its input to T.
func Typed[T any](fn func(ctx context.Context, input T) (any, error)) Action {
	return routingpkg.Typed(fn)
}

// JSONParser decodes the parcel message into a fresh *T.
func JSONParser[T any]() Parser {
	return routingpkg.JSONParser[T]()
}
