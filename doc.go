// Package parcelflow dispatches parcels, immutable message envelopes with
// causality headers, to the endpoints whose matchers select them. It sits on
// top of Watermill: a Service reads the target transport (Kafka, RabbitMQ,
// AWS SNS/SQS, NATS, HTTP or Go Channels) from Config, consumes parcels from
// one topic, and publishes responses and caught exceptions to two others.
//
// A minimal setup builds a Registry, binds it to a Service with Handle or
// HandleDeferred, and calls Start. Dispatch runs the same pipeline in-process
// without a broker, which is what most tests want.
//
// # Routing
//
// Registries map matchers to endpoints. Exact kinds are looked up first, then
// patterns (Prefix, Regexp, MatcherFunc) in registration order. Every
// endpoint carries a handler, an action name, a parser that turns the parcel
// into the action input, and an optional policy chain.
//
// # Runners
//
// Direct runs matched endpoints inline and publishes each response with its
// causality headers filled in. Deferred acknowledges the request with a
// MessageAcceptedEvent and runs the endpoints on a bounded worker pool.
//
// # Middleware
//
// The default pipeline times the request, normalises it, tags it with a
// coded UUID, converts faults into CaughtExceptionEvent responses and seals
// the parcel. Tracing, Prometheus metrics, parcel taps and Hooks can be
// layered on through ServiceDependencies.Middlewares or the matching Config
// switches.
//
// # Transports
//
// Transports register themselves with DefaultTransportRegistry from their
// init functions. Import github.com/drblury/parcelflow/transport/transports
// to make every built-in backend available, or import single backends to
// keep the binary small.
package parcelflow
