/*
Package runtime hosts the parcel dispatch pipeline.

# Pipeline

A pipeline is a chain of Middleware around a terminal Handler, usually a
dispatch.Dispatcher. Builder assembles it; the first registration is the
outermost stage:

	h, err := runtime.NewBuilder(logger, errorHandler).
		UseDefaults().
		Use(runtime.PolicyCheckerMiddleware(policy.RequireMessageKeys("id"))).
		Run(dispatcher).
		Build()

DefaultMiddlewares times the request, fills in missing headers and message,
tags causality ids, turns any fault into a caught-exception parcel and seals
the parcel before it reaches the dispatcher. Optional stages add request and
response taps, OpenTelemetry spans, Prometheus metrics, parcel logging and
lifecycle hooks.

# Service

Service binds a pipeline to a Watermill router. It consumes parcels from the
request topic, publishes endpoint responses to the response topic and caught
exceptions to the error topic. Registries are bound either to the direct
runner, which answers inline, or to the deferred runner, which acknowledges
at once and works through a bounded pool:

	svc, err := runtime.NewService(conf, logger, ctx, runtime.ServiceDependencies{})
	svc.Handle(commands)
	svc.HandleDeferred(jobs)
	err = svc.Start(ctx)

# Sub-packages

  - ids: time-ordered coded uuids
  - parcel: parcels, causality and the Watermill codec
  - safecall: protected calls and caught-exception reporting
  - events: runtime-generated event records
  - channel: publish targets for responses, errors and taps
  - policy: request gates
  - routing: matchers, endpoints, parsers and registries
  - runner: direct and deferred execution
  - dispatch: the dispatcher
  - metrics, config, logging, jsoncodec, errors: supporting infrastructure
*/
package runtime
