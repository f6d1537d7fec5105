// Package http provides the webhook transport. Parcels are consumed from POST
// requests on the server address and published as POSTs to
// <publisher URL>/<topic>.
package http

import (
	"context"
	nethttp "net/http"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/parcelflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "http"

// PublisherFactory creates the HTTP publisher.
var PublisherFactory = func(config http.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return http.NewPublisher(config, logger)
}

// SubscriberFactory creates the HTTP subscriber listening on addr.
var SubscriberFactory = func(addr string, config http.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return http.NewSubscriber(addr, config, logger)
}

// StartServer serves the subscriber's endpoints. It runs in its own goroutine.
var StartServer = func(sub message.Subscriber, logger watermill.LoggerAdapter) {
	s, ok := sub.(*http.Subscriber)
	if !ok {
		return
	}
	if err := s.StartHTTPServer(); err != nil && err != nethttp.ErrServerClosed {
		logger.Error("HTTP subscriber server stopped", err, nil)
	}
}

func init() {
	Register(transport.DefaultRegistry)
}

// Register adds the transport to reg.
func Register(reg *transport.Registry) {
	reg.Register(TransportName, Build, transport.HTTPCapabilities)
}

// Build creates the publisher and starts the subscriber's server.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	base := cfg.GetHTTPPublisherURL()

	publisher, err := PublisherFactory(http.PublisherConfig{
		MarshalMessageFunc: func(topic string, msg *message.Message) (*nethttp.Request, error) {
			return http.DefaultMarshalMessageFunc(TopicURL(base, topic), msg)
		},
	}, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(cfg.GetHTTPServerAddress(), http.SubscriberConfig{
		UnmarshalMessageFunc: http.DefaultUnmarshalMessageFunc,
	}, logger)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, err
	}

	go StartServer(subscriber, logger)

	return transport.Transport{Publisher: publisher, Subscriber: subscriber}, nil
}

// TopicURL joins the publisher base URL and a topic with exactly one slash.
func TopicURL(base, topic string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(topic, "/")
}
