// Package nats provides the NATS Core transport. Instances sharing a queue
// group split the request load between them.
package nats

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"

	"github.com/drblury/parcelflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "nats"

// ConnectionName identifies parcelflow connections on the NATS server.
var ConnectionName = "parcelflow"

// PublisherFactory creates the NATS publisher.
var PublisherFactory = func(cfg nats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return nats.NewPublisher(cfg, logger)
}

// SubscriberFactory creates the NATS subscriber.
var SubscriberFactory = func(cfg nats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return nats.NewSubscriber(cfg, logger)
}

func init() {
	Register(transport.DefaultRegistry)
}

// Register adds the transport to reg.
func Register(reg *transport.Registry) {
	reg.Register(TransportName, Build, transport.NATSCapabilities)
}

// Build connects a publisher and a queue-group subscriber to the NATS URL.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	url := cfg.GetNATSURL()
	marshaler := &nats.NATSMarshaler{}
	options := connectOptions()
	core := nats.JetStreamConfig{Disabled: true}

	publisher, err := PublisherFactory(nats.PublisherConfig{
		URL:         url,
		NatsOptions: options,
		Marshaler:   marshaler,
		JetStream:   core,
	}, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(nats.SubscriberConfig{
		URL:              url,
		QueueGroupPrefix: cfg.GetNATSQueueGroup(),
		NatsOptions:      options,
		Unmarshaler:      marshaler,
		JetStream:        core,
	}, logger)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, err
	}

	return transport.Transport{Publisher: publisher, Subscriber: subscriber}, nil
}

func connectOptions() []natsgo.Option {
	return []natsgo.Option{
		natsgo.Name(ConnectionName),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
	}
}
