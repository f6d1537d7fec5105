// Package transport builds the Watermill publisher and subscriber pair a
// parcelflow Service consumes requests from and publishes parcels to. Each
// backend lives in its own sub-package and registers itself by name.
package transport

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Transport combines a publisher and subscriber pair produced by a builder.
type Transport struct {
	Publisher    message.Publisher
	Subscriber   message.Subscriber
	Capabilities Capabilities
}

// Close closes the subscriber and then the publisher. When both share one
// value it is closed once.
func (t Transport) Close() error {
	var errs []error
	if t.Subscriber != nil {
		errs = append(errs, t.Subscriber.Close())
	}
	if t.Publisher != nil {
		if sub, ok := t.Publisher.(message.Subscriber); !ok || sub != t.Subscriber {
			errs = append(errs, t.Publisher.Close())
		}
	}
	return errors.Join(errs...)
}

// Builder creates a transport from config.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config provides the values transports read. It lets transport packages
// stay independent from the full configuration package.
type Config interface {
	// GetPubSubSystem returns the transport name.
	GetPubSubSystem() string

	// Kafka
	GetKafkaBrokers() []string
	GetKafkaClientID() string
	GetKafkaConsumerGroup() string

	// RabbitMQ
	GetRabbitMQURL() string
	GetRabbitMQQueueSuffix() string

	// NATS
	GetNATSURL() string
	GetNATSQueueGroup() string

	// HTTP
	GetHTTPServerAddress() string
	GetHTTPPublisherURL() string

	// AWS
	GetAWSRegion() string
	GetAWSAccountID() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string
}
