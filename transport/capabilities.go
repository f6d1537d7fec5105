package transport

// Capabilities describes the delivery guarantees of a transport backend.
type Capabilities struct {
	// Name is the registered transport name.
	Name string

	// SupportsOrdering indicates messages of one topic are delivered in order.
	SupportsOrdering bool
	// SupportsAck indicates explicit acknowledgement.
	SupportsAck bool
	// SupportsNack indicates negative acknowledgement triggers redelivery.
	SupportsNack bool
	// SupportsTracing indicates metadata, and therefore trace headers, survive
	// the round trip.
	SupportsTracing bool
	// Durable indicates messages survive a restart of the consumer.
	Durable bool

	// MaxMessageSize is the largest payload in bytes (0 = unlimited/unknown).
	MaxMessageSize int64
}

// SupportsReliableDelivery reports at-least-once semantics (ack + nack).
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

// Fits reports whether a payload of size bytes can be published.
func (c Capabilities) Fits(size int) bool {
	return c.MaxMessageSize <= 0 || int64(size) <= c.MaxMessageSize
}

// Capability sets of the built-in transports.
var (
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
		SupportsTracing:  true,
	}

	KafkaCapabilities = Capabilities{
		Name:             "kafka",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsTracing:  true,
		Durable:          true,
		MaxMessageSize:   1 << 20,
	}

	RabbitMQCapabilities = Capabilities{
		Name:             "rabbitmq",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
		SupportsTracing:  true,
		Durable:          true,
		MaxMessageSize:   128 << 20,
	}

	NATSCapabilities = Capabilities{
		Name:            "nats",
		SupportsTracing: true,
		MaxMessageSize:  1 << 20,
	}

	HTTPCapabilities = Capabilities{
		Name:            "http",
		SupportsTracing: true,
	}

	AWSCapabilities = Capabilities{
		Name:            "aws",
		SupportsAck:     true,
		SupportsNack:    true,
		SupportsTracing: true,
		Durable:         true,
		MaxMessageSize:  256 << 10,
	}
)
