// Package transporttest holds helpers for testing transport builders and the
// code that consumes them.
package transporttest

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Config is a settable implementation of transport.Config.
type Config struct {
	PubSubSystem string

	KafkaBrokers       []string
	KafkaClientID      string
	KafkaConsumerGroup string

	RabbitMQURL         string
	RabbitMQQueueSuffix string

	NATSURL        string
	NATSQueueGroup string

	HTTPServerAddress string
	HTTPPublisherURL  string

	AWSRegion          string
	AWSAccountID       string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSEndpoint        string
}

func (c *Config) GetPubSubSystem() string        { return c.PubSubSystem }
func (c *Config) GetKafkaBrokers() []string      { return c.KafkaBrokers }
func (c *Config) GetKafkaClientID() string       { return c.KafkaClientID }
func (c *Config) GetKafkaConsumerGroup() string  { return c.KafkaConsumerGroup }
func (c *Config) GetRabbitMQURL() string         { return c.RabbitMQURL }
func (c *Config) GetRabbitMQQueueSuffix() string { return c.RabbitMQQueueSuffix }
func (c *Config) GetNATSURL() string             { return c.NATSURL }
func (c *Config) GetNATSQueueGroup() string      { return c.NATSQueueGroup }
func (c *Config) GetHTTPServerAddress() string   { return c.HTTPServerAddress }
func (c *Config) GetHTTPPublisherURL() string    { return c.HTTPPublisherURL }
func (c *Config) GetAWSRegion() string           { return c.AWSRegion }
func (c *Config) GetAWSAccountID() string        { return c.AWSAccountID }
func (c *Config) GetAWSAccessKeyID() string      { return c.AWSAccessKeyID }
func (c *Config) GetAWSSecretAccessKey() string  { return c.AWSSecretAccessKey }
func (c *Config) GetAWSEndpoint() string         { return c.AWSEndpoint }

// Publisher records every published message per topic.
type Publisher struct {
	mu       sync.Mutex
	messages map[string][]*message.Message
	closed   bool

	// Err, when set, is returned from Publish.
	Err error
}

// Publish records messages under topic.
func (p *Publisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	if p.messages == nil {
		p.messages = make(map[string][]*message.Message)
	}
	p.messages[topic] = append(p.messages[topic], messages...)
	return nil
}

// Messages returns the messages published to topic.
func (p *Publisher) Messages(topic string) []*message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*message.Message(nil), p.messages[topic]...)
}

// Close marks the publisher closed.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Closed reports whether Close was called.
func (p *Publisher) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Subscriber returns closed channels.
type Subscriber struct {
	mu     sync.Mutex
	closed bool
}

// Subscribe returns an already closed channel.
func (s *Subscriber) Subscribe(context.Context, string) (<-chan *message.Message, error) {
	ch := make(chan *message.Message)
	close(ch)
	return ch, nil
}

// Close marks the subscriber closed.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Subscriber) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
