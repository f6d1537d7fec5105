// Package channel defines the publish-only collaborators that receive
// response, error, request and response-tap parcels.
package channel

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/parcelflow/internal/runtime/errors"
	"github.com/drblury/parcelflow/internal/runtime/parcel"
)

// Channel receives parcels. Implementations must be safe for concurrent use.
type Channel interface {
	Publish(ctx context.Context, p parcel.Parcel) error
}

// Func adapts a function to the Channel interface.
type Func func(ctx context.Context, p parcel.Parcel) error

// Publish calls f.
func (f Func) Publish(ctx context.Context, p parcel.Parcel) error {
	return f(ctx, p)
}

type nullChannel struct{}

func (nullChannel) Publish(context.Context, parcel.Parcel) error { return nil }

// Null returns a channel that silently absorbs every parcel.
func Null() Channel {
	return nullChannel{}
}

// OrNull returns ch, or the null channel when ch is nil.
func OrNull(ch Channel) Channel {
	if ch == nil {
		return Null()
	}
	return ch
}

// Publisher forwards parcels to a Watermill publisher topic.
type Publisher struct {
	publisher message.Publisher
	topic     string
}

// NewPublisher returns a channel that encodes parcels as Watermill messages
// and publishes them to topic.
func NewPublisher(publisher message.Publisher, topic string) (*Publisher, error) {
	if publisher == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if topic == "" {
		return nil, errspkg.ErrTopicRequired
	}
	return &Publisher{publisher: publisher, topic: topic}, nil
}

// Publish encodes p and publishes it.
func (c *Publisher) Publish(ctx context.Context, p parcel.Parcel) error {
	msg, err := parcel.ToWatermill(p)
	if err != nil {
		return err
	}
	if ctx != nil {
		msg.SetContext(ctx)
	}
	return c.publisher.Publish(c.topic, msg)
}

// Topic returns the destination topic.
func (c *Publisher) Topic() string {
	return c.topic
}

// Memory collects published parcels in memory.
type Memory struct {
	mu      sync.Mutex
	parcels []parcel.Parcel
}

// NewMemory returns an empty in-memory channel.
func NewMemory() *Memory {
	return &Memory{}
}

// Publish appends p.
func (m *Memory) Publish(_ context.Context, p parcel.Parcel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parcels = append(m.parcels, p)
	return nil
}

// Parcels returns a snapshot of everything published so far.
func (m *Memory) Parcels() []parcel.Parcel {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]parcel.Parcel, len(m.parcels))
	copy(out, m.parcels)
	return out
}

// Len returns the number of published parcels.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.parcels)
}
