// Package channel provides the in-process transport. Publisher and
// subscriber share one gochannel instance, so a service can consume parcels
// it published itself. Used for tests and local development.
package channel

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/parcelflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "channel"

// OutputBuffer is the per-subscriber buffer of the shared pub/sub.
var OutputBuffer int64 = 64

func init() {
	Register(transport.DefaultRegistry)
}

// Register adds the transport to reg under its name and the "gochannel" alias.
func Register(reg *transport.Registry) {
	reg.Register(TransportName, Build, transport.ChannelCapabilities)
	reg.Alias("gochannel", TransportName)
}

// Build creates the in-memory pub/sub.
func Build(_ context.Context, _ transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: OutputBuffer}, logger)
	return transport.Transport{Publisher: pubSub, Subscriber: pubSub}, nil
}
