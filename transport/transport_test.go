package transport_test

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/parcelflow/transport"
	"github.com/drblury/parcelflow/transport/transporttest"
)

func TestTransport_CloseClosesBoth(t *testing.T) {
	pub := &transporttest.Publisher{}
	sub := &transporttest.Subscriber{}

	require.NoError(t, transport.Transport{Publisher: pub, Subscriber: sub}.Close())
	assert.True(t, pub.Closed())
	assert.True(t, sub.Closed())
}

func TestTransport_CloseSharedPubSubOnce(t *testing.T) {
	ps := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})

	require.NoError(t, transport.Transport{Publisher: ps, Subscriber: ps}.Close())
}

func TestTransport_CloseEmpty(t *testing.T) {
	assert.NoError(t, transport.Transport{}.Close())
}

func TestCapabilities(t *testing.T) {
	assert.True(t, transport.ChannelCapabilities.SupportsReliableDelivery())
	assert.False(t, transport.KafkaCapabilities.SupportsReliableDelivery())

	assert.True(t, transport.HTTPCapabilities.Fits(10<<20))
	assert.True(t, transport.AWSCapabilities.Fits(1024))
	assert.False(t, transport.AWSCapabilities.Fits(300<<10))
}
