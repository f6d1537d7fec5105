package transport_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/parcelflow/internal/runtime/errors"
	"github.com/drblury/parcelflow/transport"
	"github.com/drblury/parcelflow/transport/transporttest"
)

func stubBuilder(pub *transporttest.Publisher, sub *transporttest.Subscriber) transport.Builder {
	return func(context.Context, transport.Config, watermill.LoggerAdapter) (transport.Transport, error) {
		return transport.Transport{Publisher: pub, Subscriber: sub}, nil
	}
}

func TestRegistry_RegisterAndBuild(t *testing.T) {
	reg := transport.NewRegistry()
	pub := &transporttest.Publisher{}
	sub := &transporttest.Subscriber{}

	reg.Register("Test", stubBuilder(pub, sub), transport.Capabilities{SupportsAck: true})

	assert.True(t, reg.Has("test"))
	assert.Equal(t, []string{"test"}, reg.Names())

	tr, err := reg.Build(context.Background(), &transporttest.Config{PubSubSystem: "TEST"}, nil)
	require.NoError(t, err)
	assert.Same(t, pub, tr.Publisher)
	assert.Same(t, sub, tr.Subscriber)
	assert.Equal(t, "test", tr.Capabilities.Name)
	assert.True(t, tr.Capabilities.SupportsAck)
}

func TestRegistry_DefaultsAndAliases(t *testing.T) {
	reg := transport.NewRegistry()
	reg.Register("channel", stubBuilder(&transporttest.Publisher{}, &transporttest.Subscriber{}), transport.ChannelCapabilities)
	reg.Alias("gochannel", "channel")

	assert.True(t, reg.Has(""))
	assert.True(t, reg.Has("gochannel"))
	assert.Equal(t, "channel", reg.GetCapabilities("GoChannel").Name)

	_, err := reg.Build(context.Background(), &transporttest.Config{}, nil)
	require.NoError(t, err)
}

func TestRegistry_BuildErrors(t *testing.T) {
	reg := transport.NewRegistry()

	_, err := reg.Build(context.Background(), nil, nil)
	assert.ErrorIs(t, err, errspkg.ErrConfigRequired)

	_, err = reg.Build(context.Background(), &transporttest.Config{PubSubSystem: "missing"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown transport: "missing"`)

	boom := errors.New("boom")
	reg.Register("broken", func(context.Context, transport.Config, watermill.LoggerAdapter) (transport.Transport, error) {
		return transport.Transport{}, boom
	}, transport.Capabilities{})
	_, err = reg.Build(context.Background(), &transporttest.Config{PubSubSystem: "broken"}, nil)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "build broken transport")
}

func TestRegistry_UnknownCapabilities(t *testing.T) {
	caps := transport.NewRegistry().GetCapabilities("nope")
	assert.Equal(t, transport.Capabilities{Name: "nope"}, caps)
}

func TestStaticFactory(t *testing.T) {
	pub := &transporttest.Publisher{}
	factory := transport.Static(transport.Transport{Publisher: pub})

	tr, err := factory.Build(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Same(t, pub, tr.Publisher)
}

func TestDefaultFactory_UsesDefaultRegistry(t *testing.T) {
	transport.Register("registry-test", stubBuilder(&transporttest.Publisher{}, &transporttest.Subscriber{}), transport.Capabilities{})

	tr, err := transport.DefaultFactory().Build(context.Background(), &transporttest.Config{PubSubSystem: "registry-test"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, tr.Publisher)
}
