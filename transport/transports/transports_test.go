package transports_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/drblury/parcelflow/transport"
	_ "github.com/drblury/parcelflow/transport/transports"
)

func TestBuiltinsRegistered(t *testing.T) {
	assert.Equal(t, []string{"aws", "channel", "http", "kafka", "nats", "rabbitmq"}, transport.DefaultRegistry.Names())
	assert.True(t, transport.DefaultRegistry.Has("gochannel"))
}
