// Package transports registers every built-in transport with the default
// registry. Import it for its side effects.
package transports

import (
	_ "github.com/drblury/parcelflow/transport/aws"
	_ "github.com/drblury/parcelflow/transport/channel"
	_ "github.com/drblury/parcelflow/transport/http"
	_ "github.com/drblury/parcelflow/transport/kafka"
	_ "github.com/drblury/parcelflow/transport/nats"
	_ "github.com/drblury/parcelflow/transport/rabbitmq"
)
