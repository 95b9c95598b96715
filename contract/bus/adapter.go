package bus

import "context"

// Forwarder mirrors published messages to an external transport (RabbitMQ, NATS, Kafka, in-memory).
// Mirroring is a side channel: local delivery never depends on it.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Forwarder interface {
	Forward(ctx context.Context, msg Message) error
}

// Connector is implemented by forwarders that need an explicit connection step.
// The broker calls Connect during its own Connect, retrying with backoff.
type Connector interface {
	Connect(ctx context.Context) error
}
