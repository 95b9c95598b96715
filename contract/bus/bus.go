package bus

import "context"

// Broker is the tech-agnostic surface of the topic broker.
// Consumers that only need to bind, consume and publish should depend on this interface.
type Broker interface {
	Publisher

	// Lifecycle
	Connect(ctx context.Context) error
	Close() error

	// Topology
	Declare(queue string, opts QueueOptions) error
	Bind(queue, pattern string) error

	// Consume registers h on queue. Every handler of a queue runs for every message.
	Consume(queue string, h Handler) (Subscription, error)
}

// Subscription is a handler registration returned by Consume.
type Subscription interface {
	Queue() string
	Cancel() error
}
