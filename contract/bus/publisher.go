package bus

import "context"

// Publisher publishes a payload under a routing key.
// Payloads are JSON-encoded unless they already are raw JSON ([]byte or json.RawMessage).
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any, opts PublishOptions) error
}
