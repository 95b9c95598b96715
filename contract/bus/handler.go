package bus

import "context"

// Handler processes a single delivered message.
// A returned error is logged by the broker; it never requeues the message or stops sibling handlers.
type Handler func(ctx context.Context, msg Message) error
