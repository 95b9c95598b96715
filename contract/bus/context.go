package bus

import "context"

// HeaderPropagator carries trace context across a publish through message headers.
// The broker injects on Publish and extracts before each handler invocation, so a derived
// event published from a handler continues the trace of the event that caused it.
// Implementations must be safe for concurrent use.
type HeaderPropagator interface {
	Inject(ctx context.Context, headers map[string]string)
	Extract(ctx context.Context, headers map[string]string) context.Context
}

// NopHeaderPropagator leaves headers and contexts untouched. It is the broker default.
type NopHeaderPropagator struct{}

func (NopHeaderPropagator) Inject(context.Context, map[string]string) {}

func (NopHeaderPropagator) Extract(ctx context.Context, _ map[string]string) context.Context {
	return ctx
}
