// Package otelprop carries W3C trace context in message headers through OpenTelemetry propagators.
package otelprop

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	cbus "github.com/yuanzhaoK/admin-platform-sub004/contract/bus"
)

// Propagator implements cbus.HeaderPropagator on top of an OpenTelemetry TextMapPropagator.
type Propagator struct {
	tmp propagation.TextMapPropagator
}

var _ cbus.HeaderPropagator = Propagator{}

// New returns a Propagator using p. A nil p resolves the global propagator on every call,
// so it follows later otel.SetTextMapPropagator calls.
func New(p propagation.TextMapPropagator) Propagator { return Propagator{tmp: p} }

func (p Propagator) propagator() propagation.TextMapPropagator {
	if p.tmp != nil {
		return p.tmp
	}

	return otel.GetTextMapPropagator()
}

func (p Propagator) Inject(ctx context.Context, headers map[string]string) {
	if headers == nil {
		return
	}

	p.propagator().Inject(ctx, propagation.MapCarrier(headers))
}

func (p Propagator) Extract(ctx context.Context, headers map[string]string) context.Context {
	if len(headers) == 0 {
		return ctx
	}

	return p.propagator().Extract(ctx, propagation.MapCarrier(headers))
}

// InstallGlobal sets the global propagator to W3C trace context plus baggage.
func InstallGlobal() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}
