// Package nats mirrors broker messages to NATS subjects derived from their routing keys.
package nats

import (
	"context"
	"errors"
	"fmt"
	"maps"

	cbus "github.com/yuanzhaoK/admin-platform-sub004/contract/bus"
	berr "github.com/yuanzhaoK/admin-platform-sub004/contract/errors"
)

// Client is a minimal NATS-like publisher interface decoupled from any concrete library.
// Users can provide a wrapper around their NATS connection to satisfy this.
type Client interface {
	// Publish publishes a message to a subject with optional headers.
	Publish(subject string, data []byte, headers map[string]string) error
}

// flusher is implemented by clients that can confirm a server round trip.
type flusher interface {
	Flush(ctx context.Context) error
}

// Forwarder implements cbus.Forwarder using an injected NATS-like Client.
// Routing keys are already dot-separated, so a message for "order.created" goes to
// "<prefix>.order.created".
type Forwarder struct {
	Client Client
	Prefix string
}

var (
	_ cbus.Forwarder = (*Forwarder)(nil)
	_ cbus.Connector = (*Forwarder)(nil)
)

// New creates a NATS forwarder publishing under prefix. An empty prefix uses routing keys as-is.
func New(c Client, prefix string) *Forwarder { return &Forwarder{Client: c, Prefix: prefix} }

// Subject returns the subject a routing key is published on.
func (f *Forwarder) Subject(routingKey string) string {
	if f.Prefix == "" {
		return routingKey
	}

	return f.Prefix + "." + routingKey
}

func (f *Forwarder) Connect(ctx context.Context) error {
	if err := f.ready(ctx, berr.ErrNotConnected, "connect"); err != nil {
		return err
	}

	fl, ok := f.Client.(flusher)
	if !ok {
		return nil
	}

	if err := fl.Flush(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("nats connect: %w", errors.Join(berr.ErrNotConnected, err))
	}

	return nil
}

func (f *Forwarder) Forward(ctx context.Context, msg cbus.Message) error {
	if err := f.ready(ctx, berr.ErrNotConnected, "forward"); err != nil {
		return err
	}

	headers := make(map[string]string, len(msg.Headers)+1)
	maps.Copy(headers, msg.Headers)
	headers[HeaderMsgID] = msg.ID

	if err := f.Client.Publish(f.Subject(msg.RoutingKey), msg.Body, headers); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("nats forward %s: %w", msg.RoutingKey, errors.Join(berr.ErrPublishFailed, err))
	}

	return nil
}

func (f *Forwarder) ready(ctx context.Context, base error, label string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if f.Client == nil {
		return fmt.Errorf("nats %s: %w", label, base)
	}

	return nil
}
