// Package kafka mirrors broker messages to Kafka records.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"maps"

	cbus "github.com/yuanzhaoK/admin-platform-sub004/contract/bus"
	berr "github.com/yuanzhaoK/admin-platform-sub004/contract/errors"
)

// HeaderRoutingKey carries the broker routing key on every record.
const HeaderRoutingKey = "routing-key"

// Writer is a minimal Kafka-like writer interface.
// Users can adapt franz-go or any other client to this.
type Writer interface {
	Write(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// pinger is implemented by writers that can check broker reachability.
type pinger interface {
	Ping(ctx context.Context) error
}

// Forwarder implements cbus.Forwarder using an injected Writer.
// With a Topic every message goes to that topic, keyed by routing key so that each event type
// stays ordered within its partition. Without one the routing key is the topic.
type Forwarder struct {
	Writer Writer
	Topic  string
}

var (
	_ cbus.Forwarder = (*Forwarder)(nil)
	_ cbus.Connector = (*Forwarder)(nil)
)

// New creates a new Kafka forwarder writing to topic.
func New(w Writer, topic string) *Forwarder { return &Forwarder{Writer: w, Topic: topic} }

func (f *Forwarder) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if f.Writer == nil {
		return fmt.Errorf("kafka connect: %w", berr.ErrNotConnected)
	}

	p, ok := f.Writer.(pinger)
	if !ok {
		return nil
	}

	if err := p.Ping(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("kafka connect: %w", errors.Join(berr.ErrNotConnected, err))
	}

	return nil
}

func (f *Forwarder) Forward(ctx context.Context, msg cbus.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if f.Writer == nil {
		return fmt.Errorf("kafka forward: %w", berr.ErrNotConnected)
	}

	topic := f.Topic
	if topic == "" {
		topic = msg.RoutingKey
	}

	headers := make(map[string]string, len(msg.Headers)+1)
	maps.Copy(headers, msg.Headers)
	headers[HeaderRoutingKey] = msg.RoutingKey

	if err := f.Writer.Write(ctx, topic, []byte(msg.RoutingKey), msg.Body, headers); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("kafka forward to %q: %w", topic, errors.Join(berr.ErrPublishFailed, err))
	}

	return nil
}
