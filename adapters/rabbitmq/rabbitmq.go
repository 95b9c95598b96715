package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	cbus "github.com/yuanzhaoK/admin-platform-sub004/contract/bus"
	berr "github.com/yuanzhaoK/admin-platform-sub004/contract/errors"
)

// Header keys added to every mirrored message.
const (
	HeaderMessageID = "message-id"
	HeaderTimestamp = "timestamp"
)

type PubMsg struct {
	Exchange   string
	RoutingKey string
	MessageID  string
	Timestamp  time.Time
	Body       []byte
	Headers    map[string]string
}

type Publisher interface {
	Publish(ctx context.Context, m PubMsg) error
}

// readier is implemented by publishers that connect in the background.
type readier interface {
	WaitReady(ctx context.Context) error
}

// Forwarder publishes every message it is handed to one exchange under the message routing key.
type Forwarder struct {
	Publisher Publisher
	Exchange  string
}

var (
	_ cbus.Forwarder = (*Forwarder)(nil)
	_ cbus.Connector = (*Forwarder)(nil)
)

func New(p Publisher, exchange string) *Forwarder {
	return &Forwarder{Publisher: p, Exchange: exchange}
}

// Connect blocks until the publisher holds a channel, for publishers that report readiness.
func (f *Forwarder) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if f.Publisher == nil {
		return fmt.Errorf("rabbitmq connect: %w", berr.ErrNotConnected)
	}

	r, ok := f.Publisher.(readier)
	if !ok {
		return nil
	}

	if err := r.WaitReady(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("rabbitmq connect: %w", errors.Join(berr.ErrNotConnected, err))
	}

	return nil
}

func (f *Forwarder) Forward(ctx context.Context, msg cbus.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if f.Publisher == nil {
		return fmt.Errorf("rabbitmq forward %s: %w", msg.RoutingKey, berr.ErrNotConnected)
	}

	// copy headers to avoid mutating the broker's message
	hdrs := make(map[string]string, len(msg.Headers)+2)
	maps.Copy(hdrs, msg.Headers)
	hdrs[HeaderMessageID] = msg.ID
	hdrs[HeaderTimestamp] = msg.Timestamp.UTC().Format(time.RFC3339Nano)

	pm := PubMsg{
		Exchange:   f.Exchange,
		RoutingKey: msg.RoutingKey,
		MessageID:  msg.ID,
		Timestamp:  msg.Timestamp,
		Body:       msg.Body,
		Headers:    hdrs,
	}
	if err := f.Publisher.Publish(ctx, pm); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("rabbitmq forward %s: %w", msg.RoutingKey, errors.Join(berr.ErrPublishFailed, err))
	}

	return nil
}

// Close releases the publisher when it owns a connection.
func (f *Forwarder) Close() error {
	if c, ok := f.Publisher.(io.Closer); ok {
		return c.Close()
	}

	return nil
}

func toPublishing(m PubMsg, mode uint8) amqp.Publishing {
	var h amqp.Table
	if len(m.Headers) > 0 {
		h = amqp.Table{}
		for k, v := range m.Headers {
			h[k] = v
		}
	}

	return amqp.Publishing{
		DeliveryMode: mode,
		MessageId:    m.MessageID,
		Timestamp:    m.Timestamp,
		Headers:      h,
		ContentType:  "application/json",
		Body:         m.Body,
	}
}

type amqpChannelPublisher struct{ ch *amqp.Channel }

func (p amqpChannelPublisher) Publish(ctx context.Context, m PubMsg) error {
	return p.ch.PublishWithContext(ctx, m.Exchange, m.RoutingKey, false, false, toPublishing(m, amqp.Transient))
}

// NewWithAMQPChannel forwards over a channel the caller owns. The exchange must already exist.
func NewWithAMQPChannel(ch *amqp.Channel, exchange string) *Forwarder {
	return New(amqpChannelPublisher{ch: ch}, exchange)
}
