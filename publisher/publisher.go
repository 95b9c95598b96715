// Package publisher is the typed publish API used by business code to announce domain events.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"

	cbus "github.com/yuanzhaoK/admin-platform-sub004/contract/bus"
	berr "github.com/yuanzhaoK/admin-platform-sub004/contract/errors"
	"github.com/yuanzhaoK/admin-platform-sub004/events"
)

// Publisher wraps events in envelopes and publishes them under their canonical routing key.
type Publisher struct {
	bus    cbus.Publisher
	source string
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithSource overrides the envelope source (default "graphql-api").
func WithSource(s string) Option { return func(p *Publisher) { p.source = s } }

// WithClock overrides the envelope timestamp source.
func WithClock(now func() time.Time) Option { return func(p *Publisher) { p.now = now } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(p *Publisher) { p.logger = l } }

// New returns a Publisher that writes to bus.
func New(bus cbus.Publisher, opts ...Option) *Publisher {
	p := &Publisher{
		bus:    bus,
		source: events.SourceAPI,
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
	}

	for _, o := range opts {
		o(p)
	}

	return p
}

type publishParams struct {
	source        string
	correlationID string
	depth         int
	headers       map[string]string
}

// PublishOption adjusts a single publish.
type PublishOption func(*publishParams)

// WithCause marks the event as derived from parent: one hop deeper, same correlation id,
// consumer source.
func WithCause(parent events.Envelope) PublishOption {
	return func(o *publishParams) {
		o.depth = parent.Depth + 1
		o.source = events.SourceConsumer

		if parent.CorrelationID != "" {
			o.correlationID = parent.CorrelationID
		}
	}
}

// WithCorrelationID sets the correlation id of a root event.
func WithCorrelationID(id string) PublishOption {
	return func(o *publishParams) { o.correlationID = id }
}

// WithHeader adds a message header.
func WithHeader(k, v string) PublishOption {
	return func(o *publishParams) {
		if o.headers == nil {
			o.headers = map[string]string{}
		}

		o.headers[k] = v
	}
}

// Publish wraps ev and publishes it on ev.Topic().
func (p *Publisher) Publish(ctx context.Context, ev events.Event, opts ...PublishOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	o := publishParams{source: p.source}
	for _, f := range opts {
		f(&o)
	}

	if o.correlationID == "" {
		o.correlationID = uuid.NewString()
	}

	env, err := events.Wrap(ev, o.source, p.now())
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	env.CorrelationID = o.correlationID
	env.Depth = o.depth

	headers := map[string]string{
		cbus.HeaderCorrelationID: env.CorrelationID,
		cbus.HeaderSource:        env.Source,
	}
	maps.Copy(headers, o.headers)

	if err := p.bus.Publish(ctx, env.Type, env, cbus.PublishOptions{Headers: headers}); err != nil {
		return fmt.Errorf("publish %s: %w", env.Type, err)
	}

	p.logger.DebugContext(ctx, "event published",
		"routing_key", env.Type, "correlation_id", env.CorrelationID, "depth", env.Depth, "source", env.Source)

	return nil
}

// PublishProductEvent publishes a product variant.
func (p *Publisher) PublishProductEvent(ctx context.Context, ev events.ProductEvent, opts ...PublishOption) error {
	return p.Publish(ctx, ev, opts...)
}

// PublishOrderEvent publishes an order variant.
func (p *Publisher) PublishOrderEvent(ctx context.Context, ev events.OrderEvent, opts ...PublishOption) error {
	return p.Publish(ctx, ev, opts...)
}

// PublishUserEvent publishes a user variant.
func (p *Publisher) PublishUserEvent(ctx context.Context, ev events.UserEvent, opts ...PublishOption) error {
	return p.Publish(ctx, ev, opts...)
}

// PublishMarketingEvent publishes a marketing variant.
func (p *Publisher) PublishMarketingEvent(ctx context.Context, ev events.MarketingEvent, opts ...PublishOption) error {
	return p.Publish(ctx, ev, opts...)
}

// PublishNotificationEvent publishes a notification of type typ on the notification topic.
// userID may be empty.
func (p *Publisher) PublishNotificationEvent(
	ctx context.Context,
	typ string,
	data map[string]any,
	userID string,
	opts ...PublishOption,
) error {
	if typ == "" {
		return fmt.Errorf("publish notification: empty type: %w", berr.ErrPublishFailed)
	}

	return p.Publish(ctx, events.Notification{Type: typ, Data: data, UserID: userID}, opts...)
}

// BatchOptions controls PublishBatch.
// OnProgress is called after each event is attempted with done and total.
// OnError is called when an event fails with its index, the event and the error.
type BatchOptions struct {
	OnProgress func(done, total int)
	OnError    func(index int, ev events.Event, err error)
}

// BatchOpt configures BatchOptions.
type BatchOpt func(*BatchOptions)

// WithBatchProgress sets the progress callback.
func WithBatchProgress(fn func(done, total int)) BatchOpt {
	return func(o *BatchOptions) { o.OnProgress = fn }
}

// WithBatchOnError sets the error callback.
func WithBatchOnError(fn func(index int, ev events.Event, err error)) BatchOpt {
	return func(o *BatchOptions) { o.OnError = fn }
}

// PublishBatch publishes evs one after another. It is not atomic: events published before a
// failure stay published and later events are still attempted. Errors are joined.
// Cancellation stops the batch.
func (p *Publisher) PublishBatch(ctx context.Context, evs []events.Event, opts ...BatchOpt) error {
	var o BatchOptions
	for _, f := range opts {
		f(&o)
	}

	total := len(evs)

	var errs []error

	for i, ev := range evs {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}

		if err := p.Publish(ctx, ev); err != nil {
			if o.OnError != nil {
				o.OnError(i, ev, err)
			}

			errs = append(errs, err)
		}

		if o.OnProgress != nil {
			o.OnProgress(i+1, total)
		}
	}

	return errors.Join(errs...)
}
