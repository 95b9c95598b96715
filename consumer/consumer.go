// Package consumer binds the domain queues and runs the business rules that chain side effects
// across products, orders, members and marketing.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cbus "github.com/yuanzhaoK/admin-platform-sub004/contract/bus"
	berr "github.com/yuanzhaoK/admin-platform-sub004/contract/errors"
	"github.com/yuanzhaoK/admin-platform-sub004/events"
	"github.com/yuanzhaoK/admin-platform-sub004/publisher"
	"github.com/yuanzhaoK/admin-platform-sub004/store"
)

// DefaultMaxCascadeDepth bounds how many hops a chain of derived events may take.
const DefaultMaxCascadeDepth = 8

// Binding ties a domain queue to the pattern it receives.
type Binding struct {
	Queue   string
	Pattern string
}

type family struct {
	Binding
	apply func(ctx context.Context, r *Rules, env events.Envelope) ([]events.Event, error)
}

var families = []family{
	{Binding{"product.events", events.CategoryProduct + ".#"}, applyProduct},
	{Binding{"order.events", events.CategoryOrder + ".#"}, applyOrder},
	{Binding{"user.events", events.CategoryUser + ".#"}, applyUser},
	{Binding{"marketing.events", events.CategoryMarketing + ".#"}, applyMarketing},
	{Binding{"notification.events", events.CategoryNotification + ".#"}, applyNotification},
}

func applyProduct(ctx context.Context, r *Rules, env events.Envelope) ([]events.Event, error) {
	ev, err := events.DecodeProduct(env)
	if err != nil {
		return nil, err
	}

	return ev.Dispatch(ctx, r)
}

func applyOrder(ctx context.Context, r *Rules, env events.Envelope) ([]events.Event, error) {
	ev, err := events.DecodeOrder(env)
	if err != nil {
		return nil, err
	}

	return ev.Dispatch(ctx, r)
}

func applyUser(ctx context.Context, r *Rules, env events.Envelope) ([]events.Event, error) {
	ev, err := events.DecodeUser(env)
	if err != nil {
		return nil, err
	}

	return ev.Dispatch(ctx, r)
}

func applyMarketing(ctx context.Context, r *Rules, env events.Envelope) ([]events.Event, error) {
	ev, err := events.DecodeMarketing(env)
	if err != nil {
		return nil, err
	}

	return ev.Dispatch(ctx, r)
}

func applyNotification(ctx context.Context, r *Rules, env events.Envelope) ([]events.Event, error) {
	ev, err := events.DecodeNotification(env)
	if err != nil {
		return nil, err
	}

	return ev.Dispatch(ctx, r)
}

// Bindings lists the queues Initialize declares, with their patterns.
func Bindings() []Binding {
	out := make([]Binding, 0, len(families))
	for _, f := range families {
		out = append(out, f.Binding)
	}

	return out
}

// Consumer handles the domain queues of a broker.
type Consumer struct {
	broker   cbus.Broker
	pub      *publisher.Publisher
	rules    *Rules
	logger   *slog.Logger
	maxDepth int

	notifier Notifier
	now      func() time.Time
	lowStock int

	mu   sync.Mutex
	subs []cbus.Subscription
}

// Option configures a Consumer.
type Option func(*Consumer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Consumer) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithNotifier sets where notification events are delivered.
func WithNotifier(n Notifier) Option { return func(c *Consumer) { c.notifier = n } }

// WithMaxCascadeDepth bounds derived-event chains. Values below 1 keep the default.
func WithMaxCascadeDepth(n int) Option {
	return func(c *Consumer) {
		if n > 0 {
			c.maxDepth = n
		}
	}
}

// WithClock overrides the time source of the rules and of derived envelopes.
func WithClock(now func() time.Time) Option { return func(c *Consumer) { c.now = now } }

// WithLowStockThreshold sets the stock level below which a low-stock alert is raised.
func WithLowStockThreshold(n int) Option {
	return func(c *Consumer) {
		if n > 0 {
			c.lowStock = n
		}
	}
}

// New returns a Consumer that reads from and publishes derived events to broker.
func New(broker cbus.Broker, st store.Store, opts ...Option) *Consumer {
	c := &Consumer{
		broker:   broker,
		logger:   slog.New(slog.DiscardHandler),
		maxDepth: DefaultMaxCascadeDepth,
		now:      time.Now,
		lowStock: defaultLowStock,
	}

	for _, o := range opts {
		o(c)
	}

	c.rules = NewRules(st, c.notifier, c.logger)
	c.rules.now = c.now
	c.rules.lowStock = c.lowStock
	c.pub = publisher.New(broker,
		publisher.WithSource(events.SourceConsumer),
		publisher.WithClock(c.now),
		publisher.WithLogger(c.logger),
	)

	return c
}

// Rules returns the rule set the consumer dispatches to.
func (c *Consumer) Rules() *Rules { return c.rules }

// Initialize declares and binds the domain queues and registers one handler on each.
// Calling it again is a no-op. The broker must be connected.
func (c *Consumer) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.subs) > 0 {
		return nil
	}

	subs := make([]cbus.Subscription, 0, len(families))

	for _, f := range families {
		err := c.broker.Declare(f.Queue, cbus.QueueOptions{Durable: true, Patterns: []string{f.Pattern}})
		if err != nil {
			_ = cancelAll(subs)
			return fmt.Errorf("consumer declare %s: %w", f.Queue, err)
		}

		sub, err := c.broker.Consume(f.Queue, c.handler(f))
		if err != nil {
			_ = cancelAll(subs)
			return fmt.Errorf("consumer consume %s: %w", f.Queue, err)
		}

		subs = append(subs, sub)
	}

	c.subs = subs
	c.logger.InfoContext(ctx, "consumer initialized", "queues", len(subs), "max_cascade_depth", c.maxDepth)

	return nil
}

// Close cancels every handler registration. Queued messages stay on their queues.
func (c *Consumer) Close() error {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	return cancelAll(subs)
}

func cancelAll(subs []cbus.Subscription) error {
	var errs []error

	for _, s := range subs {
		if err := s.Cancel(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// handler decodes the envelope, runs the family rules and publishes what they produced.
// Rule failures are logged here and never reach the broker.
func (c *Consumer) handler(f family) cbus.Handler {
	return func(ctx context.Context, msg cbus.Message) error {
		env, err := events.Parse(msg.Body)
		if err != nil {
			c.logger.ErrorContext(ctx, "undecodable message", "queue", f.Queue, "message_id", msg.ID, "err", err)
			return nil
		}

		effects, err := f.apply(ctx, c.rules, env)
		if err != nil {
			attrs := []any{
				"queue", f.Queue, "type", env.Type, "correlation_id", env.CorrelationID,
				"message_id", msg.ID, "err", err,
			}

			switch {
			case errors.Is(err, berr.ErrUnknownEvent):
				c.logger.WarnContext(ctx, "unhandled event type", attrs...)
			case isPersistence(err):
				c.logger.ErrorContext(ctx, "store failure aborted rule", attrs...)
			default:
				c.logger.ErrorContext(ctx, "rule failed", attrs...)
			}
		}

		c.emit(ctx, env, effects)

		return nil
	}
}

// emit publishes derived events one hop below parent. Events past the depth limit are dropped.
func (c *Consumer) emit(ctx context.Context, parent events.Envelope, effects []events.Event) {
	for _, ev := range effects {
		if parent.Depth+1 > c.maxDepth {
			c.logger.ErrorContext(ctx, "derived event dropped",
				"type", ev.Topic(), "parent", parent.Type, "depth", parent.Depth+1,
				"correlation_id", parent.CorrelationID, "err", berr.ErrCascadeDepth)

			continue
		}

		if err := c.pub.Publish(ctx, ev, publisher.WithCause(parent)); err != nil {
			c.logger.ErrorContext(ctx, "derived event publish failed",
				"type", ev.Topic(), "parent", parent.Type, "correlation_id", parent.CorrelationID, "err", err)
		}
	}
}
