// Package memory wires the whole event stack in process: bus, store, publisher and consumer.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/yuanzhaoK/admin-platform-sub004/adapters/inmemory"
	"github.com/yuanzhaoK/admin-platform-sub004/consumer"
	"github.com/yuanzhaoK/admin-platform-sub004/events"
	"github.com/yuanzhaoK/admin-platform-sub004/publisher"
	"github.com/yuanzhaoK/admin-platform-sub004/servicebus"
	"github.com/yuanzhaoK/admin-platform-sub004/store"
)

// Stack is a connected bus with the consumer rules bound to it.
type Stack struct {
	Bus       *servicebus.Bus
	Store     *store.Memory
	Publisher *publisher.Publisher
	Consumer  *consumer.Consumer

	// Mirror records every published message in order.
	Mirror *inmemory.Recorder
}

type settings struct {
	cfg      servicebus.Config
	logger   *slog.Logger
	now      func() time.Time
	consumer []consumer.Option
	bus      []servicebus.Option
}

type Option func(*settings)

// WithConfig replaces the bus configuration.
func WithConfig(cfg servicebus.Config) Option { return func(s *settings) { s.cfg = cfg } }

func WithLogger(l *slog.Logger) Option { return func(s *settings) { s.logger = l } }

// WithClock fixes the time source of the bus, the publisher and the rules.
func WithClock(now func() time.Time) Option { return func(s *settings) { s.now = now } }

// WithConsumerOptions passes options through to consumer.New.
func WithConsumerOptions(opts ...consumer.Option) Option {
	return func(s *settings) { s.consumer = append(s.consumer, opts...) }
}

// WithBusOptions passes options through to servicebus.New.
func WithBusOptions(opts ...servicebus.Option) Option {
	return func(s *settings) { s.bus = append(s.bus, opts...) }
}

// New connects an in-memory stack. The cleanup closes the consumer and then the bus.
func New(ctx context.Context, opts ...Option) (*Stack, func(), error) {
	s := settings{
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
	}

	for _, o := range opts {
		o(&s)
	}

	mirror := inmemory.New()
	bopts := append([]servicebus.Option{servicebus.WithForwarder(mirror), servicebus.WithClock(s.now)}, s.bus...)
	bus := servicebus.New(s.cfg, s.logger, bopts...)

	if err := bus.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("memory stack: %w", err)
	}

	st := store.NewMemory()

	copts := append([]consumer.Option{consumer.WithLogger(s.logger), consumer.WithClock(s.now)}, s.consumer...)
	c := consumer.New(bus, st, copts...)

	if err := c.Initialize(ctx); err != nil {
		_ = bus.Close()
		return nil, nil, fmt.Errorf("memory stack: %w", err)
	}

	stack := &Stack{
		Bus:   bus,
		Store: st,
		Publisher: publisher.New(bus,
			publisher.WithSource(events.SourceAPI),
			publisher.WithClock(s.now),
			publisher.WithLogger(s.logger),
		),
		Consumer: c,
		Mirror:   mirror,
	}

	cleanup := func() {
		_ = c.Close()
		_ = bus.Close()
	}

	return stack, cleanup, nil
}

// Settle waits until every published message, including derived ones, has been handled.
func (s *Stack) Settle(ctx context.Context) error { return s.Bus.Drain(ctx) }
