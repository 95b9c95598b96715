package publisher_test

import (
	"context"
	"errors"
	"testing"
	"time"

	cbus "github.com/yuanzhaoK/admin-platform-sub004/contract/bus"
	berr "github.com/yuanzhaoK/admin-platform-sub004/contract/errors"
	"github.com/yuanzhaoK/admin-platform-sub004/events"
	"github.com/yuanzhaoK/admin-platform-sub004/publisher"
)

type published struct {
	key  string
	env  events.Envelope
	opts cbus.PublishOptions
}

type fakeBus struct {
	out    []published
	failOn map[string]error
}

func (f *fakeBus) Publish(ctx context.Context, key string, payload any, opts cbus.PublishOptions) error {
	if err := f.failOn[key]; err != nil {
		return err
	}

	env, _ := payload.(events.Envelope)
	f.out = append(f.out, published{key: key, env: env, opts: opts})

	return nil
}

var fixed = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func newPublisher(b *fakeBus) *publisher.Publisher {
	return publisher.New(b, publisher.WithClock(func() time.Time { return fixed }))
}

func TestPublishTypedEvents(t *testing.T) {
	b := &fakeBus{}
	p := newPublisher(b)
	ctx := t.Context()

	calls := []func() error{
		func() error {
			return p.PublishProductEvent(ctx, events.ProductCreated{ProductPayload: events.ProductPayload{ProductID: "p1"}})
		},
		func() error {
			return p.PublishOrderEvent(ctx, events.OrderCompleted{OrderPayload: events.OrderPayload{OrderID: "o1"}})
		},
		func() error {
			return p.PublishUserEvent(ctx, events.UserCreated{UserPayload: events.UserPayload{UserID: "u1"}})
		},
		func() error {
			return p.PublishMarketingEvent(ctx, events.PointsEarned{UserID: "u1"})
		},
		func() error {
			return p.PublishNotificationEvent(ctx, events.NotifyWelcome, map[string]any{"a": 1}, "")
		},
	}

	for i, c := range calls {
		if err := c(); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}

	want := []string{
		events.TopicProductCreated,
		events.TopicOrderCompleted,
		events.TopicUserCreated,
		events.TopicPointsEarned,
		events.TopicNotification,
	}

	if len(b.out) != len(want) {
		t.Fatalf("want %d publishes, got %d", len(want), len(b.out))
	}

	for i, w := range want {
		got := b.out[i]
		if got.key != w || got.env.Type != w {
			t.Fatalf("publish %d: key=%s type=%s want %s", i, got.key, got.env.Type, w)
		}

		if got.env.Source != events.SourceAPI || got.env.Depth != 0 || !got.env.OccurredAt.Equal(fixed) {
			t.Fatalf("publish %d: unexpected envelope %+v", i, got.env)
		}

		if got.env.CorrelationID == "" || got.opts.Headers[cbus.HeaderCorrelationID] != got.env.CorrelationID {
			t.Fatalf("publish %d: correlation id not set consistently", i)
		}
	}
}

func TestPublishNotificationRequiresType(t *testing.T) {
	p := newPublisher(&fakeBus{})

	if err := p.PublishNotificationEvent(t.Context(), "", nil, "u1"); !errors.Is(err, berr.ErrPublishFailed) {
		t.Fatalf("want ErrPublishFailed, got %v", err)
	}
}

func TestWithCause(t *testing.T) {
	b := &fakeBus{}
	p := newPublisher(b)

	parent := events.Envelope{Type: events.TopicOrderCompleted, CorrelationID: "corr-1", Depth: 2, Source: events.SourceAPI}

	err := p.Publish(t.Context(), events.PointsEarned{UserID: "u1"}, publisher.WithCause(parent), publisher.WithHeader("x", "y"))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	got := b.out[0]
	if got.env.Depth != 3 || got.env.CorrelationID != "corr-1" || got.env.Source != events.SourceConsumer {
		t.Fatalf("unexpected derived envelope %+v", got.env)
	}

	if got.opts.Headers["x"] != "y" || got.opts.Headers[cbus.HeaderSource] != events.SourceConsumer {
		t.Fatalf("unexpected headers %v", got.opts.Headers)
	}
}

func TestPublishSurfacesBusErrors(t *testing.T) {
	b := &fakeBus{failOn: map[string]error{events.TopicUserCreated: berr.ErrNotConnected}}
	p := newPublisher(b)

	err := p.PublishUserEvent(t.Context(), events.UserCreated{})
	if !errors.Is(err, berr.ErrNotConnected) {
		t.Fatalf("want ErrNotConnected, got %v", err)
	}
}

func Test_Batch_Progress_Error_AndCancel(t *testing.T) {
	boom := errors.New("boom")
	b := &fakeBus{failOn: map[string]error{events.TopicOrderCancelled: boom}}
	p := newPublisher(b)

	evs := []events.Event{
		events.OrderCreated{},
		events.OrderCancelled{},
		events.OrderCompleted{},
		nil,
	}

	var (
		prog   []int
		errIdx []int
	)

	err := p.PublishBatch(t.Context(), evs,
		publisher.WithBatchProgress(func(done, total int) { prog = append(prog, done) }),
		publisher.WithBatchOnError(func(i int, _ events.Event, _ error) { errIdx = append(errIdx, i) }),
	)

	if !errors.Is(err, boom) || !errors.Is(err, berr.ErrUnknownEvent) {
		t.Fatalf("want joined errors, got %v", err)
	}

	if len(prog) != 4 || prog[3] != 4 {
		t.Fatalf("progress %v", prog)
	}

	if len(errIdx) != 2 || errIdx[0] != 1 || errIdx[1] != 3 {
		t.Fatalf("error indexes %v", errIdx)
	}

	// Events around the failure are still published.
	if len(b.out) != 2 || b.out[0].key != events.TopicOrderCreated || b.out[1].key != events.TopicOrderCompleted {
		t.Fatalf("unexpected publishes %+v", b.out)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	if err := p.PublishBatch(ctx, []events.Event{events.OrderCreated{}}); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}
