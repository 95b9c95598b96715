package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	berr "github.com/yuanzhaoK/admin-platform-sub004/contract/errors"
	"github.com/yuanzhaoK/admin-platform-sub004/events"
)

// calls records which handler method each variant reached.
type calls struct{ got []string }

func (c *calls) hit(name string) ([]events.Event, error) {
	c.got = append(c.got, name)
	return nil, nil
}

func (c *calls) OnProductCreated(context.Context, events.ProductCreated) ([]events.Event, error) {
	return c.hit("product.created")
}

func (c *calls) OnProductUpdated(context.Context, events.ProductUpdated) ([]events.Event, error) {
	return c.hit("product.updated")
}

func (c *calls) OnProductDeleted(context.Context, events.ProductDeleted) ([]events.Event, error) {
	return c.hit("product.deleted")
}

func (c *calls) OnOrderCreated(context.Context, events.OrderCreated) ([]events.Event, error) {
	return c.hit("order.created")
}

func (c *calls) OnOrderUpdated(context.Context, events.OrderUpdated) ([]events.Event, error) {
	return c.hit("order.updated")
}

func (c *calls) OnOrderCompleted(context.Context, events.OrderCompleted) ([]events.Event, error) {
	return c.hit("order.completed")
}

func (c *calls) OnOrderCancelled(context.Context, events.OrderCancelled) ([]events.Event, error) {
	return c.hit("order.cancelled")
}

func (c *calls) OnUserCreated(context.Context, events.UserCreated) ([]events.Event, error) {
	return c.hit("user.created")
}

func (c *calls) OnUserUpdated(context.Context, events.UserUpdated) ([]events.Event, error) {
	return c.hit("user.updated")
}

func (c *calls) OnUserDeleted(context.Context, events.UserDeleted) ([]events.Event, error) {
	return c.hit("user.deleted")
}

func (c *calls) OnCouponUsed(context.Context, events.CouponUsed) ([]events.Event, error) {
	return c.hit("marketing.coupon.used")
}

func (c *calls) OnPointsEarned(context.Context, events.PointsEarned) ([]events.Event, error) {
	return c.hit("marketing.points.earned")
}

func (c *calls) OnMemberUpgraded(context.Context, events.MemberUpgraded) ([]events.Event, error) {
	return c.hit("marketing.member.upgraded")
}

func (c *calls) OnNotification(context.Context, events.Notification) ([]events.Event, error) {
	return c.hit("notification.general")
}

func envelope(t *testing.T, ev events.Event) events.Envelope {
	t.Helper()

	env, err := events.Wrap(ev, events.SourceAPI, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("wrap %s: %v", ev.Topic(), err)
	}

	return env
}

func TestDispatchReachesDistinctMethods(t *testing.T) {
	c := &calls{}
	ctx := t.Context()

	for _, ev := range []events.ProductEvent{events.ProductCreated{}, events.ProductUpdated{}, events.ProductDeleted{}} {
		_, _ = ev.Dispatch(ctx, c)
	}

	for _, ev := range []events.OrderEvent{
		events.OrderCreated{}, events.OrderUpdated{}, events.OrderCompleted{}, events.OrderCancelled{},
	} {
		_, _ = ev.Dispatch(ctx, c)
	}

	for _, ev := range []events.UserEvent{events.UserCreated{}, events.UserUpdated{}, events.UserDeleted{}} {
		_, _ = ev.Dispatch(ctx, c)
	}

	for _, ev := range []events.MarketingEvent{events.CouponUsed{}, events.PointsEarned{}, events.MemberUpgraded{}} {
		_, _ = ev.Dispatch(ctx, c)
	}

	_, _ = events.Notification{}.Dispatch(ctx, c)

	want := events.Topics()
	if len(c.got) != len(want) {
		t.Fatalf("want %d dispatches, got %v", len(want), c.got)
	}

	seen := map[string]bool{}
	for _, g := range c.got {
		if seen[g] {
			t.Fatalf("two variants reached %s", g)
		}

		seen[g] = true
	}

	for _, w := range want {
		if !seen[w] {
			t.Fatalf("no variant dispatched to %s", w)
		}
	}
}

func TestTopicsAreCategoryPrefixed(t *testing.T) {
	for _, topic := range events.Topics() {
		switch events.Category(topic) {
		case events.CategoryProduct, events.CategoryOrder, events.CategoryUser,
			events.CategoryMarketing, events.CategoryNotification:
		default:
			t.Fatalf("topic %q has unknown category", topic)
		}
	}
}

func TestWrapAndDecode(t *testing.T) {
	in := events.OrderCompleted{OrderPayload: events.OrderPayload{
		OrderID:   "o-1",
		UserID:    "u-1",
		OrderData: map[string]any{"totalAmount": 250},
	}}

	env := envelope(t, in)
	if env.Type != events.TopicOrderCompleted || env.Source != events.SourceAPI || env.Depth != 0 {
		t.Fatalf("unexpected envelope %+v", env)
	}

	body, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	parsed, err := events.Parse(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	ev, err := events.DecodeOrder(parsed)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	out, ok := ev.(events.OrderCompleted)
	if !ok {
		t.Fatalf("decoded %T", ev)
	}

	if total, ok := out.TotalAmount(); !ok || total != 250 {
		t.Fatalf("totalAmount=%v ok=%v", total, ok)
	}

	if out.OrderID != "o-1" || out.UserID != "u-1" {
		t.Fatalf("payload lost: %+v", out)
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := events.Decode(events.Envelope{Type: "order.order.completed"}); !errors.Is(err, berr.ErrUnknownEvent) {
		t.Fatalf("unknown type: want ErrUnknownEvent, got %v", err)
	}

	env := envelope(t, events.UserCreated{UserPayload: events.UserPayload{UserID: "u"}})
	if _, err := events.DecodeOrder(env); !errors.Is(err, berr.ErrUnknownEvent) {
		t.Fatalf("family mismatch: want ErrUnknownEvent, got %v", err)
	}

	bad := events.Envelope{Type: events.TopicPointsEarned, Data: json.RawMessage(`{"marketingData":"nope"}`)}
	if _, err := events.DecodeMarketing(bad); !errors.Is(err, berr.ErrSerializationFailed) {
		t.Fatalf("bad data: want ErrSerializationFailed, got %v", err)
	}

	if _, err := events.Parse([]byte(`{`)); !errors.Is(err, berr.ErrSerializationFailed) {
		t.Fatalf("bad body: want ErrSerializationFailed, got %v", err)
	}

	if _, err := events.Parse([]byte(`{"data":{}}`)); !errors.Is(err, berr.ErrUnknownEvent) {
		t.Fatalf("missing type: want ErrUnknownEvent, got %v", err)
	}
}

func TestPayloadHelpers(t *testing.T) {
	tests := []struct {
		data map[string]any
		want int
		ok   bool
	}{
		{map[string]any{"stock": float64(5)}, 5, true},
		{map[string]any{"stock": 50}, 50, true},
		{map[string]any{"stock": json.Number("7")}, 7, true},
		{map[string]any{"stock": "3"}, 3, true},
		{map[string]any{"stock": "many"}, 0, false},
		{map[string]any{"name": "lamp"}, 0, false},
		{nil, 0, false},
	}

	for _, tc := range tests {
		got, ok := events.ProductPayload{ProductData: tc.data}.Stock()
		if got != tc.want || ok != tc.ok {
			t.Fatalf("Stock(%v)=%d,%v want %d,%v", tc.data, got, ok, tc.want, tc.ok)
		}
	}

	if lvl, ok := (events.UserPayload{UserData: map[string]any{"level": "gold"}}).Level(); !ok || lvl != "gold" {
		t.Fatalf("level=%q ok=%v", lvl, ok)
	}

	if _, ok := (events.UserPayload{}).Level(); ok {
		t.Fatalf("missing level reported present")
	}
}
