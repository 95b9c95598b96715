package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/yuanzhaoK/admin-platform-sub004/consumer"
	"github.com/yuanzhaoK/admin-platform-sub004/events"
	"github.com/yuanzhaoK/admin-platform-sub004/servicebus"
	"github.com/yuanzhaoK/admin-platform-sub004/store"
)

func TestNewMemoryStack_OrderToUpgrade(t *testing.T) {
	var (
		mu    sync.Mutex
		notes []string
	)

	notifier := consumer.NotifierFunc(func(_ context.Context, n events.Notification) error {
		mu.Lock()
		notes = append(notes, n.Type)
		mu.Unlock()

		return nil
	})

	s, cleanup, err := New(t.Context(),
		WithConfig(servicebus.Config{Tick: 5 * time.Millisecond}),
		WithConsumerOptions(consumer.WithNotifier(notifier)),
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer cleanup()

	s.Store.Seed(store.Users, store.Record{store.FieldID: "u1", "points": 990, "level": "bronze"})

	err = s.Publisher.PublishOrderEvent(t.Context(), events.OrderCompleted{OrderPayload: events.OrderPayload{
		OrderID:   "o1",
		UserID:    "u1",
		OrderData: map[string]any{"totalAmount": 120.0},
	}})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()

	if err := s.Settle(ctx); err != nil {
		t.Fatalf("settle: %v", err)
	}

	user, err := s.Store.Get(t.Context(), store.Users, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if user.Int("points") != 1002 || user.String("level") != consumer.LevelSilver {
		t.Fatalf("user: %v", user)
	}

	want := []string{
		events.TopicOrderCompleted,
		events.TopicPointsEarned,
		events.TopicMemberUpgraded,
		events.TopicNotification,
	}

	got := s.Mirror.RoutingKeys()
	if len(got) != len(want) {
		t.Fatalf("mirrored %v want %v", got, want)
	}

	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("mirrored %v want %v", got, want)
		}
	}

	mu.Lock()
	defer mu.Unlock()

	if len(notes) != 1 || notes[0] != events.NotifyMemberUpgraded {
		t.Fatalf("notifications: %v", notes)
	}
}

func TestNewMemoryStack_CleanupCloses(t *testing.T) {
	s, cleanup, err := New(t.Context())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	cleanup()

	if s.Bus.Stats().Connected {
		t.Fatalf("bus still connected after cleanup")
	}
}
