package servicebus

import (
	"errors"
	"testing"
	"time"

	cbus "github.com/yuanzhaoK/admin-platform-sub004/contract/bus"
	berr "github.com/yuanzhaoK/admin-platform-sub004/contract/errors"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()

	if c.Exchange.Name != defaultExchange || c.Exchange.Type != ExchangeTopic {
		t.Fatalf("unexpected exchange %+v", c.Exchange)
	}

	if c.Prefetch != 1 || c.Tick != defaultTick || c.HandlerTimeout != defaultHandlerTimeout {
		t.Fatalf("unexpected defaults %+v", c)
	}

	if c.ForwardTimeout != defaultForwardTimeout || c.ForwardBuffer != defaultForwardBuffer {
		t.Fatalf("unexpected mirror defaults %+v", c)
	}

	if err := c.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"non-topic exchange", Config{Exchange: ExchangeConfig{Type: "direct"}}},
		{"negative retries", Config{Retry: RetryConfig{MaxRetries: -1}}},
		{"empty queue name", Config{Queues: map[string]cbus.QueueOptions{"": {}}}},
		{"bad pattern", Config{Queues: map[string]cbus.QueueOptions{"q": {Patterns: []string{"a..b"}}}}},
	}

	for _, tc := range tests {
		if err := tc.cfg.withDefaults().Validate(); !errors.Is(err, berr.ErrInvalidConfig) && !errors.Is(err, berr.ErrInvalidPattern) {
			t.Fatalf("%s: want validation error, got %v", tc.name, err)
		}
	}
}

func TestBackoff(t *testing.T) {
	c := Config{Retry: RetryConfig{RetryDelay: 100 * time.Millisecond}}

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
	for i, w := range want {
		if got := c.backoff(i); got != w {
			t.Fatalf("backoff(%d)=%s want %s", i, got, w)
		}
	}

	if got := c.backoff(20); got != maxRetryDelay {
		t.Fatalf("backoff must cap at %s, got %s", maxRetryDelay, got)
	}
}

func TestRouterRouteIsSortedAndDeduplicated(t *testing.T) {
	r := newRouter()

	_ = r.bind("zeta", "order.#")
	_ = r.bind("alpha", "order.*")
	_ = r.bind("alpha", "order.created")
	_ = r.bind("mid", "user.#")

	got := r.route("order.created")
	if len(got) != 2 || got[0] != "alpha" || got[1] != "zeta" {
		t.Fatalf("route=%v", got)
	}

	r.unbindAll("alpha")

	if got := r.route("order.created"); len(got) != 1 || got[0] != "zeta" {
		t.Fatalf("route after unbind=%v", got)
	}
}
