package servicebus_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	cbus "github.com/yuanzhaoK/admin-platform-sub004/contract/bus"
	"github.com/yuanzhaoK/admin-platform-sub004/servicebus"
)

// counterSum adds every series of the named family.
func counterSum(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	var sum float64

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}

		for _, m := range mf.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
	}

	return sum
}

func Test_MetricsCountTraffic(t *testing.T) {
	reg := prometheus.NewRegistry()
	b := newBus(t, servicebus.Config{}, servicebus.WithMetrics(servicebus.NewMetrics(reg)))

	if err := b.Bind("orders", "order.#"); err != nil {
		t.Fatalf("bind: %v", err)
	}

	_, _ = b.Consume("orders", func(context.Context, cbus.Message) error { return errors.New("boom") })

	for _, key := range []string{"order.created", "order.completed", "inventory.adjusted"} {
		if err := b.Publish(t.Context(), key, 1, cbus.PublishOptions{}); err != nil {
			t.Fatalf("publish %s: %v", key, err)
		}
	}

	drain(t, b)

	checks := map[string]float64{
		"servicebus_published_total":      3,
		"servicebus_unrouted_total":       1,
		"servicebus_delivered_total":      2,
		"servicebus_handler_errors_total": 2,
	}

	for name, want := range checks {
		if got := counterSum(t, reg, name); got != want {
			t.Fatalf("%s = %v, want %v", name, got, want)
		}
	}
}

func Test_NewMetricsWithoutRegistry(t *testing.T) {
	m := servicebus.NewMetrics(nil)
	b := newBus(t, servicebus.Config{}, servicebus.WithMetrics(m))

	if err := b.Publish(t.Context(), "order.created", 1, cbus.PublishOptions{}); err != nil {
		t.Fatalf("publish: %v", err)
	}
}
