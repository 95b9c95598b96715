package nats_test

import (
	"errors"
	"testing"
	"time"

	"github.com/yuanzhaoK/admin-platform-sub004/adapters/nats"
	berr "github.com/yuanzhaoK/admin-platform-sub004/contract/errors"
)

func TestNewWithNATS_EmptyURL(t *testing.T) {
	_, _, err := nats.NewWithNATS(nats.Config{})
	if !errors.Is(err, berr.ErrInvalidConfig) {
		t.Fatalf("want ErrInvalidConfig, got %v", err)
	}
}

func TestNewWithNATS_Unreachable(t *testing.T) {
	_, _, err := nats.NewWithNATS(nats.Config{URL: "nats://127.0.0.1:1", ConnTimeout: 50 * time.Millisecond})
	if !errors.Is(err, berr.ErrNotConnected) {
		t.Fatalf("want ErrNotConnected, got %v", err)
	}
}
