package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	berr "github.com/yuanzhaoK/admin-platform-sub004/contract/errors"
)

// HeaderMsgID carries the broker message id; JetStream uses it for de-duplication.
const HeaderMsgID = nats.MsgIdHdr

// Concrete NATS connection-backed Client and constructor.

type Config struct {
	URL           string
	Name          string
	Prefix        string
	ConnTimeout   time.Duration
	MaxReconnects int
}

type natsClient struct{ nc *nats.Conn }

func (c natsClient) Publish(subject string, data []byte, headers map[string]string) error {
	msg := nats.NewMsg(subject)
	msg.Data = data

	for k, v := range headers {
		msg.Header.Set(k, v)
	}

	return c.nc.PublishMsg(msg)
}

func (c natsClient) Flush(ctx context.Context) error { return c.nc.FlushWithContext(ctx) }

// NewWithNATS creates a real NATS connection and returns a Forwarder and a cleanup.
func NewWithNATS(cfg Config) (*Forwarder, func(), error) {
	if cfg.URL == "" {
		return nil, nil, fmt.Errorf("nats url required: %w", berr.ErrInvalidConfig)
	}

	opts := []nats.Option{}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}

	if cfg.ConnTimeout > 0 {
		opts = append(opts, nats.Timeout(cfg.ConnTimeout))
	}

	if cfg.MaxReconnects != 0 {
		opts = append(opts, nats.MaxReconnects(cfg.MaxReconnects))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", fmt.Errorf("%w: %w", berr.ErrNotConnected, err))
	}

	f := New(natsClient{nc: nc}, cfg.Prefix)
	cleanup := func() {
		if !nc.IsClosed() {
			_ = nc.Drain() //nolint:errcheck // best-effort shutdown; cannot return error here
			nc.Close()
		}
	}

	return f, cleanup, nil
}
