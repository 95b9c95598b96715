package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	berr "github.com/yuanzhaoK/admin-platform-sub004/contract/errors"
)

// Concrete AMQP connection-backed constructor and publisher wrapper with auto-reconnect.

const (
	exchangeKind       = "topic"
	defaultClientName  = "admin-platform-events"
	defaultConnTimeout = 5 * time.Second
	minBackoff         = time.Second
	maxBackoff         = 30 * time.Second
)

type Config struct {
	URL         string
	ConnTimeout time.Duration

	// Exchange is declared as a topic exchange on every (re)connect.
	Exchange string
	Durable  bool

	// ClientName is reported to the server in the connection properties.
	ClientName string
}

type reconnectingPublisher struct {
	cfg    Config
	logger *slog.Logger

	mu    sync.RWMutex
	conn  *amqp.Connection
	ch    *amqp.Channel
	ready chan struct{} // closed while a channel is held

	closed    chan struct{}
	closeOnce sync.Once
}

func newReconnectingPublisher(cfg Config, logger *slog.Logger) *reconnectingPublisher {
	rp := &reconnectingPublisher{
		cfg:    cfg,
		logger: logger,
		ready:  make(chan struct{}),
		closed: make(chan struct{}),
	}
	go rp.run()

	return rp
}

func (rp *reconnectingPublisher) current() (*amqp.Channel, chan struct{}) {
	rp.mu.RLock()
	defer rp.mu.RUnlock()

	return rp.ch, rp.ready
}

func (rp *reconnectingPublisher) WaitReady(ctx context.Context) error {
	for {
		ch, ready := rp.current()
		if ch != nil {
			return nil
		}

		select {
		case <-ready:
		case <-rp.closed:
			return berr.ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Publish fails fast with ErrNotConnected while the connection is down.
// Waiting for a reconnect is left to Connect.
func (rp *reconnectingPublisher) Publish(ctx context.Context, m PubMsg) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case <-rp.closed:
		return fmt.Errorf("rabbitmq publish: %w", berr.ErrClosed)
	default:
	}

	ch, _ := rp.current()
	if ch == nil {
		return fmt.Errorf("rabbitmq publish: %w", berr.ErrNotConnected)
	}

	return ch.PublishWithContext(ctx, m.Exchange, m.RoutingKey, false, false, toPublishing(m, amqp.Persistent))
}

func (rp *reconnectingPublisher) dial() (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.DialConfig(rp.cfg.URL, amqp.Config{
		Locale:     "en_US",
		Properties: amqp.Table{"product": rp.cfg.ClientName},
		Dial:       amqp.DefaultDial(rp.cfg.ConnTimeout),
	})
	if err != nil {
		return nil, nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}

	if err := ch.ExchangeDeclare(rp.cfg.Exchange, exchangeKind, rp.cfg.Durable, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()

		return nil, nil, err
	}

	return conn, ch, nil
}

func (rp *reconnectingPublisher) run() {
	backoff := minBackoff

	for {
		select {
		case <-rp.closed:
			return
		default:
		}

		conn, ch, err := rp.dial()
		if err != nil {
			// exponential backoff with jitter
			sleep := min(backoff+rand.N(backoff/2), maxBackoff)
			rp.logger.Warn("rabbitmq dial failed", "exchange", rp.cfg.Exchange, "retry_in", sleep, "err", err)

			t := time.NewTimer(sleep)
			select {
			case <-rp.closed:
				t.Stop()
				return
			case <-t.C:
			}

			backoff = min(backoff*2, maxBackoff)

			continue
		}

		backoff = minBackoff

		rp.mu.Lock()
		rp.conn, rp.ch = conn, ch
		close(rp.ready)
		rp.mu.Unlock()

		rp.logger.Info("rabbitmq connected", "exchange", rp.cfg.Exchange)

		// Block on connection close notifications to trigger reconnect
		notify := conn.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-rp.closed:
			rp.release()
			return
		case aerr := <-notify:
			rp.logger.Warn("rabbitmq connection lost", "exchange", rp.cfg.Exchange, "err", aerr)
			rp.release()
		}
	}
}

// release drops the held channel and arms a fresh readiness signal.
func (rp *reconnectingPublisher) release() {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if rp.ch != nil {
		_ = rp.ch.Close()
		rp.ch = nil
		rp.ready = make(chan struct{})
	}

	if rp.conn != nil {
		_ = rp.conn.Close()
		rp.conn = nil
	}
}

func (rp *reconnectingPublisher) Close() error {
	rp.closeOnce.Do(func() { close(rp.closed) })
	rp.release()

	return nil
}

// Dial starts a reconnecting publisher and returns a Forwarder over it. The connection is made
// in the background: Forwarder.Connect waits for it and Forwarder.Close stops it.
func Dial(cfg Config, logger *slog.Logger) (*Forwarder, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("rabbitmq url required: %w", berr.ErrInvalidConfig)
	}

	if cfg.Exchange == "" {
		return nil, fmt.Errorf("rabbitmq exchange required: %w", berr.ErrInvalidConfig)
	}

	if cfg.ClientName == "" {
		cfg.ClientName = defaultClientName
	}

	if cfg.ConnTimeout <= 0 {
		cfg.ConnTimeout = defaultConnTimeout
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return New(newReconnectingPublisher(cfg, logger), cfg.Exchange), nil
}
