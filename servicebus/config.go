package servicebus

import (
	"fmt"
	"time"

	cbus "github.com/yuanzhaoK/admin-platform-sub004/contract/bus"
	berr "github.com/yuanzhaoK/admin-platform-sub004/contract/errors"
)

// ExchangeTopic is the only supported exchange type.
const ExchangeTopic = "topic"

const (
	defaultExchange       = "commerce.events"
	defaultPrefetch       = 1
	defaultTick           = 100 * time.Millisecond
	defaultHandlerTimeout = 30 * time.Second
	defaultConnectTimeout = 5 * time.Second
	defaultForwardTimeout = 5 * time.Second
	defaultForwardBuffer  = 1024
	defaultRetryDelay     = time.Second
	maxRetryDelay         = 30 * time.Second
)

// ExchangeConfig names the exchange. Name and Durable are handed to transports that mirror messages.
type ExchangeConfig struct {
	Name    string
	Type    string
	Durable bool
}

// RetryConfig drives the forwarder connect backoff on Connect.
type RetryConfig struct {
	MaxRetries int
	RetryDelay time.Duration
}

// Config configures a Bus. Zero values take defaults.
type Config struct {
	Exchange ExchangeConfig

	// Queues are declared, with their patterns bound, on Connect.
	Queues map[string]cbus.QueueOptions

	// Prefetch bounds the messages per queue that are dequeued but not yet handled.
	Prefetch int

	Retry RetryConfig

	// Tick is the fallback dispatch interval; enqueues wake the dispatcher immediately.
	Tick time.Duration

	// HandlerTimeout bounds a single handler invocation.
	HandlerTimeout time.Duration

	// ConnectTimeout bounds a single forwarder connect attempt.
	ConnectTimeout time.Duration

	// ForwardTimeout bounds mirroring one message to the forwarder.
	ForwardTimeout time.Duration

	// ForwardBuffer is how many messages may wait for the forwarder. Beyond it mirroring drops.
	ForwardBuffer int
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.Exchange.Name == "" {
		c.Exchange.Name = defaultExchange
	}

	if c.Exchange.Type == "" {
		c.Exchange.Type = ExchangeTopic
	}

	if c.Prefetch <= 0 {
		c.Prefetch = defaultPrefetch
	}

	if c.Retry.RetryDelay <= 0 {
		c.Retry.RetryDelay = defaultRetryDelay
	}

	if c.Tick <= 0 {
		c.Tick = defaultTick
	}

	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = defaultHandlerTimeout
	}

	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}

	if c.ForwardTimeout <= 0 {
		c.ForwardTimeout = defaultForwardTimeout
	}

	if c.ForwardBuffer <= 0 {
		c.ForwardBuffer = defaultForwardBuffer
	}

	return c
}

// Validate reports configuration the broker cannot honour.
func (c Config) Validate() error {
	if c.Exchange.Type != "" && c.Exchange.Type != ExchangeTopic {
		return fmt.Errorf("exchange %s type %q: only %q is supported: %w",
			c.Exchange.Name, c.Exchange.Type, ExchangeTopic, berr.ErrInvalidConfig)
	}

	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry max retries %d: %w", c.Retry.MaxRetries, berr.ErrInvalidConfig)
	}

	for name, q := range c.Queues {
		if name == "" {
			return fmt.Errorf("queue with empty name: %w", berr.ErrInvalidConfig)
		}

		for _, p := range q.Patterns {
			if err := validatePattern(p); err != nil {
				return fmt.Errorf("queue %s: %w", name, err)
			}
		}
	}

	return nil
}

// backoff returns the delay before retry attempt n (0-based), doubling from RetryDelay up to a cap.
func (c Config) backoff(n int) time.Duration {
	d := c.Retry.RetryDelay
	for i := 0; i < n && d < maxRetryDelay; i++ {
		d *= 2
	}

	return min(d, maxRetryDelay)
}
