// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	berr "github.com/yuanzhaoK/admin-platform-sub004/contract/errors"
	"github.com/yuanzhaoK/admin-platform-sub004/servicebus"
)

// Transports accepted in BROKER_TRANSPORT.
const (
	TransportNone     = "none"
	TransportRabbitMQ = "rabbitmq"
	TransportNATS     = "nats"
	TransportKafka    = "kafka"
)

const (
	defaultServiceName = "commerce-events"
	defaultPort        = "8080"
	defaultCacheTTL    = 5 * time.Minute
	defaultMaxDepth    = 8
)

// Broker configures the in-process bus and the optional transport it mirrors to.
type Broker struct {
	Transport       string
	URL             string
	Exchange        string
	ExchangeDurable bool
	Prefetch        int
	MaxRetries      int
	RetryDelay      time.Duration
	Tick            time.Duration
	HandlerTimeout  time.Duration
	ForwardTimeout  time.Duration
	KafkaBrokers    []string
	KafkaTopic      string
	Kafka           Kafka
}

// Kafka holds the client settings of the kafka transport. Codec and acks names are parsed
// when the client is built.
type Kafka struct {
	TLS           bool
	SASLMechanism string
	SASLUsername  string
	SASLPassword  string
	Acks          string
	Idempotent    bool
	Compression   string
}

type Config struct {
	ServiceName     string
	Port            string
	LogLevel        slog.Level
	DatabaseURL     string
	RedisURL        string
	JWTSecret       string
	CacheTTL        time.Duration
	MaxCascadeDepth int
	Broker          Broker
}

// Load reads every variable and reports all invalid ones together.
func Load() (Config, error) {
	var errs []error

	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := Config{
		ServiceName: String("SERVICE_NAME", defaultServiceName),
		DatabaseURL: String("DATABASE_URL", ""),
		RedisURL:    String("REDIS_URL", ""),
		JWTSecret:   String("INGRESS_JWT_SECRET", ""),
	}

	var err error

	cfg.Port, err = Port("PORT", defaultPort)
	collect(err)

	cfg.LogLevel, err = ParseLevel(String("LOG_LEVEL", "info"))
	collect(err)

	cfg.CacheTTL, err = Duration("CACHE_TTL", defaultCacheTTL)
	collect(err)

	cfg.MaxCascadeDepth, err = Int("MAX_CASCADE_DEPTH", defaultMaxDepth)
	collect(err)

	cfg.Broker, err = loadBroker()
	collect(err)

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}

	return cfg, nil
}

func loadBroker() (Broker, error) {
	var errs []error

	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	b := Broker{
		Transport:    strings.ToLower(String("BROKER_TRANSPORT", TransportNone)),
		URL:          String("BROKER_URL", ""),
		Exchange:     String("BROKER_EXCHANGE", ""),
		KafkaBrokers: List("KAFKA_BROKERS"),
		KafkaTopic:   String("KAFKA_TOPIC", ""),
		Kafka: Kafka{
			SASLMechanism: String("KAFKA_SASL_MECHANISM", ""),
			SASLUsername:  String("KAFKA_SASL_USERNAME", ""),
			SASLPassword:  String("KAFKA_SASL_PASSWORD", ""),
			Acks:          String("KAFKA_ACKS", ""),
			Compression:   String("KAFKA_COMPRESSION", ""),
		},
	}

	var err error

	b.ExchangeDurable, err = Bool("BROKER_EXCHANGE_DURABLE", true)
	collect(err)

	b.Prefetch, err = Int("BROKER_PREFETCH", 1)
	collect(err)

	b.MaxRetries, err = Int("BROKER_MAX_RETRIES", 3)
	collect(err)

	b.RetryDelay, err = Duration("BROKER_RETRY_DELAY", time.Second)
	collect(err)

	b.Tick, err = Duration("BROKER_TICK", 100*time.Millisecond)
	collect(err)

	b.HandlerTimeout, err = Duration("HANDLER_TIMEOUT", 30*time.Second)
	collect(err)

	b.ForwardTimeout, err = Duration("BROKER_FORWARD_TIMEOUT", 5*time.Second)
	collect(err)

	b.Kafka.TLS, err = Bool("KAFKA_TLS", false)
	collect(err)

	b.Kafka.Idempotent, err = Bool("KAFKA_IDEMPOTENT", false)
	collect(err)

	collect(b.validate())

	return b, errors.Join(errs...)
}

func (b Broker) validate() error {
	switch b.Transport {
	case TransportNone:
	case TransportRabbitMQ, TransportNATS:
		if b.URL == "" {
			return fmt.Errorf("BROKER_URL is required for transport %s: %w", b.Transport, berr.ErrInvalidConfig)
		}
	case TransportKafka:
		if len(b.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required for transport kafka: %w", berr.ErrInvalidConfig)
		}

		if b.Kafka.SASLMechanism != "" && b.Kafka.SASLUsername == "" {
			return fmt.Errorf("KAFKA_SASL_USERNAME is required with KAFKA_SASL_MECHANISM: %w", berr.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("BROKER_TRANSPORT %q: want none, rabbitmq, nats or kafka: %w", b.Transport, berr.ErrInvalidConfig)
	}

	if b.Prefetch < 1 {
		return fmt.Errorf("BROKER_PREFETCH must be at least 1 (got %d): %w", b.Prefetch, berr.ErrInvalidConfig)
	}

	return nil
}

// Bus returns the servicebus configuration. Queues are left to the consumer, which declares its own.
func (c Config) Bus() servicebus.Config {
	return servicebus.Config{
		Exchange: servicebus.ExchangeConfig{
			Name:    c.Broker.Exchange,
			Type:    servicebus.ExchangeTopic,
			Durable: c.Broker.ExchangeDurable,
		},
		Prefetch: c.Broker.Prefetch,
		Retry: servicebus.RetryConfig{
			MaxRetries: c.Broker.MaxRetries,
			RetryDelay: c.Broker.RetryDelay,
		},
		Tick:           c.Broker.Tick,
		HandlerTimeout: c.Broker.HandlerTimeout,
		ForwardTimeout: c.Broker.ForwardTimeout,
	}
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL %q: %w", s, berr.ErrInvalidConfig)
	}

	return l, nil
}
