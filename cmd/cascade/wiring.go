package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"

	"github.com/yuanzhaoK/admin-platform-sub004/adapters/kafka"
	"github.com/yuanzhaoK/admin-platform-sub004/adapters/nats"
	"github.com/yuanzhaoK/admin-platform-sub004/adapters/rabbitmq"
	"github.com/yuanzhaoK/admin-platform-sub004/config"
	cbus "github.com/yuanzhaoK/admin-platform-sub004/contract/bus"
	"github.com/yuanzhaoK/admin-platform-sub004/runtime"
	"github.com/yuanzhaoK/admin-platform-sub004/store"
	"github.com/yuanzhaoK/admin-platform-sub004/store/postgres"
	"github.com/yuanzhaoK/admin-platform-sub004/store/rediscache"
)

// openStore picks postgres when DATABASE_URL is set and the in-memory store otherwise, and puts
// the redis cache in front when REDIS_URL is set.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, []runtime.ReadyCheck, func(), error) {
	var (
		st      store.Store = store.NewMemory()
		checks  []runtime.ReadyCheck
		closers []func()
	)

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.DatabaseURL != "" {
		pool, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open postgres: %w", err)
		}

		closers = append(closers, pool.Close)

		pg := postgres.New(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			closeAll()
			return nil, nil, nil, fmt.Errorf("postgres schema: %w", err)
		}

		st = pg
		checks = append(checks, runtime.ReadyCheck{Name: "postgres", Check: pool.Ping})
	} else {
		logger.Warn("DATABASE_URL not set, records are kept in memory")
	}

	if cfg.RedisURL != "" {
		rdb, err := rediscache.Open(ctx, cfg.RedisURL)
		if err != nil {
			closeAll()
			return nil, nil, nil, fmt.Errorf("open redis: %w", err)
		}

		closers = append(closers, func() { _ = rdb.Close() })

		st = rediscache.New(st, rdb, rediscache.WithTTL(cfg.CacheTTL), rediscache.WithLogger(logger))
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	return st, checks, closeAll, nil
}

// openForwarder builds the transport mirror named by BROKER_TRANSPORT. It returns a nil
// forwarder for "none".
func openForwarder(cfg config.Config, logger *slog.Logger) (cbus.Forwarder, func(), error) {
	b := cfg.Broker
	exchange := cfg.Bus().Exchange

	switch b.Transport {
	case config.TransportRabbitMQ:
		f, err := rabbitmq.Dial(rabbitmq.Config{
			URL:        b.URL,
			Exchange:   exchange.Name,
			Durable:    exchange.Durable,
			ClientName: cfg.ServiceName,
		}, logger)
		if err != nil {
			return nil, nil, err
		}

		return f, func() { _ = f.Close() }, nil
	case config.TransportNATS:
		f, cleanup, err := nats.NewWithNATS(nats.Config{
			URL:    b.URL,
			Name:   cfg.ServiceName,
			Prefix: exchange.Name,
		})
		if err != nil {
			return nil, nil, err
		}

		return f, cleanup, nil
	case config.TransportKafka:
		kc, err := kafkaConfig(cfg)
		if err != nil {
			return nil, nil, err
		}

		f, cleanup, err := kafka.NewWithKgo(kc)
		if err != nil {
			return nil, nil, err
		}

		return f, cleanup, nil
	default:
		return nil, func() {}, nil
	}
}

func kafkaConfig(cfg config.Config) (kafka.Config, error) {
	k := cfg.Broker.Kafka

	codec, err := kafka.ParseCompression(k.Compression)
	if err != nil {
		return kafka.Config{}, err
	}

	acks, err := kafka.ParseAcks(k.Acks)
	if err != nil {
		return kafka.Config{}, err
	}

	kc := kafka.Config{
		Brokers:     cfg.Broker.KafkaBrokers,
		Topic:       cfg.Broker.KafkaTopic,
		ClientID:    cfg.ServiceName,
		Acks:        acks,
		Idempotent:  k.Idempotent,
		Compression: codec,
	}

	if k.TLS {
		kc.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	if k.SASLMechanism != "" {
		kc.SASL = &kafka.SASLConfig{Mechanism: k.SASLMechanism, Username: k.SASLUsername, Password: k.SASLPassword}
	}

	return kc, nil
}
