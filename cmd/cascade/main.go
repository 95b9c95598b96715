// Command cascade runs the commerce event bus: the domain consumers, the HTTP ingress and
// the operational endpoints.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yuanzhaoK/admin-platform-sub004/adapters/otelprop"
	"github.com/yuanzhaoK/admin-platform-sub004/config"
	"github.com/yuanzhaoK/admin-platform-sub004/consumer"
	berr "github.com/yuanzhaoK/admin-platform-sub004/contract/errors"
	"github.com/yuanzhaoK/admin-platform-sub004/events"
	"github.com/yuanzhaoK/admin-platform-sub004/ingress"
	"github.com/yuanzhaoK/admin-platform-sub004/publisher"
	"github.com/yuanzhaoK/admin-platform-sub004/runtime"
	"github.com/yuanzhaoK/admin-platform-sub004/servicebus"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	logger := runtime.NewLogger(cfg.ServiceName, cfg.LogLevel)

	ctx, stop := runtime.SignalContext()
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("service stopped", "err", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	otelprop.InstallGlobal()

	var cleanups []func()
	defer func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}()

	st, storeChecks, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	cleanups = append(cleanups, closeStore)

	fwd, closeFwd, err := openForwarder(cfg, logger)
	if err != nil {
		return err
	}

	cleanups = append(cleanups, closeFwd)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []servicebus.Option{
		servicebus.WithMetrics(servicebus.NewMetrics(reg)),
		servicebus.WithPropagator(otelprop.New(nil)),
	}
	if fwd != nil {
		opts = append(opts, servicebus.WithForwarder(fwd))
	}

	bus := servicebus.New(cfg.Bus(), logger, opts...)
	if err := bus.Connect(ctx); err != nil {
		return fmt.Errorf("connect bus: %w", err)
	}

	c := consumer.New(bus, st,
		consumer.WithLogger(logger),
		consumer.WithMaxCascadeDepth(cfg.MaxCascadeDepth),
	)
	if err := c.Initialize(ctx); err != nil {
		_ = bus.Close()
		return fmt.Errorf("initialize consumer: %w", err)
	}

	pub := publisher.New(bus, publisher.WithSource(events.SourceAPI), publisher.WithLogger(logger))

	checks := append([]runtime.ReadyCheck{{Name: "bus", Check: func(context.Context) error {
		if !bus.Stats().Connected {
			return berr.ErrNotConnected
		}

		return nil
	}}}, storeChecks...)

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	ingress.NewHandler(pub, logger, ingress.WithJWTSecret([]byte(cfg.JWTSecret))).Routes(mux)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           ingress.Server(mux, cfg.ServiceName, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)

	go func() {
		logger.Info("http listening", "addr", srv.Addr, "transport", cfg.Broker.Transport)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}

		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-serveErr:
		if err != nil {
			logger.Error("http server failed", "err", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var errs []error

	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	// Let in-flight cascades finish before the handlers go away.
	if err := bus.Drain(shutdownCtx); err != nil {
		logger.Warn("drain incomplete", "err", err, "pending", bus.Stats().Pending)
	}

	if err := c.Close(); err != nil {
		errs = append(errs, fmt.Errorf("consumer close: %w", err))
	}

	if err := bus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("bus close: %w", err))
	}

	return errors.Join(errs...)
}
