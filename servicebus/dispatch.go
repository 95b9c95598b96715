package servicebus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	cbus "github.com/yuanzhaoK/admin-platform-sub004/contract/bus"
	berr "github.com/yuanzhaoK/admin-platform-sub004/contract/errors"
)

// run is the dispatch loop. It wakes on enqueue, on delivery completion and on the fallback tick.
func (b *Bus) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(b.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-b.wake:
		case <-ticker.C:
		}

		if b.round() {
			b.signal()
		}
	}
}

// round pops at most one message from every queue that has a consumer and a free prefetch token.
// It reports whether another round could make progress right away.
func (b *Bus) round() bool {
	again := false

	for _, q := range b.queues.snapshot() {
		if q.consumers() == 0 || !q.acquire() {
			continue
		}

		msg, ok := b.take(q)
		if !ok {
			q.release()
			continue
		}

		b.deliveries.Add(1)

		go b.deliver(q, msg)

		if q.depth() > 0 {
			again = true
		}
	}

	return again
}

// signal wakes the dispatch loop without blocking.
func (b *Bus) signal() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Bus) enqueue(q *queue, msg cbus.Message) {
	b.countMu.Lock()
	if b.state.Load() == stateClosed {
		b.countMu.Unlock()
		return
	}
	b.pending++
	b.countMu.Unlock()

	q.push(msg)
	b.metrics.queueDepth.WithLabelValues(q.name).Inc()
}

func (b *Bus) take(q *queue) (cbus.Message, bool) {
	b.countMu.Lock()
	defer b.countMu.Unlock()

	msg, ok := q.pop()
	if ok {
		b.pending--
		b.inflight++
		b.metrics.queueDepth.WithLabelValues(q.name).Dec()
	}

	return msg, ok
}

func (b *Bus) finish() {
	b.countMu.Lock()
	b.inflight--
	b.settle()
	b.countMu.Unlock()
}

// settle wakes Drain waiters once the bus is idle. Callers hold countMu.
func (b *Bus) settle() {
	if b.idle != nil && b.idleLocked() {
		close(b.idle)
		b.idle = nil
	}
}

// idleLocked reports whether nothing deliverable is queued or in flight and the mirror
// backlog is empty. Messages on queues without consumers do not count. Callers hold countMu.
func (b *Bus) idleLocked() bool {
	if b.inflight > 0 || b.mirroring > 0 {
		return false
	}

	if b.pending <= 0 {
		return true
	}

	for _, q := range b.queues.snapshot() {
		if q.consumers() > 0 && q.depth() > 0 {
			return false
		}
	}

	return true
}

// deliver runs every handler of q for msg, one after another.
func (b *Bus) deliver(q *queue, msg cbus.Message) {
	defer b.deliveries.Done()
	defer func() {
		q.release()
		b.finish()
		b.signal()
	}()

	ctx := b.prop.Extract(b.baseCtx, msg.Headers)
	ctx, span := b.tracer.Start(ctx, "servicebus.deliver",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "servicebus"),
			attribute.String("messaging.destination.name", q.name),
			attribute.String("messaging.message.id", msg.ID),
			attribute.String("messaging.routing_key", msg.RoutingKey),
		),
	)
	defer span.End()

	q.delivered.Add(1)
	b.delivered.Add(1)
	b.metrics.delivered.WithLabelValues(q.name).Inc()

	for _, h := range q.handlers() {
		if err := b.invoke(ctx, q, h, msg.Clone()); err != nil {
			q.failed.Add(1)
			b.failed.Add(1)
			span.RecordError(err)
			span.SetStatus(codes.Error, "handler failed")
		}
	}
}

// invoke runs one handler with the middleware chain, a timeout and panic recovery.
// Every failure is logged here and returned only for accounting.
func (b *Bus) invoke(ctx context.Context, q *queue, h cbus.Handler, msg cbus.Message) error {
	for i := len(b.mw) - 1; i >= 0; i-- {
		h = b.mw[i](h)
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.HandlerTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v: %w", r, berr.ErrHandlerFailed)
			}
		}()

		done <- h(ctx, msg)
	}()

	var err error

	select {
	case err = <-done:
		if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
			err = fmt.Errorf("after %s: %w", b.cfg.HandlerTimeout, errors.Join(berr.ErrHandlerTimeout, err))
		} else if err != nil && !errors.Is(err, berr.ErrHandlerFailed) {
			err = errors.Join(berr.ErrHandlerFailed, err)
		}
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("after %s: %w", b.cfg.HandlerTimeout, berr.ErrHandlerTimeout)
		} else {
			err = errors.Join(berr.ErrHandlerFailed, ctx.Err())
		}
	}

	b.metrics.handlerDuration.WithLabelValues(q.name).Observe(time.Since(start).Seconds())

	if err != nil {
		b.metrics.handlerErrors.WithLabelValues(q.name, failureReason(err)).Inc()
		b.logger.ErrorContext(ctx, "handler failed",
			"queue", q.name, "routing_key", msg.RoutingKey, "message_id", msg.ID, "err", err)
	}

	return err
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, berr.ErrHandlerTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
