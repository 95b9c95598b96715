package servicebus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	cbus "github.com/yuanzhaoK/admin-platform-sub004/contract/bus"
	berr "github.com/yuanzhaoK/admin-platform-sub004/contract/errors"
)

const tracerName = "github.com/yuanzhaoK/admin-platform-sub004/servicebus"

const (
	stateIdle int32 = iota
	stateConnected
	stateClosed
)

// Bus is the in-process topic broker. It routes published messages to bound queues and
// dispatches them to the handlers registered on each queue.
//
// Bus is concurrency-safe and contains no global state.
type Bus struct {
	cfg     Config
	router  *router
	queues  *queueSet
	fwd     cbus.Forwarder
	prop    cbus.HeaderPropagator
	mw      []HandlerMiddleware
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
	now     func() time.Time

	lifeMu  sync.Mutex
	state   atomic.Int32
	baseCtx context.Context
	cancel  context.CancelFunc
	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}

	deliveries sync.WaitGroup

	// mirror feeds the forwarder goroutine. mirrorMu keeps sends off a closed channel.
	mirrorMu   sync.RWMutex
	mirror     chan cbus.Message
	mirrorDone chan struct{}

	// pending counts queued messages, inflight dequeued ones not yet handled,
	// mirroring those accepted for the forwarder and not yet forwarded.
	countMu   sync.Mutex
	pending   int
	inflight  int
	mirroring int
	idle      chan struct{}

	published     atomic.Uint64
	unrouted      atomic.Uint64
	delivered     atomic.Uint64
	failed        atomic.Uint64
	forwardFailed atomic.Uint64
}

// Option configures a Bus instance.
type Option func(*Bus)

// HandlerMiddleware wraps handler execution. Middlewares are executed in registration order.
type HandlerMiddleware func(next cbus.Handler) cbus.Handler

// WithForwarder mirrors every published message to f. Mirroring runs on its own goroutine,
// so a slow or unreachable forwarder never holds up Publish.
func WithForwarder(f cbus.Forwarder) Option { return func(b *Bus) { b.fwd = f } }

// WithPropagator carries trace context in message headers.
func WithPropagator(p cbus.HeaderPropagator) Option { return func(b *Bus) { b.prop = p } }

// WithHandlerMiddleware registers handler middleware.
func WithHandlerMiddleware(mw ...HandlerMiddleware) Option {
	return func(b *Bus) { b.mw = append(b.mw, mw...) }
}

// WithMetrics records broker activity on m.
func WithMetrics(m *Metrics) Option { return func(b *Bus) { b.metrics = m } }

// WithClock overrides the message timestamp source.
func WithClock(now func() time.Time) Option { return func(b *Bus) { b.now = now } }

var _ cbus.Broker = (*Bus)(nil)

// New constructs a Bus. Call Connect before publishing or consuming.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Bus {
	cfg = cfg.withDefaults()

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	b := &Bus{
		cfg:    cfg,
		router: newRouter(),
		queues: newQueueSet(cfg.Prefetch),
		prop:   cbus.NopHeaderPropagator{},
		logger: logger,
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
		wake:   make(chan struct{}, 1),
	}

	for _, o := range opts {
		o(b)
	}

	if b.metrics == nil {
		b.metrics = NewMetrics(nil)
	}

	return b
}

// Connect declares the configured queues, connects the forwarder and starts dispatching.
// Calling Connect on a connected Bus is a no-op.
func (b *Bus) Connect(ctx context.Context) error {
	b.lifeMu.Lock()
	defer b.lifeMu.Unlock()

	switch b.state.Load() {
	case stateConnected:
		return nil
	case stateClosed:
		return fmt.Errorf("servicebus connect: %w", berr.ErrClosed)
	}

	if err := b.cfg.Validate(); err != nil {
		return fmt.Errorf("servicebus connect: %w", err)
	}

	for _, name := range slices.Sorted(maps.Keys(b.cfg.Queues)) {
		if err := b.Declare(name, b.cfg.Queues[name]); err != nil {
			return fmt.Errorf("servicebus connect: %w", err)
		}
	}

	if err := b.connectForwarder(ctx); err != nil {
		return err
	}

	b.baseCtx, b.cancel = context.WithCancel(context.WithoutCancel(ctx))
	b.stop = make(chan struct{})
	b.done = make(chan struct{})

	go b.run(b.stop, b.done)

	if b.fwd != nil {
		b.mirrorMu.Lock()
		b.mirror = make(chan cbus.Message, b.cfg.ForwardBuffer)
		b.mirrorDone = make(chan struct{})
		b.mirrorMu.Unlock()

		go b.runMirror(b.mirror, b.mirrorDone)
	}

	b.state.Store(stateConnected)
	b.logger.InfoContext(ctx, "servicebus connected",
		"exchange", b.cfg.Exchange.Name, "prefetch", b.cfg.Prefetch, "queues", len(b.cfg.Queues))

	return nil
}

func (b *Bus) connectForwarder(ctx context.Context) error {
	c, ok := b.fwd.(cbus.Connector)
	if !ok {
		return nil
	}

	var err error

	for attempt := 0; attempt <= b.cfg.Retry.MaxRetries; attempt++ {
		actx, cancel := context.WithTimeout(ctx, b.cfg.ConnectTimeout)
		err = c.Connect(actx)
		cancel()

		if err == nil {
			if attempt > 0 {
				b.logger.InfoContext(ctx, "forwarder connected", "attempt", attempt+1)
			}

			return nil
		}

		if attempt == b.cfg.Retry.MaxRetries {
			break
		}

		wait := b.cfg.backoff(attempt)
		b.logger.WarnContext(ctx, "forwarder connect failed", "attempt", attempt+1, "retry_in", wait, "err", err)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("servicebus connect forwarder: %w", errors.Join(berr.ErrNotConnected, ctx.Err()))
		case <-t.C:
		}
	}

	return fmt.Errorf("servicebus connect forwarder after %d attempts: %w",
		b.cfg.Retry.MaxRetries+1, errors.Join(berr.ErrNotConnected, err))
}

// Declare creates queue with opts if it does not exist and binds opts.Patterns to it.
// Options of an existing queue are kept.
func (b *Bus) Declare(queue string, opts cbus.QueueOptions) error {
	if queue == "" {
		return fmt.Errorf("declare: empty queue name: %w", berr.ErrInvalidConfig)
	}

	if b.state.Load() == stateClosed {
		return fmt.Errorf("declare %s: %w", queue, berr.ErrClosed)
	}

	b.queues.declare(queue, opts)

	for _, p := range opts.Patterns {
		if err := b.router.bind(queue, p); err != nil {
			return err
		}
	}

	return nil
}

// Bind adds pattern to queue's bindings, declaring the queue if needed. Binds are additive.
func (b *Bus) Bind(queue, pattern string) error {
	if b.state.Load() == stateClosed {
		return fmt.Errorf("bind %s: %w", queue, berr.ErrClosed)
	}

	if err := b.router.bind(queue, pattern); err != nil {
		return err
	}

	b.queues.declare(queue, cbus.QueueOptions{})

	return nil
}

// Publish routes payload under routingKey to every bound queue. A key matching no binding
// enqueues nothing and is not an error.
func (b *Bus) Publish(ctx context.Context, routingKey string, payload any, opts cbus.PublishOptions) error {
	if err := b.ready(ctx, "publish"); err != nil {
		return err
	}

	if routingKey == "" {
		return fmt.Errorf("servicebus publish: empty routing key: %w", berr.ErrPublishFailed)
	}

	body, err := encode(payload)
	if err != nil {
		return fmt.Errorf("servicebus publish %s serialize: %w", routingKey, errors.Join(berr.ErrSerializationFailed, err))
	}

	msg := cbus.Message{
		ID:         opts.MessageID,
		RoutingKey: routingKey,
		Body:       body,
		Headers:    make(map[string]string, len(opts.Headers)+2),
		Timestamp:  b.now().UTC(),
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	maps.Copy(msg.Headers, opts.Headers)
	b.prop.Inject(ctx, msg.Headers)

	b.published.Add(1)
	b.metrics.published.WithLabelValues(routingKey).Inc()

	targets := b.router.route(routingKey)
	if len(targets) == 0 {
		b.unrouted.Add(1)
		b.metrics.unrouted.Inc()
		b.logger.DebugContext(ctx, "message matched no binding", "routing_key", routingKey, "message_id", msg.ID)
	}

	for _, name := range targets {
		b.enqueue(b.queues.declare(name, cbus.QueueOptions{}), msg)
	}

	if len(targets) > 0 {
		b.signal()
	}

	b.forward(ctx, msg)

	return nil
}

// Consume registers h on queue, declaring the queue if needed.
func (b *Bus) Consume(queue string, h cbus.Handler) (cbus.Subscription, error) {
	if err := b.ready(context.Background(), "consume"); err != nil {
		return nil, err
	}

	if queue == "" || h == nil {
		return nil, fmt.Errorf("servicebus consume %q: queue and handler required: %w", queue, berr.ErrInvalidConfig)
	}

	q := b.queues.declare(queue, cbus.QueueOptions{})
	s := &subscription{bus: b, q: q, handler: h}
	q.addSub(s)
	b.signal()

	return s, nil
}

// Close stops dispatching, cancels in-flight handlers and waits for them to return.
// Messages still queued are dropped. Close is idempotent.
func (b *Bus) Close() error {
	b.lifeMu.Lock()
	prev := b.state.Swap(stateClosed)
	b.lifeMu.Unlock()

	if prev == stateClosed {
		return nil
	}

	if prev == stateConnected {
		close(b.stop)
		<-b.done
		b.cancel()
		b.deliveries.Wait()

		b.mirrorMu.Lock()
		mirror, mirrorDone := b.mirror, b.mirrorDone
		b.mirror = nil
		b.mirrorMu.Unlock()

		if mirror != nil {
			close(mirror)
			<-mirrorDone
		}
	}

	dropped := 0
	for _, q := range b.queues.snapshot() {
		dropped += q.purge()
		b.metrics.queueDepth.WithLabelValues(q.name).Set(0)
	}

	b.countMu.Lock()
	b.pending -= dropped
	b.settle()
	b.countMu.Unlock()

	if dropped > 0 {
		b.logger.Warn("servicebus closed with queued messages", "dropped", dropped)
	}

	return nil
}

// Drain blocks until no message is queued or being handled and the mirror backlog is empty,
// or ctx is done. Messages published by handlers are counted before the handler returns, so
// a drained bus has finished every cascade. Messages waiting on a queue without consumers
// cannot be delivered and are not waited for.
func (b *Bus) Drain(ctx context.Context) error {
	for {
		b.countMu.Lock()
		if b.idleLocked() {
			b.countMu.Unlock()
			return nil
		}

		if b.idle == nil {
			b.idle = make(chan struct{})
		}

		idle := b.idle
		b.countMu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (b *Bus) ready(ctx context.Context, label string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	switch b.state.Load() {
	case stateConnected:
		return nil
	case stateClosed:
		return fmt.Errorf("servicebus %s: %w", label, errors.Join(berr.ErrNotConnected, berr.ErrClosed))
	default:
		return fmt.Errorf("servicebus %s: %w", label, berr.ErrNotConnected)
	}
}

// forward hands msg to the mirror goroutine without waiting for the forwarder.
// When the backlog is full the message is not mirrored.
func (b *Bus) forward(ctx context.Context, msg cbus.Message) {
	b.mirrorMu.RLock()
	defer b.mirrorMu.RUnlock()

	if b.mirror == nil {
		return
	}

	b.countMu.Lock()
	b.mirroring++
	b.countMu.Unlock()

	select {
	case b.mirror <- msg.Clone():
	default:
		b.mirrored()
		b.forwardFailed.Add(1)
		b.metrics.forwardErrors.Inc()
		b.logger.WarnContext(ctx, "mirror backlog full, message not forwarded",
			"routing_key", msg.RoutingKey, "message_id", msg.ID, "backlog", b.cfg.ForwardBuffer)
	}
}

// runMirror forwards accepted messages in publish order, each bounded by ForwardTimeout.
// Once the bus is closing the rest of the backlog is dropped.
func (b *Bus) runMirror(ch <-chan cbus.Message, done chan<- struct{}) {
	defer close(done)

	for msg := range ch {
		if b.baseCtx.Err() != nil {
			b.forwardFailed.Add(1)
			b.metrics.forwardErrors.Inc()
			b.mirrored()

			continue
		}

		ctx, cancel := context.WithTimeout(b.baseCtx, b.cfg.ForwardTimeout)
		err := b.fwd.Forward(ctx, msg)
		cancel()

		if err != nil {
			b.forwardFailed.Add(1)
			b.metrics.forwardErrors.Inc()
			b.logger.Warn("forward failed", "routing_key", msg.RoutingKey, "message_id", msg.ID, "err", err)
		}

		b.mirrored()
	}
}

func (b *Bus) mirrored() {
	b.countMu.Lock()
	b.mirroring--
	b.settle()
	b.countMu.Unlock()
}

// deleteQueue removes an auto-delete queue, its bindings and its pending messages.
func (b *Bus) deleteQueue(name string) {
	q, ok := b.queues.remove(name)
	if !ok {
		return
	}

	b.router.unbindAll(name)
	dropped := q.purge()

	b.countMu.Lock()
	b.pending -= dropped
	b.settle()
	b.countMu.Unlock()

	b.metrics.queueDepth.DeleteLabelValues(name)
	b.logger.Info("auto-delete queue removed", "queue", name, "dropped", dropped)
}

func encode(payload any) (json.RawMessage, error) {
	switch v := payload.(type) {
	case json.RawMessage:
		if !json.Valid(v) {
			return nil, errors.New("invalid raw JSON")
		}

		return slices.Clone(v), nil
	case []byte:
		if !json.Valid(v) {
			return nil, errors.New("invalid raw JSON")
		}

		return slices.Clone(v), nil
	default:
		return json.Marshal(payload)
	}
}

type subscription struct {
	bus     *Bus
	q       *queue
	handler cbus.Handler
	once    sync.Once
}

func (s *subscription) Queue() string { return s.q.name }

// Cancel removes the handler. Cancelling the last subscription of an AutoDelete queue deletes the queue.
func (s *subscription) Cancel() error {
	s.once.Do(func() {
		if s.q.removeSub(s) == 0 && s.q.opts.AutoDelete {
			s.bus.deleteQueue(s.q.name)
			return
		}

		// the queue may now hold only undeliverable messages
		s.bus.countMu.Lock()
		s.bus.settle()
		s.bus.countMu.Unlock()
	})

	return nil
}
