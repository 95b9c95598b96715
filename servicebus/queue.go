package servicebus

import (
	"cmp"
	"slices"
	"sync"
	"sync/atomic"

	cbus "github.com/yuanzhaoK/admin-platform-sub004/contract/bus"
)

// queue is one FIFO message list with its consumers and prefetch tokens.
type queue struct {
	name string
	opts cbus.QueueOptions

	mu   sync.Mutex
	msgs []cbus.Message
	subs []*subscription

	tokens chan struct{} // capacity = prefetch; a held token is an in-flight message

	delivered atomic.Uint64
	failed    atomic.Uint64
}

func newQueue(name string, opts cbus.QueueOptions, prefetch int) *queue {
	return &queue{
		name:   name,
		opts:   opts,
		tokens: make(chan struct{}, prefetch),
	}
}

func (q *queue) push(m cbus.Message) {
	q.mu.Lock()
	q.msgs = append(q.msgs, m)
	q.mu.Unlock()
}

// pop removes and returns the head message.
func (q *queue) pop() (cbus.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.msgs) == 0 {
		return cbus.Message{}, false
	}

	m := q.msgs[0]
	q.msgs[0] = cbus.Message{}
	q.msgs = q.msgs[1:]

	return m, true
}

func (q *queue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.msgs)
}

// purge drops every queued message and returns how many were dropped.
func (q *queue) purge() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.msgs)
	q.msgs = nil

	return n
}

func (q *queue) acquire() bool {
	select {
	case q.tokens <- struct{}{}:
		return true
	default:
		return false
	}
}

func (q *queue) release() { <-q.tokens }

func (q *queue) inFlight() int { return len(q.tokens) }

func (q *queue) addSub(s *subscription) {
	q.mu.Lock()
	q.subs = append(q.subs, s)
	q.mu.Unlock()
}

// removeSub drops s and reports how many subscriptions remain.
func (q *queue) removeSub(s *subscription) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.subs = slices.DeleteFunc(q.subs, func(x *subscription) bool { return x == s })

	return len(q.subs)
}

func (q *queue) handlers() []cbus.Handler {
	q.mu.Lock()
	defer q.mu.Unlock()

	hs := make([]cbus.Handler, 0, len(q.subs))
	for _, s := range q.subs {
		hs = append(hs, s.handler)
	}

	return hs
}

func (q *queue) consumers() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.subs)
}

// queueSet is the queue table.
type queueSet struct {
	mu       sync.RWMutex
	queues   map[string]*queue
	prefetch int
}

func newQueueSet(prefetch int) *queueSet {
	return &queueSet{queues: make(map[string]*queue), prefetch: prefetch}
}

// declare returns the named queue, creating it with opts if absent.
func (s *queueSet) declare(name string, opts cbus.QueueOptions) *queue {
	s.mu.Lock()
	defer s.mu.Unlock()

	if q, ok := s.queues[name]; ok {
		return q
	}

	q := newQueue(name, opts, s.prefetch)
	s.queues[name] = q

	return q
}

func (s *queueSet) get(name string) (*queue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.queues[name]

	return q, ok
}

func (s *queueSet) remove(name string) (*queue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[name]
	delete(s.queues, name)

	return q, ok
}

// snapshot returns the queues sorted by name.
func (s *queueSet) snapshot() []*queue {
	s.mu.RLock()
	out := make([]*queue, 0, len(s.queues))

	for _, q := range s.queues {
		out = append(out, q)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *queue) int { return cmp.Compare(a.name, b.name) })

	return out
}
