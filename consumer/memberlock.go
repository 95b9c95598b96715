package consumer

import (
	"context"
	"sync"
)

// memberLocks serializes the read-modify-write steps of the rules per member, so points
// credits and level recomputes arriving on different queues never interleave.
// It only orders work inside one process.
type memberLocks struct {
	mu    sync.Mutex
	locks map[string]*memberLock
}

type memberLock struct {
	sem  chan struct{}
	refs int
}

// lock blocks until the member is free or ctx is done. The returned func releases it.
func (m *memberLocks) lock(ctx context.Context, id string) (func(), error) {
	m.mu.Lock()
	if m.locks == nil {
		m.locks = make(map[string]*memberLock)
	}

	l, ok := m.locks[id]
	if !ok {
		l = &memberLock{sem: make(chan struct{}, 1)}
		m.locks[id] = l
	}
	l.refs++
	m.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
		return func() {
			<-l.sem
			m.release(id, l)
		}, nil
	case <-ctx.Done():
		m.release(id, l)
		return nil, ctx.Err()
	}
}

func (m *memberLocks) release(id string, l *memberLock) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(m.locks, id)
	}
}

// held reports how many members have a lock entry.
func (m *memberLocks) held() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.locks)
}
