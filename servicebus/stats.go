package servicebus

// QueueStats describes one queue at the time Stats was called.
type QueueStats struct {
	Name       string
	Patterns   []string
	Durable    bool
	AutoDelete bool
	Depth      int
	InFlight   int
	Consumers  int
	Delivered  uint64
	Failed     uint64
}

// Stats is a point-in-time view of the broker.
type Stats struct {
	Exchange      string
	Connected     bool
	Published     uint64
	Unrouted      uint64
	Delivered     uint64
	Failed        uint64
	ForwardFailed uint64
	Pending       int
	InFlight      int
	Mirroring     int
	Queues        []QueueStats
}

// Stats returns broker counters and per-queue state, queues sorted by name.
func (b *Bus) Stats() Stats {
	st := Stats{
		Exchange:      b.cfg.Exchange.Name,
		Connected:     b.state.Load() == stateConnected,
		Published:     b.published.Load(),
		Unrouted:      b.unrouted.Load(),
		Delivered:     b.delivered.Load(),
		Failed:        b.failed.Load(),
		ForwardFailed: b.forwardFailed.Load(),
	}

	b.countMu.Lock()
	st.Pending = b.pending
	st.InFlight = b.inflight
	st.Mirroring = b.mirroring
	b.countMu.Unlock()

	for _, q := range b.queues.snapshot() {
		st.Queues = append(st.Queues, QueueStats{
			Name:       q.name,
			Patterns:   b.router.patterns(q.name),
			Durable:    q.opts.Durable,
			AutoDelete: q.opts.AutoDelete,
			Depth:      q.depth(),
			InFlight:   q.inFlight(),
			Consumers:  q.consumers(),
			Delivered:  q.delivered.Load(),
			Failed:     q.failed.Load(),
		})
	}

	return st
}

// Queue returns the stats of a single queue.
func (s Stats) Queue(name string) (QueueStats, bool) {
	for _, q := range s.Queues {
		if q.Name == name {
			return q, true
		}
	}

	return QueueStats{}, false
}
