// Package inmemory provides a forwarder that records mirrored messages, for tests and demos.
package inmemory

import (
	"context"
	"slices"
	"sync"

	cbus "github.com/yuanzhaoK/admin-platform-sub004/contract/bus"
)

// Recorder is a thread-safe cbus.Forwarder that keeps every forwarded message in order.
type Recorder struct {
	mu       sync.Mutex
	messages []cbus.Message
	err      error
}

var _ cbus.Forwarder = (*Recorder)(nil)

// New creates an empty Recorder.
func New() *Recorder { return &Recorder{} }

// Forward records msg. It returns the error set with FailWith, if any, without recording.
func (r *Recorder) Forward(ctx context.Context, msg cbus.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return r.err
	}

	r.messages = append(r.messages, msg.Clone())

	return nil
}

// FailWith makes later forwards fail with err. A nil err restores recording.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []cbus.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.messages)
}

// RoutingKeys returns the routing keys of the recorded messages in order.
func (r *Recorder) RoutingKeys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(r.messages))
	for _, m := range r.messages {
		keys = append(keys, m.RoutingKey)
	}

	return keys
}

// Reset drops the recorded messages.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.messages = nil
	r.mu.Unlock()
}
