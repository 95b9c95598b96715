package servicebus

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	berr "github.com/yuanzhaoK/admin-platform-sub004/contract/errors"
)

const (
	wildcardOne  = "*"
	wildcardRest = "#"
	separator    = "."
)

// router binds queue names to topic patterns.
type router struct {
	mu       sync.RWMutex
	bindings map[string][]string // queue -> patterns
}

func newRouter() *router {
	return &router{bindings: make(map[string][]string)}
}

// bind adds pattern to queue's pattern set. Binding the same pattern twice is a no-op.
func (r *router) bind(queue, pattern string) error {
	if queue == "" {
		return fmt.Errorf("bind %q: empty queue name: %w", pattern, berr.ErrInvalidPattern)
	}

	if err := validatePattern(pattern); err != nil {
		return fmt.Errorf("bind %s to %q: %w", queue, pattern, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if slices.Contains(r.bindings[queue], pattern) {
		return nil
	}

	r.bindings[queue] = append(r.bindings[queue], pattern)

	return nil
}

// unbindAll drops every binding of queue.
func (r *router) unbindAll(queue string) {
	r.mu.Lock()
	delete(r.bindings, queue)
	r.mu.Unlock()
}

func (r *router) patterns(queue string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.bindings[queue])
}

// route returns the sorted set of queues with at least one pattern matching routingKey.
func (r *router) route(routingKey string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string

	for queue, patterns := range r.bindings {
		for _, p := range patterns {
			if Match(p, routingKey) {
				out = append(out, queue)
				break
			}
		}
	}

	slices.Sort(out)

	return out
}

// Match reports whether routingKey matches pattern.
//
// Both are split on ".". A "*" segment matches exactly one key segment. A "#" segment matches
// the remaining key segments, zero or more, and ends matching. Other segments match literally.
func Match(pattern, routingKey string) bool {
	ps := strings.Split(pattern, separator)
	ks := strings.Split(routingKey, separator)

	for i, seg := range ps {
		if seg == wildcardRest {
			return true
		}

		if i >= len(ks) {
			return false
		}

		if seg != wildcardOne && seg != ks[i] {
			return false
		}
	}

	return len(ps) == len(ks)
}

func validatePattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("empty pattern: %w", berr.ErrInvalidPattern)
	}

	for _, seg := range strings.Split(pattern, separator) {
		if seg == "" {
			return fmt.Errorf("empty segment in %q: %w", pattern, berr.ErrInvalidPattern)
		}
	}

	return nil
}
