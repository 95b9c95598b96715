package bus

import (
	"bytes"
	"encoding/json"
	"maps"
	"time"
)

// Well-known header keys.
const (
	HeaderCorrelationID = "correlation-id"
	HeaderSource        = "source"
)

// Message is the unit routed by the broker. It is immutable once enqueued:
// every handler invocation receives its own copy.
type Message struct {
	ID         string            `json:"id"`
	RoutingKey string            `json:"routingKey"`
	Body       json.RawMessage   `json:"body"`
	Headers    map[string]string `json:"headers,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Clone returns a deep copy of m.
func (m Message) Clone() Message {
	c := m
	c.Body = bytes.Clone(m.Body)
	c.Headers = maps.Clone(m.Headers)

	return c
}

// Decode unmarshals the body into v.
func (m Message) Decode(v any) error { return json.Unmarshal(m.Body, v) }
