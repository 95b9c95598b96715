package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	berr "github.com/yuanzhaoK/admin-platform-sub004/contract/errors"
)

// Envelope is the wire body of every domain event.
type Envelope struct {
	Type          string          `json:"type"`
	Data          json.RawMessage `json:"data"`
	Source        string          `json:"source"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Depth         int             `json:"depth"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

// Wrap encodes ev into an envelope typed with its topic.
func Wrap(ev Event, source string, at time.Time) (Envelope, error) {
	if ev == nil {
		return Envelope{}, fmt.Errorf("wrap nil event: %w", berr.ErrUnknownEvent)
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, fmt.Errorf("wrap %s: %w", ev.Topic(), errors.Join(berr.ErrSerializationFailed, err))
	}

	return Envelope{
		Type:       ev.Topic(),
		Data:       data,
		Source:     source,
		OccurredAt: at.UTC(),
	}, nil
}

// Parse reads an envelope from a message body.
func Parse(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("parse envelope: %w", errors.Join(berr.ErrSerializationFailed, err))
	}

	if env.Type == "" {
		return Envelope{}, fmt.Errorf("parse envelope: missing type: %w", berr.ErrUnknownEvent)
	}

	return env, nil
}
