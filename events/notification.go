package events

import "context"

// Notification is a message for a user or for back-office staff. It is always published on
// TopicNotification.
type Notification struct {
	Type   string         `json:"type"`
	Data   map[string]any `json:"data,omitempty"`
	UserID string         `json:"userId,omitempty"`
}

// NotificationEvent has the single variant Notification.
type NotificationEvent interface {
	Event
	Dispatch(ctx context.Context, h NotificationHandler) ([]Event, error)
	notification()
}

type NotificationHandler interface {
	OnNotification(ctx context.Context, ev Notification) ([]Event, error)
}

func (Notification) Topic() string { return TopicNotification }

func (Notification) notification() {}

func (e Notification) Dispatch(ctx context.Context, h NotificationHandler) ([]Event, error) {
	return h.OnNotification(ctx, e)
}
