package consumer

import (
	"context"
	"log/slog"

	"github.com/yuanzhaoK/admin-platform-sub004/events"
)

// Notifier delivers notifications to their recipient.
type Notifier interface {
	Notify(ctx context.Context, n events.Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n events.Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n events.Notification) error { return f(ctx, n) }

// LogNotifier writes notifications to a structured log.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) Notify(ctx context.Context, n events.Notification) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.InfoContext(ctx, "notification", "type", n.Type, "user_id", n.UserID, "data", n.Data)

	return nil
}
