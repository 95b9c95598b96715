// Package runtime holds the process plumbing shared by the service binaries.
package runtime

import (
	"io"
	"log/slog"
	"os"
)

func NewLogger(service string, level slog.Level) *slog.Logger {
	return newLogger(os.Stdout, service, level)
}

func newLogger(w io.Writer, service string, level slog.Level) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})

	return slog.New(h).With("service", service)
}
