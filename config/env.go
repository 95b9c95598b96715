package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	berr "github.com/yuanzhaoK/admin-platform-sub004/contract/errors"
)

func String(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func RequiredString(key string) (string, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return "", fmt.Errorf("%s is required: %w", key, berr.ErrInvalidConfig)
	}

	return v, nil
}

func Port(key, fallback string) (string, error) {
	v := String(key, fallback)

	p, err := strconv.Atoi(v)
	if err != nil || p < 1 || p > 65535 {
		return "", fmt.Errorf("%s must be a valid TCP port (got %q): %w", key, v, berr.ErrInvalidConfig)
	}

	return v, nil
}

func Int(key string, fallback int) (int, error) {
	v := String(key, "")
	if v == "" {
		return fallback, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got %q): %w", key, v, berr.ErrInvalidConfig)
	}

	return n, nil
}

func Bool(key string, fallback bool) (bool, error) {
	v := String(key, "")
	if v == "" {
		return fallback, nil
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean (got %q): %w", key, v, berr.ErrInvalidConfig)
	}

	return b, nil
}

// Duration reads a Go duration ("250ms", "5s"). A bare integer is taken as milliseconds.
func Duration(key string, fallback time.Duration) (time.Duration, error) {
	v := String(key, "")
	if v == "" {
		return fallback, nil
	}

	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration (got %q): %w", key, v, berr.ErrInvalidConfig)
	}

	return d, nil
}

// List splits a comma-separated variable, dropping empty items.
func List(key string) []string {
	var out []string

	for item := range strings.SplitSeq(String(key, ""), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}

	return out
}
