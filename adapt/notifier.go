package adapt

import (
	"context"
	"log/slog"
)

// Notifier surfaces a human-readable message when a rule changes
// behavior. The hosting application typically bridges this to a toast
// or voice prompt.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, message string) error

func (f NotifierFunc) Notify(ctx context.Context, message string) error {
	return f(ctx, message)
}

// LogNotifier writes notifications to the structured log. It is the
// default when no application notifier is wired.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(ctx context.Context, message string) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, message, slog.String("notification_type", "adaptation"))
	return nil
}
