// Package notify delivers user-facing messages over WhatsApp and email.
package notify

import (
	"context"
	"log/slog"
)

// Notifier delivers a message to a recipient (a phone number or address,
// depending on the channel).
type Notifier interface {
	Notify(ctx context.Context, recipient string, message string) error
}

// LogNotifier logs messages instead of sending them. Used when no channel
// is configured.
type LogNotifier struct{}

// Notify logs the message
func (LogNotifier) Notify(_ context.Context, recipient string, message string) error {
	slog.Info("Notification (no channel configured)", "recipient", recipient, "message", message)
	return nil
}
