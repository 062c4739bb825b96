// Package notify delivers booking notifications. Delivery is fire-and-forget
// from the caller's point of view: failures are reported back so they can be
// logged, but they never undo a committed booking.
package notify

import (
	"context"

	"github.com/hackgods/slot-booking-core/internal/logging"
)

// Template ids understood by every Notifier.
const (
	TemplateBookingConfirmed = "booking_confirmed"
	TemplateBookingCancelled = "booking_cancelled"
)

// Notification is a templated message addressed to one recipient.
type Notification struct {
	TemplateID string
	To         string
	ToName     string
	Data       map[string]any
}

// Notifier sends a Notification.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier only records notifications. Used when no email provider is configured.
type LogNotifier struct {
	logger *logging.Logger
}

func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, msg Notification) error {
	n.logger.Info("notification suppressed (no email provider)",
		"template", msg.TemplateID,
		"to", msg.To,
	)
	return nil
}
