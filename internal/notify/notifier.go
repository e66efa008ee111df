// Package notify is the fire-and-forget boundary to the notification
// channel used for appointment status changes.
package notify

import "go.uber.org/zap"

// Dispatcher delivers a message to a customer contact address. Dispatch is
// fire-and-forget: implementations log failures rather than propagate them.
type Dispatcher interface {
	Dispatch(contactAddress, message string)
}

// LogDispatcher records dispatches through the structured logger. It
// stands in for the real messaging channel in development and tests.
type LogDispatcher struct {
	logger *zap.Logger
}

// NewLogDispatcher constructs a logging dispatcher.
func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogDispatcher{logger: logger}
}

// Dispatch logs the outgoing notification.
func (d *LogDispatcher) Dispatch(contactAddress, message string) {
	d.logger.Info("notification dispatched",
		zap.String("contact", contactAddress),
		zap.String("message", message))
}
