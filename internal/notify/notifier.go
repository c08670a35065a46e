// Package notify delivers the notifications produced by send_notification
// actions.
package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/pitabwire/recruitflow/model"
)

// Notifier delivers a resolved notification. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

// LogNotifier writes notifications to the structured log. It is the default
// when no message broker is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier that logs at info level.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("notify")}
}

// Notify logs the notification.
func (l *LogNotifier) Notify(_ context.Context, n model.Notification) error {
	l.logger.Info("notification",
		zap.String("notification_id", n.ID),
		zap.String("workflow_id", n.WorkflowID),
		zap.String("application_id", n.ApplicationID),
		zap.String("recipient", n.Recipient),
		zap.String("message", n.Message),
	)
	return nil
}

// HealthCheck always succeeds.
func (l *LogNotifier) HealthCheck(context.Context) error { return nil }

// MemoryNotifier records notifications in memory. Set Err to make every
// delivery fail.
type MemoryNotifier struct {
	mu   sync.Mutex
	sent []model.Notification
	Err  error
}

// NewMemoryNotifier creates an empty recorder.
func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{}
}

// Notify records n, or returns Err when set.
func (m *MemoryNotifier) Notify(_ context.Context, n model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, n)
	return nil
}

// Sent returns a copy of the recorded notifications.
func (m *MemoryNotifier) Sent() []model.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Notification, len(m.sent))
	copy(out, m.sent)
	return out
}

// HealthCheck always succeeds.
func (m *MemoryNotifier) HealthCheck(context.Context) error { return nil }
