package notify

import (
	"context"

	"go.uber.org/zap"

	"kedaipos/backend/internal/domain"
)

// Notifier hands a customer-facing event to an out-of-band channel. Callers
// enqueue after their transaction commits and treat failures as non-fatal.
type Notifier interface {
	Enqueue(ctx context.Context, n domain.Notification) error
}

type Noop struct{}

func (Noop) Enqueue(_ context.Context, _ domain.Notification) error {
	return nil
}

// LogNotifier writes notifications to the service log. Useful in development
// when no queue is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Enqueue(_ context.Context, note domain.Notification) error {
	n.logger.Info("customer notification",
		zap.String("type", string(note.Type)),
		zap.String("order_id", note.OrderID),
		zap.String("customer_id", note.CustomerID),
		zap.String("status", string(note.Status)),
		zap.String("message", note.Message))
	return nil
}
