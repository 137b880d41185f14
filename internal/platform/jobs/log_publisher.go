package jobs

import (
	"context"

	"go.uber.org/zap"

	"github.com/hanko-field/orderflow/internal/platform/requestctx"
	"github.com/hanko-field/orderflow/internal/services"
)

// LogNotificationPublisher writes notifications to the log instead of a broker. It backs local
// development and the "log" notifications driver.
type LogNotificationPublisher struct {
	logger *zap.Logger
}

var _ services.NotificationPublisher = (*LogNotificationPublisher)(nil)

// NewLogNotificationPublisher constructs a log-only publisher.
func NewLogNotificationPublisher(logger *zap.Logger) *LogNotificationPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotificationPublisher{logger: logger.Named("notifications")}
}

func (p *LogNotificationPublisher) PublishNotification(ctx context.Context, message services.NotificationMessage) (string, error) {
	logger := p.logger
	if traceID := requestctx.TraceID(ctx); traceID != "" {
		logger = logger.With(zap.String("traceId", traceID))
	}
	logger.Info("notification",
		zap.String("notificationId", message.ID),
		zap.String("kind", string(message.Kind)),
		zap.String("orderId", message.OrderID),
		zap.String("status", string(message.Status)),
		zap.Strings("recipients", message.Recipients),
		zap.String("subject", message.Subject),
	)
	return message.ID, nil
}
