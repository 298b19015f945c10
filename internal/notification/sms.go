package notification

import (
	"context"

	"go.uber.org/zap"

	"github.com/smukkama/tourist-safety/internal/protocol"
)

// SMSNotifier records SMS deliveries in the log. No SMS gateway is wired
// yet, so every message is reported as sent once logged.
type SMSNotifier struct {
	logger *zap.Logger
}

func NewSMSNotifier(logger *zap.Logger) *SMSNotifier {
	return &SMSNotifier{logger: logger}
}

func (s *SMSNotifier) Send(_ context.Context, req protocol.NotificationRequest) (*protocol.DeliveryResult, error) {
	s.logger.Info("SMS notification would be sent",
		zap.String("recipient", req.Recipient),
		zap.String("message", req.Message),
		zap.String("sos_id", req.SOSID))
	return &protocol.DeliveryResult{
		Status:    protocol.DeliverySent,
		Channel:   protocol.NotificationSMS,
		Recipient: req.Recipient,
	}, nil
}
