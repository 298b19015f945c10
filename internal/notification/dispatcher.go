package notification

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/smukkama/tourist-safety/internal/protocol"
)

// Channel delivers notifications of one type.
type Channel interface {
	Send(ctx context.Context, req protocol.NotificationRequest) (*protocol.DeliveryResult, error)
}

// Dispatcher routes notification requests to the channel for their type.
type Dispatcher struct {
	channels map[string]Channel
	logger   *zap.Logger
}

func NewDispatcher(email, sms Channel, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		channels: map[string]Channel{
			protocol.NotificationEmail: email,
			protocol.NotificationSMS:   sms,
		},
		logger: logger,
	}
}

// SendEmergencyNotification delivers req through its channel.
func (d *Dispatcher) SendEmergencyNotification(ctx context.Context, req protocol.NotificationRequest) (*protocol.DeliveryResult, error) {
	if req.Recipient == "" {
		return nil, fmt.Errorf("notification has no recipient")
	}
	ch, ok := d.channels[req.Type]
	if !ok || ch == nil {
		return nil, fmt.Errorf("unsupported notification type: %s", req.Type)
	}

	result, err := ch.Send(ctx, req)
	if err != nil {
		d.logger.Error("failed to send emergency notification",
			zap.String("type", req.Type),
			zap.String("recipient", req.Recipient),
			zap.String("sos_id", req.SOSID),
			zap.Error(err))
		return nil, err
	}
	return result, nil
}
