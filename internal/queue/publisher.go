package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/smukkama/tourist-safety/internal/events"
	"github.com/smukkama/tourist-safety/internal/models"
	"github.com/smukkama/tourist-safety/internal/protocol"
)

// broadcastKey is the partition key for events addressed to every client
const broadcastKey = "broadcast"

// EventPublisher is an events.Sink that forwards every event to Kafka.
// Events are queued in memory and written by Run so callers never wait on
// the broker; when the queue is full the event is dropped.
type EventPublisher struct {
	writer MessageWriter
	queue  chan kafka.Message
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	dropped int64
}

var _ events.Sink = (*EventPublisher)(nil)

// NewEventPublisher creates a publisher with room for buffer pending events
func NewEventPublisher(writer MessageWriter, buffer int, logger *zap.Logger) *EventPublisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &EventPublisher{
		writer: writer,
		queue:  make(chan kafka.Message, buffer),
		logger: logger,
		now:    time.Now,
	}
}

func (p *EventPublisher) Broadcast(_ context.Context, event string, payload interface{}) {
	p.enqueue(event, "", payload)
}

func (p *EventPublisher) SendToTourist(_ context.Context, touristID, event string, payload interface{}) {
	p.enqueue(event, touristID, payload)
}

func (p *EventPublisher) enqueue(event, touristID string, payload interface{}) {
	msg, err := protocol.NewEventMessage(event, touristID, payload, p.now())
	if err != nil {
		p.logger.Error("failed to encode event", zap.String("event", event), zap.Error(err))
		return
	}
	value, err := protocol.EncodeEventMessage(msg)
	if err != nil {
		p.logger.Error("failed to encode event", zap.String("event", event), zap.Error(err))
		return
	}

	key := touristID
	if key == "" {
		key = broadcastKey
	}

	select {
	case p.queue <- kafka.Message{Key: []byte(key), Value: value}:
	default:
		p.mu.Lock()
		p.dropped++
		p.mu.Unlock()
		p.logger.Warn("event queue full, dropping event",
			zap.String("event", event),
			zap.String("tourist_id", touristID))
	}
}

// Dropped returns how many events were discarded because the queue was full
func (p *EventPublisher) Dropped() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Run writes queued events until ctx is cancelled, then drains what is
// left with a short grace period.
func (p *EventPublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return
		case msg := <-p.queue:
			p.write(ctx, []kafka.Message{msg})
		}
	}
}

func (p *EventPublisher) drain() {
	var pending []kafka.Message
	for {
		select {
		case msg := <-p.queue:
			pending = append(pending, msg)
		default:
			if len(pending) == 0 {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			p.write(ctx, pending)
			cancel()
			return
		}
	}
}

func (p *EventPublisher) write(ctx context.Context, msgs []kafka.Message) {
	if err := p.writer.PublishBatch(ctx, msgs); err != nil {
		p.logger.Warn("failed to publish events", zap.Int("count", len(msgs)), zap.Error(err))
	}
}

// AnomalyPublisher hands detected anomalies to the archive writer over
// Kafka instead of writing to Postgres on the request path.
type AnomalyPublisher struct {
	writer MessageWriter
}

func NewAnomalyPublisher(writer MessageWriter) *AnomalyPublisher {
	return &AnomalyPublisher{writer: writer}
}

// RecordAnomalies publishes one message per record, keyed by tourist id
func (p *AnomalyPublisher) RecordAnomalies(ctx context.Context, records []models.AnomalyRecord) error {
	if len(records) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(records))
	for i := range records {
		value, err := protocol.EncodeAnomalyRecord(&records[i])
		if err != nil {
			return fmt.Errorf("failed to encode anomaly: %w", err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(records[i].TouristID), Value: value})
	}

	if err := p.writer.PublishBatch(ctx, msgs); err != nil {
		return fmt.Errorf("failed to publish anomalies: %w", err)
	}
	return nil
}

// NotificationQueue defers emergency notifications to the notification
// service. A queued request reports status "queued".
type NotificationQueue struct {
	writer MessageWriter
	now    func() time.Time
}

func NewNotificationQueue(writer MessageWriter) *NotificationQueue {
	return &NotificationQueue{writer: writer, now: time.Now}
}

func (q *NotificationQueue) SendEmergencyNotification(ctx context.Context, req protocol.NotificationRequest) (*protocol.DeliveryResult, error) {
	if req.RequestedAt.IsZero() {
		req.RequestedAt = q.now()
	}

	value, err := protocol.EncodeNotificationRequest(&req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode notification: %w", err)
	}

	if err := q.writer.Publish(ctx, req.TouristID, value); err != nil {
		return nil, fmt.Errorf("failed to queue notification: %w", err)
	}

	return &protocol.DeliveryResult{
		Status:    protocol.DeliveryQueued,
		Channel:   req.Type,
		Recipient: req.Recipient,
	}, nil
}
