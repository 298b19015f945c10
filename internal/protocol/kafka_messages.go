package protocol

import (
	"time"

	json "github.com/goccy/go-json"

	"github.com/smukkama/tourist-safety/internal/models"
)

// EventMessage wraps a published event for Kafka and websocket delivery.
// TouristID is empty for broadcasts.
type EventMessage struct {
	Event     string          `json:"event"`
	TouristID string          `json:"touristId,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEventMessage marshals payload into an EventMessage.
func NewEventMessage(event, touristID string, payload interface{}, at time.Time) (*EventMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &EventMessage{Event: event, TouristID: touristID, Payload: raw, Timestamp: at}, nil
}

// Notification channels
const (
	NotificationEmail = "EMAIL"
	NotificationSMS   = "SMS"
)

// NotificationRequest asks the notification service to contact someone.
type NotificationRequest struct {
	Type        string    `json:"type"` // EMAIL, SMS
	Recipient   string    `json:"recipient"`
	Subject     string    `json:"subject,omitempty"`
	Message     string    `json:"message"`
	SOSID       string    `json:"sosId,omitempty"`
	TouristID   string    `json:"touristId,omitempty"`
	RequestedAt time.Time `json:"requestedAt"`
}

// Delivery statuses
const (
	DeliverySent    = "sent"
	DeliveryQueued  = "queued"
	DeliverySkipped = "skipped"
)

// DeliveryResult reports what happened to a NotificationRequest.
type DeliveryResult struct {
	Status    string `json:"status"`
	Channel   string `json:"channel"`
	Recipient string `json:"recipient"`
}

// EncodeEventMessage encodes an EventMessage to JSON
func EncodeEventMessage(msg *EventMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeEventMessage decodes JSON to EventMessage
func DecodeEventMessage(data []byte) (*EventMessage, error) {
	var msg EventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// EncodeAnomalyRecord encodes an AnomalyRecord to JSON
func EncodeAnomalyRecord(rec *models.AnomalyRecord) ([]byte, error) {
	return json.Marshal(rec)
}

// DecodeAnomalyRecord decodes JSON to AnomalyRecord
func DecodeAnomalyRecord(data []byte) (*models.AnomalyRecord, error) {
	var rec models.AnomalyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// EncodeNotificationRequest encodes a NotificationRequest to JSON
func EncodeNotificationRequest(req *NotificationRequest) ([]byte, error) {
	return json.Marshal(req)
}

// DecodeNotificationRequest decodes JSON to NotificationRequest
func DecodeNotificationRequest(data []byte) (*NotificationRequest, error) {
	var req NotificationRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return &req, nil
}
