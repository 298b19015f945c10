package protocol

import (
	"time"

	"github.com/smukkama/tourist-safety/internal/models"
)

// UserSummary identifies the tourist on an emergency alert.
type UserSummary struct {
	Name        string `json:"name"`
	Phone       string `json:"phone,omitempty"`
	Nationality string `json:"nationality,omitempty"`
}

// EmergencyAlertEvent is published when an SOS alert is created.
type EmergencyAlertEvent struct {
	SOSID         string          `json:"sosId"`
	TouristID     string          `json:"touristId"`
	AlertType     string          `json:"alertType"`
	Severity      models.Severity `json:"severity"`
	Source        string          `json:"source"`
	Location      models.Point    `json:"location"`
	Description   string          `json:"description,omitempty"`
	EmergencyCode string          `json:"emergencyCode"`
	Timestamp     time.Time       `json:"timestamp"`
	User          UserSummary     `json:"user"`
}

// SOSStatusEvent is published on every SOS status change.
type SOSStatusEvent struct {
	SOSID          string     `json:"sosId"`
	TouristID      string     `json:"touristId"`
	OldStatus      string     `json:"oldStatus,omitempty"`
	Status         string     `json:"status"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	AcknowledgedAt *time.Time `json:"acknowledgedAt,omitempty"`
	RespondingAt   *time.Time `json:"respondingAt,omitempty"`
	ResolvedAt     *time.Time `json:"resolvedAt,omitempty"`
	CancelledAt    *time.Time `json:"cancelledAt,omitempty"`
	ResponseTime   *float64   `json:"responseTime,omitempty"`
}

// SOSCancelledEvent is published when the owner cancels an alert.
type SOSCancelledEvent struct {
	SOSID       string    `json:"sosId"`
	TouristID   string    `json:"touristId"`
	Reason      string    `json:"reason"`
	CancelledAt time.Time `json:"cancelledAt"`
}

// SOSEscalatedEvent is published when an alert stays unacknowledged past
// the escalation delay. WaitingFor is in seconds.
type SOSEscalatedEvent struct {
	SOSID         string          `json:"sosId"`
	TouristID     string          `json:"touristId"`
	EmergencyCode string          `json:"emergencyCode"`
	Severity      models.Severity `json:"severity"`
	Location      models.Point    `json:"location"`
	WaitingFor    float64         `json:"waitingFor"`
	Timestamp     time.Time       `json:"timestamp"`
}

// AnomalyEvent is published to monitoring clients for every report with
// anomalies.
type AnomalyEvent struct {
	TouristID string       `json:"touristId"`
	Anomalies interface{}  `json:"anomalies"`
	RiskLevel string       `json:"riskLevel"`
	Location  models.Point `json:"location"`
	Timestamp time.Time    `json:"timestamp"`
}

// PersonalAnomalyEvent is sent to the tourist whose report raised anomalies.
type PersonalAnomalyEvent struct {
	Message   string      `json:"message"`
	Anomalies interface{} `json:"anomalies"`
	RiskLevel string      `json:"riskLevel"`
}

// LocationEvent carries a tourist's accepted position.
type LocationEvent struct {
	TouristID       string    `json:"touristId"`
	Latitude        float64   `json:"latitude"`
	Longitude       float64   `json:"longitude"`
	Address         string    `json:"address"`
	AnomalyDetected bool      `json:"anomalyDetected"`
	RiskLevel       string    `json:"riskLevel"`
	Timestamp       time.Time `json:"timestamp"`
}

// AnomalyAcknowledgedEvent relays a tourist's answer to an anomaly prompt.
type AnomalyAcknowledgedEvent struct {
	TouristID    string    `json:"touristId"`
	AnomalyID    string    `json:"anomalyId"`
	UserResponse string    `json:"userResponse,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// SafetyConfirmedEvent relays a tourist's confirmation that they are safe.
type SafetyConfirmedEvent struct {
	TouristID string    `json:"touristId"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// EmergencyResponseEvent tells a tourist that help is on the way.
type EmergencyResponseEvent struct {
	SOSID     string    `json:"sosId"`
	TouristID string    `json:"touristId"`
	Responder string    `json:"responder,omitempty"`
	Message   string    `json:"message,omitempty"`
	ETA       string    `json:"eta,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
