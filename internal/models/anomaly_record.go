package models

import "time"

// Actions recorded against an archived anomaly.
const (
	ActionNotificationSent = "NOTIFICATION_SENT"
	ActionSOSTriggered     = "SOS_TRIGGERED"
	ActionManualReview     = "MANUAL_REVIEW"
	ActionAutoResolved     = "AUTO_RESOLVED"
)

// AnomalyRecord is the archived form of one detected anomaly.
type AnomalyRecord struct {
	ID         int64                  `json:"id,omitempty"`
	UserID     string                 `json:"userId"`
	TouristID  string                 `json:"touristId"`
	Type       string                 `json:"anomalyType"`
	Severity   Severity               `json:"severity"`
	RiskLevel  string                 `json:"riskLevel"`
	Location   Point                  `json:"location"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Actions    []string               `json:"actionsTaken,omitempty"`
	SOSID      string                 `json:"sosId,omitempty"`
	Resolved   bool                   `json:"isResolved"`
	DetectedAt time.Time              `json:"detectedAt"`
	ResolvedAt *time.Time             `json:"resolvedAt,omitempty"`
}
