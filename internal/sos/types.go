package sos

import (
	"errors"
	"time"

	"github.com/smukkama/tourist-safety/internal/models"
)

var (
	ErrNotFound          = errors.New("sos alert not found")
	ErrTerminalState     = errors.New("sos alert is in a terminal state")
	ErrInvalidTransition = errors.New("invalid sos status transition")
	ErrNotOwner          = errors.New("sos alert belongs to another user")
	ErrVersionConflict   = errors.New("sos alert was modified concurrently")
	ErrUserNotFound      = errors.New("user not found")
	ErrInvalidRequest    = errors.New("invalid sos request")
	ErrDuplicateCode     = errors.New("emergency code already in use")
)

// Status is the lifecycle state of an alert.
type Status string

const (
	StatusActive       Status = "ACTIVE"
	StatusAcknowledged Status = "ACKNOWLEDGED"
	StatusResponding   Status = "RESPONDING"
	StatusResolved     Status = "RESOLVED"
	StatusFalseAlarm   Status = "FALSE_ALARM"
	StatusCancelled    Status = "CANCELLED"
)

// ActiveStatuses lists the non-terminal states.
var ActiveStatuses = []Status{StatusActive, StatusAcknowledged, StatusResponding}

var transitions = map[Status][]Status{
	StatusActive:       {StatusAcknowledged, StatusResponding, StatusResolved, StatusFalseAlarm, StatusCancelled},
	StatusAcknowledged: {StatusResponding, StatusResolved, StatusFalseAlarm, StatusCancelled},
	StatusResponding:   {StatusResolved, StatusFalseAlarm, StatusCancelled},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusAcknowledged, StatusResponding,
		StatusResolved, StatusFalseAlarm, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusFalseAlarm || s == StatusCancelled
}

// IsActive reports whether an alert in state s still needs attention.
func (s Status) IsActive() bool {
	return s.Valid() && !s.Terminal()
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type AlertType string

const (
	AlertPanic           AlertType = "PANIC"
	AlertMedical         AlertType = "MEDICAL"
	AlertAccident        AlertType = "ACCIDENT"
	AlertCrime           AlertType = "CRIME"
	AlertNaturalDisaster AlertType = "NATURAL_DISASTER"
	AlertLost            AlertType = "LOST"
	AlertOther           AlertType = "OTHER"
)

func (t AlertType) Valid() bool {
	switch t {
	case AlertPanic, AlertMedical, AlertAccident, AlertCrime,
		AlertNaturalDisaster, AlertLost, AlertOther:
		return true
	}
	return false
}

type ResolutionType string

const (
	ResolutionAssisted          ResolutionType = "ASSISTED"
	ResolutionSelfResolved      ResolutionType = "SELF_RESOLVED"
	ResolutionEmergencyServices ResolutionType = "EMERGENCY_SERVICES"
	ResolutionOther             ResolutionType = "OTHER"
)

func (t ResolutionType) Valid() bool {
	switch t {
	case ResolutionAssisted, ResolutionSelfResolved, ResolutionEmergencyServices, ResolutionOther:
		return true
	}
	return false
}

// Source tells user-initiated alerts apart from ones raised by detection.
type Source string

const (
	SourceManual Source = "MANUAL"
	SourceAuto   Source = "AUTO"
)

// DeviceInfo is the reporting device's state when the alert was raised.
type DeviceInfo struct {
	Platform       string `json:"platform"`
	AppVersion     string `json:"appVersion"`
	BatteryLevel   *int   `json:"batteryLevel,omitempty"`
	SignalStrength *int   `json:"signalStrength,omitempty"`
}

// Alert is one emergency request and its lifecycle.
type Alert struct {
	ID                  string             `json:"sosId"`
	TouristID           string             `json:"touristId"`
	UserID              string             `json:"userId"`
	AlertType           AlertType          `json:"alertType"`
	Severity            models.Severity    `json:"severity"`
	Location            models.Point       `json:"location"`
	Description         string             `json:"description,omitempty"`
	DeviceInfo          DeviceInfo         `json:"deviceInfo"`
	MedicalInfo         models.MedicalInfo `json:"medicalInfo"`
	Status              Status             `json:"status"`
	EmergencyCode       string             `json:"emergencyCode"`
	Source              Source             `json:"source"`
	AcknowledgedBy      string             `json:"acknowledgedBy,omitempty"`
	AcknowledgedAt      *time.Time         `json:"acknowledgedAt,omitempty"`
	RespondingUnits     []string           `json:"respondingUnits,omitempty"`
	RespondingAt        *time.Time         `json:"respondingAt,omitempty"`
	CancelledAt         *time.Time         `json:"cancelledAt,omitempty"`
	CancellationReason  string             `json:"cancellationReason,omitempty"`
	ResolvedAt          *time.Time         `json:"resolvedAt,omitempty"`
	ResolutionNotes     string             `json:"resolutionNotes,omitempty"`
	ResolutionType      ResolutionType     `json:"resolutionType,omitempty"`
	ResponseTimeSeconds *float64           `json:"responseTime,omitempty"`
	CreatedAt           time.Time          `json:"createdAt"`
	UpdatedAt           time.Time          `json:"updatedAt"`
	Version             int64              `json:"version"`
}

// Clone returns a deep copy of a.
func (a *Alert) Clone() *Alert {
	if a == nil {
		return nil
	}
	c := *a
	c.MedicalInfo = copyMedical(a.MedicalInfo)
	if a.RespondingUnits != nil {
		c.RespondingUnits = append([]string(nil), a.RespondingUnits...)
	}
	c.DeviceInfo.BatteryLevel = copyInt(a.DeviceInfo.BatteryLevel)
	c.DeviceInfo.SignalStrength = copyInt(a.DeviceInfo.SignalStrength)
	c.AcknowledgedAt = copyTime(a.AcknowledgedAt)
	c.RespondingAt = copyTime(a.RespondingAt)
	c.CancelledAt = copyTime(a.CancelledAt)
	c.ResolvedAt = copyTime(a.ResolvedAt)
	if a.ResponseTimeSeconds != nil {
		v := *a.ResponseTimeSeconds
		c.ResponseTimeSeconds = &v
	}
	return &c
}

func copyMedical(m models.MedicalInfo) models.MedicalInfo {
	out := m
	if m.Allergies != nil {
		out.Allergies = append([]string(nil), m.Allergies...)
	}
	if m.Conditions != nil {
		out.Conditions = append([]string(nil), m.Conditions...)
	}
	return out
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
