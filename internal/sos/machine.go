package sos

import (
	"fmt"
	"time"

	"github.com/smukkama/tourist-safety/internal/events"
	"github.com/smukkama/tourist-safety/internal/models"
	"github.com/smukkama/tourist-safety/internal/protocol"
)

const (
	defaultResolutionNotes  = "Resolved from admin dashboard"
	defaultFalseAlarmNotes  = "Marked as false alarm"
	defaultCancelReason     = "Cancelled by user"
	defaultDevicePlatform   = "Unknown"
	defaultDeviceAppVersion = "1.0.0"
)

// Effect is a side effect requested by a transition. Effects are executed
// by the Service after the alert itself has been stored.
type Effect interface {
	effect() string
}

// SetSafetyStatus updates the owner's live safety flag.
type SetSafetyStatus struct {
	UserID string
	Status models.SafetyStatus
}

// SetLastLocation updates the owner's last known location.
type SetLastLocation struct {
	UserID   string
	Location models.Point
	At       time.Time
}

// Publish sends a real-time event. An empty TouristID means every subscriber.
type Publish struct {
	TouristID string
	Event     string
	Payload   interface{}
}

// Notify asks the notification collaborator to contact someone.
type Notify struct {
	Request protocol.NotificationRequest
}

func (SetSafetyStatus) effect() string { return "safety_status" }
func (SetLastLocation) effect() string { return "last_location" }
func (Publish) effect() string         { return "publish" }
func (Notify) effect() string          { return "notify" }

// CreateRequest describes a new alert.
type CreateRequest struct {
	UserID      string
	TouristID   string
	AlertType   AlertType
	Severity    models.Severity
	Location    models.Point
	Description string
	DeviceInfo  *DeviceInfo
	Source      Source
}

// NewAlert builds an ACTIVE alert owned by profile and the effects of
// creating it. id and code must be unique.
func NewAlert(req CreateRequest, profile *models.UserProfile, id, code string, now time.Time) (*Alert, []Effect, error) {
	if profile == nil {
		return nil, nil, ErrUserNotFound
	}
	if req.UserID == "" {
		return nil, nil, fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}
	if !req.Location.Valid() {
		return nil, nil, fmt.Errorf("%w: location out of range", ErrInvalidRequest)
	}
	if req.AlertType == "" {
		req.AlertType = AlertPanic
	}
	if !req.AlertType.Valid() {
		return nil, nil, fmt.Errorf("%w: unknown alert type %q", ErrInvalidRequest, req.AlertType)
	}
	if req.Severity == "" {
		req.Severity = models.SeverityHigh
	}
	if !req.Severity.Valid() {
		return nil, nil, fmt.Errorf("%w: unknown severity %q", ErrInvalidRequest, req.Severity)
	}
	if req.Source == "" {
		req.Source = SourceManual
	}
	touristID := req.TouristID
	if touristID == "" {
		touristID = profile.TouristID
	}

	device := DeviceInfo{Platform: defaultDevicePlatform, AppVersion: defaultDeviceAppVersion}
	if req.DeviceInfo != nil {
		device.BatteryLevel = copyInt(req.DeviceInfo.BatteryLevel)
		device.SignalStrength = copyInt(req.DeviceInfo.SignalStrength)
		if req.DeviceInfo.Platform != "" {
			device.Platform = req.DeviceInfo.Platform
		}
		if req.DeviceInfo.AppVersion != "" {
			device.AppVersion = req.DeviceInfo.AppVersion
		}
	}

	alert := &Alert{
		ID:            id,
		TouristID:     touristID,
		UserID:        req.UserID,
		AlertType:     req.AlertType,
		Severity:      req.Severity,
		Location:      req.Location,
		Description:   req.Description,
		DeviceInfo:    device,
		MedicalInfo:   copyMedical(profile.Medical),
		Status:        StatusActive,
		EmergencyCode: code,
		Source:        req.Source,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	effects := []Effect{
		SetSafetyStatus{UserID: alert.UserID, Status: models.SafetyStatusSOS},
		SetLastLocation{UserID: alert.UserID, Location: alert.Location, At: now},
		Publish{Event: events.EmergencyAlert, Payload: protocol.EmergencyAlertEvent{
			SOSID:         alert.ID,
			TouristID:     alert.TouristID,
			AlertType:     string(alert.AlertType),
			Severity:      alert.Severity,
			Source:        string(alert.Source),
			Location:      alert.Location,
			Description:   alert.Description,
			EmergencyCode: alert.EmergencyCode,
			Timestamp:     now,
			User: protocol.UserSummary{
				Name:        profile.FullName,
				Phone:       profile.Phone,
				Nationality: profile.Nationality,
			},
		}},
		Publish{TouristID: alert.TouristID, Event: events.SOSStatusUpdate, Payload: statusEvent(alert, "")},
	}

	if phone := profile.Medical.EmergencyContact.Phone; phone != "" {
		effects = append(effects, Notify{Request: protocol.NotificationRequest{
			Type:      protocol.NotificationSMS,
			Recipient: phone,
			Message: fmt.Sprintf("EMERGENCY ALERT: %s needs immediate help. Location: %v, %v. Emergency Code: %s",
				profile.FullName, alert.Location.Latitude, alert.Location.Longitude, alert.EmergencyCode),
			SOSID:       alert.ID,
			TouristID:   alert.TouristID,
			RequestedAt: now,
		}})
	}

	return alert, effects, nil
}

// Command is a requested status change.
type Command interface {
	Target() Status
}

type Acknowledge struct {
	By string
}

type MarkResponding struct {
	Units []string
}

type Resolve struct {
	Type  ResolutionType
	Notes string
}

type MarkFalseAlarm struct {
	Notes string
}

// Cancel may only be issued by the alert's owner.
type Cancel struct {
	RequestedBy string
	Reason      string
}

func (Acknowledge) Target() Status    { return StatusAcknowledged }
func (MarkResponding) Target() Status { return StatusResponding }
func (Resolve) Target() Status        { return StatusResolved }
func (MarkFalseAlarm) Target() Status { return StatusFalseAlarm }
func (Cancel) Target() Status         { return StatusCancelled }

// Apply returns the alert that results from running cmd against a, along
// with the side effects of the transition. a is not modified.
func Apply(a *Alert, cmd Command, now time.Time) (*Alert, []Effect, error) {
	if a.Status.Terminal() {
		return nil, nil, fmt.Errorf("%w: alert %s is %s", ErrTerminalState, a.ID, a.Status)
	}
	to := cmd.Target()
	if !CanTransition(a.Status, to) {
		return nil, nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, to)
	}

	next := a.Clone()
	var effects []Effect

	switch c := cmd.(type) {
	case Acknowledge:
		next.AcknowledgedBy = c.By
		next.AcknowledgedAt = &now

	case MarkResponding:
		next.RespondingUnits = append([]string(nil), c.Units...)
		next.RespondingAt = &now

	case Resolve:
		next.ResolutionType = c.Type
		if next.ResolutionType == "" {
			next.ResolutionType = ResolutionOther
		}
		if !next.ResolutionType.Valid() {
			return nil, nil, fmt.Errorf("%w: unknown resolution type %q", ErrInvalidRequest, c.Type)
		}
		next.ResolutionNotes = c.Notes
		if next.ResolutionNotes == "" {
			next.ResolutionNotes = defaultResolutionNotes
		}
		markClosed(next, now)
		effects = append(effects, SetSafetyStatus{UserID: a.UserID, Status: models.SafetyStatusSafe})

	case MarkFalseAlarm:
		next.ResolutionNotes = c.Notes
		if next.ResolutionNotes == "" {
			next.ResolutionNotes = defaultFalseAlarmNotes
		}
		markClosed(next, now)
		effects = append(effects, SetSafetyStatus{UserID: a.UserID, Status: models.SafetyStatusSafe})

	case Cancel:
		if c.RequestedBy != a.UserID {
			return nil, nil, ErrNotOwner
		}
		next.CancellationReason = c.Reason
		if next.CancellationReason == "" {
			next.CancellationReason = defaultCancelReason
		}
		next.CancelledAt = &now
		effects = append(effects, SetSafetyStatus{UserID: a.UserID, Status: models.SafetyStatusSafe})

	default:
		return nil, nil, fmt.Errorf("%w: unsupported command %T", ErrInvalidRequest, cmd)
	}

	next.Status = to
	next.UpdatedAt = now

	ev := statusEvent(next, a.Status)
	effects = append(effects,
		Publish{Event: events.SOSStatusUpdated, Payload: ev},
		Publish{TouristID: next.TouristID, Event: events.SOSStatusUpdate, Payload: ev},
	)
	if to == StatusCancelled {
		effects = append(effects, Publish{Event: events.SOSCancelled, Payload: protocol.SOSCancelledEvent{
			SOSID:       next.ID,
			TouristID:   next.TouristID,
			Reason:      next.CancellationReason,
			CancelledAt: now,
		}})
	}

	return next, effects, nil
}

// markClosed stamps resolvedAt and the response time in seconds.
func markClosed(a *Alert, now time.Time) {
	a.ResolvedAt = &now
	secs := now.Sub(a.CreatedAt).Seconds()
	a.ResponseTimeSeconds = &secs
}

func statusEvent(a *Alert, old Status) protocol.SOSStatusEvent {
	return protocol.SOSStatusEvent{
		SOSID:          a.ID,
		TouristID:      a.TouristID,
		OldStatus:      string(old),
		Status:         string(a.Status),
		UpdatedAt:      a.UpdatedAt,
		AcknowledgedAt: a.AcknowledgedAt,
		RespondingAt:   a.RespondingAt,
		ResolvedAt:     a.ResolvedAt,
		CancelledAt:    a.CancelledAt,
		ResponseTime:   a.ResponseTimeSeconds,
	}
}
