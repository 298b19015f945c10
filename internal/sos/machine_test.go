package sos

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/tourist-safety/internal/events"
	"github.com/smukkama/tourist-safety/internal/models"
	"github.com/smukkama/tourist-safety/internal/protocol"
)

var created = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func profile() *models.UserProfile {
	return &models.UserProfile{
		UserID:      "user-1",
		TouristID:   "TID-1",
		FullName:    "Asha Rao",
		Phone:       "+911234567890",
		Nationality: "IN",
		Medical: models.MedicalInfo{
			BloodType: "O+",
			Allergies: []string{"penicillin"},
			EmergencyContact: models.EmergencyContact{
				Name:  "Ravi",
				Phone: "+919876543210",
			},
		},
	}
}

func createReq() CreateRequest {
	return CreateRequest{
		UserID:    "user-1",
		TouristID: "TID-1",
		Location:  models.Point{Latitude: 12.97, Longitude: 77.59},
	}
}

func activeAlert(t *testing.T) *Alert {
	t.Helper()
	a, _, err := NewAlert(createReq(), profile(), "sos-1", "SOS-ABC-12345678", created)
	require.NoError(t, err)
	return a
}

func TestNewAlert_Defaults(t *testing.T) {
	a, effects, err := NewAlert(createReq(), profile(), "sos-1", "SOS-ABC-12345678", created)
	require.NoError(t, err)

	assert.Equal(t, StatusActive, a.Status)
	assert.Equal(t, AlertPanic, a.AlertType)
	assert.Equal(t, models.SeverityHigh, a.Severity)
	assert.Equal(t, SourceManual, a.Source)
	assert.Equal(t, "Unknown", a.DeviceInfo.Platform)
	assert.Equal(t, "1.0.0", a.DeviceInfo.AppVersion)
	assert.Equal(t, "O+", a.MedicalInfo.BloodType)

	require.Len(t, effects, 5)
	assert.Equal(t, SetSafetyStatus{UserID: "user-1", Status: models.SafetyStatusSOS}, effects[0])
	assert.Equal(t, SetLastLocation{UserID: "user-1", Location: a.Location, At: created}, effects[1])
	assert.Equal(t, events.EmergencyAlert, effects[2].(Publish).Event)
	assert.Empty(t, effects[2].(Publish).TouristID)
	assert.Equal(t, "TID-1", effects[3].(Publish).TouristID)

	sms := effects[4].(Notify).Request
	assert.Equal(t, protocol.NotificationSMS, sms.Type)
	assert.Equal(t, "+919876543210", sms.Recipient)
	assert.Equal(t, "EMERGENCY ALERT: Asha Rao needs immediate help. Location: 12.97, 77.59. Emergency Code: SOS-ABC-12345678", sms.Message)
}

func TestNewAlert_MedicalSnapshotIsACopy(t *testing.T) {
	p := profile()
	a, _, err := NewAlert(createReq(), p, "sos-1", "SOS-ABC-12345678", created)
	require.NoError(t, err)

	p.Medical.Allergies[0] = "peanuts"
	p.Medical.BloodType = "AB-"
	assert.Equal(t, []string{"penicillin"}, a.MedicalInfo.Allergies)
	assert.Equal(t, "O+", a.MedicalInfo.BloodType)
}

func TestNewAlert_NoContactNoNotification(t *testing.T) {
	p := profile()
	p.Medical.EmergencyContact.Phone = ""
	_, effects, err := NewAlert(createReq(), p, "sos-1", "SOS-ABC-12345678", created)
	require.NoError(t, err)
	for _, e := range effects {
		assert.NotEqual(t, "notify", e.effect())
	}
}

func TestNewAlert_Rejects(t *testing.T) {
	_, _, err := NewAlert(createReq(), nil, "sos-1", "c", created)
	assert.ErrorIs(t, err, ErrUserNotFound)

	req := createReq()
	req.Location.Latitude = 91
	_, _, err = NewAlert(req, profile(), "sos-1", "c", created)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	req = createReq()
	req.AlertType = "ALIENS"
	_, _, err = NewAlert(req, profile(), "sos-1", "c", created)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	req = createReq()
	req.Severity = "EXTREME"
	_, _, err = NewAlert(req, profile(), "sos-1", "c", created)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestApply_Resolve(t *testing.T) {
	a := activeAlert(t)
	at := created.Add(90 * time.Second)

	next, effects, err := Apply(a, Resolve{}, at)
	require.NoError(t, err)

	assert.Equal(t, StatusResolved, next.Status)
	require.NotNil(t, next.ResolvedAt)
	assert.Equal(t, at, *next.ResolvedAt)
	require.NotNil(t, next.ResponseTimeSeconds)
	assert.Equal(t, 90.0, *next.ResponseTimeSeconds)
	assert.Equal(t, ResolutionOther, next.ResolutionType)
	assert.Equal(t, "Resolved from admin dashboard", next.ResolutionNotes)

	assert.Equal(t, SetSafetyStatus{UserID: "user-1", Status: models.SafetyStatusSafe}, effects[0])
	ev := effects[1].(Publish)
	assert.Equal(t, events.SOSStatusUpdated, ev.Event)
	assert.Equal(t, "ACTIVE", ev.Payload.(protocol.SOSStatusEvent).OldStatus)
	assert.Equal(t, "RESOLVED", ev.Payload.(protocol.SOSStatusEvent).Status)

	// the input is untouched
	assert.Equal(t, StatusActive, a.Status)
	assert.Nil(t, a.ResolvedAt)
}

func TestApply_Lifecycle(t *testing.T) {
	a := activeAlert(t)

	a, _, err := Apply(a, Acknowledge{By: "officer-7"}, created.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, StatusAcknowledged, a.Status)
	assert.Equal(t, "officer-7", a.AcknowledgedBy)

	a, _, err = Apply(a, MarkResponding{Units: []string{"PCR-12"}}, created.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, StatusResponding, a.Status)
	assert.Equal(t, []string{"PCR-12"}, a.RespondingUnits)

	_, _, err = Apply(a, Acknowledge{By: "officer-8"}, created.Add(3*time.Minute))
	assert.ErrorIs(t, err, ErrInvalidTransition)

	a, _, err = Apply(a, MarkFalseAlarm{}, created.Add(4*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, StatusFalseAlarm, a.Status)
	assert.Equal(t, "Marked as false alarm", a.ResolutionNotes)
}

func TestApply_TerminalIsFinal(t *testing.T) {
	commands := []Command{
		Acknowledge{By: "x"},
		MarkResponding{},
		Resolve{},
		MarkFalseAlarm{},
		Cancel{RequestedBy: "user-1"},
	}
	closers := []Command{Resolve{}, MarkFalseAlarm{}, Cancel{RequestedBy: "user-1"}}

	for _, closer := range closers {
		closed, _, err := Apply(activeAlert(t), closer, created.Add(time.Minute))
		require.NoError(t, err)
		for _, cmd := range commands {
			_, _, err := Apply(closed, cmd, created.Add(time.Hour))
			assert.ErrorIs(t, err, ErrTerminalState, "%s then %T", closed.Status, cmd)
		}
	}
}

func TestApply_Cancel(t *testing.T) {
	a := activeAlert(t)

	_, _, err := Apply(a, Cancel{RequestedBy: "someone-else"}, created)
	assert.ErrorIs(t, err, ErrNotOwner)

	next, effects, err := Apply(a, Cancel{RequestedBy: "user-1"}, created.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, next.Status)
	assert.Equal(t, "Cancelled by user", next.CancellationReason)
	require.NotNil(t, next.CancelledAt)

	last := effects[len(effects)-1].(Publish)
	assert.Equal(t, events.SOSCancelled, last.Event)
	assert.Equal(t, "Cancelled by user", last.Payload.(protocol.SOSCancelledEvent).Reason)
}

func TestApply_InvalidResolutionType(t *testing.T) {
	_, _, err := Apply(activeAlert(t), Resolve{Type: "MAGIC"}, created)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusActive, StatusResponding))
	assert.True(t, CanTransition(StatusAcknowledged, StatusCancelled))
	assert.False(t, CanTransition(StatusResponding, StatusAcknowledged))
	assert.False(t, CanTransition(StatusResolved, StatusActive))
	assert.False(t, CanTransition(StatusActive, StatusActive))
}

func TestGenerateEmergencyCode(t *testing.T) {
	code := GenerateEmergencyCode(created)
	assert.Regexp(t, `^SOS-[0-9A-Z]+-[0-9A-F]{8}$`, code)
	assert.NotEqual(t, code, GenerateEmergencyCode(created))
}
