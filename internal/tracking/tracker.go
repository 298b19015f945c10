package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/smukkama/tourist-safety/internal/anomaly"
	"github.com/smukkama/tourist-safety/internal/events"
	"github.com/smukkama/tourist-safety/internal/models"
	"github.com/smukkama/tourist-safety/internal/protocol"
	"github.com/smukkama/tourist-safety/internal/sos"
	"github.com/smukkama/tourist-safety/pkg/config"
)

var (
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	ErrMissingIdentity    = errors.New("missing user or tourist id")
)

const personalAlertMessage = "Unusual activity detected. Please confirm you are safe."

// Detector runs anomaly detection for one sample.
type Detector interface {
	Detect(ctx context.Context, sample models.LocationSample) *anomaly.Result
}

// AnomalyRecorder archives detected anomalies.
type AnomalyRecorder interface {
	RecordAnomalies(ctx context.Context, records []models.AnomalyRecord) error
}

// AutoSOS raises an alert on the user's behalf.
type AutoSOS interface {
	CreateAuto(ctx context.Context, t sos.AutoTrigger) (*sos.Alert, error)
}

// Identity is the caller as established by the auth gateway.
type Identity struct {
	UserID    string
	TouristID string
}

// Report is what a location update or analysis returns to the caller.
type Report struct {
	TouristID       string          `json:"touristId"`
	Location        models.Point    `json:"location"`
	Timestamp       time.Time       `json:"timestamp"`
	Result          *anomaly.Result `json:"anomalyDetection"`
	Recommendations []string        `json:"recommendations"`
	AutoSOSID       string          `json:"autoSosId,omitempty"`
}

// Tracker accepts location reports and reacts to the anomalies they raise.
// Detection and everything after it is best-effort: a report is never
// rejected because a downstream collaborator failed.
type Tracker struct {
	detector     Detector
	users        sos.UserDirectory
	sink         events.Sink
	recorder     AnomalyRecorder
	autoSOS      AutoSOS
	notifier     sos.Notifier
	autoEnabled  bool
	autoMinCount int
	logger       *zap.Logger
	now          func() time.Time
}

// NewTracker creates a Tracker. recorder, autoSOS, notifier and sink may be
// nil.
func NewTracker(cfg config.DetectionConfig, detector Detector, users sos.UserDirectory, sink events.Sink,
	recorder AnomalyRecorder, autoSOS AutoSOS, notifier sos.Notifier, logger *zap.Logger) *Tracker {
	return &Tracker{
		detector:     detector,
		users:        users,
		sink:         sink,
		recorder:     recorder,
		autoSOS:      autoSOS,
		notifier:     notifier,
		autoEnabled:  cfg.AutoSOS,
		autoMinCount: cfg.AutoSOSCriticalCount,
		logger:       logger,
		now:          time.Now,
	}
}

// UpdateLocation stores the caller's position, runs detection and
// publishes the result.
func (t *Tracker) UpdateLocation(ctx context.Context, id Identity, loc models.Point) (*Report, error) {
	sample, err := t.sample(id, loc)
	if err != nil {
		return nil, err
	}

	if err := t.users.UpdateLastKnownLocation(ctx, id.UserID, loc, sample.Timestamp); err != nil {
		t.logger.Warn("failed to update last known location",
			zap.String("user_id", id.UserID),
			zap.Error(err))
	}

	report := t.process(ctx, id, sample)

	update := protocol.LocationEvent{
		TouristID:       id.TouristID,
		Latitude:        loc.Latitude,
		Longitude:       loc.Longitude,
		Address:         loc.Address,
		AnomalyDetected: report.Result.HasAnomalies,
		RiskLevel:       string(report.Result.RiskLevel),
		Timestamp:       sample.Timestamp,
	}
	if t.sink != nil {
		t.sink.SendToTourist(ctx, id.TouristID, events.LocationUpdate, update)
		t.sink.Broadcast(ctx, events.TouristLocationUpdate, update)
	}

	t.logger.Info("location updated with anomaly check",
		zap.String("tourist_id", id.TouristID),
		zap.Float64("latitude", loc.Latitude),
		zap.Float64("longitude", loc.Longitude),
		zap.Bool("anomalies_detected", report.Result.HasAnomalies),
		zap.String("risk_level", string(report.Result.RiskLevel)))

	return report, nil
}

// Analyze runs detection for loc without storing it as the user's last
// known location.
func (t *Tracker) Analyze(ctx context.Context, id Identity, loc models.Point) (*Report, error) {
	sample, err := t.sample(id, loc)
	if err != nil {
		return nil, err
	}
	report := t.process(ctx, id, sample)

	t.logger.Info("anomaly detection completed",
		zap.String("tourist_id", id.TouristID),
		zap.Bool("has_anomalies", report.Result.HasAnomalies),
		zap.String("risk_level", string(report.Result.RiskLevel)),
		zap.Int("anomaly_count", report.Result.TotalAnomalies))

	return report, nil
}

func (t *Tracker) sample(id Identity, loc models.Point) (models.LocationSample, error) {
	if id.UserID == "" || id.TouristID == "" {
		return models.LocationSample{}, ErrMissingIdentity
	}
	if !loc.Valid() {
		return models.LocationSample{}, fmt.Errorf("%w: %v, %v", ErrInvalidCoordinates, loc.Latitude, loc.Longitude)
	}
	return models.LocationSample{
		TouristID: id.TouristID,
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		Address:   loc.Address,
		Timestamp: t.now(),
	}, nil
}

func (t *Tracker) process(ctx context.Context, id Identity, sample models.LocationSample) *Report {
	result := t.detector.Detect(ctx, sample)
	report := &Report{
		TouristID:       id.TouristID,
		Location:        sample.Point(),
		Timestamp:       sample.Timestamp,
		Result:          result,
		Recommendations: anomaly.Recommendations(result),
	}
	if !result.HasAnomalies {
		return report
	}

	ctx = context.WithoutCancel(ctx)
	var actions []string

	if result.RiskLevel == anomaly.RiskCritical {
		if err := t.users.UpdateSafetyStatus(ctx, id.UserID, models.SafetyStatusDanger); err != nil {
			t.logger.Warn("failed to mark user in danger",
				zap.String("user_id", id.UserID),
				zap.Error(err))
		}
	}

	if alert := t.maybeTriggerSOS(ctx, id, sample, result); alert != nil {
		report.AutoSOSID = alert.ID
		actions = append(actions, models.ActionSOSTriggered)
	}

	if t.sink != nil {
		t.sink.Broadcast(ctx, events.AnomalyDetected, protocol.AnomalyEvent{
			TouristID: id.TouristID,
			Anomalies: result.Anomalies,
			RiskLevel: string(result.RiskLevel),
			Location:  sample.Point(),
			Timestamp: sample.Timestamp,
		})
		t.sink.SendToTourist(ctx, id.TouristID, events.PersonalAnomalyAlert, protocol.PersonalAnomalyEvent{
			Message:   personalAlertMessage,
			Anomalies: result.Anomalies,
			RiskLevel: string(result.RiskLevel),
		})
	}

	if result.RiskLevel == anomaly.RiskHigh || result.RiskLevel == anomaly.RiskCritical {
		if t.notifyContact(ctx, id, result) {
			actions = append(actions, models.ActionNotificationSent)
		}
	}

	t.archive(ctx, id, result, actions, report.AutoSOSID)
	return report
}

func (t *Tracker) maybeTriggerSOS(ctx context.Context, id Identity, sample models.LocationSample, result *anomaly.Result) *sos.Alert {
	if !t.autoEnabled || t.autoSOS == nil {
		return nil
	}
	if result.CountSeverity(models.SeverityCritical) < t.autoMinCount {
		return nil
	}

	alert, err := t.autoSOS.CreateAuto(ctx, sos.AutoTrigger{
		UserID:       id.UserID,
		TouristID:    id.TouristID,
		Location:     sample.Point(),
		AnomalyTypes: result.Types(),
	})
	if err != nil {
		t.logger.Error("auto-SOS trigger failed",
			zap.String("tourist_id", id.TouristID),
			zap.Error(err))
		return nil
	}
	t.logger.Warn("auto-SOS triggered by anomalies",
		zap.String("tourist_id", id.TouristID),
		zap.String("sos_id", alert.ID),
		zap.Strings("anomalies", result.Types()))
	return alert
}

// notifyContact reports whether a notification was handed off.
func (t *Tracker) notifyContact(ctx context.Context, id Identity, result *anomaly.Result) bool {
	if t.notifier == nil {
		return false
	}
	profile, err := t.users.GetProfile(ctx, id.UserID)
	if err != nil || profile == nil {
		t.logger.Warn("anomaly notification skipped, user profile unavailable",
			zap.String("user_id", id.UserID),
			zap.Error(err))
		return false
	}

	contact := profile.Medical.EmergencyContact
	req := protocol.NotificationRequest{
		Type:        protocol.NotificationEmail,
		Recipient:   contact.Email,
		Subject:     "Tourist safety alert",
		Message:     fmt.Sprintf("ALERT: Unusual activity detected for %s. Risk Level: %s. Please check immediately.", profile.FullName, result.RiskLevel),
		SOSID:       "ANOMALY_ALERT",
		TouristID:   id.TouristID,
		RequestedAt: t.now(),
	}
	if req.Recipient == "" {
		req.Type, req.Recipient = protocol.NotificationSMS, contact.Phone
	}
	if req.Recipient == "" {
		return false
	}

	if _, err := t.notifier.SendEmergencyNotification(ctx, req); err != nil {
		t.logger.Warn("anomaly notification failed",
			zap.String("tourist_id", id.TouristID),
			zap.Error(err))
		return false
	}
	return true
}

func (t *Tracker) archive(ctx context.Context, id Identity, result *anomaly.Result, actions []string, sosID string) {
	if t.recorder == nil {
		return
	}
	records := make([]models.AnomalyRecord, 0, len(result.Anomalies))
	for _, a := range result.Anomalies {
		records = append(records, models.AnomalyRecord{
			UserID:     id.UserID,
			TouristID:  id.TouristID,
			Type:       string(a.Type),
			Severity:   a.Severity,
			RiskLevel:  string(result.RiskLevel),
			Location:   a.Location,
			Details:    detailsMap(a.Details),
			Actions:    actions,
			SOSID:      sosID,
			DetectedAt: result.DetectedAt,
		})
	}
	if err := t.recorder.RecordAnomalies(ctx, records); err != nil {
		t.logger.Warn("failed to archive anomalies",
			zap.String("tourist_id", id.TouristID),
			zap.Int("count", len(records)),
			zap.Error(err))
	}
}

func detailsMap(v interface{}) map[string]interface{} {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}
