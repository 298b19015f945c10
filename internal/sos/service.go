package sos

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smukkama/tourist-safety/internal/events"
	"github.com/smukkama/tourist-safety/internal/keylock"
	"github.com/smukkama/tourist-safety/internal/metrics"
	"github.com/smukkama/tourist-safety/internal/models"
	"github.com/smukkama/tourist-safety/internal/protocol"
)

const maxCodeAttempts = 3

// UserDirectory reads and updates the owning user's record. GetProfile
// returns (nil, nil) for an unknown user.
type UserDirectory interface {
	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)
	UpdateSafetyStatus(ctx context.Context, userID string, status models.SafetyStatus) error
	UpdateLastKnownLocation(ctx context.Context, userID string, loc models.Point, at time.Time) error
}

// Notifier delivers emergency notifications.
type Notifier interface {
	SendEmergencyNotification(ctx context.Context, req protocol.NotificationRequest) (*protocol.DeliveryResult, error)
}

// Service drives alerts through their lifecycle. The alert's own state is
// authoritative: once it is stored, failing side effects are logged and
// swallowed.
type Service struct {
	store    Store
	users    UserDirectory
	sink     events.Sink
	notifier Notifier
	locks    *keylock.Locker
	logger   *zap.Logger
	metrics  *metrics.Metrics

	escalation *escalation

	now     func() time.Time
	newID   func() string
	newCode func(time.Time) string
}

// NewService creates a Service. sink and notifier may be nil.
func NewService(store Store, users UserDirectory, sink events.Sink, notifier Notifier, logger *zap.Logger, m *metrics.Metrics) *Service {
	return &Service{
		store:    store,
		users:    users,
		sink:     sink,
		notifier: notifier,
		locks:    keylock.New(),
		logger:   logger,
		metrics:  m,
		now:      time.Now,
		newID:    uuid.NewString,
		newCode:  GenerateEmergencyCode,
	}
}

// Create raises a new alert for req.UserID.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Alert, error) {
	profile, err := s.users.GetProfile(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", req.UserID, err)
	}
	if profile == nil {
		return nil, ErrUserNotFound
	}

	now := s.now()
	var (
		alert   *Alert
		effects []Effect
	)
	for attempt := 1; ; attempt++ {
		alert, effects, err = NewAlert(req, profile, s.newID(), s.newCode(now), now)
		if err != nil {
			return nil, err
		}
		err = s.store.Create(ctx, alert)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrDuplicateCode) || attempt >= maxCodeAttempts {
			return nil, fmt.Errorf("failed to store sos alert: %w", err)
		}
	}

	s.metrics.IncSOSTransition("NEW", string(StatusActive))
	s.logger.Warn("SOS alert created",
		zap.String("sos_id", alert.ID),
		zap.String("tourist_id", alert.TouristID),
		zap.String("alert_type", string(alert.AlertType)),
		zap.String("severity", string(alert.Severity)),
		zap.String("source", string(alert.Source)),
		zap.String("emergency_code", alert.EmergencyCode),
		zap.Float64("latitude", alert.Location.Latitude),
		zap.Float64("longitude", alert.Location.Longitude))

	s.run(ctx, alert, effects)
	s.watch(alert)
	return alert, nil
}

// AutoTrigger describes an alert raised by anomaly detection.
type AutoTrigger struct {
	UserID       string
	TouristID    string
	Location     models.Point
	AnomalyTypes []string
}

// CreateAuto raises a CRITICAL alert on behalf of the user.
func (s *Service) CreateAuto(ctx context.Context, t AutoTrigger) (*Alert, error) {
	return s.Create(ctx, CreateRequest{
		UserID:      t.UserID,
		TouristID:   t.TouristID,
		AlertType:   AlertOther,
		Severity:    models.SeverityCritical,
		Location:    t.Location,
		Description: "AUTO-SOS: Multiple critical anomalies detected - " + strings.Join(t.AnomalyTypes, ", "),
		Source:      SourceAuto,
	})
}

func (s *Service) Get(ctx context.Context, id string) (*Alert, error) {
	return s.store.Get(ctx, id)
}

// ListActive returns every alert that is not yet in a terminal state.
func (s *Service) ListActive(ctx context.Context) ([]*Alert, error) {
	return s.store.ListByStatus(ctx, ActiveStatuses)
}

// History returns the user's alerts, newest first.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]*Alert, error) {
	return s.store.ListByUser(ctx, userID, limit)
}

func (s *Service) Acknowledge(ctx context.Context, id, by string) (*Alert, error) {
	return s.transition(ctx, id, Acknowledge{By: by})
}

func (s *Service) MarkResponding(ctx context.Context, id string, units []string) (*Alert, error) {
	return s.transition(ctx, id, MarkResponding{Units: units})
}

func (s *Service) Resolve(ctx context.Context, id string, typ ResolutionType, notes string) (*Alert, error) {
	return s.transition(ctx, id, Resolve{Type: typ, Notes: notes})
}

func (s *Service) MarkFalseAlarm(ctx context.Context, id, notes string) (*Alert, error) {
	return s.transition(ctx, id, MarkFalseAlarm{Notes: notes})
}

// Cancel closes the alert on behalf of its owner.
func (s *Service) Cancel(ctx context.Context, id, userID, reason string) (*Alert, error) {
	return s.transition(ctx, id, Cancel{RequestedBy: userID, Reason: reason})
}

// StatusUpdate is a generic status change request, as sent by dashboards.
// By names the acknowledger. RequestedBy is the authenticated caller and is
// the only identity a cancellation is checked against.
type StatusUpdate struct {
	Status         Status
	By             string
	RequestedBy    string
	Units          []string
	Notes          string
	ResolutionType ResolutionType
	Reason         string
}

// UpdateStatus dispatches u to the matching transition.
func (s *Service) UpdateStatus(ctx context.Context, id string, u StatusUpdate) (*Alert, error) {
	var cmd Command
	switch u.Status {
	case StatusAcknowledged:
		cmd = Acknowledge{By: u.By}
	case StatusResponding:
		cmd = MarkResponding{Units: u.Units}
	case StatusResolved:
		cmd = Resolve{Type: u.ResolutionType, Notes: u.Notes}
	case StatusFalseAlarm:
		cmd = MarkFalseAlarm{Notes: u.Notes}
	case StatusCancelled:
		cmd = Cancel{RequestedBy: u.RequestedBy, Reason: u.Reason}
	case StatusActive:
		return nil, fmt.Errorf("%w: alerts cannot return to %s", ErrInvalidTransition, StatusActive)
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, u.Status)
	}
	return s.transition(ctx, id, cmd)
}

func (s *Service) transition(ctx context.Context, id string, cmd Command) (*Alert, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	cur, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next, effects, err := Apply(cur, cmd, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.store.Update(ctx, next, cur.Version); err != nil {
		return nil, fmt.Errorf("failed to update sos alert %s: %w", id, err)
	}

	s.metrics.IncSOSTransition(string(cur.Status), string(next.Status))
	s.logger.Info("SOS status updated",
		zap.String("sos_id", next.ID),
		zap.String("tourist_id", next.TouristID),
		zap.String("from", string(cur.Status)),
		zap.String("to", string(next.Status)))

	if next.Status != StatusActive {
		s.unwatch(next.ID)
	}
	s.run(ctx, next, effects)
	return next, nil
}

// run executes effects in order. Failures never propagate.
func (s *Service) run(ctx context.Context, a *Alert, effects []Effect) {
	ctx = context.WithoutCancel(ctx)

	for _, e := range effects {
		var err error
		switch e := e.(type) {
		case SetSafetyStatus:
			err = s.users.UpdateSafetyStatus(ctx, e.UserID, e.Status)
		case SetLastLocation:
			err = s.users.UpdateLastKnownLocation(ctx, e.UserID, e.Location, e.At)
		case Publish:
			if s.sink == nil {
				continue
			}
			if e.TouristID == "" {
				s.sink.Broadcast(ctx, e.Event, e.Payload)
			} else {
				s.sink.SendToTourist(ctx, e.TouristID, e.Event, e.Payload)
			}
		case Notify:
			if s.notifier == nil {
				continue
			}
			_, err = s.notifier.SendEmergencyNotification(ctx, e.Request)
		}

		if err != nil {
			s.metrics.IncSideEffectFailure(e.effect())
			s.logger.Warn("sos side effect failed",
				zap.String("sos_id", a.ID),
				zap.String("effect", e.effect()),
				zap.Error(err))
		}
	}
}
