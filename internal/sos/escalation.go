package sos

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/smukkama/tourist-safety/internal/events"
	"github.com/smukkama/tourist-safety/internal/protocol"
)

// Scheduler runs a keyed callback at a deadline. timer.Scheduler
// satisfies it.
type Scheduler interface {
	Schedule(key string, due time.Time, fire func()) error
	Cancel(key string) bool
}

type escalation struct {
	scheduler Scheduler
	after     time.Duration
}

// WithEscalation makes the service re-broadcast an alert that is still
// ACTIVE after the given delay. A zero delay leaves escalation off.
func (s *Service) WithEscalation(scheduler Scheduler, after time.Duration) *Service {
	if scheduler != nil && after > 0 {
		s.escalation = &escalation{scheduler: scheduler, after: after}
	}
	return s
}

func (s *Service) watch(a *Alert) {
	if s.escalation == nil {
		return
	}
	id := a.ID
	due := a.CreatedAt.Add(s.escalation.after)
	if err := s.escalation.scheduler.Schedule(id, due, func() { s.escalate(id) }); err != nil {
		s.logger.Warn("failed to schedule sos escalation", zap.String("sos_id", id), zap.Error(err))
	}
}

func (s *Service) unwatch(id string) {
	if s.escalation != nil {
		s.escalation.scheduler.Cancel(id)
	}
}

// escalate fires when nobody has acknowledged the alert in time
func (s *Service) escalate(id string) {
	ctx := context.Background()

	unlock := s.locks.Lock(id)
	a, err := s.store.Get(ctx, id)
	unlock()
	if err != nil {
		s.logger.Warn("failed to load alert for escalation", zap.String("sos_id", id), zap.Error(err))
		return
	}
	if a.Status != StatusActive {
		return
	}

	waited := s.now().Sub(a.CreatedAt)
	s.logger.Warn("SOS alert unacknowledged, escalating",
		zap.String("sos_id", a.ID),
		zap.String("tourist_id", a.TouristID),
		zap.String("emergency_code", a.EmergencyCode),
		zap.Duration("waited", waited))

	s.run(ctx, a, []Effect{Publish{
		Event: events.SOSEscalated,
		Payload: protocol.SOSEscalatedEvent{
			SOSID:         a.ID,
			TouristID:     a.TouristID,
			EmergencyCode: a.EmergencyCode,
			Severity:      a.Severity,
			Location:      a.Location,
			WaitingFor:    waited.Seconds(),
			Timestamp:     s.now(),
		},
	}})
}
