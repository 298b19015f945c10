package events

import (
	"context"
	"sync"
)

// Event names published to real-time subscribers.
const (
	EmergencyAlert        = "emergencyAlert"
	SOSStatusUpdated      = "sosStatusUpdated"
	SOSStatusUpdate       = "sosStatusUpdate"
	SOSCancelled          = "sosCancelled"
	SOSEscalated          = "sosEscalated"
	AnomalyDetected       = "anomalyDetected"
	PersonalAnomalyAlert  = "personalAnomalyAlert"
	LocationUpdate        = "locationUpdate"
	TouristLocationUpdate = "touristLocationUpdate"
	AnomalyAcknowledged   = "anomalyAcknowledged"
	SafetyConfirmed       = "safetyConfirmed"
	EmergencyResponse     = "emergencyResponse"
)

// Sink receives fire-and-forget events. Implementations must not block the
// caller on slow subscribers.
type Sink interface {
	Broadcast(ctx context.Context, event string, payload interface{})
	SendToTourist(ctx context.Context, touristID, event string, payload interface{})
}

// Multi fans every event out to each sink in order.
type Multi []Sink

func (m Multi) Broadcast(ctx context.Context, event string, payload interface{}) {
	for _, s := range m {
		s.Broadcast(ctx, event, payload)
	}
}

func (m Multi) SendToTourist(ctx context.Context, touristID, event string, payload interface{}) {
	for _, s := range m {
		s.SendToTourist(ctx, touristID, event, payload)
	}
}

// Published is one event captured by a Recorder. TouristID is empty for
// broadcasts.
type Published struct {
	TouristID string
	Event     string
	Payload   interface{}
}

// Recorder is an in-memory Sink that keeps everything it receives.
type Recorder struct {
	mu     sync.Mutex
	events []Published
}

func (r *Recorder) Broadcast(_ context.Context, event string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Published{Event: event, Payload: payload})
}

func (r *Recorder) SendToTourist(_ context.Context, touristID, event string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Published{TouristID: touristID, Event: event, Payload: payload})
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Published {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Published, len(r.events))
	copy(out, r.events)
	return out
}

// Named returns the recorded events with the given name.
func (r *Recorder) Named(event string) []Published {
	var out []Published
	for _, p := range r.Events() {
		if p.Event == event {
			out = append(out, p)
		}
	}
	return out
}
