package sos

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smukkama/tourist-safety/internal/events"
	"github.com/smukkama/tourist-safety/internal/models"
	"github.com/smukkama/tourist-safety/internal/protocol"
)

type fakeUsers struct {
	mu         sync.Mutex
	profiles   map[string]*models.UserProfile
	failStatus bool
	statuses   []models.SafetyStatus
	locations  []models.Point
}

func (f *fakeUsers) GetProfile(_ context.Context, userID string) (*models.UserProfile, error) {
	return f.profiles[userID], nil
}

func (f *fakeUsers) UpdateSafetyStatus(_ context.Context, _ string, status models.SafetyStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failStatus {
		return errors.New("connection reset")
	}
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeUsers) UpdateLastKnownLocation(_ context.Context, _ string, loc models.Point, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locations = append(f.locations, loc)
	return nil
}

type fakeNotifier struct {
	requests []protocol.NotificationRequest
	err      error
}

func (f *fakeNotifier) SendEmergencyNotification(_ context.Context, req protocol.NotificationRequest) (*protocol.DeliveryResult, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &protocol.DeliveryResult{Status: protocol.DeliverySent, Channel: req.Type, Recipient: req.Recipient}, nil
}

func newTestService(t *testing.T) (*Service, *fakeUsers, *events.Recorder, *fakeNotifier) {
	t.Helper()
	users := &fakeUsers{profiles: map[string]*models.UserProfile{"user-1": profile()}}
	rec := &events.Recorder{}
	notifier := &fakeNotifier{}
	svc := NewService(NewMemoryStore(), users, rec, notifier, zap.NewNop(), nil)
	clock := created
	svc.now = func() time.Time {
		clock = clock.Add(30 * time.Second)
		return clock
	}
	return svc, users, rec, notifier
}

func TestService_CreateRunsEffects(t *testing.T) {
	svc, users, rec, notifier := newTestService(t)

	a, err := svc.Create(context.Background(), createReq())
	require.NoError(t, err)

	assert.Equal(t, StatusActive, a.Status)
	assert.NotEmpty(t, a.EmergencyCode)
	assert.Equal(t, int64(1), a.Version)
	assert.Equal(t, []models.SafetyStatus{models.SafetyStatusSOS}, users.statuses)
	assert.Equal(t, []models.Point{a.Location}, users.locations)
	assert.Len(t, rec.Named(events.EmergencyAlert), 1)
	assert.Len(t, rec.Named(events.SOSStatusUpdate), 1)
	require.Len(t, notifier.requests, 1)
	assert.Equal(t, a.ID, notifier.requests[0].SOSID)
}

func TestService_UniqueCodes(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		a, err := svc.Create(context.Background(), createReq())
		require.NoError(t, err)
		assert.False(t, seen[a.EmergencyCode], a.EmergencyCode)
		seen[a.EmergencyCode] = true
	}
}

func TestService_RetriesDuplicateCode(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	codes := []string{"SOS-A-00000000", "SOS-A-00000000", "SOS-A-11111111"}
	svc.newCode = func(time.Time) string {
		c := codes[0]
		codes = codes[1:]
		return c
	}

	first, err := svc.Create(context.Background(), createReq())
	require.NoError(t, err)
	second, err := svc.Create(context.Background(), createReq())
	require.NoError(t, err)
	assert.Equal(t, "SOS-A-00000000", first.EmergencyCode)
	assert.Equal(t, "SOS-A-11111111", second.EmergencyCode)
}

func TestService_NotificationFailureIsNotFatal(t *testing.T) {
	svc, _, _, notifier := newTestService(t)
	notifier.err = errors.New("smtp down")

	a, err := svc.Create(context.Background(), createReq())
	require.NoError(t, err)
	assert.Equal(t, StatusActive, a.Status)
}

func TestService_ResolveSurvivesUserUpdateFailure(t *testing.T) {
	svc, users, rec, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, createReq())
	require.NoError(t, err)

	users.failStatus = true
	resolved, err := svc.Resolve(ctx, a.ID, "", "")
	require.NoError(t, err)

	assert.Equal(t, StatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, resolved.ResolvedAt.Sub(a.CreatedAt).Seconds(), *resolved.ResponseTimeSeconds)
	assert.Len(t, rec.Named(events.SOSStatusUpdated), 1)

	stored, err := svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, stored.Status)
}

func TestService_ResolveResetsSafetyStatus(t *testing.T) {
	svc, users, _, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, createReq())
	require.NoError(t, err)
	_, err = svc.Resolve(ctx, a.ID, ResolutionAssisted, "escorted to hotel")
	require.NoError(t, err)

	assert.Equal(t, []models.SafetyStatus{models.SafetyStatusSOS, models.SafetyStatusSafe}, users.statuses)
}

func TestService_TerminalRejected(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, createReq())
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, a.ID, "user-1", "")
	require.NoError(t, err)

	_, err = svc.Acknowledge(ctx, a.ID, "officer-1")
	assert.ErrorIs(t, err, ErrTerminalState)
	_, err = svc.UpdateStatus(ctx, a.ID, StatusUpdate{Status: StatusResolved})
	assert.ErrorIs(t, err, ErrTerminalState)
}

func TestService_UpdateStatus(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, createReq())
	require.NoError(t, err)

	got, err := svc.UpdateStatus(ctx, a.ID, StatusUpdate{Status: StatusAcknowledged, By: "officer-1"})
	require.NoError(t, err)
	assert.Equal(t, "officer-1", got.AcknowledgedBy)

	_, err = svc.UpdateStatus(ctx, a.ID, StatusUpdate{Status: StatusActive})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.UpdateStatus(ctx, a.ID, StatusUpdate{Status: "PAUSED"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.UpdateStatus(ctx, "missing", StatusUpdate{Status: StatusResolved})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_UpdateStatusCancelChecksRequester(t *testing.T) {
	svc, users, _, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, createReq())
	require.NoError(t, err)

	// An acknowledger name matching the owner does not make the caller the owner.
	_, err = svc.UpdateStatus(ctx, a.ID, StatusUpdate{Status: StatusCancelled, By: "user-1", RequestedBy: "user-2"})
	assert.ErrorIs(t, err, ErrNotOwner)

	stored, err := svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, stored.Status)
	assert.Equal(t, []models.SafetyStatus{models.SafetyStatusSOS}, users.statuses)

	got, err := svc.UpdateStatus(ctx, a.ID, StatusUpdate{Status: StatusCancelled, RequestedBy: "user-1", Reason: "found my group"})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, "found my group", got.CancellationReason)
}

func TestService_ConcurrentTransitionsAreSerialized(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, createReq())
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := svc.Resolve(ctx, a.ID, "", "")
		results <- err
	}()
	go func() {
		defer wg.Done()
		_, err := svc.MarkFalseAlarm(ctx, a.ID, "")
		results <- err
	}()
	wg.Wait()
	close(results)

	var ok, terminal int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrTerminalState):
			terminal++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, terminal)
}

func TestService_CreateAuto(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	a, err := svc.CreateAuto(context.Background(), AutoTrigger{
		UserID:       "user-1",
		TouristID:    "TID-1",
		Location:     models.Point{Latitude: 12.95, Longitude: 77.60},
		AnomalyTypes: []string{"SPEED_ANOMALY", "GEOFENCE_VIOLATION"},
	})
	require.NoError(t, err)

	assert.Equal(t, SourceAuto, a.Source)
	assert.Equal(t, AlertOther, a.AlertType)
	assert.Equal(t, models.SeverityCritical, a.Severity)
	assert.Equal(t, "AUTO-SOS: Multiple critical anomalies detected - SPEED_ANOMALY, GEOFENCE_VIOLATION", a.Description)
}

func TestService_ListActiveAndHistory(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		a, err := svc.Create(ctx, createReq())
		require.NoError(t, err, fmt.Sprint(i))
		ids = append(ids, a.ID)
	}
	_, err := svc.Resolve(ctx, ids[0], "", "")
	require.NoError(t, err)

	active, err := svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	hist, err := svc.History(ctx, "user-1", 2)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, ids[2], hist[0].ID)

	_, err = svc.Create(ctx, CreateRequest{UserID: "ghost", Location: models.Point{Latitude: 1, Longitude: 1}})
	assert.ErrorIs(t, err, ErrUserNotFound)
}
