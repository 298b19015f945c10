package database

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/tourist-safety/internal/models"
	"github.com/smukkama/tourist-safety/internal/sos"
)

var ts = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

func newMock(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		conn.Close()
	})
	return &DB{conn}, mock
}

var profileColumns = []string{
	"user_id", "tourist_id", "full_name", "phone", "email", "nationality",
	"blood_type", "allergies", "medical_conditions", "insurance_info",
	"emergency_contact_name", "emergency_contact_phone",
	"emergency_contact_email", "emergency_contact_relation",
	"safety_status", "last_latitude", "last_longitude", "last_address",
	"last_location_at",
}

func TestGetProfile(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(`SELECT .+ FROM users WHERE user_id = \$1`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(profileColumns).AddRow(
			"user-1", "TID-1", "Asha Rao", "+911234567890", "asha@example.com", "IN",
			"O+", "{penicillin}", nil, "",
			"Ravi", "+919876543210", "ravi@example.com", "brother",
			"SAFE", 12.97, 77.59, "MG Road", ts,
		))

	p, err := db.GetProfile(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.Equal(t, "TID-1", p.TouristID)
	assert.Equal(t, []string{"penicillin"}, p.Medical.Allergies)
	assert.Nil(t, p.Medical.Conditions)
	assert.Equal(t, "+919876543210", p.Medical.EmergencyContact.Phone)
	assert.Equal(t, models.SafetyStatusSafe, p.SafetyStatus)
	require.NotNil(t, p.LastKnownLocation)
	assert.Equal(t, "MG Road", p.LastKnownLocation.Address)
	require.NotNil(t, p.LastLocationAt)
	assert.True(t, ts.Equal(*p.LastLocationAt))
}

func TestGetProfile_NotFound(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(`SELECT .+ FROM users`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	p, err := db.GetProfile(context.Background(), "ghost")
	assert.NoError(t, err)
	assert.Nil(t, p)
}

func TestUpdateSafetyStatus(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec(`UPDATE users SET safety_status = \$1`).
		WithArgs(models.SafetyStatusSOS, "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE users SET safety_status = \$1`).
		WithArgs(models.SafetyStatusSafe, "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, db.UpdateSafetyStatus(context.Background(), "user-1", models.SafetyStatusSOS))
	err := db.UpdateSafetyStatus(context.Background(), "ghost", models.SafetyStatusSafe)
	assert.ErrorIs(t, err, sos.ErrUserNotFound)
}

func TestUpdateLastKnownLocation(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec(`UPDATE users SET last_latitude = \$1`).
		WithArgs(12.97, 77.59, "MG Road", ts, "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := db.UpdateLastKnownLocation(context.Background(), "user-1",
		models.Point{Latitude: 12.97, Longitude: 77.59, Address: "MG Road"}, ts)
	assert.NoError(t, err)
}

var alertRowColumns = []string{
	"id", "tourist_id", "user_id", "alert_type", "severity", "latitude", "longitude",
	"address", "description", "device_info", "medical_info", "status", "emergency_code",
	"source", "acknowledged_by", "acknowledged_at", "responding_units", "responding_at",
	"cancelled_at", "cancellation_reason", "resolved_at", "resolution_notes",
	"resolution_type", "response_time_seconds", "created_at", "updated_at", "version",
}

func alertRows() *sqlmock.Rows {
	return sqlmock.NewRows(alertRowColumns).AddRow(
		"sos-1", "TID-1", "user-1", "PANIC", "HIGH", 12.97, 77.59,
		"", "help", []byte(`{"platform":"android","appVersion":"2.1.0"}`), []byte(`{"bloodType":"O+","emergencyContact":{}}`),
		"RESPONDING", "SOS-ABC-12345678",
		"MANUAL", "officer-7", ts.Add(time.Minute), "{PCR-12,PCR-14}", ts.Add(2*time.Minute),
		nil, "", nil, "",
		"", nil, ts, ts.Add(2*time.Minute), int64(3),
	)
}

func TestAlertStore_Get(t *testing.T) {
	db, mock := newMock(t)
	store := NewAlertStore(db)

	mock.ExpectQuery(`SELECT .+ FROM sos_alerts WHERE id = \$1`).
		WithArgs("sos-1").
		WillReturnRows(alertRows())

	a, err := store.Get(context.Background(), "sos-1")
	require.NoError(t, err)

	assert.Equal(t, sos.StatusResponding, a.Status)
	assert.Equal(t, sos.AlertPanic, a.AlertType)
	assert.Equal(t, "android", a.DeviceInfo.Platform)
	assert.Equal(t, "O+", a.MedicalInfo.BloodType)
	assert.Equal(t, []string{"PCR-12", "PCR-14"}, a.RespondingUnits)
	require.NotNil(t, a.AcknowledgedAt)
	assert.Nil(t, a.ResolvedAt)
	assert.Nil(t, a.ResponseTimeSeconds)
	assert.Equal(t, int64(3), a.Version)
}

func TestAlertStore_GetNotFound(t *testing.T) {
	db, mock := newMock(t)
	store := NewAlertStore(db)

	mock.ExpectQuery(`SELECT .+ FROM sos_alerts`).WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, sos.ErrNotFound)
}

func newAlert() *sos.Alert {
	return &sos.Alert{
		ID:            "sos-1",
		TouristID:     "TID-1",
		UserID:        "user-1",
		AlertType:     sos.AlertPanic,
		Severity:      models.SeverityHigh,
		Location:      models.Point{Latitude: 12.97, Longitude: 77.59},
		Status:        sos.StatusActive,
		EmergencyCode: "SOS-ABC-12345678",
		Source:        sos.SourceManual,
		CreatedAt:     ts,
		UpdatedAt:     ts,
	}
}

func TestAlertStore_Create(t *testing.T) {
	db, mock := newMock(t)
	store := NewAlertStore(db)

	mock.ExpectExec(`INSERT INTO sos_alerts`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO sos_alerts`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "sos_alerts_emergency_code_key"})

	a := newAlert()
	require.NoError(t, store.Create(context.Background(), a))
	assert.Equal(t, int64(1), a.Version)

	err := store.Create(context.Background(), newAlert())
	assert.ErrorIs(t, err, sos.ErrDuplicateCode)
}

func TestAlertStore_Update(t *testing.T) {
	db, mock := newMock(t)
	store := NewAlertStore(db)

	a := newAlert()
	a.Status = sos.StatusAcknowledged
	a.AcknowledgedBy = "officer-7"

	mock.ExpectExec(`UPDATE sos_alerts SET status = \$1`).
		WithArgs(sos.StatusAcknowledged, "officer-7", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), "", sqlmock.AnyArg(), "", sos.ResolutionType(""), sqlmock.AnyArg(), ts, "sos-1", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Update(context.Background(), a, 1))
	assert.Equal(t, int64(2), a.Version)
}

func TestAlertStore_UpdateVersionConflict(t *testing.T) {
	db, mock := newMock(t)
	store := NewAlertStore(db)

	mock.ExpectExec(`UPDATE sos_alerts`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .+ FROM sos_alerts WHERE id = \$1`).
		WithArgs("sos-1").
		WillReturnRows(alertRows())

	err := store.Update(context.Background(), newAlert(), 1)
	assert.ErrorIs(t, err, sos.ErrVersionConflict)
}

func TestAlertStore_ListByStatus(t *testing.T) {
	db, mock := newMock(t)
	store := NewAlertStore(db)

	mock.ExpectQuery(`SELECT .+ FROM sos_alerts\s+WHERE status = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(alertRows())

	alerts, err := store.ListByStatus(context.Background(), sos.ActiveStatuses)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "sos-1", alerts[0].ID)
}

func TestAlertStore_ListByUser(t *testing.T) {
	db, mock := newMock(t)
	store := NewAlertStore(db)

	mock.ExpectQuery(`SELECT .+ FROM sos_alerts\s+WHERE user_id = \$1`).
		WithArgs("user-1", 0).
		WillReturnRows(sqlmock.NewRows(alertRowColumns))

	alerts, err := store.ListByUser(context.Background(), "user-1", -5)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

var anomalyRowColumns = []string{
	"id", "user_id", "tourist_id", "anomaly_type", "severity", "risk_level", "latitude",
	"longitude", "address", "details", "actions_taken", "sos_id", "is_resolved",
	"detected_at", "resolved_at",
}

func TestRecordAnomalies(t *testing.T) {
	db, mock := newMock(t)

	recs := []models.AnomalyRecord{
		{UserID: "user-1", TouristID: "TID-1", Type: "SPEED_ANOMALY", Severity: models.SeverityCritical,
			RiskLevel: "CRITICAL", Details: map[string]interface{}{"speed": 480.0}, DetectedAt: ts},
		{UserID: "user-1", TouristID: "TID-1", Type: "GEOFENCE_VIOLATION", Severity: models.SeverityCritical,
			RiskLevel: "CRITICAL", Actions: []string{models.ActionSOSTriggered}, DetectedAt: ts},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO anomaly_alerts`)
	prep.ExpectQuery().WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(41)))
	prep.ExpectQuery().WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))
	mock.ExpectCommit()

	require.NoError(t, db.RecordAnomalies(context.Background(), recs))
	assert.Equal(t, int64(41), recs[0].ID)
	assert.Equal(t, int64(42), recs[1].ID)
}

func TestInsertAnomalyAlert(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(`INSERT INTO anomaly_alerts`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	rec := &models.AnomalyRecord{UserID: "user-1", Type: "PROLONGED_INACTIVITY", Severity: models.SeverityMedium, DetectedAt: ts}
	require.NoError(t, db.InsertAnomalyAlert(context.Background(), rec))
	assert.Equal(t, int64(7), rec.ID)
}

func TestListAnomalyAlerts(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM anomaly_alerts`).
		WithArgs("user-1", "HIGH").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(23))
	mock.ExpectQuery(`SELECT .+ FROM anomaly_alerts`).
		WithArgs("user-1", "HIGH", 10, 10).
		WillReturnRows(sqlmock.NewRows(anomalyRowColumns).AddRow(
			int64(5), "user-1", "TID-1", "SPEED_ANOMALY", "HIGH", "HIGH", 12.97,
			77.59, "", []byte(`{"speed":150}`), "{NOTIFICATION_SENT}", "", false,
			ts, nil,
		))

	page, err := db.ListAnomalyAlerts(context.Background(), AnomalyFilter{UserID: "user-1", Severity: models.SeverityHigh, Page: 2})
	require.NoError(t, err)

	assert.Equal(t, Pagination{Current: 2, Total: 3, Count: 1, TotalRecords: 23}, page.Pagination)
	require.Len(t, page.Anomalies, 1)
	assert.Equal(t, 150.0, page.Anomalies[0].Details["speed"])
	assert.Equal(t, []string{models.ActionNotificationSent}, page.Anomalies[0].Actions)
}

func TestRecentAnomalyAlerts(t *testing.T) {
	db, mock := newMock(t)
	since := ts.Add(-24 * time.Hour)

	mock.ExpectQuery(`SELECT .+ FROM anomaly_alerts\s+WHERE user_id = \$1 AND detected_at >= \$2`).
		WithArgs("user-1", since).
		WillReturnRows(sqlmock.NewRows(anomalyRowColumns))

	recs, err := db.RecentAnomalyAlerts(context.Background(), "user-1", since)
	require.NoError(t, err)
	assert.Empty(t, recs)
}
