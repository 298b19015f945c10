package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/lib/pq"

	"github.com/smukkama/tourist-safety/internal/sos"
)

const uniqueViolation = "23505"

const alertColumns = `
	id, tourist_id, user_id, alert_type, severity, latitude, longitude,
	address, description, device_info, medical_info, status, emergency_code,
	source, acknowledged_by, acknowledged_at, responding_units, responding_at,
	cancelled_at, cancellation_reason, resolved_at, resolution_notes,
	resolution_type, response_time_seconds, created_at, updated_at, version
`

// AlertStore persists SOS alerts in Postgres. Updates use the version
// column for optimistic concurrency.
type AlertStore struct {
	db *DB
}

var _ sos.Store = (*AlertStore)(nil)

func NewAlertStore(db *DB) *AlertStore {
	return &AlertStore{db: db}
}

// Create inserts a new alert with version 1
func (s *AlertStore) Create(ctx context.Context, a *sos.Alert) error {
	device, medical, err := encodeSnapshots(a)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO sos_alerts (
			id, tourist_id, user_id, alert_type, severity, latitude, longitude,
			address, description, device_info, medical_info, status,
			emergency_code, source, created_at, updated_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, 1)
	`
	_, err = s.db.ExecContext(ctx, query,
		a.ID,
		a.TouristID,
		a.UserID,
		a.AlertType,
		a.Severity,
		a.Location.Latitude,
		a.Location.Longitude,
		a.Location.Address,
		a.Description,
		device,
		medical,
		a.Status,
		a.EmergencyCode,
		a.Source,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sos.ErrDuplicateCode
		}
		return fmt.Errorf("failed to insert sos alert: %w", err)
	}

	a.Version = 1
	return nil
}

// Get retrieves an alert by id
func (s *AlertStore) Get(ctx context.Context, id string) (*sos.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM sos_alerts WHERE id = $1`

	a, err := scanAlert(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, sos.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Update writes the mutable lifecycle fields if the stored version still
// matches expectedVersion
func (s *AlertStore) Update(ctx context.Context, a *sos.Alert, expectedVersion int64) error {
	query := `
		UPDATE sos_alerts
		SET status = $1, acknowledged_by = $2, acknowledged_at = $3,
		    responding_units = $4, responding_at = $5, cancelled_at = $6,
		    cancellation_reason = $7, resolved_at = $8, resolution_notes = $9,
		    resolution_type = $10, response_time_seconds = $11, updated_at = $12,
		    version = version + 1
		WHERE id = $13 AND version = $14
	`
	res, err := s.db.ExecContext(ctx, query,
		a.Status,
		a.AcknowledgedBy,
		a.AcknowledgedAt,
		pq.Array(a.RespondingUnits),
		a.RespondingAt,
		a.CancelledAt,
		a.CancellationReason,
		a.ResolvedAt,
		a.ResolutionNotes,
		a.ResolutionType,
		a.ResponseTimeSeconds,
		a.UpdatedAt,
		a.ID,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update sos alert: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.Get(ctx, a.ID); err != nil {
			return err
		}
		return sos.ErrVersionConflict
	}

	a.Version = expectedVersion + 1
	return nil
}

// ListByStatus returns alerts in any of the given states, newest first
func (s *AlertStore) ListByStatus(ctx context.Context, statuses []sos.Status) ([]*sos.Alert, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}

	query := `SELECT ` + alertColumns + `
		FROM sos_alerts
		WHERE status = ANY($1)
		ORDER BY created_at DESC
	`
	return s.list(ctx, query, pq.Array(names))
}

// ListByUser returns a user's alerts, newest first. limit <= 0 means all.
func (s *AlertStore) ListByUser(ctx context.Context, userID string, limit int) ([]*sos.Alert, error) {
	query := `SELECT ` + alertColumns + `
		FROM sos_alerts
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT NULLIF($2, 0)
	`
	if limit < 0 {
		limit = 0
	}
	return s.list(ctx, query, userID, limit)
}

func (s *AlertStore) list(ctx context.Context, query string, args ...interface{}) ([]*sos.Alert, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*sos.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func scanAlert(row scanner) (*sos.Alert, error) {
	var (
		a       sos.Alert
		device  []byte
		medical []byte
	)
	err := row.Scan(
		&a.ID,
		&a.TouristID,
		&a.UserID,
		&a.AlertType,
		&a.Severity,
		&a.Location.Latitude,
		&a.Location.Longitude,
		&a.Location.Address,
		&a.Description,
		&device,
		&medical,
		&a.Status,
		&a.EmergencyCode,
		&a.Source,
		&a.AcknowledgedBy,
		&a.AcknowledgedAt,
		pq.Array(&a.RespondingUnits),
		&a.RespondingAt,
		&a.CancelledAt,
		&a.CancellationReason,
		&a.ResolvedAt,
		&a.ResolutionNotes,
		&a.ResolutionType,
		&a.ResponseTimeSeconds,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.Version,
	)
	if err != nil {
		return nil, err
	}

	if len(device) > 0 {
		if err := json.Unmarshal(device, &a.DeviceInfo); err != nil {
			return nil, fmt.Errorf("failed to decode device info: %w", err)
		}
	}
	if len(medical) > 0 {
		if err := json.Unmarshal(medical, &a.MedicalInfo); err != nil {
			return nil, fmt.Errorf("failed to decode medical info: %w", err)
		}
	}
	return &a, nil
}

func encodeSnapshots(a *sos.Alert) ([]byte, []byte, error) {
	device, err := json.Marshal(a.DeviceInfo)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode device info: %w", err)
	}
	medical, err := json.Marshal(a.MedicalInfo)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode medical info: %w", err)
	}
	return device, medical, nil
}
