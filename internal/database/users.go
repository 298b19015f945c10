package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/smukkama/tourist-safety/internal/models"
	"github.com/smukkama/tourist-safety/internal/sos"
)

// GetProfile retrieves the safety-relevant part of a user record
func (db *DB) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	query := `
		SELECT user_id, tourist_id, full_name, phone, email, nationality,
		       blood_type, allergies, medical_conditions, insurance_info,
		       emergency_contact_name, emergency_contact_phone,
		       emergency_contact_email, emergency_contact_relation,
		       safety_status, last_latitude, last_longitude, last_address,
		       last_location_at
		FROM users
		WHERE user_id = $1
	`

	var (
		p       models.UserProfile
		lat     sql.NullFloat64
		lon     sql.NullFloat64
		address sql.NullString
	)
	err := db.QueryRowContext(ctx, query, userID).Scan(
		&p.UserID,
		&p.TouristID,
		&p.FullName,
		&p.Phone,
		&p.Email,
		&p.Nationality,
		&p.Medical.BloodType,
		pq.Array(&p.Medical.Allergies),
		pq.Array(&p.Medical.Conditions),
		&p.Medical.InsuranceInfo,
		&p.Medical.EmergencyContact.Name,
		&p.Medical.EmergencyContact.Phone,
		&p.Medical.EmergencyContact.Email,
		&p.Medical.EmergencyContact.Relation,
		&p.SafetyStatus,
		&lat,
		&lon,
		&address,
		&p.LastLocationAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if lat.Valid && lon.Valid {
		p.LastKnownLocation = &models.Point{Latitude: lat.Float64, Longitude: lon.Float64, Address: address.String}
	}
	return &p, nil
}

// UpdateSafetyStatus sets the user's live safety flag
func (db *DB) UpdateSafetyStatus(ctx context.Context, userID string, status models.SafetyStatus) error {
	query := `
		UPDATE users
		SET safety_status = $1, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = $2
	`
	res, err := db.ExecContext(ctx, query, status, userID)
	if err != nil {
		return fmt.Errorf("failed to update safety status: %w", err)
	}
	return expectOneRow(res, userID)
}

// UpdateLastKnownLocation records the user's most recent position
func (db *DB) UpdateLastKnownLocation(ctx context.Context, userID string, loc models.Point, at time.Time) error {
	query := `
		UPDATE users
		SET last_latitude = $1, last_longitude = $2, last_address = $3,
		    last_location_at = $4, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = $5
	`
	res, err := db.ExecContext(ctx, query, loc.Latitude, loc.Longitude, loc.Address, at, userID)
	if err != nil {
		return fmt.Errorf("failed to update last known location: %w", err)
	}
	return expectOneRow(res, userID)
}

func expectOneRow(res sql.Result, userID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", sos.ErrUserNotFound, userID)
	}
	return nil
}
