package database

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/lib/pq"

	"github.com/smukkama/tourist-safety/internal/models"
)

const anomalyColumns = `
	id, user_id, tourist_id, anomaly_type, severity, risk_level, latitude,
	longitude, address, details, actions_taken, sos_id, is_resolved,
	detected_at, resolved_at
`

const insertAnomalyQuery = `
	INSERT INTO anomaly_alerts (
		user_id, tourist_id, anomaly_type, severity, risk_level, latitude,
		longitude, address, details, actions_taken, sos_id, is_resolved,
		detected_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	RETURNING id
`

// InsertAnomalyAlert archives one anomaly and sets rec.ID
func (db *DB) InsertAnomalyAlert(ctx context.Context, rec *models.AnomalyRecord) error {
	args, err := anomalyArgs(rec)
	if err != nil {
		return err
	}
	return db.QueryRowContext(ctx, insertAnomalyQuery, args...).Scan(&rec.ID)
}

// RecordAnomalies archives a batch of anomalies in one transaction
func (db *DB) RecordAnomalies(ctx context.Context, recs []models.AnomalyRecord) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertAnomalyQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range recs {
		args, err := anomalyArgs(&recs[i])
		if err != nil {
			return err
		}
		if err := stmt.QueryRowContext(ctx, args...).Scan(&recs[i].ID); err != nil {
			return fmt.Errorf("failed to insert anomaly: %w", err)
		}
	}

	return tx.Commit()
}

// ListAnomalyAlerts returns one page of a user's anomalies, newest first
func (db *DB) ListAnomalyAlerts(ctx context.Context, f AnomalyFilter) (*AnomalyPage, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	if f.Page <= 0 {
		f.Page = 1
	}

	var total int
	countQuery := `
		SELECT COUNT(*) FROM anomaly_alerts
		WHERE user_id = $1 AND ($2 = '' OR severity = $2)
	`
	if err := db.QueryRowContext(ctx, countQuery, f.UserID, string(f.Severity)).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count anomalies: %w", err)
	}

	query := `SELECT ` + anomalyColumns + `
		FROM anomaly_alerts
		WHERE user_id = $1 AND ($2 = '' OR severity = $2)
		ORDER BY detected_at DESC
		LIMIT $3 OFFSET $4
	`
	records, err := db.queryAnomalies(ctx, query, f.UserID, string(f.Severity), f.Limit, (f.Page-1)*f.Limit)
	if err != nil {
		return nil, err
	}

	return &AnomalyPage{
		Anomalies: records,
		Pagination: Pagination{
			Current:      f.Page,
			Total:        (total + f.Limit - 1) / f.Limit,
			Count:        len(records),
			TotalRecords: total,
		},
	}, nil
}

// RecentAnomalyAlerts returns a user's anomalies detected since the given
// time, newest first
func (db *DB) RecentAnomalyAlerts(ctx context.Context, userID string, since time.Time) ([]models.AnomalyRecord, error) {
	query := `SELECT ` + anomalyColumns + `
		FROM anomaly_alerts
		WHERE user_id = $1 AND detected_at >= $2
		ORDER BY detected_at DESC
	`
	return db.queryAnomalies(ctx, query, userID, since)
}

func (db *DB) queryAnomalies(ctx context.Context, query string, args ...interface{}) ([]models.AnomalyRecord, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []models.AnomalyRecord{}
	for rows.Next() {
		var (
			rec     models.AnomalyRecord
			details []byte
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.UserID,
			&rec.TouristID,
			&rec.Type,
			&rec.Severity,
			&rec.RiskLevel,
			&rec.Location.Latitude,
			&rec.Location.Longitude,
			&rec.Location.Address,
			&details,
			pq.Array(&rec.Actions),
			&rec.SOSID,
			&rec.Resolved,
			&rec.DetectedAt,
			&rec.ResolvedAt,
		); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &rec.Details); err != nil {
				return nil, fmt.Errorf("failed to decode anomaly details: %w", err)
			}
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

func anomalyArgs(rec *models.AnomalyRecord) ([]interface{}, error) {
	details, err := json.Marshal(rec.Details)
	if err != nil {
		return nil, fmt.Errorf("failed to encode anomaly details: %w", err)
	}
	return []interface{}{
		rec.UserID,
		rec.TouristID,
		rec.Type,
		rec.Severity,
		rec.RiskLevel,
		rec.Location.Latitude,
		rec.Location.Longitude,
		rec.Location.Address,
		details,
		pq.Array(rec.Actions),
		rec.SOSID,
		rec.Resolved,
		rec.DetectedAt,
	}, nil
}
