package anomaly

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/smukkama/tourist-safety/internal/geo"
	"github.com/smukkama/tourist-safety/internal/history"
	"github.com/smukkama/tourist-safety/internal/models"
	"github.com/smukkama/tourist-safety/pkg/config"
)

// CoordinateDetector asks a Predictor whether the reported coordinate looks
// anomalous and grades the answer by its risk score.
type CoordinateDetector struct {
	predictor  Predictor
	thresholds Thresholds
}

func NewCoordinateDetector(p Predictor, thresholds Thresholds) *CoordinateDetector {
	return &CoordinateDetector{predictor: p, thresholds: thresholds}
}

func (d *CoordinateDetector) Type() Type { return TypeCoordinate }

func (d *CoordinateDetector) Detect(ctx context.Context, in Input) (Finding, error) {
	req := PredictRequest{Lat: in.Current.Latitude, Lon: in.Current.Longitude}
	if in.Previous != nil {
		if hours := in.Current.Timestamp.Sub(in.Previous.Timestamp).Hours(); hours > 0 {
			km := geo.DistanceKm(in.Previous.Latitude, in.Previous.Longitude, in.Current.Latitude, in.Current.Longitude)
			req.Speed = geo.Round(km/hours, 2)
		}
	}

	prediction, err := d.predictor.Predict(ctx, req)
	if err != nil {
		return Finding{}, err
	}

	return Finding{
		IsAnomaly: prediction.IsAnomaly,
		Severity:  d.thresholds.SeverityFor(prediction.RiskScore),
		Details:   prediction,
	}, nil
}

// SpeedDetector flags implausible travel speed between consecutive samples.
// Standing still is never a speed anomaly; low speeds are the inactivity
// detector's concern.
type SpeedDetector struct {
	maxKmh float64
}

func NewSpeedDetector(maxKmh float64) *SpeedDetector {
	return &SpeedDetector{maxKmh: maxKmh}
}

func (d *SpeedDetector) Type() Type { return TypeSpeed }

// Detect never fires for samples with identical timestamps. Severity is
// graded on fixed breakpoints independent of the anomaly threshold.
func (d *SpeedDetector) Detect(_ context.Context, in Input) (Finding, error) {
	if in.Previous == nil {
		return Finding{}, nil
	}

	elapsed := in.Current.Timestamp.Sub(in.Previous.Timestamp)
	if elapsed == 0 {
		return Finding{}, nil
	}

	distance := geo.DistanceKm(in.Previous.Latitude, in.Previous.Longitude, in.Current.Latitude, in.Current.Longitude)
	speed := distance / elapsed.Hours()

	isAnomaly := speed > d.maxKmh || speed < 0

	severity := models.SeverityMedium
	switch {
	case speed > 100:
		severity = models.SeverityCritical
	case speed > 80:
		severity = models.SeverityHigh
	}

	message := "Speed normal"
	if isAnomaly {
		message = fmt.Sprintf("Unusual speed detected: %.0f km/h", speed)
	}

	return Finding{
		IsAnomaly: isAnomaly,
		Severity:  severity,
		Details: SpeedDetails{
			SpeedKmh:        geo.Round(speed, 2),
			DistanceKm:      geo.Round(distance, 2),
			TimeDiffMinutes: int(math.Round(elapsed.Minutes())),
			Message:         message,
		},
	}, nil
}

// RouteDetector flags a large jump covered in a short time, which usually
// means a change of transport or a spoofed position.
type RouteDetector struct {
	maxKm  float64
	window time.Duration
}

func NewRouteDetector(maxMeters float64, window time.Duration) *RouteDetector {
	return &RouteDetector{maxKm: maxMeters / 1000, window: window}
}

func (d *RouteDetector) Type() Type { return TypeRouteDeviation }

func (d *RouteDetector) Detect(_ context.Context, in Input) (Finding, error) {
	if in.Previous == nil {
		return Finding{}, nil
	}

	distance := geo.DistanceKm(in.Previous.Latitude, in.Previous.Longitude, in.Current.Latitude, in.Current.Longitude)
	elapsed := in.Current.Timestamp.Sub(in.Previous.Timestamp)

	isAnomaly := distance > d.maxKm && elapsed < d.window

	message := "Route normal"
	if isAnomaly {
		message = "Sudden location change detected - possible transportation"
	}

	return Finding{
		IsAnomaly: isAnomaly,
		Severity:  models.SeverityMedium,
		Details: RouteDetails{
			DistanceKm:      geo.Round(distance, 2),
			TimeDiffMinutes: int(math.Round(elapsed.Minutes())),
			Message:         message,
		},
	}, nil
}

// InactivityDetector flags a report arriving long after the one stored by
// the previous detection call. It reads the history store itself.
type InactivityDetector struct {
	store     history.Store
	threshold time.Duration
}

func NewInactivityDetector(store history.Store, threshold time.Duration) *InactivityDetector {
	return &InactivityDetector{store: store, threshold: threshold}
}

func (d *InactivityDetector) Type() Type { return TypeInactivity }

func (d *InactivityDetector) Detect(ctx context.Context, in Input) (Finding, error) {
	stored, err := d.store.Get(ctx, in.Current.TouristID)
	if err != nil {
		return Finding{}, fmt.Errorf("failed to read location history: %w", err)
	}
	if stored == nil {
		return Finding{}, nil
	}

	elapsed := in.Current.Timestamp.Sub(stored.Timestamp)
	minutes := int(math.Round(elapsed.Minutes()))
	isAnomaly := elapsed > d.threshold

	message := "Activity normal"
	if isAnomaly {
		message = fmt.Sprintf("Prolonged inactivity: %d minutes", minutes)
	}

	return Finding{
		IsAnomaly: isAnomaly,
		Severity:  models.SeverityMedium,
		Details: InactivityDetails{
			InactiveMinutes: minutes,
			LastSeen:        stored.Timestamp,
			Message:         message,
		},
	}, nil
}

// GeofenceDetector flags positions inside any configured high-risk zone.
// The first matching zone wins.
type GeofenceDetector struct {
	zones []config.Zone
}

func NewGeofenceDetector(zones []config.Zone) *GeofenceDetector {
	return &GeofenceDetector{zones: zones}
}

func (d *GeofenceDetector) Type() Type { return TypeGeofence }

func (d *GeofenceDetector) Detect(_ context.Context, in Input) (Finding, error) {
	for _, zone := range d.zones {
		meters := geo.DistanceKm(in.Current.Latitude, in.Current.Longitude, zone.Latitude, zone.Longitude) * 1000
		if meters <= zone.RadiusMeters {
			return Finding{
				IsAnomaly: true,
				Severity:  models.SeverityHigh,
				Details: GeofenceDetails{
					Zone:           zone.Name,
					DistanceMeters: math.Round(meters),
					RadiusMeters:   zone.RadiusMeters,
					Message:        fmt.Sprintf("Entered high-risk zone: %s", zone.Name),
				},
			}, nil
		}
	}
	return Finding{}, nil
}
