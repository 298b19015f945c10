package anomaly

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/smukkama/tourist-safety/internal/history"
	"github.com/smukkama/tourist-safety/internal/keylock"
	"github.com/smukkama/tourist-safety/internal/metrics"
	"github.com/smukkama/tourist-safety/internal/models"
	"github.com/smukkama/tourist-safety/pkg/config"
)

// ErrDetectionUnavailable is reported on results that degraded to UNKNOWN.
const ErrDetectionUnavailable = "Anomaly detection service unavailable"

type registration struct {
	detector Detector
	feature  string
	enabled  bool
}

// Engine runs the detectors over each location sample and maintains the
// per-tourist history they read from.
type Engine struct {
	enabled   bool
	store     history.Store
	locks     *keylock.Locker
	detectors []registration
	logger    *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewEngine wires the five detectors in their fixed evaluation order.
func NewEngine(cfg config.DetectionConfig, store history.Store, predictor Predictor, logger *zap.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		enabled: cfg.Enabled,
		store:   store,
		locks:   keylock.New(),
		detectors: []registration{
			{NewCoordinateDetector(predictor, Thresholds(cfg.Risk)), "coordinateAnomaly", cfg.CoordinateAnomaly},
			{NewSpeedDetector(cfg.MaxSpeedKmh), "speedAnomaly", cfg.SpeedAnomaly},
			{NewRouteDetector(cfg.RouteDeviationMeters, cfg.RouteDeviationWindow), "routeDeviation", cfg.RouteDeviation},
			{NewInactivityDetector(store, cfg.InactivityThreshold), "inactivityDetection", cfg.Inactivity},
			{NewGeofenceDetector(cfg.Zones), "geofenceViolation", cfg.GeofenceViolation},
		},
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Detect evaluates every enabled detector against sample, then records
// sample as the tourist's latest position. Calls for the same tourist are
// serialized. Detect never fails: detector faults are isolated and an
// unexpected fault degrades the whole result to UNKNOWN.
func (e *Engine) Detect(ctx context.Context, sample models.LocationSample) (result *Result) {
	start := e.now()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("anomaly detection failed",
				zap.String("tourist_id", sample.TouristID),
				zap.Any("panic", r))
			result = e.unknown(sample)
		}
		e.metrics.ObserveDetection(string(result.RiskLevel), time.Since(start).Seconds())
	}()

	if !e.enabled {
		return &Result{
			TouristID:  sample.TouristID,
			Anomalies:  []Anomaly{},
			RiskLevel:  RiskSafe,
			Disabled:   true,
			DetectedAt: start,
		}
	}

	unlock := e.locks.Lock(sample.TouristID)
	defer unlock()

	previous, err := e.store.Get(ctx, sample.TouristID)
	if err != nil {
		e.logger.Warn("location history unavailable, detecting without previous sample",
			zap.String("tourist_id", sample.TouristID),
			zap.Error(err))
		previous = nil
	}

	in := Input{Current: sample, Previous: previous}
	location := models.Point{Latitude: sample.Latitude, Longitude: sample.Longitude}

	anomalies := []Anomaly{}
	checks := make([]Check, 0, len(e.detectors))
	features := make([]string, 0, len(e.detectors))

	for _, reg := range e.detectors {
		check := Check{Detector: reg.detector.Type()}
		if !reg.enabled {
			check.Disabled = true
			checks = append(checks, check)
			continue
		}
		features = append(features, reg.feature)

		finding, err := e.runDetector(ctx, reg.detector, in)
		if err != nil {
			e.logger.Warn("detector failed",
				zap.String("tourist_id", sample.TouristID),
				zap.String("detector", string(reg.detector.Type())),
				zap.Error(err))
			e.metrics.IncDetectorError(string(reg.detector.Type()))
			check.Error = err.Error()
			checks = append(checks, check)
			continue
		}

		check.IsAnomaly = finding.IsAnomaly
		checks = append(checks, check)

		if finding.IsAnomaly {
			anomalies = append(anomalies, Anomaly{
				Type:     reg.detector.Type(),
				Severity: finding.Severity,
				Details:  finding.Details,
				Location: location,
			})
			e.metrics.IncAnomaly(string(reg.detector.Type()), string(finding.Severity))
		}
	}

	if err := e.store.Put(ctx, sample.TouristID, sample); err != nil {
		e.logger.Warn("failed to update location history",
			zap.String("tourist_id", sample.TouristID),
			zap.Error(err))
	}

	return &Result{
		TouristID:      sample.TouristID,
		HasAnomalies:   len(anomalies) > 0,
		Anomalies:      anomalies,
		TotalAnomalies: len(anomalies),
		RiskLevel:      CalculateRiskLevel(anomalies),
		FeaturesUsed:   features,
		Checks:         checks,
		DetectedAt:     start,
	}
}

func (e *Engine) runDetector(ctx context.Context, d Detector, in Input) (finding Finding, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("detector panicked: %v", r)
		}
	}()
	return d.Detect(ctx, in)
}

func (e *Engine) unknown(sample models.LocationSample) *Result {
	return &Result{
		TouristID:  sample.TouristID,
		Anomalies:  []Anomaly{},
		RiskLevel:  RiskUnknown,
		Error:      ErrDetectionUnavailable,
		DetectedAt: e.now(),
	}
}
