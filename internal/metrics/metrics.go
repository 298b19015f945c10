package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors for the safety core. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	detections      *prometheus.CounterVec
	anomalies       *prometheus.CounterVec
	detectorErrors  *prometheus.CounterVec
	detectDuration  prometheus.Histogram
	predictions     *prometheus.CounterVec
	sosTransitions  *prometheus.CounterVec
	sideEffectFails *prometheus.CounterVec
	wsConnections   prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tourist_safety",
			Name:      "detections_total",
			Help:      "Location samples run through anomaly detection, by resulting risk level.",
		}, []string{"risk_level"}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tourist_safety",
			Name:      "anomalies_total",
			Help:      "Detected anomalies by type and severity.",
		}, []string{"type", "severity"}),
		detectorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tourist_safety",
			Name:      "detector_errors_total",
			Help:      "Detector faults isolated during detection.",
		}, []string{"detector"}),
		detectDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tourist_safety",
			Name:      "detection_duration_seconds",
			Help:      "Wall time of a full detection call.",
			Buckets:   []float64{.005, .01, .05, .1, .5, 1, 2.5, 5, 10, 20},
		}),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tourist_safety",
			Name:      "ml_predictions_total",
			Help:      "ML predictor calls by outcome (success, retry, fallback).",
		}, []string{"outcome"}),
		sosTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tourist_safety",
			Name:      "sos_transitions_total",
			Help:      "SOS alert status changes.",
		}, []string{"from", "to"}),
		sideEffectFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tourist_safety",
			Name:      "side_effect_failures_total",
			Help:      "Best-effort side effects that failed and were swallowed.",
		}, []string{"effect"}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tourist_safety",
			Name:      "websocket_connections",
			Help:      "Open real-time connections.",
		}),
	}

	reg.MustRegister(
		m.detections,
		m.anomalies,
		m.detectorErrors,
		m.detectDuration,
		m.predictions,
		m.sosTransitions,
		m.sideEffectFails,
		m.wsConnections,
	)

	return m
}

func (m *Metrics) ObserveDetection(riskLevel string, seconds float64) {
	if m == nil {
		return
	}
	m.detections.WithLabelValues(riskLevel).Inc()
	m.detectDuration.Observe(seconds)
}

func (m *Metrics) IncAnomaly(anomalyType, severity string) {
	if m == nil {
		return
	}
	m.anomalies.WithLabelValues(anomalyType, severity).Inc()
}

func (m *Metrics) IncDetectorError(detector string) {
	if m == nil {
		return
	}
	m.detectorErrors.WithLabelValues(detector).Inc()
}

func (m *Metrics) IncPrediction(outcome string) {
	if m == nil {
		return
	}
	m.predictions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncSOSTransition(from, to string) {
	if m == nil {
		return
	}
	m.sosTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) IncSideEffectFailure(effect string) {
	if m == nil {
		return
	}
	m.sideEffectFails.WithLabelValues(effect).Inc()
}

func (m *Metrics) SetConnections(n int) {
	if m == nil {
		return
	}
	m.wsConnections.Set(float64(n))
}
