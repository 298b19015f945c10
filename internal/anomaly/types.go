package anomaly

import (
	"context"
	"time"

	"github.com/smukkama/tourist-safety/internal/models"
)

// Type identifies the detector that raised an anomaly.
type Type string

const (
	TypeCoordinate     Type = "COORDINATE_ANOMALY"
	TypeSpeed          Type = "SPEED_ANOMALY"
	TypeRouteDeviation Type = "ROUTE_DEVIATION"
	TypeInactivity     Type = "PROLONGED_INACTIVITY"
	TypeGeofence       Type = "GEOFENCE_VIOLATION"
)

// RiskLevel is the aggregate classification of one detection call.
type RiskLevel string

const (
	RiskSafe     RiskLevel = "SAFE"
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
	RiskUnknown  RiskLevel = "UNKNOWN"
)

// Anomaly is one detector trigger for one location sample.
type Anomaly struct {
	Type     Type            `json:"type"`
	Severity models.Severity `json:"severity"`
	Details  interface{}     `json:"details"`
	Location models.Point    `json:"location"`
}

// Check records what a single detector did during a detection call.
type Check struct {
	Detector  Type   `json:"detector"`
	IsAnomaly bool   `json:"isAnomaly"`
	Disabled  bool   `json:"disabled,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Result is the outcome of running every detector over one sample.
type Result struct {
	TouristID      string    `json:"touristId"`
	HasAnomalies   bool      `json:"hasAnomalies"`
	Anomalies      []Anomaly `json:"anomalies"`
	TotalAnomalies int       `json:"totalAnomalies"`
	RiskLevel      RiskLevel `json:"riskLevel"`
	FeaturesUsed   []string  `json:"featuresUsed,omitempty"`
	Checks         []Check   `json:"checks,omitempty"`
	Disabled       bool      `json:"disabled,omitempty"`
	Error          string    `json:"error,omitempty"`
	DetectedAt     time.Time `json:"detectedAt"`
}

// CountSeverity returns how many anomalies carry the given severity.
func (r *Result) CountSeverity(s models.Severity) int {
	n := 0
	for _, a := range r.Anomalies {
		if a.Severity == s {
			n++
		}
	}
	return n
}

// Types lists the anomaly types in evaluation order.
func (r *Result) Types() []string {
	types := make([]string, 0, len(r.Anomalies))
	for _, a := range r.Anomalies {
		types = append(types, string(a.Type))
	}
	return types
}

// Input is what a detector sees: the new sample and the one stored before it.
type Input struct {
	Current  models.LocationSample
	Previous *models.LocationSample
}

// Finding is a single detector's verdict.
type Finding struct {
	IsAnomaly bool
	Severity  models.Severity
	Details   interface{}
}

// Detector is one anomaly rule.
type Detector interface {
	Type() Type
	Detect(ctx context.Context, in Input) (Finding, error)
}

type SpeedDetails struct {
	SpeedKmh        float64 `json:"speed"`
	DistanceKm      float64 `json:"distance"`
	TimeDiffMinutes int     `json:"timeDiffMinutes"`
	Message         string  `json:"message"`
}

type RouteDetails struct {
	DistanceKm      float64 `json:"distance"`
	TimeDiffMinutes int     `json:"timeDiffMinutes"`
	Message         string  `json:"message"`
}

type InactivityDetails struct {
	InactiveMinutes int       `json:"inactiveMinutes"`
	LastSeen        time.Time `json:"lastSeen"`
	Message         string    `json:"message"`
}

type GeofenceDetails struct {
	Zone           string  `json:"zone"`
	DistanceMeters float64 `json:"distance"`
	RadiusMeters   float64 `json:"radius"`
	Message        string  `json:"message"`
}
