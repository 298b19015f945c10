package anomaly

import (
	"github.com/smukkama/tourist-safety/internal/models"
)

var recommendationByType = map[Type]string{
	TypeCoordinate:     "Verify your current location is correct",
	TypeSpeed:          "Check if you are traveling in a safe manner",
	TypeRouteDeviation: "Confirm your travel route and destination",
	TypeInactivity:     "Please update your location to confirm safety",
	TypeGeofence:       "You have entered a restricted area - please move to a safe location",
}

// Recommendations returns traveller-facing advice for a detection result,
// one line per anomaly in evaluation order.
func Recommendations(r *Result) []string {
	recs := []string{}
	if r == nil {
		return recs
	}
	for _, a := range r.Anomalies {
		if rec, ok := recommendationByType[a.Type]; ok {
			recs = append(recs, rec)
		}
	}
	if r.RiskLevel == RiskCritical {
		recs = append(recs, "Consider using the SOS feature if you need immediate help")
	}
	return recs
}

// Stats counts archived anomalies by severity.
type Stats struct {
	Total    int `json:"last24Hours"`
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// Status is a tourist's anomaly standing over a recent window.
type Status struct {
	OverallStatus RiskLevel              `json:"overallStatus"`
	Recent        []models.AnomalyRecord `json:"recentAnomalies"`
	Stats         Stats                  `json:"stats"`
}

// SummarizeRecent grades archived anomalies from a recent window. records
// are expected newest first; at most five are echoed back.
func SummarizeRecent(records []models.AnomalyRecord) Status {
	var stats Stats
	for _, rec := range records {
		stats.Total++
		switch rec.Severity {
		case models.SeverityCritical:
			stats.Critical++
		case models.SeverityHigh:
			stats.High++
		case models.SeverityMedium:
			stats.Medium++
		case models.SeverityLow:
			stats.Low++
		}
	}

	overall := RiskSafe
	switch {
	case stats.Critical > 0:
		overall = RiskCritical
	case stats.High > 2:
		overall = RiskHigh
	case stats.Total > 5:
		overall = RiskMedium
	}

	recent := records
	if len(recent) > 5 {
		recent = recent[:5]
	}
	if recent == nil {
		recent = []models.AnomalyRecord{}
	}

	return Status{OverallStatus: overall, Recent: recent, Stats: stats}
}
