package anomaly

import (
	"github.com/smukkama/tourist-safety/internal/models"
	"github.com/smukkama/tourist-safety/pkg/config"
)

// Thresholds grades ML risk scores into severities.
type Thresholds config.RiskThresholds

// SeverityFor maps a risk score onto a severity using the configured
// breakpoints. Each breakpoint is inclusive.
func (t Thresholds) SeverityFor(score float64) models.Severity {
	switch {
	case score >= t.Critical:
		return models.SeverityCritical
	case score >= t.High:
		return models.SeverityHigh
	case score >= t.Medium:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// CalculateRiskLevel folds the anomalies of one detection call into a single
// risk level. The branches overlap and must be checked in this order.
func CalculateRiskLevel(anomalies []Anomaly) RiskLevel {
	if len(anomalies) == 0 {
		return RiskSafe
	}

	var critical, high, medium int
	for _, a := range anomalies {
		switch a.Severity {
		case models.SeverityCritical:
			critical++
		case models.SeverityHigh:
			high++
		case models.SeverityMedium:
			medium++
		}
	}

	switch {
	case critical > 0:
		return RiskCritical
	case high >= 2 || (high >= 1 && medium >= 2):
		return RiskHigh
	case high >= 1 || medium >= 2 || len(anomalies) >= 3:
		return RiskMedium
	default:
		return RiskLow
	}
}
