package anomaly

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/smukkama/tourist-safety/internal/models"
)

func TestRecommendations(t *testing.T) {
	res := &Result{
		Anomalies: []Anomaly{
			{Type: TypeSpeed, Severity: models.SeverityCritical},
			{Type: TypeGeofence, Severity: models.SeverityHigh},
		},
		RiskLevel: RiskCritical,
	}

	assert.Equal(t, []string{
		"Check if you are traveling in a safe manner",
		"You have entered a restricted area - please move to a safe location",
		"Consider using the SOS feature if you need immediate help",
	}, Recommendations(res))

	assert.Empty(t, Recommendations(&Result{RiskLevel: RiskSafe}))
	assert.Empty(t, Recommendations(nil))
}

func records(severities ...models.Severity) []models.AnomalyRecord {
	out := make([]models.AnomalyRecord, 0, len(severities))
	for _, s := range severities {
		out = append(out, models.AnomalyRecord{Severity: s})
	}
	return out
}

func TestSummarizeRecent(t *testing.T) {
	const (
		L = models.SeverityLow
		M = models.SeverityMedium
		H = models.SeverityHigh
		C = models.SeverityCritical
	)

	assert.Equal(t, RiskSafe, SummarizeRecent(nil).OverallStatus)
	assert.Equal(t, RiskCritical, SummarizeRecent(records(L, C)).OverallStatus)
	assert.Equal(t, RiskHigh, SummarizeRecent(records(H, H, H)).OverallStatus)
	assert.Equal(t, RiskSafe, SummarizeRecent(records(H, H)).OverallStatus)
	assert.Equal(t, RiskMedium, SummarizeRecent(records(L, L, M, M, L, L)).OverallStatus)
	assert.Equal(t, RiskSafe, SummarizeRecent(records(L, L, M, M, L)).OverallStatus)

	status := SummarizeRecent(records(L, L, M, M, H, L, C))
	assert.Len(t, status.Recent, 5)
	assert.Equal(t, Stats{Total: 7, Critical: 1, High: 1, Medium: 2, Low: 3}, status.Stats)
}
