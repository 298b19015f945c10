package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	d := cfg.Detection
	assert.True(t, d.Enabled)
	assert.True(t, d.SpeedAnomaly)
	assert.Equal(t, 120.0, d.MaxSpeedKmh)
	assert.Equal(t, 30*time.Minute, d.InactivityThreshold)
	assert.Equal(t, 10000.0, d.RouteDeviationMeters)
	assert.Equal(t, 5*time.Minute, d.RouteDeviationWindow)
	assert.Equal(t, RiskThresholds{Low: 0.3, Medium: 0.6, High: 0.8, Critical: 0.9}, d.Risk)
	assert.Equal(t, 2, d.AutoSOSCriticalCount)
	assert.Len(t, d.Zones, 2)

	assert.Equal(t, 5*time.Second, cfg.ML.Timeout)
	assert.Equal(t, 3, cfg.ML.RetryAttempts)
	assert.Equal(t, time.Second, cfg.ML.RetryBackoff)
	assert.Equal(t, "memory", cfg.History.Backend)
	assert.Equal(t, 5*time.Minute, cfg.SOS.EscalationAfter)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"tourist.events", "tourist.anomalies", "tourist.notifications"}, cfg.Kafka.Topics())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ENABLE_GEOFENCE_VIOLATION", "false")
	t.Setenv("MAX_SPEED_THRESHOLD", "90.5")
	t.Setenv("INACTIVITY_THRESHOLD_MINUTES", "45")
	t.Setenv("AI_SERVICE_TIMEOUT", "2500")
	t.Setenv("AUTO_SOS_TRIGGER", "false")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("SOS_ESCALATION_AFTER", "0s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.Detection.GeofenceViolation)
	assert.Equal(t, 90.5, cfg.Detection.MaxSpeedKmh)
	assert.Equal(t, 45*time.Minute, cfg.Detection.InactivityThreshold)
	assert.Equal(t, 2500*time.Millisecond, cfg.ML.Timeout)
	assert.False(t, cfg.Detection.AutoSOS)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Zero(t, cfg.SOS.EscalationAfter)
}

func TestLoad_InvalidSettings(t *testing.T) {
	t.Setenv("MAX_SPEED_THRESHOLD", "-1")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_ZeroFlushInterval(t *testing.T) {
	t.Setenv("KAFKA_FLUSH_INTERVAL", "0s")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_UnknownHistoryBackend(t *testing.T) {
	t.Setenv("HISTORY_BACKEND", "etcd")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadZones(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zones.toml")
	content := `
[[zone]]
name = "Harbour"
latitude = 13.1
longitude = 80.3
radius_meters = 250

[[zone]]
name = "Old Quarry"
latitude = 12.8
longitude = 77.4
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	zones, err := LoadZones(path, 1000)
	require.NoError(t, err)
	require.Len(t, zones, 2)
	assert.Equal(t, "Harbour", zones[0].Name)
	assert.Equal(t, 250.0, zones[0].RadiusMeters)
	assert.Equal(t, 1000.0, zones[1].RadiusMeters)
}

func TestLoadZones_Defaults(t *testing.T) {
	zones, err := LoadZones("", 1000)
	require.NoError(t, err)
	assert.Equal(t, DefaultZones(), zones)
}

func TestLoadZones_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zones.toml")
	require.NoError(t, os.WriteFile(path, []byte("[[zone]]\nname = \"x\"\nlatitude = 200\nlongitude = 0\n"), 0o600))

	_, err := LoadZones(path, 1000)
	assert.Error(t, err)

	_, err = LoadZones(filepath.Join(dir, "missing.toml"), 1000)
	assert.Error(t, err)
}
