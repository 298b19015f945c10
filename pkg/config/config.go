package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	HTTP      HTTPConfig
	Realtime  RealtimeConfig
	SOS       SOSConfig
	SMTP      SMTPConfig
	Log       LogConfig
	History   HistoryConfig
	Detection DetectionConfig
	ML        MLConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Enabled            bool
	Brokers            []string
	TopicEvents        string
	TopicAnomalies     string
	TopicNotifications string
	NumPartitions      int
	EventBuffer        int
	BatchSize          int
	FlushInterval      time.Duration
}

// Topics returns every topic the services exchange messages on
func (k KafkaConfig) Topics() []string {
	return []string{k.TopicEvents, k.TopicAnomalies, k.TopicNotifications}
}

type HTTPConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type RealtimeConfig struct {
	MaxConnections    int
	SendBufferSize    int
	InactivityTimeout time.Duration
}

// SOSConfig controls escalation of alerts nobody has acknowledged.
// EscalationAfter of zero turns escalation off.
type SOSConfig struct {
	EscalationAfter   time.Duration
	EscalationWorkers int
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type LogConfig struct {
	Level  string
	Format string
}

// HistoryConfig selects where the last location per tourist is kept.
type HistoryConfig struct {
	Backend   string // memory or redis
	Retention time.Duration
}

// RiskThresholds are the score breakpoints used to grade ML risk scores.
type RiskThresholds struct {
	Low      float64
	Medium   float64
	High     float64
	Critical float64
}

type DetectionConfig struct {
	Enabled bool

	CoordinateAnomaly bool
	SpeedAnomaly      bool
	RouteDeviation    bool
	Inactivity        bool
	GeofenceViolation bool

	MinSpeedKmh            float64
	MaxSpeedKmh            float64
	InactivityThreshold    time.Duration
	RouteDeviationMeters   float64
	RouteDeviationWindow   time.Duration
	GeofenceDistanceMeters float64

	Risk RiskThresholds

	AutoSOS              bool
	AutoSOSCriticalCount int

	ZonesFile string
	Zones     []Zone
}

type MLConfig struct {
	URL           string
	Timeout       time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration
	UserAgent     string
}

// DefaultDetection returns the detection settings used when no environment
// overrides are present.
func DefaultDetection() DetectionConfig {
	return DetectionConfig{
		Enabled:                true,
		CoordinateAnomaly:      true,
		SpeedAnomaly:           true,
		RouteDeviation:         true,
		Inactivity:             true,
		GeofenceViolation:      true,
		MinSpeedKmh:            0,
		MaxSpeedKmh:            120,
		InactivityThreshold:    30 * time.Minute,
		RouteDeviationMeters:   10000,
		RouteDeviationWindow:   5 * time.Minute,
		GeofenceDistanceMeters: 1000,
		Risk: RiskThresholds{
			Low:      0.3,
			Medium:   0.6,
			High:     0.8,
			Critical: 0.9,
		},
		AutoSOS:              true,
		AutoSOSCriticalCount: 2,
		Zones:                DefaultZones(),
	}
}

// DefaultML returns the ML client settings used when no environment
// overrides are present.
func DefaultML() MLConfig {
	return MLConfig{
		URL:           "https://anamoly-prediction.onrender.com/predict",
		Timeout:       5 * time.Second,
		RetryAttempts: 3,
		RetryBackoff:  time.Second,
		UserAgent:     "Tourist-Safety-Backend/1.0",
	}
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	detection := DefaultDetection()
	ml := DefaultML()

	config := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "safety_user"),
			Password: getEnv("DB_PASSWORD", "safety_pass"),
			DBName:   getEnv("DB_NAME", "tourist_safety"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Enabled:            getEnvAsBool("KAFKA_ENABLED", true),
			Brokers:            strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			TopicEvents:        getEnv("KAFKA_TOPIC_EVENTS", "tourist.events"),
			TopicAnomalies:     getEnv("KAFKA_TOPIC_ANOMALIES", "tourist.anomalies"),
			TopicNotifications: getEnv("KAFKA_TOPIC_NOTIFICATIONS", "tourist.notifications"),
			NumPartitions:      getEnvAsInt("KAFKA_NUM_PARTITIONS", 10),
			EventBuffer:        getEnvAsInt("KAFKA_EVENT_BUFFER", 1024),
			BatchSize:          getEnvAsInt("KAFKA_BATCH_SIZE", 100),
			FlushInterval:      getEnvAsDuration("KAFKA_FLUSH_INTERVAL", 5*time.Second),
		},
		HTTP: HTTPConfig{
			Port:            getEnvAsInt("PORT", 5000),
			ReadTimeout:     getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Realtime: RealtimeConfig{
			MaxConnections:    getEnvAsInt("WS_MAX_CONNECTIONS", 10000),
			SendBufferSize:    getEnvAsInt("WS_SEND_BUFFER", 64),
			InactivityTimeout: getEnvAsDuration("WS_INACTIVITY_TIMEOUT", 2*time.Minute),
		},
		SOS: SOSConfig{
			EscalationAfter:   getEnvAsDuration("SOS_ESCALATION_AFTER", 5*time.Minute),
			EscalationWorkers: getEnvAsInt("SOS_ESCALATION_WORKERS", 4),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "safety-alerts@example.com"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		History: HistoryConfig{
			Backend:   getEnv("HISTORY_BACKEND", "memory"),
			Retention: getEnvAsDuration("HISTORY_RETENTION", 24*time.Hour),
		},
		Detection: DetectionConfig{
			Enabled:                getEnvAsBool("ANOMALY_DETECTION_ENABLED", detection.Enabled),
			CoordinateAnomaly:      getEnvAsBool("ENABLE_COORDINATE_ANOMALY", detection.CoordinateAnomaly),
			SpeedAnomaly:           getEnvAsBool("ENABLE_SPEED_ANOMALY", detection.SpeedAnomaly),
			RouteDeviation:         getEnvAsBool("ENABLE_ROUTE_DEVIATION", detection.RouteDeviation),
			Inactivity:             getEnvAsBool("ENABLE_INACTIVITY_DETECTION", detection.Inactivity),
			GeofenceViolation:      getEnvAsBool("ENABLE_GEOFENCE_VIOLATION", detection.GeofenceViolation),
			MinSpeedKmh:            getEnvAsFloat("MIN_SPEED_THRESHOLD", detection.MinSpeedKmh),
			MaxSpeedKmh:            getEnvAsFloat("MAX_SPEED_THRESHOLD", detection.MaxSpeedKmh),
			InactivityThreshold:    time.Duration(getEnvAsInt("INACTIVITY_THRESHOLD_MINUTES", 30)) * time.Minute,
			RouteDeviationMeters:   getEnvAsFloat("ROUTE_DEVIATION_DISTANCE", detection.RouteDeviationMeters),
			RouteDeviationWindow:   getEnvAsDuration("ROUTE_DEVIATION_WINDOW", detection.RouteDeviationWindow),
			GeofenceDistanceMeters: getEnvAsFloat("GEOFENCE_VIOLATION_DISTANCE", detection.GeofenceDistanceMeters),
			Risk: RiskThresholds{
				Low:      getEnvAsFloat("LOW_RISK_THRESHOLD", detection.Risk.Low),
				Medium:   getEnvAsFloat("MEDIUM_RISK_THRESHOLD", detection.Risk.Medium),
				High:     getEnvAsFloat("HIGH_RISK_THRESHOLD", detection.Risk.High),
				Critical: getEnvAsFloat("CRITICAL_RISK_THRESHOLD", detection.Risk.Critical),
			},
			AutoSOS:              getEnvAsBool("AUTO_SOS_TRIGGER", detection.AutoSOS),
			AutoSOSCriticalCount: getEnvAsInt("AUTO_SOS_CRITICAL_ANOMALY_COUNT", detection.AutoSOSCriticalCount),
			ZonesFile:            getEnv("GEOFENCE_ZONES_FILE", ""),
		},
		ML: MLConfig{
			URL:           getEnv("AI_ANOMALY_SERVICE_URL", ml.URL),
			Timeout:       time.Duration(getEnvAsInt("AI_SERVICE_TIMEOUT", 5000)) * time.Millisecond,
			RetryAttempts: getEnvAsInt("AI_SERVICE_RETRY_ATTEMPTS", ml.RetryAttempts),
			RetryBackoff:  time.Duration(getEnvAsInt("AI_SERVICE_RETRY_BACKOFF", 1000)) * time.Millisecond,
			UserAgent:     getEnv("AI_SERVICE_USER_AGENT", ml.UserAgent),
		},
	}

	zones, err := LoadZones(config.Detection.ZonesFile, config.Detection.GeofenceDistanceMeters)
	if err != nil {
		return nil, err
	}
	config.Detection.Zones = zones

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects settings the detectors and retry loop cannot work with.
func (c *Config) Validate() error {
	d := c.Detection
	if d.MaxSpeedKmh <= d.MinSpeedKmh {
		return fmt.Errorf("MAX_SPEED_THRESHOLD (%.1f) must exceed MIN_SPEED_THRESHOLD (%.1f)", d.MaxSpeedKmh, d.MinSpeedKmh)
	}
	if d.AutoSOSCriticalCount < 1 {
		return fmt.Errorf("AUTO_SOS_CRITICAL_ANOMALY_COUNT must be at least 1, got %d", d.AutoSOSCriticalCount)
	}
	if c.ML.RetryAttempts < 1 {
		return fmt.Errorf("AI_SERVICE_RETRY_ATTEMPTS must be at least 1, got %d", c.ML.RetryAttempts)
	}
	r := d.Risk
	if !(r.Low <= r.Medium && r.Medium <= r.High && r.High <= r.Critical) {
		return fmt.Errorf("risk thresholds must be ascending: low=%.2f medium=%.2f high=%.2f critical=%.2f",
			r.Low, r.Medium, r.High, r.Critical)
	}
	if c.Kafka.FlushInterval <= 0 {
		return fmt.Errorf("KAFKA_FLUSH_INTERVAL must be positive, got %s", c.Kafka.FlushInterval)
	}
	switch c.History.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown HISTORY_BACKEND %q", c.History.Backend)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
