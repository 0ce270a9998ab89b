package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the decision engine server.
type Config struct {
	Port      int
	Version   string
	DataDir   string
	Database  DatabaseConfig
	Telemetry TelemetryConfig
	Auth      AuthConfig
	Engine    EngineConfig
	Retention RetentionConfig
}

// RetentionConfig tunes the data retention janitor.
type RetentionConfig struct {
	Enabled       bool
	Interval      time.Duration
	PredictionTTL time.Duration
	FeedbackTTL   time.Duration

	// ArchiveDir enables archive-then-purge when set; empty purges without
	// archiving.
	ArchiveDir string
	Compress   bool
}

type DatabaseConfig struct {
	// URL selects the PostgreSQL store when set; empty falls back to the
	// in-memory store with DataDir snapshots.
	URL            string
	MaxConnections int
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

type AuthConfig struct {
	// APIKeys is the set of accepted keys. Empty disables authentication
	// (local development).
	APIKeys []string
	Header  string
}

// EngineConfig tunes the scoring pipeline.
type EngineConfig struct {
	// PredictTimeout bounds a single prediction pass; on expiry the
	// handler serves the fallback result instead of failing.
	PredictTimeout time.Duration

	// RetrainAfter and FeedbackThreshold are the automatic retraining
	// criteria.
	RetrainAfter      time.Duration
	FeedbackThreshold int

	// AdaptationStep is the objective weight increment applied on failed
	// feedback.
	AdaptationStep float64

	// K1, K2, K3 scale the prediction-derived objective weight deltas
	// (objection confidence, unmet need, conversion probability).
	K1 float64
	K2 float64
	K3 float64

	// WeightFloor is the minimum weight any objective may hold.
	WeightFloor float64

	// ExplorationEpsilon is the fixed score of exploration actions.
	ExplorationEpsilon float64
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("DECISION_PORT", 8080),
		Version: envStr("DECISION_VERSION", "0.4.0"),
		DataDir: envStr("DECISION_DATA_DIR", ""),
		Database: DatabaseConfig{
			URL:            envStr("DATABASE_URL", ""),
			MaxConnections: envInt("DATABASE_MAX_CONNECTIONS", 25),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", true),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "decision-engine"),
		},
		Auth: AuthConfig{
			APIKeys: envList("DECISION_API_KEYS"),
			Header:  envStr("DECISION_API_KEY_HEADER", "Authorization"),
		},
		Engine: EngineConfig{
			PredictTimeout:     envDuration("DECISION_PREDICT_TIMEOUT", 200*time.Millisecond),
			RetrainAfter:       envDuration("DECISION_RETRAIN_AFTER", 10*24*time.Hour),
			FeedbackThreshold:  envInt("DECISION_FEEDBACK_THRESHOLD", 50),
			AdaptationStep:     envFloat("DECISION_ADAPTATION_STEP", 0.15),
			K1:                 envFloat("DECISION_WEIGHT_K1", 0.5),
			K2:                 envFloat("DECISION_WEIGHT_K2", 0.5),
			K3:                 envFloat("DECISION_WEIGHT_K3", 0.5),
			WeightFloor:        envFloat("DECISION_WEIGHT_FLOOR", 0.05),
			ExplorationEpsilon: envFloat("DECISION_EXPLORATION_EPSILON", 0.05),
		},
		Retention: RetentionConfig{
			Enabled:       envBool("DECISION_RETENTION_ENABLED", true),
			Interval:      envDuration("DECISION_RETENTION_INTERVAL", time.Hour),
			PredictionTTL: envDuration("DECISION_PREDICTION_TTL", 30*24*time.Hour),
			FeedbackTTL:   envDuration("DECISION_FEEDBACK_TTL", 90*24*time.Hour),
			ArchiveDir:    envStr("DECISION_ARCHIVE_DIR", ""),
			Compress:      envBool("DECISION_ARCHIVE_COMPRESS", true),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
