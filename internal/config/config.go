// Package config loads the engine's environment-driven configuration.
// Grounded on the teacher's internal/config.Config: an explicit struct
// tree read once at startup via envStr/envInt/envBool/envDuration
// helpers with sensible fallbacks, never read from ad hoc os.Getenv calls
// scattered through the rest of the codebase.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/aptcat/engine/pkg/models"
)

// Config holds all configuration for the aptcat evaluation engine.
type Config struct {
	Port      int
	Version   string
	Catalog   CatalogConfig
	Target    TargetConfig
	Database  DatabaseConfig
	Telemetry TelemetryConfig
	Engine    models.EngineConfig
}

// CatalogConfig locates the on-disk item library.
type CatalogConfig struct {
	Dir string
}

// TargetConfig carries the default reference-adapter target, overridable
// per run by the CLI.
type TargetConfig struct {
	URL     string
	Timeout time.Duration
}

// DatabaseConfig configures the optional PostgreSQL result sink. When URL
// is empty the engine falls back to the in-memory sink.
type DatabaseConfig struct {
	URL string
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("APTCAT_PORT", 8080),
		Version: envStr("APTCAT_VERSION", "0.1.0"),
		Catalog: CatalogConfig{
			Dir: envStr("APTCAT_CATALOG_DIR", "./catalog"),
		},
		Target: TargetConfig{
			URL:     envStr("APTCAT_TARGET_URL", ""),
			Timeout: envDuration("APTCAT_TARGET_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			URL: envStr("DATABASE_URL", ""),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "aptcat-engine"),
		},
		Engine: engineConfigFromEnv(),
	}
}

func engineConfigFromEnv() models.EngineConfig {
	cfg := models.DefaultEngineConfig()
	cfg.Convergence.SEThreshold = envFloat("APTCAT_SE_THRESHOLD", cfg.Convergence.SEThreshold)
	cfg.Convergence.MaxTests = envInt("APTCAT_MAX_TESTS", cfg.Convergence.MaxTests)
	cfg.Convergence.Timeout = envDuration("APTCAT_CONVERGENCE_TIMEOUT", cfg.Convergence.Timeout)
	cfg.Noise.Replications = envInt("APTCAT_NOISE_REPLICATIONS", cfg.Noise.Replications)
	cfg.Noise.CVThreshold = envFloat("APTCAT_NOISE_CV_THRESHOLD", cfg.Noise.CVThreshold)
	cfg.Noise.WarmupCount = envInt("APTCAT_NOISE_WARMUP", cfg.Noise.WarmupCount)
	return cfg
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

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
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

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
