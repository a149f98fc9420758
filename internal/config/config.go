// Package config holds the runtime configuration for the telemetry engine:
// buffer capacities, scoring thresholds, performance budgets, export targets,
// and the serving stack. Configuration is resolved from defaults, an optional
// YAML profile, and environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Damatnic/astral-core-v7-sub003/internal/insight"
	"github.com/Damatnic/astral-core-v7-sub003/internal/stats"
	"github.com/Damatnic/astral-core-v7-sub003/pkg/types"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Buffers   BufferConfig    `json:"buffers" yaml:"buffers"`
	Scoring   ScoringConfig   `json:"scoring" yaml:"scoring"`
	Detection DetectionConfig `json:"detection" yaml:"detection"`
	Export    ExportConfig    `json:"export" yaml:"export"`
	Datastore DatastoreConfig `json:"datastore" yaml:"datastore"`
	Redis     RedisConfig     `json:"redis" yaml:"redis"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
}

// ServerConfig represents the HTTP ingestion server configuration
type ServerConfig struct {
	Host         string `json:"host" yaml:"host"`
	Port         int    `json:"port" yaml:"port"`
	ReadTimeout  int    `json:"read_timeout_seconds" yaml:"read_timeout_seconds"`
	WriteTimeout int    `json:"write_timeout_seconds" yaml:"write_timeout_seconds"`
}

// BufferConfig sets the capacity of each monitor's ring buffer
type BufferConfig struct {
	Vitals  int `json:"vitals" yaml:"vitals"`
	API     int `json:"api" yaml:"api"`
	Queries int `json:"queries" yaml:"queries"`
	Errors  int `json:"errors" yaml:"errors"`
}

// ScoringConfig sets the per-metric scoring thresholds
type ScoringConfig struct {
	Thresholds stats.ThresholdTable `json:"thresholds" yaml:"thresholds"`
}

// DetectionConfig tunes the insight detector rules
type DetectionConfig struct {
	SlowQueryThresholdMs int            `json:"slow_query_threshold_ms" yaml:"slow_query_threshold_ms"`
	ErrorClusterMin      int            `json:"error_cluster_min" yaml:"error_cluster_min"`
	NPlusOneWindowMs     int            `json:"n_plus_one_window_ms" yaml:"n_plus_one_window_ms"`
	NPlusOneMin          int            `json:"n_plus_one_min" yaml:"n_plus_one_min"`
	Budgets              []types.Budget `json:"budgets" yaml:"budgets"`
}

// ExportConfig sets where performance reports are delivered
type ExportConfig struct {
	Endpoint       string `json:"endpoint" yaml:"endpoint"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// DatastoreConfig configures the SQL store the query monitor instruments.
// Driver is "sqlite3" or "postgres".
type DatastoreConfig struct {
	Driver string `json:"driver" yaml:"driver"`
	DSN    string `json:"dsn" yaml:"dsn"`
}

// RedisConfig configures the read-through query cache. Leaving Addr empty
// disables caching.
type RedisConfig struct {
	Addr       string `json:"addr" yaml:"addr"`
	Password   string `json:"-" yaml:"-"`
	DB         int    `json:"db" yaml:"db"`
	TTLSeconds int    `json:"ttl_seconds" yaml:"ttl_seconds"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level string `json:"level" yaml:"level"`
	JSON  bool   `json:"json" yaml:"json"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "localhost",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Buffers: BufferConfig{
			Vitals:  50,
			API:     100,
			Queries: 200,
			Errors:  50,
		},
		Scoring: ScoringConfig{
			Thresholds: insight.DefaultThresholds(),
		},
		Detection: DetectionConfig{
			SlowQueryThresholdMs: 1000,
			ErrorClusterMin:      2,
			NPlusOneWindowMs:     10000,
			NPlusOneMin:          5,
		},
		Export: ExportConfig{
			Endpoint:       "/api/analytics/performance",
			TimeoutSeconds: 10,
		},
		Datastore: DatastoreConfig{
			Driver: "sqlite3",
			DSN:    "file:telemetry.db?_journal_mode=WAL",
		},
		Redis: RedisConfig{
			DB:         0,
			TTLSeconds: 60,
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  true,
		},
	}
}

// LoadConfig loads configuration from defaults, an optional YAML profile
// named by PERF_CONFIG_FILE, and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := DefaultConfig()

	if path := os.Getenv("PERF_CONFIG_FILE"); path != "" {
		if err := config.loadFile(path); err != nil {
			return nil, err
		}
	}

	loadFromEnv(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFile overlays a YAML profile on top of the current values
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// loadFromEnv loads configuration overrides from environment variables
func loadFromEnv(config *Config) {
	loadServerConfig(config)
	loadBufferConfig(config)
	loadDetectionConfig(config)
	loadExportConfig(config)
	loadDatastoreConfig(config)
	loadRedisConfig(config)
	loadLoggingConfig(config)
}

func loadServerConfig(config *Config) {
	if host := os.Getenv("PERF_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("PERF_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if readTimeout := os.Getenv("PERF_READ_TIMEOUT_SECONDS"); readTimeout != "" {
		if rt, err := strconv.Atoi(readTimeout); err == nil {
			config.Server.ReadTimeout = rt
		}
	}
	if writeTimeout := os.Getenv("PERF_WRITE_TIMEOUT_SECONDS"); writeTimeout != "" {
		if wt, err := strconv.Atoi(writeTimeout); err == nil {
			config.Server.WriteTimeout = wt
		}
	}
}

func loadBufferConfig(config *Config) {
	if v := os.Getenv("PERF_BUFFER_VITALS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Buffers.Vitals = n
		}
	}
	if v := os.Getenv("PERF_BUFFER_API"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Buffers.API = n
		}
	}
	if v := os.Getenv("PERF_BUFFER_QUERIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Buffers.Queries = n
		}
	}
	if v := os.Getenv("PERF_BUFFER_ERRORS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Buffers.Errors = n
		}
	}
}

func loadDetectionConfig(config *Config) {
	if v := os.Getenv("PERF_SLOW_QUERY_THRESHOLD_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Detection.SlowQueryThresholdMs = n
		}
	}
	if v := os.Getenv("PERF_ERROR_CLUSTER_MIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Detection.ErrorClusterMin = n
		}
	}
	if v := os.Getenv("PERF_N_PLUS_ONE_WINDOW_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Detection.NPlusOneWindowMs = n
		}
	}
	if v := os.Getenv("PERF_N_PLUS_ONE_MIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Detection.NPlusOneMin = n
		}
	}
}

func loadExportConfig(config *Config) {
	if endpoint := os.Getenv("PERF_EXPORT_ENDPOINT"); endpoint != "" {
		config.Export.Endpoint = endpoint
	}
	if v := os.Getenv("PERF_EXPORT_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Export.TimeoutSeconds = n
		}
	}
}

func loadDatastoreConfig(config *Config) {
	if driver := os.Getenv("PERF_DB_DRIVER"); driver != "" {
		config.Datastore.Driver = driver
	}
	if dsn := os.Getenv("PERF_DB_DSN"); dsn != "" {
		config.Datastore.DSN = dsn
	} else if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		config.Datastore.DSN = dsn
	}
}

func loadRedisConfig(config *Config) {
	if addr := os.Getenv("PERF_REDIS_ADDR"); addr != "" {
		config.Redis.Addr = addr
	} else if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		config.Redis.Addr = addr
	}
	if password := os.Getenv("PERF_REDIS_PASSWORD"); password != "" {
		config.Redis.Password = password
	}
	if v := os.Getenv("PERF_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Redis.DB = n
		}
	}
	if v := os.Getenv("PERF_REDIS_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Redis.TTLSeconds = n
		}
	}
}

func loadLoggingConfig(config *Config) {
	if level := os.Getenv("PERF_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if v := os.Getenv("PERF_LOG_JSON"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Logging.JSON = b
		}
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}

	if c.Buffers.Vitals <= 0 || c.Buffers.API <= 0 || c.Buffers.Queries <= 0 || c.Buffers.Errors <= 0 {
		return fmt.Errorf("buffer capacities must be positive")
	}

	for metric, th := range c.Scoring.Thresholds {
		if th.Good <= 0 || th.NeedsImprovement <= th.Good {
			return fmt.Errorf("invalid thresholds for %s: good=%v needs_improvement=%v",
				metric, th.Good, th.NeedsImprovement)
		}
	}

	if c.Detection.SlowQueryThresholdMs <= 0 {
		return fmt.Errorf("slow query threshold must be positive")
	}
	for _, b := range c.Detection.Budgets {
		if b.Metric == "" {
			return fmt.Errorf("budget metric name cannot be empty")
		}
		if b.Ceiling <= 0 {
			return fmt.Errorf("budget ceiling for %s must be positive", b.Metric)
		}
	}

	if c.Export.Endpoint == "" {
		return fmt.Errorf("export endpoint cannot be empty")
	}

	switch c.Datastore.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("unsupported datastore driver: %s", c.Datastore.Driver)
	}

	return nil
}

// DetectorConfig converts the detection settings into the detector's form
func (c *Config) DetectorConfig() insight.Config {
	return insight.Config{
		Thresholds:         c.Scoring.Thresholds,
		SlowQueryThreshold: time.Duration(c.Detection.SlowQueryThresholdMs) * time.Millisecond,
		Budgets:            c.Detection.Budgets,
		ErrorClusterMin:    c.Detection.ErrorClusterMin,
		NPlusOneWindow:     time.Duration(c.Detection.NPlusOneWindowMs) * time.Millisecond,
		NPlusOneMin:        c.Detection.NPlusOneMin,
	}
}

// ExportTimeout returns the export timeout as a duration
func (c *Config) ExportTimeout() time.Duration {
	if c.Export.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Export.TimeoutSeconds) * time.Second
}

// Addr returns the host:port the server binds to
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// CacheEnabled reports whether the query cache is configured
func (r RedisConfig) CacheEnabled() bool {
	return strings.TrimSpace(r.Addr) != ""
}
