// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	Host string `envconfig:"MBR_HOST" yaml:"host"`
	Port int    `envconfig:"MBR_PORT" yaml:"port"`

	// Backend configuration
	Backend BackendConfig `yaml:"backend"`

	// Metric configuration
	Metric MetricConfig `yaml:"metric"`

	// Decoder configuration
	Decoder DecoderConfig `yaml:"decoder"`

	// Cache configuration
	Cache CacheConfig `yaml:"cache"`

	// Bus configuration
	Bus BusConfig `yaml:"bus"`

	// Jobs configuration
	Jobs JobsConfig `yaml:"jobs"`

	// Logging configuration
	Log LogConfig `yaml:"log"`

	// Security configuration
	Security SecurityConfig `yaml:"security"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// BackendConfig holds scoring backend connection settings.
type BackendConfig struct {
	URL               string `envconfig:"MBR_BACKEND_URL" yaml:"url"`
	APIKey            string `envconfig:"MBR_BACKEND_API_KEY" yaml:"api_key"`
	TimeoutSeconds    int    `envconfig:"MBR_BACKEND_TIMEOUT" yaml:"timeout_seconds"`
	MaxRetries        int    `envconfig:"MBR_BACKEND_MAX_RETRIES" yaml:"max_retries"`
	RequestsPerSecond int    `envconfig:"MBR_BACKEND_RPS" yaml:"requests_per_second"` // 0 = unlimited
	MaxParallel       int    `envconfig:"MBR_BACKEND_MAX_PARALLEL" yaml:"max_parallel"`
}

// MetricConfig holds utility metric settings.
type MetricConfig struct {
	Default     string `envconfig:"MBR_METRIC" yaml:"default"`
	BatchSize   int    `envconfig:"MBR_METRIC_BATCH_SIZE" yaml:"batch_size"`
	FP16        bool   `envconfig:"MBR_METRIC_FP16" yaml:"fp16"`
	CometModel  string `envconfig:"MBR_COMET_MODEL" yaml:"comet_model"`
	CometQE     string `envconfig:"MBR_COMETQE_MODEL" yaml:"cometqe_model"`
	BleurtModel string `envconfig:"MBR_BLEURT_MODEL" yaml:"bleurt_model"`
	ModelsDir   string `envconfig:"MBR_MODELS_DIR" yaml:"models_dir"`
}

// DecoderConfig holds decoder settings.
type DecoderConfig struct {
	Default string `envconfig:"MBR_DECODER" yaml:"default"`
	NBest   int    `envconfig:"MBR_NBEST" yaml:"nbest"`
}

// CacheConfig holds score cache settings.
type CacheConfig struct {
	Type     string `envconfig:"MBR_CACHE_TYPE" yaml:"type"`
	Size     int    `envconfig:"MBR_CACHE_SIZE" yaml:"size"`
	TTL      int    `envconfig:"MBR_CACHE_TTL" yaml:"ttl"` // 0 = no expiry
	RedisURL string `envconfig:"MBR_REDIS_URL" yaml:"redis_url"`
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type            string `envconfig:"MBR_BUS_TYPE" yaml:"type"`
	KafkaBrokers    string `envconfig:"MBR_KAFKA_BROKERS" yaml:"kafka_brokers"`
	GroupID         string `envconfig:"MBR_KAFKA_GROUP_ID" yaml:"group_id"`
	EventLogEnabled bool   `envconfig:"MBR_BUS_EVENT_LOG_ENABLED" yaml:"event_log_enabled"`
	EventLogPath    string `envconfig:"MBR_BUS_EVENT_LOG" yaml:"event_log_path"`
}

// JobsConfig holds batch job settings.
type JobsConfig struct {
	Workers    int `envconfig:"MBR_JOB_WORKERS" yaml:"workers"`
	MaxPending int `envconfig:"MBR_JOB_MAX_PENDING" yaml:"max_pending"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"MBR_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"MBR_LOG_FORMAT" yaml:"format"`
	File   string `envconfig:"MBR_LOG_FILE" yaml:"file"`
}

// SecurityConfig holds security settings.
type SecurityConfig struct {
	APIKey      string `envconfig:"MBR_API_KEY" yaml:"api_key"`
	RateLimit   int    `envconfig:"MBR_RATE_LIMIT" yaml:"rate_limit"` // 0 = disabled
	CORSOrigins string `envconfig:"MBR_CORS_ORIGINS" yaml:"cors_origins"`
}

// ObservabilityConfig holds observability settings.
type ObservabilityConfig struct {
	MetricsEnabled bool   `envconfig:"MBR_METRICS_ENABLED" yaml:"metrics_enabled"`
	MetricsPath    string `envconfig:"MBR_METRICS_PATH" yaml:"metrics_path"`
}

// Load loads configuration from environment variables and optional config file.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Set defaults first
	setDefaults(cfg)

	// Load from YAML file if provided (overrides defaults)
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func setDefaults(cfg *Config) {
	cfg.Host = "0.0.0.0"
	cfg.Port = 8080

	cfg.Backend = BackendConfig{
		URL:            "http://localhost:9090",
		TimeoutSeconds: 120,
		MaxRetries:     3,
		MaxParallel:    4,
	}

	cfg.Metric = MetricConfig{
		Default:     "bleu",
		BatchSize:   64,
		CometModel:  "Unbabel/wmt22-comet-da",
		CometQE:     "Unbabel/wmt22-cometkiwi-da",
		BleurtModel: "lucadiliello/BLEURT-20",
		ModelsDir:   "./models",
	}

	cfg.Decoder = DecoderConfig{
		Default: "mbr",
		NBest:   1,
	}

	cfg.Cache = CacheConfig{
		Type:     "memory",
		Size:     10000,
		TTL:      0,
		RedisURL: "redis://localhost:6379",
	}

	cfg.Bus = BusConfig{
		Type:         "memory",
		GroupID:      "mbr-decode",
		EventLogPath: "./data/events.log",
	}

	cfg.Jobs = JobsConfig{
		Workers:    2,
		MaxPending: 100,
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}

	cfg.Security = SecurityConfig{
		RateLimit:   0,
		CORSOrigins: "*",
	}

	cfg.Observability = ObservabilityConfig{
		MetricsEnabled: true,
		MetricsPath:    "/metrics",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	// Server validation
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}

	// Backend validation
	if c.Backend.TimeoutSeconds < 1 {
		errs = append(errs, "backend timeout_seconds must be positive")
	}

	if c.Backend.MaxParallel < 1 {
		errs = append(errs, "backend max_parallel must be positive")
	}

	// Metric validation
	if c.Metric.BatchSize < 1 {
		errs = append(errs, "metric batch_size must be positive")
	}

	// Decoder validation
	if c.Decoder.NBest < 1 {
		errs = append(errs, "decoder nbest must be positive")
	}

	// Cache validation
	validCacheTypes := map[string]bool{"memory": true, "redis": true, "none": true}
	if !validCacheTypes[c.Cache.Type] {
		errs = append(errs, fmt.Sprintf("invalid cache type: %s (must be memory, redis, or none)", c.Cache.Type))
	}

	// Bus validation
	validBusTypes := map[string]bool{"memory": true, "kafka": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be memory or kafka)", c.Bus.Type))
	}

	if c.Bus.Type == "kafka" && c.Bus.KafkaBrokers == "" {
		errs = append(errs, "kafka_brokers required when bus type is kafka")
	}

	// Jobs validation
	if c.Jobs.Workers < 1 {
		errs = append(errs, "job workers must be positive")
	}

	// Log validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// Address returns the server address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Log.Level == "debug"
}
