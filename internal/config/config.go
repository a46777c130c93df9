// Package config loads the pipeline's YAML configuration, applies
// environment-variable overrides, and validates the result, mirroring the
// load-then-override-then-validate shape used across the rest of the
// codebase's ambient stack.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	pipelineerrors "github.com/dioceseharvest/pipeline/pkg/shared/errors"
)

// Config is the root configuration for a router process (spec §6).
type Config struct {
	Persistence PersistenceConfig `yaml:"persistence"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Fetch       FetchConfig       `yaml:"fetch"`
	Breaker     BreakerConfig     `yaml:"breaker"`
	AI          AIConfig          `yaml:"ai"`
	Search      SearchConfig      `yaml:"search"`
	Logging     LoggingConfig     `yaml:"logging"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Router      RouterConfig      `yaml:"router"`
}

// PersistenceConfig holds the relational-store connection details (spec §6:
// "Persistence connection string and API key").
type PersistenceConfig struct {
	DSN          string `yaml:"dsn" validate:"required"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
	RedisAddr    string `yaml:"redis_addr"`
}

// CoordinatorConfig tunes worker lifecycle behavior (spec §4.A).
type CoordinatorConfig struct {
	WorkerDeadAfter  time.Duration `yaml:"worker_dead_after"`
	HeartbeatPeriod  time.Duration `yaml:"heartbeat_period"`
	SweepInterval    time.Duration `yaml:"sweep_interval"`
	ClaimBatchSize   int           `yaml:"claim_batch_size"`
	TxnTimeout       time.Duration `yaml:"txn_timeout"`
	MaxRetries       int           `yaml:"max_retries"`
}

// FetchConfig tunes the respectful fetcher (spec §4.C).
type FetchConfig struct {
	UserAgent           string        `yaml:"user_agent"`
	RobotsTTL           time.Duration `yaml:"robots_ttl"`
	BlockedCooldown     time.Duration `yaml:"blocked_cooldown"`
	BaseDelay           time.Duration `yaml:"base_delay"`
	DefaultRatePerSec   float64       `yaml:"default_rate_per_sec"`
	DefaultBurst        int           `yaml:"default_burst"`
	DefaultConcurrency  int           `yaml:"default_concurrency"`
	MinTimeout          time.Duration `yaml:"min_timeout"`
	MaxTimeout          time.Duration `yaml:"max_timeout"`
	BrowserPoolSize     int           `yaml:"browser_pool_size"`
	BrowserLeaseTimeout time.Duration `yaml:"browser_lease_timeout"`
}

// BreakerConfig is loaded from the breaker section of the YAML file.
// pkg/breaker does not read it: its registry carries its own fixed
// tuning for each named breaker (spec §4.D table).
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	FailureWindow    time.Duration `yaml:"failure_window"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`
}

// AIConfig configures the confidence gate's extractor client (spec §4.F).
type AIConfig struct {
	Provider       string  `yaml:"provider" validate:"required,oneof=anthropic bedrock"`
	Model          string  `yaml:"model" validate:"required"`
	APIKey         string  `yaml:"api_key"`
	BaseThreshold  int     `yaml:"base_threshold"`
	ThresholdFloor int     `yaml:"threshold_floor"`
	ThresholdCeil  int     `yaml:"threshold_ceil"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxAttempts    int     `yaml:"max_attempts"`
}

// SearchConfig configures the search-API fallback for directory detection.
type SearchConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Endpoint     string `yaml:"endpoint"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	TokenURL     string `yaml:"token_url"`
}

// LoggingConfig controls log verbosity/format.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error fatal"`
	Format string `yaml:"format" validate:"omitempty,oneof=json text"`
}

// TelemetryConfig controls the optional monitoring push and Slack alerting
// (spec §4.H/§6).
type TelemetryConfig struct {
	MonitoringURL      string `yaml:"monitoring_url"`
	DisableMonitoring  bool   `yaml:"disable_monitoring"`
	SlackWebhookURL    string `yaml:"slack_webhook_url"`
	EventQueueSize     int    `yaml:"event_queue_size"`
	RingBufferSize     int    `yaml:"ring_buffer_size"`
	LogRingBufferSize  int    `yaml:"log_ring_buffer_size"`
	HealthPort         string `yaml:"health_port"`
}

// RouterConfig holds the CLI-overridable knobs from spec §6.
type RouterConfig struct {
	WorkerType               string `yaml:"worker_type" validate:"required,oneof=discovery extraction schedule reporting all"`
	MaxParishesPerDiocese    int    `yaml:"max_parishes_per_diocese"`
	NumParishesForSchedule   int    `yaml:"num_parishes_for_schedule"`
	BatchSize                int    `yaml:"batch_size"`
	StaleAfter               time.Duration `yaml:"stale_after"`
	ReportInterval           time.Duration `yaml:"report_interval"`
	DiscoverySweepInterval   time.Duration `yaml:"discovery_sweep_interval"`
}

// Default returns a Config populated with the spec-mandated defaults
// (robots_ttl=24h, blocked_cooldown=30m, worker_dead_after=90s,
// stale_after=30d, and the rest of the tuning knobs named in spec §4).
func Default() *Config {
	return &Config{
		Coordinator: CoordinatorConfig{
			WorkerDeadAfter: 90 * time.Second,
			HeartbeatPeriod: 15 * time.Second,
			SweepInterval:   30 * time.Second,
			ClaimBatchSize:  5,
			TxnTimeout:      5 * time.Second,
			MaxRetries:      3,
		},
		Fetch: FetchConfig{
			UserAgent:           "DioceseHarvestBot/1.0 (+https://example.org/bot)",
			RobotsTTL:           24 * time.Hour,
			BlockedCooldown:     30 * time.Minute,
			BaseDelay:           2 * time.Second,
			DefaultRatePerSec:   2,
			DefaultBurst:        3,
			DefaultConcurrency:  2,
			MinTimeout:          5 * time.Second,
			MaxTimeout:          45 * time.Second,
			BrowserPoolSize:     4,
			BrowserLeaseTimeout: 30 * time.Second,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			FailureWindow:    60 * time.Second,
			RecoveryTimeout:  60 * time.Second,
		},
		AI: AIConfig{
			Provider:       "anthropic",
			BaseThreshold:  15,
			ThresholdFloor: 3,
			ThresholdCeil:  60,
			RequestTimeout: 30 * time.Second,
			MaxAttempts:    4,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Telemetry: TelemetryConfig{
			EventQueueSize:    1024,
			RingBufferSize:    20,
			LogRingBufferSize: 100,
			HealthPort:        "8081",
		},
		Router: RouterConfig{
			WorkerType:             "all",
			NumParishesForSchedule: 100,
			BatchSize:              8,
			StaleAfter:             30 * 24 * time.Hour,
			ReportInterval:         6 * time.Hour,
			DiscoverySweepInterval: 5 * time.Minute,
		},
	}
}

// Load reads path, merges it over the defaults, applies environment
// overrides, and validates the result. A missing required value (e.g. no
// persistence DSN) produces an error that the entry point turns into exit
// code 1 (spec §6).
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pipelineerrors.FailedToWithDetails("read config file", "config", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, pipelineerrors.FailedToWithDetails("parse config file", "config", path, err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, pipelineerrors.FailedToWithDetails("validate config", "config", path, err)
	}
	return cfg, nil
}

// applyEnvOverrides mirrors spec §6's environment-variable surface:
// persistence DSN and Redis address, AI provider and API key, search-API
// credentials, monitoring and Slack settings, log level, WORKER_TYPE, and
// the per-role batch and pool sizes.
func (c *Config) applyEnvOverrides() {
	strOverride(&c.Persistence.DSN, "PERSISTENCE_DSN")
	strOverride(&c.Persistence.RedisAddr, "REDIS_ADDR")
	strOverride(&c.AI.APIKey, "AI_API_KEY")
	strOverride(&c.AI.Provider, "AI_PROVIDER")
	strOverride(&c.Search.ClientID, "SEARCH_CLIENT_ID")
	strOverride(&c.Search.ClientSecret, "SEARCH_CLIENT_SECRET")
	strOverride(&c.Telemetry.MonitoringURL, "MONITORING_URL")
	strOverride(&c.Telemetry.SlackWebhookURL, "SLACK_WEBHOOK_URL")
	strOverride(&c.Logging.Level, "LOG_LEVEL")
	strOverride(&c.Router.WorkerType, "WORKER_TYPE")

	if v := os.Getenv("DISABLE_MONITORING"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Telemetry.DisableMonitoring = b
		}
	}
	if v := os.Getenv("MAX_PARISHES_PER_DIOCESE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Router.MaxParishesPerDiocese = n
		}
	}
	if v := os.Getenv("NUM_PARISHES_FOR_SCHEDULE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Router.NumParishesForSchedule = n
		}
	}
	if v := os.Getenv("BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Router.BatchSize = n
		}
	}
	if v := os.Getenv("BROWSER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Fetch.BrowserPoolSize = n
		}
	}
}

func strOverride(dst *string, envVar string) {
	if v := os.Getenv(envVar); v != "" {
		*dst = v
	}
}

// Validate runs struct-tag validation (spec §6: "All are validated on
// startup; missing required values produce exit code 1").
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.AI.Provider == "" {
		return fmt.Errorf("ai.provider is required")
	}
	return nil
}
