package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultStrategy               = "backoff"
	DefaultMaxRetries             = 5
	DefaultInitialDelayMs         = 1000
	DefaultMaxDelayMs             = 30000
	DefaultBackoffMultiplier      = 2.0
	DefaultQueueMaxSize           = 100
	DefaultRequestTimeoutMs       = 10000
	DefaultRequestExpiryMs        = 300000
	DefaultSyncIntervalMs         = 30000
	DefaultQualityIntervalMs      = 60000
	DefaultDegradedThreshold      = 50
	DefaultDegradedTimeoutFactor  = 1.0
	DefaultChecker                = "http"
	DefaultHealthTimeoutMs        = 5000
	DefaultBandwidthFallbackMbps  = 10.0
	DefaultLogLevel               = "info"
)

// Config holds every engine and daemon setting. All fields are
// independently overridable; zero values are filled by ApplyDefaults.
type Config struct {
	Enabled  *bool  `yaml:"enabled,omitempty"`
	Strategy string `yaml:"strategy"`

	MaxRetries        int     `yaml:"max_retries"`
	InitialDelayMs    int     `yaml:"initial_delay_ms"`
	MaxDelayMs        int     `yaml:"max_delay_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`

	QueueMaxSize     int `yaml:"queue_max_size"`
	RequestTimeoutMs int `yaml:"request_timeout_ms"`
	RequestExpiryMs  int `yaml:"request_expiry_ms"`

	AutoSync       *bool `yaml:"auto_sync,omitempty"`
	SyncIntervalMs int   `yaml:"sync_interval_ms"`

	QualityCheckIntervalMs int     `yaml:"quality_check_interval_ms"`
	DegradedThreshold      int     `yaml:"degraded_threshold"`
	DegradedTimeoutFactor  float64 `yaml:"degraded_timeout_factor"`

	HealthURL             string   `yaml:"health_url"`
	Checker               string   `yaml:"checker"` // http|stun
	STUNServers           []string `yaml:"stun_servers,omitempty"`
	HealthTimeoutMs       int      `yaml:"health_timeout_ms"`
	BandwidthFallbackMbps float64  `yaml:"bandwidth_fallback_mbps"`

	MetricsPath string `yaml:"metrics_path,omitempty"`
	Listen      string `yaml:"listen,omitempty"`
	LogLevel    string `yaml:"log_level"`
}

// Load reads and parses a YAML config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}

	ApplyDefaults(&cfg)
	return cfg, nil
}

// Save writes a YAML config file to disk.
func Save(path string, cfg Config) error {
	ApplyDefaults(&cfg)
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate performs minimal validation for required fields.
func Validate(cfg Config) error {
	switch cfg.Strategy {
	case "backoff", "none":
	default:
		return fmt.Errorf("strategy must be backoff or none, got %q", cfg.Strategy)
	}
	if cfg.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff_multiplier must be >= 1, got %v", cfg.BackoffMultiplier)
	}
	if cfg.QueueMaxSize <= 0 {
		return fmt.Errorf("queue_max_size must be > 0, got %d", cfg.QueueMaxSize)
	}
	if cfg.InitialDelayMs <= 0 || cfg.MaxDelayMs < cfg.InitialDelayMs {
		return fmt.Errorf("delay bounds invalid: initial=%dms max=%dms", cfg.InitialDelayMs, cfg.MaxDelayMs)
	}
	if cfg.DegradedThreshold < 0 || cfg.DegradedThreshold > 100 {
		return fmt.Errorf("degraded_threshold must be in 0..100, got %d", cfg.DegradedThreshold)
	}
	if cfg.DegradedTimeoutFactor < 1 {
		return fmt.Errorf("degraded_timeout_factor must be >= 1, got %v", cfg.DegradedTimeoutFactor)
	}
	switch cfg.Checker {
	case "http":
		if cfg.HealthURL == "" {
			return fmt.Errorf("health_url is required for the http checker")
		}
	case "stun":
		if len(cfg.STUNServers) == 0 {
			return fmt.Errorf("stun_servers is required for the stun checker")
		}
	default:
		return fmt.Errorf("checker must be http or stun, got %q", cfg.Checker)
	}
	return nil
}

// ApplyDefaults fills in default values when empty.
func ApplyDefaults(cfg *Config) {
	if cfg.Enabled == nil {
		enabled := true
		cfg.Enabled = &enabled
	}
	if cfg.Strategy == "" {
		cfg.Strategy = DefaultStrategy
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.InitialDelayMs == 0 {
		cfg.InitialDelayMs = DefaultInitialDelayMs
	}
	if cfg.MaxDelayMs == 0 {
		cfg.MaxDelayMs = DefaultMaxDelayMs
	}
	if cfg.BackoffMultiplier == 0 {
		cfg.BackoffMultiplier = DefaultBackoffMultiplier
	}
	if cfg.QueueMaxSize == 0 {
		cfg.QueueMaxSize = DefaultQueueMaxSize
	}
	if cfg.RequestTimeoutMs == 0 {
		cfg.RequestTimeoutMs = DefaultRequestTimeoutMs
	}
	if cfg.RequestExpiryMs == 0 {
		cfg.RequestExpiryMs = DefaultRequestExpiryMs
	}
	if cfg.AutoSync == nil {
		autoSync := true
		cfg.AutoSync = &autoSync
	}
	if cfg.SyncIntervalMs == 0 {
		cfg.SyncIntervalMs = DefaultSyncIntervalMs
	}
	if cfg.QualityCheckIntervalMs == 0 {
		cfg.QualityCheckIntervalMs = DefaultQualityIntervalMs
	}
	if cfg.DegradedThreshold == 0 {
		cfg.DegradedThreshold = DefaultDegradedThreshold
	}
	if cfg.DegradedTimeoutFactor == 0 {
		cfg.DegradedTimeoutFactor = DefaultDegradedTimeoutFactor
	}
	if cfg.Checker == "" {
		cfg.Checker = DefaultChecker
	}
	if cfg.HealthTimeoutMs == 0 {
		cfg.HealthTimeoutMs = DefaultHealthTimeoutMs
	}
	if cfg.BandwidthFallbackMbps == 0 {
		cfg.BandwidthFallbackMbps = DefaultBandwidthFallbackMbps
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
}

// IsEnabled reports whether the engine should actively recover and sync.
func (c Config) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// IsAutoSync reports whether sync fires automatically on recovery.
func (c Config) IsAutoSync() bool {
	return c.AutoSync == nil || *c.AutoSync
}

// Duration helpers keep call sites free of ms arithmetic.

func (c Config) InitialDelay() time.Duration { return msToDuration(c.InitialDelayMs) }
func (c Config) MaxDelay() time.Duration     { return msToDuration(c.MaxDelayMs) }

func (c Config) RequestTimeout() time.Duration { return msToDuration(c.RequestTimeoutMs) }
func (c Config) RequestExpiry() time.Duration  { return msToDuration(c.RequestExpiryMs) }

func (c Config) SyncInterval() time.Duration         { return msToDuration(c.SyncIntervalMs) }
func (c Config) QualityCheckInterval() time.Duration { return msToDuration(c.QualityCheckIntervalMs) }
func (c Config) HealthTimeout() time.Duration        { return msToDuration(c.HealthTimeoutMs) }

// Clone returns a copy with no shared slices so snapshots stay immutable.
func (c Config) Clone() Config {
	out := c
	if c.Enabled != nil {
		enabled := *c.Enabled
		out.Enabled = &enabled
	}
	if c.AutoSync != nil {
		autoSync := *c.AutoSync
		out.AutoSync = &autoSync
	}
	if c.STUNServers != nil {
		out.STUNServers = append([]string(nil), c.STUNServers...)
	}
	return out
}

func msToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
