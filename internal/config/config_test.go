package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestApplyDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{HealthURL: "http://127.0.0.1/health"}
	ApplyDefaults(&cfg)

	if cfg.Strategy != DefaultStrategy {
		t.Fatalf("strategy=%q", cfg.Strategy)
	}
	if cfg.MaxRetries != DefaultMaxRetries {
		t.Fatalf("max_retries=%d", cfg.MaxRetries)
	}
	if cfg.InitialDelayMs != DefaultInitialDelayMs || cfg.MaxDelayMs != DefaultMaxDelayMs {
		t.Fatalf("delays=%d/%d", cfg.InitialDelayMs, cfg.MaxDelayMs)
	}
	if cfg.QueueMaxSize != DefaultQueueMaxSize {
		t.Fatalf("queue_max_size=%d", cfg.QueueMaxSize)
	}
	if cfg.Enabled == nil || !*cfg.Enabled {
		t.Fatalf("enabled default not true")
	}
	if cfg.AutoSync == nil || !*cfg.AutoSync {
		t.Fatalf("auto_sync default not true")
	}
	if cfg.DegradedTimeoutFactor != DefaultDegradedTimeoutFactor {
		t.Fatalf("degraded_timeout_factor=%v", cfg.DegradedTimeoutFactor)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cfg := Config{HealthURL: "http://127.0.0.1/health"}
	ApplyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected: %v", err)
	}

	bad := cfg
	bad.BackoffMultiplier = 0.5
	if err := Validate(bad); err == nil {
		t.Fatalf("expected multiplier error")
	}

	bad = cfg
	bad.HealthURL = ""
	if err := Validate(bad); err == nil {
		t.Fatalf("expected health_url error")
	}

	bad = cfg
	bad.Checker = "stun"
	if err := Validate(bad); err == nil {
		t.Fatalf("expected stun_servers error")
	}
	bad.STUNServers = []string{"stun.example.org:3478"}
	if err := Validate(bad); err != nil {
		t.Fatalf("unexpected: %v", err)
	}

	bad = cfg
	bad.Strategy = "circuit"
	if err := Validate(bad); err == nil {
		t.Fatalf("expected strategy error")
	}
}

func TestSave_Writes0600AndRoundTrips(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	path := filepath.Join(tmp, "netmend.yaml")
	cfg := Config{HealthURL: "http://127.0.0.1/health", QueueMaxSize: 7}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("mode=%o", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.QueueMaxSize != 7 {
		t.Fatalf("queue_max_size=%d", loaded.QueueMaxSize)
	}
	if loaded.HealthURL != cfg.HealthURL {
		t.Fatalf("health_url=%q", loaded.HealthURL)
	}
}

func TestClone_DoesNotShareSlices(t *testing.T) {
	t.Parallel()

	cfg := Config{STUNServers: []string{"a:3478", "b:3478"}}
	ApplyDefaults(&cfg)
	clone := cfg.Clone()
	clone.STUNServers[0] = "mutated"
	if cfg.STUNServers[0] != "a:3478" {
		t.Fatalf("clone shares stun_servers slice")
	}
	*clone.Enabled = false
	if !*cfg.Enabled {
		t.Fatalf("clone shares enabled pointer")
	}
}
