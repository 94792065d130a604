package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWritesDefaultConfigWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay", "config.yaml")

	cfg, resolved, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if resolved != path {
		t.Fatalf("expected resolved path %q, got %q", path, resolved)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default config to be written: %v", err)
	}

	def := Default()
	if cfg.Tracker.Addr != def.Tracker.Addr {
		t.Fatalf("expected addr %q, got %q", def.Tracker.Addr, cfg.Tracker.Addr)
	}
	if cfg.Tracker.HeartbeatTimeout != 30*time.Second {
		t.Fatalf("expected 30s heartbeat timeout, got %v", cfg.Tracker.HeartbeatTimeout)
	}
	if cfg.Peer.DialTimeout != 2*time.Second {
		t.Fatalf("expected 2s dial timeout, got %v", cfg.Peer.DialTimeout)
	}
}

func TestLoadReadsFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`log_level: debug
tracker:
  addr: ":7000"
  heartbeat_timeout: 10s
peer:
  tracker_url: "http://tracker:7000"
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("RELAY_TRACKER_DEFAULT_CHANNEL", "lobby")

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Fatalf("expected debug level, got %q", cfg.LogLevel)
	}
	if cfg.Tracker.Addr != ":7000" {
		t.Fatalf("expected addr from file, got %q", cfg.Tracker.Addr)
	}
	if cfg.Tracker.HeartbeatTimeout != 10*time.Second {
		t.Fatalf("expected 10s timeout, got %v", cfg.Tracker.HeartbeatTimeout)
	}
	if cfg.Tracker.DefaultChannel != "lobby" {
		t.Fatalf("expected env override, got %q", cfg.Tracker.DefaultChannel)
	}
	if cfg.Peer.TrackerURL != "http://tracker:7000" {
		t.Fatalf("unexpected tracker url %q", cfg.Peer.TrackerURL)
	}
	// Untouched keys keep defaults.
	if cfg.Peer.DrainInterval != 200*time.Millisecond {
		t.Fatalf("expected default drain interval, got %v", cfg.Peer.DrainInterval)
	}
}

func TestUpdateFromKeepsZeroValues(t *testing.T) {
	cfg := Default()
	cfg.UpdateFrom(Config{
		Tracker: TrackerConfig{Addr: ":9000"},
		Peer:    PeerConfig{Username: "alice"},
	})

	if cfg.Tracker.Addr != ":9000" {
		t.Fatalf("expected overridden addr, got %q", cfg.Tracker.Addr)
	}
	if cfg.Peer.Username != "alice" {
		t.Fatalf("expected username alice, got %q", cfg.Peer.Username)
	}
	if cfg.Tracker.DefaultChannel != "general" {
		t.Fatalf("expected default channel kept, got %q", cfg.Tracker.DefaultChannel)
	}
}
