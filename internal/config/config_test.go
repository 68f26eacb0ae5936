package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type mapEnv map[string]string

func (m mapEnv) Getenv(key string) string { return m[key] }

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadConfigFromEnv(mapEnv{"MASTER_SECRET": "x"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Port != 3000 {
		t.Fatalf("expected default port 3000, got %d", cfg.Port)
	}
	if cfg.GinMode != "release" {
		t.Fatalf("expected default gin mode release, got %q", cfg.GinMode)
	}
	if cfg.ReconnectDelay != 5*time.Second || cfg.SweepInterval != time.Minute {
		t.Fatalf("unexpected timing defaults: %v %v", cfg.ReconnectDelay, cfg.SweepInterval)
	}
	if cfg.TrialQuota != 20 || cfg.Store.Driver != "memory" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestRequireSecret(t *testing.T) {
	cfg, err := LoadConfigFromEnv(mapEnv{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := cfg.RequireSecret(); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoadConfigFromEnv_PortOverride(t *testing.T) {
	cfg, err := LoadConfigFromEnv(mapEnv{"MASTER_SECRET": "x", "PORT": "1234"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Port != 1234 {
		t.Fatalf("expected port 1234, got %d", cfg.Port)
	}
}

func TestLoadConfigFromEnv_Invalid(t *testing.T) {
	cases := []mapEnv{
		{"PORT": "0"},
		{"WORKER_PORT": "70000"},
		{"RECONNECT_DELAY_SECONDS": "-1"},
		{"TRIAL_QUOTA": "zero"},
		{"STORE_DRIVER": "postgres"},
		{"STORE_DRIVER": "sqlite"},
		{"STORE_DRIVER": "redis"},
		{"REDIS_DB": "-2"},
		{"TLS_CERT_FILE": "cert.pem"},
	}
	for _, env := range cases {
		if _, err := LoadConfigFromEnv(env); err == nil {
			t.Fatalf("expected error for %v", env)
		}
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "botrelay.yaml")
	content := `
port: 8080
workerURL: ws://worker:4000/
reconnectDelay: 2s
sweepInterval: 30s
store:
  driver: sqlite
  sqlitePath: /var/lib/botrelay.db
logLevel: debug
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(mapEnv{"PORT": "9090"}, path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9090 {
		t.Fatalf("env should override file port, got %d", cfg.Port)
	}
	if cfg.WorkerURL != "ws://worker:4000/" || cfg.ReconnectDelay != 2*time.Second || cfg.SweepInterval != 30*time.Second {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Store.SQLitePath != "/var/lib/botrelay.db" {
		t.Fatalf("store section not applied: %+v", cfg.Store)
	}
	if cfg.TrialQuota != 20 {
		t.Fatalf("defaults should survive a partial file, got %d", cfg.TrialQuota)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(mapEnv{}, filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadConfig_PathOverridesConfigFileEnv(t *testing.T) {
	dir := t.TempDir()
	fromEnv := filepath.Join(dir, "env.yaml")
	fromFlag := filepath.Join(dir, "flag.yaml")
	if err := os.WriteFile(fromEnv, []byte("port: 7001\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(fromFlag, []byte("port: 7002\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("PORT", "")
	t.Setenv("CONFIG_FILE", fromEnv)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != 7001 {
		t.Fatalf("expected CONFIG_FILE port 7001, got %d", cfg.Port)
	}

	cfg, err = LoadConfig(fromFlag)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != 7002 {
		t.Fatalf("expected explicit path port 7002, got %d", cfg.Port)
	}
}
