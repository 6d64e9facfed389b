package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 4000 {
		t.Errorf("unexpected server defaults: %+v", cfg.Server)
	}
	if cfg.Storage.CompactionThresholdBytes != 1024*1024 {
		t.Errorf("unexpected default compaction threshold: %d", cfg.Storage.CompactionThresholdBytes)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	os.Setenv("KVS_SERVER_PORT", "5000")
	defer os.Unsetenv("KVS_SERVER_PORT")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("expected env override to set port=5000, got %d", cfg.Server.Port)
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	path := writeTempConfig(t, `
server:
  host: 0.0.0.0
  port: 6000
storage:
  data.dir: /tmp/kvs-test-data
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 6000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.DataDir != "/tmp/kvs-test-data" {
		t.Errorf("unexpected data dir: %s", cfg.Storage.DataDir)
	}
}

func TestValidateRejectsBadPort(t *testing.T) {
	path := writeTempConfig(t, `
server:
  port: 99999
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for an out-of-range port")
	}
}

func TestServerConfigAddr(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: 4000}
	if s.Addr() != "127.0.0.1:4000" {
		t.Errorf("expected 127.0.0.1:4000, got %s", s.Addr())
	}
}

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	path := t.TempDir() + "/config.yaml"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}
