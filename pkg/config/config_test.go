package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Gateway.Port != 8791 {
		t.Errorf("Port = %d, want 8791", cfg.Gateway.Port)
	}
	if cfg.Upstream.Transport != "websocket" {
		t.Errorf("Upstream.Transport = %q, want %q", cfg.Upstream.Transport, "websocket")
	}
	if !cfg.Upstream.Reconnect {
		t.Error("Upstream.Reconnect = false, want true")
	}
	if cfg.Store.RetentionDays != 90 {
		t.Errorf("RetentionDays = %d, want 90", cfg.Store.RetentionDays)
	}
}

func TestLoadNonExistent(t *testing.T) {
	cfg, err := Load("/tmp/nonexistent-gatewatch-config.toml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Gateway.Port != 8791 {
		t.Errorf("Port = %d, want 8791", cfg.Gateway.Port)
	}
}

func TestLoadValid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gatewatch.toml")

	content := `
[gateway]
port = 9999
bind = "lan"
auth_token = "sekrit"

[upstream]
endpoint = "/ws/rfid"
origin = "https://shop.example"
transport = "sse"
reconnect_delay = "500ms"
reconnect = false

[store]
retention_days = 7

[log]
level = "debug"
format = "text"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.Port != 9999 {
		t.Errorf("Port = %d, want 9999", cfg.Gateway.Port)
	}
	if cfg.Gateway.Bind != "lan" {
		t.Errorf("Bind = %q, want %q", cfg.Gateway.Bind, "lan")
	}
	if cfg.Upstream.Endpoint != "/ws/rfid" {
		t.Errorf("Endpoint = %q, want %q", cfg.Upstream.Endpoint, "/ws/rfid")
	}
	if cfg.Upstream.Reconnect {
		t.Error("Reconnect = true, want false")
	}
	if cfg.Store.RetentionDays != 7 {
		t.Errorf("RetentionDays = %d, want 7", cfg.Store.RetentionDays)
	}

	d, err := cfg.Upstream.ReconnectInterval()
	if err != nil {
		t.Fatalf("ReconnectInterval: %v", err)
	}
	if d != 500*time.Millisecond {
		t.Errorf("ReconnectInterval = %v, want 500ms", d)
	}
}

func TestReconnectIntervalInvalid(t *testing.T) {
	u := UpstreamConfig{ReconnectDelay: "soon"}
	if _, err := u.ReconnectInterval(); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestReconnectIntervalEmpty(t *testing.T) {
	var u UpstreamConfig
	d, err := u.ReconnectInterval()
	if err != nil {
		t.Fatalf("ReconnectInterval: %v", err)
	}
	if d != 0 {
		t.Errorf("ReconnectInterval = %v, want 0", d)
	}
}

func TestDataDirEnvOverride(t *testing.T) {
	t.Setenv("GATEWATCH_DATA_DIR", "/tmp/gatewatch-test")
	if got := DataDir(); got != "/tmp/gatewatch-test" {
		t.Errorf("DataDir = %q, want %q", got, "/tmp/gatewatch-test")
	}
}
