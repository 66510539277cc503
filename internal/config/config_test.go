package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
account:
  email: user@example.com
  password: hunter2
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.BaseURL != DefaultAPIURL {
		t.Fatalf("base url = %q", cfg.API.BaseURL)
	}
	if cfg.API.SocketURL != DefaultSocketURL {
		t.Fatalf("socket url = %q", cfg.API.SocketURL)
	}
	if cfg.HTTP.Addr != DefaultHTTPAddr {
		t.Fatalf("http addr = %q", cfg.HTTP.Addr)
	}
	if cfg.MQTT.TopicPrefix != "haierbridge" {
		t.Fatalf("topic prefix = %q", cfg.MQTT.TopicPrefix)
	}
	if cfg.CacheTTL() != time.Minute {
		t.Fatalf("cache ttl = %v", cfg.CacheTTL())
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
account:
  email: user@example.com
  password: hunter2
api:
  base_url: https://staging.example.com
http:
  addr: ":9090"
directory:
  cache_ttl_seconds: 300
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.BaseURL != "https://staging.example.com" {
		t.Fatalf("base url = %q", cfg.API.BaseURL)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Fatalf("http addr = %q", cfg.HTTP.Addr)
	}
	if cfg.CacheTTL() != 5*time.Minute {
		t.Fatalf("cache ttl = %v", cfg.CacheTTL())
	}
}

func TestLoadRequiresCredentials(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: https://example.com
`)
	if _, err := Load(path); err == nil {
		t.Fatal("missing credentials should fail validation")
	}
}
