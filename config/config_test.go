package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
interval: 5m
fetchTimeout: 10s
debug: true
zones:
  - zonea.com
  - zoneb.com
metricsAddr: ":9100"
log:
  level: debug
  env: dev
plugins:
  - inventory.http
  - dns.cloudflare
pluginSettings:
  inventory.http:
    url: http://inventory.local
  dns.cloudflare:
    token: abc123
    qps: "8"
submit:
  maxAttempts: 6
  initialBackoff: 250ms
  maxBackoff: 4s
  dryRun: true
diff:
  orderInsensitiveTypes:
    - A
    - AAAA
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Interval.Std() != 5*time.Minute {
		t.Errorf("expected interval 5m, got %s", cfg.Interval.Std())
	}
	if cfg.FetchTimeout.Std() != 10*time.Second {
		t.Errorf("expected fetch timeout 10s, got %s", cfg.FetchTimeout.Std())
	}
	if !cfg.Debug {
		t.Error("expected debug true")
	}
	if len(cfg.Zones) != 2 || cfg.Zones[0] != "zonea.com" {
		t.Errorf("unexpected zones: %v", cfg.Zones)
	}
	if cfg.MetricsAddr != ":9100" {
		t.Errorf("unexpected metrics addr: %s", cfg.MetricsAddr)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Env != "dev" {
		t.Errorf("unexpected log config: %+v", cfg.Log)
	}
	if len(cfg.Plugins) != 2 {
		t.Errorf("unexpected plugins: %v", cfg.Plugins)
	}
	if cfg.PluginSettings["dns.cloudflare"]["token"] != "abc123" {
		t.Errorf("unexpected plugin settings: %v", cfg.PluginSettings)
	}
	if cfg.Submit.MaxAttempts != 6 || cfg.Submit.InitialBackoff.Std() != 250*time.Millisecond || !cfg.Submit.DryRun {
		t.Errorf("unexpected submit config: %+v", cfg.Submit)
	}
	if len(cfg.Diff.OrderInsensitiveTypes) != 2 {
		t.Errorf("unexpected diff config: %+v", cfg.Diff)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("missing config file should not be an error: %v", err)
	}

	if cfg.Interval.Std() != time.Minute {
		t.Errorf("expected default interval 1m, got %s", cfg.Interval.Std())
	}
	if cfg.FetchTimeout.Std() != 30*time.Second {
		t.Errorf("expected default fetch timeout 30s, got %s", cfg.FetchTimeout.Std())
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("expected default metrics addr, got %s", cfg.MetricsAddr)
	}
	if cfg.Log.Level != "info" || cfg.Log.Env != "prod" {
		t.Errorf("unexpected default log config: %+v", cfg.Log)
	}
	if cfg.Submit.MaxAttempts != 4 {
		t.Errorf("expected default max attempts 4, got %d", cfg.Submit.MaxAttempts)
	}
	if cfg.Submit.InitialBackoff.Std() != 500*time.Millisecond || cfg.Submit.MaxBackoff.Std() != 8*time.Second {
		t.Errorf("unexpected default backoff: %+v", cfg.Submit)
	}
	if cfg.Debug || cfg.Submit.DryRun {
		t.Error("debug and dry run should default off")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DNS_RECONCILER_INTERVAL", "2m")
	t.Setenv("DNS_RECONCILER_FETCH_TIMEOUT", "5s")
	t.Setenv("DNS_RECONCILER_DEBUG", "true")
	t.Setenv("DNS_RECONCILER_ZONES", "zonea.com,zoneb.com")
	t.Setenv("DNS_RECONCILER_PLUGINS", "inventory.http,dns.fake")
	t.Setenv("DNS_RECONCILER_METRICS_ADDR", ":9999")
	t.Setenv("DNS_RECONCILER_DRYRUN", "true")
	t.Setenv("DNS_RECONCILER_LOG_LEVEL", "warn")

	path := writeConfig(t, `
interval: 1m
zones:
  - original.com
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Interval.Std() != 2*time.Minute {
		t.Errorf("env should override interval, got %s", cfg.Interval.Std())
	}
	if cfg.FetchTimeout.Std() != 5*time.Second {
		t.Errorf("env should override fetch timeout, got %s", cfg.FetchTimeout.Std())
	}
	if !cfg.Debug || !cfg.Submit.DryRun {
		t.Error("env should override debug and dry run")
	}
	if len(cfg.Zones) != 2 || cfg.Zones[0] != "zonea.com" {
		t.Errorf("env should override zones, got %v", cfg.Zones)
	}
	if len(cfg.Plugins) != 2 || cfg.Plugins[1] != "dns.fake" {
		t.Errorf("env should override plugins, got %v", cfg.Plugins)
	}
	if cfg.MetricsAddr != ":9999" {
		t.Errorf("env should override metrics addr, got %s", cfg.MetricsAddr)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("env should override log level, got %s", cfg.Log.Level)
	}
}

func TestLoadExpandsSecrets(t *testing.T) {
	t.Setenv("CF_TOKEN_TEST", "secret-token")

	path := writeConfig(t, `
pluginSettings:
  dns.cloudflare:
    token: ${CF_TOKEN_TEST}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PluginSettings["dns.cloudflare"]["token"] != "secret-token" {
		t.Errorf("expected env expansion in settings, got %v", cfg.PluginSettings)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, "interval: not-a-duration\n")
	if _, err := Load(path); err == nil {
		t.Error("expected error for unparseable duration")
	}
}
