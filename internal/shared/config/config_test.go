package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("SERVICE_NAME", "signal-service")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Discovery.Interval != 300*time.Second {
		t.Errorf("interval = %v, want 300s", cfg.Discovery.Interval)
	}
	if cfg.Discovery.Epsilon != 0.05 {
		t.Errorf("epsilon = %v, want 0.05", cfg.Discovery.Epsilon)
	}
	if len(cfg.Discovery.TargetPairs) != 2 {
		t.Errorf("target pairs = %d, want 2", len(cfg.Discovery.TargetPairs))
	}
	if cfg.Limits.Trial != 3 || cfg.Limits.Daily != 15 {
		t.Errorf("limits = %+v", cfg.Limits)
	}
	if len(cfg.Plans) != 3 {
		t.Errorf("plans = %d, want 3", len(cfg.Plans))
	}
	if cfg.HTTPPort != "8080" || cfg.MetricsPort != "9095" {
		t.Errorf("ports = %s/%s", cfg.HTTPPort, cfg.MetricsPort)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("SERVICE_NAME", "notifier-worker")
	t.Setenv("DISCOVERY_INTERVAL", "120")
	t.Setenv("SOURCE_TIMEOUT", "5s")
	t.Setenv("DAILY_LIMIT", "20")
	t.Setenv("ADMIN_IDS", " 1, 2 ,,3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Discovery.Interval != 120*time.Second {
		t.Errorf("interval = %v", cfg.Discovery.Interval)
	}
	if cfg.Discovery.Timeout != 5*time.Second {
		t.Errorf("timeout = %v", cfg.Discovery.Timeout)
	}
	if cfg.Limits.Daily != 20 {
		t.Errorf("daily = %d", cfg.Limits.Daily)
	}
	if got := len(cfg.AdminIDs); got != 3 {
		t.Errorf("admins = %v", cfg.AdminIDs)
	}
	if cfg.MetricsPort != "9097" {
		t.Errorf("metrics port = %s", cfg.MetricsPort)
	}
}

func TestLoadYAMLTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signals.yaml")
	yaml := `
discovery:
  target_pairs:
    - {a: 3.1, b: 1.4}
plans:
  - {kind: week, days: 7, price: "700"}
sources:
  - id: 1xbet
    api_url: http://api.local/football
    page_url: http://page.local/football
    delimiter: " - "
    selectors:
      item: div.c-events__item
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(cfg.Discovery.TargetPairs) != 1 || cfg.Discovery.TargetPairs[0].A != 3.1 {
		t.Errorf("target pairs = %+v", cfg.Discovery.TargetPairs)
	}
	if len(cfg.Plans) != 1 || cfg.Plans[0].Price != "700" {
		t.Errorf("plans = %+v", cfg.Plans)
	}
	if len(cfg.Sources) != 1 {
		t.Fatalf("sources = %+v", cfg.Sources)
	}
	src := cfg.Sources[0]
	if src.ID != "1xbet" || src.Delimiter != " - " || src.Selectors.Item != "div.c-events__item" {
		t.Errorf("source = %+v", src)
	}
}
