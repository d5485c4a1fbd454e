package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pricewatch.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
instance:
  id: test-1
catalog:
  base_url: https://api.vendor.example
  api_key: ${PRICEWATCH_API_KEY}
  shop_id: shop-1
variants:
  - id: var-1
    category: t-shirts
  - id: var-2
    category: mugs
`

func TestLoadAndValidateAppliesDefaults(t *testing.T) {
	t.Setenv("PRICEWATCH_API_KEY", "secret-key")
	path := writeConfig(t, minimalConfig)

	cfg, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("LoadAndValidate() error = %v", err)
	}

	if cfg.Catalog.APIKey != "secret-key" {
		t.Errorf("APIKey = %q, want env-expanded secret-key", cfg.Catalog.APIKey)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("Storage.Backend = %q, want memory default", cfg.Storage.Backend)
	}
	if cfg.Ledger.CostChangeThresholdPercent != DefaultCostChangeThreshold {
		t.Errorf("CostChangeThresholdPercent = %v, want %v", cfg.Ledger.CostChangeThresholdPercent, DefaultCostChangeThreshold)
	}
	if cfg.Adjuster.TTL.Std() != 48*time.Hour {
		t.Errorf("Adjuster.TTL = %v, want 48h", cfg.Adjuster.TTL.Std())
	}
	if cfg.Adjuster.RoundEnding == nil || *cfg.Adjuster.RoundEnding != 99 {
		t.Errorf("Adjuster.RoundEnding = %v, want 99", cfg.Adjuster.RoundEnding)
	}
	if cfg.Adjuster.PassThroughIncrease != DefaultPassThroughIncrease {
		t.Errorf("PassThroughIncrease = %v, want %v", cfg.Adjuster.PassThroughIncrease, DefaultPassThroughIncrease)
	}
	if cfg.Adjuster.PassThroughDecrease != DefaultPassThroughDecrease {
		t.Errorf("PassThroughDecrease = %v, want %v", cfg.Adjuster.PassThroughDecrease, DefaultPassThroughDecrease)
	}
	if cfg.Poller.Concurrency != DefaultPollConcurrency {
		t.Errorf("Poller.Concurrency = %d, want %d", cfg.Poller.Concurrency, DefaultPollConcurrency)
	}
	if len(cfg.Variants) != 2 {
		t.Errorf("Variants = %d, want 2", len(cfg.Variants))
	}
}

func TestDurationDecoding(t *testing.T) {
	t.Setenv("PRICEWATCH_API_KEY", "k")
	cfg, err := Load(writeConfig(t, minimalConfig+`
poller:
  interval: 15m
  timeout: 5s
adjuster:
  ttl: 72h
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Poller.Interval.Std() != 15*time.Minute {
		t.Errorf("Poller.Interval = %v, want 15m", cfg.Poller.Interval.Std())
	}
	if cfg.Poller.Timeout.Std() != 5*time.Second {
		t.Errorf("Poller.Timeout = %v, want 5s", cfg.Poller.Timeout.Std())
	}
	if cfg.Adjuster.TTL.Std() != 72*time.Hour {
		t.Errorf("Adjuster.TTL = %v, want 72h", cfg.Adjuster.TTL.Std())
	}

	if _, err := Load(writeConfig(t, minimalConfig+"\npoller:\n  interval: soon\n")); err == nil {
		t.Error("Load() accepted an unparseable duration")
	}
}

func TestRoundEndingExplicitZeroSurvivesDefaults(t *testing.T) {
	t.Setenv("PRICEWATCH_API_KEY", "k")
	cfg, err := LoadAndValidate(writeConfig(t, minimalConfig+`
adjuster:
  round_ending: 0
`))
	if err != nil {
		t.Fatalf("LoadAndValidate() error = %v", err)
	}
	if cfg.Adjuster.RoundEnding == nil || *cfg.Adjuster.RoundEnding != 0 {
		t.Errorf("Adjuster.RoundEnding = %v, want explicit 0 preserved", cfg.Adjuster.RoundEnding)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Load() on missing file returned nil error")
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *EngineConfig)
		wantErr string
	}{
		{
			"missing instance id",
			func(c *EngineConfig) { c.Instance.ID = "" },
			"instance.id",
		},
		{
			"bad storage backend",
			func(c *EngineConfig) { c.Storage.Backend = "etcd" },
			"storage.backend",
		},
		{
			"pebble without path",
			func(c *EngineConfig) { c.Storage.Backend = "pebble"; c.Storage.Path = "" },
			"storage.path",
		},
		{
			"ceiling under floor",
			func(c *EngineConfig) { c.Ledger.MarginCeilingPercent = 10 },
			"margin_ceiling_percent",
		},
		{
			"min margin above target",
			func(c *EngineConfig) { c.Fees.MinMarginPercent = 50 },
			"min_margin_percent",
		},
		{
			"auto cap above max change",
			func(c *EngineConfig) { c.Adjuster.AutoExecuteCapPercent = 20 },
			"auto_execute_cap_percent",
		},
		{
			"bad round ending",
			func(c *EngineConfig) { v := 49; c.Adjuster.RoundEnding = &v },
			"round_ending",
		},
		{
			"pass-through over one",
			func(c *EngineConfig) { c.Adjuster.PassThroughIncrease = 1.5 },
			"pass_through_increase",
		},
		{
			"duplicate variant",
			func(c *EngineConfig) { c.Variants = append(c.Variants, VariantConfig{ID: "var-1"}) },
			"duplicated",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PRICEWATCH_API_KEY", "k")
			cfg, err := LoadWithDefaults(writeConfig(t, minimalConfig))
			if err != nil {
				t.Fatalf("LoadWithDefaults() error = %v", err)
			}
			tt.mutate(cfg)
			err = cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidatePostgresBackend(t *testing.T) {
	t.Setenv("PRICEWATCH_API_KEY", "k")
	cfg, err := LoadWithDefaults(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadWithDefaults() error = %v", err)
	}
	cfg.Storage.Backend = "postgres"

	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "storage.postgres.host") {
		t.Fatalf("Validate() error = %v, want missing host", err)
	}

	cfg.Storage.Postgres.Host = "localhost"
	cfg.Storage.Postgres.Name = "pricewatch"
	cfg.Storage.Postgres.User = "pricewatch"
	cfg.Storage.Postgres.Password = "pw"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() with full postgres config error = %v", err)
	}
}
