package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration decodes YAML durations written like "30s" or "48h".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// EngineConfig is the root configuration for a pricewatch instance.
type EngineConfig struct {
	Instance InstanceConfig  `yaml:"instance"`
	Catalog  CatalogConfig   `yaml:"catalog"`
	Storage  StorageConfig   `yaml:"storage"`
	Ledger   LedgerConfig    `yaml:"ledger"`
	Fees     FeeConfig       `yaml:"fees"`
	Market   MarketConfig    `yaml:"market"`
	Adjuster AdjusterConfig  `yaml:"adjuster"`
	Poller   PollerConfig    `yaml:"poller"`
	Metrics  MetricsConfig   `yaml:"metrics"`
	Variants []VariantConfig `yaml:"variants"`
}

// InstanceConfig identifies this engine instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// CatalogConfig holds fulfillment vendor API settings.
type CatalogConfig struct {
	BaseURL    string   `yaml:"base_url"`
	APIKey     string   `yaml:"api_key"`
	ShopID     string   `yaml:"shop_id"`
	Timeout    Duration `yaml:"timeout"`
	MaxRetries int      `yaml:"max_retries"`
}

// StorageConfig selects and configures the backing store.
// Backend is one of "memory", "pebble", "postgres".
type StorageConfig struct {
	Backend  string   `yaml:"backend"`
	Path     string   `yaml:"path"` // pebble data directory
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single PostgreSQL connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// LedgerConfig holds Cost Ledger thresholds.
type LedgerConfig struct {
	CostChangeThresholdPercent float64 `yaml:"cost_change_threshold_percent"`
	MarginFloorPercent         float64 `yaml:"margin_floor_percent"`
	MarginCeilingPercent       float64 `yaml:"margin_ceiling_percent"` // 0 disables
	RetentionDays              int     `yaml:"retention_days"`
	TrendDeadBandPercent       float64 `yaml:"trend_dead_band_percent"`
}

// FeeConfig holds the fee rates applied by the Cost Analyzer.
type FeeConfig struct {
	TransactionFeeRate  float64 `yaml:"transaction_fee_rate"` // fraction of sale price
	MarketingRate       float64 `yaml:"marketing_rate"`       // fraction of sale price
	OverheadRate        float64 `yaml:"overhead_rate"`        // fraction of sale price
	TargetMarginPercent float64 `yaml:"target_margin_percent"`
	MinMarginPercent    float64 `yaml:"min_margin_percent"`
}

// MarketConfig holds Market Tracker settings.
type MarketConfig struct {
	FreshnessDays      int     `yaml:"freshness_days"`
	AlignedBandPercent float64 `yaml:"aligned_band_percent"`
	GapSpacingMultiple float64 `yaml:"gap_spacing_multiple"`
	MinConfidence      float64 `yaml:"min_confidence"`
}

// AdjusterConfig holds Price Adjuster business rules.
type AdjusterConfig struct {
	MaxChangePercent      float64  `yaml:"max_change_percent"`
	AutoExecuteCapPercent float64  `yaml:"auto_execute_cap_percent"`
	AutoExecuteConfidence float64  `yaml:"auto_execute_confidence"`
	TTL                   Duration `yaml:"ttl"`
	Cooldown              Duration `yaml:"cooldown"`
	PassThroughIncrease   float64  `yaml:"pass_through_increase"` // fraction of a cost rise passed into price
	PassThroughDecrease   float64  `yaml:"pass_through_decrease"` // fraction of a cost fall given back
	RoundEnding           *int     `yaml:"round_ending"`          // 99, 95 or 0 (off); nil means default
	Position              string   `yaml:"position"`              // target market position
}

// PollerConfig holds cost poller settings.
type PollerConfig struct {
	Interval      Duration `yaml:"interval"`
	Concurrency   int      `yaml:"concurrency"`
	Timeout       Duration `yaml:"timeout"`
	SweepInterval Duration `yaml:"sweep_interval"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// VariantConfig declares a variant to poll and its market category.
type VariantConfig struct {
	ID       string `yaml:"id"`
	Category string `yaml:"category"`
}
