package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultCatalogTimeout    = Duration(30 * time.Second)
	DefaultCatalogMaxRetries = 3

	DefaultStorageBackend = "memory"
	DefaultDBPort         = 5432
	DefaultDBSSLMode      = "prefer"
	DefaultMaxConns       = 10
	DefaultMinConns       = 2

	DefaultCostChangeThreshold = 5.0  // percent
	DefaultMarginFloor         = 20.0 // percent
	DefaultRetentionDays       = 90
	DefaultTrendDeadBand       = 1.0 // percent per period

	DefaultTransactionFeeRate = 0.029
	DefaultMarketingRate      = 0.10
	DefaultOverheadRate       = 0.05
	DefaultTargetMargin       = 30.0 // percent
	DefaultMinMargin          = 15.0 // percent

	DefaultFreshnessDays      = 90
	DefaultAlignedBand        = 10.0 // percent around the median
	DefaultGapSpacingMultiple = 3.0
	DefaultMinConfidence      = 0.5

	DefaultMaxChange             = 15.0 // percent
	DefaultAutoExecuteCap        = 8.0  // percent, below the manual cap
	DefaultAutoExecuteConfidence = 0.8
	DefaultAdjustmentTTL         = Duration(48 * time.Hour)
	DefaultCooldown              = Duration(24 * time.Hour)
	DefaultPassThroughIncrease   = 0.8
	DefaultPassThroughDecrease   = 0.5
	DefaultRoundEnding           = 99
	DefaultPosition              = "mid_range"

	DefaultPollInterval    = Duration(24 * time.Hour)
	DefaultPollConcurrency = 10
	DefaultPollTimeout     = Duration(10 * time.Second)
	DefaultSweepInterval   = Duration(1 * time.Hour)

	DefaultMetricsPort = 9090
	DefaultMetricsPath = "/metrics"
)

func (c *EngineConfig) applyDefaults() {
	// Catalog defaults
	if c.Catalog.Timeout == 0 {
		c.Catalog.Timeout = DefaultCatalogTimeout
	}
	if c.Catalog.MaxRetries == 0 {
		c.Catalog.MaxRetries = DefaultCatalogMaxRetries
	}

	// Storage defaults
	if c.Storage.Backend == "" {
		c.Storage.Backend = DefaultStorageBackend
	}
	applyDBDefaults(&c.Storage.Postgres)

	// Ledger defaults
	if c.Ledger.CostChangeThresholdPercent == 0 {
		c.Ledger.CostChangeThresholdPercent = DefaultCostChangeThreshold
	}
	if c.Ledger.MarginFloorPercent == 0 {
		c.Ledger.MarginFloorPercent = DefaultMarginFloor
	}
	if c.Ledger.RetentionDays == 0 {
		c.Ledger.RetentionDays = DefaultRetentionDays
	}
	if c.Ledger.TrendDeadBandPercent == 0 {
		c.Ledger.TrendDeadBandPercent = DefaultTrendDeadBand
	}

	// Fee defaults
	if c.Fees.TransactionFeeRate == 0 {
		c.Fees.TransactionFeeRate = DefaultTransactionFeeRate
	}
	if c.Fees.MarketingRate == 0 {
		c.Fees.MarketingRate = DefaultMarketingRate
	}
	if c.Fees.OverheadRate == 0 {
		c.Fees.OverheadRate = DefaultOverheadRate
	}
	if c.Fees.TargetMarginPercent == 0 {
		c.Fees.TargetMarginPercent = DefaultTargetMargin
	}
	if c.Fees.MinMarginPercent == 0 {
		c.Fees.MinMarginPercent = DefaultMinMargin
	}

	// Market defaults
	if c.Market.FreshnessDays == 0 {
		c.Market.FreshnessDays = DefaultFreshnessDays
	}
	if c.Market.AlignedBandPercent == 0 {
		c.Market.AlignedBandPercent = DefaultAlignedBand
	}
	if c.Market.GapSpacingMultiple == 0 {
		c.Market.GapSpacingMultiple = DefaultGapSpacingMultiple
	}
	if c.Market.MinConfidence == 0 {
		c.Market.MinConfidence = DefaultMinConfidence
	}

	// Adjuster defaults
	if c.Adjuster.MaxChangePercent == 0 {
		c.Adjuster.MaxChangePercent = DefaultMaxChange
	}
	if c.Adjuster.AutoExecuteCapPercent == 0 {
		c.Adjuster.AutoExecuteCapPercent = DefaultAutoExecuteCap
	}
	if c.Adjuster.AutoExecuteConfidence == 0 {
		c.Adjuster.AutoExecuteConfidence = DefaultAutoExecuteConfidence
	}
	if c.Adjuster.TTL == 0 {
		c.Adjuster.TTL = DefaultAdjustmentTTL
	}
	if c.Adjuster.Cooldown == 0 {
		c.Adjuster.Cooldown = DefaultCooldown
	}
	if c.Adjuster.PassThroughIncrease == 0 {
		c.Adjuster.PassThroughIncrease = DefaultPassThroughIncrease
	}
	if c.Adjuster.PassThroughDecrease == 0 {
		c.Adjuster.PassThroughDecrease = DefaultPassThroughDecrease
	}
	// nil distinguishes "not set" from an explicit 0, which disables
	// psychological rounding.
	if c.Adjuster.RoundEnding == nil {
		v := DefaultRoundEnding
		c.Adjuster.RoundEnding = &v
	}
	if c.Adjuster.Position == "" {
		c.Adjuster.Position = DefaultPosition
	}

	// Poller defaults
	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}
	if c.Poller.Concurrency == 0 {
		c.Poller.Concurrency = DefaultPollConcurrency
	}
	if c.Poller.Timeout == 0 {
		c.Poller.Timeout = DefaultPollTimeout
	}
	if c.Poller.SweepInterval == 0 {
		c.Poller.SweepInterval = DefaultSweepInterval
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
