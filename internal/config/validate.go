package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *EngineConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	switch c.Storage.Backend {
	case "memory":
	case "pebble":
		if c.Storage.Path == "" {
			return errors.New("storage.path is required for the pebble backend")
		}
	case "postgres":
		if err := c.Storage.Postgres.validate("storage.postgres"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("storage.backend must be memory, pebble or postgres, got %q", c.Storage.Backend)
	}

	if c.Ledger.CostChangeThresholdPercent < 0 {
		return errors.New("ledger.cost_change_threshold_percent must be >= 0")
	}
	if c.Ledger.MarginFloorPercent < 0 || c.Ledger.MarginFloorPercent > 100 {
		return errors.New("ledger.margin_floor_percent must be between 0 and 100")
	}
	if c.Ledger.MarginCeilingPercent != 0 && c.Ledger.MarginCeilingPercent <= c.Ledger.MarginFloorPercent {
		return errors.New("ledger.margin_ceiling_percent must exceed the floor when set")
	}
	if c.Ledger.RetentionDays < 1 {
		return errors.New("ledger.retention_days must be >= 1")
	}

	if c.Fees.TargetMarginPercent <= 0 || c.Fees.TargetMarginPercent >= 100 {
		return errors.New("fees.target_margin_percent must be between 0 and 100")
	}
	if c.Fees.MinMarginPercent < 0 || c.Fees.MinMarginPercent >= c.Fees.TargetMarginPercent {
		return errors.New("fees.min_margin_percent must be below the target margin")
	}

	if c.Market.MinConfidence < 0 || c.Market.MinConfidence > 1 {
		return errors.New("market.min_confidence must be in [0, 1]")
	}

	if c.Adjuster.MaxChangePercent <= 0 {
		return errors.New("adjuster.max_change_percent must be > 0")
	}
	if c.Adjuster.AutoExecuteCapPercent > c.Adjuster.MaxChangePercent {
		return errors.New("adjuster.auto_execute_cap_percent cannot exceed max_change_percent")
	}
	if c.Adjuster.AutoExecuteConfidence < 0 || c.Adjuster.AutoExecuteConfidence > 1 {
		return errors.New("adjuster.auto_execute_confidence must be in [0, 1]")
	}
	if c.Adjuster.PassThroughIncrease < 0 || c.Adjuster.PassThroughIncrease > 1 {
		return errors.New("adjuster.pass_through_increase must be in [0, 1]")
	}
	if c.Adjuster.PassThroughDecrease < 0 || c.Adjuster.PassThroughDecrease > 1 {
		return errors.New("adjuster.pass_through_decrease must be in [0, 1]")
	}
	if c.Adjuster.RoundEnding != nil {
		switch *c.Adjuster.RoundEnding {
		case 0, 95, 99:
		default:
			return fmt.Errorf("adjuster.round_ending must be 0, 95 or 99, got %d", *c.Adjuster.RoundEnding)
		}
	}

	if c.Poller.Concurrency < 1 {
		return errors.New("poller.concurrency must be >= 1")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	seen := make(map[string]bool, len(c.Variants))
	for i, v := range c.Variants {
		if v.ID == "" {
			return fmt.Errorf("variants[%d].id is required", i)
		}
		if seen[v.ID] {
			return fmt.Errorf("variants[%d].id %q is duplicated", i, v.ID)
		}
		seen[v.ID] = true
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
