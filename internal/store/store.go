package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/printops/pricewatch/internal/model"
)

// AlertFilter narrows Alerts listings. Zero values match everything.
type AlertFilter struct {
	VariantID      string
	Severity       model.Severity
	Unacknowledged bool
}

// Matches reports whether an alert passes the filter.
func (f AlertFilter) Matches(a model.Alert) bool {
	if f.VariantID != "" && a.VariantID != f.VariantID {
		return false
	}
	if f.Severity != "" && a.Severity != f.Severity {
		return false
	}
	if f.Unacknowledged && a.Acknowledged {
		return false
	}
	return true
}

// AdjustmentFilter narrows Adjustments listings. Zero values match everything.
type AdjustmentFilter struct {
	VariantID    string
	Status       model.AdjustmentStatus
	CreatedAfter time.Time
}

// Matches reports whether an adjustment passes the filter.
func (f AdjustmentFilter) Matches(a model.PriceAdjustment) bool {
	if f.VariantID != "" && a.VariantID != f.VariantID {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if !f.CreatedAfter.IsZero() && !a.CreatedAt.After(f.CreatedAfter) {
		return false
	}
	return true
}

// Store abstracts the persistence backend. Each method is atomic: a crash
// between calls never leaves a half-applied record.
type Store interface {
	// Cost observations (append-only per variant).
	AppendObservation(ctx context.Context, obs model.CostObservation) error
	Observations(ctx context.Context, variantID string, since time.Time) ([]model.CostObservation, error)
	LatestObservation(ctx context.Context, variantID string) (model.CostObservation, error)
	LatestObservations(ctx context.Context) (map[string]model.CostObservation, error)
	PruneObservations(ctx context.Context, variantID string, before time.Time) (int, error)

	// Alerts (append-only; only the acknowledged flag mutates).
	AppendAlert(ctx context.Context, alert model.Alert) error
	Alerts(ctx context.Context, f AlertFilter) ([]model.Alert, error)
	AcknowledgeAlert(ctx context.Context, id uuid.UUID) error

	// Competitor prices (append-only per category; (competitor_id,
	// observed_at) is unique — duplicates report false, nil).
	AppendCompetitorPrice(ctx context.Context, p model.CompetitorPricePoint) (bool, error)
	CompetitorPrices(ctx context.Context, category string, since time.Time) ([]model.CompetitorPricePoint, error)
	Categories(ctx context.Context) ([]string, error)

	// Price adjustments (state-tagged; upsert by ID, never deleted).
	SaveAdjustment(ctx context.Context, adj model.PriceAdjustment) error
	Adjustment(ctx context.Context, id uuid.UUID) (model.PriceAdjustment, error)
	PendingAdjustment(ctx context.Context, variantID string) (model.PriceAdjustment, error)
	Adjustments(ctx context.Context, f AdjustmentFilter) ([]model.PriceAdjustment, error)

	// Per-variant cooldown markers.
	CooldownUntil(ctx context.Context, variantID string) (time.Time, error)
	SetCooldown(ctx context.Context, variantID string, until time.Time) error

	Close() error
}
