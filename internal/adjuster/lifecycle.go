package adjuster

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/printops/pricewatch/internal/model"
	"github.com/printops/pricewatch/internal/store"
)

// lockAndLoad serializes on the adjustment's variant and returns a fresh
// copy read under the lock. The first unlocked read only learns the variant;
// deciding state on that snapshot would race with concurrent transitions.
func (a *Adjuster) lockAndLoad(ctx context.Context, id uuid.UUID) (model.PriceAdjustment, func(), error) {
	adj, err := a.store.Adjustment(ctx, id)
	if err != nil {
		return model.PriceAdjustment{}, nil, err
	}
	unlock := a.lockVariant(adj.VariantID)
	adj, err = a.store.Adjustment(ctx, id)
	if err != nil {
		unlock()
		return model.PriceAdjustment{}, nil, err
	}
	return adj, unlock, nil
}

// expireIfStale moves a non-terminal adjustment past its TTL to expired.
// Caller holds the variant lock.
func (a *Adjuster) expireIfStale(ctx context.Context, adj *model.PriceAdjustment, now time.Time) error {
	if adj.Status.Terminal() || !now.After(adj.ExpiresAt) {
		return nil
	}
	if err := a.transition(ctx, adj, model.StatusExpired, now); err != nil {
		return err
	}
	a.log.Info("adjustment expired", "adjustment_id", adj.ID, "variant_id", adj.VariantID)
	return nil
}

// Get returns an adjustment, expiring it first if its TTL has lapsed while
// it sat pending or approved.
func (a *Adjuster) Get(ctx context.Context, id uuid.UUID) (model.PriceAdjustment, error) {
	adj, unlock, err := a.lockAndLoad(ctx, id)
	if err != nil {
		return model.PriceAdjustment{}, err
	}
	defer unlock()

	if err := a.expireIfStale(ctx, &adj, a.now().UTC()); err != nil {
		return model.PriceAdjustment{}, err
	}
	return adj, nil
}

// Approve moves a pending adjustment to approved. With immediate set it also
// executes in the same call.
func (a *Adjuster) Approve(ctx context.Context, id uuid.UUID, immediate bool) (model.PriceAdjustment, error) {
	adj, unlock, err := a.lockAndLoad(ctx, id)
	if err != nil {
		return model.PriceAdjustment{}, err
	}
	defer unlock()

	now := a.now().UTC()
	if err := a.expireIfStale(ctx, &adj, now); err != nil {
		return model.PriceAdjustment{}, err
	}
	if err := a.transition(ctx, &adj, model.StatusApproved, now); err != nil {
		return model.PriceAdjustment{}, err
	}
	a.log.Info("adjustment approved", "adjustment_id", adj.ID, "variant_id", adj.VariantID)
	if immediate {
		if err := a.execute(ctx, &adj, now); err != nil {
			return model.PriceAdjustment{}, err
		}
		a.log.Info("adjustment executed", "adjustment_id", adj.ID, "variant_id", adj.VariantID)
	}
	return adj, nil
}

// Reject moves a pending adjustment to rejected.
func (a *Adjuster) Reject(ctx context.Context, id uuid.UUID) (model.PriceAdjustment, error) {
	adj, unlock, err := a.lockAndLoad(ctx, id)
	if err != nil {
		return model.PriceAdjustment{}, err
	}
	defer unlock()

	now := a.now().UTC()
	if err := a.expireIfStale(ctx, &adj, now); err != nil {
		return model.PriceAdjustment{}, err
	}
	if err := a.transition(ctx, &adj, model.StatusRejected, now); err != nil {
		return model.PriceAdjustment{}, err
	}
	a.log.Info("adjustment rejected", "adjustment_id", adj.ID, "variant_id", adj.VariantID)
	return adj, nil
}

// Execute reports the outcome of applying an approved adjustment to the
// sales channel. On success the adjustment is executed and the variant's
// cooldown starts. On failure it falls back to pending for another attempt,
// with the retry counted.
func (a *Adjuster) Execute(ctx context.Context, id uuid.UUID, success bool) (model.PriceAdjustment, error) {
	adj, unlock, err := a.lockAndLoad(ctx, id)
	if err != nil {
		return model.PriceAdjustment{}, err
	}
	defer unlock()

	now := a.now().UTC()
	if err := a.expireIfStale(ctx, &adj, now); err != nil {
		return model.PriceAdjustment{}, err
	}
	if success {
		if err := a.execute(ctx, &adj, now); err != nil {
			return model.PriceAdjustment{}, err
		}
		a.log.Info("adjustment executed", "adjustment_id", adj.ID, "variant_id", adj.VariantID)
		return adj, nil
	}

	adj.RetryCount++
	if err := a.transition(ctx, &adj, model.StatusPending, now); err != nil {
		return model.PriceAdjustment{}, err
	}
	a.log.Warn("adjustment execution failed, back to pending",
		"adjustment_id", adj.ID,
		"variant_id", adj.VariantID,
		"retry_count", adj.RetryCount,
	)
	return adj, nil
}

// Expire moves a non-terminal adjustment to expired. Expiring an already
// expired adjustment is a no-op, not an error.
func (a *Adjuster) Expire(ctx context.Context, id uuid.UUID) (model.PriceAdjustment, error) {
	adj, unlock, err := a.lockAndLoad(ctx, id)
	if err != nil {
		return model.PriceAdjustment{}, err
	}
	defer unlock()

	if adj.Status == model.StatusExpired {
		return adj, nil
	}
	if err := a.transition(ctx, &adj, model.StatusExpired, a.now().UTC()); err != nil {
		return model.PriceAdjustment{}, err
	}
	a.log.Info("adjustment expired", "adjustment_id", adj.ID, "variant_id", adj.VariantID)
	return adj, nil
}

// SweepExpired expires every pending or approved adjustment whose TTL has
// lapsed and returns how many it moved.
func (a *Adjuster) SweepExpired(ctx context.Context) (int, error) {
	now := a.now().UTC()
	var swept int
	for _, status := range []model.AdjustmentStatus{model.StatusPending, model.StatusApproved} {
		adjs, err := a.store.Adjustments(ctx, store.AdjustmentFilter{Status: status})
		if err != nil {
			return swept, err
		}
		for _, adj := range adjs {
			if !now.After(adj.ExpiresAt) {
				continue
			}
			if _, err := a.Expire(ctx, adj.ID); err != nil {
				return swept, fmt.Errorf("expire %s: %w", adj.ID, err)
			}
			swept++
		}
	}
	return swept, nil
}

// Pending lists all pending adjustments, oldest first.
func (a *Adjuster) Pending(ctx context.Context) ([]model.PriceAdjustment, error) {
	return a.store.Adjustments(ctx, store.AdjustmentFilter{Status: model.StatusPending})
}

// List returns adjustments matching the filter.
func (a *Adjuster) List(ctx context.Context, f store.AdjustmentFilter) ([]model.PriceAdjustment, error) {
	return a.store.Adjustments(ctx, f)
}

// Summary aggregates adjustment history for reports.
type Summary struct {
	ByStatus             map[model.AdjustmentStatus]int
	ByTrigger            map[string]int
	Executed             int
	AvgExecutedChangePct float64 // mean absolute percent change of executed adjustments
	TotalRetries         int
}

// Summarize computes adjustment statistics across all history.
func (a *Adjuster) Summarize(ctx context.Context) (Summary, error) {
	adjs, err := a.store.Adjustments(ctx, store.AdjustmentFilter{})
	if err != nil {
		return Summary{}, err
	}
	s := Summary{
		ByStatus:  make(map[model.AdjustmentStatus]int),
		ByTrigger: make(map[string]int),
	}
	var pctSum float64
	for _, adj := range adjs {
		s.ByStatus[adj.Status]++
		s.ByTrigger[adj.Trigger]++
		s.TotalRetries += adj.RetryCount
		if adj.Status == model.StatusExecuted {
			s.Executed++
			pctSum += math.Abs(adj.PercentChange)
		}
	}
	if s.Executed > 0 {
		s.AvgExecutedChangePct = pctSum / float64(s.Executed)
	}
	return s, nil
}
