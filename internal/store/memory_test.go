package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/printops/pricewatch/internal/model"
)

func obsAt(variantID string, at time.Time, total int64) model.CostObservation {
	return model.CostObservation{
		VariantID:   variantID,
		ObservedAt:  at,
		BaseCost:    total,
		TotalCost:   total,
		SourcePrice: 2 * total,
	}
}

func TestMemoryObservations(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		obs := obsAt("v1", base.Add(time.Duration(i)*24*time.Hour), int64(500+i*10))
		if err := m.AppendObservation(ctx, obs); err != nil {
			t.Fatalf("AppendObservation() error = %v", err)
		}
	}

	got, err := m.Observations(ctx, "v1", base.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("Observations() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Observations() returned %d points, want 3", len(got))
	}

	latest, err := m.LatestObservation(ctx, "v1")
	if err != nil {
		t.Fatalf("LatestObservation() error = %v", err)
	}
	if latest.TotalCost != 540 {
		t.Errorf("LatestObservation().TotalCost = %d, want 540", latest.TotalCost)
	}

	if _, err := m.LatestObservation(ctx, "missing"); err != model.ErrNotFound {
		t.Errorf("LatestObservation(missing) error = %v, want ErrNotFound", err)
	}

	pruned, err := m.PruneObservations(ctx, "v1", base.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("PruneObservations() error = %v", err)
	}
	if pruned != 2 {
		t.Errorf("PruneObservations() = %d, want 2", pruned)
	}
	remaining, _ := m.Observations(ctx, "v1", time.Time{})
	if len(remaining) != 3 {
		t.Errorf("after prune, %d points remain, want 3", len(remaining))
	}
}

func TestMemoryOutOfOrderAppend(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	m.AppendObservation(ctx, obsAt("v1", base.Add(24*time.Hour), 600))
	m.AppendObservation(ctx, obsAt("v1", base, 500))

	latest, err := m.LatestObservation(ctx, "v1")
	if err != nil {
		t.Fatalf("LatestObservation() error = %v", err)
	}
	if latest.TotalCost != 600 {
		t.Errorf("LatestObservation().TotalCost = %d, want 600", latest.TotalCost)
	}
}

func TestMemoryAlerts(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Now().UTC()

	high := model.Alert{ID: uuid.New(), VariantID: "v1", Kind: model.AlertCostIncrease, Severity: model.SeverityHigh, CreatedAt: now}
	low := model.Alert{ID: uuid.New(), VariantID: "v2", Kind: model.AlertCostDecrease, Severity: model.SeverityLow, CreatedAt: now}
	m.AppendAlert(ctx, high)
	m.AppendAlert(ctx, low)

	got, err := m.Alerts(ctx, AlertFilter{Severity: model.SeverityHigh})
	if err != nil {
		t.Fatalf("Alerts() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != high.ID {
		t.Fatalf("Alerts(high) = %v, want the single high alert", got)
	}

	if err := m.AcknowledgeAlert(ctx, high.ID); err != nil {
		t.Fatalf("AcknowledgeAlert() error = %v", err)
	}
	unacked, _ := m.Alerts(ctx, AlertFilter{Unacknowledged: true})
	if len(unacked) != 1 || unacked[0].ID != low.ID {
		t.Errorf("Alerts(unacknowledged) = %v, want only the low alert", unacked)
	}

	if err := m.AcknowledgeAlert(ctx, uuid.New()); err != model.ErrNotFound {
		t.Errorf("AcknowledgeAlert(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryCompetitorDedup(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Now().UTC()

	pt := model.CompetitorPricePoint{
		CompetitorID: "acme", Category: "t-shirts", Price: 2499, ObservedAt: now, Confidence: 0.9,
	}

	inserted, err := m.AppendCompetitorPrice(ctx, pt)
	if err != nil || !inserted {
		t.Fatalf("AppendCompetitorPrice() = (%v, %v), want (true, nil)", inserted, err)
	}
	inserted, err = m.AppendCompetitorPrice(ctx, pt)
	if err != nil || inserted {
		t.Fatalf("duplicate AppendCompetitorPrice() = (%v, %v), want (false, nil)", inserted, err)
	}

	// Same competitor at a different time is a new point.
	pt.ObservedAt = now.Add(time.Hour)
	if inserted, _ = m.AppendCompetitorPrice(ctx, pt); !inserted {
		t.Error("AppendCompetitorPrice() with new timestamp = false, want true")
	}

	prices, _ := m.CompetitorPrices(ctx, "t-shirts", time.Time{})
	if len(prices) != 2 {
		t.Errorf("CompetitorPrices() returned %d points, want 2", len(prices))
	}

	cats, _ := m.Categories(ctx)
	if len(cats) != 1 || cats[0] != "t-shirts" {
		t.Errorf("Categories() = %v, want [t-shirts]", cats)
	}
}

func TestMemoryAdjustments(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Now().UTC()

	adj := model.PriceAdjustment{
		ID:        uuid.New(),
		VariantID: "v1",
		Status:    model.StatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(48 * time.Hour),
	}
	if err := m.SaveAdjustment(ctx, adj); err != nil {
		t.Fatalf("SaveAdjustment() error = %v", err)
	}

	pending, err := m.PendingAdjustment(ctx, "v1")
	if err != nil {
		t.Fatalf("PendingAdjustment() error = %v", err)
	}
	if pending.ID != adj.ID {
		t.Errorf("PendingAdjustment().ID = %s, want %s", pending.ID, adj.ID)
	}

	// Upsert out of pending clears the pending lookup.
	adj.Status = model.StatusRejected
	adj.DecidedAt = now.Add(time.Minute)
	m.SaveAdjustment(ctx, adj)
	if _, err := m.PendingAdjustment(ctx, "v1"); err != model.ErrNotFound {
		t.Errorf("PendingAdjustment() after reject error = %v, want ErrNotFound", err)
	}

	got, err := m.Adjustment(ctx, adj.ID)
	if err != nil {
		t.Fatalf("Adjustment() error = %v", err)
	}
	if got.Status != model.StatusRejected {
		t.Errorf("Adjustment().Status = %s, want rejected", got.Status)
	}

	listed, _ := m.Adjustments(ctx, AdjustmentFilter{VariantID: "v1", Status: model.StatusRejected})
	if len(listed) != 1 {
		t.Errorf("Adjustments() returned %d rows, want 1", len(listed))
	}
}

func TestMemoryCooldown(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	until, err := m.CooldownUntil(ctx, "v1")
	if err != nil {
		t.Fatalf("CooldownUntil() error = %v", err)
	}
	if !until.IsZero() {
		t.Errorf("CooldownUntil() with no marker = %v, want zero", until)
	}

	deadline := time.Now().Add(24 * time.Hour).UTC()
	if err := m.SetCooldown(ctx, "v1", deadline); err != nil {
		t.Fatalf("SetCooldown() error = %v", err)
	}
	until, _ = m.CooldownUntil(ctx, "v1")
	if !until.Equal(deadline) {
		t.Errorf("CooldownUntil() = %v, want %v", until, deadline)
	}
}
