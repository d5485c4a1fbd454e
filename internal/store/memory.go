package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/printops/pricewatch/internal/model"
)

// Memory is an in-process Store backed by maps. Safe for concurrent use.
type Memory struct {
	mu           sync.RWMutex
	observations map[string][]model.CostObservation // variant ID -> ascending by ObservedAt
	alerts       []model.Alert
	alertIndex   map[uuid.UUID]int
	competitors  map[string][]model.CompetitorPricePoint // category -> points
	compSeen     map[string]bool                         // competitor_id|observed_at
	adjustments  map[uuid.UUID]model.PriceAdjustment
	cooldowns    map[string]time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		observations: make(map[string][]model.CostObservation),
		alertIndex:   make(map[uuid.UUID]int),
		competitors:  make(map[string][]model.CompetitorPricePoint),
		compSeen:     make(map[string]bool),
		adjustments:  make(map[uuid.UUID]model.PriceAdjustment),
		cooldowns:    make(map[string]time.Time),
	}
}

func (m *Memory) AppendObservation(_ context.Context, obs model.CostObservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	series := m.observations[obs.VariantID]
	series = append(series, obs)
	// Appends usually arrive in order; restore order when they don't.
	if n := len(series); n > 1 && series[n-1].ObservedAt.Before(series[n-2].ObservedAt) {
		sort.Slice(series, func(i, j int) bool {
			return series[i].ObservedAt.Before(series[j].ObservedAt)
		})
	}
	m.observations[obs.VariantID] = series
	return nil
}

func (m *Memory) Observations(_ context.Context, variantID string, since time.Time) ([]model.CostObservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.CostObservation
	for _, obs := range m.observations[variantID] {
		if obs.ObservedAt.Before(since) {
			continue
		}
		out = append(out, obs)
	}
	return out, nil
}

func (m *Memory) LatestObservation(_ context.Context, variantID string) (model.CostObservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	series := m.observations[variantID]
	if len(series) == 0 {
		return model.CostObservation{}, model.ErrNotFound
	}
	return series[len(series)-1], nil
}

func (m *Memory) LatestObservations(_ context.Context) (map[string]model.CostObservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]model.CostObservation, len(m.observations))
	for id, series := range m.observations {
		if len(series) > 0 {
			out[id] = series[len(series)-1]
		}
	}
	return out, nil
}

func (m *Memory) PruneObservations(_ context.Context, variantID string, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	series := m.observations[variantID]
	kept := series[:0]
	for _, obs := range series {
		if !obs.ObservedAt.Before(before) {
			kept = append(kept, obs)
		}
	}
	pruned := len(series) - len(kept)
	if len(kept) == 0 {
		delete(m.observations, variantID)
	} else {
		m.observations[variantID] = kept
	}
	return pruned, nil
}

func (m *Memory) AppendAlert(_ context.Context, alert model.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.alertIndex[alert.ID] = len(m.alerts)
	m.alerts = append(m.alerts, alert)
	return nil
}

func (m *Memory) Alerts(_ context.Context, f AlertFilter) ([]model.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Alert
	for _, a := range m.alerts {
		if f.Matches(a) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *Memory) AcknowledgeAlert(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.alertIndex[id]
	if !ok {
		return model.ErrNotFound
	}
	m.alerts[i].Acknowledged = true
	return nil
}

func compKey(p model.CompetitorPricePoint) string {
	return p.CompetitorID + "|" + p.ObservedAt.UTC().Format(time.RFC3339Nano)
}

func (m *Memory) AppendCompetitorPrice(_ context.Context, p model.CompetitorPricePoint) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := compKey(p)
	if m.compSeen[key] {
		return false, nil
	}
	m.compSeen[key] = true
	m.competitors[p.Category] = append(m.competitors[p.Category], p)
	return true, nil
}

func (m *Memory) CompetitorPrices(_ context.Context, category string, since time.Time) ([]model.CompetitorPricePoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.CompetitorPricePoint
	for _, p := range m.competitors[category] {
		if p.ObservedAt.Before(since) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *Memory) Categories(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.competitors))
	for cat := range m.competitors {
		out = append(out, cat)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) SaveAdjustment(_ context.Context, adj model.PriceAdjustment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.adjustments[adj.ID] = adj
	return nil
}

func (m *Memory) Adjustment(_ context.Context, id uuid.UUID) (model.PriceAdjustment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	adj, ok := m.adjustments[id]
	if !ok {
		return model.PriceAdjustment{}, model.ErrNotFound
	}
	return adj, nil
}

func (m *Memory) PendingAdjustment(_ context.Context, variantID string) (model.PriceAdjustment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, adj := range m.adjustments {
		if adj.VariantID == variantID && adj.Status == model.StatusPending {
			return adj, nil
		}
	}
	return model.PriceAdjustment{}, model.ErrNotFound
}

func (m *Memory) Adjustments(_ context.Context, f AdjustmentFilter) ([]model.PriceAdjustment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.PriceAdjustment
	for _, adj := range m.adjustments {
		if f.Matches(adj) {
			out = append(out, adj)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) CooldownUntil(_ context.Context, variantID string) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cooldowns[variantID], nil
}

func (m *Memory) SetCooldown(_ context.Context, variantID string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cooldowns[variantID] = until
	return nil
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error { return nil }
