package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/printops/pricewatch/internal/model"
	"github.com/printops/pricewatch/internal/store"
)

// Config holds the ledger's alerting thresholds.
type Config struct {
	// CostChangeThresholdPercent is the minimum absolute cost change, in
	// percent of the previous total, that raises an alert.
	CostChangeThresholdPercent float64

	// MarginFloorPercent raises an alert when a variant's margin drops
	// below it. MarginCeilingPercent (0 = disabled) flags margins that look
	// too good, usually a stale price or bad cost data.
	MarginFloorPercent   float64
	MarginCeilingPercent float64

	// RetentionDays bounds the observation history kept per variant.
	RetentionDays int

	// TrendDeadBandPercent is the per-period slope, in percent of the mean
	// cost, below which a trend reads as stable.
	TrendDeadBandPercent float64
}

// Ledger records cost observations and evaluates alert thresholds.
type Ledger struct {
	store store.Store
	cfg   Config
	log   *slog.Logger

	now func() time.Time // swapped in tests
}

// New creates a ledger over the given store.
func New(st store.Store, cfg Config, log *slog.Logger) *Ledger {
	return &Ledger{
		store: st,
		cfg:   cfg,
		log:   log,
		now:   time.Now,
	}
}

// severitySteps maps the absolute percent change of a cost alert to its
// severity. Ordered ascending; changes past the last step are critical.
var severitySteps = []struct {
	Below    float64
	Severity model.Severity
}{
	{5, model.SeverityLow},
	{15, model.SeverityMedium},
	{25, model.SeverityHigh},
}

func severityForChange(absPercent float64) model.Severity {
	for _, step := range severitySteps {
		if absPercent < step.Below {
			return step.Severity
		}
	}
	return model.SeverityCritical
}

// RecordObservation appends a cost observation for a variant and returns any
// alerts it raised. Alerts are persisted before they are returned.
func (l *Ledger) RecordObservation(ctx context.Context, variantID string, costs model.CostComponents, sourcePrice int64) ([]model.Alert, error) {
	now := l.now().UTC()
	obs := model.NewCostObservation(variantID, costs, sourcePrice, now)
	if err := obs.Validate(); err != nil {
		return nil, err
	}

	prev, err := l.store.LatestObservation(ctx, variantID)
	hasPrev := err == nil
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("load previous observation: %w", err)
	}

	cutoff := now.AddDate(0, 0, -l.cfg.RetentionDays)
	// A previous point outside the retention window is history, not a
	// baseline. Comparing against it would alert on changes accumulated
	// over an unbounded gap.
	if hasPrev && prev.ObservedAt.Before(cutoff) {
		hasPrev = false
	}

	if err := l.store.AppendObservation(ctx, obs); err != nil {
		return nil, fmt.Errorf("append observation: %w", err)
	}

	if pruned, err := l.store.PruneObservations(ctx, variantID, cutoff); err != nil {
		l.log.Warn("prune failed", "variant_id", variantID, "error", err)
	} else if pruned > 0 {
		l.log.Debug("pruned observations", "variant_id", variantID, "count", pruned)
	}

	var alerts []model.Alert
	if hasPrev && prev.TotalCost > 0 {
		if a, ok := l.costChangeAlert(prev, obs, now); ok {
			alerts = append(alerts, a)
		}
	}
	alerts = append(alerts, l.marginAlerts(prev, hasPrev, obs, now)...)

	for _, a := range alerts {
		if err := l.store.AppendAlert(ctx, a); err != nil {
			return nil, fmt.Errorf("append alert: %w", err)
		}
		l.log.Info("alert raised",
			"variant_id", a.VariantID,
			"kind", a.Kind,
			"severity", a.Severity,
			"percent_change", a.PercentChange,
		)
	}
	return alerts, nil
}

func (l *Ledger) costChangeAlert(prev, obs model.CostObservation, now time.Time) (model.Alert, bool) {
	pct := float64(obs.TotalCost-prev.TotalCost) / float64(prev.TotalCost) * 100
	if math.Abs(pct) < l.cfg.CostChangeThresholdPercent {
		return model.Alert{}, false
	}

	kind := model.AlertCostIncrease
	verb := "rose"
	if pct < 0 {
		kind = model.AlertCostDecrease
		verb = "fell"
	}
	return model.Alert{
		ID:            uuid.New(),
		VariantID:     obs.VariantID,
		Kind:          kind,
		PreviousValue: float64(prev.TotalCost),
		NewValue:      float64(obs.TotalCost),
		PercentChange: pct,
		Severity:      severityForChange(math.Abs(pct)),
		Message: fmt.Sprintf("total cost %s %.1f%% (%d -> %d cents)",
			verb, math.Abs(pct), prev.TotalCost, obs.TotalCost),
		CreatedAt: now,
	}, true
}

func (l *Ledger) marginAlerts(prev model.CostObservation, hasPrev bool, obs model.CostObservation, now time.Time) []model.Alert {
	if obs.SourcePrice <= 0 {
		return nil
	}

	margin := model.MarginPercent(obs.SourcePrice, obs.TotalCost)
	prevMargin := margin
	if hasPrev && prev.SourcePrice > 0 {
		prevMargin = model.MarginPercent(prev.SourcePrice, prev.TotalCost)
	}

	var alerts []model.Alert
	if margin < l.cfg.MarginFloorPercent {
		severity := model.SeverityMedium
		if margin < l.cfg.MarginFloorPercent/2 {
			severity = model.SeverityHigh
		}
		alerts = append(alerts, model.Alert{
			ID:            uuid.New(),
			VariantID:     obs.VariantID,
			Kind:          model.AlertMarginBelowThreshold,
			PreviousValue: prevMargin,
			NewValue:      margin,
			PercentChange: margin - prevMargin,
			Severity:      severity,
			Message: fmt.Sprintf("margin %.1f%% below floor %.1f%%",
				margin, l.cfg.MarginFloorPercent),
			CreatedAt: now,
		})
	}
	if l.cfg.MarginCeilingPercent > 0 && margin > l.cfg.MarginCeilingPercent {
		alerts = append(alerts, model.Alert{
			ID:            uuid.New(),
			VariantID:     obs.VariantID,
			Kind:          model.AlertMarginAboveThreshold,
			PreviousValue: prevMargin,
			NewValue:      margin,
			PercentChange: margin - prevMargin,
			Severity:      model.SeverityLow,
			Message: fmt.Sprintf("margin %.1f%% above ceiling %.1f%%, price or cost data may be stale",
				margin, l.cfg.MarginCeilingPercent),
			CreatedAt: now,
		})
	}
	return alerts
}

// Margin returns the current margin snapshot for one variant.
func (l *Ledger) Margin(ctx context.Context, variantID string) (model.MarginSnapshot, error) {
	obs, err := l.store.LatestObservation(ctx, variantID)
	if err != nil {
		return model.MarginSnapshot{}, err
	}
	return obs.Snapshot(), nil
}

// CurrentMargins returns margin snapshots for every tracked variant, sorted
// by variant ID.
func (l *Ledger) CurrentMargins(ctx context.Context) ([]model.MarginSnapshot, error) {
	latest, err := l.store.LatestObservations(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.MarginSnapshot, 0, len(latest))
	for _, obs := range latest {
		out = append(out, obs.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VariantID < out[j].VariantID })
	return out, nil
}

// ActiveAlerts returns unacknowledged alerts at or above minSeverity, newest
// last. An empty minSeverity returns all unacknowledged alerts.
func (l *Ledger) ActiveAlerts(ctx context.Context, minSeverity model.Severity) ([]model.Alert, error) {
	alerts, err := l.store.Alerts(ctx, store.AlertFilter{Unacknowledged: true})
	if err != nil {
		return nil, err
	}
	if minSeverity == "" {
		return alerts, nil
	}
	filtered := alerts[:0]
	for _, a := range alerts {
		if a.Severity.Rank() >= minSeverity.Rank() {
			filtered = append(filtered, a)
		}
	}
	return filtered, nil
}

// Acknowledge marks an alert as handled.
func (l *Ledger) Acknowledge(ctx context.Context, id uuid.UUID) error {
	return l.store.AcknowledgeAlert(ctx, id)
}

// Stats summarizes the ledger for dashboards and reports.
type Stats struct {
	Variants         int
	OpenAlerts       int
	AlertsBySeverity map[model.Severity]int
	AvgMarginPercent float64
	BelowFloor       int // variants currently under the margin floor
}

// SummaryStats computes aggregate ledger state.
func (l *Ledger) SummaryStats(ctx context.Context) (Stats, error) {
	margins, err := l.CurrentMargins(ctx)
	if err != nil {
		return Stats{}, err
	}
	open, err := l.store.Alerts(ctx, store.AlertFilter{Unacknowledged: true})
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		Variants:         len(margins),
		OpenAlerts:       len(open),
		AlertsBySeverity: make(map[model.Severity]int),
	}
	for _, a := range open {
		stats.AlertsBySeverity[a.Severity]++
	}
	var sum float64
	for _, m := range margins {
		sum += m.MarginPercent
		if m.MarginPercent < l.cfg.MarginFloorPercent {
			stats.BelowFloor++
		}
	}
	if len(margins) > 0 {
		stats.AvgMarginPercent = sum / float64(len(margins))
	}
	return stats, nil
}
