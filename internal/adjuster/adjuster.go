package adjuster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/printops/pricewatch/internal/analyzer"
	"github.com/printops/pricewatch/internal/config"
	"github.com/printops/pricewatch/internal/market"
	"github.com/printops/pricewatch/internal/model"
	"github.com/printops/pricewatch/internal/store"
)

// ErrNoChange reports that the best recommendation matches the current
// price, so there is nothing to adjust.
var ErrNoChange = errors.New("no price change recommended")

// largeChangePenalty scales down confidence when the proposed change is
// larger than half the configured maximum.
const largeChangePenalty = 0.85

// Config holds the adjuster's business rules.
type Config struct {
	// MaxChangePercent clamps any single adjustment.
	MaxChangePercent float64

	// AutoExecuteCapPercent and AutoExecuteConfidence gate the hands-off
	// path: changes at most this large, with at least this confidence,
	// execute without operator approval.
	AutoExecuteCapPercent float64
	AutoExecuteConfidence float64

	// TTL bounds how long a proposal may sit undecided.
	TTL time.Duration

	// Cooldown blocks new adjustments for a variant after an execution.
	Cooldown time.Duration

	// RoundEnding applies psychological price endings (99 or 95 cents);
	// zero disables rounding.
	RoundEnding int

	// PassThroughIncrease and PassThroughDecrease are the fractions of a
	// cost delta passed into the proposed price: increases are mostly
	// absorbed into price, decreases are only partly given back.
	PassThroughIncrease float64
	PassThroughDecrease float64

	// Position biases strategy ranking.
	Position model.MarketPosition
}

// CategoryResolver maps a variant to its market category. An empty return
// means no market data applies.
type CategoryResolver func(variantID string) string

// Adjuster proposes, gates and executes price changes.
type Adjuster struct {
	store    store.Store
	market   *market.Tracker
	fees     config.FeeConfig
	cfg      Config
	category CategoryResolver
	log      *slog.Logger

	now func() time.Time // swapped in tests

	// mu guards variantMu; each variant's own mutex serializes its
	// adjustment pipeline so the one-pending invariant holds.
	mu        sync.Mutex
	variantMu map[string]*sync.Mutex
}

// New creates an adjuster. The resolver may be nil when no variant has
// market data.
func New(st store.Store, tracker *market.Tracker, fees config.FeeConfig, cfg Config, resolver CategoryResolver, log *slog.Logger) *Adjuster {
	if resolver == nil {
		resolver = func(string) string { return "" }
	}
	return &Adjuster{
		store:     st,
		market:    tracker,
		fees:      fees,
		cfg:       cfg,
		category:  resolver,
		log:       log,
		now:       time.Now,
		variantMu: make(map[string]*sync.Mutex),
	}
}

func (a *Adjuster) lockVariant(variantID string) func() {
	a.mu.Lock()
	m, ok := a.variantMu[variantID]
	if !ok {
		m = &sync.Mutex{}
		a.variantMu[variantID] = m
	}
	a.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// ProcessAlert turns a ledger alert into a pending adjustment, or executes
// it outright when the auto-execute gate passes. overrideCooldown only works
// for critical alerts.
func (a *Adjuster) ProcessAlert(ctx context.Context, alert model.Alert, overrideCooldown bool) (model.PriceAdjustment, error) {
	unlock := a.lockVariant(alert.VariantID)
	defer unlock()
	var costDelta int64
	if alert.Kind == model.AlertCostIncrease || alert.Kind == model.AlertCostDecrease {
		costDelta = int64(alert.NewValue - alert.PreviousValue)
	}
	return a.propose(ctx, alert.VariantID, string(alert.Kind), alert.ID, costDelta,
		overrideCooldown && alert.Severity == model.SeverityCritical)
}

// ProposeManual runs the adjustment pipeline for an operator-initiated
// request. The override flag bypasses the cooldown; a human asked, so it is
// honored regardless of severity.
func (a *Adjuster) ProposeManual(ctx context.Context, variantID string, overrideCooldown bool) (model.PriceAdjustment, error) {
	unlock := a.lockVariant(variantID)
	defer unlock()
	return a.propose(ctx, variantID, model.TriggerManual, uuid.Nil, 0, overrideCooldown)
}

func (a *Adjuster) propose(ctx context.Context, variantID, trigger string, alertID uuid.UUID, costDelta int64, bypassCooldown bool) (model.PriceAdjustment, error) {
	now := a.now().UTC()

	until, err := a.store.CooldownUntil(ctx, variantID)
	if err != nil {
		return model.PriceAdjustment{}, fmt.Errorf("load cooldown: %w", err)
	}
	inCooldown := now.Before(until)
	if inCooldown && !bypassCooldown {
		return model.PriceAdjustment{}, &model.CooldownActiveError{VariantID: variantID, Until: until}
	}

	if existing, err := a.store.PendingAdjustment(ctx, variantID); err == nil {
		if existing.ExpiresAt.After(now) {
			return model.PriceAdjustment{}, &model.InvariantViolationError{VariantID: variantID, Existing: existing}
		}
		// Stale pending: expire it and continue.
		if err := a.transition(ctx, &existing, model.StatusExpired, now); err != nil {
			return model.PriceAdjustment{}, err
		}
	} else if !errors.Is(err, model.ErrNotFound) {
		return model.PriceAdjustment{}, fmt.Errorf("load pending adjustment: %w", err)
	}

	obs, err := a.store.LatestObservation(ctx, variantID)
	if err != nil {
		return model.PriceAdjustment{}, fmt.Errorf("load latest observation: %w", err)
	}
	current := obs.SourcePrice
	if current <= 0 {
		return model.PriceAdjustment{}, &model.ValidationError{Field: "source_price", Reason: "variant has no current price"}
	}

	costs := model.CostComponents{
		BaseCost:      obs.BaseCost,
		ShippingCost:  obs.ShippingCost,
		ProcessingFee: obs.ProcessingFee,
	}
	breakdown := analyzer.AnalyzeCostStructure(costs, current, a.fees)

	var competitors []model.CompetitorPricePoint
	if cat := a.category(variantID); cat != "" {
		competitors, err = a.market.Points(ctx, cat)
		if err != nil {
			return model.PriceAdjustment{}, fmt.Errorf("load market data: %w", err)
		}
	}

	recs := analyzer.RecommendStrategies(analyzer.StrategyInput{
		Breakdown:           breakdown,
		CurrentPrice:        current,
		TargetMarginPercent: a.fees.TargetMarginPercent,
		MinMarginPercent:    a.fees.MinMarginPercent,
		Competitors:         competitors,
		Position:            a.cfg.Position,
	})
	if len(recs) == 0 {
		return model.PriceAdjustment{}, model.ErrInsufficientData
	}
	best := recs[0]

	// Cost deltas pass through at a configured rate: increases mostly
	// flow into the price, decreases give back only part of the saving.
	// The shaped floor keeps a cost increase from ever proposing a cut
	// when the strategy target sits below the current price.
	candidate := best.RecommendedPrice
	if costDelta != 0 {
		rate := a.cfg.PassThroughIncrease
		if costDelta < 0 {
			rate = a.cfg.PassThroughDecrease
		}
		shaped := current + roundCents(float64(costDelta)*rate)
		if shaped > candidate {
			candidate = shaped
		}
	}

	proposed, pct := a.boundPrice(current, candidate)
	if proposed == current {
		return model.PriceAdjustment{}, ErrNoChange
	}

	confidence := best.Confidence
	if math.Abs(pct) > a.cfg.MaxChangePercent/2 {
		confidence *= largeChangePenalty
	}

	adj := model.PriceAdjustment{
		ID:             uuid.New(),
		VariantID:      variantID,
		Trigger:        trigger,
		TriggerAlertID: alertID,
		CurrentPrice:   current,
		ProposedPrice:  proposed,
		PercentChange:  pct,
		Confidence:     confidence,
		Status:         model.StatusPending,
		CreatedAt:      now,
		ExpiresAt:      now.Add(a.cfg.TTL),
	}
	if err := a.store.SaveAdjustment(ctx, adj); err != nil {
		return model.PriceAdjustment{}, fmt.Errorf("save adjustment: %w", err)
	}
	a.log.Info("adjustment proposed",
		"adjustment_id", adj.ID,
		"variant_id", variantID,
		"trigger", trigger,
		"strategy", best.Strategy,
		"current_price", current,
		"proposed_price", proposed,
		"percent_change", pct,
		"confidence", confidence,
	)

	if !inCooldown && math.Abs(pct) <= a.cfg.AutoExecuteCapPercent && confidence >= a.cfg.AutoExecuteConfidence {
		if err := a.transition(ctx, &adj, model.StatusApproved, now); err != nil {
			return model.PriceAdjustment{}, err
		}
		if err := a.execute(ctx, &adj, now); err != nil {
			return model.PriceAdjustment{}, err
		}
		a.log.Info("adjustment auto-executed", "adjustment_id", adj.ID, "variant_id", variantID)
	}
	return adj, nil
}

// boundPrice clamps the candidate price to the maximum change, applies the
// psychological ending last, and returns the final price with its percent
// change from current.
func (a *Adjuster) boundPrice(current, candidate int64) (int64, float64) {
	lo := roundCents(float64(current) * (1 - a.cfg.MaxChangePercent/100))
	hi := roundCents(float64(current) * (1 + a.cfg.MaxChangePercent/100))

	bounded := candidate
	if bounded > hi {
		bounded = hi
	}
	if bounded < lo {
		bounded = lo
	}
	bounded = a.roundEnding(bounded, lo, hi)
	return bounded, float64(bounded-current) / float64(current) * 100
}

// roundEnding nudges a price to the configured cents ending, staying inside
// [lo, hi]. Prices under a dollar are left alone.
func (a *Adjuster) roundEnding(price, lo, hi int64) int64 {
	if a.cfg.RoundEnding == 0 || price < 100 {
		return price
	}
	rounded := (price/100)*100 + int64(a.cfg.RoundEnding)
	if rounded > hi {
		rounded -= 100
	}
	if rounded < lo {
		rounded += 100
	}
	if rounded < 100 || rounded < lo || rounded > hi {
		return price
	}
	return rounded
}

func roundCents(v float64) int64 {
	return int64(math.Round(v))
}

// transition applies a state machine move and persists it.
func (a *Adjuster) transition(ctx context.Context, adj *model.PriceAdjustment, next model.AdjustmentStatus, now time.Time) error {
	if !adj.Status.CanTransition(next) {
		return &model.TransitionError{From: adj.Status, To: next}
	}
	prev := adj.Status
	adj.Status = next
	switch next {
	case model.StatusApproved, model.StatusRejected:
		adj.DecidedAt = now
	}
	if err := a.store.SaveAdjustment(ctx, *adj); err != nil {
		adj.Status = prev
		return fmt.Errorf("save adjustment: %w", err)
	}
	return nil
}

// execute finalizes an approved adjustment and starts the cooldown.
func (a *Adjuster) execute(ctx context.Context, adj *model.PriceAdjustment, now time.Time) error {
	adj.ExecutedAt = now
	adj.CooldownUntil = now.Add(a.cfg.Cooldown)
	if err := a.transition(ctx, adj, model.StatusExecuted, now); err != nil {
		adj.ExecutedAt = time.Time{}
		adj.CooldownUntil = time.Time{}
		return err
	}
	if err := a.store.SetCooldown(ctx, adj.VariantID, adj.CooldownUntil); err != nil {
		return fmt.Errorf("set cooldown: %w", err)
	}
	return nil
}
