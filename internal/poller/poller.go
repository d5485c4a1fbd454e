package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/printops/pricewatch/internal/adjuster"
	"github.com/printops/pricewatch/internal/catalog"
	"github.com/printops/pricewatch/internal/config"
	"github.com/printops/pricewatch/internal/metrics"
	"github.com/printops/pricewatch/internal/model"
)

// CostSource provides current variant costs. Satisfied by *catalog.Client.
type CostSource interface {
	GetVariantCost(ctx context.Context, variantID string) (catalog.VariantCost, error)
}

// Recorder receives fetched cost observations. Satisfied by *ledger.Ledger.
type Recorder interface {
	RecordObservation(ctx context.Context, variantID string, costs model.CostComponents, sourcePrice int64) ([]model.Alert, error)
}

// AlertSink receives alerts the recorder raised. Satisfied by
// *adjuster.Adjuster.
type AlertSink interface {
	ProcessAlert(ctx context.Context, alert model.Alert, overrideCooldown bool) (model.PriceAdjustment, error)
	SweepExpired(ctx context.Context) (int, error)
}

// Config holds poller configuration.
type Config struct {
	Interval      time.Duration // Poll interval (default: 24h)
	Concurrency   int           // Max concurrent requests (default: 10)
	Timeout       time.Duration // Per-request timeout (default: 10s)
	SweepInterval time.Duration // Expiry sweep interval (default: 1h)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:      24 * time.Hour,
		Concurrency:   10,
		Timeout:       10 * time.Second,
		SweepInterval: time.Hour,
	}
}

// Poller periodically fetches variant costs and feeds the pipeline.
type Poller struct {
	cfg      Config
	source   CostSource
	recorder Recorder
	sink     AlertSink
	variants []config.VariantConfig
	metrics  *metrics.Registry
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller. The metrics registry may be nil.
func New(cfg Config, source CostSource, recorder Recorder, sink AlertSink, variants []config.VariantConfig, reg *metrics.Registry, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		cfg:      cfg,
		source:   source,
		recorder: recorder,
		sink:     sink,
		variants: variants,
		metrics:  reg,
		logger:   logger,
	}
}

// Start begins the polling and sweep loops.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(2)
	go p.run()
	go p.runSweep()

	if p.metrics != nil {
		p.metrics.VariantsTracked.Set(float64(len(p.variants)))
	}
	p.logger.Info("cost poller started",
		"interval", p.cfg.Interval,
		"concurrency", p.cfg.Concurrency,
		"variants", len(p.variants),
	)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("cost poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	p.pollAll()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.pollAll()
		}
	}
}

// runSweep expires stale adjustments on its own cadence.
func (p *Poller) runSweep() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			swept, err := p.sink.SweepExpired(p.ctx)
			if err != nil {
				p.logger.Warn("expiry sweep failed", "err", err)
				continue
			}
			if swept > 0 {
				if p.metrics != nil {
					p.metrics.AdjustmentsExpired.Add(float64(swept))
				}
				p.logger.Info("expiry sweep complete", "swept", swept)
			}
		}
	}
}

// pollAll fetches costs for all configured variants concurrently.
func (p *Poller) pollAll() {
	start := time.Now()

	if len(p.variants) == 0 {
		p.logger.Debug("no variants to poll")
		return
	}

	// Semaphore for bounded concurrency.
	sem := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup
	var fetched, failed atomic.Int64

	for _, v := range p.variants {
		wg.Add(1)
		go func(variantID string) {
			defer wg.Done()

			// Acquire semaphore slot.
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-p.ctx.Done():
				return
			}

			if err := p.pollVariant(variantID); err != nil {
				p.logger.Warn("failed to poll variant",
					"variant_id", variantID,
					"err", err,
				)
				failed.Add(1)
				if p.metrics != nil {
					p.metrics.PollErrors.Inc()
				}
				return
			}

			fetched.Add(1)
		}(v.ID)
	}

	wg.Wait()

	if p.metrics != nil {
		p.metrics.PollDurationSec.Observe(time.Since(start).Seconds())
	}
	p.logger.Info("poll cycle complete",
		"variants", len(p.variants),
		"fetched", fetched.Load(),
		"errors", failed.Load(),
		"duration", time.Since(start),
	)
}

// pollVariant fetches one variant's costs, records the observation, and
// routes any alerts to the adjuster.
func (p *Poller) pollVariant(variantID string) error {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	vc, err := p.source.GetVariantCost(ctx, variantID)
	if err != nil {
		return err
	}

	costs := model.CostComponents{
		BaseCost:      vc.BaseCost,
		ShippingCost:  vc.ShippingCost,
		ProcessingFee: vc.ProcessingFee,
	}
	alerts, err := p.recorder.RecordObservation(ctx, variantID, costs, vc.Price)
	if err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.ObservationsRecorded.Inc()
		for _, a := range alerts {
			p.metrics.AlertsRaised.WithLabelValues(string(a.Severity)).Inc()
		}
	}

	for _, a := range alerts {
		p.routeAlert(ctx, a)
	}
	return nil
}

// routeAlert hands an alert to the adjuster. Rejections by business rules
// (cooldown, pending invariant, nothing to change) are normal operation, not
// failures.
func (p *Poller) routeAlert(ctx context.Context, a model.Alert) {
	override := a.Severity == model.SeverityCritical

	adj, err := p.sink.ProcessAlert(ctx, a, override)
	if err == nil {
		if p.metrics != nil {
			p.metrics.Adjustments.WithLabelValues(string(adj.Status)).Inc()
		}
		return
	}

	var cooldownErr *model.CooldownActiveError
	var invariantErr *model.InvariantViolationError
	switch {
	case errors.As(err, &cooldownErr):
		if p.metrics != nil {
			p.metrics.CooldownRejections.Inc()
		}
		p.logger.Debug("alert dropped, cooldown active",
			"variant_id", a.VariantID,
			"until", cooldownErr.Until,
		)
	case errors.As(err, &invariantErr):
		p.logger.Debug("alert dropped, adjustment already pending",
			"variant_id", a.VariantID,
			"pending_id", invariantErr.Existing.ID,
		)
	case errors.Is(err, adjuster.ErrNoChange), errors.Is(err, model.ErrInsufficientData):
		p.logger.Debug("alert produced no adjustment",
			"variant_id", a.VariantID,
			"reason", err,
		)
	default:
		p.logger.Warn("failed to process alert",
			"variant_id", a.VariantID,
			"alert_id", a.ID,
			"err", err,
		)
	}
}
