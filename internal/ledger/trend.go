package ledger

import (
	"context"
	"math"
	"time"

	"github.com/printops/pricewatch/internal/model"
)

// Trend directions.
const (
	TrendRising  = "rising"
	TrendFalling = "falling"
	TrendStable  = "stable"
)

// Trend summarizes how a variant's total cost has moved over a window.
type Trend struct {
	VariantID string
	Direction string

	// SlopePercent is the fitted per-observation change in percent of the
	// window's mean cost.
	SlopePercent float64

	// Volatility is the coefficient of variation of total cost over the
	// window (standard deviation / mean).
	Volatility float64

	DataPoints int
	Window     time.Duration
}

// Trend fits a least-squares line through the variant's total costs in the
// window and classifies the slope. Returns model.ErrInsufficientData with
// fewer than two observations.
func (l *Ledger) Trend(ctx context.Context, variantID string, window time.Duration) (Trend, error) {
	since := l.now().UTC().Add(-window)
	obs, err := l.store.Observations(ctx, variantID, since)
	if err != nil {
		return Trend{}, err
	}
	if len(obs) < 2 {
		return Trend{}, model.ErrInsufficientData
	}

	n := float64(len(obs))
	var sumX, sumY, sumXY, sumXX float64
	for i, o := range obs {
		x, y := float64(i), float64(o.TotalCost)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	mean := sumY / n
	slope := (n*sumXY - sumX*sumY) / (n*sumXX - sumX*sumX)

	var variance float64
	for _, o := range obs {
		d := float64(o.TotalCost) - mean
		variance += d * d
	}
	variance /= n

	t := Trend{
		VariantID:  variantID,
		DataPoints: len(obs),
		Window:     window,
	}
	if mean > 0 {
		t.SlopePercent = slope / mean * 100
		t.Volatility = math.Sqrt(variance) / mean
	}

	switch {
	case t.SlopePercent > l.cfg.TrendDeadBandPercent:
		t.Direction = TrendRising
	case t.SlopePercent < -l.cfg.TrendDeadBandPercent:
		t.Direction = TrendFalling
	default:
		t.Direction = TrendStable
	}
	return t, nil
}
