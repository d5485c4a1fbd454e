package market

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/printops/pricewatch/internal/model"
	"github.com/printops/pricewatch/internal/store"
)

// Config holds market analysis settings.
type Config struct {
	// FreshnessDays bounds how old a price point may be before analyses
	// ignore it.
	FreshnessDays int

	// AlignedBandPercent is the band around the weighted median inside
	// which a price reads as aligned with the market.
	AlignedBandPercent float64

	// GapSpacingMultiple flags a gap when the spacing between two adjacent
	// competitor prices exceeds this multiple of the mean spacing.
	GapSpacingMultiple float64

	// MinConfidence excludes low-trust points from analyses. They are
	// still stored.
	MinConfidence float64
}

// Tracker records competitor prices and positions our prices against them.
type Tracker struct {
	store store.Store
	cfg   Config
	log   *slog.Logger

	now func() time.Time // swapped in tests
}

// New creates a tracker over the given store.
func New(st store.Store, cfg Config, log *slog.Logger) *Tracker {
	return &Tracker{
		store: st,
		cfg:   cfg,
		log:   log,
		now:   time.Now,
	}
}

// Record validates and stores a competitor price point. Returns false when
// the point was already recorded; the same (competitor, observed-at) pair is
// never stored twice.
func (t *Tracker) Record(ctx context.Context, pt model.CompetitorPricePoint) (bool, error) {
	if err := pt.Validate(); err != nil {
		return false, err
	}
	inserted, err := t.store.AppendCompetitorPrice(ctx, pt)
	if err != nil {
		return false, err
	}
	if !inserted {
		t.log.Debug("duplicate price point dropped",
			"competitor_id", pt.CompetitorID,
			"observed_at", pt.ObservedAt,
		)
	}
	return inserted, nil
}

// freshPoints returns the latest usable price point per competitor in a
// category, sorted by price.
func (t *Tracker) freshPoints(ctx context.Context, category string) ([]model.CompetitorPricePoint, error) {
	since := t.now().UTC().AddDate(0, 0, -t.cfg.FreshnessDays)
	points, err := t.store.CompetitorPrices(ctx, category, since)
	if err != nil {
		return nil, err
	}

	latest := make(map[string]model.CompetitorPricePoint)
	for _, p := range points {
		if p.Confidence < t.cfg.MinConfidence {
			continue
		}
		if cur, ok := latest[p.CompetitorID]; !ok || p.ObservedAt.After(cur.ObservedAt) {
			latest[p.CompetitorID] = p
		}
	}

	out := make([]model.CompetitorPricePoint, 0, len(latest))
	for _, p := range latest {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out, nil
}

// Competitiveness bands.
const (
	UnderMarket = "under_market"
	Aligned     = "aligned"
	OverMarket  = "over_market"
)

// Gap is a price range with no competitor in it, wide enough to matter.
type Gap struct {
	Low  int64 // cents
	High int64 // cents
}

// Position describes where a price sits within a category's market.
type Position struct {
	Category string
	Price    int64 // the price being positioned (cents)

	// Percentile is the confidence-weighted share of competitors priced at
	// or below Price, 0-100.
	Percentile      float64
	Competitiveness string

	// NearestBelow/NearestAbove are the closest competitor prices on each
	// side; zero when no competitor is on that side.
	NearestBelow int64
	NearestAbove int64

	Gaps       []Gap
	DataPoints int
}

// PricePosition positions myPrice within the category. Returns
// model.ErrInsufficientData when no fresh competitor data exists.
func (t *Tracker) PricePosition(ctx context.Context, myPrice int64, category string) (Position, error) {
	points, err := t.freshPoints(ctx, category)
	if err != nil {
		return Position{}, err
	}
	if len(points) == 0 {
		return Position{}, model.ErrInsufficientData
	}

	pos := Position{
		Category:   category,
		Price:      myPrice,
		DataPoints: len(points),
	}

	var weightAtOrBelow, totalWeight float64
	for _, p := range points {
		totalWeight += p.Confidence
		if p.Price <= myPrice {
			weightAtOrBelow += p.Confidence
		}
		if p.Price < myPrice && (pos.NearestBelow == 0 || p.Price > pos.NearestBelow) {
			pos.NearestBelow = p.Price
		}
		if p.Price > myPrice && (pos.NearestAbove == 0 || p.Price < pos.NearestAbove) {
			pos.NearestAbove = p.Price
		}
	}
	if totalWeight > 0 {
		pos.Percentile = weightAtOrBelow / totalWeight * 100
	}

	median := weightedMedian(points)
	band := float64(median) * t.cfg.AlignedBandPercent / 100
	switch {
	case float64(myPrice) < float64(median)-band:
		pos.Competitiveness = UnderMarket
	case float64(myPrice) > float64(median)+band:
		pos.Competitiveness = OverMarket
	default:
		pos.Competitiveness = Aligned
	}

	pos.Gaps = t.findGaps(points)
	return pos, nil
}

// findGaps flags spacings between adjacent prices that exceed the configured
// multiple of the mean spacing. Needs at least three points to be
// meaningful.
func (t *Tracker) findGaps(points []model.CompetitorPricePoint) []Gap {
	if len(points) < 3 {
		return nil
	}
	var total int64
	for i := 1; i < len(points); i++ {
		total += points[i].Price - points[i-1].Price
	}
	mean := float64(total) / float64(len(points)-1)
	if mean <= 0 {
		return nil
	}

	var gaps []Gap
	for i := 1; i < len(points); i++ {
		spacing := points[i].Price - points[i-1].Price
		if float64(spacing) > t.cfg.GapSpacingMultiple*mean {
			gaps = append(gaps, Gap{Low: points[i-1].Price, High: points[i].Price})
		}
	}
	return gaps
}

// weightedMedian returns the price at which half the confidence weight is at
// or below. Points must be sorted by price.
func weightedMedian(points []model.CompetitorPricePoint) int64 {
	var total float64
	for _, p := range points {
		total += p.Confidence
	}
	var cum float64
	for _, p := range points {
		cum += p.Confidence
		if cum >= total/2 {
			return p.Price
		}
	}
	return points[len(points)-1].Price
}

// Summary aggregates a category's fresh competitor data.
type Summary struct {
	Category    string
	Competitors int
	MinPrice    int64
	MaxPrice    int64
	MedianPrice int64
	MeanPrice   int64 // confidence-weighted
	FreshestAt  time.Time
}

// Summary summarizes a category. The second return is false when the
// category has no fresh data; that is an answer, not an error.
func (t *Tracker) Summary(ctx context.Context, category string) (Summary, bool, error) {
	points, err := t.freshPoints(ctx, category)
	if err != nil {
		return Summary{}, false, err
	}
	if len(points) == 0 {
		return Summary{}, false, nil
	}

	s := Summary{
		Category:    category,
		Competitors: len(points),
		MinPrice:    points[0].Price,
		MaxPrice:    points[len(points)-1].Price,
		MedianPrice: weightedMedian(points),
	}
	var sum, weight float64
	for _, p := range points {
		sum += float64(p.Price) * p.Confidence
		weight += p.Confidence
		if p.ObservedAt.After(s.FreshestAt) {
			s.FreshestAt = p.ObservedAt
		}
	}
	if weight > 0 {
		s.MeanPrice = int64(sum/weight + 0.5)
	}
	return s, true, nil
}

// Insights returns summaries for every category with fresh data.
func (t *Tracker) Insights(ctx context.Context) ([]Summary, error) {
	categories, err := t.store.Categories(ctx)
	if err != nil {
		return nil, err
	}
	var out []Summary
	for _, cat := range categories {
		s, ok, err := t.Summary(ctx, cat)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// Points returns the fresh per-competitor points for a category, for
// callers that feed market data into strategy evaluation.
func (t *Tracker) Points(ctx context.Context, category string) ([]model.CompetitorPricePoint, error) {
	return t.freshPoints(ctx, category)
}
