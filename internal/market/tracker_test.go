package market

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/printops/pricewatch/internal/model"
	"github.com/printops/pricewatch/internal/store"
)

func testTracker(t *testing.T) (*Tracker, time.Time) {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := New(store.NewMemory(), Config{
		FreshnessDays:      90,
		AlignedBandPercent: 10,
		GapSpacingMultiple: 3,
		MinConfidence:      0.5,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	tr.now = func() time.Time { return now }
	return tr, now
}

func seed(t *testing.T, tr *Tracker, now time.Time, category string, prices map[string]int64) {
	t.Helper()
	for id, price := range prices {
		_, err := tr.Record(context.Background(), model.CompetitorPricePoint{
			CompetitorID: id,
			Category:     category,
			Price:        price,
			ObservedAt:   now.Add(-time.Hour),
			Confidence:   1.0,
		})
		if err != nil {
			t.Fatalf("Record(%s) error = %v", id, err)
		}
	}
}

func TestRecordValidatesAndDedups(t *testing.T) {
	tr, now := testTracker(t)
	ctx := context.Background()

	_, err := tr.Record(ctx, model.CompetitorPricePoint{Category: "mugs", Price: 100, Confidence: 1})
	var verr *model.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Record() without competitor error = %v, want ValidationError", err)
	}

	pt := model.CompetitorPricePoint{
		CompetitorID: "acme", Category: "mugs", Price: 1499, ObservedAt: now, Confidence: 0.9,
	}
	if inserted, err := tr.Record(ctx, pt); err != nil || !inserted {
		t.Fatalf("Record() = (%v, %v), want (true, nil)", inserted, err)
	}
	if inserted, err := tr.Record(ctx, pt); err != nil || inserted {
		t.Fatalf("duplicate Record() = (%v, %v), want (false, nil)", inserted, err)
	}
}

func TestPricePositionNoData(t *testing.T) {
	tr, _ := testTracker(t)
	if _, err := tr.PricePosition(context.Background(), 2000, "empty"); !errors.Is(err, model.ErrInsufficientData) {
		t.Fatalf("PricePosition() error = %v, want ErrInsufficientData", err)
	}
}

func TestPricePosition(t *testing.T) {
	tr, now := testTracker(t)
	seed(t, tr, now, "t-shirts", map[string]int64{
		"a": 1800, "b": 2000, "c": 2200, "d": 2400,
	})

	pos, err := tr.PricePosition(context.Background(), 2100, "t-shirts")
	if err != nil {
		t.Fatalf("PricePosition() error = %v", err)
	}
	if pos.DataPoints != 4 {
		t.Errorf("DataPoints = %d, want 4", pos.DataPoints)
	}
	if pos.Percentile != 50 {
		t.Errorf("Percentile = %v, want 50", pos.Percentile)
	}
	if pos.Competitiveness != Aligned {
		t.Errorf("Competitiveness = %s, want aligned", pos.Competitiveness)
	}
	if pos.NearestBelow != 2000 || pos.NearestAbove != 2200 {
		t.Errorf("neighbors = (%d, %d), want (2000, 2200)", pos.NearestBelow, pos.NearestAbove)
	}
}

func TestPricePositionBands(t *testing.T) {
	tr, now := testTracker(t)
	seed(t, tr, now, "t-shirts", map[string]int64{
		"a": 1900, "b": 2000, "c": 2100,
	})
	ctx := context.Background()

	// Weighted median is 2000; the 10% band spans 1800-2200.
	under, _ := tr.PricePosition(ctx, 1700, "t-shirts")
	if under.Competitiveness != UnderMarket {
		t.Errorf("1700 Competitiveness = %s, want under_market", under.Competitiveness)
	}
	over, _ := tr.PricePosition(ctx, 2500, "t-shirts")
	if over.Competitiveness != OverMarket {
		t.Errorf("2500 Competitiveness = %s, want over_market", over.Competitiveness)
	}
}

func TestPricePositionGaps(t *testing.T) {
	tr, now := testTracker(t)
	// Spacings: 100, 100, 3000, 100 -> mean 825; 3000 > 3*825.
	seed(t, tr, now, "hoodies", map[string]int64{
		"a": 2000, "b": 2100, "c": 2200, "d": 5200, "e": 5300,
	})

	pos, err := tr.PricePosition(context.Background(), 2500, "hoodies")
	if err != nil {
		t.Fatalf("PricePosition() error = %v", err)
	}
	if len(pos.Gaps) != 1 {
		t.Fatalf("Gaps = %v, want one gap", pos.Gaps)
	}
	if pos.Gaps[0].Low != 2200 || pos.Gaps[0].High != 5200 {
		t.Errorf("Gap = %+v, want {2200 5200}", pos.Gaps[0])
	}
}

func TestFreshnessAndConfidenceFilters(t *testing.T) {
	tr, now := testTracker(t)
	ctx := context.Background()

	// Stale point: outside the 90-day window.
	tr.Record(ctx, model.CompetitorPricePoint{
		CompetitorID: "old", Category: "mugs", Price: 900,
		ObservedAt: now.AddDate(0, 0, -120), Confidence: 1.0,
	})
	// Low-trust point: below MinConfidence.
	tr.Record(ctx, model.CompetitorPricePoint{
		CompetitorID: "noisy", Category: "mugs", Price: 800,
		ObservedAt: now.Add(-time.Hour), Confidence: 0.2,
	})

	if _, err := tr.PricePosition(ctx, 1000, "mugs"); !errors.Is(err, model.ErrInsufficientData) {
		t.Fatalf("PricePosition() error = %v, want ErrInsufficientData", err)
	}
}

func TestLatestPointPerCompetitorWins(t *testing.T) {
	tr, now := testTracker(t)
	ctx := context.Background()

	tr.Record(ctx, model.CompetitorPricePoint{
		CompetitorID: "acme", Category: "mugs", Price: 1000,
		ObservedAt: now.AddDate(0, 0, -10), Confidence: 1.0,
	})
	tr.Record(ctx, model.CompetitorPricePoint{
		CompetitorID: "acme", Category: "mugs", Price: 1200,
		ObservedAt: now.Add(-time.Hour), Confidence: 1.0,
	})

	s, ok, err := tr.Summary(ctx, "mugs")
	if err != nil || !ok {
		t.Fatalf("Summary() = (ok=%v, err=%v), want data", ok, err)
	}
	if s.Competitors != 1 {
		t.Errorf("Competitors = %d, want 1", s.Competitors)
	}
	if s.MedianPrice != 1200 {
		t.Errorf("MedianPrice = %d, want 1200 (latest point)", s.MedianPrice)
	}
}

func TestSummaryNoData(t *testing.T) {
	tr, _ := testTracker(t)
	_, ok, err := tr.Summary(context.Background(), "empty")
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if ok {
		t.Error("Summary() ok = true for empty category, want false")
	}
}

func TestInsights(t *testing.T) {
	tr, now := testTracker(t)
	seed(t, tr, now, "mugs", map[string]int64{"a": 1400, "b": 1600})
	seed(t, tr, now, "t-shirts", map[string]int64{"a": 2400, "b": 2600})

	got, err := tr.Insights(context.Background())
	if err != nil {
		t.Fatalf("Insights() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Insights() returned %d summaries, want 2", len(got))
	}
	if got[0].Category != "mugs" || got[1].Category != "t-shirts" {
		t.Errorf("categories = %s, %s; want mugs, t-shirts", got[0].Category, got[1].Category)
	}
}
