package poller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/printops/pricewatch/internal/catalog"
	"github.com/printops/pricewatch/internal/config"
	"github.com/printops/pricewatch/internal/model"
)

type fakeSource struct {
	mu    sync.Mutex
	costs map[string]catalog.VariantCost
	errs  map[string]error
	calls int
}

func (f *fakeSource) GetVariantCost(_ context.Context, variantID string) (catalog.VariantCost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.errs[variantID]; err != nil {
		return catalog.VariantCost{}, err
	}
	return f.costs[variantID], nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	recorded []string
	alerts   []model.Alert
	done     chan string
}

func (f *fakeRecorder) RecordObservation(_ context.Context, variantID string, _ model.CostComponents, _ int64) ([]model.Alert, error) {
	f.mu.Lock()
	f.recorded = append(f.recorded, variantID)
	f.mu.Unlock()
	if f.done != nil {
		f.done <- variantID
	}
	return f.alerts, nil
}

type fakeSink struct {
	mu        sync.Mutex
	processed []model.Alert
	overrides []bool
	err       error
	swept     int
}

func (f *fakeSink) ProcessAlert(_ context.Context, a model.Alert, override bool) (model.PriceAdjustment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, a)
	f.overrides = append(f.overrides, override)
	if f.err != nil {
		return model.PriceAdjustment{}, f.err
	}
	return model.PriceAdjustment{ID: uuid.New(), VariantID: a.VariantID, Status: model.StatusPending}, nil
}

func (f *fakeSink) SweepExpired(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.swept, nil
}

func variants(ids ...string) []config.VariantConfig {
	out := make([]config.VariantConfig, len(ids))
	for i, id := range ids {
		out[i] = config.VariantConfig{ID: id, Category: "t-shirts"}
	}
	return out
}

func testPoller(source *fakeSource, rec *fakeRecorder, sink *fakeSink, vs []config.VariantConfig) *Poller {
	cfg := Config{
		Interval:      time.Hour, // only the immediate poll runs in tests
		Concurrency:   4,
		Timeout:       time.Second,
		SweepInterval: time.Hour,
	}
	return New(cfg, source, rec, sink, vs, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func waitFor(t *testing.T, done chan string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %d polls, got %d", n, i)
		}
	}
}

func TestPollerRecordsAllVariants(t *testing.T) {
	source := &fakeSource{costs: map[string]catalog.VariantCost{
		"v1": {VariantID: "v1", BaseCost: 700, Price: 2000},
		"v2": {VariantID: "v2", BaseCost: 500, Price: 1500},
	}}
	rec := &fakeRecorder{done: make(chan string, 4)}
	sink := &fakeSink{}

	p := testPoller(source, rec, sink, variants("v1", "v2"))
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, rec.done, 2)
	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.recorded) != 2 {
		t.Errorf("recorded %d observations, want 2", len(rec.recorded))
	}
}

func TestPollerRoutesAlertsWithCriticalOverride(t *testing.T) {
	source := &fakeSource{costs: map[string]catalog.VariantCost{
		"v1": {VariantID: "v1", BaseCost: 700, Price: 2000},
	}}
	rec := &fakeRecorder{
		done: make(chan string, 2),
		alerts: []model.Alert{
			{ID: uuid.New(), VariantID: "v1", Kind: model.AlertCostIncrease, Severity: model.SeverityMedium},
			{ID: uuid.New(), VariantID: "v1", Kind: model.AlertCostIncrease, Severity: model.SeverityCritical},
		},
	}
	sink := &fakeSink{}

	p := testPoller(source, rec, sink, variants("v1"))
	p.Start(context.Background())
	waitFor(t, rec.done, 1)
	p.Stop(context.Background())

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.processed) != 2 {
		t.Fatalf("processed %d alerts, want 2", len(sink.processed))
	}
	for i, a := range sink.processed {
		wantOverride := a.Severity == model.SeverityCritical
		if sink.overrides[i] != wantOverride {
			t.Errorf("alert %s override = %v, want %v", a.Severity, sink.overrides[i], wantOverride)
		}
	}
}

func TestPollerToleratesBusinessRuleRejections(t *testing.T) {
	source := &fakeSource{costs: map[string]catalog.VariantCost{
		"v1": {VariantID: "v1", BaseCost: 700, Price: 2000},
	}}
	rec := &fakeRecorder{
		done:   make(chan string, 2),
		alerts: []model.Alert{{ID: uuid.New(), VariantID: "v1", Severity: model.SeverityMedium}},
	}
	sink := &fakeSink{err: &model.CooldownActiveError{VariantID: "v1", Until: time.Now().Add(time.Hour)}}

	p := testPoller(source, rec, sink, variants("v1"))
	p.Start(context.Background())
	waitFor(t, rec.done, 1)
	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

func TestPollerContinuesPastFetchErrors(t *testing.T) {
	source := &fakeSource{
		costs: map[string]catalog.VariantCost{
			"good": {VariantID: "good", BaseCost: 700, Price: 2000},
		},
		errs: map[string]error{"bad": errors.New("boom")},
	}
	rec := &fakeRecorder{done: make(chan string, 2)}
	sink := &fakeSink{}

	p := testPoller(source, rec, sink, variants("bad", "good"))
	p.Start(context.Background())
	waitFor(t, rec.done, 1)
	p.Stop(context.Background())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.recorded) != 1 || rec.recorded[0] != "good" {
		t.Errorf("recorded = %v, want [good]", rec.recorded)
	}
}
