package report

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/printops/pricewatch/internal/adjuster"
	"github.com/printops/pricewatch/internal/ledger"
	"github.com/printops/pricewatch/internal/market"
	"github.com/printops/pricewatch/internal/model"
)

// Report is a point-in-time snapshot of engine state.
type Report struct {
	GeneratedAt time.Time               `json:"generated_at"`
	Instance    string                  `json:"instance"`
	Ledger      ledger.Stats            `json:"ledger"`
	Margins     []model.MarginSnapshot  `json:"margins"`
	OpenAlerts  []model.Alert           `json:"open_alerts"`
	Pending     []model.PriceAdjustment `json:"pending_adjustments"`
	Adjustments adjuster.Summary        `json:"adjustments"`
	Market      []market.Summary        `json:"market"`
}

// Builder assembles reports from the live components.
type Builder struct {
	instance string
	ledger   *ledger.Ledger
	adjuster *adjuster.Adjuster
	tracker  *market.Tracker
}

// NewBuilder wires a report builder.
func NewBuilder(instance string, l *ledger.Ledger, a *adjuster.Adjuster, t *market.Tracker) *Builder {
	return &Builder{instance: instance, ledger: l, adjuster: a, tracker: t}
}

// Build gathers the full report.
func (b *Builder) Build(ctx context.Context) (Report, error) {
	stats, err := b.ledger.SummaryStats(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("ledger stats: %w", err)
	}
	margins, err := b.ledger.CurrentMargins(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("current margins: %w", err)
	}
	alerts, err := b.ledger.ActiveAlerts(ctx, "")
	if err != nil {
		return Report{}, fmt.Errorf("active alerts: %w", err)
	}
	pending, err := b.adjuster.Pending(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("pending adjustments: %w", err)
	}
	adjSummary, err := b.adjuster.Summarize(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("adjustment summary: %w", err)
	}
	insights, err := b.tracker.Insights(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("market insights: %w", err)
	}

	return Report{
		GeneratedAt: time.Now().UTC(),
		Instance:    b.instance,
		Ledger:      stats,
		Margins:     margins,
		OpenAlerts:  alerts,
		Pending:     pending,
		Adjustments: adjSummary,
		Market:      insights,
	}, nil
}

// WriteJSON writes the report as indented JSON.
func (r Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteCSV writes the per-variant margin table as CSV.
func (r Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"variant_id", "source_price_cents", "total_cost_cents", "margin_percent", "as_of"}); err != nil {
		return err
	}
	for _, m := range r.Margins {
		row := []string{
			m.VariantID,
			strconv.FormatInt(m.SourcePrice, 10),
			strconv.FormatInt(m.TotalCost, 10),
			strconv.FormatFloat(m.MarginPercent, 'f', 2, 64),
			m.AsOf.Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
