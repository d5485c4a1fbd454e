package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/printops/pricewatch/internal/model"
	"github.com/printops/pricewatch/internal/store"
)

func dollars(cents int64) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}

func (a *app) cmdMargins(ctx context.Context) error {
	margins, err := a.ledger.CurrentMargins(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VARIANT\tPRICE\tCOST\tMARGIN\tAS OF")
	for _, m := range margins {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.1f%%\t%s\n",
			m.VariantID, dollars(m.SourcePrice), dollars(m.TotalCost),
			m.MarginPercent, m.AsOf.Format(time.RFC3339))
	}
	return w.Flush()
}

func (a *app) cmdReport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	format := fs.String("format", "json", "output format: json or csv")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rep, err := a.report.Build(ctx)
	if err != nil {
		return err
	}
	switch *format {
	case "json":
		return rep.WriteJSON(os.Stdout)
	case "csv":
		return rep.WriteCSV(os.Stdout)
	default:
		return fmt.Errorf("unknown format %q", *format)
	}
}

func (a *app) cmdAlerts(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("alerts", flag.ContinueOnError)
	severity := fs.String("severity", "", "minimum severity: low, medium, high, critical")
	if err := fs.Parse(args); err != nil {
		return err
	}

	alerts, err := a.ledger.ActiveAlerts(ctx, model.Severity(*severity))
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tVARIANT\tKIND\tSEVERITY\tCHANGE\tMESSAGE")
	for _, al := range alerts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%+.1f%%\t%s\n",
			al.ID, al.VariantID, al.Kind, al.Severity, al.PercentChange, al.Message)
	}
	return w.Flush()
}

func (a *app) cmdAck(ctx context.Context, args []string) error {
	id, _, err := parseID(args, "alert id")
	if err != nil {
		return err
	}
	if err := a.ledger.Acknowledge(ctx, id); err != nil {
		return err
	}
	fmt.Println("acknowledged", id)
	return nil
}

func (a *app) cmdTrend(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("variant id required")
	}
	variantID := args[0]
	fs := flag.NewFlagSet("trend", flag.ContinueOnError)
	days := fs.Int("days", 30, "trend window in days")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	tr, err := a.ledger.Trend(ctx, variantID, time.Duration(*days)*24*time.Hour)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s over %dd (%d points, slope %+.2f%%/obs, volatility %.3f)\n",
		tr.VariantID, tr.Direction, *days, tr.DataPoints, tr.SlopePercent, tr.Volatility)
	return nil
}

func (a *app) cmdMarket(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("category required")
	}
	s, ok, err := a.tracker.Summary(ctx, args[0])
	if err != nil {
		return err
	}
	if !ok {
		fmt.Printf("%s: no fresh competitor data\n", args[0])
		return nil
	}
	fmt.Printf("%s: %d competitors, %s - %s (median %s, weighted mean %s), freshest %s\n",
		s.Category, s.Competitors, dollars(s.MinPrice), dollars(s.MaxPrice),
		dollars(s.MedianPrice), dollars(s.MeanPrice), s.FreshestAt.Format(time.RFC3339))
	return nil
}

func (a *app) cmdImport(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("csv file required")
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	inserted, duplicates, err := a.tracker.ImportCSV(ctx, f)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d price points (%d duplicates skipped)\n", inserted, duplicates)
	return nil
}

func (a *app) cmdAdjustments(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("adjustments", flag.ContinueOnError)
	status := fs.String("status", "", "filter by status")
	variant := fs.String("variant", "", "filter by variant")
	if err := fs.Parse(args); err != nil {
		return err
	}

	adjs, err := a.adjuster.List(ctx, store.AdjustmentFilter{
		VariantID: *variant,
		Status:    model.AdjustmentStatus(*status),
	})
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tVARIANT\tSTATUS\tCURRENT\tPROPOSED\tCHANGE\tCONF\tTRIGGER\tEXPIRES")
	for _, adj := range adjs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%+.1f%%\t%.2f\t%s\t%s\n",
			adj.ID, adj.VariantID, adj.Status,
			dollars(adj.CurrentPrice), dollars(adj.ProposedPrice),
			adj.PercentChange, adj.Confidence, adj.Trigger,
			adj.ExpiresAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func (a *app) cmdPropose(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("variant id required")
	}
	variantID := args[0]
	fs := flag.NewFlagSet("propose", flag.ContinueOnError)
	override := fs.Bool("override-cooldown", false, "propose even while the cooldown is active")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	adj, err := a.adjuster.ProposeManual(ctx, variantID, *override)
	if err != nil {
		return err
	}
	fmt.Printf("proposed %s: %s -> %s (%+.1f%%, confidence %.2f, status %s)\n",
		adj.ID, dollars(adj.CurrentPrice), dollars(adj.ProposedPrice),
		adj.PercentChange, adj.Confidence, adj.Status)
	return nil
}

func (a *app) cmdApprove(ctx context.Context, args []string) error {
	id, rest, err := parseID(args, "adjustment id")
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("approve", flag.ContinueOnError)
	immediate := fs.Bool("immediate", false, "execute right after approving")
	if err := fs.Parse(rest); err != nil {
		return err
	}

	adj, err := a.adjuster.Approve(ctx, id, *immediate)
	if err != nil {
		return err
	}
	fmt.Printf("%s is now %s\n", adj.ID, adj.Status)
	return nil
}

func (a *app) cmdExecute(ctx context.Context, args []string) error {
	id, rest, err := parseID(args, "adjustment id")
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("execute", flag.ContinueOnError)
	failed := fs.Bool("failed", false, "report a failed execution attempt")
	if err := fs.Parse(rest); err != nil {
		return err
	}

	adj, err := a.adjuster.Execute(ctx, id, !*failed)
	if err != nil {
		return err
	}
	if *failed {
		fmt.Printf("%s back to %s (retry %d)\n", adj.ID, adj.Status, adj.RetryCount)
	} else {
		fmt.Printf("%s executed at %s\n", adj.ID, dollars(adj.ProposedPrice))
	}
	return nil
}

func (a *app) cmdDecide(ctx context.Context, args []string, action string) error {
	id, _, err := parseID(args, "adjustment id")
	if err != nil {
		return err
	}
	var adj model.PriceAdjustment
	switch action {
	case "reject":
		adj, err = a.adjuster.Reject(ctx, id)
	case "expire":
		adj, err = a.adjuster.Expire(ctx, id)
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s is now %s\n", adj.ID, adj.Status)
	return nil
}
