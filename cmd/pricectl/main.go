// pricectl is the operator CLI for the pricing engine: inspect margins and
// alerts, manage price adjustments, and import competitor data.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/printops/pricewatch/internal/adjuster"
	"github.com/printops/pricewatch/internal/config"
	"github.com/printops/pricewatch/internal/database"
	"github.com/printops/pricewatch/internal/ledger"
	"github.com/printops/pricewatch/internal/market"
	"github.com/printops/pricewatch/internal/model"
	"github.com/printops/pricewatch/internal/report"
	"github.com/printops/pricewatch/internal/store"
	"github.com/printops/pricewatch/internal/version"
)

const usage = `usage: pricectl [-config path] <command> [args]

commands:
  margins                        show current margins per variant
  report [-format json|csv]      full engine report
  alerts [-severity s]           list open alerts
  ack <alert-id>                 acknowledge an alert
  trend <variant-id> [-days n]   cost trend for a variant
  market <category>              market summary for a category
  import-competitors <file.csv>  bulk-load competitor prices
  adjustments [-status s] [-variant v]
                                 list adjustments
  propose <variant-id> [-override-cooldown]
  approve <adjustment-id> [-immediate]
  reject <adjustment-id>
  execute <adjustment-id> [-failed]
  expire <adjustment-id>
  version
`

type app struct {
	cfg      *config.EngineConfig
	store    store.Store
	ledger   *ledger.Ledger
	tracker  *market.Tracker
	adjuster *adjuster.Adjuster
	report   *report.Builder
}

func main() {
	configPath := flag.String("config", "configs/pricewatch.local.yaml", "path to config file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if args[0] == "version" {
		fmt.Println("pricectl", version.String())
		return
	}

	_ = godotenv.Load()

	// Quiet logger: CLI output goes to stdout, diagnostics only on error.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fatal("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		fatal("%v", err)
	}
	defer a.store.Close()

	if err := a.run(ctx, args[0], args[1:]); err != nil {
		fatal("%v", err)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "pricectl: "+format+"\n", args...)
	os.Exit(1)
}

func newApp(ctx context.Context, cfg *config.EngineConfig, logger *slog.Logger) (*app, error) {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	l := ledger.New(st, ledger.Config{
		CostChangeThresholdPercent: cfg.Ledger.CostChangeThresholdPercent,
		MarginFloorPercent:         cfg.Ledger.MarginFloorPercent,
		MarginCeilingPercent:       cfg.Ledger.MarginCeilingPercent,
		RetentionDays:              cfg.Ledger.RetentionDays,
		TrendDeadBandPercent:       cfg.Ledger.TrendDeadBandPercent,
	}, logger)

	tracker := market.New(st, market.Config{
		FreshnessDays:      cfg.Market.FreshnessDays,
		AlignedBandPercent: cfg.Market.AlignedBandPercent,
		GapSpacingMultiple: cfg.Market.GapSpacingMultiple,
		MinConfidence:      cfg.Market.MinConfidence,
	}, logger)

	categories := make(map[string]string, len(cfg.Variants))
	for _, v := range cfg.Variants {
		categories[v.ID] = v.Category
	}
	adj := adjuster.New(st, tracker, cfg.Fees, adjuster.Config{
		MaxChangePercent:      cfg.Adjuster.MaxChangePercent,
		AutoExecuteCapPercent: cfg.Adjuster.AutoExecuteCapPercent,
		AutoExecuteConfidence: cfg.Adjuster.AutoExecuteConfidence,
		TTL:                   cfg.Adjuster.TTL.Std(),
		Cooldown:              cfg.Adjuster.Cooldown.Std(),
		PassThroughIncrease:   cfg.Adjuster.PassThroughIncrease,
		PassThroughDecrease:   cfg.Adjuster.PassThroughDecrease,
		RoundEnding:           *cfg.Adjuster.RoundEnding,
		Position:              model.MarketPosition(cfg.Adjuster.Position),
	}, func(variantID string) string { return categories[variantID] }, logger)

	return &app{
		cfg:      cfg,
		store:    st,
		ledger:   l,
		tracker:  tracker,
		adjuster: adj,
		report:   report.NewBuilder(cfg.Instance.ID, l, adj, tracker),
	}, nil
}

func openStore(ctx context.Context, cfg *config.EngineConfig) (store.Store, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return nil, fmt.Errorf("the memory backend holds no data between processes; point pricectl at a pebble or postgres store")
	case "pebble":
		return store.OpenPebble(cfg.Storage.Path)
	case "postgres":
		pool, err := database.Connect(ctx, cfg.Storage.Postgres)
		if err != nil {
			return nil, err
		}
		pg := store.NewPostgres(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "margins":
		return a.cmdMargins(ctx)
	case "report":
		return a.cmdReport(ctx, args)
	case "alerts":
		return a.cmdAlerts(ctx, args)
	case "ack":
		return a.cmdAck(ctx, args)
	case "trend":
		return a.cmdTrend(ctx, args)
	case "market":
		return a.cmdMarket(ctx, args)
	case "import-competitors":
		return a.cmdImport(ctx, args)
	case "adjustments":
		return a.cmdAdjustments(ctx, args)
	case "propose":
		return a.cmdPropose(ctx, args)
	case "approve":
		return a.cmdApprove(ctx, args)
	case "reject":
		return a.cmdDecide(ctx, args, "reject")
	case "execute":
		return a.cmdExecute(ctx, args)
	case "expire":
		return a.cmdDecide(ctx, args, "expire")
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func parseID(args []string, what string) (uuid.UUID, []string, error) {
	if len(args) == 0 {
		return uuid.Nil, nil, fmt.Errorf("%s required", what)
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("invalid %s %q: %w", what, args[0], err)
	}
	return id, args[1:], nil
}
