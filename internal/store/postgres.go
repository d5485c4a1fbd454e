package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/printops/pricewatch/internal/model"
)

// Postgres is a Store backed by a pgx connection pool, for deployments where
// several processes share one dataset.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing pool. The caller owns pool lifecycle until
// Close is called.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const schema = `
CREATE TABLE IF NOT EXISTS cost_observations (
	variant_id     TEXT        NOT NULL,
	observed_at    TIMESTAMPTZ NOT NULL,
	base_cost      BIGINT      NOT NULL,
	shipping_cost  BIGINT      NOT NULL,
	processing_fee BIGINT      NOT NULL,
	total_cost     BIGINT      NOT NULL,
	source_price   BIGINT      NOT NULL,
	PRIMARY KEY (variant_id, observed_at)
);

CREATE TABLE IF NOT EXISTS alerts (
	id             UUID             PRIMARY KEY,
	variant_id     TEXT             NOT NULL,
	kind           TEXT             NOT NULL,
	previous_value DOUBLE PRECISION NOT NULL,
	new_value      DOUBLE PRECISION NOT NULL,
	percent_change DOUBLE PRECISION NOT NULL,
	severity       TEXT             NOT NULL,
	message        TEXT             NOT NULL,
	created_at     TIMESTAMPTZ      NOT NULL,
	acknowledged   BOOLEAN          NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_alerts_variant ON alerts (variant_id, created_at);

CREATE TABLE IF NOT EXISTS competitor_prices (
	competitor_id TEXT             NOT NULL,
	category      TEXT             NOT NULL,
	price         BIGINT           NOT NULL,
	observed_at   TIMESTAMPTZ      NOT NULL,
	confidence    DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (competitor_id, observed_at)
);
CREATE INDEX IF NOT EXISTS idx_competitor_prices_category ON competitor_prices (category, observed_at);

CREATE TABLE IF NOT EXISTS price_adjustments (
	id               UUID             PRIMARY KEY,
	variant_id       TEXT             NOT NULL,
	trigger_kind     TEXT             NOT NULL,
	trigger_alert_id UUID,
	current_price    BIGINT           NOT NULL,
	proposed_price   BIGINT           NOT NULL,
	percent_change   DOUBLE PRECISION NOT NULL,
	confidence       DOUBLE PRECISION NOT NULL,
	status           TEXT             NOT NULL,
	created_at       TIMESTAMPTZ      NOT NULL,
	decided_at       TIMESTAMPTZ,
	executed_at      TIMESTAMPTZ,
	expires_at       TIMESTAMPTZ      NOT NULL,
	cooldown_until   TIMESTAMPTZ,
	retry_count      INT              NOT NULL DEFAULT 0
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_one_pending_per_variant
	ON price_adjustments (variant_id) WHERE status = 'pending';

CREATE TABLE IF NOT EXISTS cooldowns (
	variant_id TEXT        PRIMARY KEY,
	until      TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema creates all tables and indexes if they do not exist.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *Postgres) AppendObservation(ctx context.Context, obs model.CostObservation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cost_observations
			(variant_id, observed_at, base_cost, shipping_cost, processing_fee, total_cost, source_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (variant_id, observed_at) DO NOTHING`,
		obs.VariantID, obs.ObservedAt, obs.BaseCost, obs.ShippingCost,
		obs.ProcessingFee, obs.TotalCost, obs.SourcePrice,
	)
	return err
}

func scanObservation(row pgx.Row) (model.CostObservation, error) {
	var obs model.CostObservation
	err := row.Scan(&obs.VariantID, &obs.ObservedAt, &obs.BaseCost,
		&obs.ShippingCost, &obs.ProcessingFee, &obs.TotalCost, &obs.SourcePrice)
	return obs, err
}

const obsColumns = `variant_id, observed_at, base_cost, shipping_cost, processing_fee, total_cost, source_price`

func (s *Postgres) Observations(ctx context.Context, variantID string, since time.Time) ([]model.CostObservation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+obsColumns+`
		FROM cost_observations
		WHERE variant_id = $1 AND observed_at >= $2
		ORDER BY observed_at`,
		variantID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CostObservation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, obs)
	}
	return out, rows.Err()
}

func (s *Postgres) LatestObservation(ctx context.Context, variantID string) (model.CostObservation, error) {
	obs, err := scanObservation(s.pool.QueryRow(ctx, `
		SELECT `+obsColumns+`
		FROM cost_observations
		WHERE variant_id = $1
		ORDER BY observed_at DESC
		LIMIT 1`,
		variantID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.CostObservation{}, model.ErrNotFound
	}
	return obs, err
}

func (s *Postgres) LatestObservations(ctx context.Context) (map[string]model.CostObservation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (variant_id) `+obsColumns+`
		FROM cost_observations
		ORDER BY variant_id, observed_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]model.CostObservation)
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		out[obs.VariantID] = obs
	}
	return out, rows.Err()
}

func (s *Postgres) PruneObservations(ctx context.Context, variantID string, before time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM cost_observations
		WHERE variant_id = $1 AND observed_at < $2`,
		variantID, before,
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *Postgres) AppendAlert(ctx context.Context, alert model.Alert) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO alerts
			(id, variant_id, kind, previous_value, new_value, percent_change, severity, message, created_at, acknowledged)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		alert.ID, alert.VariantID, alert.Kind, alert.PreviousValue, alert.NewValue,
		alert.PercentChange, alert.Severity, alert.Message, alert.CreatedAt, alert.Acknowledged,
	)
	return err
}

func (s *Postgres) Alerts(ctx context.Context, f AlertFilter) ([]model.Alert, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, variant_id, kind, previous_value, new_value, percent_change, severity, message, created_at, acknowledged
		FROM alerts
		WHERE ($1 = '' OR variant_id = $1)
		  AND ($2 = '' OR severity = $2)
		  AND (NOT $3 OR NOT acknowledged)
		ORDER BY created_at`,
		f.VariantID, string(f.Severity), f.Unacknowledged,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Alert
	for rows.Next() {
		var a model.Alert
		if err := rows.Scan(&a.ID, &a.VariantID, &a.Kind, &a.PreviousValue, &a.NewValue,
			&a.PercentChange, &a.Severity, &a.Message, &a.CreatedAt, &a.Acknowledged); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Postgres) AcknowledgeAlert(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `UPDATE alerts SET acknowledged = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s *Postgres) AppendCompetitorPrice(ctx context.Context, p model.CompetitorPricePoint) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO competitor_prices (competitor_id, category, price, observed_at, confidence)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (competitor_id, observed_at) DO NOTHING`,
		p.CompetitorID, p.Category, p.Price, p.ObservedAt, p.Confidence,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Postgres) CompetitorPrices(ctx context.Context, category string, since time.Time) ([]model.CompetitorPricePoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT competitor_id, category, price, observed_at, confidence
		FROM competitor_prices
		WHERE category = $1 AND observed_at >= $2
		ORDER BY observed_at`,
		category, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CompetitorPricePoint
	for rows.Next() {
		var p model.CompetitorPricePoint
		if err := rows.Scan(&p.CompetitorID, &p.Category, &p.Price, &p.ObservedAt, &p.Confidence); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Postgres) Categories(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT category FROM competitor_prices ORDER BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var cat string
		if err := rows.Scan(&cat); err != nil {
			return nil, err
		}
		out = append(out, cat)
	}
	return out, rows.Err()
}

// nullable maps zero times to NULL on the way in.
func nullable(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nullableID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func (s *Postgres) SaveAdjustment(ctx context.Context, adj model.PriceAdjustment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO price_adjustments
			(id, variant_id, trigger_kind, trigger_alert_id, current_price, proposed_price,
			 percent_change, confidence, status, created_at, decided_at, executed_at,
			 expires_at, cooldown_until, retry_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			confidence = EXCLUDED.confidence,
			decided_at = EXCLUDED.decided_at,
			executed_at = EXCLUDED.executed_at,
			cooldown_until = EXCLUDED.cooldown_until,
			retry_count = EXCLUDED.retry_count`,
		adj.ID, adj.VariantID, adj.Trigger, nullableID(adj.TriggerAlertID),
		adj.CurrentPrice, adj.ProposedPrice, adj.PercentChange, adj.Confidence,
		adj.Status, adj.CreatedAt, nullable(adj.DecidedAt), nullable(adj.ExecutedAt),
		adj.ExpiresAt, nullable(adj.CooldownUntil), adj.RetryCount,
	)
	return err
}

const adjColumns = `id, variant_id, trigger_kind, trigger_alert_id, current_price, proposed_price,
	percent_change, confidence, status, created_at, decided_at, executed_at,
	expires_at, cooldown_until, retry_count`

func scanAdjustment(row pgx.Row) (model.PriceAdjustment, error) {
	var (
		adj       model.PriceAdjustment
		alertID   *uuid.UUID
		decided   *time.Time
		executed  *time.Time
		coolUntil *time.Time
	)
	err := row.Scan(&adj.ID, &adj.VariantID, &adj.Trigger, &alertID,
		&adj.CurrentPrice, &adj.ProposedPrice, &adj.PercentChange, &adj.Confidence,
		&adj.Status, &adj.CreatedAt, &decided, &executed,
		&adj.ExpiresAt, &coolUntil, &adj.RetryCount)
	if err != nil {
		return model.PriceAdjustment{}, err
	}
	if alertID != nil {
		adj.TriggerAlertID = *alertID
	}
	if decided != nil {
		adj.DecidedAt = *decided
	}
	if executed != nil {
		adj.ExecutedAt = *executed
	}
	if coolUntil != nil {
		adj.CooldownUntil = *coolUntil
	}
	return adj, nil
}

func (s *Postgres) Adjustment(ctx context.Context, id uuid.UUID) (model.PriceAdjustment, error) {
	adj, err := scanAdjustment(s.pool.QueryRow(ctx, `
		SELECT `+adjColumns+` FROM price_adjustments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.PriceAdjustment{}, model.ErrNotFound
	}
	return adj, err
}

func (s *Postgres) PendingAdjustment(ctx context.Context, variantID string) (model.PriceAdjustment, error) {
	adj, err := scanAdjustment(s.pool.QueryRow(ctx, `
		SELECT `+adjColumns+`
		FROM price_adjustments
		WHERE variant_id = $1 AND status = 'pending'`,
		variantID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.PriceAdjustment{}, model.ErrNotFound
	}
	return adj, err
}

func (s *Postgres) Adjustments(ctx context.Context, f AdjustmentFilter) ([]model.PriceAdjustment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+adjColumns+`
		FROM price_adjustments
		WHERE ($1 = '' OR variant_id = $1)
		  AND ($2 = '' OR status = $2)
		  AND ($3::timestamptz IS NULL OR created_at > $3)
		ORDER BY created_at`,
		f.VariantID, string(f.Status), nullable(f.CreatedAfter),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PriceAdjustment
	for rows.Next() {
		adj, err := scanAdjustment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, adj)
	}
	return out, rows.Err()
}

func (s *Postgres) CooldownUntil(ctx context.Context, variantID string) (time.Time, error) {
	var until time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT until FROM cooldowns WHERE variant_id = $1`, variantID,
	).Scan(&until)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	return until, err
}

func (s *Postgres) SetCooldown(ctx context.Context, variantID string, until time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cooldowns (variant_id, until)
		VALUES ($1, $2)
		ON CONFLICT (variant_id) DO UPDATE SET until = EXCLUDED.until`,
		variantID, until,
	)
	return err
}

// Close releases the underlying pool.
func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}
