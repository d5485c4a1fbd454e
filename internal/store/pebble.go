package store

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"github.com/printops/pricewatch/internal/model"
)

// Key layout. All values are JSON.
//
//	obs/<variant>/<nanos>          cost observation, nanos zero-padded
//	alert/<uuid>                   alert
//	comp/<category>/<competitor>|<nanos>  competitor price point
//	adj/<uuid>                     price adjustment
//	pend/<variant>                 uuid of the variant's pending adjustment
//	cd/<variant>                   cooldown deadline, RFC3339
const (
	prefixObs     = "obs/"
	prefixAlert   = "alert/"
	prefixComp    = "comp/"
	prefixAdj     = "adj/"
	prefixPending = "pend/"
	prefixCD      = "cd/"
)

// Pebble is a Store backed by an embedded pebble database. Suited to
// single-node deployments that need persistence without a database server.
type Pebble struct {
	db *pebble.DB
}

// OpenPebble opens (or creates) a pebble-backed store at dir.
func OpenPebble(dir string) (*Pebble, error) {
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &Pebble{db: db}, nil
}

func (p *Pebble) Close() error { return p.db.Close() }

func obsKey(variantID string, at time.Time) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d", prefixObs, variantID, at.UnixNano()))
}

func compPointKey(pt model.CompetitorPricePoint) []byte {
	return []byte(fmt.Sprintf("%s%s/%s|%020d", prefixComp, pt.Category, pt.CompetitorID, pt.ObservedAt.UnixNano()))
}

// keyUpperBound returns the smallest key greater than every key with the
// given prefix.
func keyUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func (p *Pebble) set(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.db.Set(key, data, pebble.Sync)
}

func (p *Pebble) get(key []byte, v any) error {
	data, closer, err := p.db.Get(key)
	if err == pebble.ErrNotFound {
		return model.ErrNotFound
	}
	if err != nil {
		return err
	}
	defer closer.Close()
	return json.Unmarshal(data, v)
}

// scan iterates all values under prefix in key order, decoding each into a
// fresh T and passing it to fn.
func scan[T any](p *Pebble, prefix string, fn func(key string, v T) error) error {
	lo := []byte(prefix)
	it, err := p.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: keyUpperBound(lo)})
	if err != nil {
		return err
	}
	defer it.Close()
	for it.First(); it.Valid(); it.Next() {
		var v T
		if err := json.Unmarshal(it.Value(), &v); err != nil {
			return fmt.Errorf("decode %s: %w", it.Key(), err)
		}
		if err := fn(string(it.Key()), v); err != nil {
			return err
		}
	}
	return it.Error()
}

func (p *Pebble) AppendObservation(_ context.Context, obs model.CostObservation) error {
	return p.set(obsKey(obs.VariantID, obs.ObservedAt), obs)
}

func (p *Pebble) Observations(_ context.Context, variantID string, since time.Time) ([]model.CostObservation, error) {
	var out []model.CostObservation
	err := scan(p, prefixObs+variantID+"/", func(_ string, obs model.CostObservation) error {
		if !obs.ObservedAt.Before(since) {
			out = append(out, obs)
		}
		return nil
	})
	return out, err
}

func (p *Pebble) LatestObservation(_ context.Context, variantID string) (model.CostObservation, error) {
	lo := []byte(prefixObs + variantID + "/")
	it, err := p.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: keyUpperBound(lo)})
	if err != nil {
		return model.CostObservation{}, err
	}
	defer it.Close()
	if !it.Last() {
		return model.CostObservation{}, model.ErrNotFound
	}
	var obs model.CostObservation
	if err := json.Unmarshal(it.Value(), &obs); err != nil {
		return model.CostObservation{}, err
	}
	return obs, nil
}

func (p *Pebble) LatestObservations(_ context.Context) (map[string]model.CostObservation, error) {
	out := make(map[string]model.CostObservation)
	// Keys sort ascending per variant, so the last row seen wins.
	err := scan(p, prefixObs, func(_ string, obs model.CostObservation) error {
		out[obs.VariantID] = obs
		return nil
	})
	return out, err
}

func (p *Pebble) PruneObservations(_ context.Context, variantID string, before time.Time) (int, error) {
	var stale [][]byte
	err := scan(p, prefixObs+variantID+"/", func(key string, obs model.CostObservation) error {
		if obs.ObservedAt.Before(before) {
			stale = append(stale, []byte(key))
		}
		return nil
	})
	if err != nil || len(stale) == 0 {
		return 0, err
	}
	batch := p.db.NewBatch()
	defer batch.Close()
	for _, key := range stale {
		if err := batch.Delete(key, nil); err != nil {
			return 0, err
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, err
	}
	return len(stale), nil
}

func (p *Pebble) AppendAlert(_ context.Context, alert model.Alert) error {
	return p.set([]byte(prefixAlert+alert.ID.String()), alert)
}

func (p *Pebble) Alerts(_ context.Context, f AlertFilter) ([]model.Alert, error) {
	var out []model.Alert
	err := scan(p, prefixAlert, func(_ string, a model.Alert) error {
		if f.Matches(a) {
			out = append(out, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (p *Pebble) AcknowledgeAlert(_ context.Context, id uuid.UUID) error {
	key := []byte(prefixAlert + id.String())
	var a model.Alert
	if err := p.get(key, &a); err != nil {
		return err
	}
	a.Acknowledged = true
	return p.set(key, a)
}

func (p *Pebble) AppendCompetitorPrice(_ context.Context, pt model.CompetitorPricePoint) (bool, error) {
	key := compPointKey(pt)
	_, closer, err := p.db.Get(key)
	if err == nil {
		closer.Close()
		return false, nil
	}
	if err != pebble.ErrNotFound {
		return false, err
	}
	if err := p.set(key, pt); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Pebble) CompetitorPrices(_ context.Context, category string, since time.Time) ([]model.CompetitorPricePoint, error) {
	var out []model.CompetitorPricePoint
	err := scan(p, prefixComp+category+"/", func(_ string, pt model.CompetitorPricePoint) error {
		if !pt.ObservedAt.Before(since) {
			out = append(out, pt)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObservedAt.Before(out[j].ObservedAt) })
	return out, nil
}

func (p *Pebble) Categories(_ context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	err := scan(p, prefixComp, func(_ string, pt model.CompetitorPricePoint) error {
		if !seen[pt.Category] {
			seen[pt.Category] = true
			out = append(out, pt.Category)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func (p *Pebble) SaveAdjustment(_ context.Context, adj model.PriceAdjustment) error {
	data, err := json.Marshal(adj)
	if err != nil {
		return err
	}
	pendKey := []byte(prefixPending + adj.VariantID)

	// The adjustment row and the pending index must move together.
	batch := p.db.NewBatch()
	defer batch.Close()
	if err := batch.Set([]byte(prefixAdj+adj.ID.String()), data, nil); err != nil {
		return err
	}
	if adj.Status == model.StatusPending {
		if err := batch.Set(pendKey, []byte(adj.ID.String()), nil); err != nil {
			return err
		}
	} else {
		// Clear the index only if it still points at this adjustment.
		cur, closer, err := p.db.Get(pendKey)
		if err == nil {
			same := string(cur) == adj.ID.String()
			closer.Close()
			if same {
				if err := batch.Delete(pendKey, nil); err != nil {
					return err
				}
			}
		} else if err != pebble.ErrNotFound {
			return err
		}
	}
	return batch.Commit(pebble.Sync)
}

func (p *Pebble) Adjustment(_ context.Context, id uuid.UUID) (model.PriceAdjustment, error) {
	var adj model.PriceAdjustment
	if err := p.get([]byte(prefixAdj+id.String()), &adj); err != nil {
		return model.PriceAdjustment{}, err
	}
	return adj, nil
}

func (p *Pebble) PendingAdjustment(ctx context.Context, variantID string) (model.PriceAdjustment, error) {
	data, closer, err := p.db.Get([]byte(prefixPending + variantID))
	if err == pebble.ErrNotFound {
		return model.PriceAdjustment{}, model.ErrNotFound
	}
	if err != nil {
		return model.PriceAdjustment{}, err
	}
	id, err := uuid.ParseBytes(data)
	closer.Close()
	if err != nil {
		return model.PriceAdjustment{}, fmt.Errorf("corrupt pending index for %s: %w", variantID, err)
	}
	return p.Adjustment(ctx, id)
}

func (p *Pebble) Adjustments(_ context.Context, f AdjustmentFilter) ([]model.PriceAdjustment, error) {
	var out []model.PriceAdjustment
	err := scan(p, prefixAdj, func(_ string, adj model.PriceAdjustment) error {
		if f.Matches(adj) {
			out = append(out, adj)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (p *Pebble) CooldownUntil(_ context.Context, variantID string) (time.Time, error) {
	data, closer, err := p.db.Get([]byte(prefixCD + variantID))
	if err == pebble.ErrNotFound {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	defer closer.Close()
	until, err := time.Parse(time.RFC3339Nano, string(data))
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt cooldown for %s: %w", variantID, err)
	}
	return until, nil
}

func (p *Pebble) SetCooldown(_ context.Context, variantID string, until time.Time) error {
	return p.db.Set([]byte(prefixCD+variantID), []byte(until.UTC().Format(time.RFC3339Nano)), pebble.Sync)
}
