package market

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/printops/pricewatch/internal/model"
)

// ImportCSV bulk-loads competitor price points from CSV. Expected header:
//
//	competitor_id,category,price_cents,observed_at,confidence
//
// observed_at is RFC 3339. Returns how many rows were inserted and how many
// were duplicates; a malformed row aborts the import with its line number.
func (t *Tracker) ImportCSV(ctx context.Context, r io.Reader) (inserted, duplicates int, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 5

	header, err := cr.Read()
	if err != nil {
		return 0, 0, fmt.Errorf("read header: %w", err)
	}
	if header[0] != "competitor_id" {
		return 0, 0, fmt.Errorf("unexpected header %q, want competitor_id,category,price_cents,observed_at,confidence", header[0])
	}

	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			return inserted, duplicates, nil
		}
		if err != nil {
			return inserted, duplicates, fmt.Errorf("line %d: %w", line, err)
		}

		price, err := strconv.ParseInt(record[2], 10, 64)
		if err != nil {
			return inserted, duplicates, fmt.Errorf("line %d: price_cents: %w", line, err)
		}
		observedAt, err := time.Parse(time.RFC3339, record[3])
		if err != nil {
			return inserted, duplicates, fmt.Errorf("line %d: observed_at: %w", line, err)
		}
		confidence, err := strconv.ParseFloat(record[4], 64)
		if err != nil {
			return inserted, duplicates, fmt.Errorf("line %d: confidence: %w", line, err)
		}

		ok, err := t.Record(ctx, model.CompetitorPricePoint{
			CompetitorID: record[0],
			Category:     record[1],
			Price:        price,
			ObservedAt:   observedAt,
			Confidence:   confidence,
		})
		if err != nil {
			return inserted, duplicates, fmt.Errorf("line %d: %w", line, err)
		}
		if ok {
			inserted++
		} else {
			duplicates++
		}
	}
}
