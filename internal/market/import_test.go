package market

import (
	"context"
	"strings"
	"testing"
)

func TestImportCSV(t *testing.T) {
	tr, _ := testTracker(t)

	csvData := `competitor_id,category,price_cents,observed_at,confidence
acme,t-shirts,2499,2026-02-20T10:00:00Z,0.9
acme,t-shirts,2499,2026-02-20T10:00:00Z,0.9
budgetco,t-shirts,1999,2026-02-21T10:00:00Z,0.8
`
	inserted, duplicates, err := tr.ImportCSV(context.Background(), strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("ImportCSV() error = %v", err)
	}
	if inserted != 2 {
		t.Errorf("inserted = %d, want 2", inserted)
	}
	if duplicates != 1 {
		t.Errorf("duplicates = %d, want 1", duplicates)
	}
}

func TestImportCSVRejectsMalformedRow(t *testing.T) {
	tr, _ := testTracker(t)

	csvData := `competitor_id,category,price_cents,observed_at,confidence
acme,t-shirts,not-a-number,2026-02-20T10:00:00Z,0.9
`
	_, _, err := tr.ImportCSV(context.Background(), strings.NewReader(csvData))
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("ImportCSV() error = %v, want line 2 price error", err)
	}
}

func TestImportCSVRejectsBadHeader(t *testing.T) {
	tr, _ := testTracker(t)

	if _, _, err := tr.ImportCSV(context.Background(), strings.NewReader("a,b,c,d,e\n")); err == nil {
		t.Fatal("ImportCSV() with bad header returned nil error")
	}
}
