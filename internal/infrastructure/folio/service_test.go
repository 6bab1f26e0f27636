package folio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	corefolio "comercia/internal/core/folio"
)

// Mock objects
type mockRow struct {
	val int64
	err error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	if len(dest) > 0 {
		if ptr, ok := dest[0].(*int64); ok {
			*ptr = m.val
		}
	}
	return nil
}

type mockQuerier struct {
	mu           sync.Mutex
	currentValue int64 // Simulates the sequence row value
	queries      int
	lastArgs     []any
}

func (m *mockQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Strict passes (sequence_type, year): increment is 1.
	// Cached passes (sequence_type, year, increment).
	var increment int64 = 1
	if len(args) == 3 {
		if val, ok := args[2].(int64); ok {
			increment = val
		}
	}

	m.currentValue += increment
	m.queries++
	m.lastArgs = args

	return &mockRow{val: m.currentValue}
}

func TestGetNextFolio_Strict(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	ctx := context.Background()
	cfg := corefolio.DefaultConfig("OC")
	period := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	num, err := svc.GetNextFolio(ctx, cfg, nil, period)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "OC-2026-00001" {
		t.Errorf("expected OC-2026-00001, got %s", num)
	}
	if len(q.lastArgs) != 2 || q.lastArgs[0] != "OC" || q.lastArgs[1] != 2026 {
		t.Errorf("expected sequence row (OC, 2026), got %v", q.lastArgs)
	}

	num, err = svc.GetNextFolio(ctx, cfg, nil, period)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "OC-2026-00002" {
		t.Errorf("expected OC-2026-00002, got %s", num)
	}
}

func TestGetNextFolio_Cached(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	ctx := context.Background()
	cfg := corefolio.DefaultConfig("AJ")
	period := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	opts := &corefolio.Options{
		Strategy:  corefolio.StrategyCached,
		RangeSize: 10,
	}

	// First call allocates range 1..10: DB value jumps to 10, we get 1.
	num, err := svc.GetNextFolio(ctx, cfg, opts, period)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "AJ-2026-00001" {
		t.Errorf("expected AJ-2026-00001, got %s", num)
	}
	if q.currentValue != 10 {
		t.Errorf("expected DB value to be 10, got %d", q.currentValue)
	}
	if len(q.lastArgs) != 3 || q.lastArgs[0] != "AJ" || q.lastArgs[1] != 2026 {
		t.Errorf("expected sequence row (AJ, 2026), got %v", q.lastArgs)
	}

	// Second call is served from memory, DB untouched.
	num, err = svc.GetNextFolio(ctx, cfg, opts, period)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "AJ-2026-00002" {
		t.Errorf("expected AJ-2026-00002, got %s", num)
	}
	if q.currentValue != 10 {
		t.Errorf("expected DB value to stay 10, got %d", q.currentValue)
	}

	// Exhaust the range; the next call re-fills from DB (11..20).
	for i := 0; i < 8; i++ {
		_, _ = svc.GetNextFolio(ctx, cfg, opts, period)
	}

	num, err = svc.GetNextFolio(ctx, cfg, opts, period)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "AJ-2026-00011" {
		t.Errorf("expected AJ-2026-00011, got %s", num)
	}
	if q.currentValue != 20 {
		t.Errorf("expected DB value to be 20, got %d", q.currentValue)
	}
}

func TestGetNextFolio_NeverResetUsesYearZeroRow(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	ctx := context.Background()

	cfg := corefolio.DefaultConfig("SN")
	cfg.ResetPeriod = "never"

	_, err := svc.GetNextFolio(ctx, cfg, nil, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(q.lastArgs) != 2 || q.lastArgs[0] != "SN" || q.lastArgs[1] != 0 {
		t.Errorf("expected sequence row (SN, 0), got %v", q.lastArgs)
	}

	// A later year hits the same row, so numbering continues.
	num, err := svc.GetNextFolio(ctx, cfg, nil, time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "SN-2027-00002" {
		t.Errorf("expected SN-2027-00002, got %s", num)
	}
}

func TestSetNextFolio_DropsCachedRange(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	ctx := context.Background()
	cfg := corefolio.DefaultConfig("AJ")
	period := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	opts := &corefolio.Options{Strategy: corefolio.StrategyCached, RangeSize: 10}

	if _, err := svc.GetNextFolio(ctx, cfg, opts, period); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before := q.queries

	if err := svc.SetNextFolio(ctx, cfg, period, 500); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The in-memory range was dropped: the next cached call must go back
	// to the database instead of serving the pre-migration block.
	if _, err := svc.GetNextFolio(ctx, cfg, opts, period); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.queries != before+2 {
		t.Errorf("expected 2 queries after SetNextFolio, got %d", q.queries-before)
	}
}
