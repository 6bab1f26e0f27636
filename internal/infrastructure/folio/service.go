// Package folio numbers documents out of the sys_folios table. It implements
// the core/folio.Generator interface.
package folio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	corefolio "comercia/internal/core/folio"
	"comercia/internal/core/tenant"
)

// Querier interface for database operations.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type cachedRange struct {
	current int64
	max     int64
}

// Service numbers documents against sys_folios, keyed (sequence_type, year).
// In Database-per-Tenant mode the querier is obtained from context.
type Service struct {
	// staticQuerier serves single-tenant mode and tests
	staticQuerier Querier
	// useContext indicates whether to get the querier from context
	useContext bool

	// cacheMu protects ranges
	cacheMu sync.Mutex
	// ranges holds the in-memory allocations for the cached strategy.
	// In multi-tenant mode keys carry the tenant ID so a shared Service
	// instance never mixes tenants.
	ranges map[string]*cachedRange
}

// Ensure compile-time interface compliance.
var _ corefolio.Generator = (*Service)(nil)

// New creates a folio service with a static querier.
// Use for single-tenant or testing scenarios.
func New(querier Querier) *Service {
	return &Service{
		staticQuerier: querier,
		useContext:    false,
		ranges:        make(map[string]*cachedRange),
	}
}

// NewFromContext creates a folio service that gets the querier from context.
// Use for Database-per-Tenant architecture.
func NewFromContext() *Service {
	return &Service{
		useContext: true,
		ranges:     make(map[string]*cachedRange),
	}
}

func (s *Service) getQuerier(ctx context.Context) Querier {
	if s.useContext {
		// Folio allocation intentionally runs outside of business transactions
		// so a rolled-back document never blocks the sequence row.
		return tenant.MustGetPool(ctx)
	}
	return s.staticQuerier
}

// GetNextFolio generates the next document folio.
// Pattern: PREFIX-YEAR-XXXXX (e.g., OC-2026-00001)
//
// Supports Strict (DB-level) and Cached (memory-range) strategies.
func (s *Service) GetNextFolio(ctx context.Context, cfg corefolio.Config, opts *corefolio.Options, period time.Time) (string, error) {
	if s == nil {
		return "", fmt.Errorf("folio service is not initialized")
	}

	if opts == nil {
		opts = corefolio.DefaultOptions()
	}

	seqType, year := sequenceKey(cfg, period)

	var num int64
	var err error
	switch opts.Strategy {
	case corefolio.StrategyCached:
		num, err = s.getNextCached(ctx, seqType, year, s.cacheKey(ctx, seqType, year), opts)
	case corefolio.StrategyStrict:
		fallthrough
	default:
		num, err = s.getNextStrict(ctx, seqType, year)
	}

	if err != nil {
		return "", err
	}

	return s.formatFolio(cfg, period, num), nil
}

// getNextStrict claims the next number straight from the sequence row.
func (s *Service) getNextStrict(ctx context.Context, seqType string, year int) (int64, error) {
	var num int64
	err := s.getQuerier(ctx).QueryRow(ctx, `
        INSERT INTO sys_folios (sequence_type, year, current_val)
        VALUES ($1, $2, 1)
        ON CONFLICT (sequence_type, year) DO UPDATE SET current_val = sys_folios.current_val + 1
        RETURNING current_val
	`, seqType, year).Scan(&num)
	if err != nil {
		return 0, fmt.Errorf("strict next: %w", err)
	}
	return num, nil
}

// getNextCached serves numbers from memory, claiming a fresh block from the
// sequence row whenever the current one runs out.
func (s *Service) getNextCached(ctx context.Context, seqType string, year int, cacheKey string, opts *corefolio.Options) (int64, error) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	rng, exists := s.ranges[cacheKey]
	if !exists {
		rng = &cachedRange{}
		s.ranges[cacheKey] = rng
	}

	if rng.current >= rng.max {
		size := opts.RangeSize
		if size <= 0 {
			size = 50 // default
		}

		var newMax int64
		err := s.getQuerier(ctx).QueryRow(ctx, `
            INSERT INTO sys_folios (sequence_type, year, current_val)
            VALUES ($1, $2, $3)
            ON CONFLICT (sequence_type, year) DO UPDATE SET current_val = sys_folios.current_val + $3
            RETURNING current_val
		`, seqType, year, size).Scan(&newMax)
		if err != nil {
			return 0, fmt.Errorf("reserve range: %w", err)
		}

		// newMax is the end of our block; current sits one before the
		// first valid number.
		rng.current = newMax - size
		rng.max = newMax
	}

	rng.current++
	return rng.current, nil
}

// SetNextFolio sets the sequence value directly (for migration purposes) and
// drops any cached range so stale numbers are never handed out afterwards.
func (s *Service) SetNextFolio(ctx context.Context, cfg corefolio.Config, period time.Time, value int64) error {
	seqType, year := sequenceKey(cfg, period)

	var result int64
	err := s.getQuerier(ctx).QueryRow(ctx, `
        INSERT INTO sys_folios (sequence_type, year, current_val)
        VALUES ($1, $2, $3)
        ON CONFLICT (sequence_type, year) DO UPDATE SET current_val = $3
        RETURNING current_val
	`, seqType, year, value).Scan(&result)

	s.cacheMu.Lock()
	delete(s.ranges, s.cacheKey(ctx, seqType, year))
	s.cacheMu.Unlock()

	return err
}

// cacheKey names the in-memory range for one sequence row, tenant-qualified
// in multi-tenant mode.
func (s *Service) cacheKey(ctx context.Context, seqType string, year int) string {
	key := fmt.Sprintf("%s:%d", seqType, year)
	if s.useContext {
		if tenantID := tenant.GetTenantID(ctx); tenantID != "" {
			key = fmt.Sprintf("%s:%s", tenantID, key)
		}
	}
	return key
}

// sequenceKey maps a config and period onto a sys_folios row. Sequences that
// never reset live on the year-zero row.
func sequenceKey(cfg corefolio.Config, period time.Time) (string, int) {
	if cfg.ResetPeriod == "never" {
		return cfg.Prefix, 0
	}
	return cfg.Prefix, period.Year()
}

// formatFolio creates the final folio string.
func (s *Service) formatFolio(cfg corefolio.Config, period time.Time, num int64) string {
	padWidth := cfg.PadWidth
	if padWidth == 0 {
		padWidth = 5
	}

	if cfg.IncludeYear {
		return fmt.Sprintf("%s-%s-%0*d", cfg.Prefix, period.Format("2006"), padWidth, num)
	}
	return fmt.Sprintf("%s-%0*d", cfg.Prefix, padWidth, num)
}

// ParseFolio extracts the numeric part from a formatted folio.
// Returns -1 if parsing fails.
func ParseFolio(formatted string) int64 {
	var num int64
	patterns := []string{
		"%*[^-]-%*d-%d",
		"%*[^-]-%d",
	}

	for _, pattern := range patterns {
		if _, err := fmt.Sscanf(formatted, pattern, &num); err == nil {
			return num
		}
	}

	return -1
}
