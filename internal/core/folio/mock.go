// Package folio provides domain contracts for document folio numbering.
package folio

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// MockGenerator is a test implementation of Generator.
// Use in unit tests to avoid database dependencies.
type MockGenerator struct {
	GetNextFolioFunc func(ctx context.Context, cfg Config, opts *Options, period time.Time) (string, error)
	SetNextFolioFunc func(ctx context.Context, cfg Config, period time.Time, value int64) error

	counter int64
}

// GetNextFolio implements Generator.
func (m *MockGenerator) GetNextFolio(ctx context.Context, cfg Config, opts *Options, period time.Time) (string, error) {
	if m.GetNextFolioFunc != nil {
		return m.GetNextFolioFunc(ctx, cfg, opts, period)
	}
	// Default: predictable sequence per mock instance
	n := atomic.AddInt64(&m.counter, 1)
	return fmt.Sprintf("%s-%d-%05d", cfg.Prefix, period.Year(), n), nil
}

// SetNextFolio implements Generator.
func (m *MockGenerator) SetNextFolio(ctx context.Context, cfg Config, period time.Time, value int64) error {
	if m.SetNextFolioFunc != nil {
		return m.SetNextFolioFunc(ctx, cfg, period, value)
	}
	return nil
}

// Ensure compile-time interface compliance.
var _ Generator = (*MockGenerator)(nil)
