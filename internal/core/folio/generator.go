// Package folio provides domain contracts for document folio numbering.
// Implementations live in infrastructure layer.
package folio

import (
	"context"
	"time"
)

// Generator generates sequential document folios.
// This is the domain contract - implementations live in infrastructure layer.
//
// In Database-per-Tenant architecture, implementations should obtain
// database connections from context using tenant.GetPool or tenant.GetTxManager.
type Generator interface {
	// GetNextFolio generates the next document folio.
	// Pattern: PREFIX-YEAR-XXXXX (e.g., OC-2026-00001)
	//
	// Supports Strict (DB-level) and Cached (Memory-level) strategies.
	GetNextFolio(ctx context.Context, cfg Config, opts *Options, period time.Time) (string, error)

	// SetNextFolio sets the next number value (for migration purposes).
	SetNextFolio(ctx context.Context, cfg Config, period time.Time, value int64) error
}
