package ledger

import (
	"context"
	"time"

	"comercia/internal/core/id"
	"comercia/internal/core/types"
)

// Repository defines persistence for movement rows.
// Movements are append-only; there is no Update or Delete.
type Repository interface {
	// Insert appends one movement row.
	Insert(ctx context.Context, m *Movement) error

	// InsertBatch appends many movement rows with COPY.
	InsertBatch(ctx context.Context, movements []*Movement) error

	// GetByID retrieves a single movement.
	GetByID(ctx context.Context, id id.ID) (*Movement, error)

	// History lists movements newest-first according to the filter.
	History(ctx context.Context, filter HistoryFilter) ([]*Movement, error)

	// SumByProduct returns the signed sum of all movements for a product,
	// optionally up to a cutoff date. Used for kardex reconstruction and
	// balance verification.
	SumByProduct(ctx context.Context, productID id.ID, until *time.Time) (types.Quantity, error)

	// Turnover aggregates inbound/outbound volume per product in a period.
	Turnover(ctx context.Context, from, to time.Time) ([]*TurnoverRow, error)
}
