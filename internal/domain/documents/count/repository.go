package count

import (
	"context"

	"comercia/internal/core/id"
	"comercia/internal/core/types"
	"comercia/internal/domain"
)

// Repository defines persistence for count documents.
// GetByID and GetForUpdate load the document with its items.
type Repository interface {
	Create(ctx context.Context, c *Count) error

	GetByID(ctx context.Context, id id.ID) (*Count, error)

	// GetForUpdate locks the count header.
	GetForUpdate(ctx context.Context, id id.ID) (*Count, error)

	Update(ctx context.Context, c *Count) error

	// InsertItems writes the materialized scope snapshot in bulk.
	InsertItems(ctx context.Context, items []CountItem) error

	UpdateItem(ctx context.Context, item *CountItem) error

	List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*Count], error)
}

// ScopeProduct is one product materialized into a count.
type ScopeProduct struct {
	ProductID   id.ID          `db:"producto_id"`
	StockActual types.Quantity `db:"stock_actual"`
	UnitCost    types.Money    `db:"costo_unitario"`
}

// ScopeResolver materializes the product set a count covers. Implemented in
// the storage layer; random sampling and category subtrees are SQL concerns.
type ScopeResolver interface {
	Resolve(ctx context.Context, c *Count) ([]ScopeProduct, error)
}
