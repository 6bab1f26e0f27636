package product

import (
	"context"

	"comercia/internal/core/id"
	"comercia/internal/core/types"
	"comercia/internal/domain"
)

// Repository defines the interface for Product persistence.
type Repository interface {
	domain.CatalogRepository[*Product]

	// FindBySKU retrieves product by SKU.
	FindBySKU(ctx context.Context, sku string) (*Product, error)

	// FindByBarcode retrieves product by barcode.
	FindByBarcode(ctx context.Context, barcode string) (*Product, error)

	// FindBySKUOrBarcode resolves a raw code to a product, used by bulk
	// adjustment validation. Returns all matches so callers can reject
	// ambiguous codes.
	FindBySKUOrBarcode(ctx context.Context, code string) ([]*Product, error)

	// GetForUpdate retrieves product with row lock. This is the lock the
	// stock mutation primitive serializes on.
	GetForUpdate(ctx context.Context, id id.ID) (*Product, error)

	// UpdateStock writes stock_actual and, when cost is non-nil,
	// costo_unitario. Reserved for the ledger service.
	UpdateStock(ctx context.Context, id id.ID, stock types.Quantity, cost *types.Money) error

	// FindLowStock retrieves items with stock at or below minimum.
	FindLowStock(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*Product], error)
}
