package bulkadjustment

import (
	"context"

	"comercia/internal/core/id"
	"comercia/internal/domain"
	"comercia/internal/domain/catalogs/location"
	"comercia/internal/domain/catalogs/product"
)

// Repository defines persistence for bulk adjustment batches.
// GetByID and GetForUpdate load the header with its items.
type Repository interface {
	Create(ctx context.Context, b *BulkAdjustment) error

	GetByID(ctx context.Context, id id.ID) (*BulkAdjustment, error)

	// GetForUpdate locks the header; validation and application
	// serialize on it.
	GetForUpdate(ctx context.Context, id id.ID) (*BulkAdjustment, error)

	Update(ctx context.Context, b *BulkAdjustment) error

	// InsertItems writes the parsed rows in bulk.
	InsertItems(ctx context.Context, items []BulkItem) error

	UpdateItem(ctx context.Context, item *BulkItem) error

	// Delete hard-deletes a batch and its items. Only batches that never
	// touched stock may be deleted.
	Delete(ctx context.Context, id id.ID) error

	List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*BulkAdjustment], error)
}

// ProductResolver resolves raw codes to products during validation.
type ProductResolver interface {
	// FindBySKUOrBarcode returns every product matching the code, so the
	// pipeline can distinguish unknown codes from ambiguous ones.
	FindBySKUOrBarcode(ctx context.Context, code string) ([]*product.Product, error)
}

// LocationResolver resolves location codes within a sucursal.
type LocationResolver interface {
	FindByCodeInSucursal(ctx context.Context, sucursalID id.ID, code string) (*location.Location, error)
}
