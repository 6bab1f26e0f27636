package location

import (
	"context"

	"comercia/internal/core/id"
	"comercia/internal/core/types"
	"comercia/internal/domain"
)

// Repository defines the interface for Location persistence.
type Repository interface {
	domain.CatalogRepository[*Location]

	// GetForUpdate retrieves location with row lock.
	GetForUpdate(ctx context.Context, id id.ID) (*Location, error)

	// FindByCodeInSucursal resolves a location code within one sucursal,
	// used by bulk adjustment validation.
	FindByCodeInSucursal(ctx context.Context, sucursalID id.ID, code string) (*Location, error)

	// GetDescendants returns the location and all locations under it.
	GetDescendants(ctx context.Context, rootID id.ID) ([]*Location, error)

	// FindWithCapacity returns unblocked locations in a sucursal that can
	// hold at least qty more units, preferring picking locations.
	FindWithCapacity(ctx context.Context, sucursalID id.ID, qty types.Quantity) ([]*Location, error)

	// AdjustOccupied increments or decrements the occupied-capacity counter.
	AdjustOccupied(ctx context.Context, locationID id.ID, delta types.Quantity) error
}

// StockRepository defines the interface for per-location stock persistence.
type StockRepository interface {
	// GetForUpdate reads one stock bucket with a row lock, returning a
	// zero-quantity bucket if none exists yet.
	GetForUpdate(ctx context.Context, locationID, productID id.ID, lot *string) (*LocationStock, error)

	// Upsert inserts or increments a stock bucket by delta. Negative deltas
	// decrement; callers must hold the row lock and verify sufficiency first.
	Upsert(ctx context.Context, locationID, productID id.ID, lot *string, delta types.Quantity) error

	// ListByLocation returns all stock buckets in a location.
	ListByLocation(ctx context.Context, locationID id.ID) ([]*LocationStock, error)

	// ListByProduct returns all stock buckets holding a product.
	ListByProduct(ctx context.Context, productID id.ID) ([]*LocationStock, error)

	// TotalByProduct returns the sum of location stock for a product.
	TotalByProduct(ctx context.Context, productID id.ID) (types.Quantity, error)
}
