package reservation

import (
	"context"
	"time"

	"comercia/internal/core/id"
	"comercia/internal/core/types"
)

// Repository defines persistence for stock holds.
type Repository interface {
	Create(ctx context.Context, r *Reservation) error

	GetByID(ctx context.Context, id id.ID) (*Reservation, error)

	// GetForUpdate retrieves a reservation with a row lock. Confirm and
	// Cancel serialize on it.
	GetForUpdate(ctx context.Context, id id.ID) (*Reservation, error)

	// Update persists estado transitions and movement links.
	Update(ctx context.Context, r *Reservation) error

	// SumActive returns the total quantity of holds that still count
	// against availability: estado activa and expira_en after now.
	SumActive(ctx context.Context, productID id.ID, now time.Time) (types.Quantity, error)

	// ListByProduct lists all holds for a product, newest first.
	ListByProduct(ctx context.Context, productID id.ID) ([]*Reservation, error)

	// ListByOrigin lists holds created by a document.
	ListByOrigin(ctx context.Context, originType OriginType, originID id.ID) ([]*Reservation, error)

	// ExpireOverdue flips activa holds past their deadline to expirada
	// and returns how many rows changed.
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}
