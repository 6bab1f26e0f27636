// Package reservation implements time-boxed stock holds (reservas_stock).
//
// A reservation does not move stock: the aggregate stays untouched while the
// hold is active, and availability is computed live as stock_actual minus the
// sum of active holds. Confirming a hold posts a sale movement through the
// ledger; expiry and cancellation simply release the hold.
package reservation

import (
	"context"
	"time"

	"comercia/internal/core/apperror"
	"comercia/internal/core/entity"
	"comercia/internal/core/id"
	"comercia/internal/core/types"
)

// Reservation states, persisted in reservas.estado.
const (
	EstadoActiva     = "activa"
	EstadoConfirmada = "confirmada"
	EstadoExpirada   = "expirada"
	EstadoCancelada  = "cancelada"
)

// OriginType identifies what requested the hold.
type OriginType string

const (
	OriginSalesOrder OriginType = "pedido_venta"
	OriginCart       OriginType = "carrito"
	OriginManual     OriginType = "manual"
)

// DefaultTTL applies when a reserve request does not specify one.
const DefaultTTL = 30 * time.Minute

// Reservation is one time-boxed stock hold.
type Reservation struct {
	entity.Document

	ProductID id.ID          `db:"producto_id" json:"productId"`
	Quantity  types.Quantity `db:"cantidad" json:"quantity"`

	// ExpiresAt bounds the hold; past it the hold no longer counts
	// against availability even before the sweep flips its estado.
	ExpiresAt time.Time `db:"expira_en" json:"expiresAt"`

	OriginType OriginType `db:"origen_tipo" json:"originType"`
	OriginID   *id.ID     `db:"origen_id" json:"originId,omitempty"`

	// MovementID links the sale movement posted on confirmation.
	MovementID *id.ID `db:"movimiento_id" json:"movementId,omitempty"`

	ConfirmedAt *time.Time `db:"confirmada_en" json:"confirmedAt,omitempty"`
	CancelledAt *time.Time `db:"cancelada_en" json:"cancelledAt,omitempty"`
}

// NewReservation creates an active hold expiring after ttl.
func NewReservation(productID id.ID, qty types.Quantity, origin OriginType, ttl time.Duration) *Reservation {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Reservation{
		Document:   entity.NewDocument(EstadoActiva),
		ProductID:  productID,
		Quantity:   qty,
		OriginType: origin,
		ExpiresAt:  time.Now().UTC().Add(ttl),
	}
}

// Validate implements entity.Validatable.
func (r *Reservation) Validate(ctx context.Context) error {
	if id.IsNil(r.ProductID) {
		return apperror.NewValidation("product is required").
			WithDetail("field", "productId")
	}
	if !r.Quantity.IsPositive() {
		return apperror.NewValidation("quantity must be positive").
			WithDetail("field", "quantity")
	}
	if r.OriginType == "" {
		return apperror.NewValidation("origin type is required").
			WithDetail("field", "originType")
	}
	return nil
}

// IsOverdue reports whether an active hold has outlived its TTL.
func (r *Reservation) IsOverdue(now time.Time) bool {
	return r.Estado == EstadoActiva && now.After(r.ExpiresAt)
}

// Availability is the live availability picture for one product.
type Availability struct {
	ProductID   id.ID          `json:"productId"`
	StockActual types.Quantity `json:"stockActual"`
	Reserved    types.Quantity `json:"reserved"`
	Available   types.Quantity `json:"available"`
}
