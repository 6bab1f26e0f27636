// Package ledger implements the inventory movement ledger backed by
// mov_inventario. Every change to a product's aggregate stock flows through
// Service.Apply, which appends exactly one immutable movement row and updates
// the denormalized stock_actual in the same transaction. Committed rows are
// never updated or deleted; mistakes are corrected with compensating
// movements.
package ledger

import (
	"time"

	"comercia/internal/core/apperror"
	"comercia/internal/core/id"
	"comercia/internal/core/types"
)

// MovementType classifies a movement and determines its sign.
// Values are persisted as-is in mov_inventario.tipo_movimiento.
type MovementType string

const (
	EntradaCompra        MovementType = "entrada_compra"
	EntradaAjuste        MovementType = "entrada_ajuste"
	EntradaDevolucion    MovementType = "entrada_devolucion"
	EntradaTransferencia MovementType = "entrada_transferencia"
	EntradaInicial       MovementType = "entrada_inicial"
	SalidaVenta          MovementType = "salida_venta"
	SalidaAjuste         MovementType = "salida_ajuste"
	SalidaMerma          MovementType = "salida_merma"
	SalidaTransferencia  MovementType = "salida_transferencia"
)

// Sign returns +1 for inbound types and -1 for outbound types.
func (t MovementType) Sign() int {
	switch t {
	case EntradaCompra, EntradaAjuste, EntradaDevolucion, EntradaTransferencia, EntradaInicial:
		return 1
	case SalidaVenta, SalidaAjuste, SalidaMerma, SalidaTransferencia:
		return -1
	}
	return 0
}

// IsInbound reports whether the type increases stock.
func (t MovementType) IsInbound() bool { return t.Sign() > 0 }

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool { return t.Sign() != 0 }

// AllowsForcedCorrection reports whether the type may bring a negative
// aggregate back toward zero. Count adjustments repair drift; no type may
// take the aggregate below zero.
func (t MovementType) AllowsForcedCorrection() bool {
	return t == EntradaAjuste || t == SalidaAjuste
}

// SourceType identifies the document kind that originated a movement.
type SourceType string

const (
	SourcePurchaseOrder  SourceType = "orden_compra"
	SourcePhysicalCount  SourceType = "conteo_fisico"
	SourceBulkAdjustment SourceType = "ajuste_masivo"
	SourceReservation    SourceType = "reserva"
	SourceTransfer       SourceType = "traspaso"
	SourceManual         SourceType = "manual"
)

// Movement is one immutable row of the inventory ledger.
type Movement struct {
	ID           id.ID          `db:"id" json:"id"`
	ProductID    id.ID          `db:"producto_id" json:"productId"`
	Type         MovementType   `db:"tipo_movimiento" json:"type"`
	Quantity     types.Quantity `db:"cantidad" json:"quantity"`
	UnitCost     types.Money    `db:"costo_unitario" json:"unitCost"`
	TotalValue   types.Money    `db:"valor_total" json:"totalValue"`
	StockBefore  types.Quantity `db:"stock_antes" json:"stockBefore"`
	StockAfter   types.Quantity `db:"stock_despues" json:"stockAfter"`
	LocationID   *id.ID         `db:"ubicacion_id" json:"locationId,omitempty"`
	Lot          *string        `db:"lote" json:"lot,omitempty"`
	SourceType   *SourceType    `db:"origen_tipo" json:"sourceType,omitempty"`
	SourceID     *id.ID         `db:"origen_id" json:"sourceId,omitempty"`
	SourceFolio  *string        `db:"origen_folio" json:"sourceFolio,omitempty"`
	Comment      string         `db:"comentario" json:"comment,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"createdAt"`
	CreatedBy    string         `db:"created_by" json:"createdBy,omitempty"`
}

// ApplyInput parameterizes the stock mutation primitive.
type ApplyInput struct {
	ProductID id.ID
	Type      MovementType

	// Quantity is always positive; the direction comes from Type.Sign().
	Quantity types.Quantity

	// UnitCost values the movement. Zero falls back to the product's
	// current costo_unitario.
	UnitCost types.Money

	// LocationID, when set, also moves the per-location bucket.
	LocationID *id.ID
	Lot        *string

	SourceType  *SourceType
	SourceID    *id.ID
	SourceFolio *string
	Comment     string

	// AllowNegativeCorrection lets adjustment types repair an already
	// negative aggregate. The result still may not be negative.
	AllowNegativeCorrection bool
}

// Validate checks structural invariants before touching the database.
func (in ApplyInput) Validate() error {
	if id.IsNil(in.ProductID) {
		return apperror.NewValidation("product id is required").
			WithDetail("field", "productId")
	}
	if !in.Type.Valid() {
		return apperror.NewValidation("unknown movement type").
			WithDetail("field", "type").
			WithDetail("value", string(in.Type))
	}
	if !in.Quantity.IsPositive() {
		return apperror.NewValidation("quantity must be positive").
			WithDetail("field", "quantity")
	}
	if in.UnitCost.IsNegative() {
		return apperror.NewValidation("unit cost cannot be negative").
			WithDetail("field", "unitCost")
	}
	return nil
}

// HistoryFilter narrows ledger history queries.
type HistoryFilter struct {
	ProductID  *id.ID
	LocationID *id.ID
	Types      []MovementType
	SourceType *SourceType
	SourceID   *id.ID
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

// BalanceReport is the result of a signed-sum verification.
type BalanceReport struct {
	ProductID   id.ID          `json:"productId"`
	StockActual types.Quantity `json:"stockActual"`
	LedgerSum   types.Quantity `json:"ledgerSum"`
	Consistent  bool           `json:"consistent"`
}

// TurnoverRow aggregates movement volume per product for a period.
type TurnoverRow struct {
	ProductID id.ID          `db:"producto_id" json:"productId"`
	Inbound   types.Quantity `db:"entradas" json:"inbound"`
	Outbound  types.Quantity `db:"salidas" json:"outbound"`
	Value     types.Money    `db:"valor" json:"value"`
}
