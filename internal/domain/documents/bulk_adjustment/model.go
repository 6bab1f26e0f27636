// Package bulkadjustment provides the CSV-driven bulk stock adjustment
// pipeline (doc_ajustes_masivos). Partial failure is first class: a batch
// with bad rows still applies its good rows, and every rejected row carries
// a typed reason.
package bulkadjustment

import (
	"context"
	"time"

	"comercia/internal/core/apperror"
	"comercia/internal/core/entity"
	"comercia/internal/core/id"
	"comercia/internal/core/types"
)

// Header states, persisted in doc_ajustes_masivos.estado.
const (
	EstadoPendiente  = "pendiente"
	EstadoValidado   = "validado"
	EstadoAplicado   = "aplicado"
	EstadoConErrores = "con_errores"
)

// Item states, persisted in doc_ajustes_masivos_items.estado.
const (
	ItemPendiente = "pendiente"
	ItemValido    = "valido"
	ItemError     = "error"
	ItemAplicado  = "aplicado"
)

// Item error codes.
const (
	ErrQuantityInvalid  = "cantidad_invalida"
	ErrQuantityZero     = "cantidad_cero"
	ErrProductNotFound  = "producto_no_encontrado"
	ErrProductAmbiguous = "producto_ambiguo"
	ErrLocationNotFound = "ubicacion_no_encontrada"
	ErrNegativeStock    = "stock_negativo"
	ErrApplyFailed      = "error_aplicacion"
)

// BulkAdjustment is the header of one uploaded batch.
type BulkAdjustment struct {
	entity.Document

	SucursalID id.ID `db:"sucursal_id" json:"sucursalId"`

	// FileName is the uploaded file name, kept for traceability.
	FileName string `db:"nombre_archivo" json:"fileName,omitempty"`

	// Counters (derived from items)
	TotalItems   int `db:"total_items" json:"totalItems"`
	ValidItems   int `db:"items_validos" json:"validItems"`
	ErrorItems   int `db:"items_error" json:"errorItems"`
	AppliedItems int `db:"items_aplicados" json:"appliedItems"`

	AppliedAt *time.Time `db:"aplicado_en" json:"appliedAt,omitempty"`

	Items []BulkItem `db:"-" json:"items"`
}

// BulkItem is one CSV row. Raw fields survive as uploaded so a rejected row
// can be shown back to the user exactly as they wrote it.
type BulkItem struct {
	ID           id.ID `db:"id" json:"id"`
	AdjustmentID id.ID `db:"ajuste_id" json:"adjustmentId"`
	LineNo       int   `db:"linea" json:"lineNo"`

	// Raw CSV fields
	SKUOrBarcode string `db:"sku_o_barcode" json:"skuOrBarcode"`
	QuantityRaw  string `db:"cantidad_str" json:"quantityRaw"`
	Reason       string `db:"motivo" json:"reason,omitempty"`
	LocationCode string `db:"codigo_ubicacion" json:"locationCode,omitempty"`

	// Resolved during validation
	ProductID    *id.ID         `db:"producto_id" json:"productId,omitempty"`
	LocationID   *id.ID         `db:"ubicacion_id" json:"locationId,omitempty"`
	Quantity     types.Quantity `db:"cantidad" json:"quantity"`
	StockBefore  types.Quantity `db:"stock_antes" json:"stockBefore"`
	StockAfter   types.Quantity `db:"stock_despues" json:"stockAfter"`
	ValorAjuste  types.Money    `db:"valor_ajuste" json:"valorAjuste"`

	Estado       string `db:"estado" json:"estado"`
	ErrorCode    string `db:"codigo_error" json:"errorCode,omitempty"`
	ErrorMessage string `db:"mensaje_error" json:"errorMessage,omitempty"`

	MovementID *id.ID `db:"movimiento_id" json:"movementId,omitempty"`
}

// MarkError records a typed rejection on the item.
func (it *BulkItem) MarkError(code, message string) {
	it.Estado = ItemError
	it.ErrorCode = code
	it.ErrorMessage = message
}

// NewBulkAdjustment creates a pending batch header.
func NewBulkAdjustment(sucursalID id.ID, fileName string) *BulkAdjustment {
	return &BulkAdjustment{
		Document:   entity.NewDocument(EstadoPendiente),
		SucursalID: sucursalID,
		FileName:   fileName,
		Items:      make([]BulkItem, 0),
	}
}

// Validate implements entity.Validatable.
func (b *BulkAdjustment) Validate(ctx context.Context) error {
	if id.IsNil(b.SucursalID) {
		return apperror.NewValidation("sucursal is required").
			WithDetail("field", "sucursalId")
	}
	if len(b.Items) == 0 {
		return apperror.NewValidation("batch has no rows")
	}
	return nil
}

// RecalculateCounters recomputes the header counters from the items.
func (b *BulkAdjustment) RecalculateCounters() {
	b.TotalItems = len(b.Items)
	b.ValidItems = 0
	b.ErrorItems = 0
	b.AppliedItems = 0
	for i := range b.Items {
		switch b.Items[i].Estado {
		case ItemValido:
			b.ValidItems++
		case ItemError:
			b.ErrorItems++
		case ItemAplicado:
			b.AppliedItems++
		}
	}
}

// Report is the structured outcome of applying a batch.
type Report struct {
	AdjustmentID id.ID         `json:"adjustmentId"`
	Folio        string        `json:"folio"`
	Estado       string        `json:"estado"`
	Applied      int           `json:"applied"`
	Errors       []ReportError `json:"errors,omitempty"`
}

// ReportError describes one rejected row.
type ReportError struct {
	LineNo       int    `json:"lineNo"`
	SKUOrBarcode string `json:"skuOrBarcode"`
	Code         string `json:"code"`
	Message      string `json:"message"`
}
