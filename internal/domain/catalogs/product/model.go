// Package product provides the Product catalog backed by cat_productos.
// Products carry the denormalized aggregate stock (stock_actual), which is
// authoritative for availability but derived: it must always equal the signed
// sum of the product's ledger rows and is only ever written by the stock
// mutation primitive.
package product

import (
	"context"

	"comercia/internal/core/apperror"
	"comercia/internal/core/entity"
	"comercia/internal/core/types"
)

// Product represents a sellable or stockable item.
type Product struct {
	entity.Catalog

	// SKU is the stock-keeping unit, unique per tenant
	SKU string `db:"sku" json:"sku"`

	// Barcode is the item barcode (EAN-13, etc.)
	Barcode *string `db:"codigo_barras" json:"barcode,omitempty"`

	// UnitOfMeasure is the display unit (pieza, kg, caja, ...)
	UnitOfMeasure string `db:"unidad_medida" json:"unitOfMeasure"`

	// StockActual is the aggregate stock cache. Never write it directly;
	// the ledger service owns this column.
	StockActual types.Quantity `db:"stock_actual" json:"stockActual"`

	// StockMinimo triggers low-stock alerts
	StockMinimo types.Quantity `db:"stock_minimo" json:"stockMinimo"`

	// StockMaximo caps replenishment suggestions
	StockMaximo types.Quantity `db:"stock_maximo" json:"stockMaximo"`

	// CostoUnitario is the current unit cost, updated on receiving
	CostoUnitario types.Money `db:"costo_unitario" json:"costoUnitario"`

	// PrecioVenta is the list sale price
	PrecioVenta types.Money `db:"precio_venta" json:"precioVenta"`

	// TrackLots indicates if location stock is broken down by lot
	TrackLots bool `db:"maneja_lotes" json:"trackLots"`

	// IsActive indicates if the product can be sold or received
	IsActive bool `db:"activo" json:"isActive"`

	// Description is a detailed description
	Description *string `db:"descripcion" json:"description,omitempty"`
}

// NewProduct creates a new Product with required fields.
func NewProduct(code, name, sku string) *Product {
	return &Product{
		Catalog:       entity.NewCatalog(code, name),
		SKU:           sku,
		UnitOfMeasure: "pieza",
		IsActive:      true,
	}
}

// Validate implements entity.Validatable interface.
func (p *Product) Validate(ctx context.Context) error {
	if err := p.Catalog.Validate(ctx); err != nil {
		return err
	}

	if p.SKU == "" && !p.IsFolder {
		return apperror.NewValidation("sku is required").
			WithDetail("field", "sku")
	}

	if p.StockMinimo.IsNegative() || p.StockMaximo.IsNegative() {
		return apperror.NewValidation("stock thresholds cannot be negative").
			WithDetail("field", "stockMinimo")
	}

	if !p.StockMaximo.IsZero() && p.StockMaximo.LessThan(p.StockMinimo) {
		return apperror.NewValidation("stock_maximo cannot be below stock_minimo").
			WithDetail("field", "stockMaximo")
	}

	if p.CostoUnitario.IsNegative() || p.PrecioVenta.IsNegative() {
		return apperror.NewValidation("prices cannot be negative").
			WithDetail("field", "costoUnitario")
	}

	return nil
}

// IsLowStock reports whether the aggregate stock is at or below the minimum.
func (p *Product) IsLowStock() bool {
	if p.StockMinimo.IsZero() {
		return false
	}
	return !p.StockMinimo.LessThan(p.StockActual)
}

// CanMoveStock reports whether stock mutations are allowed for this product.
func (p *Product) CanMoveStock() bool {
	return p.IsActive && !p.IsFolder && !p.DeletionMark
}
