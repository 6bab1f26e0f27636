package dto

import (
	"comercia/internal/core/entity"
	"comercia/internal/core/types"
	"comercia/internal/domain/catalogs/product"
)

// --- Request DTOs ---

// CreateProductRequest represents a request to create a product.
type CreateProductRequest struct {
	Code          string            `json:"code"`
	Name          string            `json:"name" binding:"required"`
	SKU           string            `json:"sku"`
	Barcode       *string           `json:"barcode,omitempty"`
	UnitOfMeasure string            `json:"unitOfMeasure,omitempty"`
	StockMinimo   types.Quantity    `json:"stockMinimo,omitempty"`
	StockMaximo   types.Quantity    `json:"stockMaximo,omitempty"`
	CostoUnitario types.Money       `json:"costoUnitario,omitempty"`
	PrecioVenta   types.Money       `json:"precioVenta,omitempty"`
	TrackLots     bool              `json:"trackLots,omitempty"`
	Description   *string           `json:"description,omitempty"`
	ParentID      *string           `json:"parentId,omitempty"`
	IsFolder      bool              `json:"isFolder,omitempty"`
	Attributes    entity.Attributes `json:"attributes,omitempty"`
}

// ToEntity converts request to domain entity.
func (r *CreateProductRequest) ToEntity() *product.Product {
	p := product.NewProduct(r.Code, r.Name, r.SKU)
	p.Barcode = r.Barcode
	if r.UnitOfMeasure != "" {
		p.UnitOfMeasure = r.UnitOfMeasure
	}
	p.StockMinimo = r.StockMinimo
	p.StockMaximo = r.StockMaximo
	p.CostoUnitario = r.CostoUnitario
	p.PrecioVenta = r.PrecioVenta
	p.TrackLots = r.TrackLots
	p.Description = r.Description
	p.ParentID = r.ParentID
	p.IsFolder = r.IsFolder
	p.Attributes = r.Attributes
	return p
}

// UpdateProductRequest represents a request to update a product.
// Stock fields are absent on purpose: stock_actual belongs to the ledger.
type UpdateProductRequest struct {
	Code          *string           `json:"code,omitempty"`
	Name          *string           `json:"name,omitempty"`
	SKU           *string           `json:"sku,omitempty"`
	Barcode       *string           `json:"barcode,omitempty"`
	UnitOfMeasure *string           `json:"unitOfMeasure,omitempty"`
	StockMinimo   *types.Quantity   `json:"stockMinimo,omitempty"`
	StockMaximo   *types.Quantity   `json:"stockMaximo,omitempty"`
	PrecioVenta   *types.Money      `json:"precioVenta,omitempty"`
	TrackLots     *bool             `json:"trackLots,omitempty"`
	IsActive      *bool             `json:"isActive,omitempty"`
	Description   *string           `json:"description,omitempty"`
	ParentID      *string           `json:"parentId,omitempty"`
	Attributes    entity.Attributes `json:"attributes,omitempty"`
	Version       int               `json:"version" binding:"required,min=1"`
}

// ApplyTo applies updates to an existing entity.
func (r *UpdateProductRequest) ApplyTo(p *product.Product) {
	if r.Code != nil {
		p.Code = *r.Code
	}
	if r.Name != nil {
		p.Name = *r.Name
	}
	if r.SKU != nil {
		p.SKU = *r.SKU
	}
	if r.Barcode != nil {
		p.Barcode = r.Barcode
	}
	if r.UnitOfMeasure != nil {
		p.UnitOfMeasure = *r.UnitOfMeasure
	}
	if r.StockMinimo != nil {
		p.StockMinimo = *r.StockMinimo
	}
	if r.StockMaximo != nil {
		p.StockMaximo = *r.StockMaximo
	}
	if r.PrecioVenta != nil {
		p.PrecioVenta = *r.PrecioVenta
	}
	if r.TrackLots != nil {
		p.TrackLots = *r.TrackLots
	}
	if r.IsActive != nil {
		p.IsActive = *r.IsActive
	}
	if r.Description != nil {
		p.Description = r.Description
	}
	if r.ParentID != nil {
		p.ParentID = r.ParentID
	}
	if r.Attributes != nil {
		p.Attributes = r.Attributes
	}
	p.Version = r.Version
}
