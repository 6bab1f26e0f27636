package dto

import (
	"comercia/internal/core/apperror"
	"comercia/internal/core/entity"
	"comercia/internal/core/id"
	"comercia/internal/core/types"
	"comercia/internal/domain/catalogs/location"
)

// --- Request DTOs ---

// CreateLocationRequest represents a request to create a storage location.
type CreateLocationRequest struct {
	Code        string            `json:"code"`
	Name        string            `json:"name" binding:"required"`
	SucursalID  string            `json:"sucursalId" binding:"required"`
	Type        string            `json:"type" binding:"required"`
	Capacity    types.Quantity    `json:"capacity,omitempty"`
	EsPicking   bool              `json:"esPicking,omitempty"`
	EsRecepcion bool              `json:"esRecepcion,omitempty"`
	ParentID    *string           `json:"parentId,omitempty"`
	IsFolder    bool              `json:"isFolder,omitempty"`
	Attributes  entity.Attributes `json:"attributes,omitempty"`
}

// ToEntity converts request to domain entity.
func (r *CreateLocationRequest) ToEntity() (*location.Location, error) {
	sucursalID, err := id.Parse(r.SucursalID)
	if err != nil {
		return nil, apperror.NewValidation("invalid sucursal id").
			WithDetail("field", "sucursalId")
	}

	loc := location.NewLocation(r.Code, r.Name, sucursalID, location.LocationType(r.Type))
	loc.Capacity = r.Capacity
	loc.EsPicking = r.EsPicking
	loc.EsRecepcion = r.EsRecepcion
	loc.ParentID = r.ParentID
	loc.IsFolder = r.IsFolder
	loc.Attributes = r.Attributes
	return loc, nil
}

// UpdateLocationRequest represents a request to update a location.
type UpdateLocationRequest struct {
	Code        *string           `json:"code,omitempty"`
	Name        *string           `json:"name,omitempty"`
	Type        *string           `json:"type,omitempty"`
	Capacity    *types.Quantity   `json:"capacity,omitempty"`
	EsPicking   *bool             `json:"esPicking,omitempty"`
	EsRecepcion *bool             `json:"esRecepcion,omitempty"`
	Bloqueada   *bool             `json:"bloqueada,omitempty"`
	ParentID    *string           `json:"parentId,omitempty"`
	Attributes  entity.Attributes `json:"attributes,omitempty"`
	Version     int               `json:"version" binding:"required,min=1"`
}

// ApplyTo applies updates to an existing entity.
func (r *UpdateLocationRequest) ApplyTo(loc *location.Location) {
	if r.Code != nil {
		loc.Code = *r.Code
	}
	if r.Name != nil {
		loc.Name = *r.Name
	}
	if r.Type != nil {
		loc.Type = location.LocationType(*r.Type)
	}
	if r.Capacity != nil {
		loc.Capacity = *r.Capacity
	}
	if r.EsPicking != nil {
		loc.EsPicking = *r.EsPicking
	}
	if r.EsRecepcion != nil {
		loc.EsRecepcion = *r.EsRecepcion
	}
	if r.Bloqueada != nil {
		loc.Bloqueada = *r.Bloqueada
	}
	if r.ParentID != nil {
		loc.ParentID = r.ParentID
	}
	if r.Attributes != nil {
		loc.Attributes = r.Attributes
	}
	loc.Version = r.Version
}

// MoveStockRequest moves stock between two locations.
type MoveStockRequest struct {
	ProductID    string         `json:"productId" binding:"required"`
	FromLocation string         `json:"fromLocation" binding:"required"`
	ToLocation   string         `json:"toLocation" binding:"required"`
	Quantity     types.Quantity `json:"quantity" binding:"required"`
	Lot          *string        `json:"lot,omitempty"`
	RecordAudit  bool           `json:"recordAudit,omitempty"`
	Reference    string         `json:"reference,omitempty"`
}

// ToInput converts the request to a service input.
func (r *MoveStockRequest) ToInput() (location.MoveStockInput, error) {
	productID, err := id.Parse(r.ProductID)
	if err != nil {
		return location.MoveStockInput{}, apperror.NewValidation("invalid product id").
			WithDetail("field", "productId")
	}
	from, err := id.Parse(r.FromLocation)
	if err != nil {
		return location.MoveStockInput{}, apperror.NewValidation("invalid source location id").
			WithDetail("field", "fromLocation")
	}
	to, err := id.Parse(r.ToLocation)
	if err != nil {
		return location.MoveStockInput{}, apperror.NewValidation("invalid target location id").
			WithDetail("field", "toLocation")
	}

	return location.MoveStockInput{
		ProductID:    productID,
		FromLocation: from,
		ToLocation:   to,
		Quantity:     r.Quantity,
		Lot:          r.Lot,
		RecordAudit:  r.RecordAudit,
		Reference:    r.Reference,
	}, nil
}
