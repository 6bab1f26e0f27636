package dto

import (
	"comercia/internal/core/apperror"
	"comercia/internal/core/id"
	"comercia/internal/core/types"
	"comercia/internal/domain/documents/count"
)

// --- Request DTOs ---

// CreateCountRequest represents a request to create a physical count.
type CreateCountRequest struct {
	Tipo       string   `json:"tipo" binding:"required"`
	SucursalID string   `json:"sucursalId" binding:"required"`
	CategoryID *string  `json:"categoryId,omitempty"`
	LocationID *string  `json:"locationId,omitempty"`
	ProductIDs []string `json:"productIds,omitempty"`
	SampleSize int      `json:"sampleSize,omitempty"`
	Comment    string   `json:"comment,omitempty"`
}

// ToEntity converts request to domain entity.
func (r *CreateCountRequest) ToEntity() (*count.Count, error) {
	sucursalID, err := id.Parse(r.SucursalID)
	if err != nil {
		return nil, apperror.NewValidation("invalid sucursal id").
			WithDetail("field", "sucursalId")
	}

	c := count.NewCount(count.CountType(r.Tipo), sucursalID)
	c.SampleSize = r.SampleSize
	c.Comment = r.Comment

	if r.CategoryID != nil {
		categoryID, err := id.Parse(*r.CategoryID)
		if err != nil {
			return nil, apperror.NewValidation("invalid category id").
				WithDetail("field", "categoryId")
		}
		c.CategoryID = &categoryID
	}
	if r.LocationID != nil {
		locationID, err := id.Parse(*r.LocationID)
		if err != nil {
			return nil, apperror.NewValidation("invalid location id").
				WithDetail("field", "locationId")
		}
		c.LocationID = &locationID
	}
	for _, raw := range r.ProductIDs {
		productID, err := id.Parse(raw)
		if err != nil {
			return nil, apperror.NewValidation("invalid product id").
				WithDetail("field", "productIds").
				WithDetail("value", raw)
		}
		c.ProductIDs = append(c.ProductIDs, productID)
	}

	return c, nil
}

// RegisterCountRequest records a counted quantity for one line.
type RegisterCountRequest struct {
	LineNo   int            `json:"lineNo" binding:"required,min=1"`
	Quantity types.Quantity `json:"quantity"`
}
