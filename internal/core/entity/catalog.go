package entity

import (
	"context"

	"comercia/internal/core/apperror"
)

// Catalog is the shared shape of reference data: products, locations
// and the other lookup tables.
type Catalog struct {
	BaseCatalog

	// Code is the human-readable identifier, unique per tenant database.
	// Empty at creation means the folio service assigns one on save.
	Code string `db:"code" json:"code"`

	// Name is the display name.
	Name string `db:"name" json:"name"`

	// ParentID links into the catalog hierarchy, nil for roots.
	ParentID *string `db:"parent_id" json:"parentId,omitempty"`

	// IsFolder marks grouping nodes that hold no data of their own.
	IsFolder bool `db:"is_folder" json:"isFolder"`
}

// NewCatalog builds a catalog entity with a generated ID.
func NewCatalog(code, name string) Catalog {
	return Catalog{
		BaseCatalog: NewBaseCatalog(),
		Code:        code,
		Name:        name,
	}
}

// Validate implements Validatable. Code is allowed to be empty here
// because it may be auto-assigned.
func (c *Catalog) Validate(ctx context.Context) error {
	if c.Name == "" {
		return apperror.NewValidation("name is required").
			WithDetail("field", "name")
	}
	return nil
}

// SetParent sets or clears the parent reference.
func (c *Catalog) SetParent(parentID string) {
	if parentID == "" {
		c.ParentID = nil
	} else {
		c.ParentID = &parentID
	}
}

// IsRoot reports whether the catalog sits at the top of the hierarchy.
func (c *Catalog) IsRoot() bool {
	return c.ParentID == nil || *c.ParentID == ""
}
