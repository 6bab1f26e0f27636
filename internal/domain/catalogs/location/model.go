// Package location provides the warehouse Location catalog (cat_ubicaciones)
// and the per-location stock model (stock_ubicaciones).
//
// Locations form a tree per sucursal (zone -> aisle -> shelf -> bin); both
// interior and leaf nodes may hold stock. The sum of all location stock for a
// product must never exceed the product's aggregate stock.
package location

import (
	"context"
	"time"

	"comercia/internal/core/apperror"
	"comercia/internal/core/entity"
	"comercia/internal/core/id"
	"comercia/internal/core/types"
)

// LocationType defines the level of a location in the tree.
type LocationType string

const (
	TypeZone  LocationType = "zona"
	TypeAisle LocationType = "pasillo"
	TypeShelf LocationType = "estante"
	TypeBin   LocationType = "contenedor"
)

// Location represents a physical storage location within a sucursal.
type Location struct {
	entity.Catalog

	// SucursalID is the branch this location belongs to
	SucursalID id.ID `db:"sucursal_id" json:"sucursalId"`

	// Type defines the tree level
	Type LocationType `db:"tipo" json:"type"`

	// Capacity is the maximum number of stock units this location holds
	// (0 = unlimited)
	Capacity types.Quantity `db:"capacidad" json:"capacity"`

	// Occupied is the currently occupied capacity counter
	Occupied types.Quantity `db:"ocupado" json:"occupied"`

	// EsPicking marks the location as a picking face
	EsPicking bool `db:"es_picking" json:"esPicking"`

	// EsRecepcion marks the location as a receiving dock
	EsRecepcion bool `db:"es_recepcion" json:"esRecepcion"`

	// Bloqueada blocks all stock operations on the location
	Bloqueada bool `db:"bloqueada" json:"bloqueada"`
}

// NewLocation creates a new Location with required fields.
func NewLocation(code, name string, sucursalID id.ID, locType LocationType) *Location {
	return &Location{
		Catalog:    entity.NewCatalog(code, name),
		SucursalID: sucursalID,
		Type:       locType,
	}
}

// Validate implements entity.Validatable interface.
func (l *Location) Validate(ctx context.Context) error {
	if err := l.Catalog.Validate(ctx); err != nil {
		return err
	}

	if id.IsNil(l.SucursalID) {
		return apperror.NewValidation("sucursal is required").
			WithDetail("field", "sucursalId")
	}

	if !isValidLocationType(l.Type) {
		return apperror.NewValidation("invalid location type").
			WithDetail("field", "type").
			WithDetail("value", string(l.Type))
	}

	if l.Capacity.IsNegative() {
		return apperror.NewValidation("capacity cannot be negative").
			WithDetail("field", "capacity")
	}

	return nil
}

// CanHoldStock reports whether stock operations are allowed here.
func (l *Location) CanHoldStock() bool {
	return !l.Bloqueada && !l.DeletionMark
}

// HasCapacityFor reports whether qty more units fit into this location.
func (l *Location) HasCapacityFor(qty types.Quantity) bool {
	if l.Capacity.IsZero() {
		return true // unlimited
	}
	return !l.Capacity.LessThan(l.Occupied.Add(qty))
}

func isValidLocationType(t LocationType) bool {
	switch t {
	case TypeZone, TypeAisle, TypeShelf, TypeBin:
		return true
	}
	return false
}

// LocationStock is one (location, product, lot) stock bucket.
type LocationStock struct {
	LocationID id.ID          `db:"ubicacion_id" json:"locationId"`
	ProductID  id.ID          `db:"producto_id" json:"productId"`
	Lot        *string        `db:"lote" json:"lot,omitempty"`
	Expiry     *time.Time     `db:"caducidad" json:"expiry,omitempty"`
	Quantity   types.Quantity `db:"cantidad" json:"quantity"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updatedAt"`
}
