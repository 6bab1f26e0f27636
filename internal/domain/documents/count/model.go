// Package count provides the Physical Count document (doc_conteos).
// A count snapshots system stock for a scope of products, collects counted
// quantities, and settles the differences through adjustment movements.
package count

import (
	"context"
	"time"

	"comercia/internal/core/apperror"
	"comercia/internal/core/entity"
	"comercia/internal/core/id"
	"comercia/internal/core/types"
)

// Count states, persisted in doc_conteos.estado.
const (
	EstadoBorrador   = "borrador"
	EstadoEnProceso  = "en_proceso"
	EstadoCompletado = "completado"
	EstadoAjustado   = "ajustado"
	EstadoCancelado  = "cancelado"
)

// Item states, persisted in doc_conteos_items.estado.
const (
	ItemPendiente = "pendiente"
	ItemContado   = "contado"
	ItemAjustado  = "ajustado"
)

// CountType selects how the item scope is materialized.
type CountType string

const (
	TipoTotal     CountType = "total"
	TipoCategoria CountType = "categoria"
	TipoUbicacion CountType = "ubicacion"
	TipoCiclico   CountType = "ciclico"
	TipoAleatorio CountType = "aleatorio"
)

// Count represents a physical count document.
type Count struct {
	entity.Document

	Tipo       CountType `db:"tipo" json:"tipo"`
	SucursalID id.ID     `db:"sucursal_id" json:"sucursalId"`

	// Scope refs; which ones apply depends on Tipo.
	CategoryID *id.ID  `db:"categoria_id" json:"categoryId,omitempty"`
	LocationID *id.ID  `db:"ubicacion_id" json:"locationId,omitempty"`
	ProductIDs []id.ID `db:"productos_alcance" json:"productIds,omitempty"`
	SampleSize int     `db:"tamano_muestra" json:"sampleSize,omitempty"`

	StartedAt   *time.Time `db:"iniciado_en" json:"startedAt,omitempty"`
	CompletedAt *time.Time `db:"completado_en" json:"completedAt,omitempty"`

	// Totals (calculated)
	TotalSistema    types.Quantity `db:"total_sistema" json:"totalSistema"`
	TotalContado    types.Quantity `db:"total_contado" json:"totalContado"`
	TotalDiferencia types.Quantity `db:"total_diferencia" json:"totalDiferencia"`

	Items []CountItem `db:"-" json:"items"`
}

// CountItem is one product line of a count.
type CountItem struct {
	ID      id.ID `db:"id" json:"id"`
	CountID id.ID `db:"conteo_id" json:"countId"`
	LineNo  int   `db:"linea" json:"lineNo"`

	ProductID id.ID `db:"producto_id" json:"productId"`

	// CantidadSistema is the stock snapshot taken when the count started.
	// The adjustment settles against it, not against live stock.
	CantidadSistema types.Quantity  `db:"cantidad_sistema" json:"cantidadSistema"`
	CantidadContada *types.Quantity `db:"cantidad_contada" json:"cantidadContada,omitempty"`
	Diferencia      types.Quantity  `db:"diferencia" json:"diferencia"`

	UnitCost types.Money `db:"costo_unitario" json:"unitCost"`
	Estado   string      `db:"estado" json:"estado"`

	MovementID *id.ID     `db:"movimiento_id" json:"movementId,omitempty"`
	CountedBy  string     `db:"contado_por" json:"countedBy,omitempty"`
	CountedAt  *time.Time `db:"contado_en" json:"countedAt,omitempty"`
}

// NewCount creates a draft count document.
func NewCount(tipo CountType, sucursalID id.ID) *Count {
	return &Count{
		Document:   entity.NewDocument(EstadoBorrador),
		Tipo:       tipo,
		SucursalID: sucursalID,
		Items:      make([]CountItem, 0),
	}
}

// Validate implements entity.Validatable.
func (c *Count) Validate(ctx context.Context) error {
	if id.IsNil(c.SucursalID) {
		return apperror.NewValidation("sucursal is required").
			WithDetail("field", "sucursalId")
	}
	switch c.Tipo {
	case TipoTotal:
	case TipoCategoria:
		if c.CategoryID == nil {
			return apperror.NewValidation("category is required for a category count").
				WithDetail("field", "categoryId")
		}
	case TipoUbicacion:
		if c.LocationID == nil {
			return apperror.NewValidation("location is required for a location count").
				WithDetail("field", "locationId")
		}
	case TipoCiclico:
		if len(c.ProductIDs) == 0 {
			return apperror.NewValidation("product list is required for a cycle count").
				WithDetail("field", "productIds")
		}
	case TipoAleatorio:
		if c.SampleSize <= 0 {
			return apperror.NewValidation("sample size must be positive").
				WithDetail("field", "sampleSize")
		}
	default:
		return apperror.NewValidation("unknown count type").
			WithDetail("field", "tipo").
			WithDetail("value", string(c.Tipo))
	}
	return nil
}

// ItemByLine finds an item by its line number.
func (c *Count) ItemByLine(lineNo int) *CountItem {
	for i := range c.Items {
		if c.Items[i].LineNo == lineNo {
			return &c.Items[i]
		}
	}
	return nil
}

// PendingLines returns the line numbers still awaiting a count.
func (c *Count) PendingLines() []int {
	var pending []int
	for i := range c.Items {
		if c.Items[i].Estado == ItemPendiente {
			pending = append(pending, c.Items[i].LineNo)
		}
	}
	return pending
}

// RecalculateTotals recomputes the counted totals from the items.
func (c *Count) RecalculateTotals() {
	var system, counted, diff types.Quantity
	for i := range c.Items {
		it := &c.Items[i]
		system = system.Add(it.CantidadSistema)
		if it.CantidadContada != nil {
			counted = counted.Add(*it.CantidadContada)
			diff = diff.Add(it.Diferencia)
		}
	}
	c.TotalSistema = system
	c.TotalContado = counted
	c.TotalDiferencia = diff
}
