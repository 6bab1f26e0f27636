// Package purchaseorder provides the Purchase Order document
// (doc_ordenes_compra) and its receiving lifecycle.
package purchaseorder

import (
	"context"
	"time"

	"comercia/internal/core/apperror"
	"comercia/internal/core/entity"
	"comercia/internal/core/id"
	"comercia/internal/core/types"
)

// Order states, persisted in doc_ordenes_compra.estado.
const (
	EstadoBorrador            = "borrador"
	EstadoPendienteAprobacion = "pendiente_aprobacion"
	EstadoEnviada             = "enviada"
	EstadoParcial             = "parcial"
	EstadoRecibida            = "recibida"
	EstadoCancelada           = "cancelada"
)

// Payment states, persisted in doc_ordenes_compra.estado_pago.
const (
	PagoPendiente = "pendiente"
	PagoParcial   = "parcial"
	PagoPagada    = "pagada"
)

// Item states, persisted in doc_ordenes_compra_items.estado.
const (
	ItemPendiente = "pendiente"
	ItemParcial   = "parcial"
	ItemCompleto  = "completo"
	ItemCancelado = "cancelado"
)

// TaxRate is the VAT rate applied to order subtotals.
var TaxRate = types.MustMoney("0.16")

// PurchaseOrder represents a purchase order document.
type PurchaseOrder struct {
	entity.Document
	entity.CurrencyAware

	SupplierID id.ID `db:"proveedor_id" json:"supplierId"`
	SucursalID id.ID `db:"sucursal_id" json:"sucursalId"`

	// ExpectedDate is the promised delivery date
	ExpectedDate *time.Time `db:"fecha_esperada" json:"expectedDate,omitempty"`

	EstadoPago string `db:"estado_pago" json:"estadoPago"`

	Subtotal   types.Money `db:"subtotal" json:"subtotal"`
	Impuestos  types.Money `db:"impuestos" json:"impuestos"`
	Total      types.Money `db:"total" json:"total"`
	MontoPagado types.Money `db:"monto_pagado" json:"montoPagado"`

	Items []OrderItem `db:"-" json:"items"`
}

// OrderItem is one line of a purchase order.
type OrderItem struct {
	ID      id.ID `db:"id" json:"id"`
	OrderID id.ID `db:"orden_id" json:"orderId"`
	LineNo  int   `db:"linea" json:"lineNo"`

	ProductID id.ID `db:"producto_id" json:"productId"`

	Ordered  types.Quantity `db:"cantidad_ordenada" json:"ordered"`
	Received types.Quantity `db:"cantidad_recibida" json:"received"`

	UnitPrice types.Money `db:"precio_unitario" json:"unitPrice"`
	Estado    string      `db:"estado" json:"estado"`
}

// Pending returns the quantity still awaiting receipt.
func (it *OrderItem) Pending() types.Quantity {
	return it.Ordered.Sub(it.Received)
}

// Receipt records one receiving action for one line (doc_ordenes_compra_recepciones).
type Receipt struct {
	ID         id.ID          `db:"id" json:"id"`
	OrderID    id.ID          `db:"orden_id" json:"orderId"`
	ItemID     id.ID          `db:"item_id" json:"itemId"`
	Quantity   types.Quantity `db:"cantidad" json:"quantity"`
	UnitCost   types.Money    `db:"costo_unitario" json:"unitCost"`
	LocationID *id.ID         `db:"ubicacion_id" json:"locationId,omitempty"`
	Lot        *string        `db:"lote" json:"lot,omitempty"`
	MovementID id.ID          `db:"movimiento_id" json:"movementId"`
	ReceivedBy string         `db:"recibido_por" json:"receivedBy"`
	ReceivedAt time.Time      `db:"recibido_en" json:"receivedAt"`
}

// NewPurchaseOrder creates a draft purchase order.
func NewPurchaseOrder(supplierID, sucursalID id.ID, currency string) *PurchaseOrder {
	po := &PurchaseOrder{
		Document:   entity.NewDocument(EstadoBorrador),
		SupplierID: supplierID,
		SucursalID: sucursalID,
		EstadoPago: PagoPendiente,
		Items:      make([]OrderItem, 0),
	}
	po.Currency = currency
	return po
}

// Validate implements entity.Validatable.
func (po *PurchaseOrder) Validate(ctx context.Context) error {
	if id.IsNil(po.SupplierID) {
		return apperror.NewValidation("supplier is required").
			WithDetail("field", "supplierId")
	}
	if id.IsNil(po.SucursalID) {
		return apperror.NewValidation("sucursal is required").
			WithDetail("field", "sucursalId")
	}
	if err := po.ValidateCurrency(); err != nil {
		return err
	}
	for i := range po.Items {
		it := &po.Items[i]
		if id.IsNil(it.ProductID) {
			return apperror.NewValidation("item product is required").
				WithDetail("line", it.LineNo)
		}
		if !it.Ordered.IsPositive() {
			return apperror.NewValidation("item quantity must be positive").
				WithDetail("line", it.LineNo)
		}
		if it.UnitPrice.IsNegative() {
			return apperror.NewValidation("item price cannot be negative").
				WithDetail("line", it.LineNo)
		}
	}
	return nil
}

// AddItem appends a line and recalculates totals. Only draft orders accept
// new lines.
func (po *PurchaseOrder) AddItem(productID id.ID, qty types.Quantity, unitPrice types.Money) *OrderItem {
	item := OrderItem{
		ID:        id.New(),
		OrderID:   po.ID,
		LineNo:    len(po.Items) + 1,
		ProductID: productID,
		Ordered:   qty,
		UnitPrice: unitPrice,
		Estado:    ItemPendiente,
	}
	po.Items = append(po.Items, item)
	po.RecalculateTotals()
	return &po.Items[len(po.Items)-1]
}

// RemoveItem drops a line by number and renumbers the rest.
func (po *PurchaseOrder) RemoveItem(lineNo int) bool {
	for i := range po.Items {
		if po.Items[i].LineNo == lineNo {
			po.Items = append(po.Items[:i], po.Items[i+1:]...)
			for j := range po.Items {
				po.Items[j].LineNo = j + 1
			}
			po.RecalculateTotals()
			return true
		}
	}
	return false
}

// ItemByID finds a line by its id.
func (po *PurchaseOrder) ItemByID(itemID id.ID) *OrderItem {
	for i := range po.Items {
		if po.Items[i].ID == itemID {
			return &po.Items[i]
		}
	}
	return nil
}

// RecalculateTotals recomputes subtotal, tax and total from the lines.
// Cancelled lines do not contribute.
func (po *PurchaseOrder) RecalculateTotals() {
	subtotal := types.Zero()
	for i := range po.Items {
		it := &po.Items[i]
		if it.Estado == ItemCancelado {
			continue
		}
		subtotal = subtotal.Add(it.UnitPrice.Mul(it.Ordered.Decimal()))
	}
	po.Subtotal = subtotal
	po.Impuestos = subtotal.Mul(TaxRate).Round(2)
	po.Total = po.Subtotal.Add(po.Impuestos)
}

// ActiveItems returns the lines that still count toward receiving.
func (po *PurchaseOrder) ActiveItems() []*OrderItem {
	var out []*OrderItem
	for i := range po.Items {
		if po.Items[i].Estado != ItemCancelado {
			out = append(out, &po.Items[i])
		}
	}
	return out
}

// FullyReceived reports whether every active line is complete.
func (po *PurchaseOrder) FullyReceived() bool {
	active := po.ActiveItems()
	if len(active) == 0 {
		return false
	}
	for _, it := range active {
		if it.Estado != ItemCompleto {
			return false
		}
	}
	return true
}

// AnyReceived reports whether at least one unit has been received.
func (po *PurchaseOrder) AnyReceived() bool {
	for i := range po.Items {
		if po.Items[i].Received.IsPositive() {
			return true
		}
	}
	return false
}

// RegisterPayment applies a payment amount and derives estado_pago.
func (po *PurchaseOrder) RegisterPayment(amount types.Money) error {
	if !amount.IsPositive() {
		return apperror.NewValidation("payment amount must be positive").
			WithDetail("field", "amount")
	}
	paid := po.MontoPagado.Add(amount)
	if paid.GreaterThan(po.Total) {
		return apperror.NewValidation("payment exceeds order total").
			WithDetail("total", po.Total.String()).
			WithDetail("paid", po.MontoPagado.String()).
			WithDetail("amount", amount.String())
	}
	po.MontoPagado = paid
	if paid.Equal(po.Total) {
		po.EstadoPago = PagoPagada
	} else {
		po.EstadoPago = PagoParcial
	}
	return nil
}
