package dto

import (
	"time"

	"comercia/internal/core/apperror"
	"comercia/internal/core/id"
	"comercia/internal/core/types"
	purchaseorder "comercia/internal/domain/documents/purchase_order"
)

// --- Request DTOs ---

// CreatePurchaseOrderRequest represents a request to create a purchase order.
type CreatePurchaseOrderRequest struct {
	SupplierID   string                     `json:"supplierId" binding:"required"`
	SucursalID   string                     `json:"sucursalId" binding:"required"`
	Currency     string                     `json:"currency,omitempty"`
	Date         *time.Time                 `json:"date,omitempty"`
	ExpectedDate *time.Time                 `json:"expectedDate,omitempty"`
	Comment      string                     `json:"comment,omitempty"`
	Items        []PurchaseOrderItemRequest `json:"items" binding:"required,min=1,dive"`
}

// PurchaseOrderItemRequest represents a line in a create/update request.
type PurchaseOrderItemRequest struct {
	ProductID string         `json:"productId" binding:"required"`
	Quantity  types.Quantity `json:"quantity" binding:"required"`
	UnitPrice types.Money    `json:"unitPrice"`
}

// ToEntity converts request to domain entity.
func (r *CreatePurchaseOrderRequest) ToEntity() (*purchaseorder.PurchaseOrder, error) {
	supplierID, err := id.Parse(r.SupplierID)
	if err != nil {
		return nil, apperror.NewValidation("invalid supplier id").
			WithDetail("field", "supplierId")
	}
	sucursalID, err := id.Parse(r.SucursalID)
	if err != nil {
		return nil, apperror.NewValidation("invalid sucursal id").
			WithDetail("field", "sucursalId")
	}

	currency := r.Currency
	if currency == "" {
		currency = "MXN"
	}

	po := purchaseorder.NewPurchaseOrder(supplierID, sucursalID, currency)
	if r.Date != nil {
		po.Date = *r.Date
	}
	po.ExpectedDate = r.ExpectedDate
	po.Comment = r.Comment

	for _, item := range r.Items {
		productID, err := id.Parse(item.ProductID)
		if err != nil {
			return nil, apperror.NewValidation("invalid item product id").
				WithDetail("field", "items.productId").
				WithDetail("value", item.ProductID)
		}
		po.AddItem(productID, item.Quantity, item.UnitPrice)
	}

	return po, nil
}

// UpdatePurchaseOrderRequest represents a request to update a draft order.
type UpdatePurchaseOrderRequest struct {
	SupplierID   *string                    `json:"supplierId,omitempty"`
	Currency     *string                    `json:"currency,omitempty"`
	Date         *time.Time                 `json:"date,omitempty"`
	ExpectedDate *time.Time                 `json:"expectedDate,omitempty"`
	Comment      *string                    `json:"comment,omitempty"`
	Items        []PurchaseOrderItemRequest `json:"items,omitempty"`
	Version      int                        `json:"version" binding:"required,min=1"`
}

// ApplyTo applies updates to an existing entity.
func (r *UpdatePurchaseOrderRequest) ApplyTo(po *purchaseorder.PurchaseOrder) error {
	if r.SupplierID != nil {
		supplierID, err := id.Parse(*r.SupplierID)
		if err != nil {
			return apperror.NewValidation("invalid supplier id").
				WithDetail("field", "supplierId")
		}
		po.SupplierID = supplierID
	}
	if r.Currency != nil {
		po.Currency = *r.Currency
	}
	if r.Date != nil {
		po.Date = *r.Date
	}
	if r.ExpectedDate != nil {
		po.ExpectedDate = r.ExpectedDate
	}
	if r.Comment != nil {
		po.Comment = *r.Comment
	}

	// If items are provided, rebuild them
	if r.Items != nil {
		po.Items = po.Items[:0]
		for _, item := range r.Items {
			productID, err := id.Parse(item.ProductID)
			if err != nil {
				return apperror.NewValidation("invalid item product id").
					WithDetail("field", "items.productId").
					WithDetail("value", item.ProductID)
			}
			po.AddItem(productID, item.Quantity, item.UnitPrice)
		}
	}

	po.Version = r.Version
	return nil
}

// ReceiveRequest records a receiving action against order lines.
type ReceiveRequest struct {
	Receipts []ReceiptLineRequest `json:"receipts" binding:"required,min=1,dive"`
}

// ReceiptLineRequest is one received line.
type ReceiptLineRequest struct {
	ItemID     string         `json:"itemId" binding:"required"`
	Quantity   types.Quantity `json:"quantity" binding:"required"`
	UnitCost   *types.Money   `json:"unitCost,omitempty"`
	LocationID *string        `json:"locationId,omitempty"`
	Lot        *string        `json:"lot,omitempty"`
}

// ToInputs converts the request to service receipt inputs.
func (r *ReceiveRequest) ToInputs() ([]purchaseorder.ReceiptInput, error) {
	inputs := make([]purchaseorder.ReceiptInput, 0, len(r.Receipts))
	for _, line := range r.Receipts {
		itemID, err := id.Parse(line.ItemID)
		if err != nil {
			return nil, apperror.NewValidation("invalid item id").
				WithDetail("field", "receipts.itemId").
				WithDetail("value", line.ItemID)
		}

		in := purchaseorder.ReceiptInput{
			ItemID:   itemID,
			Quantity: line.Quantity,
			UnitCost: line.UnitCost,
			Lot:      line.Lot,
		}
		if line.LocationID != nil {
			locationID, err := id.Parse(*line.LocationID)
			if err != nil {
				return nil, apperror.NewValidation("invalid location id").
					WithDetail("field", "receipts.locationId").
					WithDetail("value", *line.LocationID)
			}
			in.LocationID = &locationID
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

// PaymentRequest records a payment against an order.
type PaymentRequest struct {
	Amount types.Money `json:"amount" binding:"required"`
}

// AddItemRequest appends one line to a draft order.
type AddItemRequest struct {
	ProductID string         `json:"productId" binding:"required"`
	Quantity  types.Quantity `json:"quantity" binding:"required"`
	UnitPrice types.Money    `json:"unitPrice"`
}
