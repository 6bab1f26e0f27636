package purchaseorder

import (
	"context"

	"comercia/internal/core/id"
	"comercia/internal/domain"
)

// Repository defines persistence for purchase orders.
// GetByID and GetForUpdate load the document with its items.
type Repository interface {
	Create(ctx context.Context, po *PurchaseOrder) error

	GetByID(ctx context.Context, id id.ID) (*PurchaseOrder, error)

	GetByFolio(ctx context.Context, folio string) (*PurchaseOrder, error)

	// GetForUpdate locks the order header; receiving, approval and
	// cancellation serialize on it.
	GetForUpdate(ctx context.Context, id id.ID) (*PurchaseOrder, error)

	// Update persists the header and replaces the item set.
	Update(ctx context.Context, po *PurchaseOrder) error

	// UpdateItem persists one line without touching the rest.
	UpdateItem(ctx context.Context, item *OrderItem) error

	// AddReceipt appends one receiving audit row.
	AddReceipt(ctx context.Context, r *Receipt) error

	// ListReceipts returns the receiving history of an order.
	ListReceipts(ctx context.Context, orderID id.ID) ([]*Receipt, error)

	// List pages orders according to the filter.
	List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*PurchaseOrder], error)
}
