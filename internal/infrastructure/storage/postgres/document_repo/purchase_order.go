package document_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"comercia/internal/core/apperror"
	"comercia/internal/core/id"
	"comercia/internal/domain"
	purchaseorder "comercia/internal/domain/documents/purchase_order"
	"comercia/internal/infrastructure/storage/postgres"
)

const (
	purchaseOrderTable        = "doc_ordenes_compra"
	purchaseOrderItemsTable   = "doc_orden_compra_items"
	purchaseOrderReceiptTable = "doc_orden_compra_recepciones"
)

var purchaseOrderItemCols = []string{
	"id", "orden_id", "linea", "producto_id",
	"cantidad_ordenada", "cantidad_recibida", "precio_unitario", "estado",
}

var purchaseOrderReceiptCols = []string{
	"id", "orden_id", "item_id", "cantidad", "costo_unitario",
	"ubicacion_id", "lote", "movimiento_id", "recibido_por", "recibido_en",
}

// PurchaseOrderRepo implements purchaseorder.Repository.
// Headers live in doc_ordenes_compra; GetByID, GetByFolio and GetForUpdate
// hydrate the item set.
type PurchaseOrderRepo struct {
	*BaseDocumentRepo[*purchaseorder.PurchaseOrder]
}

// NewPurchaseOrderRepo creates a new purchase order repository.
func NewPurchaseOrderRepo() *PurchaseOrderRepo {
	return &PurchaseOrderRepo{
		BaseDocumentRepo: NewBaseDocumentRepo[*purchaseorder.PurchaseOrder](
			purchaseOrderTable,
			postgres.ExtractDBColumns[purchaseorder.PurchaseOrder](),
			func() *purchaseorder.PurchaseOrder { return &purchaseorder.PurchaseOrder{} },
		),
	}
}

// Create inserts the header and its items in one shot.
func (r *PurchaseOrderRepo) Create(ctx context.Context, po *purchaseorder.PurchaseOrder) error {
	if err := r.BaseDocumentRepo.Create(ctx, po); err != nil {
		return err
	}
	return r.insertItems(ctx, po.ID, po.Items)
}

// GetByID retrieves an order with its items.
func (r *PurchaseOrderRepo) GetByID(ctx context.Context, orderID id.ID) (*purchaseorder.PurchaseOrder, error) {
	po, err := r.BaseDocumentRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return po, r.loadItems(ctx, po)
}

// GetByFolio retrieves an order by folio with its items.
func (r *PurchaseOrderRepo) GetByFolio(ctx context.Context, folio string) (*purchaseorder.PurchaseOrder, error) {
	po, err := r.BaseDocumentRepo.GetByFolio(ctx, folio)
	if err != nil {
		return nil, err
	}
	return po, r.loadItems(ctx, po)
}

// GetForUpdate locks the header and loads the items.
func (r *PurchaseOrderRepo) GetForUpdate(ctx context.Context, orderID id.ID) (*purchaseorder.PurchaseOrder, error) {
	po, err := r.BaseDocumentRepo.GetForUpdate(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return po, r.loadItems(ctx, po)
}

// Update persists the header and replaces the item set.
func (r *PurchaseOrderRepo) Update(ctx context.Context, po *purchaseorder.PurchaseOrder) error {
	if err := r.BaseDocumentRepo.Update(ctx, po); err != nil {
		return err
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	deleteSQL := "DELETE FROM " + purchaseOrderItemsTable + " WHERE orden_id = $1"
	if _, err := querier.Exec(ctx, deleteSQL, po.ID); err != nil {
		return fmt.Errorf("delete existing items: %w", err)
	}

	return r.insertItems(ctx, po.ID, po.Items)
}

// UpdateItem persists one line without touching the rest.
func (r *PurchaseOrderRepo) UpdateItem(ctx context.Context, item *purchaseorder.OrderItem) error {
	q := r.Builder().
		Update(purchaseOrderItemsTable).
		Set("cantidad_recibida", item.Received).
		Set("estado", item.Estado).
		Where(squirrel.Eq{"id": item.ID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update item: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	result, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("order item", item.ID.String())
	}
	return nil
}

// AddReceipt appends one receiving audit row.
func (r *PurchaseOrderRepo) AddReceipt(ctx context.Context, rec *purchaseorder.Receipt) error {
	q := r.Builder().
		Insert(purchaseOrderReceiptTable).
		Columns(purchaseOrderReceiptCols...).
		Values(
			rec.ID, rec.OrderID, rec.ItemID, rec.Quantity, rec.UnitCost,
			rec.LocationID, rec.Lot, rec.MovementID, rec.ReceivedBy, rec.ReceivedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert receipt: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert receipt: %w", err)
	}
	return nil
}

// ListReceipts returns the receiving history of an order, oldest first.
func (r *PurchaseOrderRepo) ListReceipts(ctx context.Context, orderID id.ID) ([]*purchaseorder.Receipt, error) {
	q := r.Builder().
		Select(purchaseOrderReceiptCols...).
		From(purchaseOrderReceiptTable).
		Where(squirrel.Eq{"orden_id": orderID}).
		OrderBy("recibido_en")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var receipts []*purchaseorder.Receipt
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &receipts, sql, args...); err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	return receipts, nil
}

// List pages orders; items are not hydrated for listings.
func (r *PurchaseOrderRepo) List(ctx context.Context, f domain.ListFilter) (domain.ListResult[*purchaseorder.PurchaseOrder], error) {
	return r.BaseDocumentRepo.List(ctx, f)
}

func (r *PurchaseOrderRepo) loadItems(ctx context.Context, po *purchaseorder.PurchaseOrder) error {
	q := r.Builder().
		Select(purchaseOrderItemCols...).
		From(purchaseOrderItemsTable).
		Where(squirrel.Eq{"orden_id": po.ID}).
		OrderBy("linea")

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	var items []purchaseorder.OrderItem
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &items, sql, args...); err != nil {
		return fmt.Errorf("load items: %w", err)
	}
	po.Items = items
	return nil
}

func (r *PurchaseOrderRepo) insertItems(ctx context.Context, orderID id.ID, items []purchaseorder.OrderItem) error {
	if len(items) == 0 {
		return nil
	}

	q := r.Builder().
		Insert(purchaseOrderItemsTable).
		Columns(purchaseOrderItemCols...)

	for _, item := range items {
		q = q.Values(
			item.ID, orderID, item.LineNo, item.ProductID,
			item.Ordered, item.Received, item.UnitPrice, item.Estado,
		)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert items: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert items: %w", err)
	}
	return nil
}

// Ensure interface compliance.
var _ purchaseorder.Repository = (*PurchaseOrderRepo)(nil)
