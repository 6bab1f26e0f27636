package document_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"comercia/internal/core/apperror"
	"comercia/internal/core/id"
	"comercia/internal/domain"
	bulkadjustment "comercia/internal/domain/documents/bulk_adjustment"
	"comercia/internal/infrastructure/storage/postgres"
)

const (
	bulkAdjustmentTable      = "doc_ajustes_masivos"
	bulkAdjustmentItemsTable = "doc_ajuste_masivo_items"
)

var bulkItemCols = []string{
	"id", "ajuste_id", "linea",
	"sku_o_barcode", "cantidad_str", "motivo", "codigo_ubicacion",
	"producto_id", "ubicacion_id", "cantidad", "stock_antes", "stock_despues",
	"valor_ajuste", "estado", "codigo_error", "mensaje_error", "movimiento_id",
}

// BulkAdjustmentRepo implements bulkadjustment.Repository.
type BulkAdjustmentRepo struct {
	*BaseDocumentRepo[*bulkadjustment.BulkAdjustment]
}

// NewBulkAdjustmentRepo creates a new bulk adjustment repository.
func NewBulkAdjustmentRepo() *BulkAdjustmentRepo {
	return &BulkAdjustmentRepo{
		BaseDocumentRepo: NewBaseDocumentRepo[*bulkadjustment.BulkAdjustment](
			bulkAdjustmentTable,
			postgres.ExtractDBColumns[bulkadjustment.BulkAdjustment](),
			func() *bulkadjustment.BulkAdjustment { return &bulkadjustment.BulkAdjustment{} },
		),
	}
}

// GetByID retrieves a batch with its items.
func (r *BulkAdjustmentRepo) GetByID(ctx context.Context, batchID id.ID) (*bulkadjustment.BulkAdjustment, error) {
	b, err := r.BaseDocumentRepo.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return b, r.loadItems(ctx, b)
}

// GetForUpdate locks the header and loads the items.
func (r *BulkAdjustmentRepo) GetForUpdate(ctx context.Context, batchID id.ID) (*bulkadjustment.BulkAdjustment, error) {
	b, err := r.BaseDocumentRepo.GetForUpdate(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return b, r.loadItems(ctx, b)
}

// InsertItems writes the parsed rows in bulk via COPY. Files run up to
// 10k rows, so a row-by-row insert is off the table.
func (r *BulkAdjustmentRepo) InsertItems(ctx context.Context, items []bulkadjustment.BulkItem) error {
	if len(items) == 0 {
		return nil
	}

	txm := r.getTxManager(ctx)
	inserter := postgres.NewBatchInserter(txm)

	rows := make([][]any, 0, len(items))
	for _, it := range items {
		rows = append(rows, []any{
			it.ID, it.AdjustmentID, it.LineNo,
			it.SKUOrBarcode, it.QuantityRaw, it.Reason, it.LocationCode,
			it.ProductID, it.LocationID, it.Quantity, it.StockBefore, it.StockAfter,
			it.ValorAjuste, it.Estado, it.ErrorCode, it.ErrorMessage, it.MovementID,
		})
	}

	if _, err := inserter.CopyFromSlice(ctx, bulkAdjustmentItemsTable, bulkItemCols, rows); err != nil {
		return fmt.Errorf("copy bulk items: %w", err)
	}
	return nil
}

// UpdateItem persists the validation or application outcome of one row.
func (r *BulkAdjustmentRepo) UpdateItem(ctx context.Context, item *bulkadjustment.BulkItem) error {
	q := r.Builder().
		Update(bulkAdjustmentItemsTable).
		Set("producto_id", item.ProductID).
		Set("ubicacion_id", item.LocationID).
		Set("cantidad", item.Quantity).
		Set("stock_antes", item.StockBefore).
		Set("stock_despues", item.StockAfter).
		Set("valor_ajuste", item.ValorAjuste).
		Set("estado", item.Estado).
		Set("codigo_error", item.ErrorCode).
		Set("mensaje_error", item.ErrorMessage).
		Set("movimiento_id", item.MovementID).
		Where(squirrel.Eq{"id": item.ID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update item: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	result, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update bulk item: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("bulk item", item.ID.String())
	}
	return nil
}

// Delete hard-deletes a batch and its items. Only batches that never touched
// stock may be deleted; the service enforces that.
func (r *BulkAdjustmentRepo) Delete(ctx context.Context, batchID id.ID) error {
	querier := r.getTxManager(ctx).GetQuerier(ctx)

	if _, err := querier.Exec(ctx,
		"DELETE FROM "+bulkAdjustmentItemsTable+" WHERE ajuste_id = $1", batchID); err != nil {
		return fmt.Errorf("delete bulk items: %w", err)
	}

	result, err := querier.Exec(ctx,
		"DELETE FROM "+bulkAdjustmentTable+" WHERE id = $1", batchID)
	if err != nil {
		return fmt.Errorf("delete bulk adjustment: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("bulk adjustment", batchID.String())
	}
	return nil
}

// List pages batches; items are not hydrated for listings.
func (r *BulkAdjustmentRepo) List(ctx context.Context, f domain.ListFilter) (domain.ListResult[*bulkadjustment.BulkAdjustment], error) {
	return r.BaseDocumentRepo.List(ctx, f)
}

func (r *BulkAdjustmentRepo) loadItems(ctx context.Context, b *bulkadjustment.BulkAdjustment) error {
	q := r.Builder().
		Select(bulkItemCols...).
		From(bulkAdjustmentItemsTable).
		Where(squirrel.Eq{"ajuste_id": b.ID}).
		OrderBy("linea")

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	var items []bulkadjustment.BulkItem
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &items, sql, args...); err != nil {
		return fmt.Errorf("load bulk items: %w", err)
	}
	b.Items = items
	return nil
}

// Ensure interface compliance.
var _ bulkadjustment.Repository = (*BulkAdjustmentRepo)(nil)
