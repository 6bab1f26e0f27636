package catalog_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"comercia/internal/core/id"
	"comercia/internal/core/types"
	"comercia/internal/domain/catalogs/location"
	"comercia/internal/infrastructure/storage/postgres"
)

const locationStockTable = "stock_ubicaciones"

// LocationStockRepo implements location.StockRepository over the
// (ubicacion_id, producto_id, lote) bucket table. The unique index uses
// COALESCE(lote, '') so the lot-less bucket conflicts like any other.
type LocationStockRepo struct {
	builder squirrel.StatementBuilderType
}

// NewLocationStockRepo creates a new location stock repository.
func NewLocationStockRepo() *LocationStockRepo {
	return &LocationStockRepo{
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *LocationStockRepo) getTxManager(ctx context.Context) *postgres.TxManager {
	return postgres.MustGetTxManager(ctx)
}

// GetForUpdate reads one stock bucket with a row lock. A missing bucket is
// returned as a zero-quantity bucket, not an error.
func (r *LocationStockRepo) GetForUpdate(ctx context.Context, locationID, productID id.ID, lot *string) (*location.LocationStock, error) {
	sql := `
		SELECT ubicacion_id, producto_id, lote, caducidad, cantidad, updated_at
		FROM stock_ubicaciones
		WHERE ubicacion_id = $1 AND producto_id = $2 AND COALESCE(lote, '') = COALESCE($3, '')
		FOR UPDATE
	`

	var bucket location.LocationStock
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	err := pgxscan.Get(ctx, querier, &bucket, sql, locationID, productID, lot)
	if err != nil {
		if pgxscan.NotFound(err) {
			return &location.LocationStock{
				LocationID: locationID,
				ProductID:  productID,
				Lot:        lot,
			}, nil
		}
		return nil, fmt.Errorf("get bucket for update: %w", err)
	}

	return &bucket, nil
}

// Upsert inserts or increments a stock bucket by delta. Negative deltas
// decrement; callers hold the row lock and have verified sufficiency.
func (r *LocationStockRepo) Upsert(ctx context.Context, locationID, productID id.ID, lot *string, delta types.Quantity) error {
	sql := `
		INSERT INTO stock_ubicaciones (ubicacion_id, producto_id, lote, cantidad, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (ubicacion_id, producto_id, COALESCE(lote, ''))
		DO UPDATE SET
			cantidad   = stock_ubicaciones.cantidad + EXCLUDED.cantidad,
			updated_at = EXCLUDED.updated_at
	`

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	_, err := querier.Exec(ctx, sql, locationID, productID, lot, delta, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert bucket: %w", err)
	}

	// Empty buckets are garbage collected so listings stay clean.
	if delta.IsNegative() {
		cleanup := `
			DELETE FROM stock_ubicaciones
			WHERE ubicacion_id = $1 AND producto_id = $2
			  AND COALESCE(lote, '') = COALESCE($3, '')
			  AND cantidad = 0
		`
		if _, err := querier.Exec(ctx, cleanup, locationID, productID, lot); err != nil {
			return fmt.Errorf("cleanup empty bucket: %w", err)
		}
	}

	return nil
}

// ListByLocation returns all stock buckets in a location.
func (r *LocationStockRepo) ListByLocation(ctx context.Context, locationID id.ID) ([]*location.LocationStock, error) {
	return r.list(ctx, squirrel.Eq{"ubicacion_id": locationID}, "producto_id, lote")
}

// ListByProduct returns all stock buckets holding a product.
func (r *LocationStockRepo) ListByProduct(ctx context.Context, productID id.ID) ([]*location.LocationStock, error) {
	return r.list(ctx, squirrel.Eq{"producto_id": productID}, "ubicacion_id, lote")
}

func (r *LocationStockRepo) list(ctx context.Context, cond squirrel.Eq, orderBy string) ([]*location.LocationStock, error) {
	q := r.builder.
		Select("ubicacion_id", "producto_id", "lote", "caducidad", "cantidad", "updated_at").
		From(locationStockTable).
		Where(cond).
		Where(squirrel.NotEq{"cantidad": int64(0)}).
		OrderBy(orderBy)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var buckets []*location.LocationStock
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &buckets, sql, args...); err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	return buckets, nil
}

// TotalByProduct returns the sum of location stock for a product.
func (r *LocationStockRepo) TotalByProduct(ctx context.Context, productID id.ID) (types.Quantity, error) {
	sql := `
		SELECT COALESCE(SUM(cantidad), 0)
		FROM stock_ubicaciones
		WHERE producto_id = $1
	`

	var totalScaled int64
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	err := querier.QueryRow(ctx, sql, productID).Scan(&totalScaled)
	if err != nil && err != pgx.ErrNoRows {
		return 0, fmt.Errorf("total by product: %w", err)
	}

	return types.NewQuantityFromInt64Scaled(totalScaled), nil
}

// Ensure interface compliance.
var _ location.StockRepository = (*LocationStockRepo)(nil)
