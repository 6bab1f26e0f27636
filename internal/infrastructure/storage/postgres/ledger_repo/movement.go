// Package ledger_repo provides the PostgreSQL implementation of the
// inventory movement ledger. mov_inventario is append-only and partitioned
// by month on created_at; the repo exposes no Update or Delete.
package ledger_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"comercia/internal/core/apperror"
	"comercia/internal/core/id"
	"comercia/internal/core/types"
	"comercia/internal/domain/ledger"
	"comercia/internal/infrastructure/storage/postgres"
)

const movementTable = "mov_inventario"

var movementColumns = []string{
	"id", "producto_id", "tipo_movimiento", "cantidad",
	"costo_unitario", "valor_total", "stock_antes", "stock_despues",
	"ubicacion_id", "lote", "origen_tipo", "origen_id", "origen_folio",
	"comentario", "created_at", "created_by",
}

// MovementRepo implements ledger.Repository.
type MovementRepo struct {
	builder squirrel.StatementBuilderType
}

// NewMovementRepo creates a new movement repository.
func NewMovementRepo() *MovementRepo {
	return &MovementRepo{
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *MovementRepo) getTxManager(ctx context.Context) *postgres.TxManager {
	return postgres.MustGetTxManager(ctx)
}

func movementValues(m *ledger.Movement) []any {
	return []any{
		m.ID, m.ProductID, m.Type, m.Quantity,
		m.UnitCost, m.TotalValue, m.StockBefore, m.StockAfter,
		m.LocationID, m.Lot, m.SourceType, m.SourceID, m.SourceFolio,
		m.Comment, m.CreatedAt, m.CreatedBy,
	}
}

// Insert appends one movement row.
func (r *MovementRepo) Insert(ctx context.Context, m *ledger.Movement) error {
	q := r.builder.
		Insert(movementTable).
		Columns(movementColumns...).
		Values(movementValues(m)...)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}

// InsertBatch appends many movement rows.
func (r *MovementRepo) InsertBatch(ctx context.Context, movements []*ledger.Movement) error {
	if len(movements) == 0 {
		return nil
	}

	// Fast path: COPY when inside a transaction.
	txm := r.getTxManager(ctx)
	if tx := txm.GetTx(ctx); tx != nil {
		inserter := postgres.NewBatchInserter(txm)
		rows := make([][]any, 0, len(movements))
		for _, m := range movements {
			rows = append(rows, movementValues(m))
		}
		if _, err := inserter.CopyFromSlice(ctx, movementTable, movementColumns, rows); err != nil {
			return fmt.Errorf("copy movements: %w", err)
		}
		return nil
	}

	// Fallback: multi-row insert. Prefer calling InsertBatch within a tx.
	q := r.builder.Insert(movementTable).Columns(movementColumns...)
	for _, m := range movements {
		q = q.Values(movementValues(m)...)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert movements: %w", err)
	}
	return nil
}

// GetByID retrieves a single movement.
func (r *MovementRepo) GetByID(ctx context.Context, movementID id.ID) (*ledger.Movement, error) {
	q := r.builder.
		Select(movementColumns...).
		From(movementTable).
		Where(squirrel.Eq{"id": movementID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var m ledger.Movement
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &m, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("movement", movementID.String())
		}
		return nil, fmt.Errorf("get movement: %w", err)
	}
	return &m, nil
}

// History lists movements newest-first according to the filter.
func (r *MovementRepo) History(ctx context.Context, f ledger.HistoryFilter) ([]*ledger.Movement, error) {
	q := r.builder.
		Select(movementColumns...).
		From(movementTable)

	if f.ProductID != nil {
		q = q.Where(squirrel.Eq{"producto_id": *f.ProductID})
	}
	if f.LocationID != nil {
		q = q.Where(squirrel.Eq{"ubicacion_id": *f.LocationID})
	}
	if len(f.Types) > 0 {
		q = q.Where(squirrel.Eq{"tipo_movimiento": f.Types})
	}
	if f.SourceType != nil {
		q = q.Where(squirrel.Eq{"origen_tipo": *f.SourceType})
	}
	if f.SourceID != nil {
		q = q.Where(squirrel.Eq{"origen_id": *f.SourceID})
	}
	if f.From != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *f.From})
	}
	if f.To != nil {
		q = q.Where(squirrel.Lt{"created_at": *f.To})
	}

	q = q.OrderBy("created_at DESC", "id DESC")

	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var movements []*ledger.Movement
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}
	return movements, nil
}

// SumByProduct returns the signed sum of all movements for a product,
// optionally up to a cutoff date. Direction comes from the type prefix;
// quantities are stored positive.
func (r *MovementRepo) SumByProduct(ctx context.Context, productID id.ID, until *time.Time) (types.Quantity, error) {
	sql := `
		SELECT COALESCE(
			SUM(CASE WHEN tipo_movimiento LIKE 'entrada%' THEN cantidad ELSE -cantidad END),
			0
		)
		FROM mov_inventario
		WHERE producto_id = $1
	`
	args := []any{productID}
	if until != nil {
		sql += " AND created_at <= $2"
		args = append(args, *until)
	}

	var sumScaled int64
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	err := querier.QueryRow(ctx, sql, args...).Scan(&sumScaled)
	if err != nil && err != pgx.ErrNoRows {
		return 0, fmt.Errorf("sum by product: %w", err)
	}

	return types.NewQuantityFromInt64Scaled(sumScaled), nil
}

// Turnover aggregates inbound/outbound volume per product in a period.
func (r *MovementRepo) Turnover(ctx context.Context, from, to time.Time) ([]*ledger.TurnoverRow, error) {
	sql := `
		SELECT
			producto_id,
			COALESCE(SUM(CASE WHEN tipo_movimiento LIKE 'entrada%' THEN cantidad ELSE 0 END), 0) AS entradas,
			COALESCE(SUM(CASE WHEN tipo_movimiento LIKE 'salida%' THEN cantidad ELSE 0 END), 0) AS salidas,
			COALESCE(SUM(CASE WHEN tipo_movimiento LIKE 'entrada%' THEN valor_total ELSE -valor_total END), 0) AS valor
		FROM mov_inventario
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY producto_id
		ORDER BY producto_id
	`

	var rows []*ledger.TurnoverRow
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &rows, sql, from, to); err != nil {
		return nil, fmt.Errorf("turnover: %w", err)
	}
	return rows, nil
}

// EnsureMonthlyPartition creates the mov_inventario partition covering the
// given month if it does not exist yet. The maintenance worker calls it for
// the current and next month.
func (r *MovementRepo) EnsureMonthlyPartition(ctx context.Context, month time.Time) error {
	start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	name := fmt.Sprintf("%s_y%dm%02d", movementTable, start.Year(), int(start.Month()))
	sql := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s PARTITION OF %s FOR VALUES FROM ('%s') TO ('%s')`,
		name, movementTable,
		start.Format("2006-01-02"), end.Format("2006-01-02"),
	)

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql); err != nil {
		return fmt.Errorf("ensure partition %s: %w", name, err)
	}
	return nil
}

// Ensure interface compliance.
var _ ledger.Repository = (*MovementRepo)(nil)
