package document_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"comercia/internal/core/apperror"
	"comercia/internal/core/id"
	"comercia/internal/domain"
	"comercia/internal/domain/documents/count"
	"comercia/internal/infrastructure/storage/postgres"
)

const (
	countTable      = "doc_conteos_fisicos"
	countItemsTable = "doc_conteo_items"
)

var countItemCols = []string{
	"id", "conteo_id", "linea", "producto_id",
	"cantidad_sistema", "cantidad_contada", "diferencia",
	"costo_unitario", "estado", "movimiento_id", "contado_por", "contado_en",
}

// CountRepo implements count.Repository.
type CountRepo struct {
	*BaseDocumentRepo[*count.Count]
}

// NewCountRepo creates a new physical count repository.
func NewCountRepo() *CountRepo {
	return &CountRepo{
		BaseDocumentRepo: NewBaseDocumentRepo[*count.Count](
			countTable,
			postgres.ExtractDBColumns[count.Count](),
			func() *count.Count { return &count.Count{} },
		),
	}
}

// GetByID retrieves a count with its items.
func (r *CountRepo) GetByID(ctx context.Context, countID id.ID) (*count.Count, error) {
	c, err := r.BaseDocumentRepo.GetByID(ctx, countID)
	if err != nil {
		return nil, err
	}
	return c, r.loadItems(ctx, c)
}

// GetForUpdate locks the header and loads the items.
func (r *CountRepo) GetForUpdate(ctx context.Context, countID id.ID) (*count.Count, error) {
	c, err := r.BaseDocumentRepo.GetForUpdate(ctx, countID)
	if err != nil {
		return nil, err
	}
	return c, r.loadItems(ctx, c)
}

// InsertItems writes the materialized scope snapshot in bulk via COPY.
func (r *CountRepo) InsertItems(ctx context.Context, items []count.CountItem) error {
	if len(items) == 0 {
		return nil
	}

	txm := r.getTxManager(ctx)
	inserter := postgres.NewBatchInserter(txm)

	rows := make([][]any, 0, len(items))
	for _, it := range items {
		rows = append(rows, []any{
			it.ID, it.CountID, it.LineNo, it.ProductID,
			it.CantidadSistema, it.CantidadContada, it.Diferencia,
			it.UnitCost, it.Estado, it.MovementID, it.CountedBy, it.CountedAt,
		})
	}

	if _, err := inserter.CopyFromSlice(ctx, countItemsTable, countItemCols, rows); err != nil {
		return fmt.Errorf("copy count items: %w", err)
	}
	return nil
}

// UpdateItem persists one counted line.
func (r *CountRepo) UpdateItem(ctx context.Context, item *count.CountItem) error {
	q := r.Builder().
		Update(countItemsTable).
		Set("cantidad_contada", item.CantidadContada).
		Set("diferencia", item.Diferencia).
		Set("estado", item.Estado).
		Set("movimiento_id", item.MovementID).
		Set("contado_por", item.CountedBy).
		Set("contado_en", item.CountedAt).
		Where(squirrel.Eq{"id": item.ID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update item: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	result, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update count item: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("count item", item.ID.String())
	}
	return nil
}

// List pages counts; items are not hydrated for listings.
func (r *CountRepo) List(ctx context.Context, f domain.ListFilter) (domain.ListResult[*count.Count], error) {
	return r.BaseDocumentRepo.List(ctx, f)
}

func (r *CountRepo) loadItems(ctx context.Context, c *count.Count) error {
	q := r.Builder().
		Select(countItemCols...).
		From(countItemsTable).
		Where(squirrel.Eq{"conteo_id": c.ID}).
		OrderBy("linea")

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	var items []count.CountItem
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &items, sql, args...); err != nil {
		return fmt.Errorf("load count items: %w", err)
	}
	c.Items = items
	return nil
}

// Ensure interface compliance.
var _ count.Repository = (*CountRepo)(nil)

// CountScopeResolver implements count.ScopeResolver in SQL. Category
// subtrees and random samples are cheaper to express as queries than to
// materialize product-by-product in the service.
type CountScopeResolver struct{}

// NewCountScopeResolver creates a scope resolver.
func NewCountScopeResolver() *CountScopeResolver {
	return &CountScopeResolver{}
}

func (s *CountScopeResolver) getTxManager(ctx context.Context) *postgres.TxManager {
	return postgres.MustGetTxManager(ctx)
}

const scopeBaseSelect = `
	SELECT p.id AS producto_id, p.stock_actual, p.costo_unitario
	FROM cat_productos p
	WHERE p.deletion_mark = false
	  AND p.is_folder = false
	  AND p.activo = true
`

// Resolve materializes the product set a count covers.
func (s *CountScopeResolver) Resolve(ctx context.Context, c *count.Count) ([]count.ScopeProduct, error) {
	var (
		sql  string
		args []any
	)

	switch c.Tipo {
	case count.TipoTotal:
		sql = scopeBaseSelect + " ORDER BY p.code"

	case count.TipoCategoria:
		sql = scopeBaseSelect + `
			AND p.id IN (
				WITH RECURSIVE category AS (
					SELECT id FROM cat_productos WHERE id = $1
					UNION ALL
					SELECT t.id FROM cat_productos t JOIN category c ON t.parent_id = c.id
				)
				SELECT id FROM category
			)
			ORDER BY p.code
		`
		args = []any{*c.CategoryID}

	case count.TipoUbicacion:
		// Everything stocked anywhere under the location subtree.
		sql = scopeBaseSelect + `
			AND p.id IN (
				SELECT DISTINCT su.producto_id
				FROM stock_ubicaciones su
				WHERE su.ubicacion_id IN (
					WITH RECURSIVE subtree AS (
						SELECT id FROM cat_ubicaciones WHERE id = $1
						UNION ALL
						SELECT t.id FROM cat_ubicaciones t JOIN subtree s ON t.parent_id = s.id
					)
					SELECT id FROM subtree
				)
			)
			ORDER BY p.code
		`
		args = []any{*c.LocationID}

	case count.TipoCiclico:
		sql = scopeBaseSelect + " AND p.id = ANY($1) ORDER BY p.code"
		args = []any{c.ProductIDs}

	case count.TipoAleatorio:
		sql = scopeBaseSelect + " ORDER BY random() LIMIT $1"
		args = []any{c.SampleSize}

	default:
		return nil, apperror.NewValidation("unknown count type").
			WithDetail("tipo", string(c.Tipo))
	}

	var products []count.ScopeProduct
	querier := s.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &products, sql, args...); err != nil {
		return nil, fmt.Errorf("resolve count scope: %w", err)
	}
	return products, nil
}

// Ensure interface compliance.
var _ count.ScopeResolver = (*CountScopeResolver)(nil)
