package catalog_repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"comercia/internal/core/apperror"
	"comercia/internal/core/id"
	"comercia/internal/core/types"
	"comercia/internal/domain/catalogs/location"
	"comercia/internal/infrastructure/storage/postgres"
)

const locationTable = "cat_ubicaciones"

// LocationRepo implements location.Repository.
type LocationRepo struct {
	*BaseCatalogRepo[*location.Location]
}

// NewLocationRepo creates a new location repository.
func NewLocationRepo() *LocationRepo {
	return &LocationRepo{
		BaseCatalogRepo: NewBaseCatalogRepo[*location.Location](
			locationTable,
			postgres.ExtractDBColumns[location.Location](),
			func() *location.Location { return &location.Location{} },
		),
	}
}

// FindByCodeInSucursal resolves a location code within one sucursal.
func (r *LocationRepo) FindByCodeInSucursal(ctx context.Context, sucursalID id.ID, code string) (*location.Location, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"sucursal_id": sucursalID}).
		Where(squirrel.Eq{"code": code}).
		Where(squirrel.Eq{"deletion_mark": false}).
		Limit(1)

	item, err := r.FindOne(ctx, q)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("location", code)
		}
		return nil, err
	}
	return item, nil
}

// GetDescendants returns the location and all locations under it.
func (r *LocationRepo) GetDescendants(ctx context.Context, rootID id.ID) ([]*location.Location, error) {
	cteSQL := fmt.Sprintf(`
		WITH RECURSIVE subtree AS (
			SELECT *, 0 as level
			FROM %s
			WHERE id = $1 AND deletion_mark = false

			UNION ALL

			SELECT c.*, s.level + 1
			FROM %s c
			INNER JOIN subtree s ON c.parent_id = s.id
			WHERE c.deletion_mark = false
		)
		SELECT %s FROM subtree
		ORDER BY level, code
	`, locationTable, locationTable, strings.Join(r.selectCols, ", "))

	var items []*location.Location
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &items, cteSQL, rootID); err != nil {
		return nil, fmt.Errorf("get descendants: %w", err)
	}
	return items, nil
}

// FindWithCapacity returns unblocked locations in a sucursal that can hold
// at least qty more units, picking faces first.
func (r *LocationRepo) FindWithCapacity(ctx context.Context, sucursalID id.ID, qty types.Quantity) ([]*location.Location, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"sucursal_id": sucursalID}).
		Where(squirrel.Eq{"bloqueada": false}).
		Where(squirrel.Eq{"deletion_mark": false}).
		Where(squirrel.Or{
			squirrel.Eq{"capacidad": int64(0)},
			squirrel.Expr("capacidad - ocupado >= ?", qty),
		}).
		OrderBy("es_picking DESC", "code ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var items []*location.Location
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &items, sql, args...); err != nil {
		return nil, fmt.Errorf("find with capacity: %w", err)
	}
	return items, nil
}

// AdjustOccupied increments or decrements the occupied-capacity counter.
func (r *LocationRepo) AdjustOccupied(ctx context.Context, locationID id.ID, delta types.Quantity) error {
	q := r.Builder().
		Update(locationTable).
		Set("ocupado", squirrel.Expr("GREATEST(ocupado + ?, 0)", delta)).
		Where(squirrel.Eq{"id": locationID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build adjust occupied: %w", err)
	}

	result, err := r.getTxManager(ctx).GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("adjust occupied: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("location", locationID.String())
	}
	return nil
}

// Ensure interface compliance.
var _ location.Repository = (*LocationRepo)(nil)
