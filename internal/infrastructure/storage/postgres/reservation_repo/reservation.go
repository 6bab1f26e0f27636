// Package reservation_repo provides the PostgreSQL implementation of stock
// hold persistence.
package reservation_repo

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
	"comercia/internal/domain/reservation"
	"comercia/internal/infrastructure/storage/postgres"
)

const reservationTable = "reservas"

// ReservationRepo implements reservation.Repository.
type ReservationRepo struct {
	builder    squirrel.StatementBuilderType
	selectCols []string
}

// NewReservationRepo creates a new reservation repository.
func NewReservationRepo() *ReservationRepo {
	return &ReservationRepo{
		builder:    squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		selectCols: postgres.ExtractDBColumns[reservation.Reservation](),
	}
}

func (r *ReservationRepo) getTxManager(ctx context.Context) *postgres.TxManager {
	return postgres.MustGetTxManager(ctx)
}

func (r *ReservationRepo) baseSelect() squirrel.SelectBuilder {
	return r.builder.Select(r.selectCols...).From(reservationTable)
}

// Create inserts a new hold.
func (r *ReservationRepo) Create(ctx context.Context, res *reservation.Reservation) error {
	data := postgres.StructToMap(res)

	filtered := make(map[string]any, len(r.selectCols))
	for _, col := range r.selectCols {
		if val, ok := data[col]; ok {
			filtered[col] = val
		}
	}

	q := r.builder.Insert(reservationTable).SetMap(filtered)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

// GetByID retrieves a hold.
func (r *ReservationRepo) GetByID(ctx context.Context, resID id.ID) (*reservation.Reservation, error) {
	return r.get(ctx, resID, "")
}

// GetForUpdate retrieves a hold with a row lock.
func (r *ReservationRepo) GetForUpdate(ctx context.Context, resID id.ID) (*reservation.Reservation, error) {
	return r.get(ctx, resID, "FOR UPDATE")
}

func (r *ReservationRepo) get(ctx context.Context, resID id.ID, suffix string) (*reservation.Reservation, error) {
	q := r.baseSelect().Where(squirrel.Eq{"id": resID})
	if suffix != "" {
		q = q.Suffix(suffix)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var res reservation.Reservation
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &res, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("reservation", resID.String())
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return &res, nil
}

// Update persists estado transitions and movement links with optimistic
// locking.
func (r *ReservationRepo) Update(ctx context.Context, res *reservation.Reservation) error {
	data := postgres.StructToMap(res)

	version, ok := data["version"].(int)
	if !ok {
		return fmt.Errorf("reservation has no version field")
	}

	filtered := make(map[string]any, len(r.selectCols))
	for _, col := range r.selectCols {
		if col == "id" || col == "version" || col == "created_at" || col == "created_by" {
			continue
		}
		if val, ok := data[col]; ok {
			filtered[col] = val
		}
	}

	q := r.builder.
		Update(reservationTable).
		SetMap(filtered).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": res.ID}).
		Where(squirrel.Eq{"version": version})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	result, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification(reservationTable, res.ID)
	}
	return nil
}

// SumActive returns the total quantity of holds that still count against
// availability: estado activa and expira_en after now.
func (r *ReservationRepo) SumActive(ctx context.Context, productID id.ID, now time.Time) (types.Quantity, error) {
	sql := `
		SELECT COALESCE(SUM(cantidad), 0)
		FROM reservas
		WHERE producto_id = $1
		  AND estado = $2
		  AND expira_en > $3
	`

	var sumScaled int64
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	err := querier.QueryRow(ctx, sql, productID, reservation.EstadoActiva, now).Scan(&sumScaled)
	if err != nil && err != pgx.ErrNoRows {
		return 0, fmt.Errorf("sum active: %w", err)
	}

	return types.NewQuantityFromInt64Scaled(sumScaled), nil
}

// ListByProduct lists all holds for a product, newest first.
func (r *ReservationRepo) ListByProduct(ctx context.Context, productID id.ID) ([]*reservation.Reservation, error) {
	return r.list(ctx, squirrel.Eq{"producto_id": productID})
}

// ListByOrigin lists holds created by a document.
func (r *ReservationRepo) ListByOrigin(ctx context.Context, originType reservation.OriginType, originID id.ID) ([]*reservation.Reservation, error) {
	return r.list(ctx, squirrel.Eq{"origen_tipo": originType, "origen_id": originID})
}

func (r *ReservationRepo) list(ctx context.Context, cond squirrel.Eq) ([]*reservation.Reservation, error) {
	q := r.baseSelect().Where(cond).OrderBy("created_at DESC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var items []*reservation.Reservation
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &items, sql, args...); err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return items, nil
}

// ExpireOverdue flips activa holds past their deadline to expirada and
// returns how many rows changed. Runs without loading rows so the sweep
// stays one statement.
func (r *ReservationRepo) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	sql := `
		UPDATE reservas
		SET estado = $1, version = version + 1, updated_at = NOW()
		WHERE estado = $2 AND expira_en <= $3
	`

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	result, err := querier.Exec(ctx, sql, reservation.EstadoExpirada, reservation.EstadoActiva, now)
	if err != nil {
		return 0, fmt.Errorf("expire overdue: %w", err)
	}
	return result.RowsAffected(), nil
}

// Ensure interface compliance.
var _ reservation.Repository = (*ReservationRepo)(nil)
