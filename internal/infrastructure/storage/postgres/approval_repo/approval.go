// Package approval_repo provides PostgreSQL persistence for approval rules
// and approval instances.
package approval_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"comercia/internal/core/apperror"
	"comercia/internal/core/id"
	"comercia/internal/domain/approval"
	"comercia/internal/infrastructure/storage/postgres"
)

const (
	ruleTable     = "reglas_aprobacion"
	approvalTable = "aprobaciones"
)

var approvalCols = []string{
	"id", "regla_id", "regla_codigo", "tipo_entidad", "entidad_id",
	"entidad_folio", "estado", "solicitado_por", "decidido_por",
	"decidido_en", "comentario", "created_at",
}

// RuleRepo implements approval.RuleRepository.
type RuleRepo struct {
	builder    squirrel.StatementBuilderType
	selectCols []string
}

// NewRuleRepo creates a new approval rule repository.
func NewRuleRepo() *RuleRepo {
	return &RuleRepo{
		builder:    squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		selectCols: postgres.ExtractDBColumns[approval.Rule](),
	}
}

func (r *RuleRepo) getTxManager(ctx context.Context) *postgres.TxManager {
	return postgres.MustGetTxManager(ctx)
}

// ListActive returns active rules for an entity type ordered by priority.
func (r *RuleRepo) ListActive(ctx context.Context, entityType string) ([]*approval.Rule, error) {
	q := r.builder.
		Select(r.selectCols...).
		From(ruleTable).
		Where(squirrel.Eq{"tipo_entidad": entityType}).
		Where(squirrel.Eq{"activa": true}).
		Where(squirrel.Eq{"deletion_mark": false}).
		OrderBy("prioridad ASC", "codigo ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rules []*approval.Rule
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &rules, sql, args...); err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}
	return rules, nil
}

// Create inserts a rule.
func (r *RuleRepo) Create(ctx context.Context, rule *approval.Rule) error {
	data := postgres.StructToMap(rule)

	filtered := make(map[string]any, len(r.selectCols))
	for _, col := range r.selectCols {
		if val, ok := data[col]; ok {
			filtered[col] = val
		}
	}

	q := r.builder.Insert(ruleTable).SetMap(filtered)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	return nil
}

// Update modifies a rule with optimistic locking.
func (r *RuleRepo) Update(ctx context.Context, rule *approval.Rule) error {
	data := postgres.StructToMap(rule)

	version, ok := data["version"].(int)
	if !ok {
		return fmt.Errorf("rule has no version field")
	}

	filtered := make(map[string]any, len(r.selectCols))
	for _, col := range r.selectCols {
		if col == "id" || col == "version" {
			continue
		}
		if val, ok := data[col]; ok {
			filtered[col] = val
		}
	}

	q := r.builder.
		Update(ruleTable).
		SetMap(filtered).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": rule.ID}).
		Where(squirrel.Eq{"version": version})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	result, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification(ruleTable, rule.ID)
	}
	return nil
}

// GetByID retrieves a rule.
func (r *RuleRepo) GetByID(ctx context.Context, ruleID id.ID) (*approval.Rule, error) {
	q := r.builder.
		Select(r.selectCols...).
		From(ruleTable).
		Where(squirrel.Eq{"id": ruleID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rule approval.Rule
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &rule, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("approval rule", ruleID.String())
		}
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return &rule, nil
}

// Ensure interface compliance.
var _ approval.RuleRepository = (*RuleRepo)(nil)

// ApprovalRepo implements approval.Repository.
type ApprovalRepo struct {
	builder squirrel.StatementBuilderType
}

// NewApprovalRepo creates a new approval instance repository.
func NewApprovalRepo() *ApprovalRepo {
	return &ApprovalRepo{
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *ApprovalRepo) getTxManager(ctx context.Context) *postgres.TxManager {
	return postgres.MustGetTxManager(ctx)
}

// Create inserts an approval instance.
func (r *ApprovalRepo) Create(ctx context.Context, a *approval.Approval) error {
	q := r.builder.
		Insert(approvalTable).
		Columns(approvalCols...).
		Values(
			a.ID, a.RuleID, a.RuleCode, a.EntityType, a.EntityID,
			a.EntityFolio, a.Estado, a.RequestedBy, a.DecidedBy,
			a.DecidedAt, a.Comment, a.CreatedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert approval: %w", err)
	}
	return nil
}

// GetPendingByEntity retrieves the pending instance for a document with a
// row lock, so two approvers cannot decide it concurrently.
func (r *ApprovalRepo) GetPendingByEntity(ctx context.Context, entityType string, entityID id.ID) (*approval.Approval, error) {
	q := r.builder.
		Select(approvalCols...).
		From(approvalTable).
		Where(squirrel.Eq{"tipo_entidad": entityType}).
		Where(squirrel.Eq{"entidad_id": entityID}).
		Where(squirrel.Eq{"estado": approval.EstadoPendiente}).
		Suffix("FOR UPDATE")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var a approval.Approval
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &a, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("pending approval", entityID.String())
		}
		return nil, fmt.Errorf("get pending approval: %w", err)
	}
	return &a, nil
}

// Update persists a decision.
func (r *ApprovalRepo) Update(ctx context.Context, a *approval.Approval) error {
	q := r.builder.
		Update(approvalTable).
		Set("estado", a.Estado).
		Set("decidido_por", a.DecidedBy).
		Set("decidido_en", a.DecidedAt).
		Set("comentario", a.Comment).
		Where(squirrel.Eq{"id": a.ID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	result, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update approval: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("approval", a.ID.String())
	}
	return nil
}

// ListPending lists the approval queue, oldest first.
func (r *ApprovalRepo) ListPending(ctx context.Context, entityType string, limit int) ([]*approval.Approval, error) {
	q := r.builder.
		Select(approvalCols...).
		From(approvalTable).
		Where(squirrel.Eq{"estado": approval.EstadoPendiente}).
		OrderBy("created_at ASC")

	if entityType != "" {
		q = q.Where(squirrel.Eq{"tipo_entidad": entityType})
	}
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var items []*approval.Approval
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &items, sql, args...); err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}
	return items, nil
}

// Ensure interface compliance.
var _ approval.Repository = (*ApprovalRepo)(nil)
