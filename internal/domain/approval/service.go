package approval

import (
	"context"
	"fmt"
	"time"

	"comercia/internal/core/apperror"
	appctx "comercia/internal/core/context"
	"comercia/internal/core/id"
	"comercia/internal/core/tenant"
	"comercia/internal/core/tx"
	"comercia/pkg/logger"
)

// Service manages approval rules and instances.
type Service struct {
	evaluator *Evaluator
	rules     RuleRepository
	approvals Repository
	txManager tx.Manager // Optional - if nil, obtained from context
}

// NewService creates the approval service.
func NewService(evaluator *Evaluator, rules RuleRepository, approvals Repository) *Service {
	return &Service{
		evaluator: evaluator,
		rules:     rules,
		approvals: approvals,
	}
}

func (s *Service) getTxManager(ctx context.Context) (tx.Manager, error) {
	if s.txManager != nil {
		return s.txManager, nil
	}
	return tenant.GetTxManager(ctx)
}

// EvaluateRequiresApproval returns the first rule matching the document
// facts, or nil when the document may proceed without approval.
func (s *Service) EvaluateRequiresApproval(ctx context.Context, entityType string, facts Facts) (*Rule, error) {
	return s.evaluator.EvaluateRequiresApproval(ctx, entityType, facts)
}

// StartApproval opens a pending instance for a document. Runs inside the
// caller's transaction so the document state change and the instance commit
// together.
func (s *Service) StartApproval(ctx context.Context, rule *Rule, entityType string, entityID id.ID, entityFolio string) (*Approval, error) {
	a := &Approval{
		ID:          id.New(),
		RuleID:      rule.ID,
		RuleCode:    rule.Code,
		EntityType:  entityType,
		EntityID:    entityID,
		EntityFolio: entityFolio,
		Estado:      EstadoPendiente,
		RequestedBy: appctx.GetUserID(ctx),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.approvals.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create approval instance: %w", err)
	}

	logger.Info(ctx, "approval required",
		"rule_code", rule.Code,
		"entity_type", entityType,
		"entity_folio", entityFolio,
	)
	return a, nil
}

// Decide closes the pending instance for a document and returns it. The
// document lifecycle reacts to the decision in the same transaction.
func (s *Service) Decide(ctx context.Context, entityType string, entityID id.ID, approved bool, comment string) (*Approval, error) {
	txm, err := s.getTxManager(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	var a *Approval
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		a, err = s.approvals.GetPendingByEntity(ctx, entityType, entityID)
		if err != nil {
			return err
		}
		if a.Estado != EstadoPendiente {
			return apperror.NewInvalidState("approval", a.Estado, "decidir").
				WithDetail("approval_id", a.ID)
		}

		now := time.Now().UTC()
		if approved {
			a.Estado = EstadoAprobada
		} else {
			a.Estado = EstadoRechazada
		}
		a.DecidedBy = appctx.GetUserID(ctx)
		a.DecidedAt = &now
		a.Comment = comment
		return s.approvals.Update(ctx, a)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "approval decided",
		"approval_id", a.ID,
		"estado", a.Estado,
		"entity_folio", a.EntityFolio,
	)
	return a, nil
}

// PendingQueue lists open approvals, oldest first.
func (s *Service) PendingQueue(ctx context.Context, entityType string, limit int) ([]*Approval, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.approvals.ListPending(ctx, entityType, limit)
}

// CreateRule validates and stores an approval rule.
func (s *Service) CreateRule(ctx context.Context, rule *Rule) error {
	if err := rule.Validate(ctx); err != nil {
		return err
	}
	if err := s.evaluator.CheckExpression(rule.Expression); err != nil {
		return err
	}
	txm, err := s.getTxManager(ctx)
	if err != nil {
		return apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}
	return txm.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.rules.Create(ctx, rule)
	})
}
