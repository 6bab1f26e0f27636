package approval

import (
	"context"

	"comercia/internal/core/id"
)

// RuleRepository defines persistence for approval rules.
type RuleRepository interface {
	// ListActive returns active rules for an entity type ordered by
	// priority ascending.
	ListActive(ctx context.Context, entityType string) ([]*Rule, error)

	Create(ctx context.Context, r *Rule) error
	Update(ctx context.Context, r *Rule) error
	GetByID(ctx context.Context, id id.ID) (*Rule, error)
}

// Repository defines persistence for approval instances.
type Repository interface {
	Create(ctx context.Context, a *Approval) error

	// GetPendingByEntity retrieves the pending instance for a document
	// with a row lock, so two approvers cannot decide it concurrently.
	GetPendingByEntity(ctx context.Context, entityType string, entityID id.ID) (*Approval, error)

	Update(ctx context.Context, a *Approval) error

	// ListPending lists the approval queue, oldest first.
	ListPending(ctx context.Context, entityType string, limit int) ([]*Approval, error)
}
