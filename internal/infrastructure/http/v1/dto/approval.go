package dto

import (
	"comercia/internal/core/entity"
	"comercia/internal/domain/approval"
)

// --- Request DTOs ---

// CreateRuleRequest represents a request to create an approval rule.
type CreateRuleRequest struct {
	Code       string `json:"code" binding:"required"`
	Name       string `json:"name" binding:"required"`
	EntityType string `json:"entityType" binding:"required"`
	Expression string `json:"expression" binding:"required"`
	Priority   int    `json:"priority,omitempty"`
	Active     *bool  `json:"active,omitempty"`
}

// ToEntity converts request to domain entity.
func (r *CreateRuleRequest) ToEntity() *approval.Rule {
	rule := &approval.Rule{
		BaseEntity: entity.NewBaseEntity(),
		Code:       r.Code,
		Name:       r.Name,
		EntityType: r.EntityType,
		Expression: r.Expression,
		Priority:   r.Priority,
		Active:     true,
	}
	if r.Active != nil {
		rule.Active = *r.Active
	}
	return rule
}
