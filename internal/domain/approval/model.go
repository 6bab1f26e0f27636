// Package approval implements a rule-driven approval gate for documents.
// Rules are per-tenant CEL expressions evaluated against document facts;
// when one matches, the document must pass through an approval instance
// before it proceeds.
package approval

import (
	"context"
	"time"

	"comercia/internal/core/apperror"
	"comercia/internal/core/entity"
	"comercia/internal/core/id"
)

// Approval instance states, persisted in doc_aprobaciones.estado.
const (
	EstadoPendiente = "pendiente"
	EstadoAprobada  = "aprobada"
	EstadoRechazada = "rechazada"
)

// Rule is one per-tenant approval rule (cat_reglas_aprobacion).
type Rule struct {
	entity.BaseEntity

	Code string `db:"codigo" json:"code"`
	Name string `db:"nombre" json:"name"`

	// EntityType selects which documents the rule applies to
	// (e.g. "orden_compra").
	EntityType string `db:"tipo_entidad" json:"entityType"`

	// Expression is a CEL program over the document facts, for example
	// `total > 50000.0 || supplier_new`.
	Expression string `db:"expresion" json:"expression"`

	// Priority orders evaluation; the first matching rule wins.
	Priority int  `db:"prioridad" json:"priority"`
	Active   bool `db:"activa" json:"active"`
}

// Validate implements entity.Validatable.
func (r *Rule) Validate(ctx context.Context) error {
	if r.Code == "" {
		return apperror.NewValidation("code is required").WithDetail("field", "code")
	}
	if r.EntityType == "" {
		return apperror.NewValidation("entity type is required").WithDetail("field", "entityType")
	}
	if r.Expression == "" {
		return apperror.NewValidation("expression is required").WithDetail("field", "expression")
	}
	return nil
}

// Approval is one pending or decided approval instance (doc_aprobaciones).
type Approval struct {
	ID         id.ID  `db:"id" json:"id"`
	RuleID     id.ID  `db:"regla_id" json:"ruleId"`
	RuleCode   string `db:"regla_codigo" json:"ruleCode"`
	EntityType string `db:"tipo_entidad" json:"entityType"`
	EntityID   id.ID  `db:"entidad_id" json:"entityId"`

	// EntityFolio is denormalized for approval queues.
	EntityFolio string `db:"entidad_folio" json:"entityFolio"`

	Estado      string     `db:"estado" json:"estado"`
	RequestedBy string     `db:"solicitado_por" json:"requestedBy"`
	DecidedBy   string     `db:"decidido_por" json:"decidedBy,omitempty"`
	DecidedAt   *time.Time `db:"decidido_en" json:"decidedAt,omitempty"`
	Comment     string     `db:"comentario" json:"comment,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
}

// Facts are the document attributes exposed to rule expressions.
type Facts map[string]any
