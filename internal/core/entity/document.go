package entity

import (
	"context"
	"time"

	"comercia/internal/core/apperror"
	"comercia/internal/core/id"
)

// Document is the base type for business documents that carry a folio and a
// lifecycle state. Examples: PurchaseOrder, PhysicalCount, BulkAdjustment.
//
// Each concrete document type defines its own state machine over Estado;
// the base only carries the shared fields and folio handling.
type Document struct {
	BaseDocument

	// Folio is the human-readable document number (auto-generated, unique
	// within type and reset period)
	Folio string `db:"folio" json:"folio"`

	// Date is the business date of the document
	Date time.Time `db:"fecha" json:"date"`

	// Estado is the lifecycle state (persisted as a Spanish token for
	// compatibility with existing tenant data)
	Estado string `db:"estado" json:"estado"`

	// Comment is an optional user comment
	Comment string `db:"comentario" json:"comment,omitempty"`
}

// NewDocument creates a new Document in the given initial state.
func NewDocument(initialEstado string) Document {
	return Document{
		BaseDocument: NewBaseDocument(),
		Date:         time.Now().UTC(),
		Estado:       initialEstado,
	}
}

// Validate implements Validatable interface.
func (d *Document) Validate(ctx context.Context) error {
	if d.Date.IsZero() {
		return apperror.NewValidation("date is required").
			WithDetail("field", "date")
	}
	return nil
}

// GetID returns the document ID.
func (d *Document) GetID() id.ID {
	return d.ID
}

// InState reports whether the document is in one of the given states.
func (d *Document) InState(states ...string) bool {
	for _, s := range states {
		if d.Estado == s {
			return true
		}
	}
	return false
}

// RequireState returns an InvalidState error unless the document is in one of
// the allowed states for the attempted operation.
func (d *Document) RequireState(entity, operation string, allowed ...string) error {
	if d.InState(allowed...) {
		return nil
	}
	return apperror.NewInvalidState(entity, d.Estado, operation).
		WithDetail("document_id", d.ID.String())
}

// Transition moves the document to the new state and bumps version/timestamps.
func (d *Document) Transition(estado string) {
	d.Estado = estado
	d.Touch()
}

// IsBackdated checks if document date is in the past.
func (d *Document) IsBackdated() bool {
	return d.Date.Before(time.Now().UTC().Truncate(24 * time.Hour))
}
