package entity

import (
	"context"
	"time"

	"comercia/internal/core/id"
)

// Validatable is implemented by entities that can check their own
// invariants without touching the database.
type Validatable interface {
	// Validate returns nil when the entity is consistent, otherwise an
	// AppError describing the violations.
	Validate(ctx context.Context) error
}

// BaseEntity carries the fields shared by every persisted entity:
// catalogs, documents and approval rules alike.
type BaseEntity struct {
	// ID is the primary key (UUIDv7, time ordered).
	ID id.ID `db:"id" json:"id"`

	// DeletionMark soft-deletes the entity. Rows are never removed.
	DeletionMark bool `db:"deletion_mark" json:"deletionMark"`

	// Version implements optimistic locking. Repos compare it on update.
	Version int `db:"version" json:"version"`

	// Attributes holds tenant-defined custom fields (JSONB column).
	Attributes Attributes `db:"attributes" json:"attributes,omitempty"`
}

// NewBaseEntity generates a fresh entity at version 1.
func NewBaseEntity() BaseEntity {
	return BaseEntity{
		ID:      id.New(),
		Version: 1,
	}
}

// Touch bumps the optimistic-lock version.
func (b *BaseEntity) Touch() {
	b.Version++
}

// MarkDeleted sets the deletion mark.
func (b *BaseEntity) MarkDeleted() {
	b.DeletionMark = true
}

// Undelete clears the deletion mark.
func (b *BaseEntity) Undelete() {
	b.DeletionMark = false
}

// SetVersion overwrites the version. Repos call it after syncing the
// entity with the stored row.
func (b *BaseEntity) SetVersion(v int) {
	b.Version = v
}

// SetAttribute writes a custom field, allocating the map on first use.
func (b *BaseEntity) SetAttribute(key string, value any) {
	if b.Attributes == nil {
		b.Attributes = make(Attributes)
	}
	b.Attributes[key] = value
}

// GetAttribute reads a custom field, nil when absent.
func (b *BaseEntity) GetAttribute(key string) any {
	if b.Attributes == nil {
		return nil
	}
	return b.Attributes[key]
}

// BaseDocument extends BaseEntity with the audit trail documents need.
type BaseDocument struct {
	BaseEntity

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
	CreatedBy string    `db:"created_by" json:"createdBy,omitempty"`
	UpdatedBy string    `db:"updated_by" json:"updatedBy,omitempty"`
}

// NewBaseDocument generates a fresh document with both timestamps set.
func NewBaseDocument() BaseDocument {
	now := time.Now().UTC()
	return BaseDocument{
		BaseEntity: NewBaseEntity(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Touch refreshes UpdatedAt and bumps the version.
func (b *BaseDocument) Touch() {
	b.UpdatedAt = time.Now().UTC()
	b.BaseEntity.Touch()
}

// SetUpdatedAt overwrites the update timestamp. Repos call it after
// syncing with the stored row.
func (b *BaseDocument) SetUpdatedAt(t time.Time) {
	b.UpdatedAt = t
}

// BaseCatalog is BaseEntity under a catalog-specific name. Catalogs do
// not carry audit timestamps.
type BaseCatalog struct {
	BaseEntity
}

// NewBaseCatalog generates a fresh catalog entity.
func NewBaseCatalog() BaseCatalog {
	return BaseCatalog{
		BaseEntity: NewBaseEntity(),
	}
}
