// Package tenant implements the Database-per-Tenant plumbing: the meta
// database registry, the per-tenant pool manager and the context keys
// the rest of the code reads tenant state from.
package tenant

import (
	"fmt"
	"strings"
	"time"
)

// Status is the tenant lifecycle state stored in the meta database.
type Status string

const (
	// StatusActive tenants accept requests.
	StatusActive Status = "active"

	// StatusSuspended tenants are temporarily disabled, for example
	// over billing.
	StatusSuspended Status = "suspended"

	// StatusDeleted tenants are scheduled for removal.
	StatusDeleted Status = "deleted"
)

// Plan is the subscription tier.
type Plan string

const (
	PlanStandard   Plan = "standard"
	PlanPremium    Plan = "premium"
	PlanEnterprise Plan = "enterprise"
)

// Tenant is a row of the meta database tenants table.
type Tenant struct {
	ID          string         `db:"id"`
	Slug        string         `db:"slug"` // URL-safe identifier
	DisplayName string         `db:"display_name"`
	DBName      string         `db:"db_name"`
	DBHost      string         `db:"db_host"`
	DBPort      int            `db:"db_port"`
	Status      Status         `db:"status"`
	Plan        Plan           `db:"plan"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
	Settings    map[string]any `db:"settings"` // JSONB
}

// IsActive reports whether the tenant may accept requests.
func (t *Tenant) IsActive() bool {
	return t.Status == StatusActive
}

// DSN builds the connection string for this tenant's database.
func (t *Tenant) DSN(user, password string) string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		user, password, t.DBHost, t.DBPort, t.DBName,
	)
}

// CreateTenantInput is the validated input for provisioning a tenant.
type CreateTenantInput struct {
	Slug        string
	DisplayName string
	Plan        Plan
	DBHost      string // defaults to localhost
	DBPort      int    // defaults to 5432
}

// Validate normalizes the slug and checks required fields.
func (i *CreateTenantInput) Validate() error {
	if i.Slug == "" {
		return fmt.Errorf("slug is required")
	}
	i.Slug = strings.ToLower(i.Slug)
	if len(i.Slug) > 63 {
		return fmt.Errorf("slug must be 63 characters or less")
	}
	if i.DisplayName == "" {
		return fmt.Errorf("display_name is required")
	}
	return nil
}

// GenerateDBName derives the tenant database name from the slug.
func (i *CreateTenantInput) GenerateDBName() string {
	return "cm_" + i.Slug
}
