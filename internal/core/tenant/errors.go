package tenant

import "errors"

var (
	// ErrTenantNotFound means the registry has no such tenant.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrTenantNotActive means the tenant exists but is suspended or deleted.
	ErrTenantNotActive = errors.New("tenant is not active")

	// ErrMaxPoolLimit means the manager is already at MaxTotalPools.
	ErrMaxPoolLimit = errors.New("max tenant pool limit reached")
)
