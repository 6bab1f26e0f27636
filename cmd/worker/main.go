// Package main is the entry point for the Comercia background worker.
// Multi-tenant architecture: runs maintenance jobs for all tenants.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"comercia/internal/core/tenant"
	"comercia/internal/domain/ledger"
	"comercia/internal/domain/reservation"
	"comercia/internal/infrastructure/folio"
	"comercia/internal/infrastructure/storage/postgres"
	"comercia/internal/infrastructure/storage/postgres/catalog_repo"
	"comercia/internal/infrastructure/storage/postgres/ledger_repo"
	"comercia/internal/infrastructure/storage/postgres/reservation_repo"
	"comercia/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("starting comercia multi-tenant worker")

	// Connect to meta-database
	metaDB, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(mustEnv("META_DATABASE_URL")))
	if err != nil {
		log.Fatalw("failed to connect to meta database", "error", err)
	}
	defer metaDB.Close()

	// Create tenant registry and manager
	registry := tenant.NewPostgresRegistry(metaDB.Unwrap())

	managerCfg := tenant.DefaultManagerConfig()
	managerCfg.DBUser = mustEnv("TENANT_DB_USER")
	managerCfg.DBPassword = mustEnv("TENANT_DB_PASSWORD")
	managerCfg.PoolIdleTimeout = 10 * time.Minute // Shorter for worker

	manager := tenant.NewManager(managerCfg, registry, log)
	defer manager.Close()

	// Start multi-tenant worker
	worker := NewMultiTenantWorker(manager, log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}

// MultiTenantWorker runs maintenance jobs for all tenants:
// reservation expiry sweeps, idempotency cleanup and ledger partition upkeep.
type MultiTenantWorker struct {
	manager *tenant.Manager
	log     *logger.Logger
}

func NewMultiTenantWorker(manager *tenant.Manager, log *logger.Logger) *MultiTenantWorker {
	return &MultiTenantWorker{
		manager: manager,
		log:     log.WithComponent("worker"),
	}
}

// Run starts worker goroutines for all active tenants.
func (w *MultiTenantWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	var wg sync.WaitGroup
	tenantContexts := make(map[string]context.CancelFunc) // tenant_id(UUID) -> cancel
	var mu sync.Mutex

	// Initial start
	w.refreshTenants(ctx, &wg, tenantContexts, &mu)

	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			for _, cancel := range tenantContexts {
				cancel()
			}
			mu.Unlock()
			wg.Wait()
			return

		case <-ticker.C:
			w.refreshTenants(ctx, &wg, tenantContexts, &mu)
		}
	}
}

func (w *MultiTenantWorker) refreshTenants(ctx context.Context, wg *sync.WaitGroup, tenantContexts map[string]context.CancelFunc, mu *sync.Mutex) {
	tenants, err := w.manager.GetActiveTenants(ctx)
	if err != nil {
		w.log.Errorw("failed to get active tenants", "error", err)
		return
	}

	activeTenants := make(map[string]*tenant.Tenant, len(tenants))
	for _, t := range tenants {
		activeTenants[t.ID] = t
	}

	mu.Lock()
	defer mu.Unlock()

	for tenantID, cancel := range tenantContexts {
		if _, active := activeTenants[tenantID]; !active {
			cancel()
			delete(tenantContexts, tenantID)
			w.log.Infow("stopped worker for inactive tenant", "tenant_id", tenantID)
		}
	}

	for _, t := range tenants {
		if _, exists := tenantContexts[t.ID]; !exists {
			tenantCtx, tenantCancel := context.WithCancel(ctx)
			tenantContexts[t.ID] = tenantCancel

			wg.Add(1)
			go func(t *tenant.Tenant) {
				defer wg.Done()
				w.runTenantWorker(tenantCtx, t)
			}(t)

			w.log.Infow("started worker for tenant", "tenant_id", t.ID)
		}
	}
}

func (w *MultiTenantWorker) runTenantWorker(ctx context.Context, t *tenant.Tenant) {
	mp, err := w.manager.GetPool(ctx, t.ID)
	if err != nil {
		w.log.Errorw("failed to get pool for tenant", "tenant_id", t.ID, "error", err)
		return
	}

	txManager := postgres.NewTxManagerFromRawPool(mp.Pool())

	// Domain services read pool and TxManager from the context, same as HTTP.
	jobCtx := tenant.WithTenant(ctx, t)
	jobCtx = tenant.WithPool(jobCtx, mp.Pool())
	jobCtx = tenant.WithTxManager(jobCtx, txManager)

	folios := folio.NewFromContext()
	productRepo := catalog_repo.NewProductRepo()
	locationRepo := catalog_repo.NewLocationRepo()
	locationStockRepo := catalog_repo.NewLocationStockRepo()
	movementRepo := ledger_repo.NewMovementRepo()
	ledgerSvc := ledger.NewService(movementRepo, productRepo, locationRepo, locationStockRepo)
	reservations := reservation.NewService(reservation_repo.NewReservationRepo(), productRepo, ledgerSvc, folios)

	idempotency := postgres.NewIdempotencyStore(txManager, 24*time.Hour)

	sweepTicker := time.NewTicker(getEnvDuration("RESERVATION_SWEEP_INTERVAL", 30*time.Second))
	defer sweepTicker.Stop()

	maintenanceTicker := time.NewTicker(1 * time.Hour)
	defer maintenanceTicker.Stop()

	// Make sure partitions exist before the first maintenance tick.
	w.ensurePartitions(jobCtx, movementRepo, t.ID)

	for {
		select {
		case <-ctx.Done():
			w.log.Infow("stopping worker for tenant", "tenant_id", t.ID)
			return
		case <-sweepTicker.C:
			w.expireReservations(jobCtx, reservations, t.ID)
		case <-maintenanceTicker.C:
			w.cleanupIdempotency(jobCtx, idempotency, t.ID)
			w.ensurePartitions(jobCtx, movementRepo, t.ID)
			postgres.LogPoolStats(jobCtx, mp.Pool())
		}
	}
}

func (w *MultiTenantWorker) expireReservations(ctx context.Context, reservations *reservation.Service, tenantID string) {
	count, err := reservations.ExpireOverdue(ctx)
	if err != nil {
		w.log.Errorw("reservation sweep failed", "tenant_id", tenantID, "error", err)
		return
	}

	if count > 0 {
		w.log.Infow("reservation sweep released holds", "tenant_id", tenantID, "count", count)
	}
}

func (w *MultiTenantWorker) cleanupIdempotency(ctx context.Context, store *postgres.IdempotencyStore, tenantID string) {
	count, err := store.CleanupExpired(ctx)
	if err != nil {
		w.log.Errorw("idempotency cleanup failed", "tenant_id", tenantID, "error", err)
		return
	}

	if count > 0 {
		w.log.Infow("cleaned up idempotency keys", "tenant_id", tenantID, "count", count)
	}
}

// ensurePartitions keeps the movement table partitioned one month ahead.
func (w *MultiTenantWorker) ensurePartitions(ctx context.Context, movements *ledger_repo.MovementRepo, tenantID string) {
	now := time.Now().UTC()
	for _, month := range []time.Time{now, now.AddDate(0, 1, 0)} {
		if err := movements.EnsureMonthlyPartition(ctx, month); err != nil {
			w.log.Errorw("partition upkeep failed",
				"tenant_id", tenantID,
				"month", month.Format("2006-01"),
				"error", err,
			)
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
