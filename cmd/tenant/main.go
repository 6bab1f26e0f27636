// The tenant CLI provisions and administers tenant databases: it creates
// the database, runs migrations with goose and maintains the registry
// rows in the meta database.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"comercia/internal/core/tenant"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx := context.Background()

	switch os.Args[1] {
	case "create":
		createTenant(ctx)
	case "list":
		listTenants(ctx)
	case "migrate":
		migrateTenants(ctx)
	case "suspend":
		setTenantStatus(ctx, "suspend", tenant.StatusSuspended, "suspended")
	case "activate":
		setTenantStatus(ctx, "activate", tenant.StatusActive, "activated")
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Comercia Tenant Management CLI

Usage:
  tenant <command> [options]

Commands:
  create    Create a new tenant
  list      List all tenants
  migrate   Run migrations for tenant(s)
  suspend   Suspend a tenant
  activate  Activate a suspended tenant
  help      Show this help

Environment Variables:
  META_DATABASE_URL    Connection string for meta database (required)
  TENANT_DB_USER       Username for tenant databases (required)
  TENANT_DB_PASSWORD   Password for tenant databases (required)
  POSTGRES_ADMIN_URL   Admin connection for creating databases

Examples:
  tenant create --slug acme --name "ACME Corporation"
  tenant list
  tenant migrate --all
  tenant migrate --id <tenant-uuid-or-slug>
  tenant suspend acme
  tenant activate acme`)
}

func getMetaPool(ctx context.Context) *pgxpool.Pool {
	metaDSN := os.Getenv("META_DATABASE_URL")
	if metaDSN == "" {
		fmt.Println("Error: META_DATABASE_URL environment variable is required")
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, metaDSN)
	if err != nil {
		fmt.Printf("Error connecting to meta database: %v\n", err)
		os.Exit(1)
	}

	return pool
}

func createTenant(ctx context.Context) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	slug := fs.String("slug", "", "tenant slug (lowercase, becomes part of the db name)")
	name := fs.String("name", "", "display name")
	plan := fs.String("plan", string(tenant.PlanStandard), "standard|premium|enterprise")
	host := fs.String("db-host", "localhost", "host of the tenant database server")
	port := fs.Int("db-port", 5432, "port of the tenant database server")
	fs.Parse(os.Args[2:])

	input := tenant.CreateTenantInput{
		Slug:        *slug,
		DisplayName: *name,
		Plan:        tenant.Plan(*plan),
		DBHost:      *host,
		DBPort:      *port,
	}
	if err := input.Validate(); err != nil {
		fmt.Printf("Error: %v\n", err)
		fs.Usage()
		os.Exit(1)
	}

	metaPool := getMetaPool(ctx)
	defer metaPool.Close()

	registry := tenant.NewPostgresRegistry(metaPool)
	dbName := input.GenerateDBName()

	fmt.Printf("Creating tenant '%s'...\n", input.Slug)

	createDatabase(ctx, dbName)

	dbUser := os.Getenv("TENANT_DB_USER")
	dbPassword := os.Getenv("TENANT_DB_PASSWORD")
	if dbUser != "" && dbPassword != "" {
		fmt.Println("  Running migrations...")
		dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
			dbUser, dbPassword, input.DBHost, input.DBPort, dbName)
		if err := runGoose(dsn); err != nil {
			fmt.Printf("  Warning: Migrations failed: %v\n", err)
			fmt.Println("  You may need to run migrations manually.")
		} else {
			fmt.Println("  Migrations completed")
		}
	}

	fmt.Println("  Registering tenant...")

	t := &tenant.Tenant{
		Slug:        input.Slug,
		DisplayName: input.DisplayName,
		DBName:      dbName,
		DBHost:      input.DBHost,
		DBPort:      input.DBPort,
		Status:      tenant.StatusActive,
		Plan:        input.Plan,
	}

	if err := registry.Create(ctx, t); err != nil {
		fmt.Printf("Error registering tenant: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n✓ Tenant '%s' created successfully!\n", input.Slug)
	fmt.Printf("  Tenant ID: %s\n", t.ID)
	fmt.Printf("  Database: %s\n", dbName)
	fmt.Printf("  Status: active\n")
	fmt.Printf("  Plan: %s\n", input.Plan)
}

// createDatabase issues CREATE DATABASE over the admin connection. The
// tenant can still be registered by hand when no admin URL is available,
// so failures here only warn.
func createDatabase(ctx context.Context, dbName string) {
	adminDSN := os.Getenv("POSTGRES_ADMIN_URL")
	if adminDSN == "" {
		// Reuse the meta credentials against the postgres database.
		adminDSN = strings.Replace(os.Getenv("META_DATABASE_URL"), "/comercia_meta", "/postgres", 1)
	}
	if adminDSN == "" {
		return
	}

	fmt.Printf("  Creating database %s...\n", dbName)
	adminPool, err := pgxpool.New(ctx, adminDSN)
	if err != nil {
		fmt.Printf("  Warning: Could not connect as admin: %v\n", err)
		fmt.Println("  You may need to create the database manually.")
		return
	}
	defer adminPool.Close()

	if _, err := adminPool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", dbName)); err != nil {
		if strings.Contains(err.Error(), "already exists") {
			fmt.Println("  Database already exists")
		} else {
			fmt.Printf("  Warning: Could not create database: %v\n", err)
		}
		return
	}
	fmt.Println("  Database created")
}

// runGoose applies db/migrations to the given database.
func runGoose(dsn string) error {
	cmd := exec.Command("goose", "-dir", "db/migrations", "postgres", dsn, "up")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func listTenants(ctx context.Context) {
	metaPool := getMetaPool(ctx)
	defer metaPool.Close()

	registry := tenant.NewPostgresRegistry(metaPool)
	tenants, err := registry.ListAll(ctx)
	if err != nil {
		fmt.Printf("Error listing tenants: %v\n", err)
		os.Exit(1)
	}

	if len(tenants) == 0 {
		fmt.Println("No tenants found")
		return
	}

	fmt.Printf("%-36s %-20s %-30s %-15s %-12s %-10s\n", "TENANT_ID", "SLUG", "NAME", "DATABASE", "PLAN", "STATUS")
	fmt.Println(strings.Repeat("-", 135))

	for _, t := range tenants {
		fmt.Printf("%-36s %-20s %-30s %-15s %-12s %-10s\n",
			truncate(t.ID, 36),
			truncate(t.Slug, 20),
			truncate(t.DisplayName, 30),
			truncate(t.DBName, 15),
			t.Plan,
			t.Status,
		)
	}
}

func migrateTenants(ctx context.Context) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	targetID := fs.String("id", "", "tenant uuid or slug")
	all := fs.Bool("all", false, "migrate every active tenant")
	fs.Parse(os.Args[2:])

	if !*all && *targetID == "" {
		fmt.Println("Error: specify --id <tenant-uuid-or-slug> or --all")
		os.Exit(1)
	}

	dbUser := os.Getenv("TENANT_DB_USER")
	dbPassword := os.Getenv("TENANT_DB_PASSWORD")
	if dbUser == "" || dbPassword == "" {
		fmt.Println("Error: TENANT_DB_USER and TENANT_DB_PASSWORD are required")
		os.Exit(1)
	}

	metaPool := getMetaPool(ctx)
	defer metaPool.Close()

	registry := tenant.NewPostgresRegistry(metaPool)

	var tenants []*tenant.Tenant
	if *all {
		active, err := registry.ListActive(ctx)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		tenants = active
	} else {
		tenants = []*tenant.Tenant{resolveTenant(ctx, registry, *targetID)}
	}

	for _, t := range tenants {
		fmt.Printf("Migrating %s (%s)...\n", t.Slug, t.DBName)
		if err := runGoose(t.DSN(dbUser, dbPassword)); err != nil {
			fmt.Printf("  ✗ Failed: %v\n", err)
		} else {
			fmt.Printf("  ✓ Done\n")
		}
	}
}

func setTenantStatus(ctx context.Context, command string, status tenant.Status, past string) {
	if len(os.Args) < 3 {
		fmt.Printf("Usage: tenant %s <tenant-uuid-or-slug>\n", command)
		os.Exit(1)
	}

	metaPool := getMetaPool(ctx)
	defer metaPool.Close()

	registry := tenant.NewPostgresRegistry(metaPool)
	t := resolveTenant(ctx, registry, os.Args[2])

	if err := registry.UpdateStatusByID(ctx, t.ID, status); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Tenant '%s' %s\n", t.Slug, past)
}

// resolveTenant accepts either a tenant UUID or a slug.
func resolveTenant(ctx context.Context, registry tenant.Registry, ref string) *tenant.Tenant {
	var (
		t   *tenant.Tenant
		err error
	)
	if _, parseErr := uuid.Parse(ref); parseErr == nil {
		t, err = registry.GetByID(ctx, ref)
	} else {
		t, err = registry.GetBySlug(ctx, ref)
	}
	if err != nil {
		fmt.Printf("Error: tenant '%s' not found\n", ref)
		os.Exit(1)
	}
	return t
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
