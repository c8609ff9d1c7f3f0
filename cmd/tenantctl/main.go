package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"tenancy-service/internal/tenancy"
	"tenancy-service/pkg/config"
	"tenancy-service/pkg/database"
	"tenancy-service/pkg/logger"
)

type options struct {
	Create bool
	Delete bool
	List   bool

	Migrate  bool
	Rollback bool

	Name        string
	Slug        string
	Email       string
	Description string
	OwnerID     uint

	Tenant        string
	Force         bool
	KeepDatabase  bool
	Fresh         bool
	Steps         int
	Seed          bool
	Seeder        string
	SkipDatabase  bool
	SkipMigration bool
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	opts, err := parseOptions(args)
	if err != nil {
		return err
	}

	if !opts.anyOperation() {
		fmt.Println("No operation given. Use --help to list the available options.")
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := logger.InitLogger(cfg); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	log := logger.GetLogger()

	if err := database.Initialize(cfg); err != nil {
		return fmt.Errorf("connecting to central database: %w", err)
	}

	events := tenancy.NewDispatcher()
	newManager := func() *tenancy.MultiDatabaseManager {
		return tenancy.NewMultiDatabaseManager(cfg, database.GetDB(), tenancy.NewMigrator(), events)
	}
	svc := tenancy.NewService(cfg, database.GetDB(), newManager, events)

	if opts.List {
		tenants, err := svc.ListTenants()
		if err != nil {
			return fmt.Errorf("listing tenants: %w", err)
		}
		for _, t := range tenants {
			fmt.Printf("%s\t%s\t%s\n", t.ID, t.Slug, t.GetDatabaseName())
		}
		fmt.Printf("%d tenant(s)\n", len(tenants))
	}

	if opts.Create {
		if opts.Name == "" {
			return fmt.Errorf("--name is required with --create")
		}
		tenant, err := svc.CreateTenant(tenancy.CreateTenantInput{
			Name:          opts.Name,
			Slug:          opts.Slug,
			Email:         opts.Email,
			Description:   opts.Description,
			OwnerID:       opts.OwnerID,
			SkipDatabase:  opts.SkipDatabase,
			SkipMigration: opts.SkipMigration,
			Seed:          opts.Seed,
			Seeder:        opts.Seeder,
		})
		if err != nil {
			return fmt.Errorf("creating tenant: %w", err)
		}
		log.Info("tenant created",
			zap.String("id", tenant.ID),
			zap.String("slug", tenant.Slug),
			zap.String("database", tenant.GetDatabaseName()))
		fmt.Printf("created tenant %s (%s)\n", tenant.Slug, tenant.ID)
	}

	if opts.Delete {
		if opts.Tenant == "" {
			return fmt.Errorf("--tenant is required with --delete")
		}
		if err := svc.DeleteTenant(opts.Tenant, opts.Force, opts.KeepDatabase); err != nil {
			return fmt.Errorf("deleting tenant: %w", err)
		}
		fmt.Printf("deleted tenant %s\n", opts.Tenant)
	}

	if opts.Migrate {
		summary, err := svc.MigrateTenants(opts.Tenant, tenancy.MigrateOptions{
			Force: opts.Force,
			Fresh: opts.Fresh,
		}, opts.Seed, opts.Seeder)
		if err != nil {
			return fmt.Errorf("migrating tenants: %w", err)
		}
		fmt.Println(summary.String())
		if len(summary.Failed()) > 0 {
			return fmt.Errorf("%d tenant(s) failed to migrate", len(summary.Failed()))
		}
	}

	if opts.Rollback {
		if opts.Tenant == "" {
			return fmt.Errorf("--tenant is required with --rollback")
		}
		tenant, err := svc.FindTenant(opts.Tenant)
		if err != nil {
			return err
		}
		code, err := svc.Manager().RollbackTenant(tenant, tenancy.MigrateOptions{Steps: opts.Steps})
		if err != nil {
			return fmt.Errorf("rolling back tenant: %w", err)
		}
		if code != 0 {
			return fmt.Errorf("rollback exited with code %d", code)
		}
		fmt.Printf("rolled back tenant %s\n", tenant.Slug)
	}

	return nil
}

func parseOptions(args []string) (options, error) {
	var opts options

	fs := pflag.NewFlagSet("tenantctl", pflag.ContinueOnError)
	fs.BoolVar(&opts.Create, "create", false, "Create a tenant")
	fs.BoolVar(&opts.Delete, "delete", false, "Delete a tenant (soft unless --force)")
	fs.BoolVar(&opts.List, "list", false, "List all tenants")
	fs.BoolVar(&opts.Migrate, "migrate", false, "Run tenant migrations (one tenant with --tenant, otherwise all)")
	fs.BoolVar(&opts.Rollback, "rollback", false, "Roll back tenant migrations")

	fs.StringVar(&opts.Name, "name", "", "Tenant display name")
	fs.StringVar(&opts.Slug, "slug", "", "Tenant slug (derived from name when empty)")
	fs.StringVar(&opts.Email, "email", "", "Tenant contact email")
	fs.StringVar(&opts.Description, "description", "", "Tenant description")
	fs.UintVar(&opts.OwnerID, "owner", 0, "Owning user id")

	fs.StringVar(&opts.Tenant, "tenant", "", "Tenant id or slug to operate on")
	fs.BoolVar(&opts.Force, "force", false, "Hard delete, or allow destructive migrations")
	fs.BoolVar(&opts.KeepDatabase, "keep-database", false, "Keep the tenant database when force-deleting")
	fs.BoolVar(&opts.Fresh, "fresh", false, "Drop all tables before migrating (requires --force)")
	fs.IntVar(&opts.Steps, "steps", 1, "Number of migrations to roll back")
	fs.BoolVar(&opts.Seed, "seed", false, "Run the seeder after migrating")
	fs.StringVar(&opts.Seeder, "seeder", "", "Seeder to run (defaults to the configured one)")
	fs.BoolVar(&opts.SkipDatabase, "skip-database", false, "Skip database provisioning on create")
	fs.BoolVar(&opts.SkipMigration, "skip-migration", false, "Skip tenant migrations on create")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

func (o options) anyOperation() bool {
	return o.Create || o.Delete || o.List || o.Migrate || o.Rollback
}
