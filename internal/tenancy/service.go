package tenancy

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"tenancy-service/internal/model"
	"tenancy-service/pkg/config"
	"tenancy-service/pkg/logger"
)

var (
	// ErrSlugTaken means another tenant already owns the requested slug.
	ErrSlugTaken = errors.New("tenancy: slug already in use")

	// ErrReservedSubdomain means the slug collides with a reserved subdomain.
	ErrReservedSubdomain = errors.New("tenancy: subdomain is reserved")

	// ErrTenantNotFound is returned by lookups with no match.
	ErrTenantNotFound = errors.New("tenancy: tenant not found")
)

// Service orchestrates tenant lifecycle: creation with optional database
// provisioning, deletion with cascade, and batch migrations. Single-tenant
// operations fail loudly; batch operations aggregate per-tenant outcomes and
// never abort on one failure. The service itself is safe for concurrent use:
// every operation builds its own database manager from the factory, so no
// connection state is shared between callers.
type Service struct {
	cfg        *config.Config
	central    *gorm.DB
	newManager ManagerFactory
	events     *Dispatcher
}

// NewService wires the orchestration service over the central connection.
func NewService(cfg *config.Config, central *gorm.DB, newManager ManagerFactory, events *Dispatcher) *Service {
	if newManager == nil {
		newManager = func() *MultiDatabaseManager {
			return NewMultiDatabaseManager(cfg, central, nil, events)
		}
	}
	return &Service{cfg: cfg, central: central, newManager: newManager, events: events}
}

// Manager returns a fresh database manager over the shared configuration.
// Managers carry single-slot connection state and must not be shared across
// goroutines; callers keep the returned instance to themselves.
func (s *Service) Manager() *MultiDatabaseManager {
	return s.newManager()
}

// CreateTenantInput carries the explicit creation parameters; everything else
// is derived (slug from name, database from slug, subdomain from slug).
type CreateTenantInput struct {
	Name        string
	Slug        string
	Email       string
	Description string
	OwnerID     uint
	Database    string

	// SkipDatabase and SkipMigration override the auto_create/auto_migrate
	// provisioning flags for this call.
	SkipDatabase  bool
	SkipMigration bool

	// Seed runs the seeder after migration, overriding auto_seed.
	Seed   bool
	Seeder string
}

// CreateTenant creates the tenant row, binds its primary subdomain, and, in
// multi-database mode, provisions the physical database per configuration.
func (s *Service) CreateTenant(in CreateTenantInput) (*model.Tenant, error) {
	log := logger.GetLogger()
	tc := s.cfg.Tenancy

	slug := in.Slug
	if slug == "" {
		slug = model.Slugify(in.Name)
	}
	if slug == "" {
		return nil, fmt.Errorf("tenancy: cannot derive slug from name %q", in.Name)
	}
	if tc.IsReservedSubdomain(slug) {
		return nil, fmt.Errorf("%w: %q", ErrReservedSubdomain, slug)
	}

	var count int64
	if err := s.central.Model(&model.Tenant{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, fmt.Errorf("%w: %q", ErrSlugTaken, slug)
	}

	tenant := &model.Tenant{
		Name:        in.Name,
		Slug:        slug,
		Email:       in.Email,
		Description: in.Description,
		OwnerID:     in.OwnerID,
		Database:    in.Database,
	}
	if tc.IsMulti() {
		tenant.DeriveDatabase(tc.DatabasePrefix, tc.DatabaseSuffix)
	}

	err := s.central.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(tenant).Error; err != nil {
			return err
		}
		if tc.BaseDomain != "" {
			if _, err := model.CreateSubdomain(tx, tenant, tenant.Slug, tc.BaseDomain, true); err != nil {
				return err
			}
		}
		if in.OwnerID != 0 {
			owner := model.User{ID: in.OwnerID}
			if err := tenant.AddUser(tx, &owner, model.RoleOwner, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.events != nil {
		s.events.Dispatch(Event{Name: EventTenantCreated, Tenant: tenant})
	}
	log.Info("tenant created",
		zap.String("tenant_id", tenant.ID),
		zap.String("slug", tenant.Slug))

	if !tc.IsMulti() {
		return tenant, nil
	}

	if tc.AutoCreateDatabase && !in.SkipDatabase {
		manager := s.newManager()
		defer manager.End()

		if result := manager.CreateDatabase(tenant); !result.OK() {
			return tenant, fmt.Errorf("tenancy: provisioning database %q: %w", result.Database, result.Err)
		}

		if tc.AutoMigrate && !in.SkipMigration {
			code, err := manager.MigrateTenant(tenant, MigrateOptions{})
			if err != nil {
				return tenant, err
			}
			if code != 0 {
				return tenant, fmt.Errorf("tenancy: tenant migration exited with code %d", code)
			}
		}

		if tc.AutoSeed || in.Seed {
			code, err := manager.SeedTenant(tenant, in.Seeder)
			if err != nil {
				return tenant, err
			}
			if code != 0 {
				return tenant, fmt.Errorf("tenancy: tenant seeding exited with code %d", code)
			}
		}
	}

	return tenant, nil
}

// FindTenant looks a tenant up by id or slug.
func (s *Service) FindTenant(idOrSlug string) (*model.Tenant, error) {
	var tenant model.Tenant
	err := s.central.Where("id = ? OR slug = ?", idOrSlug, idOrSlug).First(&tenant).Error
	if err == gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("%w: %q", ErrTenantNotFound, idOrSlug)
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

// ListTenants returns all live tenants.
func (s *Service) ListTenants() ([]model.Tenant, error) {
	var tenants []model.Tenant
	if err := s.central.Order("slug").Find(&tenants).Error; err != nil {
		return nil, err
	}
	return tenants, nil
}

// DeleteTenant removes a tenant. Without force this is a soft delete and the
// tenant stays retrievable. With force the tenant is hard-deleted: user
// associations are detached, domains removed, and (unless keepDatabase) the
// physical database dropped.
func (s *Service) DeleteTenant(idOrSlug string, force, keepDatabase bool) error {
	tenant, err := s.FindTenant(idOrSlug)
	if err != nil {
		return err
	}

	if !force {
		if err := s.central.Delete(tenant).Error; err != nil {
			return err
		}
		if s.events != nil {
			s.events.Dispatch(Event{Name: EventTenantDeleted, Tenant: tenant})
		}
		return nil
	}

	err = s.central.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tenant_id = ?", tenant.ID).Delete(&model.TenantUser{}).Error; err != nil {
			return err
		}
		if err := tx.Where("tenant_id = ?", tenant.ID).Delete(&model.Domain{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(tenant).Error
	})
	if err != nil {
		return err
	}

	if s.cfg.Tenancy.IsMulti() && !keepDatabase {
		if result := s.newManager().DeleteDatabase(tenant); !result.OK() {
			return fmt.Errorf("tenancy: dropping database %q: %w", result.Database, result.Err)
		}
	}

	if s.events != nil {
		s.events.Dispatch(Event{Name: EventTenantDeleted, Tenant: tenant})
	}
	logger.GetLogger().Info("tenant deleted",
		zap.String("tenant_id", tenant.ID),
		zap.String("slug", tenant.Slug),
		zap.Bool("force", force))
	return nil
}

// BatchResult is one tenant's outcome inside a batch operation.
type BatchResult struct {
	TenantSlug string
	ExitCode   int
	Err        error
}

// OK reports whether the tenant's operation succeeded.
func (r BatchResult) OK() bool {
	return r.Err == nil && r.ExitCode == 0
}

// BatchSummary aggregates per-tenant outcomes.
type BatchSummary struct {
	Results []BatchResult
}

// Succeeded returns the slugs that completed cleanly.
func (s BatchSummary) Succeeded() []string {
	var out []string
	for _, r := range s.Results {
		if r.OK() {
			out = append(out, r.TenantSlug)
		}
	}
	return out
}

// Failed returns the slugs that did not complete.
func (s BatchSummary) Failed() []string {
	var out []string
	for _, r := range s.Results {
		if !r.OK() {
			out = append(out, r.TenantSlug)
		}
	}
	return out
}

// String renders the summary for CLI output.
func (s BatchSummary) String() string {
	return fmt.Sprintf("succeeded: [%s], failed: [%s]",
		strings.Join(s.Succeeded(), ", "),
		strings.Join(s.Failed(), ", "))
}

// MigrateTenants migrates one tenant (filter = id or slug) or all of them.
// Each tenant runs inside a Run scope so a failure cannot leak connection
// state into the next tenant, and failures never abort the batch.
func (s *Service) MigrateTenants(filter string, opts MigrateOptions, seed bool, seeder string) (BatchSummary, error) {
	var tenants []model.Tenant
	if filter != "" {
		tenant, err := s.FindTenant(filter)
		if err != nil {
			return BatchSummary{}, err
		}
		tenants = []model.Tenant{*tenant}
	} else {
		var err error
		tenants, err = s.ListTenants()
		if err != nil {
			return BatchSummary{}, err
		}
	}

	manager := s.newManager()
	summary := BatchSummary{Results: make([]BatchResult, 0, len(tenants))}
	for i := range tenants {
		tenant := &tenants[i]
		result := BatchResult{TenantSlug: tenant.Slug}

		err := manager.Run(tenant, func(db *gorm.DB) error {
			code, err := manager.MigrateTenant(tenant, opts)
			if err != nil {
				return err
			}
			result.ExitCode = code
			if code != 0 {
				return nil
			}

			if seed {
				code, err = manager.SeedTenant(tenant, seeder)
				if err != nil {
					return err
				}
				result.ExitCode = code
			}
			return nil
		})
		result.Err = err

		if !result.OK() {
			logger.GetLogger().Error("tenant migration failed",
				zap.String("slug", tenant.Slug),
				zap.Int("exit_code", result.ExitCode),
				zap.Error(err))
		}
		summary.Results = append(summary.Results, result)
	}

	return summary, nil
}
