package tenancy

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"tenancy-service/pkg/logger"
)

// MigrateOptions control one runner invocation. Zero values fall back to the
// manager's configured defaults.
type MigrateOptions struct {
	// Path is the directory holding the migration SQL files.
	Path string

	// Force allows destructive operations (Fresh) to run non-interactively.
	Force bool

	// Fresh drops every table before applying the full migration set.
	Fresh bool

	// Steps limits how many migrations a rollback undoes; 0 means one.
	Steps int
}

// MigrationRunner is the schema-migration collaborator the database manager
// delegates to. Implementations return process-style exit codes (0 success)
// and own their own error reporting; the manager passes codes through
// uninterpreted.
type MigrationRunner interface {
	Migrate(db *gorm.DB, opts MigrateOptions) int
	Rollback(db *gorm.DB, opts MigrateOptions) int
	Seed(db *gorm.DB, seeder string) int
}

// Migrator applies timestamped SQL files ("20240101120000_create_orders.sql")
// from a directory, recording applied files in a schema_migrations table.
// Rollbacks use the matching "*.down.sql" counterpart when one exists.
type Migrator struct{}

// NewMigrator returns a SQL-file migration runner.
func NewMigrator() *Migrator {
	return &Migrator{}
}

type migrationFile struct {
	Name      string
	Content   string
	Timestamp time.Time
}

// Migrate applies all pending migrations. With Fresh it first drops every
// table, which requires Force.
func (m *Migrator) Migrate(db *gorm.DB, opts MigrateOptions) int {
	log := logger.GetLogger()

	if opts.Fresh {
		if !opts.Force {
			log.Error("refusing fresh migration without force")
			return 1
		}
		if err := dropAllTables(db); err != nil {
			log.Error("failed to drop tables for fresh migration", zap.Error(err))
			return 1
		}
	}

	files, err := loadMigrationFiles(opts.Path, false)
	if err != nil {
		log.Error("failed to load migration files", zap.String("path", opts.Path), zap.Error(err))
		return 1
	}
	if len(files) == 0 {
		return 0
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := ensureSchemaMigrationsTable(tx); err != nil {
			return err
		}

		applied, err := fetchApplied(tx)
		if err != nil {
			return err
		}

		for _, file := range files {
			if applied[file.Name] {
				continue
			}
			if err := tx.Exec(file.Content).Error; err != nil {
				return fmt.Errorf("applying migration %s: %w", file.Name, err)
			}
			if err := tx.Exec(
				"INSERT INTO schema_migrations (name) VALUES (?)", file.Name,
			).Error; err != nil {
				return fmt.Errorf("recording migration %s: %w", file.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		log.Error("migration run failed", zap.String("path", opts.Path), zap.Error(err))
		return 1
	}
	return 0
}

// Rollback undoes the most recently applied migrations, newest first, using
// their *.down.sql counterparts. Migrations without a down file stop the
// rollback.
func (m *Migrator) Rollback(db *gorm.DB, opts MigrateOptions) int {
	log := logger.GetLogger()

	steps := opts.Steps
	if steps <= 0 {
		steps = 1
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := ensureSchemaMigrationsTable(tx); err != nil {
			return err
		}

		type record struct {
			Name string
		}
		var rows []record
		if err := tx.Raw(
			"SELECT name FROM schema_migrations ORDER BY name DESC LIMIT ?", steps,
		).Scan(&rows).Error; err != nil {
			return err
		}

		for _, row := range rows {
			downPath := filepath.Join(opts.Path, downName(row.Name))
			content, err := os.ReadFile(downPath)
			if err != nil {
				return fmt.Errorf("no down migration for %s: %w", row.Name, err)
			}
			if err := tx.Exec(string(content)).Error; err != nil {
				return fmt.Errorf("rolling back %s: %w", row.Name, err)
			}
			if err := tx.Exec(
				"DELETE FROM schema_migrations WHERE name = ?", row.Name,
			).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Error("rollback failed", zap.String("path", opts.Path), zap.Error(err))
		return 1
	}
	return 0
}

// Seed executes a seed SQL file. The seeder is either a path or a file name
// resolved relative to the current directory.
func (m *Migrator) Seed(db *gorm.DB, seeder string) int {
	log := logger.GetLogger()

	content, err := os.ReadFile(seeder)
	if err != nil {
		log.Error("failed to read seeder", zap.String("seeder", seeder), zap.Error(err))
		return 1
	}
	if err := db.Exec(string(content)).Error; err != nil {
		log.Error("seeding failed", zap.String("seeder", seeder), zap.Error(err))
		return 1
	}
	return 0
}

func loadMigrationFiles(dir string, includeDown bool) ([]migrationFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading migrations directory %s: %w", dir, err)
	}

	files := make([]migrationFile, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		if !includeDown && strings.HasSuffix(name, ".down.sql") {
			continue
		}

		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading migration %s: %w", name, err)
		}

		ts, err := parseTimestamp(name)
		if err != nil {
			return nil, err
		}

		files = append(files, migrationFile{
			Name:      name,
			Content:   string(content),
			Timestamp: ts,
		})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].Timestamp.Equal(files[j].Timestamp) {
			return files[i].Name < files[j].Name
		}
		return files[i].Timestamp.Before(files[j].Timestamp)
	})

	return files, nil
}

func parseTimestamp(name string) (time.Time, error) {
	parts := strings.SplitN(filepath.Base(name), "_", 2)
	if len(parts) < 2 || len(parts[0]) != 14 {
		return time.Time{}, fmt.Errorf("migration %s does not follow 'YYYYMMDDHHMMSS_name.sql'", name)
	}
	parsed, err := time.Parse("20060102150405", parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp of migration %s: %w", name, err)
	}
	return parsed, nil
}

func downName(upName string) string {
	return strings.TrimSuffix(upName, ".sql") + ".down.sql"
}

func ensureSchemaMigrationsTable(tx *gorm.DB) error {
	const createTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    name VARCHAR(255) NOT NULL PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);`
	return tx.Exec(createTable).Error
}

func fetchApplied(tx *gorm.DB) (map[string]bool, error) {
	type record struct {
		Name string
	}
	var rows []record
	if err := tx.Raw("SELECT name FROM schema_migrations").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("querying applied migrations: %w", err)
	}

	applied := make(map[string]bool, len(rows))
	for _, row := range rows {
		applied[row.Name] = true
	}
	return applied, nil
}

func dropAllTables(db *gorm.DB) error {
	tables, err := db.Migrator().GetTables()
	if err != nil {
		return err
	}
	for _, table := range tables {
		if err := db.Migrator().DropTable(table); err != nil {
			return fmt.Errorf("dropping table %s: %w", table, err)
		}
	}
	return nil
}
