package database

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/ManuelReschke/SubGate/internal/pkg/env"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// MigrationDatabaseURL builds the golang-migrate URL from the DB_* settings.
func MigrationDatabaseURL() string {
	return fmt.Sprintf("mysql://%s:%s@tcp(%s:%s)/%s?multiStatements=true",
		env.GetEnv("DB_USER", "subgate"),
		env.GetEnv("DB_PASSWORD", "subgate"),
		env.GetEnv("DB_HOST", "db"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", "subgate_db"),
	)
}

// MigrationSourceURL locates the migrations directory from the working
// directory or the project root.
func MigrationSourceURL() string {
	if dir := env.GetEnv("MIGRATIONS_DIR", ""); dir != "" {
		return "file://" + dir
	}
	for _, dir := range []string{"migrations", "../../migrations", "../../../migrations"} {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return "file://" + dir
		}
	}
	return "file://migrations"
}

// NewMigrator opens a migrator for the configured database.
func NewMigrator() (*migrate.Migrate, error) {
	return migrate.New(MigrationSourceURL(), MigrationDatabaseURL())
}

// MigrateUp applies all pending migrations.
func MigrateUp() error {
	m, err := NewMigrator()
	if err != nil {
		return err
	}
	defer func() {
		if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
			log.Printf("Failed to close migration resources: %v, %v", sourceErr, dbErr)
		}
	}()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Println("Database schema is up to date")
			return nil
		}
		return err
	}
	log.Println("Migrations applied")
	return nil
}
