// Package integration runs the price subsystem against a real PostgreSQL
// instance via testcontainers. These tests require Docker to be running.
//
// Usage:
//
//	go test ./tests/integration/
//
// One container is started for the whole package and migrations are applied
// once; individual tests truncate the tables they touch.
package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/the-medo/swu-collection-sub005/internal/db"
)

// TestContainer holds the PostgreSQL container and the shared connection.
type TestContainer struct {
	Container testcontainers.Container
	Database  *db.DB
}

var suiteContainer *TestContainer

// setupWithContext starts a PostgreSQL container, connects, and applies the
// migration scripts.
func setupWithContext(ctx context.Context) (*TestContainer, error) {
	migrationsPath, err := filepath.Abs("../../migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to resolve migrations path: %w", err)
	}

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("swu_test"),
		postgres.WithUsername("swu_user"),
		postgres.WithPassword("swu_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start PostgreSQL container: %w", err)
	}

	host, err := pgContainer.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	database, err := db.Connect(&db.Config{
		Host:     host,
		Port:     port.Port(),
		User:     "swu_user",
		Password: "swu_password",
		Name:     "swu_test",
		SSLMode:  "disable",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}

	if err := runMigrations(database, migrationsPath); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &TestContainer{Container: pgContainer, Database: database}, nil
}

// runMigrations executes the schema scripts in order.
func runMigrations(database *db.DB, migrationsPath string) error {
	for _, name := range []string{"001_initial_schema.sql", "002_indexes.sql"} {
		script, err := os.ReadFile(filepath.Join(migrationsPath, name))
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", name, err)
		}
		if err := database.Exec(string(script)).Error; err != nil {
			return fmt.Errorf("failed to execute %s: %w", name, err)
		}
	}
	return nil
}

// resetTables truncates the price tables between tests.
func resetTables(t *testing.T) *db.DB {
	t.Helper()
	if suiteContainer == nil {
		t.Fatal("suite container not initialized")
	}
	err := suiteContainer.Database.
		Exec("TRUNCATE card_prices, card_price_history RESTART IDENTITY").Error
	if err != nil {
		t.Fatalf("failed to reset tables: %v", err)
	}
	return suiteContainer.Database
}
