package dbtest

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vasiliy-maslov/storefront/internal/db"
)

// EnvDatabaseURL names the variable holding a postgres:// URL of a disposable database.
// Integration tests are skipped when it is unset.
const EnvDatabaseURL = "STOREFRONT_TEST_DATABASE_URL"

// OpenPool connects to the test database and migrates it. It returns nil, nil
// when EnvDatabaseURL is unset.
func OpenPool(migrationsDir string) (*pgxpool.Pool, error) {
	databaseURL := os.Getenv(EnvDatabaseURL)
	if databaseURL == "" {
		return nil, nil
	}

	migrateURL := databaseURL
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(migrateURL, prefix) {
			migrateURL = "pgx5://" + strings.TrimPrefix(migrateURL, prefix)
			break
		}
	}
	if err := db.MigrateUp(migrationsDir, migrateURL); err != nil {
		return nil, fmt.Errorf("dbtest: failed to migrate test database: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("dbtest: failed to parse test database url: %w", err)
	}
	poolConfig.MaxConns = 10

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("dbtest: failed to connect to test database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("dbtest: failed to ping test database: %w", err)
	}

	return pool, nil
}

// Truncate empties every storefront table.
func Truncate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `TRUNCATE order_items, orders, users, products`)
	return err
}
