package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"

	"github.com/sijan324/nepshop/internal/repository"
)

// InitDB opens a pool with the given driver ("postgres" for lib/pq or "pgx"),
// checks connectivity and applies the schema.
func InitDB(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	switch driver {
	case "postgres", "pgx":
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrateDB(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	slog.Info("Database connected and migrated", "driver", driver)
	return db, nil
}

func migrateDB(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			price NUMERIC(12,2) NOT NULL DEFAULT 0,
			stock INT NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS product_images (
			product_id TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
			position INT NOT NULL,
			url TEXT NOT NULL,
			PRIMARY KEY (product_id, position)
		);

		CREATE TABLE IF NOT EXISTS product_variants (
			product_id TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
			id TEXT NOT NULL,
			position INT NOT NULL DEFAULT 0,
			name TEXT NOT NULL DEFAULT '',
			price NUMERIC(12,2),
			stock INT NOT NULL DEFAULT 0,
			PRIMARY KEY (product_id, id)
		);

		CREATE TABLE IF NOT EXISTS carts (
			id TEXT PRIMARY KEY,
			account_id TEXT UNIQUE,
			session_id TEXT UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CHECK ((account_id IS NULL) <> (session_id IS NULL))
		);

		CREATE TABLE IF NOT EXISTS cart_lines (
			id TEXT PRIMARY KEY,
			cart_id TEXT NOT NULL REFERENCES carts(id) ON DELETE CASCADE,
			product_id TEXT NOT NULL,
			variant_id TEXT NOT NULL DEFAULT '',
			quantity INT NOT NULL CHECK (quantity > 0),
			unit_price NUMERIC(12,2) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (cart_id, product_id, variant_id)
		);

		CREATE TABLE IF NOT EXISTS cart_outbox (
			id TEXT PRIMARY KEY,
			cart_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			payload JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			published_at TIMESTAMPTZ
		);

		CREATE INDEX IF NOT EXISTS cart_outbox_pending_idx
			ON cart_outbox (created_at, id) WHERE published_at IS NULL;
	`)
	return err
}

type dbPinger struct {
	db *sql.DB
}

// NewPinger reports database readiness for health checks.
func NewPinger(db *sql.DB) repository.Pinger {
	return &dbPinger{db: db}
}

func (p *dbPinger) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return wrapErr("ping database", err)
	}
	return nil
}
