package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewDB creates a new PostgreSQL connection pool.
func NewDB(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// RunMigrations creates the entitlement schema. The partial unique indexes
// enforce at most one active or trialing row per tenant and product.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE TABLE IF NOT EXISTS organizations (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			created_by TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS subscriptions (
			id                      TEXT PRIMARY KEY,
			user_id                 TEXT,
			organization_id         TEXT REFERENCES organizations(id),
			product_slug            TEXT NOT NULL,
			plan                    TEXT NOT NULL,
			status                  TEXT NOT NULL CHECK (status IN ('trialing','active','cancelled','expired','past_due')),
			billing_cycle           TEXT NOT NULL CHECK (billing_cycle IN ('monthly','annual')),
			amount                  BIGINT NOT NULL CHECK (amount > 0),
			current_period_start    TIMESTAMPTZ NOT NULL,
			current_period_end      TIMESTAMPTZ NOT NULL,
			api_key_hash            TEXT,
			api_key_enc             TEXT,
			api_key_prefix          TEXT,
			gateway_order_id        TEXT,
			gateway_payment_id      TEXT,
			gateway_subscription_id TEXT,
			created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CHECK ((user_id IS NULL) <> (organization_id IS NULL)),
			CHECK (current_period_end > current_period_start)
		);
		CREATE UNIQUE INDEX IF NOT EXISTS uq_subscriptions_live_user
			ON subscriptions(user_id, product_slug)
			WHERE user_id IS NOT NULL AND status IN ('active','trialing');
		CREATE UNIQUE INDEX IF NOT EXISTS uq_subscriptions_live_org
			ON subscriptions(organization_id, product_slug)
			WHERE organization_id IS NOT NULL AND status IN ('active','trialing');
		CREATE UNIQUE INDEX IF NOT EXISTS uq_subscriptions_api_key_hash
			ON subscriptions(api_key_hash) WHERE api_key_hash IS NOT NULL;
		CREATE UNIQUE INDEX IF NOT EXISTS uq_subscriptions_gateway_payment
			ON subscriptions(gateway_payment_id) WHERE gateway_payment_id IS NOT NULL;
		CREATE INDEX IF NOT EXISTS idx_subscriptions_user ON subscriptions(user_id);
		CREATE INDEX IF NOT EXISTS idx_subscriptions_org ON subscriptions(organization_id);

		CREATE TABLE IF NOT EXISTS payment_confirmations (
			payment_id       TEXT PRIMARY KEY,
			order_id         TEXT NOT NULL,
			subscription_id  TEXT,
			amount           BIGINT NOT NULL,
			processed_at     TIMESTAMPTZ,
			processing_error TEXT,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_payment_confirmations_order ON payment_confirmations(order_id);

		CREATE TABLE IF NOT EXISTS subscription_history (
			id              BIGSERIAL PRIMARY KEY,
			subscription_id TEXT NOT NULL REFERENCES subscriptions(id),
			action          TEXT NOT NULL,
			from_status     TEXT NOT NULL DEFAULT '',
			to_status       TEXT NOT NULL,
			plan            TEXT NOT NULL,
			period_end      TIMESTAMPTZ NOT NULL,
			actor           TEXT NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_subscription_history_sub ON subscription_history(subscription_id, id);
	`
	_, err := pool.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// isUniqueViolation recognises unique constraint failures from both drivers:
// Postgres reports SQLSTATE 23505, SQLite reports "UNIQUE constraint failed".
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isForeignKeyViolation recognises a reference to a missing parent row.
func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23503"
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
