package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/Jeevanvsan/byee-ugraph-saas/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the embedded entitlement store for single-node deployments.
// It implements the same contract as the Postgres repositories. Timestamps
// are stored as unix milliseconds.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database file at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}

	dsn := path + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
			"foreign_keys(1)",
		},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS organizations (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		created_by TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS subscriptions (
		id                      TEXT PRIMARY KEY,
		user_id                 TEXT,
		organization_id         TEXT REFERENCES organizations(id),
		product_slug            TEXT NOT NULL,
		plan                    TEXT NOT NULL,
		status                  TEXT NOT NULL CHECK (status IN ('trialing','active','cancelled','expired','past_due')),
		billing_cycle           TEXT NOT NULL CHECK (billing_cycle IN ('monthly','annual')),
		amount                  INTEGER NOT NULL CHECK (amount > 0),
		current_period_start    INTEGER NOT NULL,
		current_period_end      INTEGER NOT NULL,
		api_key_hash            TEXT,
		api_key_enc             TEXT,
		api_key_prefix          TEXT,
		gateway_order_id        TEXT,
		gateway_payment_id      TEXT,
		gateway_subscription_id TEXT,
		created_at              INTEGER NOT NULL,
		updated_at              INTEGER NOT NULL,
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

	CREATE TABLE IF NOT EXISTS payment_confirmations (
		payment_id       TEXT PRIMARY KEY,
		order_id         TEXT NOT NULL,
		subscription_id  TEXT,
		amount           INTEGER NOT NULL,
		processed_at     INTEGER,
		processing_error TEXT,
		created_at       INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS subscription_history (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		subscription_id TEXT NOT NULL REFERENCES subscriptions(id),
		action          TEXT NOT NULL,
		from_status     TEXT NOT NULL DEFAULT '',
		to_status       TEXT NOT NULL,
		plan            TEXT NOT NULL,
		period_end      INTEGER NOT NULL,
		actor           TEXT NOT NULL,
		created_at      INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_subscription_history_sub ON subscription_history(subscription_id, id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init sqlite schema: %w", err)
	}
	return nil
}

// Ping checks database connectivity (used for readiness probes).
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// --- Subscriptions ---

func (s *SQLiteStore) Create(ctx context.Context, sub *domain.Subscription) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.UserID, sub.OrganizationID, sub.ProductSlug, sub.Plan, string(sub.Status),
		string(sub.BillingCycle), sub.Amount, toMillis(sub.CurrentPeriodStart), toMillis(sub.CurrentPeriodEnd),
		sub.APIKeyHash, sub.APIKeyEnc, sub.APIKeyPrefix,
		sub.GatewayOrderID, sub.GatewayPaymentID, sub.GatewaySubscriptionID,
		toMillis(sub.CreatedAt), toMillis(sub.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadySubscribed
		}
		if isForeignKeyViolation(err) {
			return domain.ErrOrganizationNotFound
		}
		return fmt.Errorf("create subscription: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FindByID(ctx context.Context, id string) (*domain.Subscription, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id)
	return scanSQLiteSubscription(row)
}

func (s *SQLiteStore) FindLive(ctx context.Context, t domain.TenantRef, product string) (*domain.Subscription, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE `+tenantColumn(t.Kind)+` = ? AND product_slug = ? AND status IN ('active','trialing')`,
		t.ID, product)
	return scanSQLiteSubscription(row)
}

func (s *SQLiteStore) ListByTenant(ctx context.Context, t domain.TenantRef) ([]*domain.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE `+tenantColumn(t.Kind)+` = ? ORDER BY created_at DESC, id`, t.ID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*domain.Subscription
	for rows.Next() {
		sub, err := scanSQLiteSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *SQLiteStore) FindByKeyHash(ctx context.Context, kind domain.TenantKind, hash, product string) (*domain.Subscription, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE api_key_hash = ? AND product_slug = ? AND `+tenantColumn(kind)+` IS NOT NULL`,
		hash, product)
	return scanSQLiteSubscription(row)
}

func (s *SQLiteStore) Update(ctx context.Context, sub *domain.Subscription, expected domain.Status, prevUpdatedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE subscriptions SET
			plan = ?, status = ?, billing_cycle = ?, amount = ?,
			current_period_start = ?, current_period_end = ?,
			api_key_hash = ?, api_key_enc = ?, api_key_prefix = ?,
			gateway_order_id = ?, gateway_payment_id = ?, gateway_subscription_id = ?,
			updated_at = ?
		WHERE id = ? AND status = ? AND updated_at = ?`,
		sub.Plan, string(sub.Status), string(sub.BillingCycle), sub.Amount,
		toMillis(sub.CurrentPeriodStart), toMillis(sub.CurrentPeriodEnd),
		sub.APIKeyHash, sub.APIKeyEnc, sub.APIKeyPrefix,
		sub.GatewayOrderID, sub.GatewayPaymentID, sub.GatewaySubscriptionID,
		toMillis(sub.UpdatedAt), sub.ID, string(expected), toMillis(prevUpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadySubscribed
		}
		return fmt.Errorf("update subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if n == 0 {
		return domain.ErrStaleWrite
	}
	return nil
}

func (s *SQLiteStore) CountByStatus(ctx context.Context) ([]domain.StatusCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_slug, status, COUNT(*) FROM subscriptions
		GROUP BY product_slug, status ORDER BY product_slug, status`)
	if err != nil {
		return nil, fmt.Errorf("count subscriptions: %w", err)
	}
	defer rows.Close()

	var out []domain.StatusCount
	for rows.Next() {
		var c domain.StatusCount
		var status string
		if err := rows.Scan(&c.ProductSlug, &status, &c.Count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		c.Status = domain.Status(status)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AppendHistory(ctx context.Context, e *domain.HistoryEntry) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO subscription_history (subscription_id, action, from_status, to_status, plan, period_end, actor, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SubscriptionID, string(e.Action), string(e.FromStatus), string(e.ToStatus),
		e.Plan, toMillis(e.PeriodEnd), e.Actor, toMillis(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	e.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) ListHistory(ctx context.Context, subscriptionID string) ([]*domain.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subscription_id, action, from_status, to_status, plan, period_end, actor, created_at
		FROM subscription_history WHERE subscription_id = ? ORDER BY id`, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []*domain.HistoryEntry
	for rows.Next() {
		var e domain.HistoryEntry
		var action, from, to string
		var periodEnd, createdAt int64
		if err := rows.Scan(&e.ID, &e.SubscriptionID, &action, &from, &to, &e.Plan, &periodEnd, &e.Actor, &createdAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.Action, e.FromStatus, e.ToStatus = domain.HistoryAction(action), domain.Status(from), domain.Status(to)
		e.PeriodEnd, e.CreatedAt = fromMillis(periodEnd), fromMillis(createdAt)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// --- Payment ledger ---

func (s *SQLiteStore) RecordPayment(ctx context.Context, rec *domain.PaymentRecord) (bool, *domain.PaymentRecord, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_confirmations (payment_id, order_id, subscription_id, amount, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (payment_id) DO NOTHING`,
		rec.PaymentID, rec.OrderID, rec.SubscriptionID, rec.Amount, toMillis(rec.CreatedAt),
	)
	if err != nil {
		return false, nil, fmt.Errorf("record payment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return true, rec, nil
	}

	stored, err := s.FindPayment(ctx, rec.PaymentID)
	if err != nil {
		return false, nil, err
	}
	return false, stored, nil
}

func (s *SQLiteStore) FindPayment(ctx context.Context, paymentID string) (*domain.PaymentRecord, error) {
	var rec domain.PaymentRecord
	var processedAt sql.NullInt64
	var createdAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT payment_id, order_id, subscription_id, amount, processed_at, processing_error, created_at
		FROM payment_confirmations WHERE payment_id = ?`, paymentID,
	).Scan(&rec.PaymentID, &rec.OrderID, &rec.SubscriptionID, &rec.Amount, &processedAt, &rec.ProcessingError, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find payment: %w", err)
	}
	if processedAt.Valid {
		t := fromMillis(processedAt.Int64)
		rec.ProcessedAt = &t
	}
	rec.CreatedAt = fromMillis(createdAt)
	return &rec, nil
}

func (s *SQLiteStore) MarkPaymentProcessed(ctx context.Context, paymentID string, subscriptionID *string, procErr error, at time.Time) error {
	var err error
	if procErr == nil {
		_, err = s.db.ExecContext(ctx, `
			UPDATE payment_confirmations SET processed_at = ?, processing_error = NULL, subscription_id = ?
			WHERE payment_id = ?`, toMillis(at), subscriptionID, paymentID)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE payment_confirmations SET processing_error = ? WHERE payment_id = ?`,
			procErr.Error(), paymentID)
	}
	if err != nil {
		return fmt.Errorf("mark payment processed: %w", err)
	}
	return nil
}

// --- Organizations ---

func (s *SQLiteStore) CreateOrganization(ctx context.Context, org *domain.Organization) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO organizations (id, name, created_by, created_at) VALUES (?, ?, ?, ?)",
		org.ID, org.Name, org.CreatedBy, toMillis(org.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrBadRequest("organization already exists")
		}
		return fmt.Errorf("create organization: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FindOrganization(ctx context.Context, id string) (*domain.Organization, error) {
	var org domain.Organization
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, created_by, created_at FROM organizations WHERE id = ?", id,
	).Scan(&org.ID, &org.Name, &org.CreatedBy, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find organization: %w", err)
	}
	org.CreatedAt = fromMillis(createdAt)
	return &org, nil
}

type sqlScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteSubscription(row sqlScanner) (*domain.Subscription, error) {
	var sub domain.Subscription
	var status, cycle string
	var start, end, created, updated int64
	err := row.Scan(
		&sub.ID, &sub.UserID, &sub.OrganizationID, &sub.ProductSlug, &sub.Plan, &status, &cycle, &sub.Amount,
		&start, &end, &sub.APIKeyHash, &sub.APIKeyEnc, &sub.APIKeyPrefix,
		&sub.GatewayOrderID, &sub.GatewayPaymentID, &sub.GatewaySubscriptionID, &created, &updated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan subscription: %w", err)
	}
	sub.Status, sub.BillingCycle = domain.Status(status), domain.BillingCycle(cycle)
	sub.CurrentPeriodStart, sub.CurrentPeriodEnd = fromMillis(start), fromMillis(end)
	sub.CreatedAt, sub.UpdatedAt = fromMillis(created), fromMillis(updated)
	return &sub, nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
