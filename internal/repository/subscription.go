package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Jeevanvsan/byee-ugraph-saas/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const subscriptionColumns = `id, user_id, organization_id, product_slug, plan, status, billing_cycle, amount,
	current_period_start, current_period_end, api_key_hash, api_key_enc, api_key_prefix,
	gateway_order_id, gateway_payment_id, gateway_subscription_id, created_at, updated_at`

// SubscriptionRepository is the Postgres entitlement store.
type SubscriptionRepository struct {
	db *pgxpool.Pool
}

func NewSubscriptionRepository(db *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// Create inserts a subscription. A second live row for the same tenant and
// product, or a reused payment id, is rejected with ErrAlreadySubscribed.
func (r *SubscriptionRepository) Create(ctx context.Context, sub *domain.Subscription) error {
	query := `
		INSERT INTO subscriptions (` + subscriptionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err := r.db.Exec(ctx, query,
		sub.ID, sub.UserID, sub.OrganizationID, sub.ProductSlug, sub.Plan, string(sub.Status),
		string(sub.BillingCycle), sub.Amount, sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
		sub.APIKeyHash, sub.APIKeyEnc, sub.APIKeyPrefix,
		sub.GatewayOrderID, sub.GatewayPaymentID, sub.GatewaySubscriptionID,
		sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadySubscribed
		}
		if isForeignKeyViolation(err) {
			return domain.ErrOrganizationNotFound
		}
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

func (r *SubscriptionRepository) FindByID(ctx context.Context, id string) (*domain.Subscription, error) {
	row := r.db.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id)
	return scanPgSubscription(row)
}

// FindLive returns the active or trialing row for a tenant and product.
func (r *SubscriptionRepository) FindLive(ctx context.Context, t domain.TenantRef, product string) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
		WHERE ` + tenantColumn(t.Kind) + ` = $1 AND product_slug = $2 AND status IN ('active','trialing')`
	return scanPgSubscription(r.db.QueryRow(ctx, query, t.ID, product))
}

func (r *SubscriptionRepository) ListByTenant(ctx context.Context, t domain.TenantRef) ([]*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
		WHERE ` + tenantColumn(t.Kind) + ` = $1 ORDER BY created_at DESC, id`
	rows, err := r.db.Query(ctx, query, t.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*domain.Subscription
	for rows.Next() {
		sub, err := scanPgSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// FindByKeyHash looks a key up among rows owned by tenants of the given kind.
func (r *SubscriptionRepository) FindByKeyHash(ctx context.Context, kind domain.TenantKind, hash, product string) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
		WHERE api_key_hash = $1 AND product_slug = $2 AND ` + tenantColumn(kind) + ` IS NOT NULL`
	return scanPgSubscription(r.db.QueryRow(ctx, query, hash, product))
}

// Update writes sub only if the stored row still has the expected status and
// the updated_at the caller read. Otherwise ErrStaleWrite is returned.
func (r *SubscriptionRepository) Update(ctx context.Context, sub *domain.Subscription, expected domain.Status, prevUpdatedAt time.Time) error {
	query := `
		UPDATE subscriptions SET
			plan = $1, status = $2, billing_cycle = $3, amount = $4,
			current_period_start = $5, current_period_end = $6,
			api_key_hash = $7, api_key_enc = $8, api_key_prefix = $9,
			gateway_order_id = $10, gateway_payment_id = $11, gateway_subscription_id = $12,
			updated_at = $13
		WHERE id = $14 AND status = $15 AND updated_at = $16
	`
	tag, err := r.db.Exec(ctx, query,
		sub.Plan, string(sub.Status), string(sub.BillingCycle), sub.Amount,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
		sub.APIKeyHash, sub.APIKeyEnc, sub.APIKeyPrefix,
		sub.GatewayOrderID, sub.GatewayPaymentID, sub.GatewaySubscriptionID,
		sub.UpdatedAt, sub.ID, string(expected), prevUpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadySubscribed
		}
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleWrite
	}
	return nil
}

func (r *SubscriptionRepository) CountByStatus(ctx context.Context) ([]domain.StatusCount, error) {
	rows, err := r.db.Query(ctx, `
		SELECT product_slug, status, COUNT(*) FROM subscriptions
		GROUP BY product_slug, status ORDER BY product_slug, status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	defer rows.Close()

	var out []domain.StatusCount
	for rows.Next() {
		var c domain.StatusCount
		var status string
		if err := rows.Scan(&c.ProductSlug, &status, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		c.Status = domain.Status(status)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SubscriptionRepository) AppendHistory(ctx context.Context, e *domain.HistoryEntry) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO subscription_history (subscription_id, action, from_status, to_status, plan, period_end, actor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		e.SubscriptionID, string(e.Action), string(e.FromStatus), string(e.ToStatus),
		e.Plan, e.PeriodEnd, e.Actor, e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

func (r *SubscriptionRepository) ListHistory(ctx context.Context, subscriptionID string) ([]*domain.HistoryEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, subscription_id, action, from_status, to_status, plan, period_end, actor, created_at
		FROM subscription_history WHERE subscription_id = $1 ORDER BY id`, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var out []*domain.HistoryEntry
	for rows.Next() {
		var e domain.HistoryEntry
		var action, from, to string
		if err := rows.Scan(&e.ID, &e.SubscriptionID, &action, &from, &to, &e.Plan, &e.PeriodEnd, &e.Actor, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		e.Action, e.FromStatus, e.ToStatus = domain.HistoryAction(action), domain.Status(from), domain.Status(to)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (r *SubscriptionRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func tenantColumn(kind domain.TenantKind) string {
	if kind == domain.TenantOrganization {
		return "organization_id"
	}
	return "user_id"
}

func scanPgSubscription(row pgx.Row) (*domain.Subscription, error) {
	var sub domain.Subscription
	var status, cycle string
	err := row.Scan(
		&sub.ID, &sub.UserID, &sub.OrganizationID, &sub.ProductSlug, &sub.Plan, &status, &cycle, &sub.Amount,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.APIKeyHash, &sub.APIKeyEnc, &sub.APIKeyPrefix,
		&sub.GatewayOrderID, &sub.GatewayPaymentID, &sub.GatewaySubscriptionID, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan subscription: %w", err)
	}
	sub.Status, sub.BillingCycle = domain.Status(status), domain.BillingCycle(cycle)
	sub.CurrentPeriodStart, sub.CurrentPeriodEnd = sub.CurrentPeriodStart.UTC(), sub.CurrentPeriodEnd.UTC()
	sub.CreatedAt, sub.UpdatedAt = sub.CreatedAt.UTC(), sub.UpdatedAt.UTC()
	return &sub, nil
}
