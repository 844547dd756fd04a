package repository

import "github.com/jackc/pgx/v5/pgxpool"

// PostgresStore bundles the Postgres repositories into one entitlement store,
// the counterpart of SQLiteStore.
type PostgresStore struct {
	*SubscriptionRepository
	*PaymentRepository
	*OrganizationRepository
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		SubscriptionRepository: NewSubscriptionRepository(db),
		PaymentRepository:      NewPaymentRepository(db),
		OrganizationRepository: NewOrganizationRepository(db),
	}
}
