package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Jeevanvsan/byee-ugraph-saas/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OrganizationRepository stores the organizations that may own subscriptions.
type OrganizationRepository struct {
	db *pgxpool.Pool
}

func NewOrganizationRepository(db *pgxpool.Pool) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

func (r *OrganizationRepository) CreateOrganization(ctx context.Context, org *domain.Organization) error {
	_, err := r.db.Exec(ctx,
		"INSERT INTO organizations (id, name, created_by, created_at) VALUES ($1, $2, $3, $4)",
		org.ID, org.Name, org.CreatedBy, org.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrBadRequest("organization already exists")
		}
		return fmt.Errorf("failed to create organization: %w", err)
	}
	return nil
}

func (r *OrganizationRepository) FindOrganization(ctx context.Context, id string) (*domain.Organization, error) {
	var org domain.Organization
	err := r.db.QueryRow(ctx,
		"SELECT id, name, created_by, created_at FROM organizations WHERE id = $1", id,
	).Scan(&org.ID, &org.Name, &org.CreatedBy, &org.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find organization: %w", err)
	}
	return &org, nil
}
