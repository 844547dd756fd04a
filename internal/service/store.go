package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Jeevanvsan/byee-ugraph-saas/internal/domain"
	"github.com/go-playground/validator/v10"
)

// SubscriptionStore is the entitlement store. Both the Postgres repositories
// and the SQLite store satisfy it. Lookups return (nil, nil) when nothing
// matches.
type SubscriptionStore interface {
	Create(ctx context.Context, sub *domain.Subscription) error
	FindByID(ctx context.Context, id string) (*domain.Subscription, error)
	FindLive(ctx context.Context, t domain.TenantRef, product string) (*domain.Subscription, error)
	ListByTenant(ctx context.Context, t domain.TenantRef) ([]*domain.Subscription, error)
	Update(ctx context.Context, sub *domain.Subscription, expected domain.Status, prevUpdatedAt time.Time) error
	CountByStatus(ctx context.Context) ([]domain.StatusCount, error)
	AppendHistory(ctx context.Context, e *domain.HistoryEntry) error
	ListHistory(ctx context.Context, subscriptionID string) ([]*domain.HistoryEntry, error)
}

// KeyLookup is the read-only slice of the store used by validation.
type KeyLookup interface {
	FindByKeyHash(ctx context.Context, kind domain.TenantKind, hash, product string) (*domain.Subscription, error)
}

// OrganizationStore holds the organizations that can be billed.
type OrganizationStore interface {
	CreateOrganization(ctx context.Context, org *domain.Organization) error
	FindOrganization(ctx context.Context, id string) (*domain.Organization, error)
}

// PaymentLedger records verified gateway payments so a payment is applied once.
type PaymentLedger interface {
	RecordPayment(ctx context.Context, rec *domain.PaymentRecord) (bool, *domain.PaymentRecord, error)
	MarkPaymentProcessed(ctx context.Context, paymentID string, subscriptionID *string, procErr error, at time.Time) error
}

// CheckoutStore keeps pending checkout intents.
type CheckoutStore interface {
	SaveIntent(ctx context.Context, intent *domain.CheckoutIntent) error
	GetIntent(ctx context.Context, orderID string) (*domain.CheckoutIntent, error)
}

// Locker serializes work on a named resource across instances.
type Locker interface {
	Lock(ctx context.Context, name string, ttl time.Duration) (func(), error)
}

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time

// storeTime truncates to milliseconds, the precision every backend keeps, so
// compare-and-swap on updated_at sees exactly what it wrote.
func storeTime(c Clock) time.Time {
	return c().UTC().Truncate(time.Millisecond)
}

func formatValidationErrors(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

// passThrough returns err unchanged when it is already an AppError, otherwise
// wraps it as an internal error with msg.
func passThrough(msg string, err error) error {
	if _, ok := domain.AsAppError(err); ok {
		return err
	}
	return domain.ErrInternal(msg, err)
}
