// Package payment adapts the hosted payment provider: order creation,
// confirmation signatures and recurring-billing control.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrGateway wraps every failure reported by, or while reaching, the provider.
var ErrGateway = errors.New("payment gateway error")

// Gateway is the provider contract used by the checkout and engine services.
type Gateway interface {
	// KeyID is the public key the checkout widget is opened with.
	KeyID() string
	// CreateOrder registers a one-off charge. No entitlement is written here.
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	// CreateSubscription registers a plan and a recurring subscription on it.
	// The first charge still goes through an order.
	CreateSubscription(ctx context.Context, req SubscriptionRequest) (*RemoteSubscription, error)
	// VerifyConfirmation checks the signature the widget returns on success.
	VerifyConfirmation(orderID, paymentID, signature string) bool
	// CancelSubscription stops future recurring charges.
	CancelSubscription(ctx context.Context, subscriptionID string) error
	// ResumeSubscription restarts recurring charges.
	ResumeSubscription(ctx context.Context, subscriptionID string) error
}

// OrderRequest is a charge in whole currency units.
type OrderRequest struct {
	Amount      int64
	Currency    string
	Receipt     string
	Description string
	Notes       map[string]string
}

// Order is the provider's view of a created order.
type Order struct {
	ID          string `json:"id"`
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
	Receipt     string `json:"receipt"`
	Status      string `json:"status"`
}

// Billing periods understood by the provider's plan API.
const (
	PeriodMonthly = "monthly"
	PeriodYearly  = "yearly"
)

// SubscriptionRequest describes the recurring charge behind a purchase.
// Amount is in whole currency units per period.
type SubscriptionRequest struct {
	PlanName   string
	Amount     int64
	Currency   string
	Period     string
	TotalCount int
	Notes      map[string]string
}

// RemoteSubscription is the provider's view of a created subscription.
type RemoteSubscription struct {
	ID     string `json:"id"`
	PlanID string `json:"plan_id"`
	Status string `json:"status"`
}

// PlaceholderID returns a local id for a purchase whose recurring
// subscription could not be created at the provider.
func PlaceholderID(unixMilli int64) string {
	return fmt.Sprintf("%s%d", placeholderPrefix, unixMilli)
}

// MinorUnits converts whole currency units to the provider's smallest unit.
func MinorUnits(amount int64) int64 {
	return amount * 100
}

// placeholderPrefix marks subscription ids generated locally for one-off
// payments, where no recurring subscription exists at the provider.
const placeholderPrefix = "sub_temp_"

// IsPlaceholder reports whether a gateway subscription id has no remote
// counterpart, in which case cancel and resume must not call the provider.
func IsPlaceholder(subscriptionID string) bool {
	id := strings.TrimSpace(subscriptionID)
	return id == "" || strings.HasPrefix(id, placeholderPrefix)
}
