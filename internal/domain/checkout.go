package domain

import "time"

// CheckoutKind is the transition a paid checkout will apply once confirmed.
type CheckoutKind string

const (
	CheckoutCreate  CheckoutKind = "create"
	CheckoutUpgrade CheckoutKind = "upgrade"
)

// CheckoutIntent is the server-side record of an order awaiting confirmation.
// The confirmation handler trusts only these fields, never the client's.
// GatewaySubscriptionID is the provider's recurring subscription opened with
// the order, or a placeholder when it could not be created.
type CheckoutIntent struct {
	OrderID               string       `json:"orderId"`
	Kind                  CheckoutKind `json:"kind"`
	Tenant                TenantRef    `json:"tenant"`
	PrincipalID           string       `json:"principalId"`
	ProductSlug           string       `json:"productSlug"`
	Plan                  string       `json:"plan"`
	BillingCycle          BillingCycle `json:"billingCycle"`
	Amount                int64        `json:"amount"`
	SubscriptionID        string       `json:"subscriptionId,omitempty"`
	GatewaySubscriptionID string       `json:"gatewaySubscriptionId,omitempty"`
	CreatedAt             time.Time    `json:"createdAt"`
}

// PaymentRecord is one verified gateway payment in the confirmation ledger.
type PaymentRecord struct {
	PaymentID       string     `json:"paymentId"`
	OrderID         string     `json:"orderId"`
	SubscriptionID  *string    `json:"subscriptionId,omitempty"`
	Amount          int64      `json:"amount"`
	ProcessedAt     *time.Time `json:"processedAt,omitempty"`
	ProcessingError *string    `json:"processingError,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// Processed reports whether the payment already produced an entitlement write.
func (r *PaymentRecord) Processed() bool {
	return r.ProcessedAt != nil
}

// HistoryAction names a committed lifecycle transition.
type HistoryAction string

const (
	ActionCreated    HistoryAction = "created"
	ActionGranted    HistoryAction = "granted"
	ActionUpgraded   HistoryAction = "upgraded"
	ActionCancelled  HistoryAction = "cancelled"
	ActionResumed    HistoryAction = "resumed"
	ActionExpired    HistoryAction = "expired"
	ActionKeyRotated HistoryAction = "key_rotated"
)

// HistoryEntry is an append-only audit row for a subscription.
type HistoryEntry struct {
	ID             int64         `json:"id"`
	SubscriptionID string        `json:"subscriptionId"`
	Action         HistoryAction `json:"action"`
	FromStatus     Status        `json:"fromStatus,omitempty"`
	ToStatus       Status        `json:"toStatus"`
	Plan           string        `json:"plan"`
	PeriodEnd      time.Time     `json:"periodEnd"`
	Actor          string        `json:"actor"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// StatusCount is one row of the admin entitlement summary.
type StatusCount struct {
	ProductSlug string `json:"productSlug"`
	Status      Status `json:"status"`
	Count       int64  `json:"count"`
}
