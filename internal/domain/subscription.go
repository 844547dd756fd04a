package domain

import (
	"fmt"
	"time"
)

// Status is the stored lifecycle state of a subscription.
type Status string

const (
	StatusTrialing  Status = "trialing"
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
	StatusPastDue   Status = "past_due"
)

// Live reports whether the status occupies the one-live-row slot for a
// tenant-product pair.
func (s Status) Live() bool {
	return s == StatusActive || s == StatusTrialing
}

// BillingCycle is the recurrence unit of a subscription.
type BillingCycle string

const (
	CycleMonthly BillingCycle = "monthly"
	CycleAnnual  BillingCycle = "annual"
)

// Length returns the period length for the cycle: 30 days monthly, 365 annual.
func (c BillingCycle) Length() time.Duration {
	if c == CycleAnnual {
		return 365 * 24 * time.Hour
	}
	return 30 * 24 * time.Hour
}

// Valid reports whether c is a known cycle.
func (c BillingCycle) Valid() bool {
	return c == CycleMonthly || c == CycleAnnual
}

// TenantKind distinguishes individual from organization billing.
type TenantKind string

const (
	TenantIndividual   TenantKind = "individual"
	TenantOrganization TenantKind = "organization"
)

// TenantRef identifies the billing scope that owns subscriptions.
type TenantRef struct {
	Kind TenantKind `json:"kind"`
	ID   string     `json:"id"`
}

func (t TenantRef) String() string {
	return fmt.Sprintf("%s:%s", t.Kind, t.ID)
}

// Subscription is the entitlement record for one tenant and one product.
// Exactly one of UserID and OrganizationID is set.
type Subscription struct {
	ID                    string       `json:"id"`
	UserID                *string      `json:"userId,omitempty"`
	OrganizationID        *string      `json:"organizationId,omitempty"`
	ProductSlug           string       `json:"productSlug"`
	Plan                  string       `json:"plan"`
	Status                Status       `json:"status"`
	BillingCycle          BillingCycle `json:"billingCycle"`
	Amount                int64        `json:"amount"`
	CurrentPeriodStart    time.Time    `json:"currentPeriodStart"`
	CurrentPeriodEnd      time.Time    `json:"currentPeriodEnd"`
	APIKeyHash            *string      `json:"-"`
	APIKeyEnc             *string      `json:"-"`
	APIKeyPrefix          *string      `json:"apiKeyPrefix,omitempty"`
	GatewayOrderID        *string      `json:"gatewayOrderId,omitempty"`
	GatewayPaymentID      *string      `json:"gatewayPaymentId,omitempty"`
	GatewaySubscriptionID *string      `json:"gatewaySubscriptionId,omitempty"`
	CreatedAt             time.Time    `json:"createdAt"`
	UpdatedAt             time.Time    `json:"updatedAt"`
}

// Tenant returns the owning tenant reference.
func (s *Subscription) Tenant() TenantRef {
	if s.OrganizationID != nil {
		return TenantRef{Kind: TenantOrganization, ID: *s.OrganizationID}
	}
	if s.UserID != nil {
		return TenantRef{Kind: TenantIndividual, ID: *s.UserID}
	}
	return TenantRef{}
}

// SetTenant stores the tenant in the matching column and clears the other.
func (s *Subscription) SetTenant(t TenantRef) {
	id := t.ID
	switch t.Kind {
	case TenantOrganization:
		s.OrganizationID, s.UserID = &id, nil
	default:
		s.UserID, s.OrganizationID = &id, nil
	}
}

// StartPeriod resets the billing period to [now, now+cycle).
func (s *Subscription) StartPeriod(now time.Time) {
	s.CurrentPeriodStart = now
	s.CurrentPeriodEnd = now.Add(s.BillingCycle.Length())
}

// EffectiveStatus applies the lazy expiry rule: a live row whose period has
// ended reads as expired regardless of what is stored.
func (s *Subscription) EffectiveStatus(now time.Time) Status {
	if s.Status.Live() && now.After(s.CurrentPeriodEnd) {
		return StatusExpired
	}
	return s.Status
}

// Entitled reports whether the subscription grants access at now.
func (s *Subscription) Entitled(now time.Time, trialEntitled bool) bool {
	switch s.EffectiveStatus(now) {
	case StatusActive:
		return true
	case StatusTrialing:
		return trialEntitled
	default:
		return false
	}
}

// HasAPIKey reports whether a key is currently stored for the subscription.
func (s *Subscription) HasAPIKey() bool {
	return s.APIKeyHash != nil && *s.APIKeyHash != ""
}

// SubscriptionView is the API representation of a subscription, with the
// lazily-derived status applied.
type SubscriptionView struct {
	*Subscription
	EffectiveStatus Status `json:"effectiveStatus"`
	APIKey          string `json:"apiKey,omitempty"`
	KeyHint         string `json:"keyHint,omitempty"`
}

// TransitionResult is returned by every mutating engine call.
type TransitionResult struct {
	Subscription *Subscription `json:"subscription"`
	// APIKey is the raw key, set only when one was issued or rotated by this call.
	APIKey   string    `json:"apiKey,omitempty"`
	Warnings []Warning `json:"warnings,omitempty"`
}

// --- Requests ---

// CheckoutRequest starts a paid subscription for the caller's tenant.
type CheckoutRequest struct {
	ProductSlug  string       `json:"productSlug" validate:"required"`
	Plan         string       `json:"plan" validate:"required"`
	BillingCycle BillingCycle `json:"billingCycle" validate:"required,oneof=monthly annual"`
}

// UpgradeRequest changes the plan of an existing subscription.
type UpgradeRequest struct {
	Plan string `json:"plan" validate:"required"`
}

// PaymentConfirmation is the signed payload returned by the gateway widget.
// SubscriptionID is the provider's recurring subscription id, when the
// widget was opened with one.
type PaymentConfirmation struct {
	OrderID        string `json:"order_id" validate:"required"`
	PaymentID      string `json:"payment_id" validate:"required"`
	Signature      string `json:"signature" validate:"required"`
	SubscriptionID string `json:"subscription_id"`
}

// GrantRequest is an administrator's manual grant that bypasses payment.
type GrantRequest struct {
	TenantKind   TenantKind   `json:"tenantKind" validate:"required,oneof=individual organization"`
	TenantID     string       `json:"tenantId" validate:"required"`
	ProductSlug  string       `json:"productSlug" validate:"required"`
	Plan         string       `json:"plan" validate:"required"`
	BillingCycle BillingCycle `json:"billingCycle" validate:"required,oneof=monthly annual"`
	Amount       int64        `json:"amount" validate:"omitempty,gt=0"`
}

// CheckoutResponse carries what the client needs to open the hosted widget.
// SubscriptionID is the provider's recurring subscription, empty when only a
// one-off order could be opened.
type CheckoutResponse struct {
	OrderID        string `json:"orderId"`
	KeyID          string `json:"keyId"`
	Amount         int64  `json:"amount"`
	AmountMinor    int64  `json:"amountMinor"`
	Currency       string `json:"currency"`
	Description    string `json:"description"`
	SubscriptionID string `json:"subscriptionId,omitempty"`
}
