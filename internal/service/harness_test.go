package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Jeevanvsan/byee-ugraph-saas/internal/domain"
	"github.com/Jeevanvsan/byee-ugraph-saas/internal/repository"
	"github.com/Jeevanvsan/byee-ugraph-saas/pkg/crypto"
	"github.com/Jeevanvsan/byee-ugraph-saas/pkg/payment"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

const testEncryptionKey = "0123456789abcdef0123456789abcdef"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	store      *repository.SQLiteStore
	locker     *repository.RedisLocker
	gateway    *payment.MockGateway
	engine     *SubscriptionService
	checkout   *CheckoutService
	validation *ValidationService
	clock      *testClock
	payments   int
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store, err := repository.NewSQLiteStore(filepath.Join(t.TempDir(), "billing.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	mr := miniredis.RunT(t)
	client, err := repository.NewRedisClient(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	sealer, err := crypto.NewSealer(testEncryptionKey)
	require.NoError(t, err)

	clock := &testClock{now: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)}
	gw := payment.NewMockGateway("whsec_test")
	locker := repository.NewRedisLocker(client)

	engine := NewSubscriptionService(store, store, gw, sealer, time.Second).WithClock(clock.Now)
	checkout := NewCheckoutService(engine, store, repository.NewCheckoutRepository(client, time.Hour),
		store, locker, gw, "INR").WithClock(clock.Now)

	return &harness{
		store:      store,
		locker:     locker,
		gateway:    gw,
		engine:     engine,
		checkout:   checkout,
		validation: NewValidationService(store).WithClock(clock.Now),
		clock:      clock,
	}
}

func (h *harness) addOrganization(t *testing.T, id, owner string) {
	t.Helper()
	err := h.store.CreateOrganization(context.Background(), &domain.Organization{
		ID: id, Name: "Org " + id, CreatedBy: owner, CreatedAt: h.clock.Now(),
	})
	require.NoError(t, err)
}

// pay signs a confirmation for orderID the way the hosted widget would.
func (h *harness) pay(orderID string) *domain.PaymentConfirmation {
	h.payments++
	paymentID := fmt.Sprintf("pay_test%06d", h.payments)
	return &domain.PaymentConfirmation{
		OrderID:   orderID,
		PaymentID: paymentID,
		Signature: h.gateway.SignPayment(orderID, paymentID),
	}
}

// payOrder is pay plus the recurring subscription id the widget echoes back.
func (h *harness) payOrder(order *domain.CheckoutResponse) *domain.PaymentConfirmation {
	conf := h.pay(order.OrderID)
	conf.SubscriptionID = order.SubscriptionID
	return conf
}

// buy runs a full checkout and confirmation for p.
func (h *harness) buy(t *testing.T, p *domain.Principal, product, plan string, cycle domain.BillingCycle) *domain.TransitionResult {
	t.Helper()
	ctx := context.Background()
	order, err := h.checkout.StartCheckout(ctx, p, &domain.CheckoutRequest{
		ProductSlug: product, Plan: plan, BillingCycle: cycle,
	})
	require.NoError(t, err)
	res, err := h.checkout.Confirm(ctx, p, h.payOrder(order))
	require.NoError(t, err)
	return res
}

func strPtr(s string) *string { return &s }

func individual(id string) *domain.Principal {
	return &domain.Principal{ID: id, Email: id + "@example.com", Role: domain.RoleUser, Active: true}
}

func orgPrincipal(id, org, role string) *domain.Principal {
	return &domain.Principal{
		ID: id, Email: id + "@example.com", Role: domain.RoleUser,
		OrganizationID: strPtr(org), OrgRole: role, Active: true,
	}
}

func websiteAdmin() *domain.Principal {
	return &domain.Principal{ID: "admin-1", Email: "admin@example.com", Role: domain.RoleAdmin, Active: true}
}
