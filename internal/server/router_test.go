package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/Jeevanvsan/byee-ugraph-saas/internal/domain"
	"github.com/Jeevanvsan/byee-ugraph-saas/internal/handler"
	"github.com/Jeevanvsan/byee-ugraph-saas/internal/repository"
	"github.com/Jeevanvsan/byee-ugraph-saas/internal/service"
	"github.com/Jeevanvsan/byee-ugraph-saas/pkg/crypto"
	"github.com/Jeevanvsan/byee-ugraph-saas/pkg/payment"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	srv     *httptest.Server
	auth    *service.AuthService
	gateway *payment.MockGateway
	store   *repository.SQLiteStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	store, err := repository.NewSQLiteStore(filepath.Join(t.TempDir(), "billing.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	mr := miniredis.RunT(t)
	client, err := repository.NewRedisClient(ctx, "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	checkouts := repository.NewCheckoutRepository(client, time.Hour)

	sealer, err := crypto.NewSealer("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	gw := payment.NewMockGateway("mock_secret")
	auth := service.NewAuthService("jwt_secret")

	subs := service.NewSubscriptionService(store, store, gw, sealer, time.Second)
	router := NewRouter(Deps{
		Auth:         auth,
		Subscription: subs,
		Checkout:     service.NewCheckoutService(subs, store, checkouts, store, repository.NewRedisLocker(client), gw, "INR"),
		Validation:   service.NewValidationService(store),
		Health:       map[string]handler.Pinger{"database": store, "redis": checkouts},
		CORSOrigins:  []string{"http://localhost:3000"},
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, auth: auth, gateway: gw, store: store}
}

func (s *testServer) token(t *testing.T, p *domain.Principal) string {
	t.Helper()
	tok, err := s.auth.IssueToken(p, time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token string, body, out interface{}) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestSubscriptionLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	user := &domain.Principal{ID: "user-1", Email: "u1@example.com", Role: domain.RoleUser, Active: true}
	tok := s.token(t, user)

	var me domain.MeResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/me", tok, nil, &me))
	assert.Equal(t, domain.UserTypeIndividualUser, me.UserType)
	assert.True(t, me.CanManage)

	var order domain.CheckoutResponse
	status := s.do(t, http.MethodPost, "/api/subscriptions/checkout", tok,
		domain.CheckoutRequest{ProductSlug: "ugraph", Plan: "pro", BillingCycle: domain.CycleMonthly}, &order)
	require.Equal(t, http.StatusOK, status)

	conf := domain.PaymentConfirmation{
		OrderID:   order.OrderID,
		PaymentID: "pay_http_1",
		Signature: s.gateway.SignPayment(order.OrderID, "pay_http_1"),
	}
	var created domain.TransitionResult
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/payment/confirm", tok, conf, &created))
	require.NotEmpty(t, created.APIKey)
	subID := created.Subscription.ID

	var errBody map[string]string
	require.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/api/payment/confirm", tok, conf, &errBody))
	assert.Equal(t, "already_subscribed", errBody["code"])

	var validated handler.ValidateResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/validate", "",
		handler.ValidateRequest{APIKey: created.APIKey, ProductSlug: "ugraph"}, &validated))
	assert.True(t, validated.Success)
	assert.Equal(t, "pro", validated.Data.Plan)
	assert.Nil(t, validated.Data.OrganizationID)

	var cancelled domain.TransitionResult
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/subscriptions/"+subID+"/cancel", tok, nil, &cancelled))
	assert.Equal(t, domain.StatusCancelled, cancelled.Subscription.Status)

	require.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/api/v1/validate", "",
		handler.ValidateRequest{APIKey: created.APIKey, ProductSlug: "ugraph"}, &validated))
	assert.False(t, validated.Success)

	var resumed domain.TransitionResult
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/subscriptions/"+subID+"/resume", tok, nil, &resumed))
	assert.Equal(t, domain.StatusActive, resumed.Subscription.Status)

	var rotated domain.TransitionResult
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/subscriptions/"+subID+"/api-key", tok, nil, &rotated))
	require.NotEmpty(t, rotated.APIKey)
	require.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/api/v1/validate", "",
		handler.ValidateRequest{APIKey: created.APIKey, ProductSlug: "ugraph"}, nil))

	var view domain.SubscriptionView
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/subscriptions/"+subID, tok, nil, &view))
	assert.Equal(t, rotated.APIKey, view.APIKey)

	var list []domain.SubscriptionView
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/subscriptions", tok, nil, &list))
	assert.Len(t, list, 1)

	var history []domain.HistoryEntry
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/subscriptions/"+subID+"/history", tok, nil, &history))
	actions := make([]domain.HistoryAction, 0, len(history))
	for _, e := range history {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []domain.HistoryAction{
		domain.ActionCreated, domain.ActionCancelled, domain.ActionResumed, domain.ActionKeyRotated,
	}, actions)

	other := s.token(t, &domain.Principal{ID: "user-2", Role: domain.RoleUser, Active: true})
	require.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/subscriptions/"+subID, other, nil, nil))
}

func TestBadSignatureOverHTTP(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, &domain.Principal{ID: "user-1", Role: domain.RoleUser, Active: true})

	var order domain.CheckoutResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/subscriptions/checkout", tok,
		domain.CheckoutRequest{ProductSlug: "orrery", Plan: "plus", BillingCycle: domain.CycleAnnual}, &order))

	var errBody map[string]string
	status := s.do(t, http.MethodPost, "/api/payment/confirm", tok, domain.PaymentConfirmation{
		OrderID: order.OrderID, PaymentID: "pay_x", Signature: "deadbeef",
	}, &errBody)
	assert.Equal(t, http.StatusPaymentRequired, status)
	assert.Equal(t, "payment_verification_failed", errBody["code"])
}

func TestAuthAndAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(t, &domain.Principal{ID: "admin-1", Role: domain.RoleAdmin, Active: true})
	user := s.token(t, &domain.Principal{ID: "user-1", Role: domain.RoleUser, Active: true})

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/subscriptions", "", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/subscriptions", "garbage", nil, nil))
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/admin/stats", user, nil, nil))

	var org domain.Organization
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/admin/organizations", admin,
		domain.CreateOrganizationRequest{ID: "org-1", Name: "Acme", CreatedBy: "owner-1"}, &org))
	assert.Equal(t, "org-1", org.ID)

	var granted domain.TransitionResult
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/admin/subscriptions", admin, domain.GrantRequest{
		TenantKind: domain.TenantOrganization, TenantID: "org-1",
		ProductSlug: "ai-workflow", Plan: "pro", BillingCycle: domain.CycleMonthly,
	}, &granted))
	assert.Equal(t, "org-1", *granted.Subscription.OrganizationID)

	var changed domain.TransitionResult
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/api/admin/subscriptions/"+granted.Subscription.ID+"/plan", admin,
		domain.UpgradeRequest{Plan: "enterprise"}, &changed))
	assert.Equal(t, "enterprise", changed.Subscription.Plan)

	var stats map[string][]domain.StatusCount
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/admin/stats", admin, nil, &stats))
	require.Len(t, stats["subscriptions"], 1)
	assert.Equal(t, int64(1), stats["subscriptions"][0].Count)

	member := s.token(t, &domain.Principal{
		ID: "member-1", Role: domain.RoleUser, OrganizationID: &org.ID, OrgRole: domain.OrgRoleMember, Active: true,
	})
	var validated handler.ValidateResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/validate", "",
		handler.ValidateRequest{APIKey: granted.APIKey, ProductSlug: "ai-workflow"}, &validated))
	assert.Equal(t, "org-1", *validated.Data.OrganizationID)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, "/api/subscriptions/"+granted.Subscription.ID+"/cancel", member, nil, nil))
}

func TestPublicRoutes(t *testing.T) {
	s := newTestServer(t)

	var health map[string]string
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health", "", nil, &health))
	assert.Equal(t, "ok", health["database"])
	assert.Equal(t, "ok", health["redis"])

	var products []domain.Product
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/plans", "", nil, &products))
	assert.Len(t, products, 3)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/metrics", "", nil, nil))
}
