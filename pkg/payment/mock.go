package payment

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MockGateway is an in-process provider for local development and tests.
// It creates orders without network access and signs confirmations with its
// own secret, so a full checkout can be driven end to end.
type MockGateway struct {
	secret string

	mu            sync.Mutex
	orders        map[string]Order
	subscriptions map[string]SubscriptionRequest
	cancelled     []string
	resumed       []string
	remoteErr     error
	createSubErr  error
}

// NewMockGateway creates a mock signing with secret.
func NewMockGateway(secret string) *MockGateway {
	return &MockGateway{
		secret:        secret,
		orders:        make(map[string]Order),
		subscriptions: make(map[string]SubscriptionRequest),
	}
}

func (g *MockGateway) KeyID() string { return "rzp_test_mock" }

func (g *MockGateway) CreateOrder(_ context.Context, req OrderRequest) (*Order, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrGateway)
	}
	o := Order{
		ID:          "order_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14],
		AmountMinor: MinorUnits(req.Amount),
		Currency:    req.Currency,
		Receipt:     req.Receipt,
		Status:      "created",
	}
	g.mu.Lock()
	g.orders[o.ID] = o
	g.mu.Unlock()
	return &o, nil
}

func (g *MockGateway) CreateSubscription(ctx context.Context, req SubscriptionRequest) (*RemoteSubscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrGateway)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createSubErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, g.createSubErr)
	}
	id := "sub_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
	g.subscriptions[id] = req
	return &RemoteSubscription{
		ID:     id,
		PlanID: "plan_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14],
		Status: "created",
	}, nil
}

// FailSubscriptions makes subsequent CreateSubscription calls return err.
// Nil restores success.
func (g *MockGateway) FailSubscriptions(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createSubErr = err
}

// Subscription returns the request a subscription id was created with.
func (g *MockGateway) Subscription(id string) (SubscriptionRequest, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	req, ok := g.subscriptions[id]
	return req, ok
}

// SignPayment returns the signature the hosted widget would hand back after a
// successful payment of orderID.
func (g *MockGateway) SignPayment(orderID, paymentID string) string {
	return Sign(g.secret, orderID, paymentID)
}

func (g *MockGateway) VerifyConfirmation(orderID, paymentID, signature string) bool {
	return Verify(g.secret, orderID, paymentID, signature)
}

// FailRemote makes subsequent cancel and resume calls return err. Nil restores success.
func (g *MockGateway) FailRemote(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.remoteErr = err
}

func (g *MockGateway) CancelSubscription(ctx context.Context, id string) error {
	return g.remote(ctx, id, &g.cancelled)
}

func (g *MockGateway) ResumeSubscription(ctx context.Context, id string) error {
	return g.remote(ctx, id, &g.resumed)
}

func (g *MockGateway) remote(ctx context.Context, id string, calls *[]string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrGateway, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	*calls = append(*calls, id)
	if g.remoteErr != nil {
		return fmt.Errorf("%w: %v", ErrGateway, g.remoteErr)
	}
	return nil
}

// Calls returns the subscription ids passed to cancel and resume so far.
func (g *MockGateway) Calls() (cancelled, resumed []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.cancelled...), append([]string(nil), g.resumed...)
}
