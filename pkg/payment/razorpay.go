package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultRazorpayURL is the production API base.
const DefaultRazorpayURL = "https://api.razorpay.com/v1"

// Razorpay talks to the Razorpay REST API with basic auth.
type Razorpay struct {
	keyID     string
	keySecret string
	baseURL   string
	client    *http.Client
}

// NewRazorpay creates a client. An empty baseURL selects production.
func NewRazorpay(keyID, keySecret, baseURL string, timeout time.Duration) *Razorpay {
	if baseURL == "" {
		baseURL = DefaultRazorpayURL
	}
	return &Razorpay{
		keyID:     keyID,
		keySecret: keySecret,
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: timeout},
	}
}

func (r *Razorpay) KeyID() string { return r.keyID }

type orderBody struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// CreateOrder posts to /orders with the amount converted to minor units.
func (r *Razorpay) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrGateway)
	}
	notes := req.Notes
	if req.Description != "" {
		notes = make(map[string]string, len(req.Notes)+1)
		for k, v := range req.Notes {
			notes[k] = v
		}
		notes["description"] = req.Description
	}
	body := orderBody{
		Amount:   MinorUnits(req.Amount),
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Notes:    notes,
	}
	var order Order
	if err := r.do(ctx, http.MethodPost, "/orders", body, &order); err != nil {
		return nil, err
	}
	if order.ID == "" {
		return nil, fmt.Errorf("%w: order response carried no id", ErrGateway)
	}
	return &order, nil
}

type planItem struct {
	Name        string `json:"name"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description,omitempty"`
}

type planBody struct {
	Period   string            `json:"period"`
	Interval int               `json:"interval"`
	Item     planItem          `json:"item"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type subscriptionBody struct {
	PlanID         string            `json:"plan_id"`
	TotalCount     int               `json:"total_count"`
	Quantity       int               `json:"quantity"`
	CustomerNotify int               `json:"customer_notify"`
	Notes          map[string]string `json:"notes,omitempty"`
}

// CreateSubscription posts a plan to /plans and then a subscription on that
// plan to /subscriptions.
func (r *Razorpay) CreateSubscription(ctx context.Context, req SubscriptionRequest) (*RemoteSubscription, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrGateway)
	}
	if req.Period != PeriodMonthly && req.Period != PeriodYearly {
		return nil, fmt.Errorf("%w: unsupported period %q", ErrGateway, req.Period)
	}

	var plan struct {
		ID string `json:"id"`
	}
	err := r.do(ctx, http.MethodPost, "/plans", planBody{
		Period:   req.Period,
		Interval: 1,
		Item: planItem{
			Name:     req.PlanName,
			Amount:   MinorUnits(req.Amount),
			Currency: req.Currency,
		},
		Notes: req.Notes,
	}, &plan)
	if err != nil {
		return nil, err
	}
	if plan.ID == "" {
		return nil, fmt.Errorf("%w: plan response carried no id", ErrGateway)
	}

	total := req.TotalCount
	if total <= 0 {
		total = 12
	}
	var sub RemoteSubscription
	err = r.do(ctx, http.MethodPost, "/subscriptions", subscriptionBody{
		PlanID:         plan.ID,
		TotalCount:     total,
		Quantity:       1,
		CustomerNotify: 1,
		Notes:          req.Notes,
	}, &sub)
	if err != nil {
		return nil, err
	}
	if sub.ID == "" {
		return nil, fmt.Errorf("%w: subscription response carried no id", ErrGateway)
	}
	if sub.PlanID == "" {
		sub.PlanID = plan.ID
	}
	return &sub, nil
}

func (r *Razorpay) VerifyConfirmation(orderID, paymentID, signature string) bool {
	return Verify(r.keySecret, orderID, paymentID, signature)
}

// CancelSubscription cancels immediately rather than at cycle end; the local
// record is already cancelled by the time this runs.
func (r *Razorpay) CancelSubscription(ctx context.Context, subscriptionID string) error {
	path := "/subscriptions/" + url.PathEscape(subscriptionID) + "/cancel"
	return r.do(ctx, http.MethodPost, path, map[string]int{"cancel_at_cycle_end": 0}, nil)
}

func (r *Razorpay) ResumeSubscription(ctx context.Context, subscriptionID string) error {
	path := "/subscriptions/" + url.PathEscape(subscriptionID) + "/resume"
	return r.do(ctx, http.MethodPost, path, map[string]string{"resume_at": "now"}, nil)
}

type apiError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (r *Razorpay) do(ctx context.Context, method, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(r.keyID, r.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrGateway, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrGateway, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Description != "" {
			return fmt.Errorf("%w: %s %s: %d %s: %s", ErrGateway, method, path,
				resp.StatusCode, apiErr.Error.Code, apiErr.Error.Description)
		}
		return fmt.Errorf("%w: %s %s: status %d", ErrGateway, method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrGateway, err)
	}
	return nil
}
