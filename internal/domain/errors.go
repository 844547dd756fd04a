package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured application error with HTTP status code.
// Reason is a stable machine-readable code that clients can branch on.
type AppError struct {
	Code    int    `json:"-"`
	Reason  string `json:"code,omitempty"`
	Message string `json:"error"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError carrying the same Reason, so callers can test
// errors.Is(err, domain.ErrAlreadySubscribed) against a wrapped or re-worded copy.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok || t.Reason == "" {
		return false
	}
	return t.Reason == e.Reason
}

// WithMessage returns a copy of e with a different human-readable message.
func (e *AppError) WithMessage(msg string) *AppError {
	c := *e
	c.Message = msg
	return &c
}

// Entitlement error taxonomy.
var (
	ErrNotAuthenticated = &AppError{
		Code: http.StatusUnauthorized, Reason: "not_authenticated",
		Message: "authentication required",
	}
	ErrForbidden = &AppError{
		Code: http.StatusForbidden, Reason: "forbidden",
		Message: "you are not allowed to manage this subscription",
	}
	ErrAlreadySubscribed = &AppError{
		Code: http.StatusConflict, Reason: "already_subscribed",
		Message: "an active subscription already exists for this product; upgrade it instead",
	}
	ErrPaymentVerificationFailed = &AppError{
		Code: http.StatusPaymentRequired, Reason: "payment_verification_failed",
		Message: "your payment could not be verified, no changes were made",
	}
	ErrSubscriptionNotFound = &AppError{
		Code: http.StatusNotFound, Reason: "subscription_not_found",
		Message: "subscription not found",
	}
	ErrInvalidTransition = &AppError{
		Code: http.StatusConflict, Reason: "invalid_transition",
		Message: "subscription cannot make this transition",
	}
	ErrStaleWrite = &AppError{
		Code: http.StatusConflict, Reason: "stale_write",
		Message: "subscription was modified concurrently, reload and retry",
	}
	ErrCheckoutNotFound = &AppError{
		Code: http.StatusNotFound, Reason: "checkout_not_found",
		Message: "checkout session not found or expired",
	}
	ErrOrganizationNotFound = &AppError{
		Code: http.StatusNotFound, Reason: "organization_not_found",
		Message: "organization not found",
	}
)

// InvalidTransition describes a rejected state-machine event.
func InvalidTransition(from Status, event string) *AppError {
	return ErrInvalidTransition.WithMessage(fmt.Sprintf("cannot %s a subscription that is %s", event, from))
}

// Common error constructors.

func ErrUnauthorized(msg string) *AppError {
	return ErrNotAuthenticated.WithMessage(msg)
}

func ErrBadRequest(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Reason: "bad_request", Message: msg}
}

func ErrValidation(msg string) *AppError {
	return &AppError{Code: http.StatusUnprocessableEntity, Reason: "validation_failed", Message: msg}
}

func ErrInternal(msg string, err error) *AppError {
	return &AppError{Code: http.StatusInternalServerError, Reason: "internal", Message: msg, Err: err}
}

// AsAppError attempts to extract an AppError from an error chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Warning is a non-fatal condition attached to a committed transition.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WarningGatewayUnavailable is the code for best-effort gateway calls that failed.
const WarningGatewayUnavailable = "gateway_unavailable"

// GatewayUnavailable builds the warning surfaced when the local transition
// committed but the payment provider could not be reached.
func GatewayUnavailable(action string) Warning {
	return Warning{
		Code: WarningGatewayUnavailable,
		Message: fmt.Sprintf("your subscription was %s, but we could not reach the payment provider "+
			"to update future billing; please contact support", action),
	}
}
