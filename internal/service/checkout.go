package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Jeevanvsan/byee-ugraph-saas/internal/domain"
	"github.com/Jeevanvsan/byee-ugraph-saas/internal/metrics"
	"github.com/Jeevanvsan/byee-ugraph-saas/internal/tenant"
	"github.com/Jeevanvsan/byee-ugraph-saas/pkg/payment"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

const confirmLockTTL = 30 * time.Second

// Installments requested for a recurring subscription, per billing cycle.
const (
	monthlyInstallments = 12
	annualInstallments  = 5
)

// CheckoutService runs the two-step paid flow: an order is opened with the
// provider and remembered as an intent, and only a verified confirmation of
// that order writes an entitlement.
type CheckoutService struct {
	engine   *SubscriptionService
	subs     SubscriptionStore
	intents  CheckoutStore
	ledger   PaymentLedger
	locker   Locker
	gateway  payment.Gateway
	currency string
	now      Clock
	validate *validator.Validate
}

func NewCheckoutService(
	engine *SubscriptionService,
	subs SubscriptionStore,
	intents CheckoutStore,
	ledger PaymentLedger,
	locker Locker,
	gateway payment.Gateway,
	currency string,
) *CheckoutService {
	return &CheckoutService{
		engine:   engine,
		subs:     subs,
		intents:  intents,
		ledger:   ledger,
		locker:   locker,
		gateway:  gateway,
		currency: currency,
		now:      time.Now,
		validate: validator.New(),
	}
}

// WithClock replaces the time source.
func (s *CheckoutService) WithClock(now Clock) *CheckoutService {
	s.now = now
	return s
}

// StartCheckout opens an order for a new subscription of the caller's tenant.
// Nothing is written to the entitlement store.
func (s *CheckoutService) StartCheckout(ctx context.Context, principal *domain.Principal, req *domain.CheckoutRequest) (*domain.CheckoutResponse, error) {
	t, err := s.authorizeTenant(principal)
	if err != nil {
		return nil, err
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrValidation(formatValidationErrors(err))
	}
	product, plan, err := lookupPlan(req.ProductSlug, req.Plan)
	if err != nil {
		return nil, err
	}
	if err := s.engine.requireOrganization(ctx, t); err != nil {
		return nil, err
	}

	// Refuse before the customer pays rather than after.
	live, err := s.subs.FindLive(ctx, t, product.Slug)
	if err != nil {
		return nil, domain.ErrInternal("failed to check existing subscription", err)
	}
	if live != nil && live.EffectiveStatus(s.now()).Live() {
		return nil, domain.ErrAlreadySubscribed
	}

	intent := &domain.CheckoutIntent{
		Kind:         domain.CheckoutCreate,
		Tenant:       t,
		PrincipalID:  principal.ID,
		ProductSlug:  product.Slug,
		Plan:         plan.ID,
		BillingCycle: req.BillingCycle,
		Amount:       plan.Price(req.BillingCycle),
	}
	desc := fmt.Sprintf("%s %s (%s)", product.Name, plan.Name, req.BillingCycle)
	return s.open(ctx, intent, product.Name+" "+plan.Name, desc)
}

// StartUpgrade opens an order to move an existing subscription to another plan.
func (s *CheckoutService) StartUpgrade(ctx context.Context, principal *domain.Principal, id string, req *domain.UpgradeRequest) (*domain.CheckoutResponse, error) {
	if _, err := s.authorizeTenant(principal); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrValidation(formatValidationErrors(err))
	}
	sub, err := s.engine.loadAuthorized(ctx, principal, id, true)
	if err != nil {
		return nil, err
	}
	if eff := sub.EffectiveStatus(s.now()); !eff.Live() {
		return nil, domain.InvalidTransition(eff, eventUpgrade)
	}
	product, plan, err := lookupPlan(sub.ProductSlug, req.Plan)
	if err != nil {
		return nil, err
	}
	if plan.ID == sub.Plan && sub.Status == domain.StatusActive {
		return nil, domain.ErrBadRequest("subscription is already on this plan")
	}

	intent := &domain.CheckoutIntent{
		Kind:           domain.CheckoutUpgrade,
		Tenant:         sub.Tenant(),
		PrincipalID:    principal.ID,
		ProductSlug:    product.Slug,
		Plan:           plan.ID,
		BillingCycle:   sub.BillingCycle,
		Amount:         plan.Price(sub.BillingCycle),
		SubscriptionID: sub.ID,
	}
	desc := fmt.Sprintf("%s upgrade to %s (%s)", product.Name, plan.Name, sub.BillingCycle)
	return s.open(ctx, intent, product.Name+" "+plan.Name, desc)
}

// open creates the order for the first charge and the recurring subscription
// behind it, then stores the intent. A recurring subscription the provider
// refuses is replaced by a placeholder id so the purchase can still go ahead.
func (s *CheckoutService) open(ctx context.Context, intent *domain.CheckoutIntent, planName, desc string) (*domain.CheckoutResponse, error) {
	now := s.now().UTC()
	notes := map[string]string{
		"product_slug": intent.ProductSlug,
		"plan":         intent.Plan,
		"tenant":       intent.Tenant.String(),
	}
	order, err := s.gateway.CreateOrder(ctx, payment.OrderRequest{
		Amount:      intent.Amount,
		Currency:    s.currency,
		Receipt:     fmt.Sprintf("receipt_%d", now.UnixMilli()),
		Description: desc,
		Notes:       notes,
	})
	if err != nil {
		metrics.GatewayCallsTotal.WithLabelValues("create_order", metrics.OutcomeError).Inc()
		log.Error().Err(err).Str("tenant", intent.Tenant.String()).Msg("failed to create gateway order")
		return nil, domain.ErrInternal("could not start payment, please try again", err)
	}
	metrics.GatewayCallsTotal.WithLabelValues("create_order", metrics.OutcomeOK).Inc()

	intent.OrderID = order.ID
	intent.GatewaySubscriptionID = s.openRecurring(ctx, intent, planName, notes, now)
	intent.CreatedAt = now
	if err := s.intents.SaveIntent(ctx, intent); err != nil {
		return nil, domain.ErrInternal("failed to save checkout", err)
	}

	log.Info().
		Str("order_id", order.ID).
		Str("kind", string(intent.Kind)).
		Str("tenant", intent.Tenant.String()).
		Str("product", intent.ProductSlug).
		Str("plan", intent.Plan).
		Int64("amount", intent.Amount).
		Str("gateway_subscription_id", intent.GatewaySubscriptionID).
		Msg("checkout started")

	resp := &domain.CheckoutResponse{
		OrderID:     order.ID,
		KeyID:       s.gateway.KeyID(),
		Amount:      intent.Amount,
		AmountMinor: payment.MinorUnits(intent.Amount),
		Currency:    s.currency,
		Description: desc,
	}
	if !payment.IsPlaceholder(intent.GatewaySubscriptionID) {
		resp.SubscriptionID = intent.GatewaySubscriptionID
	}
	return resp, nil
}

func (s *CheckoutService) openRecurring(ctx context.Context, intent *domain.CheckoutIntent, planName string,
	notes map[string]string, now time.Time) string {
	req := payment.SubscriptionRequest{
		PlanName:   planName,
		Amount:     intent.Amount,
		Currency:   s.currency,
		Period:     payment.PeriodMonthly,
		TotalCount: monthlyInstallments,
		Notes:      notes,
	}
	if intent.BillingCycle == domain.CycleAnnual {
		req.Period, req.TotalCount = payment.PeriodYearly, annualInstallments
	}
	remote, err := s.gateway.CreateSubscription(ctx, req)
	if err != nil {
		metrics.GatewayCallsTotal.WithLabelValues("create_subscription", metrics.OutcomeError).Inc()
		log.Warn().
			Err(err).
			Str("order_id", intent.OrderID).
			Str("tenant", intent.Tenant.String()).
			Msg("failed to create recurring subscription, continuing with one-off order")
		return payment.PlaceholderID(now.UnixMilli())
	}
	metrics.GatewayCallsTotal.WithLabelValues("create_subscription", metrics.OutcomeOK).Inc()
	return remote.ID
}

// Confirm verifies the provider's signature and applies the checkout intent
// stored for the order. A bad signature never reaches the store. A payment
// that was already applied is rejected with ErrAlreadySubscribed.
func (s *CheckoutService) Confirm(ctx context.Context, principal *domain.Principal, conf *domain.PaymentConfirmation) (*domain.TransitionResult, error) {
	if principal == nil {
		return nil, domain.ErrNotAuthenticated
	}
	if !principal.Active {
		return nil, domain.ErrForbidden.WithMessage("your account is inactive")
	}
	if err := s.validate.Struct(conf); err != nil {
		return nil, domain.ErrValidation(formatValidationErrors(err))
	}

	if !s.gateway.VerifyConfirmation(conf.OrderID, conf.PaymentID, conf.Signature) {
		metrics.PaymentVerificationsTotal.WithLabelValues("failed").Inc()
		log.Warn().Str("order_id", conf.OrderID).Str("payment_id", conf.PaymentID).Msg("payment signature verification failed")
		return nil, domain.ErrPaymentVerificationFailed
	}
	metrics.PaymentVerificationsTotal.WithLabelValues("verified").Inc()

	release, err := s.locker.Lock(ctx, "confirm:"+conf.OrderID, confirmLockTTL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.ErrInternal("failed to lock order", err)
		}
		return nil, domain.ErrStaleWrite.WithMessage("this payment is already being processed")
	}
	defer release()

	intent, err := s.intents.GetIntent(ctx, conf.OrderID)
	if err != nil {
		return nil, domain.ErrInternal("failed to load checkout", err)
	}
	if intent == nil {
		log.Warn().Str("order_id", conf.OrderID).Str("payment_id", conf.PaymentID).Msg("verified payment has no checkout intent")
		return nil, domain.ErrCheckoutNotFound
	}
	if err := s.checkOwner(principal, intent, conf); err != nil {
		return nil, err
	}

	now := storeTime(s.now)
	rec := &domain.PaymentRecord{
		PaymentID: conf.PaymentID,
		OrderID:   conf.OrderID,
		Amount:    intent.Amount,
		CreatedAt: now,
	}
	if intent.SubscriptionID != "" {
		rec.SubscriptionID = &intent.SubscriptionID
	}
	created, stored, err := s.ledger.RecordPayment(ctx, rec)
	if err != nil {
		return nil, domain.ErrInternal("failed to record payment", err)
	}
	if !created && stored != nil && stored.Processed() {
		log.Info().Str("order_id", conf.OrderID).Str("payment_id", conf.PaymentID).Msg("payment already applied")
		return nil, domain.ErrAlreadySubscribed.WithMessage("this payment has already been applied")
	}

	ref := &PaymentRef{
		OrderID:               conf.OrderID,
		PaymentID:             conf.PaymentID,
		GatewaySubscriptionID: intent.GatewaySubscriptionID,
	}
	var result *domain.TransitionResult
	switch intent.Kind {
	case domain.CheckoutCreate:
		result, err = s.engine.Create(ctx, CreateParams{
			Tenant:       intent.Tenant,
			ProductSlug:  intent.ProductSlug,
			Plan:         intent.Plan,
			BillingCycle: intent.BillingCycle,
			Amount:       intent.Amount,
			Payment:      ref,
			Actor:        principal.ID,
		})
	case domain.CheckoutUpgrade:
		result, err = s.engine.Upgrade(ctx, UpgradeParams{
			SubscriptionID: intent.SubscriptionID,
			Plan:           intent.Plan,
			Amount:         intent.Amount,
			Payment:        ref,
			Actor:          principal.ID,
		})
	default:
		err = domain.ErrInternal("unknown checkout kind: "+string(intent.Kind), nil)
	}

	markCtx := context.WithoutCancel(ctx)
	if err != nil {
		ev := log.Error()
		if isConflict(err) {
			ev = log.Warn()
		}
		ev.Err(err).
			Str("order_id", conf.OrderID).
			Str("payment_id", conf.PaymentID).
			Str("tenant", intent.Tenant.String()).
			Msg("verified payment could not be applied")
		if markErr := s.ledger.MarkPaymentProcessed(markCtx, conf.PaymentID, nil, err, now); markErr != nil {
			log.Error().Err(markErr).Str("payment_id", conf.PaymentID).Msg("failed to record payment failure")
		}
		return nil, err
	}

	subID := result.Subscription.ID
	if markErr := s.ledger.MarkPaymentProcessed(markCtx, conf.PaymentID, &subID, nil, now); markErr != nil {
		log.Error().Err(markErr).Str("payment_id", conf.PaymentID).Msg("failed to mark payment processed")
	}
	return result, nil
}

// authorizeTenant resolves the tenant a principal may buy for.
func (s *CheckoutService) authorizeTenant(principal *domain.Principal) (domain.TenantRef, error) {
	t, err := tenant.Resolve(principal)
	if err != nil {
		return t, err
	}
	if !principal.Active {
		return t, domain.ErrForbidden.WithMessage("your account is inactive")
	}
	if !tenant.CanManage(tenant.Classify(principal)) {
		return t, domain.ErrForbidden
	}
	return t, nil
}

// checkOwner makes sure the confirmation comes from the tenant that opened
// the checkout and names the recurring subscription opened with it.
func (s *CheckoutService) checkOwner(principal *domain.Principal, intent *domain.CheckoutIntent, conf *domain.PaymentConfirmation) error {
	if conf.SubscriptionID != "" && conf.SubscriptionID != intent.GatewaySubscriptionID {
		return domain.ErrBadRequest("confirmation does not match the checkout")
	}
	if principal.ID == intent.PrincipalID {
		return nil
	}
	t, err := tenant.Resolve(principal)
	if err != nil {
		return err
	}
	if t != intent.Tenant && !principal.IsWebsiteAdmin() {
		return domain.ErrForbidden
	}
	return nil
}
