package service

import (
	"context"
	"errors"
	"time"

	"github.com/Jeevanvsan/byee-ugraph-saas/internal/apikey"
	"github.com/Jeevanvsan/byee-ugraph-saas/internal/domain"
	"github.com/Jeevanvsan/byee-ugraph-saas/internal/metrics"
	"github.com/Jeevanvsan/byee-ugraph-saas/internal/tenant"
	"github.com/Jeevanvsan/byee-ugraph-saas/pkg/crypto"
	"github.com/Jeevanvsan/byee-ugraph-saas/pkg/payment"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Engine events, used for metrics and error messages.
const (
	eventCreate  = "create"
	eventUpgrade = "upgrade"
	eventCancel  = "cancel"
	eventResume  = "resume"
	eventRotate  = "rotate"
	eventExpire  = "expire"
)

// SubscriptionService is the entitlement engine. It owns every status
// transition and writes through to the store with compare-and-swap.
type SubscriptionService struct {
	subs           SubscriptionStore
	orgs           OrganizationStore
	gateway        payment.Gateway
	sealer         *crypto.Sealer
	gatewayTimeout time.Duration
	now            Clock
	validate       *validator.Validate
}

// NewSubscriptionService creates the engine. gatewayTimeout bounds each
// best-effort cancel or resume call to the payment provider.
func NewSubscriptionService(
	subs SubscriptionStore,
	orgs OrganizationStore,
	gateway payment.Gateway,
	sealer *crypto.Sealer,
	gatewayTimeout time.Duration,
) *SubscriptionService {
	return &SubscriptionService{
		subs:           subs,
		orgs:           orgs,
		gateway:        gateway,
		sealer:         sealer,
		gatewayTimeout: gatewayTimeout,
		now:            time.Now,
		validate:       validator.New(),
	}
}

// WithClock replaces the time source.
func (s *SubscriptionService) WithClock(now Clock) *SubscriptionService {
	s.now = now
	return s
}

// PaymentRef identifies the verified gateway payment behind a paid transition
// and the recurring subscription opened with it, if any.
type PaymentRef struct {
	OrderID               string
	PaymentID             string
	GatewaySubscriptionID string
}

// CreateParams describes a new entitlement. Callers have already verified
// payment or administrator rights.
type CreateParams struct {
	Tenant       domain.TenantRef
	ProductSlug  string
	Plan         string
	BillingCycle domain.BillingCycle
	Amount       int64
	Payment      *PaymentRef
	Actor        string
	Action       domain.HistoryAction
}

// UpgradeParams describes a plan change on an existing subscription.
type UpgradeParams struct {
	SubscriptionID string
	Plan           string
	Amount         int64
	Payment        *PaymentRef
	Actor          string
}

// Create inserts a new live subscription for a tenant and product. An
// existing live row that has lapsed is stored as expired first; any other
// live row rejects the call with ErrAlreadySubscribed.
func (s *SubscriptionService) Create(ctx context.Context, p CreateParams) (*domain.TransitionResult, error) {
	product, plan, err := lookupPlan(p.ProductSlug, p.Plan)
	if err != nil {
		return nil, err
	}
	if !p.BillingCycle.Valid() {
		return nil, domain.ErrValidation("billing cycle must be monthly or annual")
	}
	if p.Amount <= 0 {
		return nil, domain.ErrValidation("amount must be positive")
	}
	if p.Tenant.ID == "" {
		return nil, domain.ErrNotAuthenticated
	}
	if err := s.requireOrganization(ctx, p.Tenant); err != nil {
		return nil, err
	}

	now := storeTime(s.now)
	existing, err := s.subs.FindLive(ctx, p.Tenant, product.Slug)
	if err != nil {
		return nil, domain.ErrInternal("failed to check existing subscription", err)
	}
	if existing != nil {
		if existing.EffectiveStatus(now) != domain.StatusExpired {
			s.count(eventCreate, metrics.OutcomeRefused)
			return nil, domain.ErrAlreadySubscribed
		}
		if err := s.expire(ctx, existing, now); err != nil {
			return nil, err
		}
	}

	sub := &domain.Subscription{
		ID:           uuid.New().String(),
		ProductSlug:  product.Slug,
		Plan:         plan.ID,
		Status:       domain.StatusActive,
		BillingCycle: p.BillingCycle,
		Amount:       p.Amount,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if plan.Trial {
		sub.Status = domain.StatusTrialing
	}
	sub.SetTenant(p.Tenant)
	sub.StartPeriod(now)
	applyPayment(sub, p.Payment)

	var rawKey string
	if product.RequiresAPIKey {
		if rawKey, err = s.attachKey(sub); err != nil {
			return nil, err
		}
	}

	if err := s.subs.Create(ctx, sub); err != nil {
		s.count(eventCreate, metrics.OutcomeRefused)
		return nil, passThrough("failed to create subscription", err)
	}

	action := p.Action
	if action == "" {
		action = domain.ActionCreated
	}
	s.record(ctx, sub, action, "", p.Actor, now)
	s.count(eventCreate, metrics.OutcomeOK)
	log.Info().
		Str("tenant", sub.Tenant().String()).
		Str("product", sub.ProductSlug).
		Str("subscription_id", sub.ID).
		Str("plan", sub.Plan).
		Str("to", string(sub.Status)).
		Msg("subscription created")

	return &domain.TransitionResult{Subscription: sub, APIKey: rawKey}, nil
}

// Upgrade changes the plan and amount in place and restarts the period from
// now. Unused days on the previous plan are not carried over. When the
// payment brings a new recurring subscription, the previous one is cancelled
// at the provider after the write commits.
func (s *SubscriptionService) Upgrade(ctx context.Context, p UpgradeParams) (*domain.TransitionResult, error) {
	sub, err := s.load(ctx, p.SubscriptionID)
	if err != nil {
		return nil, err
	}
	now := storeTime(s.now)
	if eff := sub.EffectiveStatus(now); !eff.Live() {
		s.count(eventUpgrade, metrics.OutcomeRefused)
		return nil, domain.InvalidTransition(eff, eventUpgrade)
	}

	_, plan, err := lookupPlan(sub.ProductSlug, p.Plan)
	if err != nil {
		return nil, err
	}
	if plan.ID == sub.Plan && sub.Status == domain.StatusActive {
		return nil, domain.ErrBadRequest("subscription is already on this plan")
	}
	amount := p.Amount
	if amount <= 0 {
		amount = plan.Price(sub.BillingCycle)
	}

	from, prev := sub.Status, sub.UpdatedAt
	previousGatewayID := deref(sub.GatewaySubscriptionID)
	sub.Plan = plan.ID
	sub.Amount = amount
	sub.Status = domain.StatusActive
	sub.StartPeriod(now)
	applyPayment(sub, p.Payment)
	sub.UpdatedAt = now

	if err := s.subs.Update(ctx, sub, from, prev); err != nil {
		s.count(eventUpgrade, metrics.OutcomeRefused)
		return nil, passThrough("failed to upgrade subscription", err)
	}

	s.record(ctx, sub, domain.ActionUpgraded, from, p.Actor, now)
	s.count(eventUpgrade, metrics.OutcomeOK)
	log.Info().
		Str("tenant", sub.Tenant().String()).
		Str("product", sub.ProductSlug).
		Str("subscription_id", sub.ID).
		Str("plan", sub.Plan).
		Str("from", string(from)).
		Str("to", string(sub.Status)).
		Msg("subscription upgraded")

	result := &domain.TransitionResult{Subscription: sub}
	if previousGatewayID != deref(sub.GatewaySubscriptionID) {
		if w := s.notifyGateway(ctx, eventCancel, sub.ID, previousGatewayID, s.gateway.CancelSubscription); w != nil {
			result.Warnings = append(result.Warnings, *w)
		}
	}
	return result, nil
}

// Cancel stops the subscription locally, then asks the provider to stop
// billing. The local write stands even if the provider cannot be reached;
// that case is reported as a warning on the result.
func (s *SubscriptionService) Cancel(ctx context.Context, principal *domain.Principal, id string) (*domain.TransitionResult, error) {
	sub, err := s.loadAuthorized(ctx, principal, id, true)
	if err != nil {
		return nil, err
	}
	now := storeTime(s.now)
	if eff := sub.EffectiveStatus(now); !eff.Live() {
		s.count(eventCancel, metrics.OutcomeRefused)
		return nil, domain.InvalidTransition(eff, eventCancel)
	}

	from, prev := sub.Status, sub.UpdatedAt
	sub.Status = domain.StatusCancelled
	sub.UpdatedAt = now
	if err := s.subs.Update(ctx, sub, from, prev); err != nil {
		s.count(eventCancel, metrics.OutcomeRefused)
		return nil, passThrough("failed to cancel subscription", err)
	}

	s.record(ctx, sub, domain.ActionCancelled, from, principal.ID, now)
	s.count(eventCancel, metrics.OutcomeOK)
	log.Info().
		Str("tenant", sub.Tenant().String()).
		Str("product", sub.ProductSlug).
		Str("subscription_id", sub.ID).
		Str("from", string(from)).
		Str("to", string(sub.Status)).
		Msg("subscription cancelled")

	result := &domain.TransitionResult{Subscription: sub}
	if w := s.notifyGateway(ctx, eventCancel, sub.ID, deref(sub.GatewaySubscriptionID), s.gateway.CancelSubscription); w != nil {
		result.Warnings = append(result.Warnings, *w)
	}
	return result, nil
}

// Resume reactivates a cancelled subscription with a fresh period from now.
// The key issued before cancellation becomes valid again.
func (s *SubscriptionService) Resume(ctx context.Context, principal *domain.Principal, id string) (*domain.TransitionResult, error) {
	sub, err := s.loadAuthorized(ctx, principal, id, true)
	if err != nil {
		return nil, err
	}
	if sub.Status != domain.StatusCancelled {
		s.count(eventResume, metrics.OutcomeRefused)
		return nil, domain.InvalidTransition(sub.Status, eventResume)
	}
	product, ok := domain.GetProduct(sub.ProductSlug)
	if !ok {
		return nil, domain.ErrInternal("subscription references an unknown product", nil)
	}

	now := storeTime(s.now)
	from, prev := sub.Status, sub.UpdatedAt
	sub.Status = domain.StatusActive
	sub.StartPeriod(now)
	sub.UpdatedAt = now

	var rawKey string
	if product.RequiresAPIKey && !sub.HasAPIKey() {
		if rawKey, err = s.attachKey(sub); err != nil {
			return nil, err
		}
	}

	if err := s.subs.Update(ctx, sub, from, prev); err != nil {
		s.count(eventResume, metrics.OutcomeRefused)
		return nil, passThrough("failed to resume subscription", err)
	}

	s.record(ctx, sub, domain.ActionResumed, from, principal.ID, now)
	s.count(eventResume, metrics.OutcomeOK)
	log.Info().
		Str("tenant", sub.Tenant().String()).
		Str("product", sub.ProductSlug).
		Str("subscription_id", sub.ID).
		Str("from", string(from)).
		Str("to", string(sub.Status)).
		Msg("subscription resumed")

	result := &domain.TransitionResult{Subscription: sub, APIKey: rawKey}
	if w := s.notifyGateway(ctx, eventResume, sub.ID, deref(sub.GatewaySubscriptionID), s.gateway.ResumeSubscription); w != nil {
		result.Warnings = append(result.Warnings, *w)
	}
	return result, nil
}

// RotateKey replaces the subscription's key. The previous key stops
// validating as soon as the write commits.
func (s *SubscriptionService) RotateKey(ctx context.Context, principal *domain.Principal, id string) (*domain.TransitionResult, error) {
	sub, err := s.loadAuthorized(ctx, principal, id, true)
	if err != nil {
		return nil, err
	}
	now := storeTime(s.now)
	if eff := sub.EffectiveStatus(now); !eff.Live() {
		s.count(eventRotate, metrics.OutcomeRefused)
		return nil, domain.InvalidTransition(eff, "regenerate the key of")
	}
	product, ok := domain.GetProduct(sub.ProductSlug)
	if !ok || !product.RequiresAPIKey {
		return nil, domain.ErrBadRequest("this product does not use API keys")
	}

	prev := sub.UpdatedAt
	rawKey, err := s.attachKey(sub)
	if err != nil {
		return nil, err
	}
	sub.UpdatedAt = now
	if err := s.subs.Update(ctx, sub, sub.Status, prev); err != nil {
		s.count(eventRotate, metrics.OutcomeRefused)
		return nil, passThrough("failed to rotate key", err)
	}

	s.record(ctx, sub, domain.ActionKeyRotated, sub.Status, principal.ID, now)
	s.count(eventRotate, metrics.OutcomeOK)
	log.Info().
		Str("tenant", sub.Tenant().String()).
		Str("subscription_id", sub.ID).
		Str("key_prefix", deref(sub.APIKeyPrefix)).
		Msg("api key rotated")

	return &domain.TransitionResult{Subscription: sub, APIKey: rawKey}, nil
}

// Get returns one subscription visible to the principal.
func (s *SubscriptionService) Get(ctx context.Context, principal *domain.Principal, id string) (*domain.SubscriptionView, error) {
	sub, err := s.loadAuthorized(ctx, principal, id, false)
	if err != nil {
		return nil, err
	}
	return s.view(sub, storeTime(s.now)), nil
}

// List returns every subscription of the principal's tenant, newest first.
func (s *SubscriptionService) List(ctx context.Context, principal *domain.Principal) ([]*domain.SubscriptionView, error) {
	t, err := tenant.Resolve(principal)
	if err != nil {
		return nil, err
	}
	subs, err := s.subs.ListByTenant(ctx, t)
	if err != nil {
		return nil, domain.ErrInternal("failed to list subscriptions", err)
	}
	now := storeTime(s.now)
	views := make([]*domain.SubscriptionView, 0, len(subs))
	for _, sub := range subs {
		views = append(views, s.view(sub, now))
	}
	return views, nil
}

// History returns the transition log of a subscription.
func (s *SubscriptionService) History(ctx context.Context, principal *domain.Principal, id string) ([]*domain.HistoryEntry, error) {
	if _, err := s.loadAuthorized(ctx, principal, id, false); err != nil {
		return nil, err
	}
	entries, err := s.subs.ListHistory(ctx, id)
	if err != nil {
		return nil, domain.ErrInternal("failed to load history", err)
	}
	if entries == nil {
		entries = []*domain.HistoryEntry{}
	}
	return entries, nil
}

// Grant creates a subscription for any tenant without payment.
func (s *SubscriptionService) Grant(ctx context.Context, principal *domain.Principal, req *domain.GrantRequest) (*domain.TransitionResult, error) {
	if !principal.IsWebsiteAdmin() {
		return nil, domain.ErrForbidden.WithMessage("administrator access required")
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrValidation(formatValidationErrors(err))
	}
	amount := req.Amount
	if amount == 0 {
		_, plan, err := lookupPlan(req.ProductSlug, req.Plan)
		if err != nil {
			return nil, err
		}
		amount = plan.Price(req.BillingCycle)
	}
	return s.Create(ctx, CreateParams{
		Tenant:       domain.TenantRef{Kind: req.TenantKind, ID: req.TenantID},
		ProductSlug:  req.ProductSlug,
		Plan:         req.Plan,
		BillingCycle: req.BillingCycle,
		Amount:       amount,
		Actor:        principal.ID,
		Action:       domain.ActionGranted,
	})
}

// ChangePlan is the administrator's upgrade without payment.
func (s *SubscriptionService) ChangePlan(ctx context.Context, principal *domain.Principal, id string, req *domain.UpgradeRequest) (*domain.TransitionResult, error) {
	if !principal.IsWebsiteAdmin() {
		return nil, domain.ErrForbidden.WithMessage("administrator access required")
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrValidation(formatValidationErrors(err))
	}
	return s.Upgrade(ctx, UpgradeParams{SubscriptionID: id, Plan: req.Plan, Actor: principal.ID})
}

// RegisterOrganization makes an organization billable.
func (s *SubscriptionService) RegisterOrganization(ctx context.Context, principal *domain.Principal, req *domain.CreateOrganizationRequest) (*domain.Organization, error) {
	if !principal.IsWebsiteAdmin() {
		return nil, domain.ErrForbidden.WithMessage("administrator access required")
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrValidation(formatValidationErrors(err))
	}
	org := &domain.Organization{
		ID:        req.ID,
		Name:      req.Name,
		CreatedBy: req.CreatedBy,
		CreatedAt: storeTime(s.now),
	}
	if org.ID == "" {
		org.ID = uuid.New().String()
	}
	if err := s.orgs.CreateOrganization(ctx, org); err != nil {
		return nil, passThrough("failed to create organization", err)
	}
	log.Info().Str("organization_id", org.ID).Str("created_by", org.CreatedBy).Msg("organization registered")
	return org, nil
}

// Stats counts subscriptions by product and stored status.
func (s *SubscriptionService) Stats(ctx context.Context, principal *domain.Principal) ([]domain.StatusCount, error) {
	if !principal.IsWebsiteAdmin() {
		return nil, domain.ErrForbidden.WithMessage("administrator access required")
	}
	counts, err := s.subs.CountByStatus(ctx)
	if err != nil {
		return nil, domain.ErrInternal("failed to count subscriptions", err)
	}
	if counts == nil {
		counts = []domain.StatusCount{}
	}
	return counts, nil
}

// --- internals ---

func (s *SubscriptionService) load(ctx context.Context, id string) (*domain.Subscription, error) {
	sub, err := s.subs.FindByID(ctx, id)
	if err != nil {
		return nil, domain.ErrInternal("failed to load subscription", err)
	}
	if sub == nil {
		return nil, domain.ErrSubscriptionNotFound
	}
	return sub, nil
}

func (s *SubscriptionService) loadAuthorized(ctx context.Context, principal *domain.Principal, id string, manage bool) (*domain.Subscription, error) {
	if principal == nil {
		return nil, domain.ErrNotAuthenticated
	}
	sub, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := tenant.Authorize(principal, sub, manage); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *SubscriptionService) requireOrganization(ctx context.Context, t domain.TenantRef) error {
	if t.Kind != domain.TenantOrganization {
		return nil
	}
	org, err := s.orgs.FindOrganization(ctx, t.ID)
	if err != nil {
		return domain.ErrInternal("failed to load organization", err)
	}
	if org == nil {
		return domain.ErrOrganizationNotFound
	}
	return nil
}

// expire stores the lazily derived expired status so a replacement row can
// take the live slot.
func (s *SubscriptionService) expire(ctx context.Context, sub *domain.Subscription, now time.Time) error {
	from, prev := sub.Status, sub.UpdatedAt
	sub.Status = domain.StatusExpired
	sub.UpdatedAt = now
	if err := s.subs.Update(ctx, sub, from, prev); err != nil {
		s.count(eventExpire, metrics.OutcomeRefused)
		return passThrough("failed to expire subscription", err)
	}
	s.record(ctx, sub, domain.ActionExpired, from, "system", now)
	s.count(eventExpire, metrics.OutcomeOK)
	log.Info().
		Str("tenant", sub.Tenant().String()).
		Str("product", sub.ProductSlug).
		Str("subscription_id", sub.ID).
		Str("from", string(from)).
		Msg("lapsed subscription marked expired")
	return nil
}

// attachKey issues a key and stores its hash, display prefix and sealed copy
// on sub. The raw key is returned for one-time display.
func (s *SubscriptionService) attachKey(sub *domain.Subscription) (string, error) {
	key, err := apikey.Issue()
	if err != nil {
		return "", domain.ErrInternal("failed to issue api key", err)
	}
	sealed, err := s.sealer.Seal(key.Raw, sub.ID)
	if err != nil {
		return "", domain.ErrInternal("failed to seal api key", err)
	}
	sub.APIKeyHash, sub.APIKeyEnc, sub.APIKeyPrefix = &key.Hash, &sealed, &key.Prefix
	return key.Raw, nil
}

// view applies lazy expiry and re-displays the key to the owning tenant.
func (s *SubscriptionService) view(sub *domain.Subscription, now time.Time) *domain.SubscriptionView {
	v := &domain.SubscriptionView{
		Subscription:    sub,
		EffectiveStatus: sub.EffectiveStatus(now),
		KeyHint:         apikey.Mask(deref(sub.APIKeyPrefix)),
	}
	if sub.APIKeyEnc != nil {
		raw, err := s.sealer.Open(*sub.APIKeyEnc, sub.ID)
		if err != nil {
			log.Error().Err(err).Str("subscription_id", sub.ID).Msg("failed to open stored api key")
		} else {
			v.APIKey = raw
		}
	}
	return v
}

// notifyGateway runs a best-effort provider call under the gateway timeout.
// Placeholder ids are skipped. Failures are logged and returned as a warning.
func (s *SubscriptionService) notifyGateway(ctx context.Context, event, subscriptionID, gatewayID string,
	call func(context.Context, string) error) *domain.Warning {
	if payment.IsPlaceholder(gatewayID) {
		metrics.GatewayCallsTotal.WithLabelValues(event, metrics.OutcomeSkipped).Inc()
		return nil
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.gatewayTimeout)
	defer cancel()

	if err := call(callCtx, gatewayID); err != nil {
		metrics.GatewayCallsTotal.WithLabelValues(event, metrics.OutcomeError).Inc()
		log.Warn().
			Err(err).
			Str("subscription_id", subscriptionID).
			Str("gateway_subscription_id", gatewayID).
			Str("event", event).
			Msg("payment gateway unavailable, local transition kept")
		action := "cancelled"
		if event == eventResume {
			action = "resumed"
		}
		w := domain.GatewayUnavailable(action)
		return &w
	}
	metrics.GatewayCallsTotal.WithLabelValues(event, metrics.OutcomeOK).Inc()
	return nil
}

// record appends a history row. It never fails the transition.
func (s *SubscriptionService) record(ctx context.Context, sub *domain.Subscription, action domain.HistoryAction,
	from domain.Status, actor string, now time.Time) {
	e := &domain.HistoryEntry{
		SubscriptionID: sub.ID,
		Action:         action,
		FromStatus:     from,
		ToStatus:       sub.Status,
		Plan:           sub.Plan,
		PeriodEnd:      sub.CurrentPeriodEnd,
		Actor:          actor,
		CreatedAt:      now,
	}
	if err := s.subs.AppendHistory(context.WithoutCancel(ctx), e); err != nil {
		log.Error().Err(err).Str("subscription_id", sub.ID).Str("action", string(action)).Msg("failed to append history")
	}
}

func (s *SubscriptionService) count(event, outcome string) {
	metrics.TransitionsTotal.WithLabelValues(event, outcome).Inc()
}

func lookupPlan(productSlug, planID string) (domain.Product, domain.Plan, error) {
	product, ok := domain.GetProduct(productSlug)
	if !ok {
		return domain.Product{}, domain.Plan{}, domain.ErrValidation("unknown product: " + productSlug)
	}
	plan, ok := product.Plan(planID)
	if !ok {
		return domain.Product{}, domain.Plan{}, domain.ErrValidation("unknown plan for " + product.Slug + ": " + planID)
	}
	return product, plan, nil
}

func applyPayment(sub *domain.Subscription, ref *PaymentRef) {
	if ref == nil {
		return
	}
	orderID, paymentID := ref.OrderID, ref.PaymentID
	sub.GatewayOrderID, sub.GatewayPaymentID = &orderID, &paymentID
	if ref.GatewaySubscriptionID != "" {
		gatewayID := ref.GatewaySubscriptionID
		sub.GatewaySubscriptionID = &gatewayID
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// isConflict reports store outcomes a caller may resolve by reloading.
func isConflict(err error) bool {
	return errors.Is(err, domain.ErrStaleWrite) || errors.Is(err, domain.ErrAlreadySubscribed)
}
