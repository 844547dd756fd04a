package service

import (
	"context"
	"time"

	"github.com/Jeevanvsan/byee-ugraph-saas/internal/apikey"
	"github.com/Jeevanvsan/byee-ugraph-saas/internal/domain"
	"github.com/Jeevanvsan/byee-ugraph-saas/internal/metrics"
	"github.com/rs/zerolog/log"
)

// ValidationResult is the answer given to external products. When Valid is
// false no other field is set, whatever the reason.
type ValidationResult struct {
	Valid          bool
	OrganizationID *string
	Plan           string
	Status         domain.Status
	ExpiresAt      time.Time
}

// ValidationService answers whether an API key currently entitles its holder
// to a product. It only reads.
type ValidationService struct {
	keys KeyLookup
	now  Clock
}

func NewValidationService(keys KeyLookup) *ValidationService {
	return &ValidationService{keys: keys, now: time.Now}
}

// WithClock replaces the time source.
func (s *ValidationService) WithClock(now Clock) *ValidationService {
	s.now = now
	return s
}

// Validate looks the key up among organization rows first, then individual
// rows. Both lookups always run so unknown, expired and malformed keys cost
// the same.
func (s *ValidationService) Validate(ctx context.Context, rawKey, productSlug string) (*ValidationResult, error) {
	start := time.Now()
	defer func() { metrics.ValidationDuration.Observe(time.Since(start).Seconds()) }()

	hash := apikey.Hash(rawKey)
	product, known := domain.GetProduct(productSlug)
	slug := product.Slug
	if !known {
		slug = productSlug
	}

	orgSub, err := s.keys.FindByKeyHash(ctx, domain.TenantOrganization, hash, slug)
	if err != nil {
		return nil, s.fail(err)
	}
	userSub, err := s.keys.FindByKeyHash(ctx, domain.TenantIndividual, hash, slug)
	if err != nil {
		return nil, s.fail(err)
	}

	sub := orgSub
	if sub == nil {
		sub = userSub
	}
	now := s.now()
	if !known || !apikey.WellFormed(rawKey) || sub == nil || !sub.Entitled(now, product.TrialEntitled) {
		metrics.ValidationsTotal.WithLabelValues("invalid").Inc()
		return &ValidationResult{Valid: false}, nil
	}

	metrics.ValidationsTotal.WithLabelValues("valid").Inc()
	return &ValidationResult{
		Valid:          true,
		OrganizationID: sub.OrganizationID,
		Plan:           sub.Plan,
		Status:         sub.Status,
		ExpiresAt:      sub.CurrentPeriodEnd,
	}, nil
}

func (s *ValidationService) fail(err error) error {
	metrics.ValidationsTotal.WithLabelValues("error").Inc()
	log.Error().Err(err).Msg("api key lookup failed")
	return domain.ErrInternal("validation is temporarily unavailable", err)
}
