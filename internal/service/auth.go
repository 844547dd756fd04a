package service

import (
	"fmt"
	"time"

	"github.com/Jeevanvsan/byee-ugraph-saas/internal/domain"
	"github.com/Jeevanvsan/byee-ugraph-saas/internal/tenant"
	"github.com/golang-jwt/jwt/v5"
)

// AuthService verifies identity tokens issued by the website and turns their
// claims into a Principal.
type AuthService struct {
	jwtSecret string
}

// NewAuthService creates a new AuthService.
func NewAuthService(jwtSecret string) *AuthService {
	return &AuthService{jwtSecret: jwtSecret}
}

// VerifyToken validates a JWT token and returns the caller it names.
func (s *AuthService) VerifyToken(tokenStr string) (*domain.Principal, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		return nil, domain.ErrUnauthorized("invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, domain.ErrUnauthorized("invalid token claims")
	}

	p := &domain.Principal{
		ID:      getClaimString(claims, "sub"),
		Email:   getClaimString(claims, "email"),
		Role:    getClaimString(claims, "role"),
		OrgRole: getClaimString(claims, "org_role"),
		Active:  true,
	}
	if p.ID == "" {
		return nil, domain.ErrUnauthorized("token has no subject")
	}
	if p.Role == "" {
		p.Role = domain.RoleUser
	}
	if org := getClaimString(claims, "org_id"); org != "" {
		p.OrganizationID = &org
	}
	if active, ok := claims["active"].(bool); ok {
		p.Active = active
	}
	return p, nil
}

// IssueToken signs a token for p valid for ttl. The website normally issues
// tokens; this exists for operators and tests.
func (s *AuthService) IssueToken(p *domain.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":    p.ID,
		"email":  p.Email,
		"role":   p.Role,
		"active": p.Active,
		"exp":    now.Add(ttl).Unix(),
		"iat":    now.Unix(),
	}
	if p.InOrganization() {
		claims["org_id"] = *p.OrganizationID
		claims["org_role"] = p.OrgRole
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", domain.ErrInternal("failed to sign token", err)
	}
	return signed, nil
}

// Me describes the caller for the dashboard.
func (s *AuthService) Me(p *domain.Principal) (*domain.MeResponse, error) {
	t, err := tenant.Resolve(p)
	if err != nil {
		return nil, err
	}
	ut := tenant.Classify(p)
	return &domain.MeResponse{
		Principal: p,
		UserType:  ut,
		Tenant:    t,
		CanManage: p.Active && tenant.CanManage(ut),
	}, nil
}

func getClaimString(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}
