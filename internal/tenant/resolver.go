// Package tenant maps an authenticated principal onto the billing scope that
// owns its subscriptions.
package tenant

import (
	"github.com/Jeevanvsan/byee-ugraph-saas/internal/domain"
)

// Resolve returns the tenant a principal acts for. Members of an organization
// always act for the organization; everyone else acts for themselves.
func Resolve(p *domain.Principal) (domain.TenantRef, error) {
	if p == nil || p.ID == "" {
		return domain.TenantRef{}, domain.ErrNotAuthenticated
	}
	if p.InOrganization() {
		return domain.TenantRef{Kind: domain.TenantOrganization, ID: *p.OrganizationID}, nil
	}
	return domain.TenantRef{Kind: domain.TenantIndividual, ID: p.ID}, nil
}

// Classify computes the caller's user type.
func Classify(p *domain.Principal) domain.UserType {
	switch {
	case p == nil || p.ID == "":
		return domain.UserTypeGuest
	case p.IsWebsiteAdmin():
		return domain.UserTypeWebsiteAdmin
	case p.InOrganization() && isOrgManager(p.OrgRole):
		return domain.UserTypeOrgAdmin
	case p.InOrganization():
		return domain.UserTypeOrgUser
	default:
		return domain.UserTypeIndividualUser
	}
}

func isOrgManager(role string) bool {
	return role == domain.OrgRoleOwner || role == domain.OrgRoleAdmin
}

// CanManage reports whether a user type may mutate its tenant's subscriptions.
// Organization members may only read.
func CanManage(t domain.UserType) bool {
	switch t {
	case domain.UserTypeWebsiteAdmin, domain.UserTypeOrgAdmin, domain.UserTypeIndividualUser:
		return true
	case domain.UserTypeOrgUser, domain.UserTypeGuest:
		return false
	}
	return false
}

// Owns reports whether sub belongs to tenant t.
func Owns(t domain.TenantRef, sub *domain.Subscription) bool {
	return sub != nil && sub.Tenant() == t
}

// Authorize checks that p may read (manage=false) or mutate (manage=true) sub.
// A subscription of another tenant is reported as not found so its existence
// is not revealed.
func Authorize(p *domain.Principal, sub *domain.Subscription, manage bool) error {
	if p == nil || p.ID == "" {
		return domain.ErrNotAuthenticated
	}
	if !p.Active {
		return domain.ErrForbidden.WithMessage("your account is inactive")
	}
	if p.IsWebsiteAdmin() {
		return nil
	}
	t, err := Resolve(p)
	if err != nil {
		return err
	}
	if !Owns(t, sub) {
		return domain.ErrSubscriptionNotFound
	}
	if manage && !CanManage(Classify(p)) {
		return domain.ErrForbidden
	}
	return nil
}
