package domain

// Website-level roles carried in the identity token.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Organization membership roles.
const (
	OrgRoleOwner  = "owner"
	OrgRoleAdmin  = "admin"
	OrgRoleMember = "member"
)

// Principal is the authenticated caller, built from verified token claims.
// It is passed explicitly through every request and never cached globally.
type Principal struct {
	ID             string  `json:"id"`
	Email          string  `json:"email"`
	Role           string  `json:"role"`
	OrganizationID *string `json:"organizationId,omitempty"`
	OrgRole        string  `json:"orgRole,omitempty"`
	Active         bool    `json:"active"`
}

// IsWebsiteAdmin reports whether the principal administers the whole site.
func (p *Principal) IsWebsiteAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// InOrganization reports whether the principal belongs to an organization.
func (p *Principal) InOrganization() bool {
	return p != nil && p.OrganizationID != nil && *p.OrganizationID != ""
}

// UserType is the closed classification of a caller, computed once per request.
type UserType string

const (
	UserTypeGuest          UserType = "guest"
	UserTypeWebsiteAdmin   UserType = "website_admin"
	UserTypeOrgAdmin       UserType = "org_admin"
	UserTypeOrgUser        UserType = "org_user"
	UserTypeIndividualUser UserType = "individual_user"
)

// MeResponse describes the caller for the dashboard.
type MeResponse struct {
	Principal *Principal `json:"principal"`
	UserType  UserType   `json:"userType"`
	Tenant    TenantRef  `json:"tenant"`
	CanManage bool       `json:"canManage"`
}
