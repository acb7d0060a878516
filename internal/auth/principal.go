package auth

import "slices"

// Principal is the identity and permission set resolved for one invocation.
type Principal struct {
	UserID      int64    `json:"user_id"`
	Username    string   `json:"username"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// HasRole reports whether the principal carries role.
func (p Principal) HasRole(role string) bool {
	return slices.Contains(p.Roles, role)
}

// HasAnyRole reports whether the principal carries at least one of roles.
func (p Principal) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if p.HasRole(role) {
			return true
		}
	}
	return false
}

// DegradedPrincipal returns the fixed identity used for anonymous calls and
// authorization-service outages. Each call returns a fresh copy.
func DegradedPrincipal() Principal {
	return Principal{
		UserID:      7,
		Username:    "test_user",
		Roles:       []string{"member"},
		Permissions: []string{"weather:read", "user:read", "department:read"},
	}
}

// Decision is the outcome of one authorization check. It is one of Authorized,
// Degraded or Denied.
type Decision interface {
	decision()
}

// Authorized means the authorization service allowed the call.
type Authorized struct {
	Principal Principal
}

// Degraded means no check could be completed and the default principal applies.
type Degraded struct {
	Principal Principal
	Reason    DegradeReason
}

// Denied means the call must not run.
type Denied struct {
	Reason string
}

func (Authorized) decision() {}
func (Degraded) decision()   {}
func (Denied) decision()     {}

// DegradeReason explains why a Degraded decision was produced.
type DegradeReason string

const (
	// DegradeAnonymous is used when no credential was presented.
	DegradeAnonymous DegradeReason = "anonymous"
	// DegradeServiceFailure is used when the authorization service call failed.
	DegradeServiceFailure DegradeReason = "service_failure"
)

// PrincipalOf returns the principal carried by d, if any.
func PrincipalOf(d Decision) (Principal, bool) {
	switch typed := d.(type) {
	case Authorized:
		return typed.Principal, true
	case Degraded:
		return typed.Principal, true
	default:
		return Principal{}, false
	}
}
