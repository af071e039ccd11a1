package auth

import "casecommerce/internal/models"

// Capability names something a caller may do. Routes require capabilities;
// only the Policy knows which roles hold them.
type Capability string

const (
	// ManageCatalog allows creating, updating and deleting products.
	ManageCatalog Capability = "catalog:manage"
	// ActOnBehalf allows touching another user's cart, orders and profile.
	ActOnBehalf Capability = "users:act-on-behalf"
)

// Policy maps roles to the capabilities they grant.
type Policy struct {
	grants map[string]map[Capability]struct{}
}

func NewPolicy() *Policy {
	return &Policy{grants: make(map[string]map[Capability]struct{})}
}

// DefaultPolicy grants admins everything and ordinary users nothing beyond
// their own resources.
func DefaultPolicy() *Policy {
	return NewPolicy().
		Grant(models.RoleAdmin, ManageCatalog, ActOnBehalf).
		Grant(models.RoleUser)
}

// Grant adds capabilities to role and returns the policy for chaining.
func (p *Policy) Grant(role string, caps ...Capability) *Policy {
	set, ok := p.grants[role]
	if !ok {
		set = make(map[Capability]struct{})
		p.grants[role] = set
	}
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return p
}

// Allows reports whether role holds capability c.
func (p *Policy) Allows(role string, c Capability) bool {
	_, ok := p.grants[role][c]
	return ok
}

// CanActFor reports whether the caller may operate on userID's resources.
func (p *Policy) CanActFor(caller *Claims, userID int64) bool {
	if caller == nil {
		return false
	}
	return caller.UserID == userID || p.Allows(caller.Role, ActOnBehalf)
}
