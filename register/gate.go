/*
gate.go - Capability gate in front of every register operation

PURPOSE:
  Evaluates whether an acting principal's roles grant a required capability
  before an operation proceeds. Pure check, no side effects; the service
  evaluates it before any mutation.

DESIGN:
  Capabilities are a fixed enumeration, never ad hoc strings. Roles map to
  capability sets through a static table resolved once per operation. The
  resolver is an interface so the surrounding application can plug in its
  own staff directory; RoleDirectory is the default static implementation.

KNOWN RACE:
  A capability revoked between check and act is not re-checked inside the
  mutation. Permission changes are rare administrative events; the window
  is accepted and documented here.
*/
package register

import "context"

// =============================================================================
// CAPABILITIES
// =============================================================================

type Capability string

const (
	CapRegisterCreate  Capability = "register.create"
	CapRegisterOpen    Capability = "register.open"
	CapRegisterClose   Capability = "register.close"
	CapRegisterDelete  Capability = "register.delete"
	CapTransactionPost Capability = "transaction.post"

	// CapCashOut gates withdrawals and adjustments, which move cash out
	// of the drawer or arbitrarily. Stricter than plain posting.
	CapCashOut Capability = "transaction.cash_out"
)

// =============================================================================
// ROLES - Static role -> capability table
// =============================================================================

type Role string

const (
	RoleCashier Role = "cashier"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

var roleCapabilities = map[Role][]Capability{
	RoleCashier: {CapRegisterOpen, CapRegisterClose, CapTransactionPost},
	RoleManager: {CapRegisterCreate, CapRegisterOpen, CapRegisterClose,
		CapTransactionPost, CapCashOut},
	RoleAdmin: {CapRegisterCreate, CapRegisterOpen, CapRegisterClose,
		CapRegisterDelete, CapTransactionPost, CapCashOut},
}

// =============================================================================
// RESOLVER - External principal/role directory
// =============================================================================

// CapabilityResolver resolves a principal to its granted capability set.
// Authentication is handled elsewhere; the gate only consumes the result.
type CapabilityResolver interface {
	ResolveCapabilities(ctx context.Context, principal PrincipalID) ([]Capability, error)
}

// RoleDirectory is an in-memory principal -> roles mapping with the static
// role table above. Suitable for embedded deployments and tests.
type RoleDirectory struct {
	roles map[PrincipalID][]Role
}

func NewRoleDirectory() *RoleDirectory {
	return &RoleDirectory{roles: make(map[PrincipalID][]Role)}
}

// Grant assigns a role to a principal. Granting the same role twice is a no-op.
func (d *RoleDirectory) Grant(principal PrincipalID, role Role) {
	for _, r := range d.roles[principal] {
		if r == role {
			return
		}
	}
	d.roles[principal] = append(d.roles[principal], role)
}

func (d *RoleDirectory) ResolveCapabilities(_ context.Context, principal PrincipalID) ([]Capability, error) {
	seen := make(map[Capability]bool)
	var caps []Capability
	for _, role := range d.roles[principal] {
		for _, c := range roleCapabilities[role] {
			if !seen[c] {
				seen[c] = true
				caps = append(caps, c)
			}
		}
	}
	return caps, nil
}

// =============================================================================
// GATE
// =============================================================================

// Gate answers "may this principal do that?" and nothing else.
type Gate struct {
	resolver CapabilityResolver
}

func NewGate(resolver CapabilityResolver) *Gate {
	return &Gate{resolver: resolver}
}

// Authorize returns nil when the principal holds the capability,
// a *PermissionError naming the missing capability otherwise.
func (g *Gate) Authorize(ctx context.Context, principal PrincipalID, required Capability) error {
	caps, err := g.resolver.ResolveCapabilities(ctx, principal)
	if err != nil {
		return &InfrastructureError{Op: "resolve capabilities", Err: err}
	}
	for _, c := range caps {
		if c == required {
			return nil
		}
	}
	return &PermissionError{Principal: principal, Capability: required}
}
