package fabric

import (
	"github.com/bmatcuk/doublestar/v4"
)

// SensitivityKey is the packet metadata key inspected by the default
// governance policy.
const SensitivityKey = "sensitivity"

// SensitivityRestricted marks a packet as hidden from every role.
const SensitivityRestricted = "restricted"

// Policy restricts which packets a set of roles may see. Roles are
// doublestar patterns ("qa", "review*", "**"). A packet is visible to a
// role only if every policy applicable to that role accepts it.
type Policy struct {
	Name      string
	Roles     []string
	Predicate func(Packet) bool
}

// AppliesTo reports whether the policy governs the given role.
func (p Policy) AppliesTo(role string) bool {
	for _, pattern := range p.Roles {
		if ok, err := doublestar.Match(pattern, role); err == nil && ok {
			return true
		}
	}
	return false
}

// DefaultPolicy denies packets flagged with restricted sensitivity to
// all roles.
func DefaultPolicy() Policy {
	return Policy{
		Name:  "deny-restricted",
		Roles: []string{"**"},
		Predicate: func(pkt Packet) bool {
			return pkt.Meta[SensitivityKey] != SensitivityRestricted
		},
	}
}

// Governance evaluates the configured policies for a role.
type Governance struct {
	policies []Policy
}

// NewGovernance builds a governance filter. The default deny-restricted
// policy is always installed first.
func NewGovernance(policies ...Policy) *Governance {
	all := make([]Policy, 0, len(policies)+1)
	all = append(all, DefaultPolicy())
	all = append(all, policies...)
	return &Governance{policies: all}
}

// Visible reports whether the packet may be shown to the role.
func (g *Governance) Visible(role string, pkt Packet) bool {
	for _, p := range g.policies {
		if !p.AppliesTo(role) {
			continue
		}
		if p.Predicate != nil && !p.Predicate(pkt) {
			return false
		}
	}
	return true
}
