package domain

// Capability is a role the caller holds with respect to one circle.
type Capability string

const (
	CapCreator Capability = "creator"
	CapArbiter Capability = "arbiter"
	CapMember  Capability = "member"
)

// CapabilitySet is the set of roles resolved once per operation.
type CapabilitySet map[Capability]bool

// Has reports whether the set contains the capability
func (s CapabilitySet) Has(c Capability) bool {
	return s[c]
}

// HasAny reports whether the set contains at least one of the capabilities
func (s CapabilitySet) HasAny(caps ...Capability) bool {
	for _, c := range caps {
		if s[c] {
			return true
		}
	}
	return false
}

// ResolveCapabilities evaluates the caller's roles against a circle's creator,
// optional arbiter, and member list. An empty set means no standing at all.
func ResolveCapabilities(caller, creator Address, arbiter *Address, members []Address) CapabilitySet {
	set := CapabilitySet{}
	if caller == creator {
		set[CapCreator] = true
	}
	if arbiter != nil && caller == *arbiter {
		set[CapArbiter] = true
	}
	if ContainsAddress(members, caller) {
		set[CapMember] = true
	}
	return set
}
