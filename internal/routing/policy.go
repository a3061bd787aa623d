package routing

import "path/filepath"

// PolicyPrivacy is a TrafficPolicy's privacy requirement, distinct from
// an agent's PrivacyZone: a policy either demands Restricted routing or
// leaves the model Unrestricted.
type PolicyPrivacy string

const (
	PolicyRestricted   PolicyPrivacy = "restricted"
	PolicyUnrestricted PolicyPrivacy = "unrestricted"
)

// TrafficPolicy matches requests by model glob and constrains how they
// may be routed (§3.1).
type TrafficPolicy struct {
	ModelPattern      string
	Privacy           PolicyPrivacy
	MaxCostPerRequest *float64
	MinTier           int
	FallbackAllowed   bool
}

// PolicyMatcher compiles an ordered policy list; FindPolicy returns the
// highest-priority match, priority being list order unless the caller
// has already sorted by an explicit priority field.
//
// path/filepath.Match covers the glob syntax TrafficPolicy.ModelPattern
// needs (a single `*`/`?`/class wildcard over a flat model id) — no
// retrieved example repo pulls in a dedicated glob library for anything
// this simple, so the standard library is used here without a pack
// substitute.
type PolicyMatcher struct {
	policies []TrafficPolicy
}

func NewPolicyMatcher(policies []TrafficPolicy) *PolicyMatcher {
	return &PolicyMatcher{policies: policies}
}

func (m *PolicyMatcher) Empty() bool {
	return m == nil || len(m.policies) == 0
}

func (m *PolicyMatcher) FindPolicy(model string) (TrafficPolicy, bool) {
	if m == nil {
		return TrafficPolicy{}, false
	}
	for _, p := range m.policies {
		if ok, _ := filepath.Match(p.ModelPattern, model); ok {
			return p, true
		}
	}
	return TrafficPolicy{}, false
}
