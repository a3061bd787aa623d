package routing

import (
	"context"

	"github.com/nexusfleet/nexus/internal/agent"
	"github.com/nexusfleet/nexus/internal/registry"
)

// PrivacyReconciler enforces TrafficPolicy privacy constraints. It fails
// closed: any internal error (a missing agent) becomes an exclusion,
// never a silent pass-through, and a Restricted constraint with no
// eligible backends is never relaxed to Open (§4.5.3).
type PrivacyReconciler struct {
	reg     *registry.Registry
	matcher *PolicyMatcher
}

func NewPrivacyReconciler(reg *registry.Registry, matcher *PolicyMatcher) *PrivacyReconciler {
	return &PrivacyReconciler{reg: reg, matcher: matcher}
}

func (p *PrivacyReconciler) Name() string { return "privacy" }

func (p *PrivacyReconciler) Reconcile(ctx context.Context, intent *RoutingIntent) error {
	if p.matcher.Empty() {
		return nil
	}
	policy, ok := p.matcher.FindPolicy(intent.ResolvedModel)
	if !ok || policy.Privacy == PolicyUnrestricted {
		return nil
	}

	restricted := agent.ZoneRestricted
	intent.PrivacyConstraint = &restricted

	kept := intent.CandidateAgents[:0:0]
	for _, id := range intent.CandidateAgents {
		a, err := p.reg.GetAgent(id)
		if err != nil {
			intent.exclude(id, p.Name(), "agent unavailable: failing closed on a restricted policy", "none")
			continue
		}
		zone := a.Profile().PrivacyZone
		if zone == "" {
			// Safer to exclude than to leak: treat unset zone as Open.
			zone = agent.ZoneOpen
		}
		if zone == agent.ZoneRestricted {
			kept = append(kept, id)
			continue
		}
		intent.exclude(id, p.Name(), "privacy policy requires a restricted (local-only) backend", "configure a local backend for this model")
	}
	intent.CandidateAgents = kept
	return nil
}
