package routing

import (
	"context"
	"fmt"

	"github.com/nexusfleet/nexus/internal/registry"
)

// TierReconciler enforces RequestRequirements against each candidate's
// declared model capabilities and CapabilityTier (§4.5.5). A hard
// capability requirement (vision/tools/json mode) excludes a candidate in
// either enforcement mode when the resolved model doesn't advertise it.
// Tier enforcement itself varies: Strict excludes under-tier candidates
// outright, Flexible lets them through for the scheduler to penalize.
type TierReconciler struct {
	reg *registry.Registry
}

func NewTierReconciler(reg *registry.Registry) *TierReconciler {
	return &TierReconciler{reg: reg}
}

func (t *TierReconciler) Name() string { return "tier" }

func findModel(b registry.Backend, modelID string) (registry.Model, bool) {
	for _, m := range b.Models {
		if m.ID == modelID {
			return m, true
		}
	}
	return registry.Model{}, false
}

func (t *TierReconciler) Reconcile(ctx context.Context, intent *RoutingIntent) error {
	reqs := intent.Requirements

	capable := intent.CandidateAgents[:0:0]
	for _, id := range intent.CandidateAgents {
		b, err := t.reg.GetBackend(id)
		if err != nil {
			intent.exclude(id, t.Name(), "backend vanished mid-pipeline", "retry")
			continue
		}
		if model, ok := findModel(b, intent.ResolvedModel); ok {
			if reqs.NeedsVision && !model.SupportsVision {
				intent.exclude(id, t.Name(), "model lacks vision support", "route to a vision-capable backend")
				continue
			}
			if reqs.NeedsTools && !model.SupportsTools {
				intent.exclude(id, t.Name(), "model lacks tool-calling support", "route to a tool-capable backend")
				continue
			}
			if reqs.NeedsJSONMode && !model.SupportsJSONMode {
				intent.exclude(id, t.Name(), "model lacks JSON mode support", "route to a JSON-mode-capable backend")
				continue
			}
		}
		capable = append(capable, id)
	}

	minTier := intent.MinCapabilityTier
	if minTier <= 0 {
		intent.CandidateAgents = capable
		return nil
	}

	tiers := make(map[string]int, len(capable))
	anyAtOrAboveTier := false
	for _, id := range capable {
		a, err := t.reg.GetAgent(id)
		if err != nil {
			intent.exclude(id, t.Name(), "agent unavailable", "retry")
			continue
		}
		tier := a.Profile().EffectiveTier()
		tiers[id] = tier
		if tier >= minTier {
			anyAtOrAboveTier = true
		}
	}

	// Flexible mode only relaxes enforcement when NO candidate clears the
	// bar; if at least one does, it behaves exactly like Strict.
	enforce := intent.TierEnforcementMode == TierStrict || anyAtOrAboveTier

	kept := capable[:0:0]
	for _, id := range capable {
		tier, ok := tiers[id]
		if !ok {
			continue // already excluded above for a missing agent
		}
		if enforce && tier < minTier {
			intent.exclude(id, t.Name(),
				fmt.Sprintf("backend tier %d below required tier %d", tier, minTier),
				"lower min_capability_tier or route to a higher-tier backend")
			continue
		}
		kept = append(kept, id)
	}
	intent.CandidateAgents = kept
	return nil
}
