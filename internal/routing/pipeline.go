package routing

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Pipeline runs the ordered reconciler chain and folds the resulting
// RoutingIntent into a terminal Decision (§4.5).
type Pipeline struct {
	stages []Reconciler
}

// NewPipeline chains the given stages in the order passed. Callers pass
// the six stages as analyze, lifecycle, privacy, budget, tier, schedule.
func NewPipeline(stages ...Reconciler) *Pipeline {
	return &Pipeline{stages: stages}
}

// Run executes every stage in order, mutating intent in place, and
// derives the terminal Decision from its final state.
func (p *Pipeline) Run(ctx context.Context, intent *RoutingIntent) Decision {
	for _, stage := range p.stages {
		if err := stage.Reconcile(ctx, intent); err != nil {
			// Reconcilers normally report exclusions via intent.exclude and
			// return nil; a non-nil error means the stage itself broke.
			// Per §4.5 error policy, privacy/budget fail closed (reject-all
			// already reflected in CandidateAgents) while the rest log and
			// continue with whatever candidates survived.
			log.Error().Err(err).Str("reconciler", stage.Name()).Str("request_id", intent.RequestID).Msg("reconciler stage error")
		}
	}
	return p.decide(intent)
}

func (p *Pipeline) decide(intent *RoutingIntent) Decision {
	if len(intent.CandidateAgents) == 0 {
		return Decision{
			Kind:             DecisionReject,
			Reason:           "no eligible backend for model " + intent.RequestedModel,
			RejectionReasons: intent.RejectionReasons,
		}
	}

	chosen := intent.CandidateAgents[0]
	return Decision{
		Kind:             DecisionRoute,
		AgentID:          chosen,
		Reason:           intent.RouteReason,
		RejectionReasons: intent.RejectionReasons,
	}
}
