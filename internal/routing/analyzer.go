package routing

import (
	"context"

	"github.com/nexusfleet/nexus/internal/registry"
)

// MaxAliasDepth bounds alias resolution hops (§4.5.1).
const MaxAliasDepth = 3

// RequestAnalyzer resolves model aliases and seeds the candidate list
// from the registry's model index. Fails open: an internal error is
// logged (there currently are none to hit) and the pipeline continues
// with whatever candidates were found.
type RequestAnalyzer struct {
	reg     *registry.Registry
	aliases map[string]string
}

func NewRequestAnalyzer(reg *registry.Registry, aliases map[string]string) *RequestAnalyzer {
	return &RequestAnalyzer{reg: reg, aliases: aliases}
}

func (a *RequestAnalyzer) Name() string { return "request_analyzer" }

func (a *RequestAnalyzer) Reconcile(ctx context.Context, intent *RoutingIntent) error {
	resolved := intent.RequestedModel
	for hop := 0; hop < MaxAliasDepth; hop++ {
		target, ok := a.aliases[resolved]
		if !ok || target == resolved {
			break
		}
		resolved = target
	}
	intent.ResolvedModel = resolved

	backends := a.reg.GetBackendsForModel(resolved)
	ids := make([]string, 0, len(backends))
	for _, b := range backends {
		ids = append(ids, b.ID)
	}
	intent.CandidateAgents = ids
	return nil
}
