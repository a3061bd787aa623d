// Package routing implements the Reconciler Routing Pipeline (§4.5): an
// ordered chain of policy stages that converts a request into a
// Route | Queue | Reject decision with auditable rejection reasons.
package routing

import (
	"context"

	"github.com/nexusfleet/nexus/internal/agent"
	"github.com/nexusfleet/nexus/internal/tokenizer"
)

// TierEnforcementMode controls how strictly the TierReconciler applies a
// policy's min_tier.
type TierEnforcementMode string

const (
	TierStrict   TierEnforcementMode = "strict"
	TierFlexible TierEnforcementMode = "flexible"
)

// BudgetStatus is the outcome of the BudgetReconciler's spending check.
type BudgetStatus string

const (
	BudgetNormal    BudgetStatus = "normal"
	BudgetSoftLimit BudgetStatus = "soft_limit"
	BudgetHardLimit BudgetStatus = "hard_limit"
)

// RejectionReason is one auditable exclusion emitted by a reconciler.
type RejectionReason struct {
	AgentID         string
	Reconciler      string
	Reason          string
	SuggestedAction string
}

// CostEstimate is the BudgetReconciler's per-request cost workspace.
type CostEstimate struct {
	InputTokens          int64
	OutputTokensEstimate int64
	CostUSD              float64
	Tier                 tokenizer.Tier
}

// RequestRequirements is derived from the parsed HTTP request.
type RequestRequirements struct {
	Model            string
	EstimatedTokens  int64
	NeedsVision      bool
	NeedsTools       bool
	NeedsJSONMode    bool
	PrefersStreaming bool
	// RequestText, when non-empty, lets the BudgetReconciler ask the
	// tokenizer registry for a precise count instead of the heuristic
	// estimate carried in EstimatedTokens.
	RequestText string
}

// RoutingIntent is the mutable per-request workspace threaded through the
// pipeline (§3.1).
type RoutingIntent struct {
	RequestID       string
	RequestedModel  string
	ResolvedModel   string
	Requirements    RequestRequirements
	CandidateAgents []string
	ExcludedAgents  []string
	RejectionReasons []RejectionReason

	PrivacyConstraint   *agent.PrivacyZone
	MinCapabilityTier   int
	TierEnforcementMode TierEnforcementMode

	CostEstimate CostEstimate
	BudgetStatus BudgetStatus

	RouteReason string

	// AuthHeader is the caller's Authorization header, forwarded to
	// agents whose dialect requires passthrough credentials.
	AuthHeader string
}

// NewIntent starts a fresh workspace for one request.
func NewIntent(requestID, requestedModel string, reqs RequestRequirements, authHeader string) *RoutingIntent {
	return &RoutingIntent{
		RequestID:           requestID,
		RequestedModel:      requestedModel,
		Requirements:        reqs,
		TierEnforcementMode: TierStrict,
		AuthHeader:          authHeader,
	}
}

func (i *RoutingIntent) exclude(agentID, reconciler, reason, suggestion string) {
	i.ExcludedAgents = append(i.ExcludedAgents, agentID)
	i.RejectionReasons = append(i.RejectionReasons, RejectionReason{
		AgentID: agentID, Reconciler: reconciler, Reason: reason, SuggestedAction: suggestion,
	})
}

// DecisionKind is the terminal shape of a pipeline run.
type DecisionKind string

const (
	DecisionRoute  DecisionKind = "route"
	DecisionQueue  DecisionKind = "queue"
	DecisionReject DecisionKind = "reject"
)

// Decision is the terminal value of the pipeline (§3.1).
type Decision struct {
	Kind             DecisionKind
	AgentID          string
	Reason           string
	Score            float64
	RejectionReasons []RejectionReason
}

// Reconciler is one pipeline stage.
type Reconciler interface {
	Name() string
	Reconcile(ctx context.Context, intent *RoutingIntent) error
}
