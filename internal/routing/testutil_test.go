package routing

import (
	"context"

	"github.com/nexusfleet/nexus/internal/agent"
)

// stubAgent is a minimal agent.Agent used to populate the registry in
// routing pipeline tests without standing up real HTTP backends.
type stubAgent struct {
	id      string
	profile agent.Profile
}

func (s *stubAgent) ID() string             { return s.id }
func (s *stubAgent) Name() string           { return s.id }
func (s *stubAgent) Profile() agent.Profile { return s.profile }
func (s *stubAgent) HealthCheck(ctx context.Context) (agent.HealthResult, error) {
	return agent.HealthResult{OK: true}, nil
}
func (s *stubAgent) ListModels(ctx context.Context) ([]agent.DiscoveredModel, error) {
	return nil, nil
}
func (s *stubAgent) ChatCompletion(ctx context.Context, req *agent.ChatRequest) (*agent.ChatResponse, error) {
	return &agent.ChatResponse{}, nil
}
func (s *stubAgent) CountTokens(ctx context.Context, text string) (agent.TokenCount, error) {
	return agent.TokenCount{Count: int64(len(text) / 4)}, nil
}

func newStubAgent(id string, zone agent.PrivacyZone, tier int) *stubAgent {
	return &stubAgent{id: id, profile: agent.Profile{BackendType: "ollama", PrivacyZone: zone, CapabilityTier: tier}}
}
