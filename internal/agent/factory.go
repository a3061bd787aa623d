package agent

// Build constructs the Agent variant for backendType, mirroring the
// teacher's Kind()-keyed driver registry but resolved once at backend
// registration time rather than dispatched per call. cfg.HTTPClient must
// be the gateway's single shared client (§9 "Global HTTP client").
func Build(backendType string, cfg Config) (Agent, error) {
	if cfg.HTTPClient == nil {
		return nil, Configurationf("agent: no http client provided for %s", cfg.ID)
	}
	switch backendType {
	case "ollama":
		return NewOllamaAgent(cfg), nil
	case "llamacpp":
		return NewLlamaCppAgent(cfg), nil
	case "vllm", "exo", "lmstudio", "generic":
		return NewOpenAICompatAgent(backendType, cfg), nil
	case "openai":
		return NewOpenAIAgent(cfg), nil
	case "anthropic":
		return NewAnthropicAgent(cfg), nil
	case "google":
		return NewGoogleAgent(cfg), nil
	default:
		return nil, Configurationf("agent: unknown backend type %q", backendType)
	}
}
