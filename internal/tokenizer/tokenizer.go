// Package tokenizer is the token-counting registry the Budget Reconciler
// consumes when request text is available (§4.5.4 step 1). Nexus
// delegates to it rather than re-implementing any tokenization algorithm,
// per the Non-goals in §1.
package tokenizer

import (
	"strings"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Tier mirrors agent.Exactness: 0 exact, 1 approximation, 2 heuristic.
type Tier int

const (
	TierExact Tier = iota
	TierApproximate
	TierHeuristic
)

// Registry counts tokens for a given model, picking the most precise
// counter it has for that model's family.
type Registry interface {
	CountTokens(model, text string) (count int64, tier Tier)
}

type registry struct {
	openAIEncoder *tiktoken.Tiktoken
}

// New builds the default registry: exact BPE for OpenAI model families,
// heuristic len/4 for everything else.
func New() Registry {
	enc, _ := tiktoken.GetEncoding("o200k_base")
	return &registry{openAIEncoder: enc}
}

func (r *registry) CountTokens(model, text string) (int64, Tier) {
	if r.openAIEncoder != nil && isOpenAIModel(model) {
		tokens := r.openAIEncoder.Encode(text, nil, nil)
		return int64(len(tokens)), TierExact
	}
	return int64(len(text)) / 4, TierHeuristic
}

func isOpenAIModel(model string) bool {
	m := strings.ToLower(model)
	return strings.HasPrefix(m, "gpt-") || strings.HasPrefix(m, "o1") || strings.HasPrefix(m, "o3") || strings.HasPrefix(m, "o200k")
}
