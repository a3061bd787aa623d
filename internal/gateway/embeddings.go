package gateway

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/nexusfleet/nexus/internal/agent"
	"github.com/nexusfleet/nexus/internal/routing"
)

var knownEmbeddingsFields = []string{"model", "input"}

type embeddingsRequestBody struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingEntry struct {
	Object    string    `json:"object"`
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

// handleEmbeddings proxies to an agent advertising the embeddings
// capability (§4.6 "proxied if agent advertises embeddings capability").
func (g *Gateway) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "failed to read request body: "+err.Error())
		return
	}
	var body embeddingsRequestBody
	if err := json.Unmarshal(raw, &body); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if body.Model == "" || len(body.Input) == 0 {
		writeBadRequest(w, "model and input are required")
		return
	}
	extra, err := decodeWithExtra(raw, knownEmbeddingsFields...)
	if err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	requestID := "req-embed"
	intent := routing.NewIntent(requestID, body.Model, routing.RequestRequirements{Model: body.Model}, r.Header.Get("Authorization"))
	decision := g.pipeline.Run(r.Context(), intent)
	if decision.Kind != routing.DecisionRoute {
		g.writeRejection(w, body.Model, decision)
		return
	}

	a, err := g.reg.GetAgent(decision.AgentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "internal_error", "backend vanished")
		return
	}
	embedder, ok := a.(agent.EmbeddingAgent)
	if !ok {
		writeError(w, http.StatusNotImplemented, "invalid_request_error", "embeddings_unsupported", "backend does not support embeddings")
		return
	}

	vectors, err := embedder.Embeddings(r.Context(), body.Model, body.Input, extra)
	if err != nil {
		status, errType, code := statusForAgentError(err)
		writeError(w, status, errType, code, errorMessage(err))
		return
	}
	g.recordSpending(intent.CostEstimate.CostUSD)

	entries := make([]embeddingEntry, len(vectors))
	for i, v := range vectors {
		entries[i] = embeddingEntry{Object: "embedding", Index: i, Embedding: v}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data":   entries,
		"model":  body.Model,
	})
}
