package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/nexusfleet/nexus/internal/agent"
	"github.com/nexusfleet/nexus/internal/metrics"
	"github.com/nexusfleet/nexus/internal/registry"
	"github.com/nexusfleet/nexus/internal/routing"
)

// knownChatFields are the chatRequestBody keys, excluded when computing
// the passthrough Extra map.
var knownChatFields = []string{
	"model", "messages", "stream", "temperature", "max_tokens", "top_p",
	"stop", "presence_penalty", "frequency_penalty", "user",
}

type chatRequestBody struct {
	Model            string          `json:"model"`
	Messages         []agent.Message `json:"messages"`
	Stream           bool            `json:"stream"`
	Temperature      *float32        `json:"temperature"`
	MaxTokens        *uint32         `json:"max_tokens"`
	TopP             *float32        `json:"top_p"`
	Stop             []string        `json:"stop"`
	PresencePenalty  *float32        `json:"presence_penalty"`
	FrequencyPenalty *float32        `json:"frequency_penalty"`
	User             string          `json:"user"`
}

func (g *Gateway) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "failed to read request body: "+err.Error())
		return
	}
	var body chatRequestBody
	if err := json.Unmarshal(raw, &body); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if body.Model == "" {
		writeBadRequest(w, "missing required field: model")
		return
	}
	extra, err := decodeWithExtra(raw, knownChatFields...)
	if err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	requestText := flattenMessages(body.Messages)
	reqs := routing.RequestRequirements{
		Model:            body.Model,
		EstimatedTokens:  int64(len(requestText) / 4),
		PrefersStreaming: body.Stream,
		RequestText:      requestText,
	}

	requestID := "req-" + uuid.New().String()
	intent := routing.NewIntent(requestID, body.Model, reqs, r.Header.Get("Authorization"))
	decision := g.pipeline.Run(r.Context(), intent)

	if decision.Kind != routing.DecisionRoute {
		g.writeRejection(w, body.Model, decision)
		return
	}
	if g.fleetTracker != nil {
		g.fleetTracker.RecordRequest(intent.ResolvedModel, time.Now())
	}

	chatReq := &agent.ChatRequest{
		Model: body.Model, Messages: body.Messages, Stream: body.Stream,
		Temperature: body.Temperature, MaxTokens: body.MaxTokens, TopP: body.TopP,
		Stop: body.Stop, PresencePenalty: body.PresencePenalty, FrequencyPenalty: body.FrequencyPenalty,
		User: body.User, AuthHeader: intent.AuthHeader, Extra: extra,
	}

	if body.Stream {
		g.streamChat(w, r, intent, decision, chatReq)
		return
	}
	g.nonStreamChat(w, r, intent, decision, chatReq)
}

func flattenMessages(msgs []agent.Message) string {
	total := 0
	for _, m := range msgs {
		total += len(m.Content)
	}
	out := make([]byte, 0, total)
	for _, m := range msgs {
		out = append(out, m.Content...)
	}
	return string(out)
}

// writeRejection maps a pipeline Reject onto the §6.1/§7 error envelope,
// choosing 404 vs 503 and the policy-specific code named in S2.
func (g *Gateway) writeRejection(w http.ResponseWriter, model string, decision routing.Decision) {
	log.Warn().Str("model", model).Interface("rejection_reasons", decision.RejectionReasons).Msg("routing rejected request")

	if len(g.reg.GetBackendsForModel(model)) == 0 {
		writeModelNotFound(w, model)
		return
	}

	code := "no_healthy_backend"
	for _, reason := range decision.RejectionReasons {
		if reason.Reconciler == "privacy" {
			code = "no_healthy_backend_for_policy"
			break
		}
	}
	writeNoHealthyBackend(w, code, "no eligible backend for model "+model)
}

// candidateChain resolves the ordered list of healthy backends for the
// resolved model, starting with the scheduler's chosen agent id, so a
// retry can fall through to the next preference (§4.6 "Non-streaming
// path" / §8.1 "at most k+1 backends").
func (g *Gateway) candidateChain(intent *routing.RoutingIntent, firstChoice string) []string {
	chain := []string{firstChoice}
	for _, b := range g.reg.GetBackendsForModel(intent.ResolvedModel) {
		if b.ID == firstChoice || b.Status != registry.StatusHealthy {
			continue
		}
		chain = append(chain, b.ID)
	}
	return chain
}

func (g *Gateway) nonStreamChat(w http.ResponseWriter, r *http.Request, intent *routing.RoutingIntent, decision routing.Decision, chatReq *agent.ChatRequest) {
	chain := g.candidateChain(intent, decision.AgentID)
	maxAttempts := g.cfg.MaxRetries + 1
	if maxAttempts > len(chain) {
		maxAttempts = len(chain)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		backendID := chain[attempt]
		b, err := g.reg.GetBackend(backendID)
		if err != nil {
			lastErr = err
			continue
		}
		a, err := g.reg.GetAgent(backendID)
		if err != nil {
			lastErr = err
			continue
		}

		ctx, cancel := context.WithTimeout(r.Context(), g.cfg.InferenceTimeout)
		start := time.Now()
		g.reg.IncrementPending(backendID)
		resp, err := a.ChatCompletion(ctx, chatReq)
		g.reg.UpdateLatency(backendID, uint32(time.Since(start).Milliseconds()))
		g.reg.DecrementPending(backendID)
		cancel()

		if err == nil {
			metrics.RequestsTotal.WithLabelValues("success").Inc()
			g.recordSpending(intent.CostEstimate.CostUSD)
			zone := a.Profile().PrivacyZone
			setTransparentHeaders(w, b, zone, routeReasonHeader(intent.PrivacyConstraint != nil, attempt > 0, len(chain) > 1), intent.CostEstimate.CostUSD, backendTypeLabel(b.Type) == "cloud")
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(resp)
			return
		}

		lastErr = err
		if !isRetryable(err) {
			break
		}
		log.Warn().Err(err).Str("backend", backendID).Int("attempt", attempt).Msg("chat completion failed, attempting next candidate")
	}

	metrics.RequestsTotal.WithLabelValues("failure").Inc()
	status, errType, code := statusForAgentError(lastErr)
	writeError(w, status, errType, code, errorMessage(lastErr))
}

func isRetryable(err error) bool {
	var ae *agent.Error
	if !errors.As(err, &ae) {
		return true
	}
	switch ae.Kind {
	case agent.ErrTimeout, agent.ErrNetwork:
		return true
	case agent.ErrUpstream:
		return ae.Status >= 500
	default:
		return false
	}
}

func errorMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

func (g *Gateway) streamChat(w http.ResponseWriter, r *http.Request, intent *routing.RoutingIntent, decision routing.Decision, chatReq *agent.ChatRequest) {
	backendID := decision.AgentID
	b, err := g.reg.GetBackend(backendID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "internal_error", "backend vanished before stream start")
		return
	}
	a, err := g.reg.GetAgent(backendID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "internal_error", "agent vanished before stream start")
		return
	}
	streamer, ok := a.(agent.StreamingAgent)
	if !ok {
		writeError(w, http.StatusNotImplemented, "invalid_request_error", "streaming_unsupported", "backend does not support streaming")
		return
	}

	flusher, canFlush := w.(http.Flusher)
	setTransparentHeaders(w, b, a.Profile().PrivacyZone, routeReasonHeader(intent.PrivacyConstraint != nil, false, len(g.reg.GetBackendsForModel(intent.ResolvedModel)) > 1), intent.CostEstimate.CostUSD, backendTypeLabel(b.Type) == "cloud")
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx, cancel := context.WithTimeout(r.Context(), g.cfg.InferenceTimeout)
	defer cancel()

	g.reg.IncrementPending(backendID)
	defer g.reg.DecrementPending(backendID)
	start := time.Now()

	streamErr := streamer.ChatCompletionStream(ctx, chatReq, func(chunk *agent.ChatChunk) error {
		payload, err := json.Marshal(chunk)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return err
		}
		if canFlush {
			flusher.Flush()
		}
		return nil
	})
	g.reg.UpdateLatency(backendID, uint32(time.Since(start).Milliseconds()))

	if streamErr != nil {
		log.Warn().Err(streamErr).Str("backend", backendID).Msg("stream closed after transport error")
		metrics.RequestsTotal.WithLabelValues("failure").Inc()
	} else {
		metrics.RequestsTotal.WithLabelValues("success").Inc()
		g.recordSpending(intent.CostEstimate.CostUSD)
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	if canFlush {
		flusher.Flush()
	}
}
