package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nexusfleet/nexus/internal/agent"
)

// apiError is the OpenAI-compatible error envelope (§6.1/§7).
type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, errType, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]apiError{
		"error": {Message: message, Type: errType, Code: code},
	})
}

func writeModelNotFound(w http.ResponseWriter, model string) {
	writeError(w, http.StatusNotFound, "invalid_request_error", "model_not_found", "model not found: "+model)
}

func writeNoHealthyBackend(w http.ResponseWriter, code, message string) {
	writeError(w, http.StatusServiceUnavailable, "service_unavailable_error", code, message)
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, "invalid_request_error", "parse_error", message)
}

// statusForAgentError maps the agent error taxonomy (§7) to an HTTP
// status for the non-streaming path.
func statusForAgentError(err error) (int, string, string) {
	var ae *agent.Error
	if !errors.As(err, &ae) {
		return http.StatusInternalServerError, "internal_error", "internal_error"
	}
	switch ae.Kind {
	case agent.ErrTimeout:
		return http.StatusGatewayTimeout, "timeout_error", "gateway_timeout"
	case agent.ErrNetwork:
		return http.StatusBadGateway, "upstream_error", "upstream_unavailable"
	case agent.ErrUpstream:
		if ae.Status == http.StatusUnauthorized || ae.Status == http.StatusForbidden {
			return ae.Status, "authentication_error", "upstream_auth_failed"
		}
		return http.StatusBadGateway, "upstream_error", "upstream_failure"
	case agent.ErrInvalidResponse:
		return http.StatusBadGateway, "upstream_error", "invalid_upstream_response"
	case agent.ErrConfiguration:
		return http.StatusInternalServerError, "configuration_error", "backend_misconfigured"
	case agent.ErrUnsupported:
		return http.StatusNotImplemented, "invalid_request_error", "operation_unsupported"
	default:
		return http.StatusInternalServerError, "internal_error", "internal_error"
	}
}
