package gateway

import (
	"fmt"
	"net/http"

	"github.com/nexusfleet/nexus/internal/agent"
	"github.com/nexusfleet/nexus/internal/registry"
)

func backendTypeLabel(t string) string {
	switch t {
	case "openai", "anthropic", "google":
		return "cloud"
	default:
		return "local"
	}
}

// routeReasonHeader collapses the pipeline's fine-grained route_reason
// tag (§4.5.6, e.g. "highest_score:b1:0.8123") into the coarse four-value
// vocabulary §4.6 defines for X-Nexus-Route-Reason. Privacy takes
// precedence since it's the strongest routing constraint, then whether
// this attempt is a failover retry, then whether the scheduler had more
// than one healthy candidate to choose among (capacity-overflow),
// defaulting to a plain capability match.
func routeReasonHeader(privacyConstrained bool, isRetry bool, hadMultipleCandidates bool) string {
	switch {
	case privacyConstrained:
		return "privacy-requirement"
	case isRetry:
		return "backend-failover"
	case hadMultipleCandidates:
		return "capacity-overflow"
	default:
		return "capability-match"
	}
}

// setTransparentHeaders attaches the §4.6 headers to a final response.
func setTransparentHeaders(w http.ResponseWriter, b registry.Backend, zone agent.PrivacyZone, routeReason string, costUSD float64, costKnown bool) {
	h := w.Header()
	h.Set("X-Nexus-Backend", b.Name)
	h.Set("X-Nexus-Backend-Type", backendTypeLabel(b.Type))
	h.Set("X-Nexus-Route-Reason", routeReason)
	h.Set("X-Nexus-Privacy-Zone", string(zone))
	if backendTypeLabel(b.Type) == "cloud" && costKnown {
		h.Set("X-Nexus-Cost-Estimated", fmt.Sprintf("%.6f", costUSD))
	}
}
