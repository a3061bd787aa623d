package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/nexusfleet/nexus/internal/fleet"
)

// handleFleetRecommendations serves the advisory pre-warming list
// (§4.6 "GET /v1/fleet/recommendations").
func (g *Gateway) handleFleetRecommendations(w http.ResponseWriter, r *http.Request) {
	var recs []fleet.Recommendation
	if g.fleetTracker != nil {
		recs = g.fleetTracker.Recommendations()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"recommendations": recs})
}
