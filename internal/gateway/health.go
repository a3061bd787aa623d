package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/nexusfleet/nexus/internal/registry"
)

type healthSummary struct {
	Status          string `json:"status"`
	BackendCount    int    `json:"backend_count"`
	HealthyBackends int    `json:"healthy_backends"`
	ModelCount      int    `json:"model_count"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
}

// handleHealth reports a fleet-level summary (§4.6 "GET /health").
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	all := g.reg.GetAllBackends()
	healthy := 0
	models := make(map[string]struct{})
	for _, b := range all {
		if b.Status == registry.StatusHealthy {
			healthy++
		}
		for _, m := range b.Models {
			models[m.ID] = struct{}{}
		}
	}

	status := "healthy"
	if healthy == 0 && len(all) > 0 {
		status = "unhealthy"
	} else if healthy < len(all) {
		status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(healthSummary{
		Status:          status,
		BackendCount:    len(all),
		HealthyBackends: healthy,
		ModelCount:      len(models),
		UptimeSeconds:   int64(time.Since(g.startedAt).Seconds()),
	})
}
