package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nexusfleet/nexus/internal/registry"
)

type loadRequestBody struct {
	BackendID string `json:"backend_id"`
	ModelID   string `json:"model_id"`
}

type migrateRequestBody struct {
	SourceBackendID string `json:"source_backend_id"`
	TargetBackendID string `json:"target_backend_id"`
	ModelID         string `json:"model_id"`
}

// handleLoadModel initiates a lifecycle load operation on a backend
// (§4.6 "POST /v1/models/load").
func (g *Gateway) handleLoadModel(w http.ResponseWriter, r *http.Request) {
	var body loadRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if body.BackendID == "" || body.ModelID == "" {
		writeBadRequest(w, "backend_id and model_id are required")
		return
	}
	op := &registry.CurrentOperation{Type: registry.OpLoad, Status: registry.OpInProgress, ModelID: body.ModelID}
	if err := g.reg.SetCurrentOperation(body.BackendID, op); err != nil {
		writeModelNotFound(w, body.BackendID)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "load_initiated", "backend_id": body.BackendID, "model_id": body.ModelID})
}

// handleMigrateModel initiates a lifecycle migrate operation, recorded
// against both the source and the target backend; the LifecycleReconciler
// keeps the source serving traffic while the target loads (§4.5.2).
func (g *Gateway) handleMigrateModel(w http.ResponseWriter, r *http.Request) {
	var body migrateRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if body.SourceBackendID == "" || body.TargetBackendID == "" || body.ModelID == "" {
		writeBadRequest(w, "source_backend_id, target_backend_id, and model_id are required")
		return
	}
	op := &registry.CurrentOperation{
		Type: registry.OpMigrate, Status: registry.OpInProgress, ModelID: body.ModelID,
		SourceBackendID: body.SourceBackendID, TargetBackendID: body.TargetBackendID,
	}
	if err := g.reg.SetCurrentOperation(body.SourceBackendID, op); err != nil {
		writeModelNotFound(w, body.SourceBackendID)
		return
	}
	if err := g.reg.SetCurrentOperation(body.TargetBackendID, op); err != nil {
		writeModelNotFound(w, body.TargetBackendID)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "migrate_initiated"})
}

// handleUnloadModel initiates a lifecycle unload (§4.6 "DELETE
// /v1/models/{model_id}"); the backend to unload from is named via the
// ?backend_id= query parameter since the path only carries the model id.
func (g *Gateway) handleUnloadModel(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "model_id")
	backendID := r.URL.Query().Get("backend_id")
	if modelID == "" || backendID == "" {
		writeBadRequest(w, "model_id path segment and backend_id query parameter are required")
		return
	}
	op := &registry.CurrentOperation{Type: registry.OpUnload, Status: registry.OpInProgress, ModelID: modelID}
	if err := g.reg.SetCurrentOperation(backendID, op); err != nil {
		writeModelNotFound(w, backendID)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "unload_initiated", "backend_id": backendID, "model_id": modelID})
}
