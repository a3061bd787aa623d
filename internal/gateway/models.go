package gateway

import (
	"encoding/json"
	"net/http"
	"sort"
)

type modelListEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

// handleListModels returns the union of models across healthy backends,
// sorted by id then owner (§4.6).
func (g *Gateway) handleListModels(w http.ResponseWriter, r *http.Request) {
	seen := make(map[string]modelListEntry)
	for _, b := range g.reg.GetHealthyBackends() {
		for _, m := range b.Models {
			key := m.ID + "|" + b.Name
			seen[key] = modelListEntry{ID: m.ID, Object: "model", OwnedBy: b.Name}
		}
	}

	entries := make([]modelListEntry, 0, len(seen))
	for _, e := range seen {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ID != entries[j].ID {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].OwnedBy < entries[j].OwnedBy
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data":   entries,
	})
}
