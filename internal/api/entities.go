package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-miot/internal/entity"
	"github.com/nerrad567/gray-logic-miot/internal/host"
)

// handleListEntities returns snapshots of every attached entity.
//
// Query parameters:
//   - domain: filter by host domain (sensor, switch, ...)
//   - device_id: filter by owning device
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	domain := r.URL.Query().Get("domain")
	deviceID := r.URL.Query().Get("device_id")

	ents := s.runtime.Entities()
	snaps := make([]entity.Snapshot, 0, len(ents))
	for _, e := range ents {
		snap := e.Snapshot()
		if domain != "" && snap.Domain != domain {
			continue
		}
		if deviceID != "" && snap.DeviceID != deviceID {
			continue
		}
		snaps = append(snaps, snap)
	}
	writeJSON(w, http.StatusOK, map[string]any{"entities": snaps, "count": len(snaps)})
}

// handleGetEntity returns one entity by unique ID or entity ID.
func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid entity ID")
		return
	}

	e, err := s.runtime.Entity(id)
	if err != nil {
		writeNotFound(w, "entity not found")
		return
	}
	writeJSON(w, http.StatusOK, e.Snapshot())
}

// handleListRegistry returns every persisted entity registry entry,
// including entries whose device is not loaded.
func (s *Server) handleListRegistry(w http.ResponseWriter, r *http.Request) {
	entries, err := s.runtime.Registry().List(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list registry")
		return
	}
	if entries == nil {
		entries = []host.RegistryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

// handleForgetEntity deletes a detached entity's registry entry and
// restore data, freeing its entity ID.
func (s *Server) handleForgetEntity(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "unique_id")
	if uid == "" || len(uid) > maxQueryParamLen {
		writeBadRequest(w, "invalid unique ID")
		return
	}

	err := s.runtime.ForgetEntity(r.Context(), uid)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, host.ErrEntityNotFound):
		writeNotFound(w, "registry entry not found")
	case errors.Is(err, host.ErrInvalidEntry):
		writeError(w, http.StatusConflict, ErrCodeConflict, "entity is attached")
	default:
		s.logger.Error("forgetting entity", "unique_id", uid, "error", err)
		writeInternalError(w, "failed to forget entity")
	}
}
