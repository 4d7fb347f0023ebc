package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/mavbridge/internal/telemetry"
)

// EnabledRequest is the body of PUT /messages/{type}/enabled.
type EnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

// handleListMessages returns every cached message type.
//
// Query parameters:
//   - enabled: "true" or "false" to filter on the enablement flag
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	entries := s.bridge.Entries()

	switch r.URL.Query().Get("enabled") {
	case "":
	case "true":
		entries = filterEntries(entries, true)
	case "false":
		entries = filterEntries(entries, false)
	default:
		writeBadRequest(w, `enabled must be "true" or "false"`)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"messages": entries, "count": len(entries)})
}

// handleGetMessage returns one cached message type.
func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	msgType := chi.URLParam(r, "type")

	for _, e := range s.bridge.Entries() {
		if e.Type == msgType {
			writeJSON(w, http.StatusOK, e)
			return
		}
	}
	writeNotFound(w, "message type not seen")
}

// handleSetEnabled toggles publishing of one message type.
func (s *Server) handleSetEnabled(w http.ResponseWriter, r *http.Request) {
	msgType := chi.URLParam(r, "type")

	var req EnabledRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Enabled == nil {
		writeValidationError(w, "enabled is required")
		return
	}

	if err := s.bridge.SetEnabled(msgType, *req.Enabled); err != nil {
		if errors.Is(err, telemetry.ErrUnknownType) {
			writeNotFound(w, "message type not seen")
			return
		}
		writeInternalError(w, "failed to update message type")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"type": msgType, "enabled": *req.Enabled})
}

// handleListActivity returns the recent publish attempts, oldest first.
func (s *Server) handleListActivity(w http.ResponseWriter, _ *http.Request) {
	entries := s.bridge.Activity()
	writeJSON(w, http.StatusOK, map[string]any{"activity": entries, "count": len(entries)})
}

func filterEntries(entries []telemetry.EntryView, enabled bool) []telemetry.EntryView {
	out := make([]telemetry.EntryView, 0, len(entries))
	for _, e := range entries {
		if e.Enabled == enabled {
			out = append(out, e)
		}
	}
	return out
}
