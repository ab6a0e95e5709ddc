package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tallywatt/tallywatt/pkg/types"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.engine.Settings())
}

// handleUpdateSettings installs and persists a new settings document. The
// engine validates before anything is applied, so a rejected document leaves
// both the running state and storage untouched.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var settings types.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeJSONError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	if err := s.engine.ApplySettings(ctx, settings); err != nil {
		slog.WarnContext(ctx, "rejected settings update", slog.Any("error", err))
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if s.storage != nil {
		if err := s.storage.SetSettings(ctx, settings, types.CurrentSettingsVersion); err != nil {
			slog.ErrorContext(ctx, "failed to persist settings", slog.Any("error", err))
			writeJSONError(w, "failed to persist settings", http.StatusInternalServerError)
			return
		}
	}

	// device removals and wattage changes take effect immediately; persist
	// the adjusted state alongside the settings
	s.persistState(ctx)
	writeJSON(w, s.engine.Settings())
}
