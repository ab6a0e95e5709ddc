package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tallywatt/tallywatt/pkg/types"
)

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.engine.ExportState())
}

// handleImportState replaces the running accumulators with a state blob,
// e.g. when seeding a new deployment from a backup.
func (s *Server) handleImportState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var state types.LedgerState
	if err := json.NewDecoder(r.Body).Decode(&state); err != nil {
		writeJSONError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	if err := s.engine.ImportState(ctx, state); err != nil {
		slog.WarnContext(ctx, "rejected state import", slog.Any("error", err))
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.persistState(ctx)
	writeJSON(w, s.engine.ExportState())
}
