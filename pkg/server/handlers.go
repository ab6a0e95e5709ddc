package server

import (
	"log/slog"
	"net/http"

	"github.com/tallywatt/tallywatt/pkg/log"
)

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.engine.Snapshot(r.Context()))
}

// handleTick runs one scheduler step when a driver is wired, so externally
// triggered deployments still get boundary ordering (rollovers before the
// tick). Without a driver it ticks the engine directly.
func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.driver != nil {
		s.driver.Step(ctx)
	} else {
		s.engine.OnTick(ctx)
	}
	s.persistState(ctx)
	writeJSON(w, s.engine.Snapshot(ctx))
}

func (s *Server) handleDailyRollover(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log.Ctx(ctx).InfoContext(ctx, "daily rollover triggered", slog.String("remote", r.RemoteAddr))
	s.engine.OnDailyRollover(ctx)
	s.persistState(ctx)
	writeJSON(w, s.engine.Snapshot(ctx))
}

func (s *Server) handleMonthlyRollover(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log.Ctx(ctx).InfoContext(ctx, "monthly rollover triggered", slog.String("remote", r.RemoteAddr))
	s.engine.OnMonthlyRollover(ctx)
	s.persistState(ctx)
	writeJSON(w, s.engine.Snapshot(ctx))
}
