// Package server exposes the engine over HTTP: the live snapshot, the
// settings and state documents, and the trigger endpoints an external
// scheduler (e.g. Cloud Scheduler) hits when the in-process driver is
// disabled.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/levenlabs/go-lflag"
	"github.com/tallywatt/tallywatt/pkg/log"
	"github.com/tallywatt/tallywatt/pkg/schedule"
	"github.com/tallywatt/tallywatt/pkg/storage"
	"github.com/tallywatt/tallywatt/pkg/types"
	"google.golang.org/api/idtoken"
)

// tokenValidator validates a Google ID token against an audience.
type tokenValidator func(ctx context.Context, idToken string, audience string) (*idtoken.Payload, error)

// Engine is the subset of the ledger the API surfaces.
type Engine interface {
	Snapshot(ctx context.Context) types.Totals
	Settings() types.Settings
	ApplySettings(ctx context.Context, settings types.Settings) error
	ExportState() types.LedgerState
	ImportState(ctx context.Context, state types.LedgerState) error
	OnTick(ctx context.Context)
	OnDailyRollover(ctx context.Context)
	OnMonthlyRollover(ctx context.Context)
}

// Server handles the HTTP API for the engine.
type Server struct {
	engine  Engine
	driver  *schedule.Driver
	storage storage.Database

	listenAddr      string
	triggerAudience string
	triggerEmails   []string
	tokenValidator  tokenValidator
	serverName      string
	httpServer      *http.Server
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(engine Engine, driver *schedule.Driver, db storage.Database) *Server {
	srv := &Server{
		engine:         engine,
		driver:         driver,
		storage:        db,
		tokenValidator: idtoken.Validate,
		serverName:     "tallywatt",
	}
	revision := os.Getenv("K_REVISION")
	if revision != "" {
		srv.serverName = revision
	}

	// get the port from PORT when running in cloud run
	port := os.Getenv("PORT")
	if port == "" {
		// otherwise default to 8080
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	triggerAudience := lflag.String("trigger-audience", "", "audience to validate on trigger endpoint id tokens (empty disables auth)")
	triggerEmails := lflag.String("trigger-emails", "", "comma-delimited list of email addresses allowed on trigger endpoints")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		srv.triggerAudience = *triggerAudience
		if *triggerEmails != "" {
			srv.triggerEmails = strings.Split(*triggerEmails, ",")
			for i, email := range srv.triggerEmails {
				srv.triggerEmails[i] = strings.TrimSpace(email)
			}
		}
	})

	return srv
}

func (s *Server) setupHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("POST /api/settings", s.handleUpdateSettings)
	mux.HandleFunc("GET /api/state", s.handleGetState)
	mux.Handle("POST /api/state", s.triggerAuthMiddleware(http.HandlerFunc(s.handleImportState)))
	mux.Handle("POST /api/tick", s.triggerAuthMiddleware(http.HandlerFunc(s.handleTick)))
	mux.Handle("POST /api/rollover/daily", s.triggerAuthMiddleware(http.HandlerFunc(s.handleDailyRollover)))
	mux.Handle("POST /api/rollover/monthly", s.triggerAuthMiddleware(http.HandlerFunc(s.handleMonthlyRollover)))
	mux.HandleFunc("/healthz", s.handleHealthz)
	return s.revisionMiddleware(gziphandler.GzipHandler(mux))
}

// Run starts the HTTP server and blocks until the context is canceled or an error occurs.
// It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}

// persistState saves the current ledger state. Persistence failures are
// logged, not surfaced: the trigger already did its accounting work and the
// next trigger will retry the save.
func (s *Server) persistState(ctx context.Context) {
	if s.storage == nil {
		return
	}
	state := s.engine.ExportState()
	if err := s.storage.SaveLedgerState(ctx, state, types.CurrentLedgerStateVersion); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to persist ledger state", slog.Any("error", err))
	}
}
