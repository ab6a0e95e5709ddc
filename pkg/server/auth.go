package server

import (
	"log/slog"
	"net/http"
	"strings"
)

// triggerAuthMiddleware guards the endpoints an external scheduler calls.
// With no audience configured (local deployments behind a trusted network)
// the endpoints are open; otherwise the caller must present a Google ID
// token for the audience, optionally restricted to an email allowlist.
func (s *Server) triggerAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.triggerAudience == "" {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeJSONError(w, "missing authorization header", http.StatusUnauthorized)
			return
		}
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			writeJSONError(w, "invalid authorization header", http.StatusUnauthorized)
			return
		}

		payload, err := s.tokenValidator(ctx, parts[1], s.triggerAudience)
		if err != nil {
			slog.WarnContext(ctx, "failed to validate id token", slog.Any("error", err))
			writeJSONError(w, "invalid id token", http.StatusUnauthorized)
			return
		}

		if len(s.triggerEmails) > 0 {
			email, ok := payload.Claims["email"].(string)
			if !ok {
				slog.WarnContext(ctx, "missing email in id token")
				writeJSONError(w, "invalid token claims", http.StatusForbidden)
				return
			}
			var allowed bool
			for _, e := range s.triggerEmails {
				if email == e {
					allowed = true
					break
				}
			}
			if !allowed {
				slog.WarnContext(ctx, "unauthorized email on trigger endpoint", slog.String("email", email))
				writeJSONError(w, "unauthorized email", http.StatusForbidden)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}
