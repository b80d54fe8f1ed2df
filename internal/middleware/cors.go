// Package middleware provides HTTP middleware for the agenda API.
package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/johpaz/smart-calendar-assistant/internal/identity"
)

const preflightMaxAge = 10 * time.Minute

// CORS returns middleware that handles CORS headers for browser clients of
// the chat, events and calendar download endpoints.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed, explicit := matchOrigin(allowedOrigins, origin)

			if allowed {
				h := w.Header()
				h.Add("Vary", "Origin")
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, "+identity.UserHeaderName)
				h.Set("Access-Control-Expose-Headers", "Content-Disposition")
				// Credentials only for explicit origins; a wildcard-echoed
				// origin with credentials enables CSRF.
				if explicit {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method == http.MethodOptions {
				if allowed {
					w.Header().Set("Access-Control-Max-Age", strconv.Itoa(int(preflightMaxAge.Seconds())))
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// matchOrigin reports whether origin is allowed and whether it was listed
// explicitly rather than through "*".
func matchOrigin(allowedOrigins []string, origin string) (allowed, explicit bool) {
	if origin == "" {
		return false, false
	}
	for _, o := range allowedOrigins {
		switch o {
		case origin:
			return true, true
		case "*":
			allowed = true
		}
	}
	return allowed, false
}
