// Package identity provides anonymous per-device identity primitives.
package identity

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	AnonCookieName   = "agenda_uid"
	UserHeaderName   = "X-Agenda-User"
	anonCookieMaxAge = 30 * 24 * time.Hour
)

type contextKey int

const userIDKey contextKey = iota

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:@-]{1,128}$`)

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// WithUserID returns a context carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func generateAnonID() string {
	return "anon_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func isValidAnonID(id string) bool {
	if !strings.HasPrefix(id, "anon_") {
		return false
	}
	_, err := uuid.Parse(strings.TrimPrefix(id, "anon_"))
	return err == nil
}

// sanitizeUserID returns id when it is safe to use as a session key.
func sanitizeUserID(id string) (string, bool) {
	id = strings.TrimSpace(id)
	if id == "" || !userIDPattern.MatchString(id) {
		return "", false
	}
	return id, true
}

func getOrCreateAnonID(w http.ResponseWriter, r *http.Request, isDev bool) string {
	id := ""
	if c, err := r.Cookie(AnonCookieName); err == nil && isValidAnonID(c.Value) {
		id = c.Value
	} else {
		id = generateAnonID()
	}

	http.SetCookie(w, &http.Cookie{
		Name:     AnonCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(anonCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(anonCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
	return id
}

// Middleware injects the user key every conversation is stored under. An
// explicit X-Agenda-User header (or user_id query parameter) wins; otherwise
// an anonymous per-device cookie is issued or refreshed.
func Middleware(isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			explicit := r.Header.Get(UserHeaderName)
			if explicit == "" {
				explicit = r.URL.Query().Get("user_id")
			}

			var userID string
			if explicit != "" {
				id, ok := sanitizeUserID(explicit)
				if !ok {
					http.Error(w, `{"error":"invalid user id"}`, http.StatusBadRequest)
					return
				}
				userID = id
			} else {
				userID = getOrCreateAnonID(w, r, isDev)
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// IPFromRequest returns a normalized remote IP for optional request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
