package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/hanko-field/storefront/internal/platform/requestctx"
	"github.com/hanko-field/storefront/internal/session"
)

// SessionHeader carries the storefront session identifier in both directions.
const SessionHeader = "X-Session-ID"

// SessionMiddleware reads the session identifier from SessionHeader, issuing a new one when the
// header is missing or malformed, and echoes it on the response.
func SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(SessionHeader))
		if !session.ValidID(id) {
			id = uuid.NewString()
		}
		w.Header().Set(SessionHeader, id)
		next.ServeHTTP(w, r.WithContext(requestctx.WithSessionID(r.Context(), id)))
	})
}

// sessionRunner is the slice of session.Manager the handlers depend on.
type sessionRunner interface {
	With(ctx context.Context, id string, fn func(*session.Session) error) error
	Logout(ctx context.Context, id string) error
}

func sessionID(r *http.Request) string {
	if id := requestctx.SessionID(r.Context()); id != "" {
		return id
	}
	return strings.TrimSpace(r.Header.Get(SessionHeader))
}
