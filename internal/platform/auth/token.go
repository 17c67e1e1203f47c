// Package auth handles the bearer token issued by the external auth service. The token is opaque to
// the storefront: it is presence-checked and forwarded, never verified here.
package auth

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

const bearerPrefix = "bearer "

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerPrefix):])
}

// TokenFromRequest returns the bearer token carried by r, if any.
func TokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	return BearerToken(r.Header.Get("Authorization"))
}

// SubjectFromToken reads the user identifier claim from a JWT without verifying the signature. It is
// used only to mark locally created content as the caller's own; the review service verifies the
// token. Non-JWT tokens yield an empty string.
func SubjectFromToken(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	for _, key := range []string{"sub", "id", "_id", "userId", "uid"} {
		if value, ok := claims[key].(string); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
