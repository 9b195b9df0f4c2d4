package http

import (
	"context"
	"net/http"
	"strings"

	"pair-quiz-service/internal/domain"
)

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	Verify(raw string) (string, error)
}

type userKey struct{}

// Authenticate requires a valid bearer token. Browsers cannot set headers on
// websocket upgrades, so the access_token query parameter is accepted too.
func Authenticate(tokens TokenVerifier, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			writeError(w, domain.ErrUnauthenticated)
			return
		}
		userID, err := tokens.Verify(raw)
		if err != nil {
			writeError(w, domain.ErrUnauthenticated)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey{}, userID)))
	}
}

// UserID returns the authenticated user of the request, if any.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userKey{}).(string)
	return id
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return r.URL.Query().Get("access_token")
}
