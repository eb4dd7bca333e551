package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"sandyq.org/internal/audit"
	"sandyq.org/internal/vault"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

type ctxKey string

const callerKey ctxKey = "caller"

// withAuth resolves the bearer token to a user key and stores it in the
// context. Token failures surface as session_expired so the engine's check
// ordering is preserved end to end.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		caller, err := a.sessions.Resolve(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "session expired or invalid")
			return
		}
		ctx := context.WithValue(r.Context(), callerKey, caller)
		ctx = audit.WithActor(ctx, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// callerFrom returns the authenticated user's key. Zero means the handler
// was reached without withAuth, which is a wiring bug; the engine then
// fails the session check.
func callerFrom(ctx context.Context) vault.UserKey {
	if key, ok := ctx.Value(callerKey).(vault.UserKey); ok {
		return key
	}
	return 0
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
