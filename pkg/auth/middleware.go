package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/cratehub/crate/pkg/httputil"
	"github.com/cratehub/crate/pkg/observability"
)

type contextKey string

const usernameKey contextKey = "authenticated_username"

// Username returns the authenticated username stored by BasicAuth.
func Username(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(usernameKey).(string)
	return username, ok
}

// BasicAuth wraps a handler with HTTP basic authentication against the
// provider. On success the authenticated username is stored in the request
// context; every failure maps to 401.
func BasicAuth(provider Provider, logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok {
				unauthorized(w, "missing credentials")
				return
			}

			username, err := provider.Authenticate(r.Context(), user, pass)
			if err != nil {
				if !errors.Is(err, ErrInvalidCredentials) {
					logger.WithError(err).WithField("user", user).Warn("identity provider error")
				}
				unauthorized(w, "invalid username or password")
				return
			}

			ctx := context.WithValue(r.Context(), usernameKey, username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Basic realm="crate"`)
	httputil.WriteUnauthorized(w, "unauthorized", message)
}
