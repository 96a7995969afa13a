// Package middleware gates routes behind a bearer token.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/sridharsr7/personal-task-manager/api"
	"github.com/sridharsr7/personal-task-manager/httpx"
)

// Authenticator resolves a raw bearer token to the user it names.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (api.User, error)
}

// userContextKey is the context key for the authenticated user.
type userContextKey struct{}

// WithUser stores the authenticated user in ctx.
func WithUser(ctx context.Context, user api.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext returns the user stored by Auth.
func UserFromContext(ctx context.Context) (api.User, bool) {
	user, ok := ctx.Value(userContextKey{}).(api.User)
	return user, ok
}

// Auth checks for a valid bearer token and adds the resolved user to the
// request context. A missing token or unknown user answers 401; a bad or
// expired token answers 403. timeout bounds the user lookup; zero means no
// bound.
func Auth(authn Authenticator, timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := lookupContext(r, timeout)
			user, err := authn.Authenticate(ctx, BearerToken(r))
			cancel()
			if err != nil {
				httpx.WriteError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func lookupContext(r *http.Request, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), timeout)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. Any other shape yields "".
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
