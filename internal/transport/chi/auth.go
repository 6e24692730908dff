package chi

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const identityKey contextKey = "caller-identity"

// AnonymousIdentity is used when authentication is disabled and the caller
// sends no identity header.
const AnonymousIdentity = "anonymous"

// exemptPaths bypass authentication (health, metrics).
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// IdentityFromContext returns the authenticated caller identity.
func IdentityFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(identityKey).(string); ok && id != "" {
		return id
	}
	return AnonymousIdentity
}

// BearerAuthMiddleware validates Bearer tokens and stores the caller identity
// in the request context. apiKeys maps token to identity; the identity
// partitions the result cache, so two tenants never see each other's cached
// results. An empty map disables auth; the X-Caller-Id header then names the
// caller for local development.
func BearerAuthMiddleware(apiKeys map[string]string) func(http.Handler) http.Handler {
	validKeys := make(map[string]string, len(apiKeys))
	for token, identity := range apiKeys {
		if token != "" && identity != "" {
			validKeys[token] = identity
		}
	}

	return func(next http.Handler) http.Handler {
		if len(validKeys) == 0 {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				identity := r.Header.Get("X-Caller-Id")
				if identity == "" {
					identity = AnonymousIdentity
				}
				next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
			})
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "missing authorization header")
				return
			}

			const bearerPrefix = "Bearer "
			if !strings.HasPrefix(auth, bearerPrefix) {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "authorization header must use Bearer scheme")
				return
			}

			identity, ok := validKeys[auth[len(bearerPrefix):]]
			if !ok {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "invalid api key")
				return
			}

			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
		})
	}
}

func withIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}
