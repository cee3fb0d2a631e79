package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey int

// roleContextKey is the request-context key under which the "role"
// claim of a Bearer JWT minted by handleLogin is stashed, for handlers
// that gate mutating operations (write-file, delete-file, set-time) on
// role. Requests authenticated with a plain API key carry no role
// claim and are treated as unrestricted, matching key-holder trust
// assumed elsewhere in this package.
const roleContextKey contextKey = iota

// RoleFromContext returns the role claim attached by APIKeyAuth.Handler
// for a JWT-authenticated request, and false if the request carried no
// role (API-key auth, or auth disabled).
func RoleFromContext(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(roleContextKey).(string)
	return role, ok
}

// APIKeyAuth is a middleware that validates API keys and JWTs for the
// status/control API (C10) mux.HandleFunc routes registered in
// pkg/api/rest/server.go.
type APIKeyAuth struct {
	users     map[string]struct{} // Set of valid keys
	jwtSecret []byte
}

// NewAPIKeyAuth creates a new auth middleware, fed from
// core.Config.Auth (API keys plus, optionally, a JWT signing secret for
// tokens minted by handleLogin).
func NewAPIKeyAuth(users []string, jwtSecret string) *APIKeyAuth {
	uMap := make(map[string]struct{})
	for _, k := range users {
		uMap[k] = struct{}{}
	}
	var secret []byte
	if jwtSecret != "" {
		secret = []byte(jwtSecret)
	}
	return &APIKeyAuth{users: uMap, jwtSecret: secret}
}

// Handler returns the middleware handler.
func (a *APIKeyAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip for the liveness probe, the Prometheus scrape target (C12),
		// and the login endpoint itself — these are the three routes
		// server.go registers outside the /api/v1 subrouter.
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" || r.URL.Path == "/api/v1/login" {
			next.ServeHTTP(w, r)
			return
		}

		// 1. Check Authorization: Bearer <JWT> or <APIKey>
		authHeader := r.Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")

			// Try to parse as JWT if enabled
			if a.jwtSecret != nil {
				token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
					if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
						return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
					}
					return a.jwtSecret, nil
				})

				if err == nil && token.Valid {
					ctx := r.Context()
					if claims, ok := token.Claims.(jwt.MapClaims); ok {
						if role, ok := claims["role"].(string); ok {
							ctx = context.WithValue(ctx, roleContextKey, role)
						}
					}
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			// If not JWT, try as API Key
			if _, ok := a.users[tokenString]; ok {
				next.ServeHTTP(w, r)
				return
			}
		}

		// 2. Check X-API-Key
		apiKey := r.Header.Get("X-API-Key")
		if apiKey != "" {
			if _, ok := a.users[apiKey]; ok {
				next.ServeHTTP(w, r)
				return
			}
		}

		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})
}
