package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/bastionsec/bastion/internal/models"
	pkghttp "github.com/bastionsec/bastion/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

// ClaimsContextKey is the key for storing operator claims in context
const ClaimsContextKey contextKey = "claims"

// Middleware validates operator JWTs and injects claims into the request
// context
func Middleware(tm *TokenManager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := claimsFromRequest(tm, r)
			if claims == nil {
				pkghttp.WriteUnauthorized(w, "missing or invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin enforces the admin role. Must run after Middleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := GetClaims(r)
		if claims == nil {
			pkghttp.WriteUnauthorized(w, "unauthorized")
			return
		}
		if claims.Role != models.RoleAdmin {
			pkghttp.WriteForbidden(w, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetClaims returns the operator claims from the request context, or nil
func GetClaims(r *http.Request) *models.TokenClaims {
	claims, _ := r.Context().Value(ClaimsContextKey).(*models.TokenClaims)
	return claims
}

// IsAdminRequest reports whether the request carries a valid admin token.
// The firewall uses this for its documented authenticated-administrator
// bypass; it never writes a response.
func IsAdminRequest(tm *TokenManager, r *http.Request) bool {
	claims := claimsFromRequest(tm, r)
	return claims != nil && claims.Role == models.RoleAdmin
}

// AdminGate adapts the token manager to the firewall's bypass check
type AdminGate struct {
	tm *TokenManager
}

// NewAdminGate creates a new AdminGate
func NewAdminGate(tm *TokenManager) *AdminGate {
	return &AdminGate{tm: tm}
}

// IsAdmin reports whether the request carries a valid admin token
func (g *AdminGate) IsAdmin(r *http.Request) bool {
	return IsAdminRequest(g.tm, r)
}

func claimsFromRequest(tm *TokenManager, r *http.Request) *models.TokenClaims {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil
	}

	claims, err := tm.Validate(parts[1])
	if err != nil {
		return nil
	}
	return claims
}
