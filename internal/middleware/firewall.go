package middleware

import (
	"net/http"

	"github.com/bastionsec/bastion/internal/services"
)

// Firewall returns a middleware that screens every request through the
// firewall service before the router sees it. Blocked requests get the fixed
// 403 page and never reach the next handler.
func Firewall(fw *services.FirewallService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if fw.Screen(w, r) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
