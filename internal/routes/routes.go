package routes

import (
	"github.com/bastionsec/bastion/internal/auth"
	"github.com/bastionsec/bastion/internal/handlers"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all application routes. The firewall middleware is
// mounted on the parent router; everything registered here sits behind it.
func RegisterRoutes(
	router chi.Router,
	loginHandler *handlers.LoginGuardHandler,
	blockHandler *handlers.BlockHandler,
	whitelistHandler *handlers.WhitelistHandler,
	attemptHandler *handlers.AttemptHandler,
	anomalyHandler *handlers.AnomalyHandler,
	eventHandler *handlers.EventHandler,
	tokenManager *auth.TokenManager,
) {
	// Login guard - called by the host application's login flow
	router.Post("/v1/login/precheck", loginHandler.Precheck)
	router.Post("/v1/login/report", loginHandler.Report)

	// Operator routes - admin JWT required
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(tokenManager))
		r.Use(auth.RequireAdmin)

		r.Get("/v1/blocks", blockHandler.List)
		r.Post("/v1/blocks", blockHandler.Create)
		r.Delete("/v1/blocks/{ip}", blockHandler.Delete)

		r.Get("/v1/whitelist", whitelistHandler.List)
		r.Post("/v1/whitelist", whitelistHandler.Add)
		r.Delete("/v1/whitelist", whitelistHandler.Remove)

		r.Get("/v1/attempts", attemptHandler.List)

		r.Get("/v1/anomalies", anomalyHandler.List)
		r.Get("/v1/anomalies/{id}", anomalyHandler.Get)
		r.Post("/v1/anomalies/{id}/safe", anomalyHandler.MarkSafe)
		r.Post("/v1/anomalies/{id}/block", anomalyHandler.Block)

		r.Get("/v1/firewall/events", eventHandler.ListFirewallEvents)
		r.Get("/v1/audit", eventHandler.ListAuditTrail)
	})
}
