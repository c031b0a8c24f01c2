package api

import (
	"github.com/go-chi/chi/v5"
)

// setupWifidogRoutes sets up the WiFiDog firmware-facing routes. Every
// endpoint sits behind the gateway trust filter; denial encoding follows
// the endpoint's wire contract.
func (s *PortalServer) setupWifidogRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(s.gatewayTrust(denyBrowser))
		r.Get("/login", s.HandleWifidogLoginPage)
		r.Post("/login", s.HandleWifidogLogin)
	})

	// Logout authorizes on the session token alone; the portal's logout
	// link does not carry the gateway parameters.
	r.Get("/logout", s.HandleWifidogLogout)
	r.Post("/logout", s.HandleWifidogLogout)

	r.Group(func(r chi.Router) {
		r.Use(s.gatewayTrust(denyAuthWire))
		r.Get("/auth", s.HandleWifidogAuth)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.gatewayTrust(denyPingAck))
		r.Get("/ping", s.HandleWifidogPing)
		r.Post("/ping", s.HandleWifidogPing)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.gatewayTrust(denyBrowser))
		r.Use(s.sessionGate)
		r.Get("/portal", s.HandleWifidogPortal)
	})
}

// setupAPIRoutes sets up API v1 routes
func (s *PortalServer) setupAPIRoutes(r chi.Router) {
	// Health check
	r.Get("/health", s.HandleHealth)
	r.Get("/", s.HandleRoot)

	// Auth routes (public)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.HandleLogin)
		r.Post("/refresh", s.HandleRefresh)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/users/me", s.HandleGetCurrentUser)

		// Users
		r.Route("/users", func(r chi.Router) {
			r.Use(s.adminMiddleware)
			r.Get("/", s.HandleListUsers)
			r.Post("/", s.HandleCreateUser)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.HandleGetUser)
				r.Put("/", s.HandleUpdateUser)
				r.Delete("/", s.HandleDeleteUser)
				r.Get("/usage", s.HandleGetUserUsage)
			})
		})

		// Gateways
		r.Route("/gateways", func(r chi.Router) {
			r.Use(s.adminMiddleware)
			r.Get("/", s.HandleListGateways)
			r.Post("/", s.HandleCreateGateway)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.HandleGetGateway)
				r.Put("/", s.HandleUpdateGateway)
				r.Delete("/", s.HandleDeleteGateway)
			})
		})

		// Policies
		r.Route("/policies", func(r chi.Router) {
			r.Use(s.adminMiddleware)
			r.Get("/", s.HandleListPolicies)
			r.Post("/", s.HandleCreatePolicy)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.HandleGetPolicy)
				r.Put("/", s.HandleUpdatePolicy)
				r.Delete("/", s.HandleDeletePolicy)
			})
		})

		// Sessions
		r.Route("/sessions", func(r chi.Router) {
			r.Use(s.adminMiddleware)
			r.Get("/", s.HandleListSessions)
			r.Delete("/purge", s.HandlePurgeSessions)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.HandleGetSession)
				r.Delete("/", s.HandleTerminateSession)
			})
		})

		// Events
		r.Route("/events", func(r chi.Router) {
			r.Use(s.adminMiddleware)
			r.Get("/", s.HandleListEvents)
		})
	})
}
