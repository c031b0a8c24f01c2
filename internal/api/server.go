package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/kosthub/wifi-portal/internal/auth"
	"github.com/kosthub/wifi-portal/internal/cache"
	"github.com/kosthub/wifi-portal/internal/config"
	"github.com/kosthub/wifi-portal/internal/events"
	"github.com/kosthub/wifi-portal/internal/models"
	"github.com/kosthub/wifi-portal/internal/quota"
	"github.com/kosthub/wifi-portal/internal/storage"
	"github.com/kosthub/wifi-portal/internal/validation"
)

type contextKey string

const (
	ctxKeyClaims  contextKey = "claims"
	ctxKeyGateway contextKey = "gateway"
	ctxKeySession contextKey = "session"
)

// PortalServer serves both surfaces of the portal: the WiFiDog protocol
// endpoints under /wifidog and the admin REST API under /api/v1.
type PortalServer struct {
	config    *config.Config
	store     storage.Store
	cache     *cache.Cache
	events    *events.Publisher
	quota     *quota.Evaluator
	auth      *auth.JWTManager
	validator *validation.Validator
	router    chi.Router
	server    *http.Server
}

// NewPortalServer creates a new portal server
func NewPortalServer(cfg *config.Config, store storage.Store, c *cache.Cache, pub *events.Publisher, evaluator *quota.Evaluator) *PortalServer {
	s := &PortalServer{
		config:    cfg,
		store:     store,
		cache:     c,
		events:    pub,
		quota:     evaluator,
		auth:      auth.NewJWTManager(&cfg.JWT, store),
		validator: validation.NewValidator(),
		router:    chi.NewRouter(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Router exposes the handler for tests.
func (s *PortalServer) Router() http.Handler {
	return s.router
}

// setupRoutes configures all routes
func (s *PortalServer) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS applies to the admin API; the firmware never sends preflights.
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// WiFiDog protocol routes
	s.router.Route("/wifidog", func(r chi.Router) {
		s.setupWifidogRoutes(r)
	})

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		s.setupAPIRoutes(r)
	})
}

// ListenAndServe starts the server
func (s *PortalServer) ListenAndServe(addr string) error {
	s.server.Addr = addr
	log.Info().Str("addr", addr).Msg("Starting portal server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *PortalServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// authMiddleware is the authentication middleware for the admin API
func (s *PortalServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.respondError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			s.respondError(w, http.StatusUnauthorized, "invalid authorization header")
			return
		}

		claims, err := s.auth.ValidateToken(parts[1])
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyClaims, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// adminMiddleware restricts a route to admin users. Must run after
// authMiddleware.
func (s *PortalServer) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := r.Context().Value(ctxKeyClaims).(*auth.Claims)
		if !ok || !claims.IsAdmin {
			s.respondError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// gatewayFromContext returns the trusted gateway set by the trust filter,
// or nil when the request passed through without one.
func gatewayFromContext(ctx context.Context) *models.WifiGateway {
	gw, _ := ctx.Value(ctxKeyGateway).(*models.WifiGateway)
	return gw
}

// sessionFromContext returns the session resolved by the session gate.
func sessionFromContext(ctx context.Context) *models.WifiSession {
	session, _ := ctx.Value(ctxKeySession).(*models.WifiSession)
	return session
}
