package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/manorfm/mcpauth/docs"
	"github.com/manorfm/mcpauth/internal/application"
	"github.com/manorfm/mcpauth/internal/domain"
	"github.com/manorfm/mcpauth/internal/infrastructure/config"
	"github.com/manorfm/mcpauth/internal/infrastructure/metrics"
	"github.com/manorfm/mcpauth/internal/infrastructure/repository"
	"github.com/manorfm/mcpauth/internal/interfaces/http/handlers"
	"github.com/manorfm/mcpauth/internal/interfaces/http/middleware/auth"
	"github.com/manorfm/mcpauth/internal/interfaces/http/middleware/ratelimit"
	"github.com/manorfm/mcpauth/internal/resource"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	visitorTTL          = 3 * time.Minute
	resourceMetadataURI = "/.well-known/oauth-protected-resource"
	serverName          = "mcpauth"
	serverVersion       = "1.0.0"
)

type Router struct {
	router *chi.Mux
}

// NewRouter builds the authorization server. ctx bounds background work
// such as rate limiter cleanup.
func NewRouter(
	ctx context.Context,
	repos *repository.Repositories,
	credentials domain.CredentialStore,
	recorder *metrics.Recorder,
	cfg *config.Config,
	logger *zap.Logger,
	opts ...application.Option,
) *Router {
	opts = append([]application.Option{application.WithMetrics(recorder)}, opts...)

	authService := application.NewAuthService(credentials, repos.Sessions, repos.Tokens, cfg, logger, opts...)
	clientService := application.NewClientService(repos.Clients, logger, opts...)
	oauth2Service := application.NewOAuth2Service(repos.Clients, repos.Sessions, repos.Codes, repos.Tokens, credentials, cfg, logger, opts...)

	authHandler := handlers.NewAuthHandler(authService, logger)
	oauth2Handler := handlers.NewOAuth2Handler(oauth2Service, clientService, logger)

	router := createRouter(recorder)

	rateLimiter := ratelimit.NewRateLimiter(ctx, rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst, visitorTTL)

	healthRoutes(router, func(ctx context.Context) error {
		if err := repos.Ping(ctx); err != nil {
			logger.Error("Store health check failed", zap.Error(err))
			return err
		}
		return nil
	})
	router.Handle("/metrics", recorder.Handler())

	router.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.DocExpansion("list"),
		httpSwagger.DomID("swagger-ui"),
		httpSwagger.DeepLinking(true),
	))
	router.Get("/swagger/doc.json", func(w http.ResponseWriter, r *http.Request) {
		doc, err := swag.ReadDoc()
		if err != nil {
			logger.Error("Failed to read API docs", zap.Error(err))
			http.Error(w, "docs unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(doc))
	})

	// Resource servers introspect every request from one address
	router.Post("/token/introspect", oauth2Handler.IntrospectHandler)

	router.Group(func(r chi.Router) {
		r.Use(rateLimiter.Middleware)

		r.Get("/.well-known/oauth-authorization-server", oauth2Handler.MetadataHandler)
		r.Post("/register", oauth2Handler.RegisterHandler)
		r.Post("/auth/login", authHandler.LoginHandler)
		r.Get("/auth/authorize", oauth2Handler.AuthorizeHandler)
		r.Post("/auth/token", oauth2Handler.TokenHandler)
		r.Post("/token/revoke", oauth2Handler.RevokeHandler)
	})

	return &Router{router: router}
}

// NewResourceRouter builds the protected resource server: the tools over
// plain HTTP and over MCP, both gated by verifier
func NewResourceRouter(
	ctx context.Context,
	verifier domain.TokenVerifier,
	recorder *metrics.Recorder,
	cfg *config.Config,
	logger *zap.Logger,
) (*Router, error) {
	dispatcher := resource.NewDispatcher(verifier, recorder, logger)
	if err := resource.RegisterDefaultTools(dispatcher, cfg.RequiredScopes); err != nil {
		return nil, err
	}

	authMiddleware := auth.NewAuthMiddleware(verifier, cfg.ResourceURL+resourceMetadataURI, logger)
	resourceHandler := handlers.NewResourceHandler(dispatcher, authMiddleware, handlers.ProtectedResourceMetadata{
		Resource:               cfg.ResourceURL,
		AuthorizationServers:   []string{cfg.IssuerURL},
		ScopesSupported:        cfg.RequiredScopes,
		BearerMethodsSupported: []string{"header"},
	}, logger)
	mcpHandler := resource.NewMCPHandler(dispatcher, serverName, serverVersion)

	router := createRouter(recorder)

	rateLimiter := ratelimit.NewRateLimiter(ctx, rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst, visitorTTL)

	healthRoutes(router, nil)
	router.Handle("/metrics", recorder.Handler())

	router.Group(func(r chi.Router) {
		r.Use(rateLimiter.Middleware)

		r.Get(resourceMetadataURI, resourceHandler.MetadataHandler)
		r.Post("/tools/{name}", resourceHandler.CallToolHandler)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticator, authMiddleware.RequireScopes(cfg.RequiredScopes...))
			r.Handle("/mcp", mcpHandler)
		})
	})

	return &Router{router: router}, nil
}

func createRouter(recorder *metrics.Recorder) *chi.Mux {
	router := chi.NewRouter()

	// Add middleware
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Timeout(60 * time.Second))
	router.Use(recorder.Middleware)

	return router
}

// healthRoutes mounts the liveness and readiness checks. ready may be nil.
func healthRoutes(router chi.Router, ready func(context.Context) error) {
	router.Group(func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})

		r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
			if ready != nil {
				if err := ready(r.Context()); err != nil {
					w.WriteHeader(http.StatusServiceUnavailable)
					w.Write([]byte("Store connection failed"))
					return
				}
			}
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("Ready"))
		})

		r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("Alive"))
		})
	})
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.router.ServeHTTP(w, req)
}
