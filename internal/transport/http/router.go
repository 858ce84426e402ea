package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"p4portal/internal/auth"
	"p4portal/internal/config"
	custommw "p4portal/internal/middleware"
)

// RouterDeps collects everything the router wires together.
type RouterDeps struct {
	Licenses *LicenseHandler
	Tenants  *TenantHandler
	Auth     *AuthHandler
	Health   *HealthHandler

	Tokens  *auth.TokenService
	Logger  *slog.Logger
	Metrics http.Handler

	Security config.SecurityConfig
}

// NewRouter builds the portal's HTTP router. Health, metrics and the token
// exchange stay open; everything under /api requires a session token when a
// token service is configured.
func NewRouter(deps RouterDeps) chi.Router {
	r := chi.NewRouter()

	r.Use(custommw.RequestID)
	r.Use(custommw.RealIP)
	r.Use(custommw.StructuredLogger(deps.Logger))
	r.Use(custommw.Recoverer(deps.Logger))
	r.Use(custommw.SecurityHeaders)
	r.Use(custommw.StripSlashes)
	r.Use(custommw.Compress(5))

	if deps.Security.EnableCORS {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   deps.Security.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	if deps.Security.RateLimit.Enabled {
		rl := custommw.NewRateLimiter(deps.Security.RateLimit.RPS, deps.Security.RateLimit.Burst, deps.Logger)
		r.Use(rl.Handler)
	}

	if deps.Health != nil {
		r.Mount("/healthz", deps.Health.Routes())
	}
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}
	if deps.Auth != nil {
		r.Mount("/api/auth", deps.Auth.Routes())
	}

	r.Group(func(r chi.Router) {
		if deps.Tokens != nil {
			r.Use(auth.Middleware(deps.Tokens))
		}
		r.Mount("/api/licenses", deps.Licenses.Routes())
		r.Mount("/api/partners", deps.Tenants.PartnerRoutes())
		r.Mount("/api/tenants", deps.Tenants.TenantRoutes())
	})

	return r
}
