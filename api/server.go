/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address behind a proxy
  3. Logger:     One zerolog line per request
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the comparison frontend

ROUTE GROUPS:
  /api/calculate, /api/operators, /api/capacity, /api/tariffs, /api/contracts
  /api/quotes/*       Frozen quotes
  /api/scenarios/*    Demo scenarios
  /api/admin/*        Reprice, cache and tariff reload (JWT, role admin)
  /health, /metrics

SECURITY NOTE:
  Calculation and quote endpoints are public. Admin routes need a bearer
  token signed with auth.jwt_secret; without a secret they are not mounted.

SEE ALSO:
  - handlers.go: Handler implementations
  - auth/jwt.go: Admin token validation
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/warp/energy-engine/auth"
)

// RouterConfig holds the settings NewRouter needs besides the handler.
type RouterConfig struct {
	AllowedOrigins []string
	JWTSecret      string
	// Metrics serves /metrics when set (promhttp.Handler in the server).
	Metrics http.Handler
	Logger  zerolog.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition", "Location"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Post("/calculate", h.Calculate)
		r.Get("/operators", h.LookupOperator)
		r.Get("/capacity/estimate", h.EstimateCapacity)
		r.Get("/contracts", h.ListContracts)

		r.Route("/tariffs/tax", func(r chi.Router) {
			r.Get("/", h.ListTaxYears)
			r.Get("/{year}", h.GetTaxTable)
		})

		// Quote routes
		r.Route("/quotes", func(r chi.Router) {
			r.Get("/", h.ListQuotes)
			r.Post("/", h.FreezeQuote)
			r.Get("/by-reference/{ref}", h.GetQuoteByReference)
			r.Get("/{id}", h.GetQuote)
			r.Get("/{id}/verify", h.VerifyQuote)
			r.Get("/{id}/export", h.ExportQuote)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/{id}/calculate", h.CalculateScenario)
		})

		// Admin routes
		if cfg.JWTSecret != "" {
			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireRole([]byte(cfg.JWTSecret), auth.RoleAdmin, writeAuthError))
				r.Post("/quotes/{id}/reprice", h.RepriceQuote)
				r.Post("/cache/invalidate", h.InvalidateCache)
				r.Post("/tariffs/reload", h.ReloadTariffs)
			})
		}
	})

	return r
}

// requestLogger logs one line per request with zerolog.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				ev := log.Info()
				if status >= http.StatusInternalServerError {
					ev = log.Error()
				}
				ev.Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", status).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Str("request_id", middleware.GetReqID(r.Context())).
					Msg("http request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
