package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"restaurant-api/internal/config"
	"restaurant-api/internal/ratelimit"
	"restaurant-api/internal/util"
)

// HealthFunc reports unhealthy components by name.
type HealthFunc func(ctx context.Context) map[string]error

type RouterDeps struct {
	Auth    *AuthHandler
	Offers  *OfferHandler
	Tokens  TokenParser
	Limiter ratelimit.Limiter
	Health  HealthFunc
}

func NewRouter(cfg *config.Config, deps RouterDeps, logger *zap.Logger) chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggerMiddleware(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/health", healthHandler(deps.Health, logger))

	rl := cfg.RateLimit
	router.Route("/api", func(r chi.Router) {
		if rl.Enabled {
			r.Use(RateLimit(deps.Limiter, "general", rl.GeneralRequests, rl.GeneralWindow, ClientIP, logger))
		}

		r.Group(func(r chi.Router) {
			if rl.Enabled {
				r.Use(RateLimit(deps.Limiter, "phone", rl.PhoneRequests, rl.PhoneWindow, ClientIPAndPhone, logger))
			}
			r.Post("/verify-phone", deps.Auth.VerifyPhone)
		})
		r.Post("/refresh-token", deps.Auth.RefreshToken)
		r.With(RequireAuth(deps.Tokens, logger)).Get("/session", deps.Auth.Session)

		r.Route("/offers", func(r chi.Router) {
			r.Use(APIKey(cfg.Auth.APIKey, cfg.Auth.AdminAPIKey, logger))
			r.Get("/all/available", deps.Offers.AllOffers)

			r.Group(func(r chi.Router) {
				r.Use(OptionalAuth(deps.Tokens))
				r.Get("/{phone}", deps.Offers.CustomerOffers)
				r.Post("/apply/{offerID}", deps.Offers.ApplyOffer)
			})
		})
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"success":false,"error":"endpoint not found"}`))
	})

	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		w.Write([]byte(`{"success":false,"error":"method not allowed"}`))
	})

	return router
}

func healthHandler(check HealthFunc, logger *zap.Logger) http.HandlerFunc {
	h := responder{logger: logger}
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]interface{}{
			"status":  "healthy",
			"service": "restaurant-api",
		}

		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()

			if failures := check(ctx); len(failures) > 0 {
				components := make(map[string]string, len(failures))
				for name, err := range failures {
					components[name] = err.Error()
				}
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
				body["components"] = components
			}
		}
		h.respondWithJSON(w, status, body)
	}
}

// LoggerMiddleware logs one line per request.
func LoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				// The route pattern keeps phone numbers in paths out of the logs.
				route := "unmatched"
				if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
					route = rctx.RoutePattern()
				}
				logger.Info("HTTP request",
					util.String("request_id", middleware.GetReqID(r.Context())),
					util.String("method", r.Method),
					util.String("route", route),
					util.String("remote_addr", r.RemoteAddr),
					util.Int("status", ww.Status()),
					util.Duration("duration", time.Since(start)),
					util.String("user_agent", r.UserAgent()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
