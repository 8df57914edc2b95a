package handler

import (
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/cartel-codes/theme-nv-sub002/internal/adapter/telemetry"
	"github.com/cartel-codes/theme-nv-sub002/internal/port"
)

type RouterConfig struct {
	Limiter port.RateLimiter
	Metrics *telemetry.Metrics
	Logger  *zap.Logger
}

func NewRouter(h *HTTPHandler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Get("/health", h.HealthCheck)

	r.Route("/api/inventory", func(r chi.Router) {
		r.With(RateLimit(cfg.Limiter, "availability", cfg.Logger)).Post("/availability", h.CheckAvailability)
		r.Get("/{productId}", h.GetStock)
		r.Put("/{productId}", h.SetStock)
	})

	r.Route("/api/orders", func(r chi.Router) {
		r.Post("/", h.CreateOrder)
		r.Get("/{orderId}", h.GetOrder)
		r.Post("/{orderId}/decrement", h.DecrementStock)
	})

	return r
}

// RateLimit rejects requests with 429 once the client exceeds the limiter's
// budget for scope. A nil limiter disables the check. Limiter errors are
// logged and the request is let through.
func RateLimit(limiter port.RateLimiter, scope string, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := scope + ":" + clientIP(r)
			ok, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				writeJSON(w, http.StatusTooManyRequests, StatusHTTPResponse{
					Success: false,
					Message: "too many requests",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
