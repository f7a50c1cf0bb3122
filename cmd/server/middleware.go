package main

import (
	"net/http"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/embedworks/embedgate/internal/api"
	"github.com/embedworks/embedgate/internal/config"
	"github.com/embedworks/embedgate/internal/metrics"
	"github.com/embedworks/embedgate/internal/observability"
	svcerrors "github.com/embedworks/embedgate/pkg/errors"
)

// buildMiddlewareStack wraps the mux with, outermost first: request ID
// propagation, rate limiting, and metrics collection.
func buildMiddlewareStack(cfg *config.Config, next http.Handler) http.Handler {
	handler := metrics.Middleware(next)
	if cfg.RateLimit.Enabled {
		handler = rateLimitMiddleware(cfg.RateLimit, handler)
	}
	return observability.RequestIDMiddleware(handler)
}

// rateLimitMiddleware applies a process-wide token bucket. Encoding is
// CPU-bound, so a global limit protects the host rather than any tenant.
func rateLimitMiddleware(cfg config.RateLimitConfig, next http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(api.ErrorResponse{
				Error: api.ErrorDetail{
					Message: "rate limit exceeded, retry shortly",
					Type:    svcerrors.TypeServiceBusy,
				},
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
