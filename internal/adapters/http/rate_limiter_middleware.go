package http

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/legennd48/bazary/internal/core/ports"
)

// RateLimiterMiddleware throttles requests per client IP using a
// fixed-window counter.
type RateLimiterMiddleware struct {
	repo          ports.RateLimiterRepository
	logger        *slog.Logger
	limit         int
	windowSeconds int
}

func NewRateLimiterMiddleware(repo ports.RateLimiterRepository, logger *slog.Logger, limit, windowSeconds int) *RateLimiterMiddleware {
	return &RateLimiterMiddleware{
		repo:          repo,
		logger:        logger,
		limit:         limit,
		windowSeconds: windowSeconds,
	}
}

func (m *RateLimiterMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			m.logger.Error("failed to extract client IP", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		allowed, err := m.repo.IsAllowed(r.Context(), "ratelimit:"+ip, m.limit, m.windowSeconds)
		if err != nil {
			// Fail open: a broken limiter must not take the whole API down.
			m.logger.Error("rate limit check failed", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		if !allowed {
			writeJSONError(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
