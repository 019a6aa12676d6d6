package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"cart-discounts/internal/config"
	"cart-discounts/internal/logger"
	"cart-discounts/internal/services"

	"github.com/sirupsen/logrus"
)

// MiddlewareLimiter описывает контракт для rate limiter.
type MiddlewareLimiter interface {
	Allow(ctx context.Context, scope, key string) (bool, int64, time.Time, error)
	Enabled() bool
	Limit(scope string) int64
}

// RateLimitStatusProvider расширяет интерфейс для эндпоинта статуса.
type RateLimitStatusProvider interface {
	MiddlewareLimiter
	Usage(ctx context.Context, scope, key string) (int64, int64, error)
}

// RateLimitHandler отдаёт состояние лимитов клиента.
type RateLimitHandler struct {
	limiter RateLimitStatusProvider
	log     *logger.Logger
	cfg     *config.RateLimitConfig
}

// NewRateLimitHandler создает новый RateLimitHandler.
func NewRateLimitHandler(limiter RateLimitStatusProvider, log *logger.Logger, cfg *config.RateLimitConfig) *RateLimitHandler {
	return &RateLimitHandler{
		limiter: limiter,
		log:     log,
		cfg:     cfg,
	}
}

type scopeUsage struct {
	Limit     int64 `json:"limit"`
	Used      int64 `json:"used"`
	Remaining int64 `json:"remaining"`
}

// Status возвращает расход лимитов клиента по всем областям.
func (h *RateLimitHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if h.limiter == nil || h.cfg == nil || !h.cfg.Enabled || !h.limiter.Enabled() {
		writeJSONResponse(w, http.StatusOK, map[string]interface{}{
			"enabled": false,
		})
		return
	}

	key := services.ExtractClientIP(r)
	scopes := make(map[string]scopeUsage, 2)
	for _, scope := range []string{services.ScopePublic, services.ScopeAdmin} {
		used, remaining, err := h.limiter.Usage(r.Context(), scope, key)
		if err != nil {
			h.log.WithError(err).WithField("scope", scope).Error("Failed to fetch rate limit usage")
			writeErrorResponse(w, http.StatusInternalServerError, "Failed to fetch rate limit usage")
			return
		}
		scopes[scope] = scopeUsage{Limit: h.limiter.Limit(scope), Used: used, Remaining: remaining}
	}

	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"enabled":        true,
		"window_seconds": h.cfg.WindowSeconds,
		"key":            key,
		"scopes":         scopes,
	})
}

// RateLimitMiddleware ограничивает запросы клиента в области scope.
func RateLimitMiddleware(limiter MiddlewareLimiter, scope string, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || !limiter.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			key := services.ExtractClientIP(r)
			allowed, remaining, resetAt, err := limiter.Allow(r.Context(), scope, key)
			if err != nil {
				log.WithError(err).WithField("scope", scope).Error("Rate limiter failed")
				writeErrorResponse(w, http.StatusInternalServerError, "Rate limiter error")
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(limiter.Limit(scope), 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			if !resetAt.IsZero() {
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
			}

			if !allowed {
				log.WithFields(logrus.Fields{"scope": scope, "client": key}).Warn("Rate limit exceeded")
				writeErrorResponse(w, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
