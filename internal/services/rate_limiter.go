package services

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"cart-discounts/internal/config"
	"cart-discounts/internal/logger"
	"cart-discounts/internal/redis"
)

// Области ограничения запросов.
const (
	// ScopePublic - трафик корзины и чтение.
	ScopePublic = "public"
	// ScopeAdmin - операции, запускающие рассылку писем.
	ScopeAdmin = "admin"
)

// RateLimiter ограничивает количество запросов в фиксированном окне на пару (область, клиент).
type RateLimiter struct {
	redis   rateRedis
	log     *logger.Logger
	enabled bool
	limits  map[string]int64
	window  time.Duration
	prefix  string
	now     func() time.Time
}

type rateRedis interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
	GetInt(ctx context.Context, key string) (int64, error)
}

// NewRateLimiter создаёт rate limiter. Без Redis или при выключенной настройке пропускает всё.
func NewRateLimiter(redisClient *redis.Client, log *logger.Logger, cfg *config.RateLimitConfig) *RateLimiter {
	if redisClient == nil || cfg == nil || !cfg.Enabled || cfg.Requests <= 0 || cfg.WindowSeconds <= 0 {
		return &RateLimiter{enabled: false, now: time.Now}
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "ratelimit"
	}

	adminLimit := cfg.AdminRequests
	if adminLimit <= 0 {
		adminLimit = cfg.Requests
	}

	return &RateLimiter{
		redis:   redisClient,
		log:     log,
		enabled: true,
		limits: map[string]int64{
			ScopePublic: int64(cfg.Requests),
			ScopeAdmin:  int64(adminLimit),
		},
		window: time.Duration(cfg.WindowSeconds) * time.Second,
		prefix: prefix,
		now:    time.Now,
	}
}

// Allow засчитывает запрос клиента key в области scope.
// Возвращает признак разрешения, оставшийся лимит и время сброса окна.
func (r *RateLimiter) Allow(ctx context.Context, scope, key string) (allowed bool, remaining int64, resetAt time.Time, err error) {
	limit := r.Limit(scope)
	if !r.enabled {
		return true, limit, r.now().Add(r.window), nil
	}

	redisKey := r.makeKey(scope, key)

	count, err := r.redis.Incr(ctx, redisKey)
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf("rate limiter incr failed: %w", err)
	}

	// первый запрос окна задаёт TTL
	if count == 1 {
		if err := r.redis.Expire(ctx, redisKey, r.window); err != nil {
			r.log.WithError(err).WithField("key", redisKey).Warn("failed to set rate limit ttl")
		}
	}

	ttl, ttlErr := r.redis.TTL(ctx, redisKey)
	if ttlErr != nil || ttl <= 0 {
		ttl = r.window
	}

	remaining = limit - count
	if remaining < 0 {
		remaining = 0
	}

	return count <= limit, remaining, r.now().Add(ttl), nil
}

// Usage возвращает расход окна клиента key в области scope без учёта нового запроса.
func (r *RateLimiter) Usage(ctx context.Context, scope, key string) (used int64, remaining int64, err error) {
	limit := r.Limit(scope)
	if !r.enabled {
		return 0, limit, nil
	}

	count, err := r.redis.GetInt(ctx, r.makeKey(scope, key))
	if err != nil {
		// ключа нет: окно ещё не начато
		return 0, limit, nil
	}

	remaining = limit - count
	if remaining < 0 {
		remaining = 0
	}
	return count, remaining, nil
}

func (r *RateLimiter) makeKey(scope, key string) string {
	safeKey := strings.ReplaceAll(key, ":", "_")
	return fmt.Sprintf("%s:%s:%s", r.prefix, scope, safeKey)
}

// Limit возвращает лимит окна для области. Неизвестная область получает публичный лимит.
func (r *RateLimiter) Limit(scope string) int64 {
	if limit, ok := r.limits[scope]; ok {
		return limit
	}
	return r.limits[ScopePublic]
}

// Enabled сообщает, включён ли rate limiting.
func (r *RateLimiter) Enabled() bool {
	return r.enabled
}

// ExtractClientIP получает IP из заголовков/RemoteAddr.
func ExtractClientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); ip != "" {
		parts := strings.Split(ip, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
