package handlers

import (
	"net/http"

	"cart-discounts/internal/logger"
	"cart-discounts/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterDeps собирает обработчики для маршрутизатора.
type RouterDeps struct {
	Health         *HealthHandler
	RateLimit      *RateLimitHandler
	Limiter        MiddlewareLimiter
	Configs        *DiscountConfigHandler
	Carts          *CartHandler
	Codes          *DiscountCodeHandler
	Scan           *ScanHandler
	Scheduler      *SchedulerHandler
	Notification   *NotificationHandler
	MetricsPath    string
	MetricsHandler http.Handler
	AllowedOrigins []string
	Log            *logger.Logger
}

// NewRouter строит HTTP маршруты сервиса.
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)

	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", d.Health.Health)
	r.Get("/health/readiness", d.Health.Readiness)
	r.Get("/health/liveness", d.Health.Liveness)
	if d.MetricsHandler != nil {
		path := d.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, d.MetricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		api.Get("/rate-limit/status", d.RateLimit.Status)

		api.Group(func(pub chi.Router) {
			pub.Use(RateLimitMiddleware(d.Limiter, services.ScopePublic, d.Log))

			pub.Route("/cart/{userID}/items", func(cr chi.Router) {
				cr.Get("/", d.Carts.List)
				cr.Put("/{productID}", d.Carts.Touch)
				cr.Delete("/{productID}", d.Carts.Remove)
			})
			pub.Get("/discount-codes/{code}", d.Codes.Get)
			pub.Post("/discount-codes/{code}/redeem", d.Codes.Redeem)
		})

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(RateLimitMiddleware(d.Limiter, services.ScopeAdmin, d.Log))

			admin.Route("/discount-configurations", func(cr chi.Router) {
				cr.Get("/", d.Configs.List)
				cr.Post("/", d.Configs.Create)
				cr.Get("/active", d.Configs.GetActive)
				cr.Get("/{id}", d.Configs.Get)
				cr.Put("/{id}", d.Configs.Update)
				cr.Delete("/{id}", d.Configs.Delete)
				cr.Post("/{id}/activate", d.Configs.Activate)
			})

			admin.Route("/discount-codes", func(cr chi.Router) {
				cr.Get("/", d.Codes.List)
				cr.Post("/", d.Codes.Issue)
				cr.Get("/stats", d.Codes.Stats)
			})

			admin.Post("/scan/run", d.Scan.Run)
			admin.Get("/scan/last-run", d.Scan.LastRun)
			admin.Post("/users/{userID}/send-discount", d.Scan.SendToUser)

			admin.Route("/scheduler", func(sr chi.Router) {
				sr.Get("/", d.Scheduler.Status)
				sr.Post("/start", d.Scheduler.Start)
				sr.Post("/stop", d.Scheduler.Stop)
				sr.Post("/restart", d.Scheduler.Restart)
			})

			admin.Get("/notification/check", d.Notification.Check)
		})
	})

	return r
}
