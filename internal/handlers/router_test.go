package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cart-discounts/internal/config"
	"cart-discounts/internal/models"
	"cart-discounts/internal/services"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func newTestRouter(limiter MiddlewareLimiter, carts *stubCartService, sched *stubScheduler) http.Handler {
	log := newTestLogger()
	configs := &stubConfigService{active: &models.DiscountConfiguration{ID: 1, InactivityDays: 3, DiscountPercent: 10, Active: true}}
	return NewRouter(RouterDeps{
		Health:         NewHealthHandler(&stubDB{}, &stubRedisHealth{}, nil, func([]string) error { return nil }),
		RateLimit:      NewRateLimitHandler(nil, log, &config.RateLimitConfig{}),
		Limiter:        limiter,
		Configs:        NewDiscountConfigHandler(configs, sched, log),
		Carts:          NewCartHandler(carts, log),
		Codes:          NewDiscountCodeHandler(&stubCodeService{}, configs, log, 0),
		Scan:           NewScanHandler(&stubScanRunner{summary: &models.ScanSummary{}}, nil, log),
		Scheduler:      NewSchedulerHandler(sched, log),
		Notification:   NewNotificationHandler(&config.NotificationConfig{Provider: "log", StoreName: "Tienda"}),
		MetricsHandler: promhttp.Handler(),
		Log:            log,
	})
}

func TestRouter_Routes(t *testing.T) {
	carts := &stubCartService{}
	router := newTestRouter(nil, carts, &stubScheduler{startOK: true})

	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/health/liveness", "", http.StatusOK},
		{http.MethodGet, "/metrics", "", http.StatusOK},
		{http.MethodGet, "/api/rate-limit/status", "", http.StatusOK},
		{http.MethodPut, "/api/cart/3/items/8", "", http.StatusOK},
		{http.MethodDelete, "/api/cart/3/items/8", "", http.StatusNoContent},
		{http.MethodGet, "/api/admin/discount-configurations/active", "", http.StatusOK},
		{http.MethodPost, "/api/admin/scheduler/start", "", http.StatusOK},
		{http.MethodGet, "/api/admin/scheduler", "", http.StatusOK},
		{http.MethodPost, "/api/admin/scan/run", `{"dry_run":true}`, http.StatusOK},
		{http.MethodGet, "/api/admin/notification/check", "", http.StatusOK},
		{http.MethodGet, "/api/unknown", "", http.StatusNotFound},
		{http.MethodPatch, "/api/admin/scan/run", "", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(tt.method, tt.path, bytes.NewBufferString(tt.body)))
			if rr.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rr.Code, rr.Body.String())
			}
		})
	}

	if len(carts.touched) != 1 || carts.touched[0] != [2]int64{3, 8} {
		t.Fatalf("route params not passed to cart handler: %v", carts.touched)
	}
}

func TestRouter_AdminRoutesUseAdminScope(t *testing.T) {
	limiter := &stubLimiter{allowSeq: []bool{true, true}, limit: 10}
	router := newTestRouter(limiter, &stubCartService{}, &stubScheduler{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/admin/scheduler", nil))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/cart/1/items", nil))

	if strings.Join(limiter.scopes, ",") != services.ScopeAdmin+","+services.ScopePublic {
		t.Fatalf("unexpected scopes %v", limiter.scopes)
	}
}
