package handlers

import (
	"context"
	"net/http"

	"cart-discounts/internal/config"
	"cart-discounts/internal/logger"

	"github.com/go-chi/chi/v5"
)

func newTestLogger() *logger.Logger {
	return logger.New(&config.LoggerConfig{Level: "error", Format: "json"})
}

// withURLParams кладёт параметры маршрута chi в контекст запроса.
func withURLParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
