package handlers

import (
	"net/http"

	"cart-discounts/internal/config"
	"cart-discounts/internal/notification"
)

// NotificationHandler проверяет настройки отправки писем.
type NotificationHandler struct {
	cfg *config.NotificationConfig
}

// NewNotificationHandler создаёт обработчик проверки настроек.
func NewNotificationHandler(cfg *config.NotificationConfig) *NotificationHandler {
	return &NotificationHandler{cfg: cfg}
}

// Check возвращает отчёт о настройках провайдера писем.
func (h *NotificationHandler) Check(w http.ResponseWriter, r *http.Request) {
	report := notification.Validate(h.cfg)
	status := http.StatusOK
	if !report.Valid {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, report)
}
