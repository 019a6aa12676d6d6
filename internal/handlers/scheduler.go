package handlers

import (
	"net/http"

	"cart-discounts/internal/logger"
)

// SchedulerHandler управляет планировщиком рассылки.
type SchedulerHandler struct {
	scheduler SchedulerController
	log       *logger.Logger
}

// NewSchedulerHandler создаёт обработчик планировщика.
func NewSchedulerHandler(scheduler SchedulerController, log *logger.Logger) *SchedulerHandler {
	return &SchedulerHandler{scheduler: scheduler, log: log}
}

// Status возвращает состояние планировщика.
func (h *SchedulerHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, h.scheduler.Status())
}

// Start запускает планировщик. Без активной конфигурации отвечает 409.
func (h *SchedulerHandler) Start(w http.ResponseWriter, r *http.Request) {
	if !h.scheduler.Start(r.Context()) {
		writeErrorResponse(w, http.StatusConflict, "Scheduler not started: no active discount configuration")
		return
	}
	writeJSONResponse(w, http.StatusOK, h.scheduler.Status())
}

// Stop останавливает планировщик. Повторная остановка отвечает 200 с was_running=false.
func (h *SchedulerHandler) Stop(w http.ResponseWriter, r *http.Request) {
	wasRunning := h.scheduler.Stop()
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"was_running": wasRunning,
		"status":      h.scheduler.Status(),
	})
}

// Restart перезапускает планировщик с текущей конфигурацией.
func (h *SchedulerHandler) Restart(w http.ResponseWriter, r *http.Request) {
	running := h.scheduler.Restart(r.Context())
	h.log.WithField("running", running).Info("Scheduler restarted by admin")
	writeJSONResponse(w, http.StatusOK, h.scheduler.Status())
}
