package handlers

import (
	"net/http"

	"cart-discounts/internal/logger"
	"cart-discounts/internal/models"

	"github.com/sirupsen/logrus"
)

// DiscountConfigHandler управляет конфигурациями рассылки.
// Любое изменение, затрагивающее активную конфигурацию, перезапускает планировщик.
type DiscountConfigHandler struct {
	configs   ConfigService
	scheduler SchedulerController
	log       *logger.Logger
}

// NewDiscountConfigHandler создаёт обработчик конфигураций.
func NewDiscountConfigHandler(configs ConfigService, scheduler SchedulerController, log *logger.Logger) *DiscountConfigHandler {
	return &DiscountConfigHandler{
		configs:   configs,
		scheduler: scheduler,
		log:       log,
	}
}

type configResponse struct {
	Configuration    *models.DiscountConfiguration `json:"configuration"`
	SchedulerRunning bool                          `json:"scheduler_running"`
}

// List возвращает все конфигурации.
func (h *DiscountConfigHandler) List(w http.ResponseWriter, r *http.Request) {
	configs, err := h.configs.ListConfigurations(r.Context())
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to list discount configurations")
		return
	}
	writeJSONResponse(w, http.StatusOK, configs)
}

// GetActive возвращает активную конфигурацию.
func (h *DiscountConfigHandler) GetActive(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.configs.GetActive(r.Context())
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to get active discount configuration")
		return
	}
	writeJSONResponse(w, http.StatusOK, cfg)
}

// Get возвращает конфигурацию по id.
func (h *DiscountConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := int64URLParam(r, "id")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg, err := h.configs.GetConfiguration(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to get discount configuration")
		return
	}
	writeJSONResponse(w, http.StatusOK, cfg)
}

// Create создаёт конфигурацию.
func (h *DiscountConfigHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	cfg, err := h.configs.CreateConfiguration(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to create discount configuration")
		return
	}

	running := h.scheduler.Status().Running
	if cfg.Active {
		running = h.scheduler.Restart(r.Context())
	}
	h.logChange("created", cfg, running)

	writeJSONResponse(w, http.StatusCreated, configResponse{Configuration: cfg, SchedulerRunning: running})
}

// Update изменяет конфигурацию.
func (h *DiscountConfigHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := int64URLParam(r, "id")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	before, err := h.configs.GetConfiguration(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to update discount configuration")
		return
	}

	cfg, err := h.configs.UpdateConfiguration(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to update discount configuration")
		return
	}

	// планировщик зависит от активности и срока неактивности
	running := h.scheduler.Status().Running
	if before.Active != cfg.Active || before.InactivityDays != cfg.InactivityDays {
		running = h.scheduler.Restart(r.Context())
	}
	h.logChange("updated", cfg, running)

	writeJSONResponse(w, http.StatusOK, configResponse{Configuration: cfg, SchedulerRunning: running})
}

// Activate делает конфигурацию активной, выключая остальные.
func (h *DiscountConfigHandler) Activate(w http.ResponseWriter, r *http.Request) {
	id, err := int64URLParam(r, "id")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg, err := h.configs.SetActive(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to activate discount configuration")
		return
	}

	running := h.scheduler.Restart(r.Context())
	h.logChange("activated", cfg, running)

	writeJSONResponse(w, http.StatusOK, configResponse{Configuration: cfg, SchedulerRunning: running})
}

// Delete удаляет неактивную конфигурацию.
func (h *DiscountConfigHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := int64URLParam(r, "id")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.configs.DeleteConfiguration(r.Context(), id); err != nil {
		writeServiceError(w, h.log, err, "Failed to delete discount configuration")
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "Discount configuration deleted"})
}

func (h *DiscountConfigHandler) decodeRequest(w http.ResponseWriter, r *http.Request) (*models.DiscountConfigurationRequest, bool) {
	var req models.DiscountConfigurationRequest
	if err := decodeJSONBody(r, &req, false); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	if err := validate.Struct(req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, validationMessage(err))
		return nil, false
	}
	return &req, true
}

func (h *DiscountConfigHandler) logChange(action string, cfg *models.DiscountConfiguration, running bool) {
	h.log.WithFields(logrus.Fields{
		"configuration_id":  cfg.ID,
		"active":            cfg.Active,
		"inactivity_days":   cfg.InactivityDays,
		"discount_percent":  cfg.DiscountPercent,
		"scheduler_running": running,
	}).Info("Discount configuration " + action)
}
