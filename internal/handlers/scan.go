package handlers

import (
	"errors"
	"net/http"

	"cart-discounts/internal/logger"
	"cart-discounts/internal/models"
	"cart-discounts/internal/services"

	"github.com/sirupsen/logrus"
)

// ErrorCodeExistingCode сообщает клиенту, что у пользователя уже есть действующий код.
const ErrorCodeExistingCode = "existing_code"

// ScanHandler запускает рассылку по запросу администратора.
type ScanHandler struct {
	runner  ScanRunner
	history RunHistory
	log     *logger.Logger
}

// NewScanHandler создаёт обработчик рассылки. history может быть nil, если Redis не подключён.
func NewScanHandler(runner ScanRunner, history RunHistory, log *logger.Logger) *ScanHandler {
	return &ScanHandler{runner: runner, history: history, log: log}
}

type runRequest struct {
	DryRun bool `json:"dry_run"`
	Force  bool `json:"force"`
}

type runResponse struct {
	Summary *models.ScanSummary `json:"summary"`
	Shared  bool                `json:"shared"`
}

// Run выполняет пакетную рассылку синхронно. Параллельные запросы
// с одинаковыми параметрами получают результат одного прогона.
func (h *ScanHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := decodeJSONBody(r, &req, true); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	req.DryRun = req.DryRun || queryBool(r, "dry_run")
	req.Force = req.Force || queryBool(r, "force")

	summary, shared, err := h.runner.RunNow(r.Context(), models.ScanOptions{
		Source: models.TriggerAdminBatch,
		DryRun: req.DryRun,
		Force:  req.Force,
	})
	if err != nil {
		writeServiceError(w, h.log, err, "Discount scan failed")
		return
	}

	writeJSONResponse(w, http.StatusOK, runResponse{Summary: summary, Shared: shared})
}

// SendToUser отправляет код одному пользователю.
// Если у пользователя уже есть действующий код, отвечает 200 с error_code "existing_code".
func (h *ScanHandler) SendToUser(w http.ResponseWriter, r *http.Request) {
	userID, err := int64URLParam(r, "userID")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	var req models.SendToUserRequest
	if err := decodeJSONBody(r, &req, true); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.runner.SendToUser(r.Context(), userID, req)
	if err != nil {
		var existing *services.ExistingCodeError
		if errors.As(err, &existing) {
			writeJSONResponse(w, http.StatusOK, ConfirmationResponse{
				Success:   false,
				ErrorCode: ErrorCodeExistingCode,
				Message:   "User already has a valid discount code. Resend it or force a new one.",
				Data:      existing.Code,
			})
			return
		}
		writeServiceError(w, h.log, err, "Failed to send discount code")
		return
	}

	h.log.WithFields(logrus.Fields{
		"user_id":    userID,
		"outcome":    result.Outcome,
		"email_sent": result.EmailSent,
	}).Info("Admin send to user handled")

	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"result":  result,
	})
}

// LastRun возвращает итог последнего прогона, при ?source= для конкретного источника.
func (h *ScanHandler) LastRun(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, "Run history is not available")
		return
	}

	source := models.TriggerSource(r.URL.Query().Get("source"))
	switch source {
	case "", models.TriggerScheduled, models.TriggerAdminBatch, models.TriggerCommand:
	default:
		writeErrorResponse(w, http.StatusBadRequest, "invalid source")
		return
	}

	summary, err := h.history.LastRun(r.Context(), source)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to load last run")
		return
	}
	writeJSONResponse(w, http.StatusOK, summary)
}
