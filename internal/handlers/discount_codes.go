package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"cart-discounts/internal/apperror"
	"cart-discounts/internal/logger"
	"cart-discounts/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// DiscountCodeHandler обслуживает выпущенные коды.
type DiscountCodeHandler struct {
	codes        CodeService
	configs      ConfigService
	log          *logger.Logger
	manualExpiry time.Duration
	now          func() time.Time
}

// NewDiscountCodeHandler создаёт обработчик кодов. manualExpiry задаёт срок
// действия кодов, выпущенных вручную.
func NewDiscountCodeHandler(codes CodeService, configs ConfigService, log *logger.Logger, manualExpiry time.Duration) *DiscountCodeHandler {
	return &DiscountCodeHandler{
		codes:        codes,
		configs:      configs,
		log:          log,
		manualExpiry: manualExpiry,
		now:          time.Now,
	}
}

// List возвращает коды, при user_id только коды пользователя.
func (h *DiscountCodeHandler) List(w http.ResponseWriter, r *http.Request) {
	var userID int64
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v <= 0 {
			writeErrorResponse(w, http.StatusBadRequest, "invalid user_id")
			return
		}
		userID = v
	}
	limit, offset := pagination(r)

	codes, err := h.codes.ListCodes(r.Context(), userID, limit, offset)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to list discount codes")
		return
	}
	if codes == nil {
		codes = []*models.DiscountCode{}
	}
	writeJSONResponse(w, http.StatusOK, codes)
}

// Get возвращает код по значению.
func (h *DiscountCodeHandler) Get(w http.ResponseWriter, r *http.Request) {
	code, ok := codeParam(w, r)
	if !ok {
		return
	}

	dc, err := h.codes.GetByCode(r.Context(), code)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to get discount code")
		return
	}
	writeJSONResponse(w, http.StatusOK, dc)
}

// Issue вручную выпускает код пользователю, если у него нет действующего.
func (h *DiscountCodeHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req models.IssueDiscountCodeRequest
	if err := decodeJSONBody(r, &req, false); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	percent, err := h.resolvePercent(r, req.Percent)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to issue discount code")
		return
	}

	var expiresAt *time.Time
	if h.manualExpiry > 0 {
		t := h.now().Add(h.manualExpiry)
		expiresAt = &t
	}

	code, err := h.codes.IssueIfNoneVigente(r.Context(), req.UserID, percent, expiresAt)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to issue discount code")
		return
	}

	h.log.WithFields(logrus.Fields{
		"user_id": code.UserID,
		"code":    code.Code,
		"percent": code.Percent,
	}).Info("Discount code issued manually")

	writeJSONResponse(w, http.StatusCreated, code)
}

// Redeem отмечает код использованным.
func (h *DiscountCodeHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	code, ok := codeParam(w, r)
	if !ok {
		return
	}

	dc, err := h.codes.Redeem(r.Context(), code)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to redeem discount code")
		return
	}

	h.log.WithField("user_id", dc.UserID).WithField("code", dc.Code).Info("Discount code redeemed")
	writeJSONResponse(w, http.StatusOK, dc)
}

// Stats возвращает статистику по кодам.
func (h *DiscountCodeHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.codes.Stats(r.Context())
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to get discount code statistics")
		return
	}
	writeJSONResponse(w, http.StatusOK, stats)
}

func (h *DiscountCodeHandler) resolvePercent(r *http.Request, requested *int) (int, error) {
	if requested != nil {
		return *requested, nil
	}
	cfg, err := h.configs.GetActive(r.Context())
	if err != nil {
		if apperror.Is(err, apperror.KindNotFound) {
			return 0, apperror.Validation("percent is required when no configuration is active", err)
		}
		return 0, err
	}
	return cfg.DiscountPercent, nil
}

func codeParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	code := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "code")))
	if code == "" {
		writeErrorResponse(w, http.StatusBadRequest, "code is required")
		return "", false
	}
	return code, true
}
