package handlers

import (
	"net/http"

	"cart-discounts/internal/apperror"
	"cart-discounts/internal/logger"
)

// writeServiceError переводит категорию ошибки сервиса в HTTP-ответ.
// Ошибки без категории логируются, клиент видит только internalMessage.
func writeServiceError(w http.ResponseWriter, log *logger.Logger, err error, internalMessage string) {
	switch kind := apperror.KindOf(err); kind {
	case apperror.KindNotFound:
		writeErrorResponse(w, http.StatusNotFound, err.Error())
	case apperror.KindValidation:
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
	case apperror.KindConflict:
		writeErrorResponse(w, http.StatusConflict, err.Error())
	case apperror.KindUnavailable:
		if log != nil {
			log.WithError(err).Warn(internalMessage)
		}
		writeErrorResponse(w, http.StatusServiceUnavailable, err.Error())
	case apperror.KindConfirmationRequired:
		writeJSONResponse(w, http.StatusOK, ConfirmationResponse{
			Success:   false,
			ErrorCode: string(kind),
			Message:   err.Error(),
		})
	default:
		if log != nil {
			log.WithError(err).Error(internalMessage)
		}
		writeErrorResponse(w, http.StatusInternalServerError, internalMessage)
	}
}
