package handlers

import (
	"net/http"

	"cart-discounts/internal/logger"
	"cart-discounts/internal/models"
)

// CartHandler принимает активность корзин.
type CartHandler struct {
	carts CartService
	log   *logger.Logger
}

// NewCartHandler создаёт обработчик корзин.
func NewCartHandler(carts CartService, log *logger.Logger) *CartHandler {
	return &CartHandler{carts: carts, log: log}
}

type cartResponse struct {
	UserID int64              `json:"user_id"`
	Items  []*models.CartItem `json:"items"`
	Total  string             `json:"total"`
}

// List возвращает корзину пользователя.
func (h *CartHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := int64URLParam(r, "userID")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	items, err := h.carts.ListForUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to list cart items")
		return
	}
	if items == nil {
		items = []*models.CartItem{}
	}

	writeJSONResponse(w, http.StatusOK, cartResponse{
		UserID: userID,
		Items:  items,
		Total:  models.CartTotal(items).StringFixed(2),
	})
}

// Touch добавляет товар в корзину или обновляет время активности.
func (h *CartHandler) Touch(w http.ResponseWriter, r *http.Request) {
	userID, productID, ok := cartItemParams(w, r)
	if !ok {
		return
	}

	item, err := h.carts.Touch(r.Context(), userID, productID)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to update cart")
		return
	}
	writeJSONResponse(w, http.StatusOK, item)
}

// Remove удаляет товар из корзины.
func (h *CartHandler) Remove(w http.ResponseWriter, r *http.Request) {
	userID, productID, ok := cartItemParams(w, r)
	if !ok {
		return
	}

	if err := h.carts.Remove(r.Context(), userID, productID); err != nil {
		writeServiceError(w, h.log, err, "Failed to remove cart item")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func cartItemParams(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	userID, err := int64URLParam(r, "userID")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return 0, 0, false
	}
	productID, err := int64URLParam(r, "productID")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return 0, 0, false
	}
	return userID, productID, true
}
