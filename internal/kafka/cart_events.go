package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"cart-discounts/internal/logger"
	"cart-discounts/internal/models"

	"github.com/sirupsen/logrus"
)

// CartActivityRecorder фиксирует активность в корзинах.
type CartActivityRecorder interface {
	Touch(ctx context.Context, userID, productID int64) (*models.CartItem, error)
	Remove(ctx context.Context, userID, productID int64) error
}

// RegisterCartHandlers подписывает хранилище корзин на события витрины.
func RegisterCartHandlers(c *Consumer, carts CartActivityRecorder, log *logger.Logger) {
	c.RegisterHandler(models.EventTypeCartItemTouched, func(ctx context.Context, event *models.Event) error {
		data, err := decodeCartActivity(event)
		if err != nil {
			return err
		}
		if _, err := carts.Touch(ctx, data.UserID, data.ProductID); err != nil {
			return err
		}
		log.WithFields(logrus.Fields{
			"event_id":   event.ID,
			"user_id":    data.UserID,
			"product_id": data.ProductID,
		}).Debug("Cart activity recorded")
		return nil
	})

	c.RegisterHandler(models.EventTypeCartItemRemoved, func(ctx context.Context, event *models.Event) error {
		data, err := decodeCartActivity(event)
		if err != nil {
			return err
		}
		return carts.Remove(ctx, data.UserID, data.ProductID)
	})
}

func decodeCartActivity(event *models.Event) (*models.CartActivityData, error) {
	var data models.CartActivityData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return nil, fmt.Errorf("invalid %s payload: %w", event.Type, err)
	}
	if data.UserID <= 0 || data.ProductID <= 0 {
		return nil, fmt.Errorf("invalid %s payload: user_id and product_id are required", event.Type)
	}
	return &data, nil
}
