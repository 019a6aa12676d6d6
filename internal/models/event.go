package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType представляет тип события
type EventType string

const (
	EventTypeCartItemTouched     EventType = "cart.item_touched"
	EventTypeCartItemRemoved     EventType = "cart.item_removed"
	EventTypeDiscountCodeIssued  EventType = "discount_code.issued"
	EventTypeDiscountCodeEmailed EventType = "discount_code.email_sent"
	EventTypeScanCompleted       EventType = "scan.completed"
)

// Event представляет событие в Kafka
type Event struct {
	ID        uuid.UUID       `json:"id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// CartActivityData - полезная нагрузка событий корзины.
type CartActivityData struct {
	UserID    int64 `json:"user_id"`
	ProductID int64 `json:"product_id"`
}

// DiscountCodeEventData - полезная нагрузка событий по кодам.
type DiscountCodeEventData struct {
	UserID  int64         `json:"user_id"`
	Code    string        `json:"code"`
	Percent int           `json:"percent"`
	Source  TriggerSource `json:"source"`
}
