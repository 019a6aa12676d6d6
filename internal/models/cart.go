package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User - минимальная проекция зарегистрированного покупателя.
type User struct {
	ID               int64     `json:"id" db:"id"`
	Email            string    `json:"email" db:"email"`
	InstagramAccount string    `json:"instagram_account" db:"instagram_account"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// Product - товар каталога, попавший в корзину.
type Product struct {
	ID           int64               `json:"id" db:"id"`
	Name         string              `json:"name" db:"name"`
	Price        decimal.NullDecimal `json:"price" db:"price"`
	CategoryPath string              `json:"category_path" db:"category_path"`
	ImageURL     string              `json:"image_url,omitempty" db:"image_url"`
}

// DisplayName возвращает название товара или запасной вариант по категории.
func (p Product) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	if p.CategoryPath != "" {
		return "Item from " + p.CategoryPath
	}
	return "Item"
}

// CartItem представляет товар в корзине пользователя.
// Пара (UserID, ProductID) уникальна.
type CartItem struct {
	ID             int64     `json:"id" db:"id"`
	UserID         int64     `json:"user_id" db:"user_id"`
	ProductID      int64     `json:"product_id" db:"product_id"`
	AddedAt        time.Time `json:"added_at" db:"added_at"`
	LastActivityAt time.Time `json:"last_activity_at" db:"last_activity_at"`
	Product        *Product  `json:"product,omitempty"`
}

// CartTotal суммирует известные цены товаров корзины.
func CartTotal(items []*CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		if item.Product != nil && item.Product.Price.Valid {
			total = total.Add(item.Product.Price.Decimal)
		}
	}
	return total
}
