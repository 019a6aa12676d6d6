package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cart-discounts/internal/apperror"
	"cart-discounts/internal/database"
	"cart-discounts/internal/logger"
	"cart-discounts/internal/models"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// CartService отслеживает активность покупателей в корзине.
type CartService struct {
	db  *database.DB
	log *logger.Logger
	now func() time.Time
}

// NewCartService создаёт сервис корзины.
func NewCartService(db *database.DB, log *logger.Logger) *CartService {
	return &CartService{
		db:  db,
		log: log,
		now: time.Now,
	}
}

// Touch добавляет товар в корзину или обновляет время последней активности.
// Время активности никогда не уменьшается.
func (s *CartService) Touch(ctx context.Context, userID, productID int64) (*models.CartItem, error) {
	if userID <= 0 || productID <= 0 {
		return nil, apperror.Validation("user_id and product_id must be positive", nil)
	}

	now := s.now()
	item := &models.CartItem{
		UserID:    userID,
		ProductID: productID,
	}

	query := `
		INSERT INTO cart_items (user_id, product_id, added_at, last_activity_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET last_activity_at = GREATEST(cart_items.last_activity_at, EXCLUDED.last_activity_at)
		RETURNING id, added_at, last_activity_at
	`

	if err := s.db.QueryRowContext(ctx, query, userID, productID, now).Scan(&item.ID, &item.AddedAt, &item.LastActivityAt); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return nil, apperror.NotFound("user or product not found", err)
		}
		return nil, fmt.Errorf("failed to touch cart item: %w", err)
	}

	s.log.WithField("user_id", userID).WithField("product_id", productID).Debug("Cart activity recorded")
	return item, nil
}

// Remove удаляет товар из корзины. Отсутствие записи ошибкой не считается.
func (s *CartService) Remove(ctx context.Context, userID, productID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`, userID, productID); err != nil {
		return fmt.Errorf("failed to remove cart item: %w", err)
	}
	s.log.WithField("user_id", userID).WithField("product_id", productID).Debug("Cart item removed")
	return nil
}

// ListForUser возвращает корзину пользователя вместе с товарами, последние активные первыми.
func (s *CartService) ListForUser(ctx context.Context, userID int64) ([]*models.CartItem, error) {
	query := `
		SELECT ci.id, ci.user_id, ci.product_id, ci.added_at, ci.last_activity_at,
		       p.name, p.price, p.category_path, p.image_url
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.user_id = $1
		ORDER BY ci.last_activity_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart items: %w", err)
	}
	defer rows.Close()

	var items []*models.CartItem
	for rows.Next() {
		item := &models.CartItem{Product: &models.Product{}}
		var (
			price    decimal.NullDecimal
			imageURL sql.NullString
		)
		if err := rows.Scan(
			&item.ID, &item.UserID, &item.ProductID, &item.AddedAt, &item.LastActivityAt,
			&item.Product.Name, &price, &item.Product.CategoryPath, &imageURL,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		item.Product.ID = item.ProductID
		item.Product.Price = price
		item.Product.ImageURL = imageURL.String
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cart items: %w", err)
	}
	return items, nil
}

// FindInactiveSince возвращает пользователей, у которых есть товары с активностью раньше cutoff.
// Граница строгая: товар с активностью ровно в cutoff не считается неактивным.
func (s *CartService) FindInactiveSince(ctx context.Context, cutoff time.Time) ([]int64, error) {
	query := `
		SELECT DISTINCT user_id
		FROM cart_items
		WHERE last_activity_at < $1
		ORDER BY user_id
	`

	rows, err := s.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to find inactive carts: %w", err)
	}
	defer rows.Close()

	var userIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		userIDs = append(userIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate inactive carts: %w", err)
	}
	return userIDs, nil
}
