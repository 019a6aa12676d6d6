package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cart-discounts/internal/apperror"
	"cart-discounts/internal/database"
	"cart-discounts/internal/models"
)

// UserService читает данные покупателей.
type UserService struct {
	db *database.DB
}

// NewUserService создаёт сервис пользователей.
func NewUserService(db *database.DB) *UserService {
	return &UserService{db: db}
}

// GetUser возвращает пользователя по ID.
func (s *UserService) GetUser(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT id, email, instagram_account, created_at FROM users WHERE id = $1`

	user := &models.User{}
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&user.ID, &user.Email, &user.InstagramAccount, &user.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user not found", err)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}
