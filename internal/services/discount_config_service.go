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
)

// ErrNoActiveConfiguration означает, что рассылка выключена: активной конфигурации нет.
var ErrNoActiveConfiguration = apperror.NotFound("no active discount configuration", nil)

const configColumns = `id, inactivity_days, discount_percent, active, created_at, updated_at`

// DiscountConfigService управляет конфигурациями рассылки скидок.
type DiscountConfigService struct {
	db  *database.DB
	log *logger.Logger
	now func() time.Time
}

// NewDiscountConfigService создаёт сервис конфигураций.
func NewDiscountConfigService(db *database.DB, log *logger.Logger) *DiscountConfigService {
	return &DiscountConfigService{
		db:  db,
		log: log,
		now: time.Now,
	}
}

// GetActive возвращает единственную активную конфигурацию или ErrNoActiveConfiguration.
func (s *DiscountConfigService) GetActive(ctx context.Context) (*models.DiscountConfiguration, error) {
	query := `SELECT ` + configColumns + ` FROM discount_configurations WHERE active = TRUE LIMIT 1`

	cfg, err := scanConfig(s.db.QueryRowContext(ctx, query))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoActiveConfiguration
		}
		return nil, fmt.Errorf("failed to get active configuration: %w", err)
	}
	return cfg, nil
}

// GetConfiguration возвращает конфигурацию по ID.
func (s *DiscountConfigService) GetConfiguration(ctx context.Context, id int64) (*models.DiscountConfiguration, error) {
	query := `SELECT ` + configColumns + ` FROM discount_configurations WHERE id = $1`

	cfg, err := scanConfig(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("discount configuration not found", err)
		}
		return nil, fmt.Errorf("failed to get configuration: %w", err)
	}
	return cfg, nil
}

// ListConfigurations возвращает все конфигурации, новые первыми.
func (s *DiscountConfigService) ListConfigurations(ctx context.Context) ([]*models.DiscountConfiguration, error) {
	query := `SELECT ` + configColumns + ` FROM discount_configurations ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list configurations: %w", err)
	}
	defer rows.Close()

	var configs []*models.DiscountConfiguration
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan configuration: %w", err)
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate configurations: %w", err)
	}
	return configs, nil
}

// CreateConfiguration создаёт конфигурацию. Активная конфигурация выключает все остальные
// в той же транзакции.
func (s *DiscountConfigService) CreateConfiguration(ctx context.Context, req *models.DiscountConfigurationRequest) (*models.DiscountConfiguration, error) {
	if err := validateConfigPayload(req); err != nil {
		return nil, apperror.Validation(err.Error(), err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now()
	if req.Active {
		if err := deactivateOthers(ctx, tx, 0, now); err != nil {
			return nil, err
		}
	}

	cfg := &models.DiscountConfiguration{
		InactivityDays:  req.InactivityDays,
		DiscountPercent: req.DiscountPercent,
		Active:          req.Active,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	query := `
		INSERT INTO discount_configurations (inactivity_days, discount_percent, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	if err := tx.QueryRowContext(ctx, query, cfg.InactivityDays, cfg.DiscountPercent, cfg.Active, cfg.CreatedAt, cfg.UpdatedAt).Scan(&cfg.ID); err != nil {
		return nil, mapConfigWriteError(err, "failed to create configuration")
	}

	if err := tx.Commit(); err != nil {
		return nil, mapConfigWriteError(err, "failed to commit configuration")
	}

	s.log.WithField("config_id", cfg.ID).WithField("active", cfg.Active).Info("Discount configuration created")
	return cfg, nil
}

// UpdateConfiguration обновляет конфигурацию по тем же правилам активности, что и создание.
func (s *DiscountConfigService) UpdateConfiguration(ctx context.Context, id int64, req *models.DiscountConfigurationRequest) (*models.DiscountConfiguration, error) {
	if err := validateConfigPayload(req); err != nil {
		return nil, apperror.Validation(err.Error(), err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now()
	if req.Active {
		if err := deactivateOthers(ctx, tx, id, now); err != nil {
			return nil, err
		}
	}

	query := `
		UPDATE discount_configurations
		SET inactivity_days = $1, discount_percent = $2, active = $3, updated_at = $4
		WHERE id = $5
		RETURNING ` + configColumns

	cfg, err := scanConfig(tx.QueryRowContext(ctx, query, req.InactivityDays, req.DiscountPercent, req.Active, now, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("discount configuration not found", err)
		}
		return nil, mapConfigWriteError(err, "failed to update configuration")
	}

	if err := tx.Commit(); err != nil {
		return nil, mapConfigWriteError(err, "failed to commit configuration")
	}

	s.log.WithField("config_id", id).WithField("active", cfg.Active).Info("Discount configuration updated")
	return cfg, nil
}

// SetActive делает конфигурацию активной, выключая все остальные атомарно.
func (s *DiscountConfigService) SetActive(ctx context.Context, id int64) (*models.DiscountConfiguration, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now()
	if err := deactivateOthers(ctx, tx, id, now); err != nil {
		return nil, err
	}

	query := `
		UPDATE discount_configurations
		SET active = TRUE, updated_at = $1
		WHERE id = $2
		RETURNING ` + configColumns

	cfg, err := scanConfig(tx.QueryRowContext(ctx, query, now, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("discount configuration not found", err)
		}
		return nil, mapConfigWriteError(err, "failed to activate configuration")
	}

	if err := tx.Commit(); err != nil {
		return nil, mapConfigWriteError(err, "failed to commit configuration")
	}

	s.log.WithField("config_id", id).Info("Discount configuration activated")
	return cfg, nil
}

// DeleteConfiguration удаляет неактивную конфигурацию. Активную удалить нельзя.
func (s *DiscountConfigService) DeleteConfiguration(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var active bool
	if err := tx.QueryRowContext(ctx, `SELECT active FROM discount_configurations WHERE id = $1 FOR UPDATE`, id).Scan(&active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperror.NotFound("discount configuration not found", err)
		}
		return fmt.Errorf("failed to get configuration: %w", err)
	}
	if active {
		return apperror.Conflict("active configuration cannot be deleted", nil)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM discount_configurations WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete configuration: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit configuration delete: %w", err)
	}

	s.log.WithField("config_id", id).Info("Discount configuration deleted")
	return nil
}

func deactivateOthers(ctx context.Context, tx *sql.Tx, keepID int64, now time.Time) error {
	query := `
		UPDATE discount_configurations
		SET active = FALSE, updated_at = $1
		WHERE active = TRUE AND id <> $2
	`
	if _, err := tx.ExecContext(ctx, query, now, keepID); err != nil {
		return fmt.Errorf("failed to deactivate configurations: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConfig(row rowScanner) (*models.DiscountConfiguration, error) {
	cfg := &models.DiscountConfiguration{}
	if err := row.Scan(&cfg.ID, &cfg.InactivityDays, &cfg.DiscountPercent, &cfg.Active, &cfg.CreatedAt, &cfg.UpdatedAt); err != nil {
		return nil, err
	}
	return cfg, nil
}

func mapConfigWriteError(err error, msg string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return apperror.Conflict("another configuration was activated concurrently", err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func validateConfigPayload(req *models.DiscountConfigurationRequest) error {
	if req == nil {
		return fmt.Errorf("configuration payload is required")
	}
	if req.InactivityDays <= 0 {
		return fmt.Errorf("inactivity_days must be positive")
	}
	if req.DiscountPercent < 0 || req.DiscountPercent > 100 {
		return fmt.Errorf("discount_percent must be between 0 and 100")
	}
	return nil
}
