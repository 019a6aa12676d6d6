package handlers

import (
	"context"
	"time"

	"cart-discounts/internal/models"
	"cart-discounts/internal/scheduler"
)

// ----- Discount configuration -----

type ConfigService interface {
	GetActive(ctx context.Context) (*models.DiscountConfiguration, error)
	GetConfiguration(ctx context.Context, id int64) (*models.DiscountConfiguration, error)
	ListConfigurations(ctx context.Context) ([]*models.DiscountConfiguration, error)
	CreateConfiguration(ctx context.Context, req *models.DiscountConfigurationRequest) (*models.DiscountConfiguration, error)
	UpdateConfiguration(ctx context.Context, id int64, req *models.DiscountConfigurationRequest) (*models.DiscountConfiguration, error)
	SetActive(ctx context.Context, id int64) (*models.DiscountConfiguration, error)
	DeleteConfiguration(ctx context.Context, id int64) error
}

// SchedulerController управляет жизненным циклом ежедневной рассылки.
type SchedulerController interface {
	Start(ctx context.Context) bool
	Stop() bool
	Restart(ctx context.Context) bool
	Status() scheduler.Status
}

// ----- Cart -----

type CartService interface {
	Touch(ctx context.Context, userID, productID int64) (*models.CartItem, error)
	Remove(ctx context.Context, userID, productID int64) error
	ListForUser(ctx context.Context, userID int64) ([]*models.CartItem, error)
}

// ----- Discount codes -----

type CodeService interface {
	IssueIfNoneVigente(ctx context.Context, userID int64, percent int, expiresAt *time.Time) (*models.DiscountCode, error)
	GetByCode(ctx context.Context, value string) (*models.DiscountCode, error)
	ListCodes(ctx context.Context, userID int64, limit, offset int) ([]*models.DiscountCode, error)
	Redeem(ctx context.Context, value string) (*models.DiscountCode, error)
	Stats(ctx context.Context) (*models.DiscountCodeStats, error)
}

// ----- Scan -----

type ScanRunner interface {
	RunNow(ctx context.Context, opts models.ScanOptions) (*models.ScanSummary, bool, error)
	SendToUser(ctx context.Context, userID int64, req models.SendToUserRequest) (*models.SendToUserResult, error)
}

type RunHistory interface {
	LastRun(ctx context.Context, source models.TriggerSource) (*models.ScanSummary, error)
}

// ----- Health -----

type DBHealth interface {
	Health() error
}

type RedisHealth interface {
	Health(ctx context.Context) error
}
