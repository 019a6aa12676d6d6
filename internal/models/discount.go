package models

import "time"

// DiscountConfiguration описывает глобальные параметры рассылки кодов.
// Одновременно активной может быть только одна конфигурация.
type DiscountConfiguration struct {
	ID              int64     `json:"id" db:"id"`
	InactivityDays  int       `json:"inactivity_days" db:"inactivity_days"`
	DiscountPercent int       `json:"discount_percent" db:"discount_percent"`
	Active          bool      `json:"active" db:"active"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// DiscountConfigurationRequest описывает запрос на создание/обновление конфигурации.
type DiscountConfigurationRequest struct {
	InactivityDays  int  `json:"inactivity_days" validate:"required,min=1,max=365"`
	DiscountPercent int  `json:"discount_percent" validate:"min=0,max=100"`
	Active          bool `json:"active"`
}

// DiscountCode представляет персональный код скидки пользователя.
type DiscountCode struct {
	ID        int64      `json:"id" db:"id"`
	UserID    int64      `json:"user_id" db:"user_id"`
	Code      string     `json:"code" db:"code"`
	Percent   int        `json:"percent" db:"percent"`
	Used      bool       `json:"used" db:"used"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty" db:"used_at"`
	EmailSent bool       `json:"email_sent" db:"email_sent"`
}

// IsVigente сообщает, действует ли код в момент now: не использован и не истёк.
func (c *DiscountCode) IsVigente(now time.Time) bool {
	if c == nil || c.Used {
		return false
	}
	return c.ExpiresAt == nil || c.ExpiresAt.After(now)
}

// IssueDiscountCodeRequest описывает ручной выпуск кода администратором.
type IssueDiscountCodeRequest struct {
	UserID  int64 `json:"user_id" validate:"required,min=1"`
	Percent *int  `json:"percent,omitempty" validate:"omitempty,min=0,max=100"` // по умолчанию из активной конфигурации
}

// DiscountCodeStats агрегирует статистику по выпущенным кодам.
type DiscountCodeStats struct {
	Total       int     `json:"total_codes"`
	Used        int     `json:"used_codes"`
	Vigente     int     `json:"vigente_codes"`
	LastWeek    int     `json:"codes_last_week"`
	Today       int     `json:"codes_today"`
	UsageRate   float64 `json:"usage_rate"`
	EmailsSent  int     `json:"emails_sent"`
	GeneratedAt string  `json:"generated_at"`
}
