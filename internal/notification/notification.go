package notification

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cart-discounts/internal/config"
	"cart-discounts/internal/logger"
	"cart-discounts/internal/models"

	"golang.org/x/time/rate"
)

// Поддерживаемые провайдеры.
const (
	ProviderLog      = "log"
	ProviderSendGrid = "sendgrid"
)

// ErrNotConfigured означает, что отправка писем не настроена.
var ErrNotConfigured = errors.New("email delivery is not configured")

// Provider доставляет готовое письмо.
type Provider interface {
	Name() string
	Deliver(ctx context.Context, msg *Message) error
}

// Gateway рендерит и отправляет письма с кодами скидок.
type Gateway struct {
	provider Provider
	renderer *Renderer
	limiter  *rate.Limiter
	log      *logger.Logger
}

// ValidationReport - результат проверки настроек отправки писем.
type ValidationReport struct {
	Valid    bool     `json:"valid"`
	Provider string   `json:"provider"`
	Missing  []string `json:"missing,omitempty"`
	Message  string   `json:"message"`
}

// Validate проверяет, что для выбранного провайдера заданы все обязательные настройки.
func Validate(cfg *config.NotificationConfig) ValidationReport {
	report := ValidationReport{Provider: strings.ToLower(cfg.Provider)}

	switch report.Provider {
	case ProviderLog:
	case ProviderSendGrid:
		if cfg.SendGridAPIKey == "" {
			report.Missing = append(report.Missing, "SENDGRID_API_KEY")
		}
		if cfg.FromAddress == "" {
			report.Missing = append(report.Missing, "NOTIFY_FROM_ADDRESS")
		}
	default:
		report.Message = fmt.Sprintf("unknown email provider %q", cfg.Provider)
		return report
	}
	if cfg.StoreName == "" {
		report.Missing = append(report.Missing, "NOTIFY_STORE_NAME")
	}

	if len(report.Missing) > 0 {
		report.Message = "missing email settings: " + strings.Join(report.Missing, ", ")
		return report
	}
	report.Valid = true
	report.Message = "email configuration is valid"
	return report
}

// New создаёт шлюз по конфигурации. Неполная конфигурация SendGrid - ошибка.
func New(cfg *config.NotificationConfig, log *logger.Logger) (*Gateway, error) {
	report := Validate(cfg)
	if !report.Valid {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, report.Message)
	}

	var provider Provider
	switch report.Provider {
	case ProviderSendGrid:
		timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		provider = NewSendGridProvider(&http.Client{Timeout: timeout}, SendGridConfig{
			APIKey:      cfg.SendGridAPIKey,
			BaseURL:     cfg.SendGridURL,
			FromAddress: cfg.FromAddress,
			FromName:    cfg.FromName,
			Retry:       RetryPolicy{MaxRetries: cfg.MaxRetries},
		})
	default:
		provider = NewLogProvider(log)
	}

	return NewGateway(provider, cfg, log)
}

// NewGateway создаёт шлюз с заданным провайдером.
func NewGateway(provider Provider, cfg *config.NotificationConfig, log *logger.Logger) (*Gateway, error) {
	renderer, err := NewRenderer(cfg.StoreName, cfg.StoreURL)
	if err != nil {
		return nil, err
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}

	return &Gateway{
		provider: provider,
		renderer: renderer,
		limiter:  rate.NewLimiter(limit, 1),
		log:      log,
	}, nil
}

// Provider возвращает имя используемого провайдера.
func (g *Gateway) Provider() string {
	return g.provider.Name()
}

// Send отправляет письмо с кодом. Сбой доставки возвращает false без ошибки;
// ошибка означает проблему конфигурации или отмену контекста.
func (g *Gateway) Send(ctx context.Context, user *models.User, code *models.DiscountCode, items []*models.CartItem) (bool, error) {
	entry := g.log.WithField("user_id", user.ID).WithField("code", code.Code)

	if strings.TrimSpace(user.Email) == "" {
		entry.Warn("User has no email address, discount email skipped")
		return false, nil
	}

	msg, err := g.renderer.Render(user, code, items)
	if err != nil {
		return false, err
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return false, fmt.Errorf("email rate limiter: %w", err)
	}

	if err := g.provider.Deliver(ctx, msg); err != nil {
		entry.WithError(err).WithField("provider", g.provider.Name()).Warn("Discount email was not delivered")
		return false, nil
	}

	entry.WithField("provider", g.provider.Name()).Info("Discount email sent")
	return true, nil
}
