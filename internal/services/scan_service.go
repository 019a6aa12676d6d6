package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cart-discounts/internal/apperror"
	"cart-discounts/internal/logger"
	"cart-discounts/internal/metrics"
	"cart-discounts/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// ConfigReader отдаёт активную конфигурацию рассылки.
type ConfigReader interface {
	GetActive(ctx context.Context) (*models.DiscountConfiguration, error)
}

// CartReader ищет неактивные корзины и их содержимое.
type CartReader interface {
	FindInactiveSince(ctx context.Context, cutoff time.Time) ([]int64, error)
	ListForUser(ctx context.Context, userID int64) ([]*models.CartItem, error)
}

// CodeIssuer выпускает коды и отслеживает их состояние.
type CodeIssuer interface {
	HasVigenteCode(ctx context.Context, userID int64) (bool, error)
	GetVigenteCode(ctx context.Context, userID int64) (*models.DiscountCode, error)
	Issue(ctx context.Context, userID int64, percent int, expiresAt *time.Time) (*models.DiscountCode, error)
	IssueIfNoneVigente(ctx context.Context, userID int64, percent int, expiresAt *time.Time) (*models.DiscountCode, error)
	RetireVigenteCodes(ctx context.Context, userID int64) (int64, error)
	MarkEmailSent(ctx context.Context, codeID int64) error
}

// UserReader читает данные покупателей.
type UserReader interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

// Notifier доставляет письмо с кодом. false без ошибки означает, что письмо не ушло
// (нет адреса, провайдер отказал), но рассылка может продолжаться.
type Notifier interface {
	Send(ctx context.Context, user *models.User, code *models.DiscountCode, items []*models.CartItem) (bool, error)
}

// EventPublisher публикует события рассылки во внешнюю шину.
type EventPublisher interface {
	PublishDiscountCodeIssued(code *models.DiscountCode, source models.TriggerSource) error
	PublishDiscountCodeEmailed(code *models.DiscountCode, source models.TriggerSource) error
	PublishScanCompleted(summary *models.ScanSummary) error
}

// RunRecorder сохраняет итоги прогонов и не даёт двум процессам рассылать одновременно.
type RunRecorder interface {
	SaveLastRun(ctx context.Context, summary *models.ScanSummary) error
	Acquire(ctx context.Context, owner string) (release func(), acquired bool, err error)
}

// ExistingCodeError сообщает, что у пользователя уже есть действующий код
// и оператор должен выбрать: переслать его или выпустить новый.
type ExistingCodeError struct {
	Code *models.DiscountCode
}

func (e *ExistingCodeError) Error() string {
	return "user already holds a valid discount code"
}

func (e *ExistingCodeError) Unwrap() error {
	return apperror.ConfirmationRequired(e.Error(), nil)
}

// ScanService выполняет поиск неактивных корзин и рассылку кодов.
type ScanService struct {
	configs  ConfigReader
	carts    CartReader
	codes    CodeIssuer
	users    UserReader
	notifier Notifier
	log      *logger.Logger

	publisher EventPublisher
	runs      RunRecorder

	manualExpiry time.Duration
	now          func() time.Time
	group        singleflight.Group
}

// NewScanService создаёт сервис рассылки. manualExpiry задаёт срок действия кодов,
// выпущенных из командной строки и персонально администратором.
func NewScanService(configs ConfigReader, carts CartReader, codes CodeIssuer, users UserReader, notifier Notifier, log *logger.Logger, manualExpiry time.Duration) *ScanService {
	return &ScanService{
		configs:      configs,
		carts:        carts,
		codes:        codes,
		users:        users,
		notifier:     notifier,
		log:          log,
		manualExpiry: manualExpiry,
		now:          time.Now,
	}
}

// SetPublisher подключает публикацию событий.
func (s *ScanService) SetPublisher(p EventPublisher) {
	s.publisher = p
}

// SetRunRecorder подключает хранилище итогов и межпроцессную блокировку.
func (s *ScanService) SetRunRecorder(r RunRecorder) {
	s.runs = r
}

// Run выполняет один прогон рассылки.
// Ошибки по отдельным пользователям учитываются в итоге и не прерывают прогон.
// Отмена ctx на прогон не влияет: начатый прогон всегда обходит всех кандидатов.
func (s *ScanService) Run(ctx context.Context, opts models.ScanOptions) (*models.ScanSummary, error) {
	ctx = context.WithoutCancel(ctx)
	if opts.Source == "" {
		opts.Source = models.TriggerScheduled
	}

	summary := &models.ScanSummary{
		RunID:     uuid.New(),
		Source:    opts.Source,
		DryRun:    opts.DryRun,
		Force:     opts.Force,
		StartedAt: s.now(),
	}
	entry := s.log.WithFields(logrus.Fields{
		"run_id":  summary.RunID.String(),
		"source":  summary.Source,
		"dry_run": summary.DryRun,
		"force":   summary.Force,
	})
	entry.Info("Inactivity scan started")

	cfg, err := s.configs.GetActive(ctx)
	if err != nil && !errors.Is(err, ErrNoActiveConfiguration) {
		err = fmt.Errorf("failed to load active configuration: %w", err)
		s.finish(ctx, entry, summary, err)
		return summary, err
	}
	if cfg == nil || !cfg.Active {
		summary.Disabled = true
		entry.Info("No active discount configuration, scan skipped")
		s.finish(ctx, entry, summary, nil)
		return summary, nil
	}

	if !opts.DryRun && s.runs != nil {
		release, acquired, err := s.runs.Acquire(ctx, summary.RunID.String())
		switch {
		case err != nil:
			entry.WithError(err).Warn("Scan lock unavailable, continuing without it")
		case !acquired:
			err := apperror.Conflict("another scan is already running", nil)
			s.finish(ctx, entry, summary, err)
			return summary, err
		default:
			defer release()
		}
	}

	cutoff := summary.StartedAt.Add(-time.Duration(cfg.InactivityDays) * 24 * time.Hour)
	userIDs, err := s.carts.FindInactiveSince(ctx, cutoff)
	if err != nil {
		s.finish(ctx, entry, summary, err)
		return summary, err
	}

	candidates := make([]int64, 0, len(userIDs))
	for _, userID := range userIDs {
		if opts.Force {
			candidates = append(candidates, userID)
			continue
		}
		has, err := s.codes.HasVigenteCode(ctx, userID)
		if err != nil {
			summary.Errors++
			entry.WithError(err).WithField("user_id", userID).Error("Failed to check existing codes")
			continue
		}
		if has {
			summary.Skipped++
			continue
		}
		candidates = append(candidates, userID)
	}
	summary.Candidates = len(candidates)
	entry.WithField("candidates", summary.Candidates).WithField("cutoff", cutoff).Info("Inactive carts found")

	for _, userID := range candidates {
		if err := s.processUser(ctx, userID, cfg.DiscountPercent, opts, summary); err != nil {
			summary.Errors++
			entry.WithError(err).WithField("user_id", userID).Error("Failed to process user")
		}
	}

	s.finish(ctx, entry, summary, nil)
	return summary, nil
}

// RunNow запускает прогон по запросу администратора.
// Одновременные запросы с одинаковыми параметрами получают результат одного прогона.
func (s *ScanService) RunNow(ctx context.Context, opts models.ScanOptions) (*models.ScanSummary, bool, error) {
	if opts.Source == "" {
		opts.Source = models.TriggerAdminBatch
	}
	key := fmt.Sprintf("%s:%t:%t", opts.Source, opts.DryRun, opts.Force)

	v, err, shared := s.group.Do(key, func() (interface{}, error) {
		return s.Run(ctx, opts)
	})
	summary, _ := v.(*models.ScanSummary)
	return summary, shared, err
}

func (s *ScanService) processUser(ctx context.Context, userID int64, percent int, opts models.ScanOptions, summary *models.ScanSummary) error {
	items, err := s.carts.ListForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("load cart: %w", err)
	}
	// корзину могли очистить между поиском и обработкой
	if len(items) == 0 {
		summary.Skipped++
		return nil
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	if opts.DryRun {
		summary.DryRunUsers = append(summary.DryRunUsers, models.ScanCandidate{
			UserID:           user.ID,
			Email:            user.Email,
			InstagramAccount: user.InstagramAccount,
			CartItems:        len(items),
		})
		return nil
	}

	expiresAt := s.expiryFor(opts.Source)
	var code *models.DiscountCode
	if opts.Force {
		code, err = s.codes.Issue(ctx, userID, percent, expiresAt)
	} else {
		code, err = s.codes.IssueIfNoneVigente(ctx, userID, percent, expiresAt)
		if errors.Is(err, ErrVigenteCodeExists) {
			summary.Skipped++
			return nil
		}
	}
	if err != nil {
		return fmt.Errorf("issue code: %w", err)
	}
	summary.CodesIssued++
	metrics.RecordCodeIssued(string(opts.Source))
	s.publishIssued(code, opts.Source)

	sent, err := s.notifier.Send(ctx, user, code, items)
	metrics.RecordEmail(sent && err == nil)
	if err != nil {
		return fmt.Errorf("send email for code %s: %w", code.Code, err)
	}
	if !sent {
		return fmt.Errorf("email for code %s was not delivered", code.Code)
	}
	summary.EmailsSent++

	// письмо уже ушло: ошибка отметки не делает пользователя ошибочным
	if err := s.codes.MarkEmailSent(ctx, code.ID); err != nil {
		s.log.WithError(err).WithField("user_id", userID).WithField("code", code.Code).
			Warn("Failed to mark discount code email as sent")
	} else {
		code.EmailSent = true
	}
	s.publishEmailed(code, opts.Source)
	return nil
}

// SendToUser выпускает и отправляет код одному пользователю по запросу администратора.
// Если у пользователя уже есть действующий код, без явного выбора возвращается ExistingCodeError.
func (s *ScanService) SendToUser(ctx context.Context, userID int64, req models.SendToUserRequest) (*models.SendToUserResult, error) {
	cfg, err := s.configs.GetActive(ctx)
	if err != nil {
		if errors.Is(err, ErrNoActiveConfiguration) {
			return nil, apperror.Conflict("discount mailing is disabled: no active configuration", err)
		}
		return nil, err
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	items, err := s.carts.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, apperror.Validation("user cart is empty", nil)
	}

	existing, err := s.codes.GetVigenteCode(ctx, userID)
	if err != nil && !apperror.Is(err, apperror.KindNotFound) {
		return nil, err
	}

	source := models.TriggerAdminUser
	result := &models.SendToUserResult{}

	switch {
	case existing != nil && req.SendExisting:
		result.Outcome = models.SendOutcomeExisting
		result.Code = existing
	case existing != nil && req.ForceSend:
		if _, err := s.codes.RetireVigenteCodes(ctx, userID); err != nil {
			return nil, err
		}
		code, err := s.codes.Issue(ctx, userID, cfg.DiscountPercent, s.expiryFor(source))
		if err != nil {
			return nil, err
		}
		result.Outcome = models.SendOutcomeNew
		result.Code = code
	case existing != nil:
		return nil, &ExistingCodeError{Code: existing}
	default:
		code, err := s.codes.IssueIfNoneVigente(ctx, userID, cfg.DiscountPercent, s.expiryFor(source))
		if err != nil {
			return nil, err
		}
		result.Outcome = models.SendOutcomeNew
		result.Code = code
	}

	if result.Outcome == models.SendOutcomeNew {
		metrics.RecordCodeIssued(string(source))
		s.publishIssued(result.Code, source)
	}

	entry := s.log.WithField("user_id", userID).WithField("code", result.Code.Code)

	sent, err := s.notifier.Send(ctx, user, result.Code, items)
	metrics.RecordEmail(sent && err == nil)
	if err != nil || !sent {
		entry.WithError(err).Warn("Discount code email was not delivered")
		return result, nil
	}

	if err := s.codes.MarkEmailSent(ctx, result.Code.ID); err != nil {
		entry.WithError(err).Warn("Failed to mark discount code email as sent")
	}
	result.EmailSent = true
	result.Code.EmailSent = true
	s.publishEmailed(result.Code, source)

	entry.WithField("outcome", result.Outcome).Info("Discount code sent to user")
	return result, nil
}

// expiryFor возвращает срок действия кода для источника запуска.
// Плановая и пакетная рассылки выпускают бессрочные коды.
func (s *ScanService) expiryFor(source models.TriggerSource) *time.Time {
	switch source {
	case models.TriggerCommand, models.TriggerAdminUser:
		if s.manualExpiry <= 0 {
			return nil
		}
		t := s.now().Add(s.manualExpiry)
		return &t
	default:
		return nil
	}
}

func (s *ScanService) finish(ctx context.Context, entry *logrus.Entry, summary *models.ScanSummary, runErr error) {
	summary.FinishedAt = s.now()

	outcome := "completed"
	switch {
	case runErr != nil:
		outcome = "failed"
	case summary.Disabled:
		outcome = "disabled"
	case summary.DryRun:
		outcome = "dry_run"
	}
	metrics.RecordScanRun(string(summary.Source), outcome, summary.FinishedAt.Sub(summary.StartedAt))

	if s.runs != nil {
		if err := s.runs.SaveLastRun(ctx, summary); err != nil {
			entry.WithError(err).Warn("Failed to save scan summary")
		}
	}
	if s.publisher != nil && runErr == nil && !summary.DryRun {
		if err := s.publisher.PublishScanCompleted(summary); err != nil {
			entry.WithError(err).Warn("Failed to publish scan completed event")
		}
	}

	entry = entry.WithFields(logrus.Fields{
		"outcome":      outcome,
		"candidates":   summary.Candidates,
		"codes_issued": summary.CodesIssued,
		"emails_sent":  summary.EmailsSent,
		"skipped":      summary.Skipped,
		"errors":       summary.Errors,
		"duration":     summary.FinishedAt.Sub(summary.StartedAt).String(),
	})
	if runErr != nil {
		entry.WithError(runErr).Error("Inactivity scan failed")
		return
	}
	entry.Info("Inactivity scan finished")
}

func (s *ScanService) publishIssued(code *models.DiscountCode, source models.TriggerSource) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishDiscountCodeIssued(code, source); err != nil {
		s.log.WithError(err).WithField("code", code.Code).Warn("Failed to publish discount code issued event")
	}
}

func (s *ScanService) publishEmailed(code *models.DiscountCode, source models.TriggerSource) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishDiscountCodeEmailed(code, source); err != nil {
		s.log.WithError(err).WithField("code", code.Code).Warn("Failed to publish discount code emailed event")
	}
}
