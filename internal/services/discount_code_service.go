package services

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"cart-discounts/internal/apperror"
	"cart-discounts/internal/database"
	"cart-discounts/internal/logger"
	"cart-discounts/internal/models"

	"github.com/lib/pq"
)

const (
	// CodeLength - длина кода скидки.
	CodeLength = 8
	// CodeAlphabet - допустимые символы кода.
	CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	defaultMaxCodeAttempts = 10
)

var (
	// ErrCodeSpaceExhausted возвращается, когда не удалось подобрать уникальный код за отведённые попытки.
	ErrCodeSpaceExhausted = errors.New("unable to generate a unique discount code")
	// ErrVigenteCodeExists возвращается, когда у пользователя уже есть действующий код.
	ErrVigenteCodeExists = apperror.Conflict("user already holds a valid discount code", nil)
)

const codeColumns = `id, user_id, code, percent, used, created_at, expires_at, used_at, email_sent`

// vigenteClause - SQL-форма models.DiscountCode.IsVigente; момент времени передаётся параметром $nowArg.
func vigenteClause(nowArg int) string {
	return fmt.Sprintf("used = FALSE AND (expires_at IS NULL OR expires_at > $%d)", nowArg)
}

// queryer - общий интерфейс *sql.DB и *sql.Tx для вставки кода.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// DiscountCodeService выпускает и учитывает персональные коды скидок.
type DiscountCodeService struct {
	db          *database.DB
	log         *logger.Logger
	now         func() time.Time
	generate    func() (string, error)
	maxAttempts int
}

// NewDiscountCodeService создаёт сервис кодов скидок.
func NewDiscountCodeService(db *database.DB, log *logger.Logger, maxAttempts int) *DiscountCodeService {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxCodeAttempts
	}
	return &DiscountCodeService{
		db:          db,
		log:         log,
		now:         time.Now,
		generate:    GenerateCode,
		maxAttempts: maxAttempts,
	}
}

// GenerateCode возвращает случайный код из CodeLength символов алфавита CodeAlphabet.
func GenerateCode() (string, error) {
	// 252 = 36*7: байты выше отбрасываются, чтобы распределение было равномерным
	const limit = 252
	out := make([]byte, 0, CodeLength)
	buf := make([]byte, CodeLength*2)
	for len(out) < CodeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, CodeAlphabet[int(b)%len(CodeAlphabet)])
			if len(out) == CodeLength {
				break
			}
		}
	}
	return string(out), nil
}

// Issue выпускает новый код без проверки уже действующих кодов пользователя.
func (s *DiscountCodeService) Issue(ctx context.Context, userID int64, percent int, expiresAt *time.Time) (*models.DiscountCode, error) {
	code, err := s.insertUnique(ctx, s.db, userID, percent, expiresAt)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(map[string]interface{}{
		"user_id": userID,
		"code":    code.Code,
		"percent": percent,
	}).Info("Discount code issued")
	return code, nil
}

// IssueIfNoneVigente выпускает код, только если у пользователя нет действующего.
// Проверка и вставка выполняются под advisory-блокировкой пользователя,
// поэтому параллельные прогоны не выпустят второй код.
func (s *DiscountCodeService) IssueIfNoneVigente(ctx context.Context, userID int64, percent int, expiresAt *time.Time) (*models.DiscountCode, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, userID); err != nil {
		return nil, fmt.Errorf("failed to lock user codes: %w", err)
	}

	var exists bool
	existsQuery := `
		SELECT EXISTS (
			SELECT 1 FROM discount_codes
			WHERE user_id = $1 AND ` + vigenteClause(2) + `
		)
	`
	if err := tx.QueryRowContext(ctx, existsQuery, userID, s.now()).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check existing codes: %w", err)
	}
	if exists {
		return nil, ErrVigenteCodeExists
	}

	code, err := s.insertUnique(ctx, tx, userID, percent, expiresAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit discount code: %w", err)
	}

	s.log.WithFields(map[string]interface{}{
		"user_id": userID,
		"code":    code.Code,
		"percent": percent,
	}).Info("Discount code issued")
	return code, nil
}

func (s *DiscountCodeService) insertUnique(ctx context.Context, q queryer, userID int64, percent int, expiresAt *time.Time) (*models.DiscountCode, error) {
	if percent < 0 || percent > 100 {
		return nil, apperror.Validation("percent must be between 0 and 100", nil)
	}

	query := `
		INSERT INTO discount_codes (user_id, code, percent, used, created_at, expires_at, email_sent)
		VALUES ($1, $2, $3, FALSE, $4, $5, FALSE)
		ON CONFLICT (code) DO NOTHING
		RETURNING id
	`

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		value, err := s.generate()
		if err != nil {
			return nil, err
		}

		code := &models.DiscountCode{
			UserID:    userID,
			Code:      value,
			Percent:   percent,
			CreatedAt: s.now(),
			ExpiresAt: expiresAt,
		}

		err = q.QueryRowContext(ctx, query, code.UserID, code.Code, code.Percent, code.CreatedAt, code.ExpiresAt).Scan(&code.ID)
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, mapCodeWriteError(err)
		}

		s.log.WithField("attempt", attempt).Debug("Discount code collision, regenerating")
	}

	return nil, ErrCodeSpaceExhausted
}

// HasVigenteCode сообщает, есть ли у пользователя действующий код.
func (s *DiscountCodeService) HasVigenteCode(ctx context.Context, userID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM discount_codes
			WHERE user_id = $1 AND ` + vigenteClause(2) + `
		)
	`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, userID, s.now()).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check vigente codes: %w", err)
	}
	return exists, nil
}

// GetVigenteCode возвращает самый свежий действующий код пользователя.
func (s *DiscountCodeService) GetVigenteCode(ctx context.Context, userID int64) (*models.DiscountCode, error) {
	query := `SELECT ` + codeColumns + ` FROM discount_codes
		WHERE user_id = $1 AND ` + vigenteClause(2) + `
		ORDER BY created_at DESC
		LIMIT 1`

	code, err := scanCode(s.db.QueryRowContext(ctx, query, userID, s.now()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user has no valid discount code", err)
		}
		return nil, fmt.Errorf("failed to get vigente code: %w", err)
	}
	return code, nil
}

// RetireVigenteCodes помечает все действующие коды пользователя использованными.
func (s *DiscountCodeService) RetireVigenteCodes(ctx context.Context, userID int64) (int64, error) {
	now := s.now()
	query := `
		UPDATE discount_codes
		SET used = TRUE, used_at = $1
		WHERE user_id = $2 AND ` + vigenteClause(1) + `
	`
	result, err := s.db.ExecContext(ctx, query, now, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to retire codes: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		s.log.WithField("user_id", userID).WithField("retired", rows).Info("Vigente discount codes retired")
	}
	return rows, nil
}

// MarkEmailSent отмечает, что письмо с кодом доставлено провайдеру.
func (s *DiscountCodeService) MarkEmailSent(ctx context.Context, codeID int64) error {
	result, err := s.db.ExecContext(ctx, `UPDATE discount_codes SET email_sent = TRUE WHERE id = $1`, codeID)
	if err != nil {
		return fmt.Errorf("failed to mark email sent: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("discount code not found", nil)
	}
	return nil
}

// Redeem погашает код: действующий код становится использованным.
func (s *DiscountCodeService) Redeem(ctx context.Context, value string) (*models.DiscountCode, error) {
	now := s.now()
	query := `
		UPDATE discount_codes
		SET used = TRUE, used_at = $1
		WHERE code = $2 AND ` + vigenteClause(1) + `
		RETURNING ` + codeColumns

	code, err := scanCode(s.db.QueryRowContext(ctx, query, now, value))
	if err == nil {
		s.log.WithField("code", value).WithField("user_id", code.UserID).Info("Discount code redeemed")
		return code, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to redeem code: %w", err)
	}

	existing, err := s.GetByCode(ctx, value)
	if err != nil {
		return nil, err
	}
	if existing.Used {
		return nil, apperror.Conflict("discount code already used", nil)
	}
	return nil, apperror.Conflict("discount code expired", nil)
}

// GetByCode возвращает код по его значению.
func (s *DiscountCodeService) GetByCode(ctx context.Context, value string) (*models.DiscountCode, error) {
	query := `SELECT ` + codeColumns + ` FROM discount_codes WHERE code = $1`

	code, err := scanCode(s.db.QueryRowContext(ctx, query, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("discount code not found", err)
		}
		return nil, fmt.Errorf("failed to get discount code: %w", err)
	}
	return code, nil
}

// ListCodes возвращает коды, новые первыми. userID == 0 означает всех пользователей.
func (s *DiscountCodeService) ListCodes(ctx context.Context, userID int64, limit, offset int) ([]*models.DiscountCode, error) {
	if limit <= 0 {
		limit = 50
	}

	var (
		rows *sql.Rows
		err  error
	)
	if userID > 0 {
		query := `SELECT ` + codeColumns + ` FROM discount_codes WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		rows, err = s.db.QueryContext(ctx, query, userID, limit, offset)
	} else {
		query := `SELECT ` + codeColumns + ` FROM discount_codes ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		rows, err = s.db.QueryContext(ctx, query, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list discount codes: %w", err)
	}
	defer rows.Close()

	var codes []*models.DiscountCode
	for rows.Next() {
		code, err := scanCode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan discount code: %w", err)
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate discount codes: %w", err)
	}
	return codes, nil
}

// Stats считает агрегаты по кодам для панели администратора.
func (s *DiscountCodeService) Stats(ctx context.Context) (*models.DiscountCodeStats, error) {
	now := s.now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	weekAgo := now.AddDate(0, 0, -7)

	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE used),
			COUNT(*) FILTER (WHERE ` + vigenteClause(1) + `),
			COUNT(*) FILTER (WHERE created_at >= $2),
			COUNT(*) FILTER (WHERE created_at >= $3),
			COUNT(*) FILTER (WHERE email_sent)
		FROM discount_codes
	`

	stats := &models.DiscountCodeStats{}
	if err := s.db.QueryRowContext(ctx, query, now, weekAgo, startOfDay).Scan(
		&stats.Total, &stats.Used, &stats.Vigente, &stats.LastWeek, &stats.Today, &stats.EmailsSent,
	); err != nil {
		return nil, fmt.Errorf("failed to get discount code stats: %w", err)
	}

	if stats.Total > 0 {
		stats.UsageRate = math.Round(float64(stats.Used)/float64(stats.Total)*10000) / 100
	}
	stats.GeneratedAt = now.UTC().Format(time.RFC3339)
	return stats, nil
}

func scanCode(row rowScanner) (*models.DiscountCode, error) {
	code := &models.DiscountCode{}
	var (
		expiresAt sql.NullTime
		usedAt    sql.NullTime
	)
	if err := row.Scan(&code.ID, &code.UserID, &code.Code, &code.Percent, &code.Used, &code.CreatedAt, &expiresAt, &usedAt, &code.EmailSent); err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		code.ExpiresAt = &t
	}
	if usedAt.Valid {
		t := usedAt.Time
		code.UsedAt = &t
	}
	return code, nil
}

func mapCodeWriteError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23503" {
		return apperror.NotFound("user not found", err)
	}
	return fmt.Errorf("failed to insert discount code: %w", err)
}
