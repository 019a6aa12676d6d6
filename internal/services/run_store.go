package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cart-discounts/internal/apperror"
	"cart-discounts/internal/logger"
	"cart-discounts/internal/models"
	"cart-discounts/internal/redis"
)

const (
	runHistoryTTL = 30 * 24 * time.Hour
	runLockTTL    = 30 * time.Minute
	latestRunKey  = "latest"
	batchLockName = "batch"
)

type runRedis interface {
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest interface{}) error
	TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key, token string) error
}

// RunStore хранит итоги прогонов в Redis и держит межпроцессную блокировку рассылки.
type RunStore struct {
	redis runRedis
	log   *logger.Logger
}

// NewRunStore создаёт хранилище итогов прогонов.
func NewRunStore(redisClient *redis.Client, log *logger.Logger) *RunStore {
	return &RunStore{redis: redisClient, log: log}
}

// SaveLastRun сохраняет итог прогона по его источнику и как последний общий.
func (r *RunStore) SaveLastRun(ctx context.Context, summary *models.ScanSummary) error {
	if summary == nil {
		return nil
	}
	for _, id := range []string{string(summary.Source), latestRunKey} {
		if err := r.redis.SetJSON(ctx, redis.GenerateKey(redis.KeyPrefixScanRun, id), summary, runHistoryTTL); err != nil {
			return fmt.Errorf("failed to save scan summary: %w", err)
		}
	}
	return nil
}

// LastRun возвращает итог последнего прогона источника; пустой source означает любой источник.
func (r *RunStore) LastRun(ctx context.Context, source models.TriggerSource) (*models.ScanSummary, error) {
	id := string(source)
	if id == "" {
		id = latestRunKey
	}

	summary := &models.ScanSummary{}
	if err := r.redis.GetJSON(ctx, redis.GenerateKey(redis.KeyPrefixScanRun, id), summary); err != nil {
		if errors.Is(err, redis.ErrNotFound) {
			return nil, apperror.NotFound("no scan runs recorded", err)
		}
		return nil, apperror.Unavailable("scan run history is unavailable", err)
	}
	return summary, nil
}

// Acquire захватывает блокировку пакетной рассылки. release снимает её.
func (r *RunStore) Acquire(ctx context.Context, owner string) (func(), bool, error) {
	key := redis.GenerateKey(redis.KeyPrefixScanLock, batchLockName)
	acquired, err := r.redis.TryLock(ctx, key, owner, runLockTTL)
	if err != nil || !acquired {
		return nil, acquired, err
	}

	release := func() {
		if err := r.redis.Unlock(context.Background(), key, owner); err != nil {
			r.log.WithError(err).WithField("owner", owner).Warn("Failed to release scan lock")
		}
	}
	return release, true, nil
}
