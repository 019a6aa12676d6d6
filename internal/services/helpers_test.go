package services

import (
	"testing"
	"time"

	"cart-discounts/internal/config"
	"cart-discounts/internal/database"
	"cart-discounts/internal/logger"

	"github.com/DATA-DOG/go-sqlmock"
)

func newTestLogger() *logger.Logger {
	return logger.New(&config.LoggerConfig{Level: "debug", Format: "json"})
}

func newMockDB(t *testing.T) (*database.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	return &database.DB{DB: db}, mock
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
