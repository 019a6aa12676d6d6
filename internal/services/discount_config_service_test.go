package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"cart-discounts/internal/apperror"
	"cart-discounts/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
)

var configRowColumns = []string{"id", "inactivity_days", "discount_percent", "active", "created_at", "updated_at"}

func TestDiscountConfigService_GetActive(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	service := NewDiscountConfigService(db, newTestLogger())
	now := time.Now()

	mock.ExpectQuery("FROM discount_configurations WHERE active = TRUE").
		WillReturnRows(sqlmock.NewRows(configRowColumns).AddRow(int64(3), 7, 15, true, now, now))

	cfg, err := service.GetActive(context.Background())
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if cfg.ID != 3 || cfg.InactivityDays != 7 || cfg.DiscountPercent != 15 || !cfg.Active {
		t.Fatalf("unexpected configuration: %+v", cfg)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDiscountConfigService_GetActive_None(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	service := NewDiscountConfigService(db, newTestLogger())

	mock.ExpectQuery("FROM discount_configurations WHERE active = TRUE").
		WillReturnRows(sqlmock.NewRows(configRowColumns))

	cfg, err := service.GetActive(context.Background())
	if !errors.Is(err, ErrNoActiveConfiguration) {
		t.Fatalf("expected ErrNoActiveConfiguration, got %v", err)
	}
	if cfg != nil {
		t.Fatalf("expected nil configuration, got %+v", cfg)
	}
}

func TestDiscountConfigService_CreateActive_DeactivatesOthers(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	service := NewDiscountConfigService(db, newTestLogger())
	service.now = fixedClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE discount_configurations").
		WithArgs(sqlmock.AnyArg(), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO discount_configurations").
		WithArgs(10, 20, true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))
	mock.ExpectCommit()

	cfg, err := service.CreateConfiguration(context.Background(), &models.DiscountConfigurationRequest{
		InactivityDays:  10,
		DiscountPercent: 20,
		Active:          true,
	})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if cfg.ID != 5 || !cfg.Active {
		t.Fatalf("unexpected configuration: %+v", cfg)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDiscountConfigService_CreateInactive_KeepsOthers(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	service := NewDiscountConfigService(db, newTestLogger())

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO discount_configurations").
		WithArgs(3, 0, false, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(6)))
	mock.ExpectCommit()

	cfg, err := service.CreateConfiguration(context.Background(), &models.DiscountConfigurationRequest{
		InactivityDays:  3,
		DiscountPercent: 0,
	})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if cfg.Active {
		t.Fatalf("expected inactive configuration")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDiscountConfigService_Create_Invalid(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	service := NewDiscountConfigService(db, newTestLogger())

	cases := []*models.DiscountConfigurationRequest{
		nil,
		{InactivityDays: 0, DiscountPercent: 10},
		{InactivityDays: 5, DiscountPercent: 101},
		{InactivityDays: 5, DiscountPercent: -1},
	}
	for _, req := range cases {
		if _, err := service.CreateConfiguration(context.Background(), req); !apperror.Is(err, apperror.KindValidation) {
			t.Fatalf("expected validation error for %+v, got %v", req, err)
		}
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected database calls: %v", err)
	}
}

func TestDiscountConfigService_Update(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	service := NewDiscountConfigService(db, newTestLogger())
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE discount_configurations").
		WithArgs(sqlmock.AnyArg(), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("UPDATE discount_configurations").
		WithArgs(14, 25, true, sqlmock.AnyArg(), int64(2)).
		WillReturnRows(sqlmock.NewRows(configRowColumns).AddRow(int64(2), 14, 25, true, now, now))
	mock.ExpectCommit()

	cfg, err := service.UpdateConfiguration(context.Background(), 2, &models.DiscountConfigurationRequest{
		InactivityDays:  14,
		DiscountPercent: 25,
		Active:          true,
	})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if cfg.InactivityDays != 14 || cfg.DiscountPercent != 25 {
		t.Fatalf("unexpected configuration: %+v", cfg)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDiscountConfigService_SetActive_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	service := NewDiscountConfigService(db, newTestLogger())

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE discount_configurations").
		WithArgs(sqlmock.AnyArg(), int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("UPDATE discount_configurations").
		WithArgs(sqlmock.AnyArg(), int64(99)).
		WillReturnRows(sqlmock.NewRows(configRowColumns))
	mock.ExpectRollback()

	if _, err := service.SetActive(context.Background(), 99); !apperror.Is(err, apperror.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDiscountConfigService_SetActive_ConcurrentActivation(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	service := NewDiscountConfigService(db, newTestLogger())

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE discount_configurations").
		WithArgs(sqlmock.AnyArg(), int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("UPDATE discount_configurations").
		WithArgs(sqlmock.AnyArg(), int64(4)).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	if _, err := service.SetActive(context.Background(), 4); !apperror.Is(err, apperror.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDiscountConfigService_Delete(t *testing.T) {
	t.Run("active refused", func(t *testing.T) {
		db, mock := newMockDB(t)
		defer db.Close()
		service := NewDiscountConfigService(db, newTestLogger())

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT active FROM discount_configurations").
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"active"}).AddRow(true))
		mock.ExpectRollback()

		if err := service.DeleteConfiguration(context.Background(), 1); !apperror.Is(err, apperror.KindConflict) {
			t.Fatalf("expected conflict, got %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
	})

	t.Run("inactive deleted", func(t *testing.T) {
		db, mock := newMockDB(t)
		defer db.Close()
		service := NewDiscountConfigService(db, newTestLogger())

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT active FROM discount_configurations").
			WithArgs(int64(2)).
			WillReturnRows(sqlmock.NewRows([]string{"active"}).AddRow(false))
		mock.ExpectExec("DELETE FROM discount_configurations").
			WithArgs(int64(2)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		if err := service.DeleteConfiguration(context.Background(), 2); err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
	})

	t.Run("missing", func(t *testing.T) {
		db, mock := newMockDB(t)
		defer db.Close()
		service := NewDiscountConfigService(db, newTestLogger())

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT active FROM discount_configurations").
			WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"active"}))
		mock.ExpectRollback()

		if err := service.DeleteConfiguration(context.Background(), 3); !apperror.Is(err, apperror.KindNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})
}

func TestDiscountConfigService_List(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	service := NewDiscountConfigService(db, newTestLogger())
	now := time.Now()

	mock.ExpectQuery("FROM discount_configurations ORDER BY created_at DESC").
		WillReturnRows(sqlmock.NewRows(configRowColumns).
			AddRow(int64(2), 5, 10, true, now, now).
			AddRow(int64(1), 3, 5, false, now, now))

	configs, err := service.ListConfigurations(context.Background())
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if len(configs) != 2 || configs[0].ID != 2 {
		t.Fatalf("unexpected configurations: %+v", configs)
	}
}
