package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cart-discounts/internal/logger"
	"cart-discounts/internal/models"
	"cart-discounts/internal/services"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DailySpec - ежедневный запуск рассылки в 10:00 по часовому поясу планировщика.
const DailySpec = "0 10 * * *"

// ConfigReader отдаёт активную конфигурацию рассылки.
type ConfigReader interface {
	GetActive(ctx context.Context) (*models.DiscountConfiguration, error)
}

// Runner выполняет прогон рассылки.
type Runner interface {
	Run(ctx context.Context, opts models.ScanOptions) (*models.ScanSummary, error)
}

// Status описывает состояние планировщика.
type Status struct {
	Running       bool       `json:"running"`
	ScheduledJobs int        `json:"scheduled_jobs"`
	NextRun       *time.Time `json:"next_run,omitempty"`
	Timezone      string     `json:"timezone"`
	Spec          string     `json:"spec"`
}

// Scheduler запускает ежедневную рассылку. Одновременно выполняется не больше одного прогона.
type Scheduler struct {
	mu       sync.Mutex
	configs  ConfigReader
	runner   Runner
	log      *logger.Logger
	loc      *time.Location
	schedule cron.Schedule

	cron    *cron.Cron
	entryID cron.EntryID
	running bool
	stopped context.Context

	now func() time.Time
}

// New создаёт остановленный планировщик.
func New(configs ConfigReader, runner Runner, loc *time.Location, log *logger.Logger) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(DailySpec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", DailySpec, err)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		configs:  configs,
		runner:   runner,
		log:      log,
		loc:      loc,
		schedule: schedule,
		now:      time.Now,
	}, nil
}

// LoadLocation загружает часовой пояс; при ошибке используется локальный.
func LoadLocation(name string, log *logger.Logger) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.WithError(err).WithField("timezone", name).Warn("Unknown scheduler timezone, using local time")
		return time.Local
	}
	return loc
}

// Start запускает планировщик, если есть активная конфигурация.
// Повторный вызов на работающем планировщике ничего не меняет.
func (s *Scheduler) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.log.Debug("Scheduler already running")
		return true
	}

	cfg, err := s.configs.GetActive(ctx)
	if err != nil {
		if errors.Is(err, services.ErrNoActiveConfiguration) {
			s.log.Warn("No active discount configuration, scheduler not started")
		} else {
			s.log.WithError(err).Error("Failed to read discount configuration, scheduler not started")
		}
		return false
	}
	if cfg == nil || !cfg.Active {
		s.log.Warn("No active discount configuration, scheduler not started")
		return false
	}

	cl := cronLogger{log: s.log}
	c := cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	s.entryID = c.Schedule(s.schedule, cron.FuncJob(s.runScheduled))
	c.Start()

	s.cron = c
	s.running = true

	s.log.WithFields(logrus.Fields{
		"spec":             DailySpec,
		"timezone":         s.loc.String(),
		"next_run":         s.schedule.Next(s.now().In(s.loc)),
		"inactivity_days":  cfg.InactivityDays,
		"discount_percent": cfg.DiscountPercent,
	}).Info("Scheduler started")
	return true
}

// Stop снимает задание и останавливает планировщик. Уже идущий прогон доработает до конца.
// Результат сообщает, был ли планировщик запущен; остановка остановленного планировщика
// ничего не делает и не считается ошибкой.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return false
	}

	s.cron.Remove(s.entryID)
	s.stopped = s.cron.Stop()
	s.running = false

	s.log.Info("Scheduler stopped")
	return true
}

// Restart перезапускает планировщик с актуальной конфигурацией.
func (s *Scheduler) Restart(ctx context.Context) bool {
	s.Stop()
	return s.Start(ctx)
}

// Shutdown останавливает планировщик и ждёт завершения идущего прогона.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.Stop()

	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped == nil {
		return nil
	}

	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler shutdown: %w", ctx.Err())
	}
}

// Status возвращает текущее состояние планировщика.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{
		Running:  s.running,
		Timezone: s.loc.String(),
		Spec:     DailySpec,
	}
	if !s.running {
		return status
	}

	status.ScheduledJobs = len(s.cron.Entries())
	next := s.schedule.Next(s.now().In(s.loc))
	status.NextRun = &next
	return status
}

func (s *Scheduler) runScheduled() {
	summary, err := s.runner.Run(context.Background(), models.ScanOptions{Source: models.TriggerScheduled})
	if err != nil {
		s.log.WithError(err).Error("Scheduled discount scan failed")
		return
	}
	if summary.Disabled {
		s.log.Info("Scheduled discount scan skipped: no active configuration")
		return
	}
	s.log.WithFields(logrus.Fields{
		"candidates":  summary.Candidates,
		"emails_sent": summary.EmailsSent,
		"errors":      summary.Errors,
	}).Info("Scheduled discount scan completed")
}

// cronLogger направляет журнал cron в logrus.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(toFields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithError(err).WithFields(toFields(keysAndValues)).Error("cron: " + msg)
}

func toFields(keysAndValues []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
