package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cart-discounts/internal/config"
	"cart-discounts/internal/database"
	"cart-discounts/internal/handlers"
	"cart-discounts/internal/kafka"
	"cart-discounts/internal/logger"
	"cart-discounts/internal/notification"
	"cart-discounts/internal/redis"
	"cart-discounts/internal/scheduler"
	"cart-discounts/internal/services"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Фабричные функции для подключения внешних сервисов (подменяемые в тестах).
var (
	dbConnect        = database.Connect
	redisConnect     = redis.Connect
	newKafkaProducer = kafka.NewProducer
	newKafkaConsumer = kafka.NewConsumer
	kafkaHealthCheck = handlers.CheckKafkaHealth
	newNotifier      = notification.New
	loadConfig       = config.Load
	newLogger        = logger.New
)

// application агрегирует собранные зависимости.
type application struct {
	cfg       *config.Config
	log       *logger.Logger
	db        *database.DB
	redis     *redis.Client
	producer  *kafka.Producer
	consumer  *kafka.Consumer
	scheduler *scheduler.Scheduler
	server    *http.Server
}

func main() {
	app, err := buildApplication()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build app: %v\n", err)
		os.Exit(1)
	}
	app.log.Info("Starting cart discounts server...")

	if app.cfg.Scheduler.Enabled {
		app.scheduler.Start(context.Background())
	} else {
		app.log.Info("Scheduler disabled by configuration")
	}

	go func() {
		app.log.WithField("address", app.server.Addr).Info("HTTP server starting")
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	app.log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	app.shutdown(ctx)
	app.log.Info("Server exited")
}

// buildApplication создает все зависимости (подменяемые в тестах).
func buildApplication() (*application, error) {
	cfg := loadConfig()
	log := newLogger(&cfg.Logger)

	db, err := dbConnect(&cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}

	migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.Migrate(migrateCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db migrate: %w", err)
	}

	redisClient, err := redisConnect(&cfg.Redis, log)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("redis connect: %w", err)
	}

	var (
		producer *kafka.Producer
		consumer *kafka.Consumer
	)
	cleanup := func() {
		_ = consumer.Stop()
		_ = producer.Close()
		_ = redisClient.Close()
		_ = db.Close()
	}

	if cfg.Kafka.Enabled() {
		producer, err = newKafkaProducer(&cfg.Kafka, log)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("kafka producer: %w", err)
		}

		consumer, err = newKafkaConsumer(&cfg.Kafka, log)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("kafka consumer: %w", err)
		}
	} else {
		log.Warn("Kafka disabled: events are not published, cart activity comes only from the API")
	}

	notifier, err := newNotifier(&cfg.Notification, log)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("notification gateway: %w", err)
	}

	configService := services.NewDiscountConfigService(db, log)
	cartService := services.NewCartService(db, log)
	codeService := services.NewDiscountCodeService(db, log, cfg.Discount.MaxCodeAttempts)
	userService := services.NewUserService(db)
	runStore := services.NewRunStore(redisClient, log)
	rateLimiter := services.NewRateLimiter(redisClient, log, &cfg.RateLimit)

	manualExpiry := time.Duration(cfg.Discount.ManualExpiryDays) * 24 * time.Hour
	scanService := services.NewScanService(configService, cartService, codeService, userService, notifier, log, manualExpiry)
	scanService.SetRunRecorder(runStore)
	if producer != nil {
		scanService.SetPublisher(producer)
	}

	sched, err := scheduler.New(configService, scanService, scheduler.LoadLocation(cfg.Scheduler.Timezone, log), log)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("scheduler: %w", err)
	}

	if consumer != nil {
		kafka.RegisterCartHandlers(consumer, cartService, log)
		if err := consumer.Start(); err != nil {
			cleanup()
			return nil, fmt.Errorf("kafka consumer start: %w", err)
		}
	}

	deps := handlers.RouterDeps{
		Health:       handlers.NewHealthHandler(db, redisClient, cfg.Kafka.Brokers, kafkaHealthCheck),
		RateLimit:    handlers.NewRateLimitHandler(rateLimiter, log, &cfg.RateLimit),
		Limiter:      rateLimiter,
		Configs:      handlers.NewDiscountConfigHandler(configService, sched, log),
		Carts:        handlers.NewCartHandler(cartService, log),
		Codes:        handlers.NewDiscountCodeHandler(codeService, configService, log, manualExpiry),
		Scan:         handlers.NewScanHandler(scanService, runStore, log),
		Scheduler:    handlers.NewSchedulerHandler(sched, log),
		Notification: handlers.NewNotificationHandler(&cfg.Notification),
		Log:          log,
	}
	if cfg.Metrics.Enabled {
		deps.MetricsPath = cfg.Metrics.Path
		deps.MetricsHandler = promhttp.Handler()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      handlers.NewRouter(deps),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	return &application{
		cfg:       cfg,
		log:       log,
		db:        db,
		redis:     redisClient,
		producer:  producer,
		consumer:  consumer,
		scheduler: sched,
		server:    server,
	}, nil
}

// shutdown останавливает приём запросов и планировщик, затем закрывает подключения.
func (a *application) shutdown(ctx context.Context) {
	if err := a.server.Shutdown(ctx); err != nil {
		a.log.WithError(err).Error("Server forced to shutdown")
	}
	if err := a.scheduler.Shutdown(ctx); err != nil {
		a.log.WithError(err).Warn("Scheduled scan did not finish before shutdown")
	}
	_ = a.consumer.Stop()
	_ = a.producer.Close()
	_ = a.redis.Close()
	_ = a.db.Close()
}
