// Команда send-discount-codes запускает рассылку кодов вручную.
//
//	send-discount-codes --dry-run
//	send-discount-codes --force
//
// Коды, выпущенные командой, действуют DISCOUNT_MANUAL_EXPIRY_DAYS дней.
// Redis и Kafka необязательны: без Redis нет межпроцессной блокировки и
// истории прогонов, без Kafka не публикуются события.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cart-discounts/internal/config"
	"cart-discounts/internal/database"
	"cart-discounts/internal/kafka"
	"cart-discounts/internal/logger"
	"cart-discounts/internal/models"
	"cart-discounts/internal/notification"
	"cart-discounts/internal/redis"
	"cart-discounts/internal/services"
)

type options struct {
	dryRun bool
	force  bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("send-discount-codes", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVar(&opts.dryRun, "dry-run", false, "list candidates without issuing codes or sending emails")
	fs.BoolVar(&opts.force, "force", false, "issue a new code even if the user already holds a valid one")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(2)
	}

	// сигнал во время прогона не обрывает рассылку: прогон доходит до конца и печатает итог
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "send-discount-codes: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, out io.Writer) error {
	cfg := config.Load()
	log := logger.New(&cfg.Logger)

	db, err := database.Connect(&cfg.Database, log)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer db.Close()

	notifier, err := notification.New(&cfg.Notification, log)
	if err != nil {
		return fmt.Errorf("notification gateway: %w", err)
	}

	configService := services.NewDiscountConfigService(db, log)
	cartService := services.NewCartService(db, log)
	codeService := services.NewDiscountCodeService(db, log, cfg.Discount.MaxCodeAttempts)
	userService := services.NewUserService(db)

	manualExpiry := time.Duration(cfg.Discount.ManualExpiryDays) * 24 * time.Hour
	scan := services.NewScanService(configService, cartService, codeService, userService, notifier, log, manualExpiry)

	if redisClient, err := redis.Connect(&cfg.Redis, log); err != nil {
		log.WithError(err).Warn("Redis unavailable: running without lock and run history")
	} else {
		defer redisClient.Close()
		scan.SetRunRecorder(services.NewRunStore(redisClient, log))
	}

	if !opts.dryRun {
		if producer, err := kafka.NewProducer(&cfg.Kafka, log); err != nil {
			log.WithError(err).Warn("Kafka unavailable: events will not be published")
		} else {
			defer producer.Close()
			scan.SetPublisher(producer)
		}
	}

	summary, err := scan.Run(ctx, models.ScanOptions{
		Source: models.TriggerCommand,
		DryRun: opts.dryRun,
		Force:  opts.force,
	})
	if summary != nil {
		printSummary(out, summary)
	}
	return err
}

func printSummary(w io.Writer, s *models.ScanSummary) {
	if s.Disabled {
		fmt.Fprintln(w, "No active discount configuration. Nothing to do.")
		return
	}

	if s.DryRun {
		fmt.Fprintf(w, "DRY RUN: %d user(s) would receive a discount code\n", len(s.DryRunUsers))
		for _, c := range s.DryRunUsers {
			fmt.Fprintf(w, "  - user %d <%s> @%s, %d item(s) in cart\n", c.UserID, c.Email, c.InstagramAccount, c.CartItems)
		}
		fmt.Fprintf(w, "Skipped: %d\n", s.Skipped)
		return
	}

	fmt.Fprintf(w, "Candidates:   %d\n", s.Candidates)
	fmt.Fprintf(w, "Codes issued: %d\n", s.CodesIssued)
	fmt.Fprintf(w, "Emails sent:  %d\n", s.EmailsSent)
	fmt.Fprintf(w, "Skipped:      %d\n", s.Skipped)
	fmt.Fprintf(w, "Errors:       %d\n", s.Errors)
	if !s.FinishedAt.IsZero() {
		fmt.Fprintf(w, "Duration:     %s\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	}
}
