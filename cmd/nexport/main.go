package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/nexport-erp/nexport-erp/cmd/nexport/cli"
	"github.com/nexport-erp/nexport-erp/internal/app"
	"github.com/nexport-erp/nexport-erp/internal/audit"
	"github.com/nexport-erp/nexport-erp/internal/customs"
	"github.com/nexport-erp/nexport-erp/internal/ledger"
	"github.com/nexport-erp/nexport-erp/internal/observability"
	"github.com/nexport-erp/nexport-erp/internal/platform/cache"
	"github.com/nexport-erp/nexport-erp/internal/platform/db"
	"github.com/nexport-erp/nexport-erp/internal/platform/mail"
	"github.com/nexport-erp/nexport-erp/internal/receiving"
	"github.com/nexport-erp/nexport-erp/internal/replenish"
	"github.com/nexport-erp/nexport-erp/internal/reservation"
	"github.com/nexport-erp/nexport-erp/internal/settlement"
	"github.com/nexport-erp/nexport-erp/internal/shared"
	"github.com/nexport-erp/nexport-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	trigger := flag.String("trigger", "", "enqueue a background job by task type and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if *trigger != "" {
		if err := triggerJob(ctx, cfg.RedisAddr, *trigger); err != nil {
			logger.Error("trigger job", slog.String("job", *trigger), slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("job enqueued", slog.String("job", *trigger))
		return
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	settings := cfg.Settings()
	auditLogger := shared.NewAuditLogger(pool)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger, logger)
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	customsRepo := customs.NewRepository(pool)
	customsService := customs.NewService(customsRepo, auditLogger, logger)
	customsHandler := customs.NewHandler(logger, customsService)

	receivingRepo := receiving.NewRepository(pool)
	overReceipts := receiving.NewNoticeRecorder(pool, logger)
	receivingService := receiving.NewService(receivingRepo, overReceipts, auditLogger, settings, logger)
	receivingHandler := receiving.NewHandler(logger, receivingService)

	reservationRepo := reservation.NewRepository(pool)
	availabilityCache := reservation.NewCache(redisClient, cfg.AvailabilityCacheTTL)
	reservationService := reservation.NewService(reservationRepo, availabilityCache, auditLogger, logger)
	reservationHandler := reservation.NewHandler(logger, reservationService)

	sender := newSender(cfg, logger)
	settlementRepo := settlement.NewRepository(pool)
	settlementService := settlement.NewService(settlementRepo, sender, auditLogger, settings, logger)
	settlementHandler := settlement.NewHandler(logger, settlementService)

	replenishRepo := replenish.NewRepository(pool)
	replenishService := replenish.NewService(replenishRepo, logger)
	replenishHandler := replenish.NewHandler(logger, replenishService)

	auditService := audit.NewService(audit.NewRepository(pool))
	auditHandler := audit.NewHandler(logger, auditService)

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		LedgerHandler:      ledgerHandler,
		CustomsHandler:     customsHandler,
		ReceivingHandler:   receivingHandler,
		ReservationHandler: reservationHandler,
		SettlementHandler:  settlementHandler,
		ReplenishHandler:   replenishHandler,
		AuditHandler:       auditHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func triggerJob(ctx context.Context, redisAddr, name string) error {
	jobsCLI, err := cli.NewJobsCLI(redisAddr)
	if err != nil {
		return err
	}
	defer func() { _ = jobsCLI.Close() }()
	_, err = jobsCLI.Trigger(ctx, name)
	return err
}

func newSender(cfg *app.Config, logger *slog.Logger) settlement.Sender {
	if cfg.SMTPHost == "" {
		return mail.LogSender{Logger: logger}
	}
	return mail.NewSender(mail.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}, logger)
}
