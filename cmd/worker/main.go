package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nexport-erp/nexport-erp/internal/app"
	jobmetrics "github.com/nexport-erp/nexport-erp/internal/jobs"
	"github.com/nexport-erp/nexport-erp/internal/platform/cache"
	"github.com/nexport-erp/nexport-erp/internal/platform/db"
	"github.com/nexport-erp/nexport-erp/internal/platform/mail"
	"github.com/nexport-erp/nexport-erp/internal/replenish"
	"github.com/nexport-erp/nexport-erp/internal/settlement"
	"github.com/nexport-erp/nexport-erp/internal/shared"
	"github.com/nexport-erp/nexport-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
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
	metrics := jobmetrics.NewMetrics(nil)

	var sender settlement.Sender
	if cfg.SMTPHost == "" {
		sender = mail.LogSender{Logger: logger}
	} else {
		sender = mail.NewSender(mail.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}, logger)
	}

	settlementRepo := settlement.NewRepository(pool)
	settlementService := settlement.NewService(settlementRepo, sender, auditLogger, settings, logger)

	replenishRepo := replenish.NewRepository(pool)
	replenishService := replenish.NewService(replenishRepo, logger)

	mailJob := &jobs.MailJob{Sender: sender, Logger: logger}
	overdueJob := &jobs.MarkOverdueJob{Settlement: settlementService, Logger: logger, Metrics: metrics}
	remindersJob := &jobs.RemindersJob{Settlement: settlementService, Logger: logger, Metrics: metrics}
	scanJob := &jobs.ReplenishScanJob{Replenish: replenishService, Logger: logger, Metrics: metrics}

	now := time.Now().UTC()
	overdueTask, err := jobs.NewMarkOverdueTask(now)
	if err != nil {
		logger.Error("build overdue task", slog.Any("error", err))
		os.Exit(1)
	}
	remindersTask, err := jobs.NewRemindersTask(now)
	if err != nil {
		logger.Error("build reminders task", slog.Any("error", err))
		os.Exit(1)
	}
	scanTask, err := jobs.NewReplenishScanTask(now)
	if err != nil {
		logger.Error("build replenish task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSendEmail, Handler: mailJob.Handle},
			{Type: jobs.TaskTypeMarkOverdue, Handler: overdueJob.Handle},
			{Type: jobs.TaskTypeReminders, Handler: remindersJob.Handle},
			{Type: jobs.TaskTypeReplenishScan, Handler: scanJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 1 * * *", Task: overdueTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 1 * * *", Task: remindersTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 2 * * *", Task: scanTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("configure worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker starting", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("worker exited", slog.Any("error", err))
		os.Exit(1)
	}
}
