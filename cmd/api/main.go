package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/careslot/careslot-platform/internal/api/router"
	"github.com/careslot/careslot-platform/internal/appointments"
	"github.com/careslot/careslot-platform/internal/audit"
	"github.com/careslot/careslot-platform/internal/claims"
	appconfig "github.com/careslot/careslot-platform/internal/config"
	"github.com/careslot/careslot-platform/internal/confirmation"
	"github.com/careslot/careslot-platform/internal/doctors"
	"github.com/careslot/careslot-platform/internal/events"
	"github.com/careslot/careslot-platform/internal/http/handlers"
	"github.com/careslot/careslot-platform/internal/ledger"
	"github.com/careslot/careslot-platform/internal/notify"
	"github.com/careslot/careslot-platform/internal/observability/metrics"
	"github.com/careslot/careslot-platform/internal/patients"
	"github.com/careslot/careslot-platform/internal/payments"
	"github.com/careslot/careslot-platform/internal/video"
	"github.com/careslot/careslot-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting careslot settlement API",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create pgx pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// The audit trail runs on database/sql; everything else uses pgx natively.
	auditDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open audit db", "error", err)
		os.Exit(1)
	}
	defer func() { _ = auditDB.Close() }()

	registry := prometheus.NewRegistry()
	settlementMetrics := metrics.NewSettlementMetrics(registry)

	// Stores
	apptRepo := appointments.NewRepository(pool)
	doctorRepo := doctors.NewRepository(pool)
	patientRepo := patients.NewRepository(pool)
	processedStore := events.NewProcessedStore(pool)
	outboxStore := events.NewOutboxStore(pool)
	auditSvc := audit.NewService(auditDB)

	// External collaborators
	gatewayClient := payments.NewGatewayClient(cfg.GatewayAPIKey, cfg.GatewayBaseURL, logger)
	refundClient := payments.NewRefundClient(cfg.GatewayAPIKey, cfg.GatewayBaseURL, logger)
	videoClient := video.NewClient(cfg.VideoAPIKey, cfg.VideoBaseURL, logger)
	ledgerClient := ledger.NewClient(cfg.LedgerAPIKey, cfg.LedgerBaseURL, logger)
	ledgerRecorder := ledger.NewRecorder(ledgerClient, settlementMetrics, logger).
		WithAttempts(cfg.LedgerRetryAttempts).
		WithBaseDelay(cfg.LedgerRetryBaseDelay)
	placeholder := ledger.Address(cfg.LedgerCustodyAddress)

	// Notifications are optional; the stub keeps the wiring alive in dev.
	var emailSender notify.EmailSender = notify.NewStubEmailSender(logger)
	if cfg.NotificationsOn {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		if sender := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.NotifyFromEmail,
			FromName:  cfg.NotifyFromName,
		}, logger); sender != nil {
			emailSender = sender
		}
	}
	notifySvc := notify.NewService(emailSender, logger)

	// Workflows
	apptSvc := appointments.NewService(apptRepo, doctorRepo, patientRepo, gatewayClient, refundClient, ledgerRecorder, auditSvc, settlementMetrics, logger).
		WithNotifier(notifySvc).
		WithFeePercent(cfg.PlatformFeePercent).
		WithDefaultDuration(cfg.DefaultDurationMins)
	claimSvc := claims.NewService(apptRepo, patientRepo, doctorRepo, ledgerRecorder, auditSvc, placeholder, logger)
	saga := confirmation.NewSaga(apptRepo, videoClient, ledgerRecorder, doctorRepo, patientRepo, auditSvc, settlementMetrics, placeholder, logger).
		WithStepTimeout(cfg.SagaStepTimeout)

	// The deliverer drains the outbox and drives the confirmation saga.
	deliverer := events.NewDeliverer(outboxStore, saga, logger).
		WithInterval(cfg.OutboxPollInterval)
	go deliverer.Start(ctx)

	// Surfaces slot holds whose payment-intent creation failed.
	sweeper := appointments.NewOrphanSweeper(apptRepo, settlementMetrics, logger).
		WithInterval(cfg.OrphanSweepInterval).
		WithMaxAge(cfg.OrphanMaxAge)
	go sweeper.Start(ctx)

	// HTTP surface
	webhookHandler := payments.NewWebhookHandler(
		cfg.GatewayWebhookSecret,
		processedStore,
		outboxStore,
		apptRepo,
		auditSvc,
		settlementMetrics,
		logger,
	)
	routerCfg := &router.Config{
		Logger:             logger,
		Appointments:       handlers.NewAppointmentsHandler(apptSvc, logger).WithAuditReader(auditSvc),
		Claims:             handlers.NewClaimsHandler(claimSvc, patientRepo, logger),
		GatewayWebhook:     webhookHandler,
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}
	r := router.New(routerCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
