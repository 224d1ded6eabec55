package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"

	_ "github.com/optifire/inspection-api/api/swagger"
	"github.com/optifire/inspection-api/internal/handler"
	"github.com/optifire/inspection-api/internal/repository"
	"github.com/optifire/inspection-api/internal/service"
	"github.com/optifire/inspection-api/pkg/cache"
	"github.com/optifire/inspection-api/pkg/config"
	"github.com/optifire/inspection-api/pkg/database"
	"github.com/optifire/inspection-api/pkg/jobs"
	"github.com/optifire/inspection-api/pkg/logger"
	"github.com/optifire/inspection-api/pkg/mailer"
	"github.com/optifire/inspection-api/pkg/storage"
)

// @title Inspection API
// @version 1.0.0
// @description Workflow engine for fire-safety inspection services
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	evidenceStore, err := storage.NewLocalStorage(cfg.Evidence.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init evidence storage", "error", err)
	}
	reportStore, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init report storage", "error", err)
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	templateRepo := repository.NewTemplateRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	smtp := mailer.NewSMTP(cfg.SMTP)
	mailQueue := jobs.NewQueue("mail", func(ctx context.Context, job jobs.Job) error {
		payload, ok := job.Payload.(service.EmailPayload)
		if !ok {
			return fmt.Errorf("unexpected mail payload type %T", job.Payload)
		}
		if err := smtp.Send(payload.To, payload.Subject, payload.Body); err != nil {
			metricsSvc.RecordMail("failure")
			return err
		}
		metricsSvc.RecordMail("success")
		return nil
	}, jobs.QueueConfig{
		Workers:    cfg.Notifications.EmailWorkers,
		MaxRetries: cfg.Notifications.EmailRetries,
		RetryDelay: cfg.Notifications.EmailRetryDelay,
		Logger:     logr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mailQueue.Start(ctx)
	defer mailQueue.Stop()

	notifier := service.NewNotifier(notificationRepo, userRepo, mailQueue, logr)

	authSvc := service.NewAuthService(userRepo, validate, logr, mailQueue, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "inspection-api",
		ResetBaseURL:       cfg.BaseURL,
	})
	requestSvc := service.NewRequestService(requestRepo, templateRepo, orderRepo, userRepo, notifier, validate, logr,
		service.WithRequestMetrics(metricsSvc))
	orderSvc := service.NewOrderService(orderRepo, requestRepo, userRepo, notifier, validate, logr,
		service.WithEvidenceVault(evidenceStore),
		service.WithReportVault(reportStore),
		service.WithReportSigner(storage.NewSignedURLSigner(cfg.Evidence.SignedURLSecret, cfg.Evidence.SignedURLTTL)),
		service.WithOrderMetrics(metricsSvc),
	)
	templateSvc := service.NewTemplateService(templateRepo, validate, logr)
	notificationSvc := service.NewNotificationService(notificationRepo, redisClient, cfg.Notifications.UnreadCacheTTL, logr)
	userSvc := service.NewUserService(userRepo, orderRepo, validate, logr)

	router := handler.NewRouter(handler.RouterDeps{
		Config:        cfg,
		Logger:        logr,
		AuthService:   authSvc,
		Metrics:       metricsSvc,
		Auth:          handler.NewAuthHandler(authSvc),
		Requests:      handler.NewRequestHandler(requestSvc),
		Orders:        handler.NewOrderHandler(orderSvc, cfg.Evidence.MaxFileSizeBytes),
		Templates:     handler.NewTemplateHandler(templateSvc),
		Notifications: handler.NewNotificationHandler(notificationSvc),
		Users:         handler.NewUserHandler(userSvc),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
