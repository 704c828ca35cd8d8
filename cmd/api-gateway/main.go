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

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/academy-api/api/swagger"
	"github.com/noah-isme/academy-api/internal/handler"
	"github.com/noah-isme/academy-api/internal/repository"
	"github.com/noah-isme/academy-api/internal/router"
	"github.com/noah-isme/academy-api/internal/service"
	"github.com/noah-isme/academy-api/pkg/cache"
	"github.com/noah-isme/academy-api/pkg/config"
	"github.com/noah-isme/academy-api/pkg/database"
	"github.com/noah-isme/academy-api/pkg/export"
	"github.com/noah-isme/academy-api/pkg/jobs"
	"github.com/noah-isme/academy-api/pkg/logger"
	"github.com/noah-isme/academy-api/pkg/mailer"
	"github.com/noah-isme/academy-api/pkg/storage"
)

// @title Academy API
// @version 1.0.0
// @description Course enrollment, payment verification and self-paced progress tracking.
// @BasePath /api/v1
// @schemes http https
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, progress cache disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close() //nolint:errcheck
		}
	}

	objects, err := storage.New(*cfg)
	if err != nil {
		logr.Fatal("failed to init screenshot storage", zap.Error(err))
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, cfg.Cache.Enabled && redisClient != nil)

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	progressRepo := repository.NewProgressRepository(db)

	queue := jobs.NewQueue("notifications", jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	})

	notificationSvc := service.NewNotificationService(service.NotificationServiceParams{
		Queue:   queue,
		Users:   userRepo,
		Courses: courseRepo,
		Mailer:  mailer.New(cfg.Notifications, logr),
		Metrics: metricsSvc,
		Logger:  logr,
		Enabled: cfg.Notifications.Enabled,
	})

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	paymentSvc := service.NewPaymentService(service.PaymentServiceParams{
		Enrollments: enrollmentRepo,
		Courses:     courseRepo,
		Storage:     objects,
		Notifier:    notificationSvc,
		Cache:       cacheSvc,
		Metrics:     metricsSvc,
		Logger:      logr,
		Config: service.PaymentServiceConfig{
			MaxBytes:     cfg.Uploads.MaxBytes,
			AllowedMIMEs: cfg.Uploads.AllowedMIMEs,
		},
	})
	progressSvc := service.NewProgressService(service.ProgressServiceParams{
		Enrollments: enrollmentRepo,
		Courses:     courseRepo,
		Progress:    progressRepo,
		Cache:       cacheSvc,
		Metrics:     metricsSvc,
		Logger:      logr,
		Config:      service.ProgressServiceConfig{CacheTTL: cfg.Cache.TTL},
	})
	verificationSvc := service.NewVerificationService(service.VerificationServiceParams{
		Enrollments: enrollmentRepo,
		Audit:       userRepo,
		Storage:     objects,
		Notifier:    notificationSvc,
		Cache:       cacheSvc,
		Metrics:     metricsSvc,
		Validator:   validate,
		Logger:      logr,
	})
	exportSvc := service.NewExportService(enrollmentRepo, service.ExportConfig{MaxRows: cfg.Exports.MaxRows}, logr, export.NewCSVExporter(), export.NewPDFExporter())

	var fileHandler *handler.FileHandler
	if local, ok := objects.(*storage.LocalStorage); ok {
		fileHandler = handler.NewFileHandler(local)
	}

	engine := router.New(router.Config{
		App:                    cfg,
		Logger:                 logr,
		Tokens:                 authSvc,
		Audit:                  userRepo,
		Metrics:                metricsSvc,
		AuthHandler:            handler.NewAuthHandler(authSvc),
		EnrollmentHandler:      handler.NewEnrollmentHandler(paymentSvc, progressSvc, cfg.Uploads.MaxBytes),
		AdminEnrollmentHandler: handler.NewAdminEnrollmentHandler(verificationSvc, exportSvc),
		MetricsHandler:         handler.NewMetricsHandler(metricsSvc, db, cacheRepo),
		FileHandler:            fileHandler,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queue.Start(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	queue.Stop()
}
