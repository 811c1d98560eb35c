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

	"go.uber.org/zap"

	_ "github.com/noah-isme/drivingschool-api/api/swagger"
	"github.com/noah-isme/drivingschool-api/internal/handler"
	"github.com/noah-isme/drivingschool-api/internal/repository"
	"github.com/noah-isme/drivingschool-api/internal/service"
	"github.com/noah-isme/drivingschool-api/pkg/cache"
	"github.com/noah-isme/drivingschool-api/pkg/config"
	"github.com/noah-isme/drivingschool-api/pkg/database"
	"github.com/noah-isme/drivingschool-api/pkg/events"
	"github.com/noah-isme/drivingschool-api/pkg/jobs"
	"github.com/noah-isme/drivingschool-api/pkg/logger"
	"github.com/noah-isme/drivingschool-api/pkg/storage"
)

// @title Driving School Booking API
// @version 1.0.0
// @description Course enrollment with seat and vehicle capacity control
// @BasePath /
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, availability cache disabled", zap.Error(err))
		redisClient = nil
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Availability.CacheTTL, logr,
		cfg.Availability.CacheEnabled && cacheRepo.Enabled())

	proofStore, err := storage.NewProofStore(cfg.Uploads.StorageDir, cfg.Uploads.MaxFileSizeBytes, cfg.Uploads.AllowedMIMEs)
	if err != nil {
		logr.Fatal("failed to prepare proof storage", zap.Error(err))
	}
	signingSecret := cfg.Uploads.SignedURLSecret
	if signingSecret == "" {
		signingSecret = cfg.JWT.Secret
	}
	signer := storage.NewLinkSigner(signingSecret, cfg.Uploads.SignedURLTTL)

	publisher := newPublisher(cfg, logr)
	defer publisher.Close() //nolint:errcheck
	notifier := service.NewNotificationService(publisher, cfg.Broker.Queue, logr)
	queue := jobs.New("notifications", notifier.Handle, jobs.Options{
		Workers:    cfg.Notifications.Workers,
		MaxRetries: cfg.Notifications.Retries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	})
	notifier.Bind(queue)
	queue.Start(context.Background())
	defer queue.Stop()

	courses := repository.NewCourseRepository(db)
	schedules := repository.NewScheduleRepository(db)
	vehicles := repository.NewVehicleRepository(db)
	enrollments := repository.NewEnrollmentRepository(db)
	tx := database.NewTransactor(db, nil)
	ledger := service.NewCapacityLedger(vehicles, logr)
	validate := service.NewValidator()

	enrollmentSvc := service.NewEnrollmentService(service.EnrollmentServiceDeps{
		Tx:          tx,
		Courses:     courses,
		Schedules:   schedules,
		Enrollments: enrollments,
		Ledger:      ledger,
		Proofs:      proofStore,
		Cache:       cacheSvc,
		Notifier:    notifier,
		Metrics:     metrics,
		Validator:   validate,
		Logger:      logr,
	})
	scheduleSvc := service.NewScheduleService(service.ScheduleServiceDeps{
		Tx:        tx,
		Courses:   courses,
		Schedules: schedules,
		Rosters:   enrollments,
		Ledger:    ledger,
		Cache:     cacheSvc,
		CacheTTL:  cfg.Availability.CacheTTL,
		Validator: validate,
		Logger:    logr,
	})
	proofSvc := service.NewProofService(enrollmentSvc, signer, proofStore, cfg.APIPrefix+"/proofs", logr)
	authSvc := service.NewAuthService(service.AuthConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer}, logr)

	dependencies := map[string]handler.Pinger{"postgres": handler.PingFunc(db.PingContext)}
	if cacheRepo.Enabled() {
		dependencies["redis"] = cacheRepo
	}

	router := newRouter(routeDeps{
		cfg:         cfg,
		logger:      logr,
		auth:        authSvc,
		metrics:     metrics,
		enrollments: handler.NewEnrollmentHandler(enrollmentSvc, proofSvc),
		schedules:   handler.NewScheduleHandler(scheduleSvc),
		ops:         handler.NewMetricsHandler(metrics.Handler(), dependencies),
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", server.Addr), zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Error("forced shutdown", zap.Error(err))
		os.Exit(1)
	}
	logr.Info("server stopped")
}

func newPublisher(cfg *config.Config, logr *zap.Logger) events.Publisher {
	if !cfg.Broker.Enabled {
		return events.LogPublisher{Logger: logr}
	}
	publisher, err := events.DialAMQP(cfg.Broker.URL, logr)
	if err != nil {
		logr.Warn("rabbitmq unavailable, booking events will only be logged", zap.Error(err))
		return events.LogPublisher{Logger: logr}
	}
	return publisher
}
