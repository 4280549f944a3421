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
	"golang.org/x/time/rate"

	"github.com/noah-isme/transfer-board-api/internal/handler"
	"github.com/noah-isme/transfer-board-api/internal/middleware"
	"github.com/noah-isme/transfer-board-api/internal/models"
	"github.com/noah-isme/transfer-board-api/internal/repository"
	"github.com/noah-isme/transfer-board-api/internal/service"
	"github.com/noah-isme/transfer-board-api/pkg/cache"
	"github.com/noah-isme/transfer-board-api/pkg/config"
	"github.com/noah-isme/transfer-board-api/pkg/database"
	"github.com/noah-isme/transfer-board-api/pkg/events"
	"github.com/noah-isme/transfer-board-api/pkg/jobs"
	"github.com/noah-isme/transfer-board-api/pkg/logger"
	"github.com/noah-isme/transfer-board-api/pkg/storage"
)

// @title Transfer Board API
// @version 1.0.0
// @description Patient transfer board: live queue, guarded status transitions, history, statistics and exports.
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
	}

	var redisClient *redis.Client
	if cfg.Cache.Driver == config.DriverRedis || cfg.Realtime.Driver == config.DriverRedis {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
	}

	metrics := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if cfg.Cache.Driver == config.DriverRedis {
		cacheRepo = repository.NewCacheRepository(redisClient, cfg.Redis.KeyPrefix, logr)
	} else {
		cacheRepo = repository.NewMemoryCacheRepository(cfg.Cache.DefaultTTL, time.Minute)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.DefaultTTL, logr, cfg.Cache.Enabled)

	var bus events.Bus
	if cfg.Realtime.Driver == config.DriverRedis {
		bus = events.NewRedisBus(redisClient, logr, cfg.Realtime.SubscriberBuffer)
	} else {
		bus = events.NewMemoryBus(cfg.Realtime.SubscriberBuffer)
	}
	defer bus.Close()
	notifier := service.NewTransferNotifier(bus, cfg.Realtime.Channel, metrics, logr)

	transferRepo := repository.NewTransferRepository(db)
	referenceRepo := repository.NewReferenceRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	accessCodeRepo := repository.NewAccessCodeRepository(db)
	reportRepo := repository.NewReportRepository(db)

	validate := validator.New()
	authSvc := service.NewAuthService(accessCodeRepo, auditRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
		Audience:          []string{cfg.JWT.Audience},
	},
		service.WithTokenRevocations(service.NewTokenRevocations(cacheRepo)),
		service.WithSectorLookup(referenceRepo),
	)
	if err := authSvc.EnsureAccessCodes(ctx, accessCodeSeeds(cfg.AccessCodes)); err != nil {
		return fmt.Errorf("provision access codes: %w", err)
	}

	transferSvc := service.NewTransferService(transferRepo, referenceRepo, validate, logr,
		service.TransferServiceConfig{
			HistoryPageSize:    cfg.Transfers.HistoryPageSize,
			HistoryMaxPageSize: cfg.Transfers.HistoryMaxPageSize,
			CancelLabel:        cfg.Transfers.CancelLabel,
		},
		service.WithTransferPublisher(notifier),
		service.WithTransitionRecorder(metrics),
		service.WithTransferAudit(auditRepo),
		service.WithTransferCache(cacheSvc),
	)
	referenceSvc := service.NewReferenceService(referenceRepo, cacheSvc, logr)
	analyticsSvc := service.NewAnalyticsService(transferRepo, cacheSvc, metrics, logr)

	scheduler, err := jobs.NewScheduler(logr)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	var limiter *middleware.IPRateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewIPRateLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst)
		if err := scheduler.Every(ctx, "rate-limiter-prune", 5*time.Minute, func(context.Context) {
			if pruned := limiter.Prune(); pruned > 0 {
				logr.Debug("rate limiter pruned", zap.Int("clients", pruned))
			}
		}); err != nil {
			return fmt.Errorf("schedule rate limiter prune: %w", err)
		}
	}

	deps := routerDeps{
		cfg:       cfg,
		logger:    logr,
		metrics:   metrics,
		auth:      authSvc,
		audit:     auditRepo,
		limiter:   limiter,
		transfers: handler.NewTransferHandler(transferSvc),
		reference: handler.NewReferenceHandler(referenceSvc),
		analytics: handler.NewAnalyticsHandler(analyticsSvc),
		stream:    handler.NewStreamHandler(notifier, cfg.Realtime.Heartbeat, logr),
		authH:     handler.NewAuthHandler(authSvc),
		ops:       handler.NewMetricsHandler(metrics.Handler(), readinessChecks(db, redisClient)),
	}

	if cfg.Reports.Enabled {
		localStorage, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			return fmt.Errorf("init report storage: %w", err)
		}
		exportSvc := service.NewExportService(transferRepo, localStorage,
			storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL),
			service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Reports.SignedURLTTL}, logr)

		worker := service.NewReportWorker(reportRepo, exportSvc, cfg.Reports.WorkerRetries, logr)
		queue := jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Reports.WorkerConcurrency,
			BufferSize: cfg.Reports.QueueSize,
			MaxRetries: cfg.Reports.WorkerRetries,
			Logger:     logr,
		})
		queue.Start(ctx)
		defer queue.Stop()

		reportSvc := service.NewReportService(reportRepo, queue, exportSvc, auditRepo, logr, service.ReportServiceConfig{
			ResultTTL:       cfg.Reports.SignedURLTTL,
			CleanupInterval: cfg.Reports.CleanupInterval,
			MaxRetries:      cfg.Reports.WorkerRetries,
		})
		if recovered := reportSvc.RecoverPendingJobs(ctx); recovered > 0 {
			logr.Info("report jobs recovered", zap.Int("count", recovered))
		}
		if err := reportSvc.ScheduleCleanup(ctx, scheduler); err != nil {
			return fmt.Errorf("schedule report cleanup: %w", err)
		}
		deps.reports = handler.NewReportHandler(reportSvc, logr)
	}

	scheduler.Start()
	defer func() {
		if err := scheduler.Shutdown(); err != nil {
			logr.Warn("scheduler shutdown", zap.Error(err))
		}
	}()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", server.Addr), zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logr.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	logr.Info("server stopped")
	return nil
}

func accessCodeSeeds(codes []config.AccessCodeConfig) []service.AccessCodeSeed {
	seeds := make([]service.AccessCodeSeed, 0, len(codes))
	for _, code := range codes {
		seed := service.AccessCodeSeed{
			Label: "bootstrap:" + code.Role,
			Role:  models.UserRole(code.Role),
			Code:  code.Code,
		}
		if code.SectorID != "" {
			sectorID := code.SectorID
			seed.SectorID = &sectorID
			seed.Label += ":" + sectorID
		}
		seeds = append(seeds, seed)
	}
	return seeds
}

func readinessChecks(db handler.Pinger, redisClient *redis.Client) map[string]handler.Pinger {
	checks := map[string]handler.Pinger{"database": db}
	if redisClient != nil {
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}
	return checks
}
