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
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	_ "github.com/noah-isme/visitor-attendance-api/api/swagger"
	"github.com/noah-isme/visitor-attendance-api/internal/analytics"
	"github.com/noah-isme/visitor-attendance-api/internal/handler"
	internalmiddleware "github.com/noah-isme/visitor-attendance-api/internal/middleware"
	"github.com/noah-isme/visitor-attendance-api/internal/models"
	"github.com/noah-isme/visitor-attendance-api/internal/repository"
	"github.com/noah-isme/visitor-attendance-api/internal/service"
	"github.com/noah-isme/visitor-attendance-api/pkg/cache"
	"github.com/noah-isme/visitor-attendance-api/pkg/config"
	"github.com/noah-isme/visitor-attendance-api/pkg/database"
	"github.com/noah-isme/visitor-attendance-api/pkg/eventlog"
	"github.com/noah-isme/visitor-attendance-api/pkg/faceclient"
	"github.com/noah-isme/visitor-attendance-api/pkg/jobs"
	"github.com/noah-isme/visitor-attendance-api/pkg/logger"
	"github.com/noah-isme/visitor-attendance-api/pkg/mailer"
	corsmiddleware "github.com/noah-isme/visitor-attendance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/visitor-attendance-api/pkg/middleware/requestid"
	"github.com/noah-isme/visitor-attendance-api/pkg/storage"
)

// @title Visitor Attendance API
// @version 1.0.0
// @description Attendance ledger and visitor analytics service
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

type handlers struct {
	analytics    *handler.AnalyticsHandler
	attendance   *handler.AttendanceHandler
	users        *handler.UserHandler
	institutions *handler.InstitutionHandler
	reports      *handler.ReportHandler
	metrics      *handler.MetricsHandler
}

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("connect postgres", zap.Error(err))
	}
	defer db.Close()

	metrics := service.NewMetricsService()
	validate := validator.New()

	var redisClient *redis.Client
	var cacheRepo service.CacheRepository
	if client, err := cache.NewRedis(ctx, cfg.Redis); err != nil {
		logr.Warn("redis unavailable, analytics cache disabled", zap.Error(err))
	} else {
		redisClient = client
		cacheRepo = repository.NewCacheRepository(client, logr)
		defer client.Close()
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Analytics.CacheTTL, logr, cfg.Analytics.Enabled && cacheRepo != nil)

	activity, mongoClient := buildActivityService(ctx, cfg, logr)
	if mongoClient != nil {
		defer mongoClient.Disconnect(context.Background()) //nolint:errcheck
	}

	records := repository.NewAttendanceRecordRepository(db)
	userRepo := repository.NewUserRepository(db)
	institutionRepo := repository.NewInstitutionRepository(db)

	analyticsSvc, err := buildAnalyticsService(cfg, records, userRepo, cacheSvc, metrics, logr)
	if err != nil {
		logr.Fatal("configure analytics", zap.Error(err))
	}

	notifications, mailQueue := buildNotifications(ctx, cfg, metrics, logr)
	if mailQueue != nil {
		mailQueue.Start(ctx)
		defer mailQueue.Stop()
	}

	faces := faceclient.New(cfg.Face)
	attendanceSvc := service.NewAttendanceService(service.AttendanceDeps{
		Store:         records,
		Users:         userRepo,
		Faces:         faces,
		Activity:      activity,
		Notifications: notifications,
		Metrics:       metrics,
		Reports:       analyticsSvc,
	}, validate, logr)
	userSvc := service.NewUserService(userRepo, institutionRepo, validate, logr).WithActivity(activity)

	h := handlers{
		analytics:    handler.NewAnalyticsHandler(analyticsSvc),
		attendance:   handler.NewAttendanceHandler(attendanceSvc, activity),
		users:        handler.NewUserHandler(userSvc),
		institutions: handler.NewInstitutionHandler(service.NewInstitutionService(institutionRepo, validate, logr)),
		metrics:      handler.NewMetricsHandler(metrics, readinessDeps(db, redisClient, mongoClient, faces)),
	}

	if cfg.Reports.Enabled {
		reportSvc, reportQueue, err := buildReports(ctx, cfg, db, analyticsSvc, metrics, logr)
		if err != nil {
			logr.Fatal("configure reports", zap.Error(err))
		}
		defer reportQueue.Stop()
		h.reports = handler.NewReportHandler(reportSvc, validate)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS))
	r.Use(internalmiddleware.Metrics(metrics))

	registerRoutes(r, cfg, service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer}), h)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("server shutdown", zap.Error(err))
	}
	logr.Info("server stopped")
}

func registerRoutes(r *gin.Engine, cfg *config.Config, tokens internalmiddleware.TokenValidator, h handlers) {
	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	staff := api.Group("", internalmiddleware.JWT(tokens), internalmiddleware.RequireRoles(models.RoleAdmin, models.RoleOperator))

	if cfg.Analytics.Enabled {
		analyticsGroup := staff.Group("/analytics", internalmiddleware.WithResponseMeta())
		analyticsGroup.GET("", h.analytics.Summary)
		analyticsGroup.GET("/detailed", h.analytics.Detailed)
		analyticsGroup.GET("/overview", h.analytics.Overview)
		analyticsGroup.GET("/trends", h.analytics.Trends)
		analyticsGroup.GET("/views", h.analytics.Views)
		analyticsGroup.GET("/users/:id", h.analytics.User)
		analyticsGroup.GET("/system", internalmiddleware.RequireRoles(models.RoleAdmin), h.analytics.System)
	}

	attendance := staff.Group("/attendance")
	attendance.POST("/check-in", h.attendance.CheckIn)
	attendance.POST("/face-verification", h.attendance.VerifyFace)
	attendance.POST("/departure", h.attendance.Depart)
	attendance.GET("/activity", h.attendance.Activity)

	users := staff.Group("/users")
	users.GET("", h.users.List)
	users.POST("", h.users.Create)
	users.GET("/email-availability", h.users.CheckEmail)
	users.GET("/:id", h.users.Get)
	users.GET("/:id/attendance", h.attendance.History)

	institutions := staff.Group("/institutions")
	institutions.GET("", h.institutions.List)
	institutions.POST("", internalmiddleware.RequireRoles(models.RoleAdmin), h.institutions.Create)

	if h.reports != nil {
		reports := api.Group("/reports", internalmiddleware.JWT(tokens), internalmiddleware.RequireRoles(models.RoleAdmin))
		reports.POST("/generate", h.reports.GenerateReport)
		reports.GET("/status/:id", h.reports.ReportStatus)
		api.GET("/export/:token", h.reports.DownloadReport)
	}
}

func buildAnalyticsService(cfg *config.Config, records service.AttendanceRecordSource, users service.UserReader, cacheSvc *service.CacheService, metrics *service.MetricsService, logr *zap.Logger) (*service.AnalyticsService, error) {
	local, err := analytics.LocalPolicy(cfg.Analytics.ReportOffset)
	if err != nil {
		return nil, fmt.Errorf("report offset: %w", err)
	}
	overrides, err := analytics.ParseViewPolicies(cfg.Analytics.ViewPolicies)
	if err != nil {
		return nil, fmt.Errorf("view policies: %w", err)
	}
	views, err := analytics.NewViewRegistry(local, overrides)
	if err != nil {
		return nil, err
	}
	return service.NewAnalyticsService(records, users, cacheSvc, metrics, service.AnalyticsOptions{
		Engine: analytics.Options{
			Policy:                   local,
			Logger:                   logr.Named("analytics"),
			GroupCompletionMinutes:   cfg.Analytics.GroupCompletionMinutes,
			UntimedCompletionMinutes: cfg.Analytics.UntimedCompletionMinutes,
			PeakRatio:                cfg.Analytics.PeakRatio,
		},
		Views:             views,
		DefaultWindowDays: cfg.Analytics.DefaultWindowDays,
		CacheTTL:          cfg.Analytics.CacheTTL,
	}, logr)
}

func buildActivityService(ctx context.Context, cfg *config.Config, logr *zap.Logger) (*service.ActivityService, *mongo.Client) {
	if !cfg.Mongo.Enabled {
		return service.NewActivityService(nil, nil, logr), nil
	}
	client, err := eventlog.Connect(ctx, cfg.Mongo)
	if err != nil {
		logr.Warn("event log unavailable, activity feed disabled", zap.Error(err))
		return service.NewActivityService(nil, nil, logr), nil
	}
	store := eventlog.New(client.Database(cfg.Mongo.Database))
	if err := store.EnsureIndexes(ctx); err != nil {
		logr.Warn("ensure event log indexes", zap.Error(err))
	}
	return service.NewActivityService(store, store, logr), client
}

func buildNotifications(ctx context.Context, cfg *config.Config, metrics *service.MetricsService, logr *zap.Logger) (*service.NotificationService, *jobs.Queue) {
	if !cfg.Mail.Enabled {
		return service.NewNotificationService(nil, logr), nil
	}
	sender, err := mailer.NewFromConfig(ctx, cfg.Mail)
	if err != nil {
		logr.Warn("mail disabled", zap.Error(err))
		return service.NewNotificationService(nil, logr), nil
	}
	worker := service.NewNotificationWorker(sender, logr)
	queue := jobs.NewQueue("visit-summary-mail", worker.Handle, jobs.QueueConfig{
		Workers:    1,
		MaxRetries: 3,
		RetryDelay: 30 * time.Second,
		Logger:     logr,
		Observer:   metrics,
	})
	return service.NewNotificationService(queue, logr), queue
}

func buildReports(ctx context.Context, cfg *config.Config, db *sqlx.DB, analyticsSvc *service.AnalyticsService, metrics *service.MetricsService, logr *zap.Logger) (*service.ReportService, *jobs.Queue, error) {
	store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		return nil, nil, fmt.Errorf("report storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
	exporter := service.NewExportService(analyticsSvc, store, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Reports.SignedURLTTL,
	}, logr, nil, nil)

	reportRepo := repository.NewReportRepository(db)
	worker := service.NewReportWorker(reportRepo, exporter, cfg.Reports.WorkerRetries, logr)
	queue := jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Reports.WorkerConcurrency,
		MaxRetries: cfg.Reports.WorkerRetries,
		RetryDelay: 5 * time.Second,
		Logger:     logr,
		Observer:   metrics,
	})
	queue.Start(ctx)

	svc := service.NewReportService(reportRepo, analyticsSvc, queue, exporter, logr, service.ReportServiceConfig{
		APIPrefix:       cfg.APIPrefix,
		ResultTTL:       cfg.Reports.SignedURLTTL,
		CleanupInterval: cfg.Reports.CleanupInterval,
		MaxRetries:      cfg.Reports.WorkerRetries,
	})
	svc.RecoverPendingJobs(ctx)
	svc.StartCleanup(ctx)
	return svc, queue, nil
}

func readinessDeps(db *sqlx.DB, redisClient *redis.Client, mongoClient *mongo.Client, faces *faceclient.Client) []handler.Dependency {
	deps := []handler.Dependency{
		{Name: "postgres", Check: db.PingContext},
		{Name: "face", Check: faces.Health, Optional: true},
	}
	if redisClient != nil {
		deps = append(deps, handler.Dependency{
			Name:     "redis",
			Check:    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
			Optional: true,
		})
	}
	if mongoClient != nil {
		deps = append(deps, handler.Dependency{
			Name:     "mongo",
			Check:    func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) },
			Optional: true,
		})
	}
	return deps
}
