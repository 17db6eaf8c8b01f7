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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-gradebook/api/swagger"
	"github.com/noah-isme/sma-gradebook/internal/handler"
	internalmiddleware "github.com/noah-isme/sma-gradebook/internal/middleware"
	"github.com/noah-isme/sma-gradebook/internal/models"
	"github.com/noah-isme/sma-gradebook/internal/repository"
	"github.com/noah-isme/sma-gradebook/internal/service"
	"github.com/noah-isme/sma-gradebook/pkg/cache"
	"github.com/noah-isme/sma-gradebook/pkg/config"
	"github.com/noah-isme/sma-gradebook/pkg/database"
	"github.com/noah-isme/sma-gradebook/pkg/jobs"
	"github.com/noah-isme/sma-gradebook/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-gradebook/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-gradebook/pkg/middleware/requestid"
	"github.com/noah-isme/sma-gradebook/pkg/storage"
)

// @title School Gradebook API
// @version 1.0.0
// @description Grade and attendance aggregation for school subjects
// @BasePath /api/v1
// @schemes http

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, report caching disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close() //nolint:errcheck
		}
	}

	studentRepo := repository.NewStudentRepository(db)
	assignmentRepo := repository.NewStudentAssignmentRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	itemRepo := repository.NewEvaluationItemRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)

	metricsSvc := service.NewMetricsService()
	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Gradebook.CacheTTL, logr, cfg.Cache.Enabled)

	gradebookSvc := service.NewGradebookService(service.GradebookServiceParams{
		Subjects:    subjectRepo,
		Assignments: assignmentRepo,
		Students:    studentRepo,
		Items:       itemRepo,
		Grades:      gradeRepo,
		Cache:       cacheSvc,
		Metrics:     metricsSvc,
		Logger:      logr,
		Config: service.GradebookServiceConfig{
			DefaultMode:  models.ParseAverageMode(cfg.Gradebook.AverageMode),
			CacheTTL:     cfg.Gradebook.CacheTTL,
			FetchTimeout: cfg.Gradebook.FetchTimeout,
		},
	})
	attendanceSvc := service.NewAttendanceReportService(service.AttendanceReportServiceParams{
		Attendance:   attendanceRepo,
		Students:     studentRepo,
		Subjects:     subjectRepo,
		Assignments:  assignmentRepo,
		Metrics:      metricsSvc,
		Logger:       logr,
		FetchTimeout: cfg.Gradebook.FetchTimeout,
	})
	scaleSvc := service.NewScaleService(validator.New(), logr)

	exportStorage, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare export storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exportSvc := service.NewExportService(service.ExportServiceParams{
		Summaries:  gradebookSvc,
		Attendance: attendanceSvc,
		Storage:    exportStorage,
		Signer:     signer,
		Metrics:    metricsSvc,
		Logger:     logr,
		Config:     service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Exports.SignedURLTTL},
	})

	refreshWorker := service.NewRefreshWorker(gradebookSvc, metricsSvc, logr)
	refreshQueue := jobs.NewQueue("gradebook-refresh", refreshWorker.Handle, jobs.QueueConfig{
		Workers:    cfg.Refresh.Workers,
		MaxRetries: cfg.Refresh.Retries,
		Logger:     logr,
	})
	refreshWorker.Attach(refreshQueue)
	if err := metricsSvc.TrackQueueDepth("gradebook-refresh", refreshQueue.Pending); err != nil {
		logr.Warn("refresh queue depth not exported", zap.Error(err))
	}
	refreshQueue.Start(ctx)

	checks := map[string]handler.Pinger{"postgres": db}
	if redisClient != nil {
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	gradebookHandler := handler.NewGradebookHandler(gradebookSvc, refreshWorker)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc)
	scaleHandler := handler.NewScaleHandler(scaleSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, checks)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc, "/metrics"))
	r.Use(internalmiddleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	api := r.Group(cfg.APIPrefix)
	{
		subjects := api.Group("/subjects/:id")
		subjects.GET("/grades/summary", gradebookHandler.SubjectSummary)
		subjects.POST("/grades/summary/refresh", gradebookHandler.RefreshSubjectSummary)
		subjects.POST("/grades/export", exportHandler.ExportSubjectSummary)
		subjects.GET("/attendance/sheet", attendanceHandler.Sheet)

		api.GET("/evaluation-items/:id/grading-sheet", gradebookHandler.GradingSheet)
		api.GET("/students/:id/attendance/summary", attendanceHandler.StudentSummary)
		api.GET("/attendance/overview", attendanceHandler.Overview)
		api.POST("/attendance/overview/export", exportHandler.ExportAttendanceOverview)
		api.POST("/grading-scales/validate", scaleHandler.Validate)
		api.GET("/exports/download", exportHandler.Download)
		api.GET("/metrics/snapshot", metricsHandler.Snapshot)
	}

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	go runExportCleanup(ctx, exportSvc, cfg.Exports, logr)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "cache", cacheSvc.Enabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("server shutdown failed", zap.Error(err))
	}
	refreshQueue.Stop()
}

func runExportCleanup(ctx context.Context, exports *service.ExportService, cfg config.ExportsConfig, logr *zap.Logger) {
	if cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := exports.Cleanup(cfg.SignedURLTTL)
			if err != nil {
				logr.Warn("export cleanup failed", zap.Error(err))
				continue
			}
			if len(removed) > 0 {
				logr.Info("expired exports removed", zap.Int("count", len(removed)))
			}
		}
	}
}
