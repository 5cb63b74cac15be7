package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/sma-presensi-api/api/swagger"
	"github.com/noah-isme/sma-presensi-api/internal/handler"
	"github.com/noah-isme/sma-presensi-api/internal/middleware"
	"github.com/noah-isme/sma-presensi-api/internal/models"
	"github.com/noah-isme/sma-presensi-api/internal/repository"
	"github.com/noah-isme/sma-presensi-api/internal/service"
	"github.com/noah-isme/sma-presensi-api/pkg/cache"
	"github.com/noah-isme/sma-presensi-api/pkg/clock"
	"github.com/noah-isme/sma-presensi-api/pkg/config"
	"github.com/noah-isme/sma-presensi-api/pkg/database"
	"github.com/noah-isme/sma-presensi-api/pkg/lock"
	"github.com/noah-isme/sma-presensi-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-presensi-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-presensi-api/pkg/middleware/requestid"
)

// @title SMA Presensi API
// @version 0.1.0
// @description QR attendance and leave reconciliation engine
// @BasePath /
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect redis", "error", err)
	}
	defer redisClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Repositories.
	attendanceRepo := repository.NewAttendanceRepository(db)
	leaveRepo := repository.NewLeaveRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Shared capabilities.
	locker := lock.NewRedisLocker(redisClient, "presensi")
	clk := clock.System{}
	validate := validator.New()

	// Services.
	metricsSvc := service.NewMetricsService()
	dispatcher := service.NewNotificationDispatcher(cfg.Notifications, logr)
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	recapSvc := service.NewRecapService(attendanceRepo, cacheRepo, cfg.Recap, logr)
	rosterSvc := service.NewRosterService(studentRepo, cacheRepo, cfg.Recap.RosterCacheTTL, logr)
	cascadeSvc := service.NewCascadeService(attendanceRepo, scheduleRepo, studentRepo, clk, logr)
	leaveSvc := service.NewLeaveService(leaveRepo, studentRepo, cascadeSvc, clk, validate, logr)
	tokenSvc := service.NewTokenService(tokenRepo, scheduleRepo, attendanceRepo, studentRepo,
		locker, clk, cfg.Attendance, validate, logr)
	gate := service.NewProximityGate(cfg.Geofence)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, tokenSvc, scheduleRepo,
		attendanceRepo, studentRepo, leaveSvc, gate, locker, clk, cfg.Attendance,
		dispatcher, recapSvc, metricsSvc, validate, logr)
	closeoutSvc := service.NewCloseoutService(attendanceRepo, scheduleRepo, rosterSvc,
		leaveSvc, locker, clk, cfg.Attendance, recapSvc, metricsSvc, logr)

	// Handlers.
	scanHandler := handler.NewScanHandler(attendanceSvc)
	tokenHandler := handler.NewTokenHandler(tokenSvc)
	leaveHandler := handler.NewLeaveHandler(leaveSvc)
	sessionHandler := handler.NewSessionHandler(closeoutSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc, recapSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
			return
		}
		if err := redisClient.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(cfg.JWT.Secret))
	{
		api.POST("/scans", scanHandler.Scan)
		api.POST("/scans/assisted", middleware.Staff(), scanHandler.ScanByIdentifier)

		api.POST("/qr-tokens", tokenHandler.Generate)
		api.POST("/qr-tokens/validate", tokenHandler.Validate)
		api.POST("/qr-tokens/revoke", tokenHandler.Revoke)

		leaves := api.Group("/leaves", middleware.Staff())
		{
			leaves.POST("/full-day", middleware.Audit(auditRepo, "leave.grant", "leave_permissions"), leaveHandler.CreateFullDay)
			leaves.POST("/early", middleware.Audit(auditRepo, "leave.grant", "leave_permissions"), leaveHandler.CreateEarly)
			leaves.POST("/:id/return", middleware.Audit(auditRepo, "leave.return", "leave_permissions"), leaveHandler.MarkReturned)
			leaves.POST("/:id/expire", middleware.Audit(auditRepo, "leave.expire", "leave_permissions"), leaveHandler.MarkExpired)
			leaves.GET("", leaveHandler.List)
			leaves.GET("/:id", leaveHandler.Get)
		}

		api.POST("/sessions/:id/close", middleware.Staff(),
			middleware.Audit(auditRepo, "session.close", "session_closeouts"), sessionHandler.Close)
		api.GET("/sessions/:id/closeout", sessionHandler.Status)
		api.GET("/sessions/:id/attendance", middleware.Staff(), attendanceHandler.SessionAttendance)

		api.GET("/attendance", middleware.Staff(), attendanceHandler.List)
		api.PATCH("/attendance/:id", middleware.Staff(),
			middleware.Audit(auditRepo, "attendance.correct", "attendance_records"), attendanceHandler.Correct)
		api.GET("/classes/:id/recap", middleware.RBAC(models.RoleSuperAdmin, models.RoleAdmin, models.RoleTeacher), attendanceHandler.Recap)
		api.GET("/classes/:id/recap/export", middleware.Staff(), attendanceHandler.ExportRecap)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
