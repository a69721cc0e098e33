package main

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/Conqueror102/time-wise-v2-sub001/internal/attendance"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/billing"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/biometric"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/handler"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/imaging"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/mailer"
	custommiddleware "github.com/Conqueror102/time-wise-v2-sub001/internal/middleware"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/model"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/ratelimit"
	"github.com/Conqueror102/time-wise-v2-sub001/pkg/config"
	"github.com/Conqueror102/time-wise-v2-sub001/pkg/database"
	"github.com/Conqueror102/time-wise-v2-sub001/pkg/jwtutil"
	"github.com/Conqueror102/time-wise-v2-sub001/pkg/logger"
	"github.com/Conqueror102/time-wise-v2-sub001/prometheus"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load("timewise")
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	if err := logger.InitLogger(&logger.LogConfig{
		Level:       cfg.Log.Level,
		Environment: cfg.Server.Env,
		ServiceName: cfg.ServiceName,
	}); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	log.Info("Starting TimeWise service...", cfg.LogConfig()...)

	// Initialize database and run migrations
	db, err := database.InitDB(&cfg.DB)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	if err := database.MigrateModels(
		&model.Organization{},
		&model.User{},
		&model.Staff{},
		&model.AttendanceLog{},
		&model.Subscription{},
		&model.PaymentEvent{},
		&model.AuditLog{},
		&model.BiometricCredential{},
	); err != nil {
		log.Fatal("Failed to run database migrations", zap.Error(err))
	}
	log.Info("Database connection established and migrations completed")

	// Initialize JWT utility with configuration
	jwtutil.Initialize(&cfg.JWT)

	// Build domain services
	billingSvc := billing.NewService(db, billing.NewPaystackClient(&cfg.Billing), log, cfg.Billing.TrialDays)
	attendanceSvc := attendance.NewService(db, imaging.NewClient(&cfg.ImageStore), log, cfg.Server.IsDevelopment())
	biometricSvc := biometric.NewService(biometric.NewECDSAVerifier(), log)

	handler.Init(handler.Deps{
		Cfg:        cfg,
		Billing:    billingSvc,
		Attendance: attendanceSvc,
		Biometric:  biometricSvc,
		Mailer:     mailer.NewSMTPSender(&cfg.Mail),
	})

	// Rate limiter backend: redis when counters must be shared across
	// instances, in-process memory otherwise.
	var limiter ratelimit.Limiter
	switch cfg.RateLimit.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr: cfg.RateLimit.RedisAddr,
			DB:   cfg.RateLimit.RedisDB,
		})
		limiter = ratelimit.NewRedisLimiter(client, cfg.RateLimit.Limit, cfg.RateLimit.Window)
		log.Info("Rate limiter using redis backend", zap.String("addr", cfg.RateLimit.RedisAddr))
	default:
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimit.Limit, cfg.RateLimit.Window)
		log.Info("Rate limiter using in-memory backend")
	}

	// Background subscription sweep
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go runSweepLoop(sweepCtx, billingSvc, log, cfg.Billing.SweepInterval)

	// Initialize Echo framework
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = handler.HTTPErrorHandler

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(custommiddleware.RequestIDMiddleware)
	e.Use(logger.Middleware())
	e.Use(prometheus.MetricsMiddleware())

	// Public routes - no authentication required
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", handler.MetricsHandler)
	e.GET("/plans", handler.PlanCatalog)

	auth := e.Group("/auth")
	auth.Use(custommiddleware.RateLimitMiddleware(limiter))
	auth.POST("/register", handler.Register)
	auth.POST("/login", handler.Login)

	// Kiosk routes: devices carry no session, rate limiting is the only
	// front-door control.
	kiosk := e.Group("/checkin")
	kiosk.Use(custommiddleware.RateLimitMiddleware(limiter))
	kiosk.POST("", handler.CheckIn)
	kiosk.POST("/out", handler.CheckOut)
	kiosk.POST("/status", handler.TodayStatus)
	kiosk.POST("/biometric", handler.BiometricCheckIn)

	// Payment provider webhook, authenticated by signature
	e.POST("/webhooks/paystack", handler.PaystackWebhook)

	// Machine-facing feed, authenticated by integration key
	e.GET("/integration/attendance", handler.IntegrationAttendance)

	// Tenant dashboard routes
	api := e.Group("/api")
	api.Use(custommiddleware.AuthMiddleware)

	api.GET("/profile", handler.Profile)

	staff := api.Group("/staff", custommiddleware.RequireRole(model.RoleOrgAdmin, model.RoleManager))
	staff.POST("", handler.CreateStaff)
	staff.GET("", handler.ListStaff)
	staff.GET("/:id", handler.GetStaff)
	staff.PATCH("/:id", handler.UpdateStaff)
	staff.DELETE("/:id", handler.DeactivateStaff)
	staff.POST("/:id/qr", handler.RegenerateStaffQR)
	staff.POST("/:id/biometric", handler.RegisterBiometricCredential)

	attendanceAPI := api.Group("/attendance", custommiddleware.RequireRole(model.RoleOrgAdmin, model.RoleManager))
	attendanceAPI.GET("", handler.ListAttendance)

	reports := api.Group("/reports", custommiddleware.RequireRole(model.RoleOrgAdmin, model.RoleManager))
	reports.GET("/summary", handler.ReportSummary)
	reports.GET("/trend", handler.ReportTrend)
	reports.GET("/departments", handler.ReportDepartments)
	reports.GET("/export", handler.ExportAttendance)
	reports.POST("/email", handler.EmailReportSummary)

	subscription := api.Group("/subscription", custommiddleware.RequireRole(model.RoleOrgAdmin))
	subscription.GET("", handler.GetSubscription)
	subscription.POST("/upgrade", handler.ConfirmUpgrade)
	subscription.POST("/downgrade", handler.RequestDowngrade)
	subscription.DELETE("", handler.CancelSubscription)

	settings := api.Group("/settings", custommiddleware.RequireRole(model.RoleOrgAdmin))
	settings.GET("", handler.GetSettings)
	settings.PATCH("", handler.UpdateSettings)
	settings.POST("/api-key", handler.RotateAPIKey)

	// Platform back-office
	admin := api.Group("/admin", custommiddleware.RequireRole(model.RoleSuperAdmin))
	admin.GET("/organizations", handler.ListOrganizations)
	admin.POST("/organizations/:id/suspend", handler.SuspendOrganization)
	admin.POST("/organizations/:id/reactivate", handler.ReactivateOrganization)
	admin.GET("/organizations/:id/subscription", handler.GetOrgSubscription)
	admin.POST("/sweep", handler.TriggerSweep)
	admin.GET("/audit-logs", handler.ListAuditLogs)

	// Start server
	port := cfg.Server.Port
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}

// runSweepLoop runs the subscription maintenance sweep on a fixed interval.
// The sweep is safe to run from several instances at once.
func runSweepLoop(ctx context.Context, svc *billing.Service, log *zap.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := svc.RunSweep(ctx)
			if err != nil {
				log.Error("Subscription sweep failed", zap.Error(err))
				continue
			}
			if res.TrialsExpired > 0 || res.MarkedPastDue > 0 || res.DowngradesApplied > 0 {
				log.Info("Subscription sweep completed",
					zap.Int64("trials_expired", res.TrialsExpired),
					zap.Int64("marked_past_due", res.MarkedPastDue),
					zap.Int64("downgrades_applied", res.DowngradesApplied))
			}
		}
	}
}
