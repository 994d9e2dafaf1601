package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/campusportal/transport-backend/internal/config"
	"github.com/campusportal/transport-backend/internal/database"
	"github.com/campusportal/transport-backend/internal/handlers"
	"github.com/campusportal/transport-backend/internal/middleware"
	"github.com/campusportal/transport-backend/internal/services"
	"github.com/campusportal/transport-backend/pkg/jwt"
	"github.com/campusportal/transport-backend/pkg/notify"
	"github.com/campusportal/transport-backend/pkg/proofstore"
	"github.com/campusportal/transport-backend/pkg/validator"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting Campus Transport Subscription Backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	loc := cfg.Location()
	logger.WithField("timezone", loc.String()).Info("Calendar dates use campus timezone")

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Repositories
	requestRepo := database.NewSubscriptionRequestRepository(db.DB)
	subscriptionRepo := database.NewSubscriptionRepository(db.DB)
	reservationRepo := database.NewSeatReservationRepository(db.DB)
	slotRepo := database.NewScheduleSlotRepository(db.DB)
	catalogRepo := database.NewTransportCatalogRepository(db.DB)
	auditRepo := database.NewAuditLogRepository(db.DB)
	txManager := database.NewTxManager(db.DB, cfg.Database.TxTimeout)

	// Collaborators
	proofs, err := newProofStore(cfg.Proofs)
	if err != nil {
		logger.Fatalf("Failed to initialize proof storage: %v", err)
	}
	logger.WithField("backend", cfg.Proofs.Storage).Info("Payment proof storage ready")

	notifier, closeNotifier := newNotifier(cfg.Notify, logger)
	defer closeNotifier()

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
		logger.WithField("addr", cfg.Redis.Addr).Info("Redis connected - submit throttling enabled")
	} else {
		logger.Warn("Redis unavailable - submit throttling disabled")
	}

	// Initialize services
	logger.Info("Initializing services...")
	clock := services.NewSystemClock(loc)
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTokenExpiry)
	auditService := services.NewAuditService(auditRepo, clock, logger)
	pricingService := services.NewPricingService(catalogRepo)
	ledger := services.NewCapacityLedger(slotRepo, reservationRepo, clock, logger)
	renewalPolicy := services.NewRenewalPolicy(subscriptionRepo, clock)

	workflow := services.NewRequestWorkflow(services.WorkflowDeps{
		Tx:            txManager,
		Requests:      requestRepo,
		Subscriptions: subscriptionRepo,
		Slots:         slotRepo,
		Catalog:       catalogRepo,
		Ledger:        ledger,
		Renewal:       renewalPolicy,
		Pricing:       pricingService,
		Proofs:        proofs,
		Notifier:      notifier,
		Audit:         auditService,
		Clock:         clock,
		Logger:        logger,
	})
	queryService := services.NewTransportQueryService(
		requestRepo,
		subscriptionRepo,
		reservationRepo,
		slotRepo,
		pricingService,
		proofs,
		auditService,
	)

	// Initialize and start cron service
	cronService := services.NewCronService(workflow, cfg.Scheduler.ExpiryCron, loc, logger)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}
	logger.Info("✓ Cron service started - subscription expiry enabled")

	// Initialize handlers
	studentHandler := handlers.NewTransportStudentHandler(
		workflow,
		queryService,
		handlers.ProofLimits{
			MaxBytes:     int64(cfg.Proofs.MaxSizeKB) * 1024,
			AllowedMimes: cfg.Proofs.AllowedMimes,
		},
		loc,
		logger,
	)
	adminHandler := handlers.NewTransportAdminHandler(workflow, queryService, cronService, loc, logger)

	if err := validator.RegisterBindingValidations(); err != nil {
		logger.Fatalf("Failed to register validators: %v", err)
	}

	// Initialize Gin router
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.ClientInfo())

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", "Retry-After", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db))

	// API v1 routes
	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthMiddleware(jwtService, logger))
	{
		transport := v1.Group("/transport")
		{
			transport.POST("/requests",
				middleware.SubmitRateLimit(rdb, cfg.Redis.SubmitRateLimit, cfg.Redis.SubmitRateWindow, logger),
				studentHandler.SubmitRequest,
			)
			transport.GET("/requests", studentHandler.ListMyRequests)
			transport.POST("/requests/:id/proof", studentHandler.ResubmitProof)
			transport.GET("/subscription", studentHandler.GetMySubscription)
			transport.POST("/subscriptions/:id/cancel", studentHandler.CancelSubscription)
			transport.POST("/quote", studentHandler.Quote)
			transport.GET("/routes/:id/slots", studentHandler.ListRouteSlots)
		}

		admin := v1.Group("/admin/transport")
		admin.Use(middleware.RequireAdmin())
		{
			admin.GET("/requests", adminHandler.ListRequests)
			admin.POST("/requests/bulk-approve", adminHandler.BulkApprove)
			admin.POST("/requests/bulk-reject", adminHandler.BulkReject)
			admin.GET("/requests/:id", adminHandler.GetRequest)
			admin.GET("/requests/:id/proof", adminHandler.DownloadProof)
			admin.POST("/requests/:id/verify-payment", adminHandler.VerifyPayment)
			admin.POST("/requests/:id/flag-payment", adminHandler.FlagPayment)
			admin.POST("/requests/:id/approve", adminHandler.ApproveRequest)
			admin.POST("/requests/:id/reject", adminHandler.RejectRequest)
			admin.GET("/slots/:id/manifest", adminHandler.SlotManifest)
			admin.POST("/subscriptions/:id/cancel", adminHandler.CancelSubscription)
			admin.POST("/cron/expire", adminHandler.RunExpiry)
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Stop cron service
	logger.Info("Stopping cron service...")
	cronService.Stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

// newProofStore picks the payment proof backend
func newProofStore(cfg config.ProofConfig) (services.ProofStore, error) {
	switch cfg.Storage {
	case "oss":
		return proofstore.NewOSSStore(proofstore.OSSConfig{
			Endpoint:        cfg.OSS.Endpoint,
			AccessKeyID:     cfg.OSS.AccessKeyID,
			AccessKeySecret: cfg.OSS.AccessKeySecret,
			Bucket:          cfg.OSS.Bucket,
			Prefix:          cfg.OSS.Prefix,
		})
	case "local":
		return proofstore.NewLocalStore(cfg.Dir)
	default:
		return nil, fmt.Errorf("unknown proof storage %q", cfg.Storage)
	}
}

// newNotifier returns the AMQP publisher when enabled, otherwise a log sink
func newNotifier(cfg config.NotifyConfig, logger *logrus.Logger) (services.NotificationSink, func()) {
	if !cfg.Enabled {
		logger.Info("Notifications disabled - logging only")
		return notify.NewLogSink(logger), func() {}
	}

	sink := notify.NewAMQPSink(cfg.RabbitMQURL, cfg.Queue, logger)
	logger.WithField("queue", cfg.Queue).Info("Notifications publish to RabbitMQ")
	return sink, func() {
		if err := sink.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close notification channel")
		}
	}
}

// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *database.PostgresDB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "disconnected",
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "connected",
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
