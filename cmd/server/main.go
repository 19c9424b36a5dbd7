package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/booking-core/internal/clock"
	"github.com/smarttransit/booking-core/internal/config"
	"github.com/smarttransit/booking-core/internal/database"
	"github.com/smarttransit/booking-core/internal/handlers"
	"github.com/smarttransit/booking-core/internal/middleware"
	"github.com/smarttransit/booking-core/internal/services"
	"github.com/smarttransit/booking-core/pkg/jwt"
	"github.com/smarttransit/booking-core/pkg/notify"
	"github.com/smarttransit/booking-core/pkg/payment"
	"github.com/smarttransit/booking-core/pkg/webhookguard"
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

	logger.Info("Starting SmartTransit Booking Core")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Repositories
	clk := clock.Real{}
	tripRepo := database.NewTripRepository(db)
	inventoryRepo := database.NewInventoryRepository(db)
	saleRepo := database.NewSaleRepository(db, inventoryRepo)
	formRepo := database.NewPassengerFormRepository(db)
	paymentRepo := database.NewPaymentRepository(db, logger)

	// Payment gateways; mock mode is decided here, once
	adapters := []payment.Gateway{
		payment.NewMercadoPagoGateway(gatewayConfig(cfg.MercadoPago), logger),
		payment.NewIzipayGateway(gatewayConfig(cfg.Izipay), logger),
	}
	if cfg.Server.Environment == "production" {
		adapters = payment.WithoutMocks(adapters...)
	}
	gateways := payment.NewRegistry(adapters...)
	for _, name := range gateways.Names() {
		gw, _ := gateways.Get(name)
		if gw.IsMock() {
			logger.WithField("gateway", name).Warn("⚠️  Payment gateway running in MOCK mode - payments are auto-approved")
		} else {
			logger.WithField("gateway", name).Info("✓ Payment gateway configured")
		}
	}

	// Optional webhook replay guard
	var guard *webhookguard.Guard
	if cfg.Redis.URL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		guard, err = webhookguard.NewFromURL(ctx, cfg.Redis.URL, cfg.Redis.ReplayTTL)
		cancel()
		if err != nil {
			logger.WithError(err).Warn("Webhook replay guard disabled, continuing without redis")
			guard = nil
		} else {
			logger.Info("✓ Webhook replay guard connected")
			defer guard.Close()
		}
	}

	// Services
	logger.Info("Initializing services...")
	inventoryService := services.NewSeatInventoryService(inventoryRepo, tripRepo, clk, cfg.Booking.HoldDuration, logger)
	saleService := services.NewSaleService(
		tripRepo,
		inventoryService,
		saleRepo,
		services.NewReferenceGenerator(),
		gateways,
		notify.NewWhatsAppLinkDispatcher(logger),
		clk,
		services.SaleConfig{
			FormTTL:           cfg.Booking.FormTTL,
			FormGrace:         cfg.Booking.FormGrace,
			PublicFormBaseURL: cfg.Booking.PublicFormBaseURL,
			Currency:          cfg.Booking.Currency,
			CompanyName:       cfg.Booking.CompanyName,
		},
		logger,
	)
	formService := services.NewPassengerFormService(formRepo, clk, logger)
	reconciler := services.NewWebhookReconcilerService(gateways, paymentRepo, guard, logger)
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)

	reclaimer := services.NewLockReclaimerService(
		inventoryRepo,
		clk,
		logger,
		cfg.Booking.ReclaimInterval,
		cfg.Booking.ReclaimBatchSize,
	)
	reclaimer.Start()
	logger.Info("✓ Lock reclaimer started")

	reportLocation, err := time.LoadLocation(cfg.Booking.ReportTimezone)
	if err != nil {
		logger.WithError(err).Warnf("Unknown report timezone %q, using UTC", cfg.Booking.ReportTimezone)
		reportLocation = time.UTC
	}

	// Handlers
	inventoryHandler := handlers.NewInventoryHandler(inventoryService, logger)
	saleHandler := handlers.NewSaleHandler(saleService, clk, reportLocation, logger)
	formHandler := handlers.NewFormHandler(formService, logger)
	webhookHandler := handlers.NewWebhookHandler(reconciler, logger)

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Server.EnableRequestLog {
		router.Use(middleware.RequestLogger(logger))
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", healthCheckHandler(db))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		// Public: the form token and the webhook signature are the credentials
		v1.GET("/forms/:token", formHandler.GetForm)
		v1.POST("/forms/:token", formHandler.CompleteForm)
		v1.POST("/webhooks/:gateway", webhookHandler.HandleWebhook)

		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware(jwtService, logger))
		{
			protected.POST("/trips/:trip_id/locks", inventoryHandler.LockSeats)
			protected.DELETE("/trips/:trip_id/locks", inventoryHandler.ReleaseSeats)

			sales := protected.Group("/sales")
			{
				sales.POST("", saleHandler.CreateSale)
				sales.GET("/mine", saleHandler.GetMySales)
				sales.GET("/provider", saleHandler.GetProviderSales)
				sales.GET("/pending-forms", saleHandler.GetPendingForms)
				sales.POST("/:id/cancel", saleHandler.CancelSale)
				sales.POST("/:id/resend-form", saleHandler.ResendForm)
				sales.GET("/:id/receipt", saleHandler.Receipt)
			}
		}
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	// Stop the sweep after in-flight requests finish
	logger.Info("Stopping lock reclaimer...")
	reclaimer.Stop()

	logger.Info("Server exited successfully")
}

func gatewayConfig(g config.GatewayConfig) payment.Config {
	return payment.Config{
		AccessToken:     g.AccessToken,
		WebhookSecret:   g.WebhookSecret,
		APIBaseURL:      g.APIBaseURL,
		NotificationURL: g.NotificationURL,
		ReturnURL:       g.ReturnURL,
	}
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
