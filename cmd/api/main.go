package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"rwax/lending-portal/lending-portal-backend/internal/auth"
	"rwax/lending-portal/lending-portal-backend/internal/config"
	"rwax/lending-portal/lending-portal-backend/internal/ledger"
	"rwax/lending-portal/lending-portal-backend/internal/listings"
	"rwax/lending-portal/lending-portal-backend/internal/notifications"
	"rwax/lending-portal/lending-portal-backend/internal/notifications/websocket"
	"rwax/lending-portal/lending-portal-backend/internal/registry"
	"rwax/lending-portal/lending-portal-backend/internal/token"
	"rwax/lending-portal/lending-portal-backend/internal/tokenize"
)

func main() {
	_ = godotenv.Load()

	// Initialize logger
	logger, _ := zap.NewProduction()
	if os.Getenv("APP_ENV") == "development" {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.GetDatabaseURL()), &gorm.Config{})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("Failed to access database pool", zap.Error(err))
	}
	if cfg.Database.MaxConnections > 0 {
		sqlDB.SetMaxOpenConns(cfg.Database.MaxConnections)
	}
	if cfg.Database.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	}
	if cfg.Database.MaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.Database.MaxLifetime)
	}
	defer sqlDB.Close()

	if err := db.AutoMigrate(
		&registry.Collection{},
		&registry.Schema{},
		&registry.Template{},
		&registry.Asset{},
		&token.Currency{},
		&token.Balance{},
		&tokenize.Token{},
		&tokenize.TemplatePool{},
		&tokenize.TraitFactorSet{},
		&tokenize.PooledAsset{},
		&tokenize.InboundTransfer{},
		&tokenize.ContractBalance{},
		&listings.Listing{},
		&listings.GlobalState{},
		&notifications.TransitionRecord{},
	); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}

	// ---------------- SERVICES ----------------
	registryService := registry.NewService(db, logger)
	tokenService := token.NewService(db, logger)

	tokenizeService := tokenize.NewService(db, logger,
		registryService, tokenService, cfg.Contract.Account)
	registryService.RegisterTransferHook(tokenizeService.HandleAssetTransfer)
	tokenService.RegisterTransferHook(tokenizeService.HandleTokenTransfer)

	hub := websocket.NewHub(logger)
	defer hub.Close()
	notificationService := notifications.NewService(db, logger, hub)

	listingService := listings.NewService(db, logger,
		registryService, tokenService, ledger.SystemClock{},
		notificationService, cfg.Contract.Account)

	// ---------------- HANDLERS ----------------
	authHandler := auth.NewHandler(cfg.Security.JWTSecret, cfg.Security.TokenTTL)
	registryHandler := registry.NewHandler(registryService)
	tokenHandler := token.NewHandler(tokenService)
	tokenizeHandler := tokenize.NewHandler(tokenizeService)
	listingHandler := listings.NewHandler(listingService)
	notificationHandler := notifications.NewHandler(notificationService, hub)

	// Setup Router
	if os.Getenv("APP_ENV") != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	// CORS Middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Register Routes
	auth.RegisterRoutes(router, authHandler, cfg.Security.JWTSecret)

	api := router.Group("/api/v1")
	api.Use(auth.Middleware(cfg.Security.JWTSecret))
	{
		registryHandler.RegisterRoutes(api)
		tokenHandler.RegisterRoutes(api)
		tokenizeHandler.RegisterRoutes(api)
		listingHandler.RegisterRoutes(api)
		notificationHandler.RegisterRoutes(api)
	}

	// Health Check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
		})
	})

	// Start Server
	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("addr", cfg.Server.GetServerAddr()),
		zap.String("contract_account", cfg.Contract.Account))

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}
