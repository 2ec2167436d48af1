package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"rwax/lending-portal/lending-portal-backend/internal/config"
	"rwax/lending-portal/lending-portal-backend/internal/ledger"
	"rwax/lending-portal/lending-portal-backend/internal/listings"
	"rwax/lending-portal/lending-portal-backend/internal/registry"
	"rwax/lending-portal/lending-portal-backend/internal/token"
)

// The liquidation worker sweeps borrowed listings whose term has elapsed
// and pays the collateral out to the listing owners. It runs separately
// from the API so a slow sweep never blocks request handling.
func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.GetDatabaseURL()), &gorm.Config{})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("Failed to access database pool", zap.Error(err))
	}
	defer sqlDB.Close()

	registryService := registry.NewService(db, logger)
	tokenService := token.NewService(db, logger)
	listingService := listings.NewService(db, logger,
		registryService, tokenService, ledger.SystemClock{},
		listings.NopPublisher{}, cfg.Contract.Account)

	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.Contract.SweepSchedule, func() {
		liquidated, err := listingService.LiquidateDue(context.Background())
		if err != nil {
			logger.Error("liquidation sweep failed", zap.Error(err))
			return
		}
		if liquidated > 0 {
			logger.Info("liquidation sweep complete", zap.Int("liquidated", liquidated))
		}
	})
	if err != nil {
		logger.Fatal("Failed to schedule sweep",
			zap.String("schedule", cfg.Contract.SweepSchedule), zap.Error(err))
	}

	scheduler.Start()
	logger.Info("Liquidation worker started",
		zap.String("schedule", cfg.Contract.SweepSchedule))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Stopping liquidation worker...")
	<-scheduler.Stop().Done()
	logger.Info("Liquidation worker exiting")
}
