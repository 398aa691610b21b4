package db

import (
	"fmt"

	"tx-engine/internal/config"
	"tx-engine/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitDB connects to Postgres and migrates the tables this service owns.
func InitDB(log *logrus.Logger) error {
	if config.AppConfig == nil || config.AppConfig.Database.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}

	var err error
	DB, err = gorm.Open(postgres.Open(config.AppConfig.Database.DSN), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
		PrepareStmt:                              true,
		TranslateError:                           true,
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}

	log.Info("database connected")

	if err := DB.AutoMigrate(
		&models.PendingTransaction{},
		&models.WalletLock{},
		&models.ChainConfig{},
	); err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}

	log.Info("database schema migrated")
	return nil
}
