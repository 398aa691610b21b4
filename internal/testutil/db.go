// Package testutil provides shared helpers for tests. It must not be
// imported by production code.
package testutil

import (
	"fmt"
	"testing"

	"tx-engine/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewTestDB opens an isolated in-memory database with the service schema
// migrated. Shared-cache mode keeps one database visible across the pool's
// connections; a single open connection avoids SQLite table locks when
// tests exercise concurrent sessions.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(
		&models.PendingTransaction{},
		&models.WalletLock{},
		&models.ChainConfig{},
	); err != nil {
		t.Fatalf("failed to migrate test schema: %v", err)
	}

	return db
}
