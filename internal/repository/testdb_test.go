package repository

import (
	"testing"

	"cyberpark/internal/model"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB 内存 sqlite，限制单连接保证 :memory: 库在并发用例下共享。
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&model.User{},
		&model.CarType{},
		&model.CarUnit{},
		&model.Reservation{},
		&model.WalletTransaction{},
		&model.OutboxMessage{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
