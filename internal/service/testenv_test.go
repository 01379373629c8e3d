package service

import (
	"context"
	"testing"
	"time"

	"cyberpark/internal/config"
	"cyberpark/internal/model"
	"cyberpark/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestEnv 内存 sqlite + miniredis，覆盖服务层依赖的全部基础设施。
// sqlite 限制单连接保证 :memory: 库在并发用例下共享。
func newTestEnv(t *testing.T) (*gorm.DB, *redis.Client, *config.Config) {
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

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Kafka.Topic = config.KafkaTopicConfig{
		ReservationEvents: "test.reservation.events",
		RideEvents:        "test.ride.events",
		WalletEvents:      "test.wallet.events",
	}
	return db, rdb, cfg
}

func seedUser(t *testing.T, db *gorm.DB, balance string, level int) *model.User {
	t.Helper()
	bal, err := decimal.NewFromString(balance)
	if err != nil {
		t.Fatalf("parse balance: %v", err)
	}
	user := &model.User{
		ID:         uuid.NewString(),
		Email:      uuid.NewString() + "@example.com",
		FullName:   "Test User",
		Balance:    bal,
		Level:      level,
		TotalSpent: decimal.Zero,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func seedCarType(t *testing.T, db *gorm.DB, pricePerMinute string, minLevel int) *model.CarType {
	t.Helper()
	price, err := decimal.NewFromString(pricePerMinute)
	if err != nil {
		t.Fatalf("parse price: %v", err)
	}
	car := &model.CarType{
		ID:             uuid.NewString(),
		Name:           "Falcon",
		TopSpeed:       180,
		PricePerMinute: price,
		MinLevel:       minLevel,
		Quantity:       1,
	}
	if err := db.Create(car).Error; err != nil {
		t.Fatalf("create car type: %v", err)
	}
	return car
}

func seedCarUnit(t *testing.T, db *gorm.DB, carTypeID, status string) *model.CarUnit {
	t.Helper()
	unit := &model.CarUnit{
		ID:        uuid.NewString(),
		CarTypeID: carTypeID,
		Name:      "unit-" + uuid.NewString()[:8],
		Status:    status,
		Battery:   100,
	}
	if err := db.Create(unit).Error; err != nil {
		t.Fatalf("create unit: %v", err)
	}
	return unit
}

func getUnit(t *testing.T, db *gorm.DB, id string) *model.CarUnit {
	t.Helper()
	unit, err := repository.NewCarUnitRepository(db).GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get unit: %v", err)
	}
	return unit
}

func getUser(t *testing.T, db *gorm.DB, id string) *model.User {
	t.Helper()
	user, err := repository.NewUserRepository(db).GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	return user
}

func getReservation(t *testing.T, db *gorm.DB, id string) *model.Reservation {
	t.Helper()
	reservation, err := repository.NewReservationRepository(db).GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get reservation: %v", err)
	}
	return reservation
}

// expireReservation 把预订的 TTL 拨到过去，模拟超时未取车。
func expireReservation(t *testing.T, db *gorm.DB, id string) {
	t.Helper()
	err := db.Model(&model.Reservation{}).
		Where("id = ?", id).
		Update("expires_at", time.Now().Add(-time.Minute)).Error
	if err != nil {
		t.Fatalf("rewind expires_at: %v", err)
	}
}

func countOutbox(t *testing.T, db *gorm.DB, eventType string) int64 {
	t.Helper()
	var count int64
	err := db.Model(&model.OutboxMessage{}).
		Where("event_type = ?", eventType).
		Count(&count).Error
	if err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	return count
}
