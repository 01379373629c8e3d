package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"cyberpark/internal/config"
	"cyberpark/internal/model"
	"cyberpark/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrNoUnitInUse   = errors.New("用户当前没有使用中的车辆")
	ErrNotUnitDriver = errors.New("用户未在使用该车辆")
	ErrInvalidRide   = errors.New("行程参数不合法")
)

// RideService 行程收尾：把 IN_USE 的车辆释放回空闲，并提供按时长计费。
// 结束行程本身不产生扣费，计费是独立操作（ChargeRide），两者的先后
// 由 HTTP 层编排。
type RideService struct {
	db         *gorm.DB
	cfg        *config.Config
	allocator  *UnitAllocator
	unitRepo   *repository.CarUnitRepository
	carRepo    *repository.CarRepository
	ledger     *LedgerService
	outboxRepo *repository.OutboxRepository
}

func NewRideService(db *gorm.DB, ledger *LedgerService, cfg *config.Config) *RideService {
	return &RideService{
		db:         db,
		cfg:        cfg,
		allocator:  NewUnitAllocator(db),
		unitRepo:   repository.NewCarUnitRepository(db),
		carRepo:    repository.NewCarRepository(db),
		ledger:     ledger,
		outboxRepo: repository.NewOutboxRepository(db),
	}
}

// FinishRide 结束行程并释放车辆。
// unitID 为空时查找该用户当前 IN_USE 的车辆；指定 unitID 时校验
// 车辆确实由该用户使用中。返回释放后的车辆。
func (s *RideService) FinishRide(ctx context.Context, userID, unitID string) (*model.CarUnit, error) {
	var unit *model.CarUnit
	var err error

	if unitID != "" {
		unit, err = s.unitRepo.GetByID(ctx, unitID)
		if err != nil {
			return nil, err
		}
		if unit.CurrentUserID == nil || *unit.CurrentUserID != userID {
			return nil, ErrNotUnitDriver
		}
		if unit.Status != model.UnitStatusInUse {
			return nil, ErrNoUnitInUse
		}
	} else {
		unit, err = s.unitRepo.FindInUseByUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		if unit == nil {
			return nil, ErrNoUnitInUse
		}
	}

	var released *model.CarUnit
	err = s.db.Transaction(func(tx *gorm.DB) error {
		released, err = s.allocator.Release(ctx, tx, unit.ID)
		if err != nil {
			return fmt.Errorf("释放车辆失败: %w", err)
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"event":       "ride.finished",
			"user_id":     userID,
			"car_unit_id": unit.ID,
			"car_type_id": unit.CarTypeID,
			"finished_at": time.Now().Format(time.RFC3339),
		})
		msg := &model.OutboxMessage{
			MessageKey: unit.ID,
			Topic:      s.cfg.Kafka.Topic.RideEvents,
			EventType:  "ride.finished",
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		}
		if err := s.outboxRepo.Create(ctx, tx, msg); err != nil {
			return fmt.Errorf("写入消息失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("行程结束: userID=%s, unitID=%s", userID, unit.ID)
	return released, nil
}

// ChargeRide 按车型单价和行程时长扣费。
// 金额 = price_per_minute × minutes；余额不足时扣费失败，余额不变。
// 返回流水和本次扣费是否触发升级。
func (s *RideService) ChargeRide(ctx context.Context, userID, carTypeID string, minutes int64) (*model.WalletTransaction, bool, error) {
	if minutes <= 0 {
		return nil, false, ErrInvalidRide
	}
	car, err := s.carRepo.GetByID(ctx, carTypeID)
	if err != nil {
		return nil, false, err
	}

	amount := car.PricePerMinute.Mul(decimal.NewFromInt(minutes))
	description := fmt.Sprintf("行程扣费-%s-%d分钟", car.Name, minutes)
	return s.ledger.Deduct(ctx, userID, amount, description)
}
