package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"cyberpark/internal/config"
	"cyberpark/internal/infrastructure/lock"
	"cyberpark/internal/model"
	"cyberpark/internal/repository"
	"cyberpark/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrAlreadyHasActiveReservation = errors.New("用户已有进行中的预订")
	ErrLevelTooLow                 = errors.New("用户等级不足")
	ErrNotReservationOwner         = errors.New("无权操作该预订")
)

type ReservationService struct {
	db              *gorm.DB
	redisClient     *redis.Client
	cfg             *config.Config
	allocator       *UnitAllocator
	reservationRepo *repository.ReservationRepository
	carRepo         *repository.CarRepository
	userRepo        *repository.UserRepository
	outboxRepo      *repository.OutboxRepository
}

func NewReservationService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *ReservationService {
	return &ReservationService{
		db:              db,
		redisClient:     redisClient,
		cfg:             cfg,
		allocator:       NewUnitAllocator(db),
		reservationRepo: repository.NewReservationRepository(db),
		carRepo:         repository.NewCarRepository(db),
		userRepo:        repository.NewUserRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db),
	}
}

func (s *ReservationService) ttl() time.Duration {
	return time.Duration(s.cfg.Business.ReservationTTLMinutes) * time.Minute
}

// Create 创建预订。
//
// 同一用户的创建请求通过分布式锁串行化，保证"无进行中预订"检查
// 和落库之间不会插进第二个创建请求；抢车本身靠条件 UPDATE，
// 不同用户抢同一台车只有一个成功。
func (s *ReservationService) Create(ctx context.Context, userID, carTypeID string) (*model.Reservation, error) {
	resLock := lock.NewReservationLock(s.redisClient, userID)
	if err := resLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer resLock.Unlock(ctx)

	// 懒过期在这一步顺带完成：拿到的一定是未过期的 ACTIVE 预订
	active, err := s.FindActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, ErrAlreadyHasActiveReservation
	}

	car, err := s.carRepo.GetByID(ctx, carTypeID)
	if err != nil {
		return nil, err
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Level < car.MinLevel {
		return nil, fmt.Errorf("%w: 当前等级 %d，该车型要求等级 %d", ErrLevelTooLow, user.Level, car.MinLevel)
	}

	var reservation *model.Reservation
	err = s.db.Transaction(func(tx *gorm.DB) error {
		unit, err := s.allocator.AllocateForType(ctx, tx, carTypeID, userID)
		if err != nil {
			return err
		}

		now := time.Now()
		reservation = &model.Reservation{
			ID:            uuid.NewString(),
			ReservationNo: idgen.GenerateReservationNo(),
			CarTypeID:     carTypeID,
			CarUnitID:     unit.ID,
			UserID:        userID,
			StartTime:     now,
			ExpiresAt:     now.Add(s.ttl()),
			Status:        model.ReservationStatusActive,
		}
		if err := s.reservationRepo.Create(ctx, tx, reservation); err != nil {
			return fmt.Errorf("创建预订失败: %w", err)
		}

		return s.enqueueEvent(ctx, tx, "reservation.created", reservation)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("预订创建成功: reservationNo=%s, userID=%s, unitID=%s",
		reservation.ReservationNo, userID, reservation.CarUnitID)
	return reservation, nil
}

// FindActiveByUser 查询用户的进行中预订。
//
// 懒过期：读到的 ACTIVE 预订已过 TTL 时，就地把它置为 EXPIRED 并释放
// 车辆，然后返回"无预订"。过期动作是条件 UPDATE，和后台清理任务
// 竞争时只有一方生效，车辆保证只被释放一次。
func (s *ReservationService) FindActiveByUser(ctx context.Context, userID string) (*model.Reservation, error) {
	reservation, err := s.reservationRepo.GetActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if reservation == nil {
		return nil, nil
	}
	if reservation.ExpiresAt.After(time.Now()) {
		return reservation, nil
	}

	if err := s.expire(ctx, reservation); err != nil {
		return nil, err
	}
	return nil, nil
}

// expire 把过期的 ACTIVE 预订置为 EXPIRED 并释放车辆。
// 只有赢得状态 CAS 的调用方执行释放。
func (s *ReservationService) expire(ctx context.Context, reservation *model.Reservation) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		won, err := s.reservationRepo.UpdateStatus(ctx, tx, reservation.ID,
			model.ReservationStatusActive, model.ReservationStatusExpired)
		if err != nil {
			return err
		}
		if !won {
			// 他人已处理（另一次读取或后台清理）
			return nil
		}
		if _, err := s.allocator.Release(ctx, tx, reservation.CarUnitID); err != nil {
			return fmt.Errorf("释放车辆失败: %w", err)
		}
		log.Printf("预订已过期: reservationNo=%s, userID=%s, unitID=%s",
			reservation.ReservationNo, reservation.UserID, reservation.CarUnitID)
		return s.enqueueEvent(ctx, tx, "reservation.expired", reservation)
	})
}

// ExpireOverdue 批量处理已过 TTL 仍为 ACTIVE 的预订，供后台清理任务调用。
// 返回本轮实际处理的条数。
func (s *ReservationService) ExpireOverdue(ctx context.Context, limit int) (int, error) {
	reservations, err := s.reservationRepo.ListExpiredActive(ctx, limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, reservation := range reservations {
		if err := s.expire(ctx, reservation); err != nil {
			log.Printf("过期预订处理失败: reservationNo=%s, err=%v", reservation.ReservationNo, err)
			continue
		}
		expired++
	}
	return expired, nil
}

// Cancel 取消预订并释放车辆。
func (s *ReservationService) Cancel(ctx context.Context, userID, reservationID string) error {
	reservation, err := s.loadOwnedActive(ctx, userID, reservationID)
	if err != nil {
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		won, err := s.reservationRepo.UpdateStatus(ctx, tx, reservation.ID,
			model.ReservationStatusActive, model.ReservationStatusCanceled)
		if err != nil {
			return err
		}
		if !won {
			return repository.ErrReservationNotActive
		}
		if _, err := s.allocator.Release(ctx, tx, reservation.CarUnitID); err != nil {
			return fmt.Errorf("释放车辆失败: %w", err)
		}
		return s.enqueueEvent(ctx, tx, "reservation.canceled", reservation)
	})
	if err != nil {
		return err
	}

	log.Printf("预订已取消: reservationNo=%s, userID=%s", reservation.ReservationNo, userID)
	return nil
}

// Use 用车：车辆 RESERVED -> IN_USE，预订进入终态 USED。
// 车辆保持 IN_USE 直到行程结束，结束动作由行程服务负责。
func (s *ReservationService) Use(ctx context.Context, userID, reservationID string) error {
	reservation, err := s.loadOwnedActive(ctx, userID, reservationID)
	if err != nil {
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.allocator.StartUse(ctx, tx, reservation.CarUnitID, userID); err != nil {
			return err
		}
		won, err := s.reservationRepo.UpdateStatus(ctx, tx, reservation.ID,
			model.ReservationStatusActive, model.ReservationStatusUsed)
		if err != nil {
			return err
		}
		if !won {
			return repository.ErrReservationNotActive
		}
		return s.enqueueEvent(ctx, tx, "reservation.used", reservation)
	})
	if err != nil {
		return err
	}

	log.Printf("预订开始用车: reservationNo=%s, userID=%s, unitID=%s",
		reservation.ReservationNo, userID, reservation.CarUnitID)
	return nil
}

func (s *ReservationService) ListByUser(ctx context.Context, userID string, limit int) ([]*model.Reservation, error) {
	return s.reservationRepo.ListByUser(ctx, userID, limit)
}

// loadOwnedActive 加载预订并做归属/状态/TTL 三重校验。
// 已过 TTL 的预订就地过期，并按"不存在"上报给调用方。
func (s *ReservationService) loadOwnedActive(ctx context.Context, userID, reservationID string) (*model.Reservation, error) {
	reservation, err := s.reservationRepo.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if reservation.UserID != userID {
		return nil, ErrNotReservationOwner
	}
	if reservation.Status != model.ReservationStatusActive {
		return nil, repository.ErrReservationNotActive
	}
	if !reservation.ExpiresAt.After(time.Now()) {
		if err := s.expire(ctx, reservation); err != nil {
			return nil, err
		}
		return nil, repository.ErrReservationNotFound
	}
	return reservation, nil
}

// enqueueEvent 领域事件与业务变更同事务落入 outbox，由后台任务投递。
func (s *ReservationService) enqueueEvent(ctx context.Context, tx *gorm.DB, eventType string, reservation *model.Reservation) error {
	payload, _ := json.Marshal(map[string]interface{}{
		"event":          eventType,
		"reservation_id": reservation.ID,
		"reservation_no": reservation.ReservationNo,
		"user_id":        reservation.UserID,
		"car_type_id":    reservation.CarTypeID,
		"car_unit_id":    reservation.CarUnitID,
		"expires_at":     reservation.ExpiresAt.Format(time.RFC3339),
	})

	msg := &model.OutboxMessage{
		MessageKey: reservation.ReservationNo,
		Topic:      s.cfg.Kafka.Topic.ReservationEvents,
		EventType:  eventType,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	}
	if err := s.outboxRepo.Create(ctx, tx, msg); err != nil {
		return fmt.Errorf("写入消息失败: %w", err)
	}
	return nil
}
