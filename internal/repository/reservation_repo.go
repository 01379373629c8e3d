package repository

import (
	"context"
	"errors"
	"time"

	"cyberpark/internal/model"

	"gorm.io/gorm"
)

var (
	ErrReservationNotFound  = errors.New("预订不存在")
	ErrReservationNotActive = errors.New("预订状态不允许该操作")
)

type ReservationRepository struct {
	db *gorm.DB
}

func NewReservationRepository(db *gorm.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

func (r *ReservationRepository) Create(ctx context.Context, tx *gorm.DB, reservation *model.Reservation) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(reservation).Error
}

func (r *ReservationRepository) GetByID(ctx context.Context, id string) (*model.Reservation, error) {
	var reservation model.Reservation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&reservation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}
	return &reservation, nil
}

// GetActiveByUser 查询用户的 ACTIVE 预订；没有则返回 (nil, nil)。
// 注意：返回的记录可能已经过了 expires_at，过期判定由服务层负责。
func (r *ReservationRepository) GetActiveByUser(ctx context.Context, userID string) (*model.Reservation, error) {
	var reservation model.Reservation
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, model.ReservationStatusActive).
		First(&reservation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &reservation, nil
}

// UpdateStatus 预订状态流转，条件 UPDATE（WHERE 带当前状态）。
// 返回是否由本次调用完成流转：懒过期和后台清理可能同时尝试把同一条
// ACTIVE 预订置为 EXPIRED，只有赢家返回 true，由赢家负责释放车辆。
func (r *ReservationRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, id, fromStatus, toStatus string) (bool, error) {
	if !model.CanReservationTransition(fromStatus, toStatus) {
		return false, ErrReservationNotActive
	}
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Reservation{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Update("status", toStatus)

	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListExpiredActive 供后台清理任务使用：已过 TTL 但仍处于 ACTIVE 的预订。
func (r *ReservationRepository) ListExpiredActive(ctx context.Context, limit int) ([]*model.Reservation, error) {
	var reservations []*model.Reservation
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", model.ReservationStatusActive, time.Now()).
		Limit(limit).
		Find(&reservations).Error
	return reservations, err
}

func (r *ReservationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*model.Reservation, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var reservations []*model.Reservation
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&reservations).Error
	return reservations, err
}
