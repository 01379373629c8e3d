package repository

import (
	"context"
	"errors"

	"cyberpark/internal/model"

	"gorm.io/gorm"
)

var (
	ErrUnitNotFound      = errors.New("车辆不存在")
	ErrUnitNotAvailable  = errors.New("车辆当前不可预订")
	ErrUnitStateConflict = errors.New("车辆状态不允许该操作")
)

type CarUnitRepository struct {
	db *gorm.DB
}

func NewCarUnitRepository(db *gorm.DB) *CarUnitRepository {
	return &CarUnitRepository{db: db}
}

func (r *CarUnitRepository) Create(ctx context.Context, unit *model.CarUnit) error {
	return r.db.WithContext(ctx).Create(unit).Error
}

func (r *CarUnitRepository) GetByID(ctx context.Context, id string) (*model.CarUnit, error) {
	var unit model.CarUnit
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&unit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnitNotFound
		}
		return nil, err
	}
	return &unit, nil
}

// FindFirstAvailable 返回该车型下任意一台空闲车辆；没有则返回 (nil, nil)。
// 读到的结果只是候选，真正的占用必须随后走 Reserve 的条件 UPDATE。
func (r *CarUnitRepository) FindFirstAvailable(ctx context.Context, tx *gorm.DB, carTypeID string) (*model.CarUnit, error) {
	if tx == nil {
		tx = r.db
	}
	var unit model.CarUnit
	err := tx.WithContext(ctx).
		Where("car_type_id = ? AND status = ? AND current_user_id IS NULL",
			carTypeID, model.UnitStatusAvailable).
		First(&unit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &unit, nil
}

// FindInUseByUser 查找该用户当前正在使用的车辆；没有则返回 (nil, nil)。
func (r *CarUnitRepository) FindInUseByUser(ctx context.Context, userID string) (*model.CarUnit, error) {
	var unit model.CarUnit
	err := r.db.WithContext(ctx).
		Where("current_user_id = ? AND status = ?", userID, model.UnitStatusInUse).
		First(&unit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &unit, nil
}

// Reserve 将空闲车辆锁定给用户：AVAILABLE -> RESERVED。
// 条件 UPDATE 保证两个并发 Reserve 只有一个生效，输掉的一方
// 得到 ErrUnitNotAvailable。
func (r *CarUnitRepository) Reserve(ctx context.Context, tx *gorm.DB, unitID, userID string) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.CarUnit{}).
		Where("id = ? AND status = ? AND current_user_id IS NULL",
			unitID, model.UnitStatusAvailable).
		Updates(map[string]interface{}{
			"status":          model.UnitStatusReserved,
			"current_user_id": userID,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUnitNotAvailable
	}
	return nil
}

// StartUse 开始用车：RESERVED -> IN_USE，且必须是锁定该车的同一用户。
// 已经是该用户 IN_USE 时视为重复请求，幂等返回成功。
func (r *CarUnitRepository) StartUse(ctx context.Context, tx *gorm.DB, unitID, userID string) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.CarUnit{}).
		Where("id = ? AND status = ? AND current_user_id = ?",
			unitID, model.UnitStatusReserved, userID).
		Update("status", model.UnitStatusInUse)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		unit, err := r.GetByID(ctx, unitID)
		if err != nil {
			return err
		}
		if unit.Status == model.UnitStatusInUse &&
			unit.CurrentUserID != nil && *unit.CurrentUserID == userID {
			return nil
		}
		return ErrUnitStateConflict
	}
	return nil
}

// Release 释放车辆：RESERVED / IN_USE -> AVAILABLE，清空占用者。
// 幂等：对已经空闲的车辆调用是 no-op。
func (r *CarUnitRepository) Release(ctx context.Context, tx *gorm.DB, unitID string) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.CarUnit{}).
		Where("id = ? AND status IN ?", unitID,
			[]string{model.UnitStatusReserved, model.UnitStatusInUse}).
		Updates(map[string]interface{}{
			"status":          model.UnitStatusAvailable,
			"current_user_id": nil,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// 已经空闲或处于维护状态都按 no-op 处理，只要车辆还存在
		if _, err := r.GetByID(ctx, unitID); err != nil {
			return err
		}
	}
	return nil
}

// CountByStatus 按状态统计某车型的车辆数，供车型列表展示可用量。
func (r *CarUnitRepository) CountByStatus(ctx context.Context, carTypeID, status string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.CarUnit{}).
		Where("car_type_id = ? AND status = ?", carTypeID, status).
		Count(&count).Error
	return count, err
}
