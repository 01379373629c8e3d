package service

import (
	"context"
	"errors"

	"cyberpark/internal/model"
	"cyberpark/internal/repository"

	"gorm.io/gorm"
)

var ErrNoAvailableUnits = errors.New("该车型暂无可用车辆")

// 抢车重试上限：候选车辆被并发请求抢走时换一台再试。
const allocateMaxAttempts = 3

// UnitAllocator 负责车辆单元的分配与状态流转。
// 所有流转都是仓储层的条件 UPDATE，同一台车的并发操作只有一个生效，
// 输掉的一方拿到冲突错误，由调用方决定重试还是放弃。
type UnitAllocator struct {
	db       *gorm.DB
	unitRepo *repository.CarUnitRepository
}

func NewUnitAllocator(db *gorm.DB) *UnitAllocator {
	return &UnitAllocator{
		db:       db,
		unitRepo: repository.NewCarUnitRepository(db),
	}
}

// StartUse 开始用车：RESERVED -> IN_USE，必须是锁定该车的用户本人。
func (a *UnitAllocator) StartUse(ctx context.Context, tx *gorm.DB, unitID, userID string) error {
	return a.unitRepo.StartUse(ctx, tx, unitID, userID)
}

// Release 释放车辆回空闲。幂等：释放已空闲的车辆是 no-op。
func (a *UnitAllocator) Release(ctx context.Context, tx *gorm.DB, unitID string) (*model.CarUnit, error) {
	if err := a.unitRepo.Release(ctx, tx, unitID); err != nil {
		return nil, err
	}
	return a.unitRepo.GetByID(ctx, unitID)
}

// AllocateForType 为用户挑选并锁定该车型的一台空闲车辆。
// "挑选"和"锁定"之间可能输给并发请求，输了就换下一台候选，
// 连续几次都拿不到或者压根没有空闲车辆时返回 ErrNoAvailableUnits。
func (a *UnitAllocator) AllocateForType(ctx context.Context, tx *gorm.DB, carTypeID, userID string) (*model.CarUnit, error) {
	for i := 0; i < allocateMaxAttempts; i++ {
		candidate, err := a.unitRepo.FindFirstAvailable(ctx, tx, carTypeID)
		if err != nil {
			return nil, err
		}
		if candidate == nil {
			return nil, ErrNoAvailableUnits
		}

		err = a.unitRepo.Reserve(ctx, tx, candidate.ID, userID)
		if err == nil {
			candidate.Status = model.UnitStatusReserved
			candidate.CurrentUserID = &userID
			return candidate, nil
		}
		if errors.Is(err, repository.ErrUnitNotAvailable) {
			// 候选被抢走，换一台再试
			continue
		}
		return nil, err
	}
	return nil, ErrNoAvailableUnits
}
