package repository

import (
	"context"
	"errors"

	"cyberpark/internal/model"

	"gorm.io/gorm"
)

var ErrCarTypeNotFound = errors.New("车型不存在")

type CarRepository struct {
	db *gorm.DB
}

func NewCarRepository(db *gorm.DB) *CarRepository {
	return &CarRepository{db: db}
}

func (r *CarRepository) Create(ctx context.Context, car *model.CarType) error {
	return r.db.WithContext(ctx).Create(car).Error
}

func (r *CarRepository) GetByID(ctx context.Context, id string) (*model.CarType, error) {
	var car model.CarType
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&car).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCarTypeNotFound
		}
		return nil, err
	}
	return &car, nil
}

// ListForLevel 列出等级门槛不超过给定用户等级的车型。
func (r *CarRepository) ListForLevel(ctx context.Context, userLevel int) ([]*model.CarType, error) {
	if userLevel < 1 {
		userLevel = 1
	}
	var cars []*model.CarType
	err := r.db.WithContext(ctx).
		Where("min_level <= ?", userLevel).
		Order("min_level ASC, name ASC").
		Find(&cars).Error
	return cars, err
}
