package service

import (
	"context"

	"cyberpark/internal/model"
	"cyberpark/internal/repository"

	"gorm.io/gorm"
)

// CarTypeView 车型目录条目，带实时可用车辆数。
type CarTypeView struct {
	*model.CarType
	AvailableUnits int64 `json:"available_units"`
}

// CarService 车型目录。用户看到的是自己等级够得着的车型列表，
// 可用数是查询时刻的快照，真正占用以预订创建为准。
type CarService struct {
	db       *gorm.DB
	carRepo  *repository.CarRepository
	unitRepo *repository.CarUnitRepository
}

func NewCarService(db *gorm.DB) *CarService {
	return &CarService{
		db:       db,
		carRepo:  repository.NewCarRepository(db),
		unitRepo: repository.NewCarUnitRepository(db),
	}
}

// ListForUser 按用户等级过滤的车型目录。
func (s *CarService) ListForUser(ctx context.Context, user *model.User) ([]*CarTypeView, error) {
	cars, err := s.carRepo.ListForLevel(ctx, user.Level)
	if err != nil {
		return nil, err
	}

	views := make([]*CarTypeView, 0, len(cars))
	for _, car := range cars {
		available, err := s.unitRepo.CountByStatus(ctx, car.ID, model.UnitStatusAvailable)
		if err != nil {
			return nil, err
		}
		views = append(views, &CarTypeView{CarType: car, AvailableUnits: available})
	}
	return views, nil
}

// GetByID 车型详情。
func (s *CarService) GetByID(ctx context.Context, id string) (*CarTypeView, error) {
	car, err := s.carRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	available, err := s.unitRepo.CountByStatus(ctx, car.ID, model.UnitStatusAvailable)
	if err != nil {
		return nil, err
	}
	return &CarTypeView{CarType: car, AvailableUnits: available}, nil
}
