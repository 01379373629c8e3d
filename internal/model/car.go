package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CarType 车型表
// 一个车型对应多台实体车辆（CarUnit）。min_level 是预订该车型的
// 最低用户等级门槛。
type CarType struct {
	ID             string          `gorm:"primaryKey;size:36" json:"id"`
	Name           string          `gorm:"size:100;not null" json:"name"`
	TopSpeed       int             `gorm:"not null;default:0" json:"top_speed"`
	PricePerMinute decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price_per_minute"`
	MinLevel       int             `gorm:"not null;default:1" json:"min_level"`
	Description    string          `gorm:"type:text" json:"description"`
	ImageURL       string          `gorm:"size:255" json:"image_url,omitempty"`
	LocationID     *string         `gorm:"size:36" json:"location_id,omitempty"`
	Quantity       int             `gorm:"not null;default:0" json:"quantity"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CarType) TableName() string {
	return "car_type"
}
