package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// User 用户表
// 余额（balance）只允许通过钱包流水服务变更，任何直接 UPDATE 余额的
// 代码路径都是错误的。等级（level）由累计消费推导，见 LevelForSpent。
type User struct {
	ID         string          `gorm:"primaryKey;size:36" json:"id"`
	Email      string          `gorm:"uniqueIndex;size:255;not null" json:"email"`
	FullName   string          `gorm:"size:100" json:"full_name"`
	Balance    decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"balance"`
	Level      int             `gorm:"not null;default:1" json:"level"`
	TotalSpent decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"total_spent"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// LevelForSpent 根据累计消费计算用户等级：每消费 step 升一级，初始为 1 级。
// level = floor(totalSpent / step) + 1
func LevelForSpent(totalSpent decimal.Decimal, step decimal.Decimal) int {
	if step.IsZero() || totalSpent.IsNegative() {
		return 1
	}
	return int(totalSpent.Div(step).IntPart()) + 1
}
