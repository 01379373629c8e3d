package model

import (
	"time"
)

const (
	UnitStatusAvailable   = "AVAILABLE"   // 空闲，可被预订
	UnitStatusReserved    = "RESERVED"    // 已被某个用户锁定，尚未开始用车
	UnitStatusInUse       = "IN_USE"      // 行程进行中
	UnitStatusMaintenance = "MAINTENANCE" // 维护中，由运营后台人工设置，不参与调度
)

// ValidUnitTransitions 车辆单元状态机的允许流转关系。
// MAINTENANCE 不出现在任何流转路径上：既不能通过预订/还车进入，
// 也不能通过它们离开。
var ValidUnitTransitions = map[string][]string{
	UnitStatusAvailable:   {UnitStatusReserved},
	UnitStatusReserved:    {UnitStatusInUse, UnitStatusAvailable},
	UnitStatusInUse:       {UnitStatusAvailable},
	UnitStatusMaintenance: {},
}

// CanUnitTransition 判断 from -> to 是否是允许的状态流转。
func CanUnitTransition(from, to string) bool {
	allowed, ok := ValidUnitTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// CarUnit 车辆单元表，对应一台实体车。
//
// 不变式：current_user_id 非空 <=> status 为 RESERVED 或 IN_USE。
// 所有状态变更都必须走条件 UPDATE（WHERE 带旧状态），不允许
// 读出结构体改字段再整行保存，否则并发下会互相覆盖。
type CarUnit struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	CarTypeID     string    `gorm:"index;size:36;not null" json:"car_type_id"`
	LocationID    *string   `gorm:"size:36" json:"location_id,omitempty"`
	Name          string    `gorm:"size:100" json:"name"`
	Status        string    `gorm:"type:varchar(20);index;not null" json:"status"`
	CurrentUserID *string   `gorm:"index;size:36" json:"current_user_id,omitempty"`
	Battery       int       `gorm:"not null;default:100" json:"battery"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CarUnit) TableName() string {
	return "car_unit"
}
