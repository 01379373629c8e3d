package model

import (
	"time"
)

const (
	ReservationStatusActive   = "ACTIVE"
	ReservationStatusExpired  = "EXPIRED"
	ReservationStatusUsed     = "USED"
	ReservationStatusCanceled = "CANCELED"
)

// ValidReservationTransitions 预订状态机。
// EXPIRED / USED / CANCELED 都是终态，一旦进入不再流转。
var ValidReservationTransitions = map[string][]string{
	ReservationStatusActive: {
		ReservationStatusExpired,
		ReservationStatusUsed,
		ReservationStatusCanceled,
	},
	ReservationStatusExpired:  {},
	ReservationStatusUsed:     {},
	ReservationStatusCanceled: {},
}

// CanReservationTransition 判断 from -> to 是否是允许的状态流转。
func CanReservationTransition(from, to string) bool {
	allowed, ok := ValidReservationTransitions[from]
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

// Reservation 预订表：一个用户对一台车辆单元的限时占用。
//
// 约束：
//  1. 同一用户同一时刻至多一条 ACTIVE 预订；
//  2. 同一车辆单元同一时刻至多被一条 ACTIVE 预订绑定；
//  3. expires_at = start_time + TTL（TTL 来自业务配置，默认 10 分钟）。
type Reservation struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	ReservationNo string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"reservation_no"`
	CarTypeID     string    `gorm:"index;size:36;not null" json:"car_type_id"`
	CarUnitID     string    `gorm:"index;size:36;not null" json:"car_unit_id"`
	UserID        string    `gorm:"index;size:36;not null" json:"user_id"`
	StartTime     time.Time `gorm:"not null" json:"start_time"`
	ExpiresAt     time.Time `gorm:"not null;index" json:"expires_at"`
	Status        string    `gorm:"type:varchar(20);index;not null" json:"status"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Reservation) TableName() string {
	return "reservation"
}
