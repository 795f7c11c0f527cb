package models

import (
	"time"

	"github.com/google/uuid"
)

// HardwareReservation is one in-flight loan of an item by a user. IsReserved
// distinguishes a claim awaiting pickup from a unit already handed out.
type HardwareReservation struct {
	Token      string    `gorm:"column:token;primaryKey"`
	UserID     string    `gorm:"column:user_id;not null;uniqueIndex:uq_hardware_reservations_user_item,priority:1"`
	ItemID     uuid.UUID `gorm:"column:item_id;type:uuid;not null;uniqueIndex:uq_hardware_reservations_user_item,priority:2;index:idx_hardware_reservations_item"`
	Quantity   int       `gorm:"column:quantity;not null"`
	IsReserved bool      `gorm:"column:is_reserved;not null;index:idx_hardware_reservations_expiry,priority:1"`
	Expiry     time.Time `gorm:"column:expiry;not null;index:idx_hardware_reservations_expiry,priority:2"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (HardwareReservation) TableName() string { return "hardware_reservations" }

// ExpiredAt reports whether a pending reservation has lapsed at now.
func (r HardwareReservation) ExpiredAt(now time.Time) bool {
	return r.IsReserved && !r.Expiry.After(now)
}
