package models

import (
	"time"

	"github.com/google/uuid"
)

// HardwareItem is a lendable piece of inventory with denormalized stock counters.
type HardwareItem struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name          string    `gorm:"column:name;not null;uniqueIndex:uq_hardware_items_name"`
	ItemURL       string    `gorm:"column:item_url;not null"`
	TotalStock    int       `gorm:"column:total_stock;not null"`
	ReservedStock int       `gorm:"column:reserved_stock;not null;default:0"`
	TakenStock    int       `gorm:"column:taken_stock;not null;default:0"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (HardwareItem) TableName() string { return "hardware_items" }

// Available returns the units neither reserved nor taken.
func (h HardwareItem) Available() int {
	return h.TotalStock - (h.ReservedStock + h.TakenStock)
}

// HasOutstanding reports whether any unit is reserved or lent out.
func (h HardwareItem) HasOutstanding() bool {
	return h.ReservedStock != 0 || h.TakenStock != 0
}
