package hardware

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/hackportal/hackportal-backend/pkg/db/models"
)

// NewItem is one entry of an AddItems batch.
type NewItem struct {
	Name       string `json:"name" yaml:"name" validate:"required,max=200"`
	ItemURL    string `json:"item_url" yaml:"item_url" validate:"required,url"`
	TotalStock int    `json:"total_stock" yaml:"total_stock" validate:"gte=1,lte=2147483647"`
}

// ItemUpdate carries the editable item fields; nil fields are left unchanged.
type ItemUpdate struct {
	Name       *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	ItemURL    *string `json:"item_url,omitempty" validate:"omitempty,url"`
	TotalStock *int    `json:"total_stock,omitempty" validate:"omitempty,gte=1,lte=2147483647"`
}

// ItemDTO exposes a hardware item and its counters.
type ItemDTO struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	ItemURL       string    `json:"item_url"`
	TotalStock    int       `json:"total_stock"`
	ReservedStock int       `json:"reserved_stock"`
	TakenStock    int       `json:"taken_stock"`
	ItemsLeft     int       `json:"items_left"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// UserItemView is one row of a user's inventory listing. Reservation fields
// are populated only from the requesting user's own reservation.
type UserItemView struct {
	ItemID           uuid.UUID `json:"item_id"`
	Name             string    `json:"name"`
	ItemURL          string    `json:"item_url"`
	TotalStock       int       `json:"total_stock"`
	ItemsLeft        int       `json:"items_left"`
	Reserved         bool      `json:"reserved"`
	Taken            bool      `json:"taken"`
	Quantity         int       `json:"quantity"`
	Token            string    `json:"token,omitempty"`
	ExpiresInMinutes int       `json:"expires_in_minutes"`
}

// AdminItemView lists an item with every outstanding reservation against it.
type AdminItemView struct {
	ItemDTO
	Reservations []AdminReservationView `json:"reservations"`
}

// AdminReservationView is a reservation annotated with its holder.
type AdminReservationView struct {
	Token            string    `json:"token"`
	UserID           string    `json:"user_id"`
	UserName         string    `json:"user_name,omitempty"`
	Quantity         int       `json:"quantity"`
	Reserved         bool      `json:"reserved"`
	Taken            bool      `json:"taken"`
	Expiry           time.Time `json:"expiry"`
	ExpiresInMinutes int       `json:"expires_in_minutes"`
}

// ReservationView is what a volunteer desk sees when looking up a token.
type ReservationView struct {
	Token            string    `json:"token"`
	UserID           string    `json:"user_id"`
	ItemID           uuid.UUID `json:"item_id"`
	ItemName         string    `json:"item_name"`
	Quantity         int       `json:"quantity"`
	Reserved         bool      `json:"reserved"`
	Taken            bool      `json:"taken"`
	ExpiresInMinutes int       `json:"expires_in_minutes"`
}

// StockView is the user-agnostic stock of one item.
type StockView struct {
	ItemID        uuid.UUID `json:"item_id"`
	Name          string    `json:"name"`
	TotalStock    int       `json:"total_stock"`
	ReservedStock int       `json:"reserved_stock"`
	TakenStock    int       `json:"taken_stock"`
	ItemsLeft     int       `json:"items_left"`
}

// FromModel maps a persisted item into a DTO.
func FromModel(m *models.HardwareItem) *ItemDTO {
	if m == nil {
		return nil
	}
	return &ItemDTO{
		ID:            m.ID,
		Name:          m.Name,
		ItemURL:       m.ItemURL,
		TotalStock:    m.TotalStock,
		ReservedStock: m.ReservedStock,
		TakenStock:    m.TakenStock,
		ItemsLeft:     m.Available(),
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func stockFromModel(m models.HardwareItem) StockView {
	return StockView{
		ItemID:        m.ID,
		Name:          m.Name,
		TotalStock:    m.TotalStock,
		ReservedStock: m.ReservedStock,
		TakenStock:    m.TakenStock,
		ItemsLeft:     m.Available(),
	}
}

// expiresInMinutes rounds the remaining reservation window up to whole
// minutes. Taken or lapsed reservations report 0.
func expiresInMinutes(isReserved bool, expiry, now time.Time) int {
	if !isReserved {
		return 0
	}
	remaining := expiry.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Minutes()))
}
