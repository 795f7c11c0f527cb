package hardware

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hackportal/hackportal-backend/pkg/db"
	"github.com/hackportal/hackportal-backend/pkg/db/models"
)

var (
	tokenConstraint = db.UniqueConstraint{
		Name:    "hardware_reservations_pkey",
		Table:   "hardware_reservations",
		Columns: []string{"token"},
	}
	userItemConstraint = db.UniqueConstraint{
		Name:    "uq_hardware_reservations_user_item",
		Table:   "hardware_reservations",
		Columns: []string{"user_id", "item_id"},
	}
	itemNameConstraint = db.UniqueConstraint{
		Name:    "uq_hardware_items_name",
		Table:   "hardware_items",
		Columns: []string{"name"},
	}
)

// ItemRepository persists hardware items and their stock counters. Counter
// mutations are guarded in SQL and report whether a row matched.
type ItemRepository interface {
	WithTx(tx *gorm.DB) ItemRepository
	Create(ctx context.Context, items []models.HardwareItem) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.HardwareItem, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.HardwareItem, error)
	FindByNames(ctx context.Context, names []string) ([]models.HardwareItem, error)
	List(ctx context.Context) ([]models.HardwareItem, error)
	UpdateDetails(ctx context.Context, item *models.HardwareItem) error
	DeleteIfIdle(ctx context.Context, id uuid.UUID) (bool, error)
	ReserveStock(ctx context.Context, id uuid.UUID, qty int) (bool, error)
	ReleaseReserved(ctx context.Context, id uuid.UUID, qty int) (bool, error)
	MoveReservedToTaken(ctx context.Context, id uuid.UUID, qty int) (bool, error)
	ReleaseTaken(ctx context.Context, id uuid.UUID, qty int) (bool, error)
}

// ReservationRepository persists reservations. Deletes are conditional on the
// state the caller observed so a lost race affects zero rows.
type ReservationRepository interface {
	WithTx(tx *gorm.DB) ReservationRepository
	Create(ctx context.Context, reservation *models.HardwareReservation) error
	FindByToken(ctx context.Context, token string) (*models.HardwareReservation, error)
	LockByToken(ctx context.Context, token string) (*models.HardwareReservation, error)
	FindByTokenAndUser(ctx context.Context, token, userID string) (*models.HardwareReservation, error)
	FindByUserAndItem(ctx context.Context, userID string, itemID uuid.UUID) (*models.HardwareReservation, error)
	FindDetailedByToken(ctx context.Context, token string) (*ReservationRecord, error)
	ListByUser(ctx context.Context, userID string) ([]models.HardwareReservation, error)
	ListDetailed(ctx context.Context) ([]ReservationRecord, error)
	ListPending(ctx context.Context, now time.Time) ([]models.HardwareReservation, error)
	MarkTaken(ctx context.Context, token string) (bool, error)
	DeleteReserved(ctx context.Context, token string) (bool, error)
	DeleteTaken(ctx context.Context, token string) (bool, error)
}

// ReservationRecord is a reservation joined with the name of its item.
type ReservationRecord struct {
	models.HardwareReservation
	ItemName string `gorm:"column:item_name"`
}

type itemRepository struct {
	db *gorm.DB
}

// NewItemRepository builds an item repository backed by conn.
func NewItemRepository(conn *gorm.DB) ItemRepository {
	if conn == nil {
		return nil
	}
	return &itemRepository{db: conn}
}

func (r *itemRepository) WithTx(tx *gorm.DB) ItemRepository {
	if tx == nil {
		return r
	}
	return &itemRepository{db: tx}
}

func (r *itemRepository) Create(ctx context.Context, items []models.HardwareItem) error {
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		if items[i].ID == uuid.Nil {
			items[i].ID = uuid.New()
		}
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *itemRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.HardwareItem, error) {
	return r.first(r.db.WithContext(ctx), id)
}

func (r *itemRepository) LockByID(ctx context.Context, id uuid.UUID) (*models.HardwareItem, error) {
	return r.first(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *itemRepository) first(query *gorm.DB, id uuid.UUID) (*models.HardwareItem, error) {
	var item models.HardwareItem
	if err := query.Where("id = ?", id).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *itemRepository) FindByNames(ctx context.Context, names []string) ([]models.HardwareItem, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var items []models.HardwareItem
	err := r.db.WithContext(ctx).
		Where("name IN ?", names).
		Find(&items).Error
	return items, err
}

func (r *itemRepository) List(ctx context.Context) ([]models.HardwareItem, error) {
	var items []models.HardwareItem
	err := r.db.WithContext(ctx).
		Order("name ASC").
		Find(&items).Error
	return items, err
}

func (r *itemRepository) UpdateDetails(ctx context.Context, item *models.HardwareItem) error {
	item.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.HardwareItem{}).
		Where("id = ?", item.ID).
		Updates(map[string]any{
			"name":        item.Name,
			"item_url":    item.ItemURL,
			"total_stock": item.TotalStock,
			"updated_at":  item.UpdatedAt,
		}).Error
}

func (r *itemRepository) DeleteIfIdle(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND reserved_stock = 0 AND taken_stock = 0", id).
		Delete(&models.HardwareItem{})
	return res.RowsAffected == 1, res.Error
}

func (r *itemRepository) ReserveStock(ctx context.Context, id uuid.UUID, qty int) (bool, error) {
	return r.adjust(ctx,
		"id = ? AND total_stock - (reserved_stock + taken_stock) >= ?", []any{id, qty},
		map[string]any{"reserved_stock": gorm.Expr("reserved_stock + ?", qty)},
	)
}

func (r *itemRepository) ReleaseReserved(ctx context.Context, id uuid.UUID, qty int) (bool, error) {
	return r.adjust(ctx,
		"id = ? AND reserved_stock >= ?", []any{id, qty},
		map[string]any{"reserved_stock": gorm.Expr("reserved_stock - ?", qty)},
	)
}

func (r *itemRepository) MoveReservedToTaken(ctx context.Context, id uuid.UUID, qty int) (bool, error) {
	return r.adjust(ctx,
		"id = ? AND reserved_stock >= ?", []any{id, qty},
		map[string]any{
			"reserved_stock": gorm.Expr("reserved_stock - ?", qty),
			"taken_stock":    gorm.Expr("taken_stock + ?", qty),
		},
	)
}

func (r *itemRepository) ReleaseTaken(ctx context.Context, id uuid.UUID, qty int) (bool, error) {
	return r.adjust(ctx,
		"id = ? AND taken_stock >= ?", []any{id, qty},
		map[string]any{"taken_stock": gorm.Expr("taken_stock - ?", qty)},
	)
}

func (r *itemRepository) adjust(ctx context.Context, where string, args []any, updates map[string]any) (bool, error) {
	updates["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.HardwareItem{}).
		Where(where, args...).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

type reservationRepository struct {
	db *gorm.DB
}

// NewReservationRepository builds a reservation repository backed by conn.
func NewReservationRepository(conn *gorm.DB) ReservationRepository {
	if conn == nil {
		return nil
	}
	return &reservationRepository{db: conn}
}

func (r *reservationRepository) WithTx(tx *gorm.DB) ReservationRepository {
	if tx == nil {
		return r
	}
	return &reservationRepository{db: tx}
}

func (r *reservationRepository) Create(ctx context.Context, reservation *models.HardwareReservation) error {
	return r.db.WithContext(ctx).Create(reservation).Error
}

func (r *reservationRepository) FindByToken(ctx context.Context, token string) (*models.HardwareReservation, error) {
	return r.first(r.db.WithContext(ctx).Where("token = ?", token))
}

func (r *reservationRepository) LockByToken(ctx context.Context, token string) (*models.HardwareReservation, error) {
	return r.first(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("token = ?", token))
}

func (r *reservationRepository) FindByTokenAndUser(ctx context.Context, token, userID string) (*models.HardwareReservation, error) {
	return r.first(r.db.WithContext(ctx).Where("token = ? AND user_id = ?", token, userID))
}

func (r *reservationRepository) FindByUserAndItem(ctx context.Context, userID string, itemID uuid.UUID) (*models.HardwareReservation, error) {
	return r.first(r.db.WithContext(ctx).Where("user_id = ? AND item_id = ?", userID, itemID))
}

func (r *reservationRepository) first(query *gorm.DB) (*models.HardwareReservation, error) {
	var reservation models.HardwareReservation
	if err := query.First(&reservation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &reservation, nil
}

func (r *reservationRepository) detailedQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("hardware_reservations AS r").
		Select("r.*, i.name AS item_name").
		Joins("JOIN hardware_items AS i ON i.id = r.item_id")
}

func (r *reservationRepository) FindDetailedByToken(ctx context.Context, token string) (*ReservationRecord, error) {
	var records []ReservationRecord
	if err := r.detailedQuery(ctx).Where("r.token = ?", token).Limit(1).Scan(&records).Error; err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

func (r *reservationRepository) ListByUser(ctx context.Context, userID string) ([]models.HardwareReservation, error) {
	var reservations []models.HardwareReservation
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&reservations).Error
	return reservations, err
}

func (r *reservationRepository) ListDetailed(ctx context.Context) ([]ReservationRecord, error) {
	var records []ReservationRecord
	err := r.detailedQuery(ctx).
		Order("i.name ASC").
		Order("r.created_at ASC").
		Scan(&records).Error
	return records, err
}

// ListPending returns reservations still awaiting pickup whose expiry is at or
// before now, oldest first.
func (r *reservationRepository) ListPending(ctx context.Context, now time.Time) ([]models.HardwareReservation, error) {
	var reservations []models.HardwareReservation
	err := r.db.WithContext(ctx).
		Where("is_reserved = ? AND expiry <= ?", true, now).
		Order("expiry ASC").
		Find(&reservations).Error
	return reservations, err
}

func (r *reservationRepository) MarkTaken(ctx context.Context, token string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.HardwareReservation{}).
		Where("token = ? AND is_reserved = ?", token, true).
		Updates(map[string]any{
			"is_reserved": false,
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *reservationRepository) DeleteReserved(ctx context.Context, token string) (bool, error) {
	return r.deleteInState(ctx, token, true)
}

func (r *reservationRepository) DeleteTaken(ctx context.Context, token string) (bool, error) {
	return r.deleteInState(ctx, token, false)
}

func (r *reservationRepository) deleteInState(ctx context.Context, token string, reserved bool) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("token = ? AND is_reserved = ?", token, reserved).
		Delete(&models.HardwareReservation{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
