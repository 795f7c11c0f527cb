package hardware

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/hackportal/hackportal-backend/pkg/config"
	"github.com/hackportal/hackportal-backend/pkg/db/models"
	pkgerrors "github.com/hackportal/hackportal-backend/pkg/errors"
	"github.com/hackportal/hackportal-backend/pkg/logger"
	"github.com/hackportal/hackportal-backend/pkg/metrics"
	"github.com/hackportal/hackportal-backend/pkg/validators"
)

const (
	defaultReservationTTL = 30 * time.Minute
	defaultTokenAttempts  = 3
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// UserDirectory resolves display names for reservation holders.
type UserDirectory interface {
	DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error)
}

// Service is the hardware reservation engine plus its inventory projections.
type Service interface {
	Reserve(ctx context.Context, userID string, itemID uuid.UUID, quantity int) (string, error)
	Take(ctx context.Context, token string) (bool, error)
	Return(ctx context.Context, token string) (bool, error)
	Cancel(ctx context.Context, token, userID string) error
	SweepExpired(ctx context.Context) (int, error)

	AddItems(ctx context.Context, items []NewItem) ([]ItemDTO, error)
	UpdateItem(ctx context.Context, itemID uuid.UUID, update ItemUpdate) (*ItemDTO, error)
	DeleteItem(ctx context.Context, itemID uuid.UUID) error
	GetItem(ctx context.Context, itemID uuid.UUID) (*ItemDTO, error)
	LookupReservation(ctx context.Context, token string) (*ReservationView, error)

	ListForUser(ctx context.Context, userID string) ([]UserItemView, error)
	ListAll(ctx context.Context) ([]AdminItemView, error)
	Snapshot(ctx context.Context) ([]StockView, error)
}

// ServiceParams wires the engine. Notifier, Users, Metrics and Clock are optional.
type ServiceParams struct {
	Tx           txRunner
	Items        ItemRepository
	Reservations ReservationRepository
	Tokens       TokenGenerator
	Notifier     Notifier
	Users        UserDirectory
	Logger       *logger.Logger
	Metrics      *metrics.HardwareMetrics
	Config       config.HardwareConfig
	Clock        func() time.Time
}

type service struct {
	tx           txRunner
	items        ItemRepository
	reservations ReservationRepository
	tokens       TokenGenerator
	notifier     Notifier
	users        UserDirectory
	logg         *logger.Logger
	metrics      *metrics.HardwareMetrics
	ttl          time.Duration
	attempts     int
	clock        func() time.Time
}

// NewService builds the reservation engine.
func NewService(p ServiceParams) (Service, error) {
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Items == nil {
		return nil, fmt.Errorf("item repository required")
	}
	if p.Reservations == nil {
		return nil, fmt.Errorf("reservation repository required")
	}
	tokens := p.Tokens
	if tokens == nil {
		tokens = NewTokenGenerator(p.Config.TokenBytes)
	}
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	ttl := p.Config.ReservationTTL
	if ttl <= 0 {
		ttl = defaultReservationTTL
	}
	attempts := p.Config.TokenAttempts
	if attempts <= 0 {
		attempts = defaultTokenAttempts
	}
	clock := p.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		tx:           p.Tx,
		items:        p.Items,
		reservations: p.Reservations,
		tokens:       tokens,
		notifier:     p.Notifier,
		users:        p.Users,
		logg:         logg,
		metrics:      p.Metrics,
		ttl:          ttl,
		attempts:     attempts,
		clock:        clock,
	}, nil
}

func (s *service) now() time.Time {
	return s.clock().UTC()
}

func (s *service) Reserve(ctx context.Context, userID string, itemID uuid.UUID, quantity int) (string, error) {
	userID = strings.TrimSpace(userID)
	ctx = s.logg.WithUserID(s.logg.WithItemID(ctx, itemID.String()), userID)

	if userID == "" {
		return "", s.reject(ctx, "reserve", pkgerrors.New(pkgerrors.CodeValidation, "user id is required"))
	}
	if itemID == uuid.Nil {
		return "", s.reject(ctx, "reserve", pkgerrors.New(pkgerrors.CodeValidation, "item id is required"))
	}
	if quantity < 1 {
		return "", s.reject(ctx, "reserve", pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1"))
	}

	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		token, err := s.tokens.Generate()
		if err != nil {
			return "", s.reject(ctx, "reserve", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate reservation token"))
		}

		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.reserveTx(ctx, tx, token, userID, itemID, quantity)
		})
		if err == nil {
			s.logg.Info(s.logg.WithToken(ctx, token), "hardware reserved")
			s.metrics.Observe("reserve", metrics.ResultOK)
			s.notify(ctx, EventReserved, itemID)
			return token, nil
		}

		switch {
		case pkgerrors.As(err) != nil:
			return "", s.reject(ctx, "reserve", err)
		case tokenConstraint.Violated(err):
			lastErr = err
			s.logg.Warn(s.logg.WithField(ctx, "attempt", attempt), "reservation token collision, retrying")
			continue
		case userItemConstraint.Violated(err):
			return "", s.reject(ctx, "reserve", pkgerrors.Wrap(pkgerrors.CodeAlreadyReserved, err, "item already reserved by user"))
		default:
			return "", s.reject(ctx, "reserve", storeError(err, "reserve item"))
		}
	}
	return "", s.reject(ctx, "reserve", pkgerrors.Wrap(pkgerrors.CodeConflict, lastErr, "could not mint a unique reservation token"))
}

func (s *service) reserveTx(ctx context.Context, tx *gorm.DB, token, userID string, itemID uuid.UUID, quantity int) error {
	items := s.items.WithTx(tx)
	reservations := s.reservations.WithTx(tx)
	now := s.now()

	item, err := items.LockByID(ctx, itemID)
	if err != nil {
		return err
	}
	if item == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "hardware item not found")
	}

	existing, err := reservations.FindByUserAndItem(ctx, userID, itemID)
	if err != nil {
		return err
	}
	if existing != nil && existing.ExpiredAt(now) {
		reclaimed, err := s.reclaimTx(ctx, items, reservations, existing)
		if err != nil {
			return err
		}
		if reclaimed {
			item.ReservedStock -= existing.Quantity
		}
		existing = nil
	}

	if available := item.Available(); available < quantity {
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, "not enough stock left").
			WithDetails(map[string]int{"available": available, "requested": quantity})
	}
	if existing != nil {
		return pkgerrors.New(pkgerrors.CodeAlreadyReserved, "item already reserved by user")
	}

	reservation := &models.HardwareReservation{
		Token:      token,
		UserID:     userID,
		ItemID:     itemID,
		Quantity:   quantity,
		IsReserved: true,
		Expiry:     now.Add(s.ttl),
	}
	if err := reservations.Create(ctx, reservation); err != nil {
		return err
	}

	ok, err := items.ReserveStock(ctx, itemID, quantity)
	if err != nil {
		return err
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeConflict, "stock changed while reserving")
	}
	return nil
}

type tokenOutcome int

const (
	outcomeMissing tokenOutcome = iota
	outcomeExpired
	outcomeApplied
)

func (s *service) Take(ctx context.Context, token string) (bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		s.metrics.Observe("take", metrics.ResultNotFound)
		return false, nil
	}
	ctx = s.logg.WithToken(ctx, token)

	reservation, err := s.reservations.FindByToken(ctx, token)
	if err != nil {
		return false, s.reject(ctx, "take", storeError(err, "load reservation"))
	}
	if reservation == nil {
		s.metrics.Observe("take", metrics.ResultNotFound)
		return false, nil
	}
	if !reservation.IsReserved {
		return false, s.reject(ctx, "take", pkgerrors.New(pkgerrors.CodeAlreadyTaken, "reservation already taken"))
	}

	var outcome tokenOutcome
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		items := s.items.WithTx(tx)
		reservations := s.reservations.WithTx(tx)

		current, err := s.lockReservation(ctx, items, reservations, reservation)
		if err != nil || current == nil {
			return err
		}
		if !current.IsReserved {
			return pkgerrors.New(pkgerrors.CodeAlreadyTaken, "reservation already taken")
		}
		if current.ExpiredAt(s.now()) {
			outcome = outcomeExpired
			_, err := s.reclaimTx(ctx, items, reservations, current)
			return err
		}

		ok, err := reservations.MarkTaken(ctx, token)
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "reservation changed while taking")
		}
		ok, err = items.MoveReservedToTaken(ctx, current.ItemID, current.Quantity)
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "stock changed while taking")
		}
		outcome = outcomeApplied
		return nil
	})
	if err != nil {
		return false, s.reject(ctx, "take", storeError(err, "take reservation"))
	}

	switch outcome {
	case outcomeApplied:
		s.logg.Info(ctx, "hardware taken")
		s.metrics.Observe("take", metrics.ResultOK)
		s.notify(ctx, EventTaken, reservation.ItemID)
		return true, nil
	case outcomeExpired:
		s.logg.Info(ctx, "expired reservation reclaimed on take")
		s.metrics.AddSwept(1)
		s.notify(ctx, EventExpired, reservation.ItemID)
	}
	s.metrics.Observe("take", metrics.ResultNotFound)
	return false, nil
}

func (s *service) Return(ctx context.Context, token string) (bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		s.metrics.Observe("return", metrics.ResultNotFound)
		return false, nil
	}
	ctx = s.logg.WithToken(ctx, token)

	reservation, err := s.reservations.FindByToken(ctx, token)
	if err != nil {
		return false, s.reject(ctx, "return", storeError(err, "load reservation"))
	}
	if reservation == nil {
		s.metrics.Observe("return", metrics.ResultNotFound)
		return false, nil
	}
	if reservation.IsReserved {
		return false, s.reject(ctx, "return", pkgerrors.New(pkgerrors.CodeNotYetTaken, "reservation has not been taken"))
	}

	var outcome tokenOutcome
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		items := s.items.WithTx(tx)
		reservations := s.reservations.WithTx(tx)

		current, err := s.lockReservation(ctx, items, reservations, reservation)
		if err != nil || current == nil {
			return err
		}
		if current.IsReserved {
			return pkgerrors.New(pkgerrors.CodeNotYetTaken, "reservation has not been taken")
		}

		deleted, err := reservations.DeleteTaken(ctx, token)
		if err != nil {
			return err
		}
		if !deleted {
			return pkgerrors.New(pkgerrors.CodeConflict, "reservation changed while returning")
		}
		ok, err := items.ReleaseTaken(ctx, current.ItemID, current.Quantity)
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "stock changed while returning")
		}
		outcome = outcomeApplied
		return nil
	})
	if err != nil {
		return false, s.reject(ctx, "return", storeError(err, "return reservation"))
	}
	if outcome != outcomeApplied {
		s.metrics.Observe("return", metrics.ResultNotFound)
		return false, nil
	}

	s.logg.Info(ctx, "hardware returned")
	s.metrics.Observe("return", metrics.ResultOK)
	s.notify(ctx, EventReturned, reservation.ItemID)
	return true, nil
}

func (s *service) Cancel(ctx context.Context, token, userID string) error {
	token = strings.TrimSpace(token)
	userID = strings.TrimSpace(userID)
	ctx = s.logg.WithUserID(s.logg.WithToken(ctx, token), userID)

	if token == "" || userID == "" {
		return s.reject(ctx, "cancel", pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found"))
	}

	reservation, err := s.reservations.FindByTokenAndUser(ctx, token, userID)
	if err != nil {
		return s.reject(ctx, "cancel", storeError(err, "load reservation"))
	}
	if reservation == nil {
		return s.reject(ctx, "cancel", pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found"))
	}
	if !reservation.IsReserved {
		return s.reject(ctx, "cancel", pkgerrors.New(pkgerrors.CodeNotCancellable, "taken items must be returned"))
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		items := s.items.WithTx(tx)
		reservations := s.reservations.WithTx(tx)

		if _, err := items.LockByID(ctx, reservation.ItemID); err != nil {
			return err
		}
		deleted, err := reservations.DeleteReserved(ctx, token)
		if err != nil {
			return err
		}
		if !deleted {
			return pkgerrors.New(pkgerrors.CodeConflict, "reservation changed while cancelling")
		}
		ok, err := items.ReleaseReserved(ctx, reservation.ItemID, reservation.Quantity)
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "stock changed while cancelling")
		}
		return nil
	})
	if err != nil {
		return s.reject(ctx, "cancel", storeError(err, "cancel reservation"))
	}

	s.logg.Info(ctx, "reservation cancelled")
	s.metrics.Observe("cancel", metrics.ResultOK)
	s.notify(ctx, EventCancelled, reservation.ItemID)
	return nil
}

// SweepExpired reclaims every lapsed reservation, each in its own
// transaction. A failed reclaim is logged and the sweep moves on. The
// aggregate error is a conflict unless the store itself failed.
func (s *service) SweepExpired(ctx context.Context) (int, error) {
	now := s.now()
	pending, err := s.reservations.ListPending(ctx, now)
	if err != nil {
		return 0, storeError(err, "list pending reservations")
	}

	var (
		errs         error
		storeFailure bool
		reclaimed    int
		touched      []uuid.UUID
	)
	for i := range pending {
		candidate := pending[i]
		if !candidate.ExpiredAt(now) {
			continue
		}
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			storeFailure = true
			break
		}

		var done bool
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			items := s.items.WithTx(tx)
			reservations := s.reservations.WithTx(tx)

			current, err := s.lockReservation(ctx, items, reservations, &candidate)
			if err != nil || current == nil || !current.ExpiredAt(now) {
				return err
			}
			done, err = s.reclaimTx(ctx, items, reservations, current)
			return err
		})
		if err != nil {
			tokenCtx := s.logg.WithToken(ctx, candidate.Token)
			s.logg.Error(tokenCtx, "failed to reclaim expired reservation", err)
			errs = multierr.Append(errs, fmt.Errorf("reclaim %s: %w", logger.TokenPrefix(candidate.Token), err))
			if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
				storeFailure = true
			}
			continue
		}
		if done {
			reclaimed++
			touched = append(touched, candidate.ItemID)
		}
	}

	if reclaimed > 0 {
		s.logg.Info(s.logg.WithField(ctx, "reclaimed", reclaimed), "expired reservations swept")
		s.metrics.AddSwept(reclaimed)
		s.notify(ctx, EventExpired, touched...)
	}
	if errs != nil {
		code := pkgerrors.CodeConflict
		if storeFailure {
			code = pkgerrors.CodeStoreUnavailable
		}
		return reclaimed, pkgerrors.Wrap(code, errs, "sweep expired reservations")
	}
	return reclaimed, nil
}

// lockReservation takes the item row lock before re-reading the reservation so
// every mutation path acquires locks in the same order.
func (s *service) lockReservation(ctx context.Context, items ItemRepository, reservations ReservationRepository, observed *models.HardwareReservation) (*models.HardwareReservation, error) {
	if _, err := items.LockByID(ctx, observed.ItemID); err != nil {
		return nil, err
	}
	return reservations.LockByToken(ctx, observed.Token)
}

// reclaimTx deletes a pending reservation and releases its stock. Only a
// delete that removed the row touches the counter.
func (s *service) reclaimTx(ctx context.Context, items ItemRepository, reservations ReservationRepository, reservation *models.HardwareReservation) (bool, error) {
	deleted, err := reservations.DeleteReserved(ctx, reservation.Token)
	if err != nil {
		return false, err
	}
	if !deleted {
		return false, nil
	}
	ok, err := items.ReleaseReserved(ctx, reservation.ItemID, reservation.Quantity)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, pkgerrors.New(pkgerrors.CodeConflict, "reserved stock below reservation quantity")
	}
	return true, nil
}

func (s *service) AddItems(ctx context.Context, input []NewItem) ([]ItemDTO, error) {
	if len(input) == 0 {
		return nil, s.reject(ctx, "add_items", pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required"))
	}

	records := make([]models.HardwareItem, len(input))
	names := make([]string, len(input))
	details := map[string]string{}
	seen := map[string]int{}
	for i, entry := range input {
		entry.Name = validators.SanitizeString(entry.Name, 0)
		entry.ItemURL = strings.TrimSpace(entry.ItemURL)
		for field, msg := range validators.Fields(&entry) {
			details[fmt.Sprintf("items[%d].%s", i, field)] = msg
		}
		if first, dup := seen[entry.Name]; dup && entry.Name != "" {
			details[fmt.Sprintf("items[%d].name", i)] = fmt.Sprintf("duplicates items[%d]", first)
		} else {
			seen[entry.Name] = i
		}
		names[i] = entry.Name
		records[i] = models.HardwareItem{
			Name:       entry.Name,
			ItemURL:    entry.ItemURL,
			TotalStock: entry.TotalStock,
		}
	}
	if len(details) > 0 {
		return nil, s.reject(ctx, "add_items", pkgerrors.New(pkgerrors.CodeValidation, "invalid hardware items").WithDetails(details))
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		items := s.items.WithTx(tx)
		existing, err := items.FindByNames(ctx, names)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			conflicts := map[string]string{}
			for _, item := range existing {
				conflicts[fmt.Sprintf("items[%d].name", seen[item.Name])] = "already exists"
			}
			return pkgerrors.New(pkgerrors.CodeValidation, "invalid hardware items").WithDetails(conflicts)
		}
		return items.Create(ctx, records)
	})
	if err != nil {
		if pkgerrors.As(err) == nil && itemNameConstraint.Violated(err) {
			err = pkgerrors.Wrap(pkgerrors.CodeValidation, err, "item name already exists")
		}
		return nil, s.reject(ctx, "add_items", storeError(err, "add hardware items"))
	}

	out := make([]ItemDTO, len(records))
	ids := make([]uuid.UUID, len(records))
	for i := range records {
		out[i] = *FromModel(&records[i])
		ids[i] = records[i].ID
	}
	s.logg.Info(s.logg.WithField(ctx, "count", len(records)), "hardware items added")
	s.metrics.Observe("add_items", metrics.ResultOK)
	s.notify(ctx, EventItemsAdded, ids...)
	return out, nil
}

func (s *service) UpdateItem(ctx context.Context, itemID uuid.UUID, update ItemUpdate) (*ItemDTO, error) {
	ctx = s.logg.WithItemID(ctx, itemID.String())
	if update.Name != nil {
		name := validators.SanitizeString(*update.Name, 0)
		if name == "" {
			return nil, s.reject(ctx, "update_item", pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
				WithDetails(map[string]string{"name": "is required"}))
		}
		update.Name = &name
	}
	if update.ItemURL != nil {
		url := strings.TrimSpace(*update.ItemURL)
		update.ItemURL = &url
	}
	if err := validators.Struct(&update); err != nil {
		return nil, s.reject(ctx, "update_item", err)
	}

	var updated *models.HardwareItem
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		items := s.items.WithTx(tx)
		item, err := items.LockByID(ctx, itemID)
		if err != nil {
			return err
		}
		if item == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "hardware item not found")
		}

		if update.Name != nil && *update.Name != item.Name {
			clash, err := items.FindByNames(ctx, []string{*update.Name})
			if err != nil {
				return err
			}
			if len(clash) > 0 {
				return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
					WithDetails(map[string]string{"name": "already exists"})
			}
			item.Name = *update.Name
		}
		if update.ItemURL != nil {
			item.ItemURL = *update.ItemURL
		}
		if update.TotalStock != nil {
			outstanding := item.ReservedStock + item.TakenStock
			if *update.TotalStock < outstanding {
				return pkgerrors.New(pkgerrors.CodeConflict, "total stock below outstanding loans").
					WithDetails(map[string]int{"outstanding": outstanding, "requested": *update.TotalStock})
			}
			item.TotalStock = *update.TotalStock
		}

		if err := items.UpdateDetails(ctx, item); err != nil {
			return err
		}
		updated = item
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) == nil && itemNameConstraint.Violated(err) {
			err = pkgerrors.Wrap(pkgerrors.CodeValidation, err, "item name already exists")
		}
		return nil, s.reject(ctx, "update_item", storeError(err, "update hardware item"))
	}

	s.logg.Info(ctx, "hardware item updated")
	s.metrics.Observe("update_item", metrics.ResultOK)
	s.notify(ctx, EventItemUpdated, itemID)
	return FromModel(updated), nil
}

func (s *service) DeleteItem(ctx context.Context, itemID uuid.UUID) error {
	ctx = s.logg.WithItemID(ctx, itemID.String())
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		items := s.items.WithTx(tx)
		item, err := items.LockByID(ctx, itemID)
		if err != nil {
			return err
		}
		if item == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "hardware item not found")
		}
		if item.HasOutstanding() {
			return pkgerrors.New(pkgerrors.CodeConflict, "item has outstanding reservations").
				WithDetails(map[string]int{"reserved_stock": item.ReservedStock, "taken_stock": item.TakenStock})
		}
		deleted, err := items.DeleteIfIdle(ctx, itemID)
		if err != nil {
			return err
		}
		if !deleted {
			return pkgerrors.New(pkgerrors.CodeConflict, "item changed while deleting")
		}
		return nil
	})
	if err != nil {
		return s.reject(ctx, "delete_item", storeError(err, "delete hardware item"))
	}

	s.logg.Info(ctx, "hardware item deleted")
	s.metrics.Observe("delete_item", metrics.ResultOK)
	s.notify(ctx, EventItemDeleted, itemID)
	return nil
}

func (s *service) GetItem(ctx context.Context, itemID uuid.UUID) (*ItemDTO, error) {
	item, err := s.items.FindByID(ctx, itemID)
	if err != nil {
		return nil, storeError(err, "load hardware item")
	}
	if item == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "hardware item not found")
	}
	return FromModel(item), nil
}

// LookupReservation resolves a token for the lending desk. A lapsed
// reservation is reclaimed on access and reported as missing.
func (s *service) LookupReservation(ctx context.Context, token string) (*ReservationView, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
	}
	ctx = s.logg.WithToken(ctx, token)

	record, err := s.reservations.FindDetailedByToken(ctx, token)
	if err != nil {
		return nil, storeError(err, "load reservation")
	}
	if record == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
	}

	now := s.now()
	if record.ExpiredAt(now) {
		var reclaimed bool
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			items := s.items.WithTx(tx)
			reservations := s.reservations.WithTx(tx)
			current, err := s.lockReservation(ctx, items, reservations, &record.HardwareReservation)
			if err != nil || current == nil || !current.ExpiredAt(now) {
				return err
			}
			reclaimed, err = s.reclaimTx(ctx, items, reservations, current)
			return err
		})
		if err != nil {
			return nil, storeError(err, "reclaim expired reservation")
		}
		if reclaimed {
			s.metrics.AddSwept(1)
			s.notify(ctx, EventExpired, record.ItemID)
		}
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
	}

	return &ReservationView{
		Token:            record.Token,
		UserID:           record.UserID,
		ItemID:           record.ItemID,
		ItemName:         record.ItemName,
		Quantity:         record.Quantity,
		Reserved:         record.IsReserved,
		Taken:            !record.IsReserved,
		ExpiresInMinutes: expiresInMinutes(record.IsReserved, record.Expiry, now),
	}, nil
}

// notify runs after commit. Broadcast failures never reach the caller.
func (s *service) notify(ctx context.Context, kind EventType, itemIDs ...uuid.UUID) {
	if s.notifier == nil {
		return
	}
	event := Event{
		Type:       kind,
		ItemIDs:    itemIDs,
		OccurredAt: s.now(),
	}
	snapshot, err := s.Snapshot(ctx)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "hardware snapshot for broadcast failed")
	} else {
		event.Items = snapshot
	}
	if err := s.notifier.Notify(ctx, event); err != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"event": string(kind),
			"error": err.Error(),
		}), "hardware broadcast failed")
	}
}

// reject records the failed operation and returns err unchanged.
func (s *service) reject(ctx context.Context, op string, err error) error {
	result := metrics.ResultRejected
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		result = metrics.ResultNotFound
	case pkgerrors.IsCode(err, pkgerrors.CodeStoreUnavailable), pkgerrors.IsCode(err, pkgerrors.CodeInternal):
		result = metrics.ResultError
	}
	s.metrics.Observe(op, result)

	logCtx := s.logg.WithField(ctx, "op", op)
	if result == metrics.ResultError {
		if fields := pkgerrors.Dump(err).LogFields(); fields != nil {
			logCtx = s.logg.WithFields(logCtx, fields)
		}
		s.logg.Error(logCtx, "hardware operation failed", err)
	} else {
		s.logg.Info(s.logg.WithField(logCtx, "reason", err.Error()), "hardware operation rejected")
	}
	return err
}

// storeError passes typed errors through and reports anything else as the
// store being unavailable.
func storeError(err error, message string) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, message+": context ended")
	}
	return pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, message)
}
