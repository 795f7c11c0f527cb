package hardware

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/hackportal/hackportal-backend/pkg/db/models"
	pkgerrors "github.com/hackportal/hackportal-backend/pkg/errors"
)

// ListForUser returns every item ordered by name merged with the caller's own
// reservation state. Other users only show up in the stock counts.
func (s *service) ListForUser(ctx context.Context, userID string) ([]UserItemView, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	ctx = s.logg.WithUserID(ctx, userID)
	s.sweepForRead(ctx)

	items, err := s.items.List(ctx)
	if err != nil {
		return nil, storeError(err, "list hardware items")
	}
	reservations, err := s.reservations.ListByUser(ctx, userID)
	if err != nil {
		return nil, storeError(err, "list user reservations")
	}

	now := s.now()
	own := make(map[uuid.UUID]models.HardwareReservation, len(reservations))
	for _, r := range reservations {
		if r.ExpiredAt(now) {
			continue
		}
		own[r.ItemID] = r
	}

	views := make([]UserItemView, 0, len(items))
	for _, item := range items {
		view := UserItemView{
			ItemID:     item.ID,
			Name:       item.Name,
			ItemURL:    item.ItemURL,
			TotalStock: item.TotalStock,
			ItemsLeft:  item.Available(),
		}
		if r, ok := own[item.ID]; ok {
			view.Reserved = r.IsReserved
			view.Taken = !r.IsReserved
			view.Quantity = r.Quantity
			view.Token = r.Token
			view.ExpiresInMinutes = expiresInMinutes(r.IsReserved, r.Expiry, now)
		}
		views = append(views, view)
	}
	return views, nil
}

// ListAll returns every item with all of its reservations for the lending desk.
func (s *service) ListAll(ctx context.Context) ([]AdminItemView, error) {
	s.sweepForRead(ctx)

	items, err := s.items.List(ctx)
	if err != nil {
		return nil, storeError(err, "list hardware items")
	}
	records, err := s.reservations.ListDetailed(ctx)
	if err != nil {
		return nil, storeError(err, "list reservations")
	}

	names := s.displayNames(ctx, records)
	now := s.now()
	byItem := make(map[uuid.UUID][]AdminReservationView, len(items))
	for _, rec := range records {
		byItem[rec.ItemID] = append(byItem[rec.ItemID], AdminReservationView{
			Token:            rec.Token,
			UserID:           rec.UserID,
			UserName:         names[rec.UserID],
			Quantity:         rec.Quantity,
			Reserved:         rec.IsReserved,
			Taken:            !rec.IsReserved,
			Expiry:           rec.Expiry,
			ExpiresInMinutes: expiresInMinutes(rec.IsReserved, rec.Expiry, now),
		})
	}

	views := make([]AdminItemView, 0, len(items))
	for i := range items {
		reservations := byItem[items[i].ID]
		if reservations == nil {
			reservations = []AdminReservationView{}
		}
		views = append(views, AdminItemView{
			ItemDTO:      *FromModel(&items[i]),
			Reservations: reservations,
		})
	}
	return views, nil
}

// Snapshot returns the stock of every item without any user context.
func (s *service) Snapshot(ctx context.Context) ([]StockView, error) {
	items, err := s.items.List(ctx)
	if err != nil {
		return nil, storeError(err, "list hardware items")
	}
	views := make([]StockView, len(items))
	for i, item := range items {
		views[i] = stockFromModel(item)
	}
	return views, nil
}

// sweepForRead reclaims lapsed reservations before a listing. A failed
// sweep is logged and the listing still proceeds.
func (s *service) sweepForRead(ctx context.Context) {
	if _, err := s.SweepExpired(ctx); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "expiry sweep before listing failed")
	}
}

func (s *service) displayNames(ctx context.Context, records []ReservationRecord) map[string]string {
	if s.users == nil || len(records) == 0 {
		return map[string]string{}
	}
	seen := make(map[string]struct{}, len(records))
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		if _, ok := seen[rec.UserID]; ok {
			continue
		}
		seen[rec.UserID] = struct{}{}
		ids = append(ids, rec.UserID)
	}
	names, err := s.users.DisplayNames(ctx, ids)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "resolving reservation holders failed")
		return map[string]string{}
	}
	if names == nil {
		return map[string]string{}
	}
	return names
}
