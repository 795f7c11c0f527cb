package hardware

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackportal/hackportal-backend/pkg/db/models"
)

func TestItemCountersAreGuarded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	itemID := env.seedItem(t, "Guarded", 2)
	repo := NewItemRepository(env.client.DB())

	ok, err := repo.ReserveStock(ctx, itemID, 3)
	require.NoError(t, err)
	assert.False(t, ok, "reserving beyond stock must match no row")

	ok, err = repo.ReserveStock(ctx, itemID, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MoveReservedToTaken(ctx, itemID, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.MoveReservedToTaken(ctx, itemID, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.ReleaseTaken(ctx, itemID, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.ReleaseReserved(ctx, itemID, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	item := env.item(t, itemID)
	assert.Equal(t, 0, item.ReservedStock)
	assert.Equal(t, 1, item.TakenStock)

	deleted, err := repo.DeleteIfIdle(ctx, itemID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestReservationDeletesAreStateConditional(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	itemID := env.seedItem(t, "Stateful", 2)
	repo := NewReservationRepository(env.client.DB())

	require.NoError(t, repo.Create(ctx, &models.HardwareReservation{
		Token:      "tok-1",
		UserID:     "u1",
		ItemID:     itemID,
		Quantity:   1,
		IsReserved: true,
		Expiry:     time.Now().UTC().Add(time.Hour),
	}))

	deleted, err := repo.DeleteTaken(ctx, "tok-1")
	require.NoError(t, err)
	assert.False(t, deleted)

	ok, err := repo.MarkTaken(ctx, "tok-1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.MarkTaken(ctx, "tok-1")
	require.NoError(t, err)
	assert.False(t, ok)

	deleted, err = repo.DeleteReserved(ctx, "tok-1")
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = repo.DeleteTaken(ctx, "tok-1")
	require.NoError(t, err)
	assert.True(t, deleted)

	missing, err := repo.FindByToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListPendingFiltersByExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	itemID := env.seedItem(t, "Pending", 5)
	repo := NewReservationRepository(env.client.DB())
	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

	for _, r := range []models.HardwareReservation{
		{Token: "lapsed", UserID: "u1", Expiry: now.Add(-time.Minute), IsReserved: true},
		{Token: "boundary", UserID: "u2", Expiry: now, IsReserved: true},
		{Token: "live", UserID: "u3", Expiry: now.Add(time.Minute), IsReserved: true},
		{Token: "taken", UserID: "u4", Expiry: now.Add(-time.Hour), IsReserved: false},
	} {
		r.ItemID = itemID
		r.Quantity = 1
		require.NoError(t, repo.Create(ctx, &r))
	}

	pending, err := repo.ListPending(ctx, now)
	require.NoError(t, err)
	tokens := make([]string, len(pending))
	for i, r := range pending {
		tokens[i] = r.Token
	}
	assert.Equal(t, []string{"lapsed", "boundary"}, tokens)
}

func TestDuplicateUserItemViolatesConstraint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	itemID := env.seedItem(t, "Unique", 3)
	repo := NewReservationRepository(env.client.DB())

	base := models.HardwareReservation{
		UserID:     "u1",
		ItemID:     itemID,
		Quantity:   1,
		IsReserved: true,
		Expiry:     time.Now().UTC().Add(time.Hour),
	}
	first := base
	first.Token = "a"
	require.NoError(t, repo.Create(ctx, &first))

	second := base
	second.Token = "b"
	err := repo.Create(ctx, &second)
	require.Error(t, err)
	assert.True(t, userItemConstraint.Violated(err))
	assert.False(t, tokenConstraint.Violated(err))

	third := base
	third.Token = "a"
	third.UserID = "u2"
	err = repo.Create(ctx, &third)
	require.Error(t, err)
	assert.True(t, tokenConstraint.Violated(err))
}

func TestFindDetailedByTokenJoinsItemName(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	itemID := env.seedItem(t, "Joined", 1)

	token, err := env.svc.Reserve(ctx, "u1", itemID, 1)
	require.NoError(t, err)

	repo := NewReservationRepository(env.client.DB())
	record, err := repo.FindDetailedByToken(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "Joined", record.ItemName)
	assert.Equal(t, itemID, record.ItemID)

	record, err = repo.FindDetailedByToken(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, record)

	item, err := NewItemRepository(env.client.DB()).FindByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, item)
}
