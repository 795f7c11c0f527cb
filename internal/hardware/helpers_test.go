package hardware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hackportal/hackportal-backend/pkg/config"
	"github.com/hackportal/hackportal-backend/pkg/db"
	"github.com/hackportal/hackportal-backend/pkg/db/models"
	pkgerrors "github.com/hackportal/hackportal-backend/pkg/errors"
)

type testEnv struct {
	client   *db.Client
	svc      Service
	clock    *fakeClock
	notifier *recordingNotifier
}

type envOption func(*ServiceParams)

func withTokens(tokens TokenGenerator) envOption {
	return func(p *ServiceParams) { p.Tokens = tokens }
}

func withUsers(users UserDirectory) envOption {
	return func(p *ServiceParams) { p.Users = users }
}

func withNotifier(n Notifier) envOption {
	return func(p *ServiceParams) { p.Notifier = n }
}

// withReservations decorates the reservation repository the service uses.
func withReservations(wrap func(ReservationRepository) ReservationRepository) envOption {
	return func(p *ServiceParams) { p.Reservations = wrap(p.Reservations) }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	ctx := context.Background()
	client, err := db.New(ctx, config.DBConfig{
		Driver: config.DriverSQLite,
		DSN:    "file:hardware_" + uuid.NewString() + "?mode=memory&cache=shared",
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.DB().AutoMigrate(models.All()...))

	return newTestEnvOn(t, client, opts...)
}

// newTestEnvOn builds the service over an already migrated client.
func newTestEnvOn(t *testing.T, client *db.Client, opts ...envOption) *testEnv {
	t.Helper()

	clock := &fakeClock{now: time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)}
	notifier := &recordingNotifier{}
	params := ServiceParams{
		Tx:           client,
		Items:        NewItemRepository(client.DB()),
		Reservations: NewReservationRepository(client.DB()),
		Notifier:     notifier,
		Config: config.HardwareConfig{
			ReservationTTL: 30 * time.Minute,
			TokenBytes:     DefaultTokenBytes,
			TokenAttempts:  3,
		},
		Clock: clock.Now,
	}
	for _, opt := range opts {
		opt(&params)
	}

	svc, err := NewService(params)
	require.NoError(t, err)

	return &testEnv{client: client, svc: svc, clock: clock, notifier: notifier}
}

func (e *testEnv) seedItem(t *testing.T, name string, total int) uuid.UUID {
	t.Helper()
	items, err := e.svc.AddItems(context.Background(), []NewItem{{
		Name:       name,
		ItemURL:    "https://hardware.example.com/" + uuid.NewString(),
		TotalStock: total,
	}})
	require.NoError(t, err)
	require.Len(t, items, 1)
	return items[0].ID
}

func (e *testEnv) item(t *testing.T, id uuid.UUID) models.HardwareItem {
	t.Helper()
	var item models.HardwareItem
	require.NoError(t, e.client.DB().Where("id = ?", id).First(&item).Error)
	return item
}

func (e *testEnv) reservationCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, e.client.DB().Model(&models.HardwareReservation{}).Count(&count).Error)
	return count
}

// requireStockInvariant checks total - (reserved + taken) >= 0 and that the
// counters equal the sum of the live reservations.
func (e *testEnv) requireStockInvariant(t *testing.T) {
	t.Helper()
	var items []models.HardwareItem
	require.NoError(t, e.client.DB().Find(&items).Error)
	var reservations []models.HardwareReservation
	require.NoError(t, e.client.DB().Find(&reservations).Error)

	reserved := map[uuid.UUID]int{}
	taken := map[uuid.UUID]int{}
	for _, r := range reservations {
		if r.IsReserved {
			reserved[r.ItemID] += r.Quantity
		} else {
			taken[r.ItemID] += r.Quantity
		}
	}
	for _, item := range items {
		require.GreaterOrEqual(t, item.Available(), 0, "item %s oversold", item.Name)
		require.Equal(t, reserved[item.ID], item.ReservedStock, "reserved counter drift on %s", item.Name)
		require.Equal(t, taken[item.ID], item.TakenStock, "taken counter drift on %s", item.Name)
	}
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	require.Equal(t, code, typed.Code(), "unexpected error: %v", err)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, event Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func (n *recordingNotifier) Types() []EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]EventType, len(n.events))
	for i, e := range n.events {
		out[i] = e.Type
	}
	return out
}

func (n *recordingNotifier) Last() Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.events[len(n.events)-1]
}

// sequenceTokens replays fixed tokens, then falls back to random ones.
type sequenceTokens struct {
	mu     sync.Mutex
	tokens []string
	calls  int
}

func (s *sequenceTokens) Generate() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.tokens) == 0 {
		return NewTokenGenerator(DefaultTokenBytes).Generate()
	}
	next := s.tokens[0]
	if len(s.tokens) > 1 {
		s.tokens = s.tokens[1:]
	}
	return next, nil
}

type failingTokens struct{}

func (failingTokens) Generate() (string, error) {
	return "", errors.New("entropy exhausted")
}

type staticDirectory map[string]string

func (d staticDirectory) DisplayNames(_ context.Context, ids []string) (map[string]string, error) {
	out := map[string]string{}
	for _, id := range ids {
		if name, ok := d[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

// staleDeletes reports every pending delete as matching no row, the outcome a
// caller sees when another transaction got to the reservation first.
type staleDeletes struct {
	ReservationRepository
}

func (r staleDeletes) WithTx(tx *gorm.DB) ReservationRepository {
	return staleDeletes{ReservationRepository: r.ReservationRepository.WithTx(tx)}
}

func (staleDeletes) DeleteReserved(context.Context, string) (bool, error) {
	return false, nil
}
