package hardware

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType names the state change that triggered a broadcast.
type EventType string

const (
	EventReserved    EventType = "reserved"
	EventTaken       EventType = "taken"
	EventReturned    EventType = "returned"
	EventCancelled   EventType = "cancelled"
	EventExpired     EventType = "expired"
	EventItemsAdded  EventType = "items_added"
	EventItemUpdated EventType = "item_updated"
	EventItemDeleted EventType = "item_deleted"
)

// Event is the live-update payload sent after a committed change.
type Event struct {
	Type       EventType   `json:"type"`
	ItemIDs    []uuid.UUID `json:"item_ids"`
	OccurredAt time.Time   `json:"occurred_at"`
	Items      []StockView `json:"items,omitempty"`
}

// Notifier receives committed state changes. Implementations must not
// assume delivery affects the originating operation.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

type publisher interface {
	Publish(ctx context.Context, channel string, payload any) (int64, error)
}

// RedisNotifier publishes events as JSON on a Redis pub/sub channel.
type RedisNotifier struct {
	pub     publisher
	channel string
}

// NewRedisNotifier returns a notifier that publishes to channel.
func NewRedisNotifier(pub publisher, channel string) (*RedisNotifier, error) {
	if pub == nil {
		return nil, fmt.Errorf("redis publisher required")
	}
	if channel == "" {
		return nil, fmt.Errorf("updates channel required")
	}
	return &RedisNotifier{pub: pub, channel: channel}, nil
}

func (n *RedisNotifier) Notify(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal hardware event: %w", err)
	}
	if _, err := n.pub.Publish(ctx, n.channel, payload); err != nil {
		return fmt.Errorf("publish hardware event: %w", err)
	}
	return nil
}
