package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hackportal/hackportal-backend/pkg/config"
	"github.com/redis/go-redis/v9"
)

func TestSetNXOnlyOnce(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	ok, err := client.SetNX(ctx, "k", "owner-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first setnx to win, ok=%v err=%v", ok, err)
	}
	ok, err = client.SetNX(ctx, "k", "owner-b", time.Minute)
	if err != nil || ok {
		t.Fatalf("expected second setnx to lose, ok=%v err=%v", ok, err)
	}
	if value := mock.data["k"]; value != "owner-a" {
		t.Fatalf("expected owner-a to keep the key, got %q", value)
	}
}

func TestPublishRecordsMessage(t *testing.T) {
	mock := newMockCmdable()
	client := &Client{store: mock}

	if _, err := client.Publish(context.Background(), "hp:channel:updates", "payload"); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if got := mock.published["hp:channel:updates"]; len(got) != 1 || got[0] != "payload" {
		t.Fatalf("unexpected published messages %v", got)
	}
}

func TestUninitializedClientErrors(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected error from uninitialized client")
	}
	if _, err := client.Publish(context.Background(), "c", "p"); err == nil {
		t.Fatal("expected publish error from uninitialized client")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close should be a no-op, got %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.LockKey("cron-worker", "prod"); got != "hp:lock:cron-worker:prod" {
		t.Fatalf("unexpected lock key %s", got)
	}
	if got := client.LockKey("cron-worker", ""); got != "hp:lock:cron-worker" {
		t.Fatalf("env-less lock key should skip empty parts, got %s", got)
	}
}

func TestNewAgainstMiniredis(t *testing.T) {
	server := miniredis.RunT(t)
	ctx := context.Background()

	client, err := New(ctx, config.RedisConfig{Address: server.Addr(), PoolSize: 2}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	sub, err := client.Subscribe(ctx, "updates")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	receivers, err := client.Publish(ctx, "updates", "hello")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if receivers != 1 {
		t.Fatalf("expected 1 receiver, got %d", receivers)
	}

	select {
	case msg := <-sub.Channel():
		if msg.Payload != "hello" {
			t.Fatalf("unexpected payload %q", msg.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestOptionsRequireAddress(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatal("expected error without url or address")
	}
	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/3", PoolSize: 7})
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if opts.DB != 3 || opts.PoolSize != 7 {
		t.Fatalf("unexpected options db=%d pool=%d", opts.DB, opts.PoolSize)
	}
}

type mockCmdable struct {
	data      map[string]string
	published map[string][]string
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data:      make(map[string]string),
		published: make(map[string][]string),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	m.published[channel] = append(m.published[channel], fmt.Sprint(message))
	return redis.NewIntResult(1, nil)
}

func TestDeleteIfValueOnlyRemovesMatchingOwner(t *testing.T) {
	server := miniredis.RunT(t)
	client := Wrap(redis.NewClient(&redis.Options{Addr: server.Addr()}))
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	if err := server.Set("hp:lock:sweep", "owner-a"); err != nil {
		t.Fatalf("seed key: %v", err)
	}
	removed, err := client.DeleteIfValue(ctx, "hp:lock:sweep", "owner-b")
	if err != nil || removed {
		t.Fatalf("expected mismatched owner to keep key, removed=%v err=%v", removed, err)
	}
	removed, err = client.DeleteIfValue(ctx, "hp:lock:sweep", "owner-a")
	if err != nil || !removed {
		t.Fatalf("expected matching owner to delete key, removed=%v err=%v", removed, err)
	}
	if server.Exists("hp:lock:sweep") {
		t.Fatal("key should be gone")
	}
}
