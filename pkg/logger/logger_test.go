package logger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	pkgerrors "github.com/hackportal/hackportal-backend/pkg/errors"
)

func TestLoggerErrorIncludesContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})

	ctx := context.Background()
	ctx = log.WithRequestID(ctx, "req-123")
	ctx = log.WithItemID(ctx, "item-9")

	log.Error(ctx, "boom", errors.New("boom"))

	if !bytes.Contains(buf.Bytes(), []byte("\"request_id\"")) {
		t.Fatalf("expected request_id to be preserved; entry=%s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte("\"item_id\":\"item-9\"")) {
		t.Fatalf("expected item_id to be preserved; entry=%s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte("\"stack\"")) {
		t.Fatalf("expected stack trace on error; entry=%s", buf.String())
	}
}

func TestLoggerWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf, WarnStack: true})
	log.Warn(context.Background(), "warny")
	if !bytes.Contains(buf.Bytes(), []byte("\"stack\"")) {
		t.Fatalf("expected stack when warn stack enabled")
	}
}

func TestWithTokenNeverLogsFullToken(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})
	token := strings.Repeat("ab", 32)

	log.Info(log.WithToken(context.Background(), token), "reserved")

	if bytes.Contains(buf.Bytes(), []byte(token)) {
		t.Fatalf("full token leaked into log entry: %s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte("\"token_prefix\":\"abababab\"")) {
		t.Fatalf("expected token prefix; entry=%s", buf.String())
	}
}

func TestParseLevelDefaults(t *testing.T) {
	if lvl := ParseLevel(""); lvl != zerolog.InfoLevel {
		t.Fatalf("expected default info level, got %v", lvl)
	}
	if lvl := ParseLevel("invalid"); lvl != zerolog.InfoLevel {
		t.Fatalf("invalid level should fallback to info, got %v", lvl)
	}
	if lvl := ParseLevel(" DEBUG "); lvl != zerolog.DebugLevel {
		t.Fatalf("expected debug level, got %v", lvl)
	}
}

func TestErrorAnnotatesTypedErrors(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Format: FormatJSON, Output: buf})

	log.Error(context.Background(), "sweep failed", pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, errors.New("dial tcp"), "list pending"))

	if !bytes.Contains(buf.Bytes(), []byte(`"error_code":"STORE_UNAVAILABLE"`)) {
		t.Fatalf("expected error code; entry=%s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"retryable":true`)) {
		t.Fatalf("expected retryable flag; entry=%s", buf.String())
	}
}

func TestLevelFiltersEntries(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("warn"), Format: FormatJSON, Output: buf})

	log.Info(context.Background(), "quiet")
	if buf.Len() != 0 {
		t.Fatalf("info entry should be filtered at warn level: %s", buf.String())
	}
	log.Warn(log.WithFields(context.Background(), map[string]any{"op": "sweep"}), "loud")
	if !bytes.Contains(buf.Bytes(), []byte(`"op":"sweep"`)) {
		t.Fatalf("expected warn entry with fields; entry=%s", buf.String())
	}
}
