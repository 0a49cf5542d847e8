package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/bytebot-ai/bytebot/internal/config"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewSetsServiceAttribute(t *testing.T) {
	log, closer := New(config.Logging{Level: "info", Service: "bytebot-agent"})
	defer closer.Close()
	if log == nil {
		t.Fatal("expected a logger")
	}
}

func TestAsyncHandlerDeliversRecords(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	h := NewAsyncHandler(inner, 16, 1)

	log := slog.New(h)
	log.Info("frame cached", "task_id", "t1")
	h.Close()

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected one JSON record, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "frame cached" {
		t.Fatalf("expected msg 'frame cached', got %v", rec["msg"])
	}
	if h.DroppedCount() != 0 {
		t.Fatalf("expected no drops, got %d", h.DroppedCount())
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-42")
	if got := RequestID(ctx); got != "req-42" {
		t.Fatalf("expected req-42, got %q", got)
	}
	if got := RequestID(context.Background()); got != "" {
		t.Fatalf("expected empty request ID, got %q", got)
	}
}
