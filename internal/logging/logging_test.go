package logging

import (
	"context"
	"log/slog"
	"testing"
)

func TestNew_LevelThresholds(t *testing.T) {
	cases := []struct {
		level       string
		debugOn     bool
		infoOn      bool
		description string
	}{
		{"debug", true, true, "debug enables everything"},
		{"info", false, true, "info drops debug"},
		{"error", false, false, "error drops info"},
		{"", false, true, "unknown level defaults to info"},
	}

	for _, tc := range cases {
		logger := New(tc.level, "text")
		if got := logger.Enabled(context.Background(), slog.LevelDebug); got != tc.debugOn {
			t.Errorf("%s: debug enabled = %v, want %v", tc.description, got, tc.debugOn)
		}
		if got := logger.Enabled(context.Background(), slog.LevelInfo); got != tc.infoOn {
			t.Errorf("%s: info enabled = %v, want %v", tc.description, got, tc.infoOn)
		}
	}
}

func TestNew_JSONFormat(t *testing.T) {
	if New("info", "json") == nil {
		t.Fatal("expected non-nil logger for json format")
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	if id := RequestID(ctx); id != "" {
		t.Fatalf("fresh context should have no request id, got %q", id)
	}

	ctx = WithRequestID(ctx, "req-123")
	if id := RequestID(ctx); id != "req-123" {
		t.Fatalf("RequestID = %q, want req-123", id)
	}

	ctx = WithRequestID(ctx, "req-456")
	if id := RequestID(ctx); id != "req-456" {
		t.Fatalf("latest request id should win, got %q", id)
	}
}

func TestFromContext_FallsBackToDefault(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("expected the default logger for a bare context")
	}

	custom := Discard()
	ctx := WithLogger(context.Background(), custom)
	if FromContext(ctx) != custom {
		t.Fatal("expected the context logger back")
	}
}

func TestL_TagsRequestID(t *testing.T) {
	ctx := WithLogger(context.Background(), Discard())
	if L(ctx) == nil {
		t.Fatal("L must never return nil")
	}

	ctx = WithRequestID(ctx, "req-789")
	if L(ctx) == nil {
		t.Fatal("L must never return nil with a request id set")
	}
}

func TestDiscard_DisabledAtAllLevels(t *testing.T) {
	logger := Discard()
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("discard logger should be disabled even at error level")
	}
}
