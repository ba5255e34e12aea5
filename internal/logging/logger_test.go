package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "info", "json")
	l.Debug("hidden")
	l.Info("shown", "layout", "board")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if rec["msg"] != "shown" || rec["layout"] != "board" {
		t.Errorf("record = %v", rec)
	}
}

func TestForSheetPropagates(t *testing.T) {
	var buf bytes.Buffer
	base := New(&buf, "debug", "text")
	ctx := WithLogger(context.Background(), base)

	ctx, _ = ForSheet(ctx, "p12")
	WithFields(ctx, "layout", "board").Info("extracted")

	out := buf.String()
	if !strings.Contains(out, "sheet_id=p12") || !strings.Contains(out, "layout=board") {
		t.Errorf("log line = %q, want sheet_id and layout", out)
	}
}

func TestFromContextRequestID(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(New(&buf, "info", "text"))
	defer slog.SetDefault(prev)

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-7")
	FromContext(ctx).Info("hello")

	if !strings.Contains(buf.String(), "request_id=req-7") {
		t.Errorf("log line = %q, want request_id", buf.String())
	}
}
