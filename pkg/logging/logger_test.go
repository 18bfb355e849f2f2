package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		enable  slog.Level
		disable *slog.Level
	}{
		{"debug level", "debug", slog.LevelDebug, nil},
		{"warn level", "warn", slog.LevelWarn, levelPtr(slog.LevelInfo)},
		{"warning alias", "WARNING", slog.LevelWarn, levelPtr(slog.LevelInfo)},
		{"default info", "", slog.LevelInfo, levelPtr(slog.LevelDebug)},
	}

	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.level)
			if !logger.Enabled(ctx, tt.enable) {
				t.Fatalf("expected level %s to be enabled", tt.enable)
			}
			if tt.disable != nil && logger.Enabled(ctx, *tt.disable) {
				t.Fatalf("expected level %s to be disabled", *tt.disable)
			}
		})
	}
}

func TestComponentAddsAttribute(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info").Component("pipeline")
	logger.Info("decision made", "tenant_id", "t-1")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if record["component"] != "pipeline" {
		t.Fatalf("expected component attribute, got %v", record["component"])
	}
	if record["tenant_id"] != "t-1" {
		t.Fatalf("expected tenant_id attribute, got %v", record["tenant_id"])
	}
}

func TestWithOnNilLogger(t *testing.T) {
	var logger *Logger
	child := logger.With("k", "v")
	if child == nil || child.Logger == nil {
		t.Fatal("expected With on nil logger to fall back to a default logger")
	}
}

func TestDefaultLoggerIsNewInstance(t *testing.T) {
	if Default() == Default() {
		t.Error("Default() returned the same instance twice - expected new instances")
	}
}

func levelPtr(l slog.Level) *slog.Level { return &l }
