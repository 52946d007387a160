package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		enable zapcore.Level
	}{
		{"debug level", "debug", zapcore.DebugLevel},
		{"warn level", "warn", zapcore.WarnLevel},
		{"default info", "", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.level)
			if !logger.Core().Enabled(tt.enable) {
				t.Fatalf("expected level %s to be enabled", tt.enable)
			}
		})
	}
}

func TestDefaultLogger(t *testing.T) {
	logger := Default()
	logger.Info("test message", zap.String("key", "value"))

	if !logger.Core().Enabled(zapcore.InfoLevel) {
		t.Error("Default() should enable info level")
	}
	if logger.Core().Enabled(zapcore.DebugLevel) {
		t.Error("Default() should not enable debug level")
	}
	if Default() == logger {
		t.Error("Default() returned the same instance twice")
	}
}

func TestObservedWith(t *testing.T) {
	logger, logs := NewObserved()
	logger.With(zap.String("patient_id", "p1")).Warn("fetch failed")

	entries := logs.FilterMessage("fetch failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	if entries[0].ContextMap()["patient_id"] != "p1" {
		t.Fatalf("missing patient_id field: %v", entries[0].ContextMap())
	}
}
