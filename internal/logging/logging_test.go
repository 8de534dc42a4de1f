package logging

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNew_WritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	logger, err := New("debug", path)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info("conversation opened")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected log file to have content")
	}
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	logger, err := New("loud", "")
	if err != nil {
		t.Fatalf("expected fallback, got %v", err)
	}
	if logger.Core().Enabled(-1) {
		t.Fatalf("expected debug disabled at info level")
	}
}
