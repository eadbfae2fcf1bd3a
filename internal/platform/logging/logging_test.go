package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNew_FiltersByLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := New(&buf, "warn")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("queued", "operation_id", "op-1")
	logger.Warn("drain halted", "remaining", 2)

	out := buf.String()
	if strings.Contains(out, "queued") {
		t.Errorf("expected info line to be filtered, got %q", out)
	}
	if !strings.Contains(out, "drain halted") || !strings.Contains(out, "remaining=2") {
		t.Errorf("expected warn line with attributes, got %q", out)
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	t.Parallel()

	if _, err := New(&bytes.Buffer{}, "chatty"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
