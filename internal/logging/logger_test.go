package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"spool/internal/logging"
)

func TestNewJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "debug", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Info("hello", logging.String("k", "v"), logging.Int64(logging.FieldJobID, 7))

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if decoded["msg"] != "hello" || decoded["k"] != "v" {
		t.Fatalf("unexpected payload: %v", decoded)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestConsoleIdentityPrefix(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Writer: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger = logging.NewComponentLogger(logger, "scheduler")
	logger.Info("claimed", logging.Int64(logging.FieldJobID, 12))

	line := buf.String()
	if !strings.Contains(line, "[scheduler job:12]") {
		t.Fatalf("expected identity prefix, got %q", line)
	}
	if !strings.Contains(line, "claimed") {
		t.Fatalf("expected message, got %q", line)
	}
}

func TestWithContextCarriesStageAndJob(t *testing.T) {
	var buf bytes.Buffer
	base, err := logging.New(logging.Options{Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := logging.WithStage(context.Background(), "fetch")
	ctx = logging.WithJobID(ctx, 42)
	logging.WithContext(ctx, base).Info("progress")

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if decoded[logging.FieldStage] != "fetch" {
		t.Fatalf("missing stage: %v", decoded)
	}
	if decoded[logging.FieldJobID].(float64) != 42 {
		t.Fatalf("missing job id: %v", decoded)
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	logger.Error("should not panic", logging.Error(nil))
}
