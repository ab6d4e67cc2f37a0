package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetup_AutoFormatIsJSONOffTerminal(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := Setup("info", "", &buf)
	logger.Debug("hidden")
	logger.Info("file skipped", "file", "a.pdf")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line (debug filtered), got %q", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("expected JSON log line: %v (%q)", err, lines[0])
	}
	if entry["msg"] != "file skipped" || entry["file"] != "a.pdf" {
		t.Errorf("entry = %v", entry)
	}
}

func TestSetup_Text(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	Setup("debug", "text", &buf)
	slog.Debug("batch complete", "records", 3)

	if !strings.Contains(buf.String(), "msg=\"batch complete\"") || !strings.Contains(buf.String(), "records=3") {
		t.Fatalf("unexpected text output %q", buf.String())
	}
}

func TestFromContext_BatchID(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	Setup("info", "json", &buf)

	FromContext(WithBatchID(context.Background(), "b-1")).Info("inserted")
	FromContext(context.Background()).Info("plain")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", buf.String())
	}
	if !strings.Contains(lines[0], `"batch_id":"b-1"`) {
		t.Errorf("missing batch_id: %s", lines[0])
	}
	if strings.Contains(lines[1], "batch_id") {
		t.Errorf("unexpected batch_id: %s", lines[1])
	}
}

func TestIsTerminal_NonFile(t *testing.T) {
	if IsTerminal(&bytes.Buffer{}) {
		t.Fatal("a buffer is not a terminal")
	}
}
