package logutil

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, LoggerConfig{Level: "warn", Format: "json"})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	logger.Info("dropped")
	logger.Warn("router_reply_error", "tenant_id", "g1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("lines = %d, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if rec["msg"] != "router_reply_error" || rec["tenant_id"] != "g1" || rec["service"] != "guildmind" {
		t.Fatalf("record = %v", rec)
	}
}

func TestNewLoggerRejectsUnknownValues(t *testing.T) {
	if _, err := NewLogger(nil, LoggerConfig{Format: "xml"}); err == nil {
		t.Fatalf("NewLogger(format=xml) expected error")
	}
	if _, err := NewLogger(nil, LoggerConfig{Level: "loud"}); err == nil {
		t.Fatalf("NewLogger(level=loud) expected error")
	}
}

func TestParseSlogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
	}
	for in, want := range cases {
		got, err := parseSlogLevel(in)
		if err != nil || got != want {
			t.Fatalf("parseSlogLevel(%q) = (%v, %v), want %v", in, got, err, want)
		}
	}
}
