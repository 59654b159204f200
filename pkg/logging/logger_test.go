package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range cases {
		got, ok := ParseLevel(in)
		if !ok || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v", in, got, ok)
		}
	}
	if _, ok := ParseLevel("loud"); ok {
		t.Fatalf("expected unknown level to be reported")
	}
}

func TestComponentLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	base := InitLogger(&buf, "debug", "json")
	NewComponentLogger(base, "asr_session").Debug("asr_frame_sent", slog.Int("sequence", 2))

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("expected a single json line, got %q: %v", buf.String(), err)
	}
	if line["component"] != "asr_session" || line["msg"] != "asr_frame_sent" {
		t.Fatalf("unexpected log line %v", line)
	}
}

func TestInitLoggerWarnsOnBadFormat(t *testing.T) {
	var buf bytes.Buffer
	InitLogger(&buf, "info", "xml")
	if !strings.Contains(buf.String(), "invalid log format") {
		t.Fatalf("expected a format warning, got %q", buf.String())
	}
}
