package configutil

import (
	"errors"
	"testing"
)

func TestValidateSettings(t *testing.T) {
	schema := Schema{Required: []string{"url"}, Optional: []string{"dial_retries"}}

	if err := ValidateSettings(map[string]any{"URL": "wss://x", "dial-retries": 2}, schema); err != nil {
		t.Fatalf("expected normalized keys to validate, got %v", err)
	}

	err := ValidateSettings(map[string]any{"url": "  ", "colour": "blue"}, schema)
	var se *SettingsError
	if !errors.As(err, &se) {
		t.Fatalf("expected SettingsError, got %v", err)
	}
	if len(se.Missing) != 1 || se.Missing[0] != "url" {
		t.Fatalf("expected url missing, got %v", se.Missing)
	}
	if len(se.Unknown) != 1 || se.Unknown[0] != "colour" {
		t.Fatalf("expected colour unknown, got %v", se.Unknown)
	}
	if got, want := err.Error(), "missing: url; unknown: colour"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestDecodeSettingsWeakTypes(t *testing.T) {
	var out struct {
		URL         string `mapstructure:"url"`
		DialRetries int    `mapstructure:"dial_retries"`
		Compression bool   `mapstructure:"enable_compression"`
	}
	in := map[string]any{"url": "wss://x", "dial-retries": "3", "EnableCompression": "true"}
	if err := DecodeSettings(in, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.URL != "wss://x" || out.DialRetries != 3 || !out.Compression {
		t.Fatalf("unexpected decode result %+v", out)
	}
}

func TestExpandSettings(t *testing.T) {
	t.Setenv("ASR_TEST_KEY", "k-123")
	in := map[string]any{
		"key":    "${ASR_TEST_KEY}",
		"nested": map[string]any{"list": []any{"$ASR_TEST_KEY", 4}},
	}
	out := ExpandSettings(in)
	if out["key"] != "k-123" {
		t.Fatalf("expected expanded key, got %v", out["key"])
	}
	list := out["nested"].(map[string]any)["list"].([]any)
	if list[0] != "k-123" || list[1] != 4 {
		t.Fatalf("unexpected nested expansion %v", list)
	}
}

func TestRequireHelpers(t *testing.T) {
	if RequireString(" ", "endpoint") == nil {
		t.Fatalf("expected blank string rejected")
	}
	if RequirePositive(0, "audio.segment_ms") == nil {
		t.Fatalf("expected zero rejected")
	}
	if RequirePositive(200, "audio.segment_ms") != nil {
		t.Fatalf("expected positive accepted")
	}
}
