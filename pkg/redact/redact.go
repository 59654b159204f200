package redact

import (
	"net/http"
	"regexp"
	"strings"
	"sync/atomic"
)

var enabled atomic.Bool

var (
	emailRe = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	phoneRe = regexp.MustCompile(`\b\+?\d[\d\s\-]{7,}\d\b`)
)

// secretHeaderHints are substrings of header names whose values are
// credentials.
var secretHeaderHints = []string{"key", "token", "secret", "authorization"}

// SetEnabled toggles PII redaction of transcript text.
func SetEnabled(v bool) {
	enabled.Store(v)
}

// Enabled returns true when redaction is active.
func Enabled() bool {
	return enabled.Load()
}

// Text redacts emails and phone numbers when enabled.
func Text(in string) string {
	if !enabled.Load() || strings.TrimSpace(in) == "" {
		return in
	}
	out := emailRe.ReplaceAllString(in, "[REDACTED_EMAIL]")
	out = phoneRe.ReplaceAllString(out, "[REDACTED_PHONE]")
	return out
}

// Secret masks a credential, keeping the last four characters so logs can
// still tell keys apart.
func Secret(v string) string {
	if len(v) <= 4 {
		return strings.Repeat("*", len(v))
	}
	return strings.Repeat("*", len(v)-4) + v[len(v)-4:]
}

// Header returns a flattened copy of h with credential values masked. It is
// always applied, independent of SetEnabled.
func Header(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		v := strings.Join(vs, ",")
		lk := strings.ToLower(k)
		for _, hint := range secretHeaderHints {
			if strings.Contains(lk, hint) {
				v = Secret(v)
				break
			}
		}
		out[k] = v
	}
	return out
}
