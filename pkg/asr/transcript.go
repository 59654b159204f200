package asr

import (
	"strings"
	"sync"
)

// ExtractText pulls the current best-guess transcript out of a decoded
// result payload. Fields are tried in order: result.text, text, transcript,
// then the joined text of an utterances array. It returns "" when none
// matches. result.utterances is the last resort.
func ExtractText(payload map[string]any) string {
	if payload == nil {
		return ""
	}
	result, _ := payload["result"].(map[string]any)
	if s := stringField(result, "text"); s != "" {
		return s
	}
	if s := stringField(payload, "text"); s != "" {
		return s
	}
	if s := stringField(payload, "transcript"); s != "" {
		return s
	}
	if s := joinUtterances(payload["utterances"]); s != "" {
		return s
	}
	return joinUtterances(result["utterances"])
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func joinUtterances(v any) string {
	list, ok := v.([]any)
	if !ok {
		return ""
	}
	var b strings.Builder
	for _, item := range list {
		u, ok := item.(map[string]any)
		if !ok {
			continue
		}
		b.WriteString(stringField(u, "text"))
	}
	return b.String()
}

// Transcript holds the latest non-empty text seen in a session. Each
// partial result replaces the previous value wholesale.
type Transcript struct {
	mu      sync.Mutex
	text    string
	updates int
}

// Apply reduces one payload and reports whether it replaced the transcript.
func (t *Transcript) Apply(payload map[string]any) (string, bool) {
	s := ExtractText(payload)
	if s == "" {
		return "", false
	}
	t.mu.Lock()
	t.text = s
	t.updates++
	t.mu.Unlock()
	return s, true
}

func (t *Transcript) Text() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.text
}

// Updates reports how many payloads replaced the transcript.
func (t *Transcript) Updates() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.updates
}

// Final returns the trimmed transcript, or ErrEmptyResult when nothing but
// whitespace was recognized.
func (t *Transcript) Final() (string, error) {
	s := strings.TrimSpace(t.Text())
	if s == "" {
		return "", ErrEmptyResult
	}
	return s, nil
}
