package metrics

import "time"

// Event names recorded by a recognition session.
const (
	EventFrameSent        = "asr.frame_sent"
	EventFrameReceived    = "asr.frame_received"
	EventPartialResult    = "asr.partial_result"
	EventSessionCompleted = "asr.session_completed"
	EventSessionFailed    = "asr.session_failed"
)

// Common tag keys.
const (
	TagSessionID   = "session_id"
	TagMessageType = "message_type"
	TagReason      = "reason"
)

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type Flusher interface {
	Flush() error
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}

// Record is a shorthand for emitting an event stamped with the current time.
func Record(obs Observer, name string, value float64, tags map[string]string) {
	if obs == nil {
		return
	}
	obs.RecordEvent(MetricsEvent{Name: name, Time: time.Now(), Value: value, Tags: tags})
}
