package metrics

import (
	"log/slog"
	"sync"
	"time"
)

// LatencyObserver logs per-session latency once a session finishes: time
// from the first frame sent to the first partial result, and to the end.
type LatencyObserver struct {
	mu     sync.Mutex
	traces map[string]*trace
	log    *slog.Logger
	last   LatencyReport
}

type trace struct {
	firstSent    time.Time
	firstPartial time.Time
	partials     int
}

// LatencyReport is the summary logged for one session.
type LatencyReport struct {
	SessionID    string
	FirstPartial time.Duration
	Total        time.Duration
	Partials     int
	Failed       bool
}

func NewLatencyObserver(log *slog.Logger) *LatencyObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LatencyObserver{
		traces: make(map[string]*trace),
		log:    log,
	}
}

func (o *LatencyObserver) RecordEvent(ev MetricsEvent) {
	sessionID := ev.Tags[TagSessionID]
	if sessionID == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	t := o.traces[sessionID]
	if t == nil {
		t = &trace{}
		o.traces[sessionID] = t
	}
	switch ev.Name {
	case EventFrameSent:
		if t.firstSent.IsZero() {
			t.firstSent = ev.Time
		}
	case EventPartialResult:
		if t.firstPartial.IsZero() {
			t.firstPartial = ev.Time
		}
		t.partials++
	case EventSessionCompleted, EventSessionFailed:
		o.reportLocked(sessionID, t, ev)
		delete(o.traces, sessionID)
	}
}

// Last returns the most recent report.
func (o *LatencyObserver) Last() LatencyReport {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

func (o *LatencyObserver) reportLocked(sessionID string, t *trace, ev MetricsEvent) {
	r := LatencyReport{SessionID: sessionID, Partials: t.partials, Failed: ev.Name == EventSessionFailed}
	if !t.firstSent.IsZero() {
		r.Total = ev.Time.Sub(t.firstSent)
		if !t.firstPartial.IsZero() {
			r.FirstPartial = t.firstPartial.Sub(t.firstSent)
		}
	}
	o.last = r
	o.log.Info("asr_latency",
		slog.String(TagSessionID, sessionID),
		slog.Int64("first_partial_ms", r.FirstPartial.Milliseconds()),
		slog.Int64("total_ms", r.Total.Milliseconds()),
		slog.Int("partials", r.Partials),
		slog.Bool("failed", r.Failed),
	)
}
