package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusObserver turns session events into Prometheus series.
type PrometheusObserver struct {
	frames   *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	sessions *prometheus.CounterVec
	partials prometheus.Counter
	latency  prometheus.Histogram
}

// NewPrometheusObserver registers the collectors on reg.
func NewPrometheusObserver(reg prometheus.Registerer) (*PrometheusObserver, error) {
	o := &PrometheusObserver{
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "asr",
			Name:      "frames_total",
			Help:      "Protocol frames exchanged, by direction and message type.",
		}, []string{"direction", TagMessageType}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "asr",
			Name:      "frame_bytes_total",
			Help:      "Encoded frame bytes exchanged, by direction.",
		}, []string{"direction"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "asr",
			Name:      "sessions_total",
			Help:      "Finished recognition sessions, by outcome reason.",
		}, []string{TagReason}),
		partials: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "asr",
			Name:      "partial_results_total",
			Help:      "Transcript replacements applied from partial results.",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "asr",
			Name:      "session_duration_seconds",
			Help:      "Wall time from dial to final result.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
		}),
	}
	for _, c := range []prometheus.Collector{o.frames, o.bytes, o.sessions, o.partials, o.latency} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (o *PrometheusObserver) RecordEvent(ev MetricsEvent) {
	switch ev.Name {
	case EventFrameSent:
		o.frames.WithLabelValues("sent", ev.Tags[TagMessageType]).Inc()
		o.bytes.WithLabelValues("sent").Add(ev.Value)
	case EventFrameReceived:
		o.frames.WithLabelValues("received", ev.Tags[TagMessageType]).Inc()
		o.bytes.WithLabelValues("received").Add(ev.Value)
	case EventPartialResult:
		o.partials.Inc()
	case EventSessionCompleted:
		o.sessions.WithLabelValues("ok").Inc()
		o.latency.Observe(ev.Value)
	case EventSessionFailed:
		o.sessions.WithLabelValues(ev.Tags[TagReason]).Inc()
		o.latency.Observe(ev.Value)
	}
}
