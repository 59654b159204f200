package metrics

import (
	"sync"
	"sync/atomic"
)

// AsyncObserver hands events to a wrapped observer on its own goroutine so
// recording never blocks a session. Events that do not fit the queue are
// counted as dropped.
type AsyncObserver struct {
	next    Observer
	queue   chan MetricsEvent
	drained chan struct{}
	dropped atomic.Int64

	mu     sync.Mutex
	closed bool
}

func NewAsyncObserver(next Observer, size int) *AsyncObserver {
	if size <= 0 {
		size = 256
	}
	if next == nil {
		next = NoopObserver{}
	}
	a := &AsyncObserver{
		next:    next,
		queue:   make(chan MetricsEvent, size),
		drained: make(chan struct{}),
	}
	go a.forward()
	return a
}

// RecordEvent enqueues ev. It is a no-op after Close.
func (a *AsyncObserver) RecordEvent(ev MetricsEvent) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- ev:
	default:
		a.dropped.Add(1)
	}
}

// Dropped reports events lost to a full queue.
func (a *AsyncObserver) Dropped() int64 {
	return a.dropped.Load()
}

// Close stops intake and blocks until queued events are delivered. It is
// safe to call more than once.
func (a *AsyncObserver) Close() {
	if a == nil {
		return
	}
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.drained
}

func (a *AsyncObserver) forward() {
	defer close(a.drained)
	for ev := range a.queue {
		a.next.RecordEvent(ev)
	}
}
