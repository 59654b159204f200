package mock

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/harunnryd/asrstream/pkg/transports"
)

// Transport is an in-memory duplex for local testing. It implements both
// transports.Dialer and transports.Duplex without any network dependency.
type Transport struct {
	inbound chan []byte
	done    chan struct{}
	once    sync.Once
	closes  atomic.Int32
	dials   atomic.Int32

	mu   sync.Mutex
	sent [][]byte

	// OnSend, when set, is called for every outbound frame; the frames it
	// returns are queued as inbound replies.
	OnSend func(frame []byte) [][]byte
	// SendErr, when set, is returned by every Send.
	SendErr error
	// DialErr, when set, is returned by Dial.
	DialErr error
}

func New() *Transport {
	return &Transport{
		inbound: make(chan []byte, 256),
		done:    make(chan struct{}),
	}
}

func (t *Transport) Dial(ctx context.Context) (transports.Duplex, error) {
	t.dials.Add(1)
	if t.DialErr != nil {
		return nil, t.DialErr
	}
	return t, nil
}

func (t *Transport) Send(ctx context.Context, frame []byte) error {
	if t.isClosed() {
		return transports.ErrClosed
	}
	if t.SendErr != nil {
		return t.SendErr
	}
	t.mu.Lock()
	t.sent = append(t.sent, append([]byte(nil), frame...))
	t.mu.Unlock()
	if t.OnSend != nil {
		for _, reply := range t.OnSend(frame) {
			t.Push(reply)
		}
	}
	return nil
}

// Receive returns queued frames first, even after Close, so a reply pushed
// just before a hang-up is still observed.
func (t *Transport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-t.inbound:
		return frame, nil
	default:
	}
	select {
	case frame := <-t.inbound:
		return frame, nil
	case <-t.done:
		return nil, transports.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Transport) Close() error {
	t.closes.Add(1)
	t.once.Do(func() { close(t.done) })
	return nil
}

// Push injects an inbound frame into the transport. It blocks while the
// inbound queue is full and gives up once the transport is closed.
func (t *Transport) Push(frame []byte) {
	if t.isClosed() {
		return
	}
	select {
	case t.inbound <- frame:
	case <-t.done:
	}
}

// Sent returns a copy of every frame written so far.
func (t *Transport) Sent() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.sent))
	copy(out, t.sent)
	return out
}

// Closes reports how many times Close was called.
func (t *Transport) Closes() int { return int(t.closes.Load()) }

// Dials reports how many times Dial was called.
func (t *Transport) Dials() int { return int(t.dials.Load()) }

func (t *Transport) isClosed() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

var (
	_ transports.Dialer = (*Transport)(nil)
	_ transports.Duplex = (*Transport)(nil)
)
