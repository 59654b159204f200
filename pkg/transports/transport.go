package transports

import (
	"context"
	"errors"
)

// ErrClosed is returned by Send and Receive once the connection is gone,
// whether closed locally or by the peer.
var ErrClosed = errors.New("transport closed")

// Duplex is an established binary-message channel to the recognition
// service. Send and Receive may be called concurrently with each other, and
// Close may be called concurrently with both; Close unblocks a pending
// Receive.
type Duplex interface {
	Send(ctx context.Context, frame []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer opens one Duplex per recognition session.
type Dialer interface {
	Dial(ctx context.Context) (Duplex, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (Duplex, error)

func (f DialerFunc) Dial(ctx context.Context) (Duplex, error) { return f(ctx) }

// ReadyReporter allows transports to expose connection metadata (e.g. the
// server-assigned log id). Implementations are optional and used for
// informational logging only.
type ReadyReporter interface {
	ReadyFields() map[string]any
}
