package asr

import (
	"context"
	"errors"
	"fmt"

	"github.com/harunnryd/asrstream/pkg/protocol"
	"github.com/harunnryd/asrstream/pkg/transports"
)

// State is the receive loop position.
type State int

const (
	StateAwaitingFrame State = iota
	StateFullResponsePayload
	StateErrorPayload
	StateEmptyAck
	StateMalformedFrame
	StateDone
)

func (s State) String() string {
	switch s {
	case StateAwaitingFrame:
		return "awaiting_frame"
	case StateFullResponsePayload:
		return "full_response_payload"
	case StateErrorPayload:
		return "error_payload"
	case StateEmptyAck:
		return "empty_ack"
	case StateMalformedFrame:
		return "malformed_frame"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Receiver consumes server frames until a terminal frame or an error.
type Receiver struct {
	state      State
	transcript *Transcript
	frames     int

	// OnPartial is called whenever a payload replaces the transcript.
	OnPartial func(text string)
	// OnFrame is called for every frame read off the wire, before decoding.
	OnFrame func(frame []byte)
}

func NewReceiver(t *Transcript) *Receiver {
	if t == nil {
		t = &Transcript{}
	}
	return &Receiver{transcript: t}
}

func (r *Receiver) State() State { return r.state }

// Frames reports how many frames were handled.
func (r *Receiver) Frames() int { return r.frames }

func (r *Receiver) Transcript() *Transcript { return r.transcript }

// Handle advances the state machine by one frame. done is true once a
// terminal frame was reduced; an error-response frame returns its
// *protocol.RemoteError.
func (r *Receiver) Handle(frame []byte) (done bool, err error) {
	if r.state == StateDone || r.state == StateErrorPayload || r.state == StateMalformedFrame {
		return true, fmt.Errorf("receiver finished in state %s", r.state)
	}
	r.frames++
	resp, err := protocol.DecodeResponse(frame)
	if err != nil {
		var remote *protocol.RemoteError
		if errors.As(err, &remote) {
			r.state = StateErrorPayload
		} else {
			r.state = StateMalformedFrame
		}
		return true, err
	}
	if resp.Header.MessageType == protocol.MessageFullServerResponse && resp.JSON != nil {
		r.state = StateFullResponsePayload
		if text, ok := r.transcript.Apply(resp.JSON); ok && r.OnPartial != nil {
			r.OnPartial(text)
		}
	} else {
		r.state = StateEmptyAck
	}
	if resp.Terminal {
		r.state = StateDone
		return true, nil
	}
	r.state = StateAwaitingFrame
	return false, nil
}

// Run reads from conn until Handle reports completion.
func (r *Receiver) Run(ctx context.Context, conn transports.Duplex) error {
	for {
		frame, err := conn.Receive(ctx)
		if err != nil {
			return err
		}
		if r.OnFrame != nil {
			r.OnFrame(frame)
		}
		done, err := r.Handle(frame)
		if done {
			return err
		}
	}
}
