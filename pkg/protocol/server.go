package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/harunnryd/asrstream/pkg/gzipx"
)

// ServerFrame describes a server message. It is the encoding side of
// DecodeResponse, used by fakes and interop tests that play the service.
type ServerFrame struct {
	Type        MessageType
	HasSequence bool
	Sequence    SequenceNumber
	Terminal    bool
	HasEvent    bool
	Event       int32
	ErrorCode   int32
	// Payload is compressed on encode. An empty payload is sent as a
	// zero-length body.
	Payload []byte
}

func (f ServerFrame) flags() Flags {
	var fl Flags
	if f.HasSequence {
		fl |= FlagSequence
	}
	if f.Terminal {
		fl |= FlagTerminal
	}
	if f.HasEvent {
		fl |= FlagEvent
	}
	return fl
}

// EncodeServerFrame serializes f with the standard header.
func EncodeServerFrame(f ServerFrame) ([]byte, error) {
	header := EncodeHeader(f.Type, f.flags())
	out := append([]byte(nil), header[:]...)
	if f.HasSequence {
		out = binary.BigEndian.AppendUint32(out, uint32(f.Sequence.Int32()))
	}
	if f.HasEvent {
		out = binary.BigEndian.AppendUint32(out, uint32(f.Event))
	}
	if f.Type == MessageServerError {
		out = binary.BigEndian.AppendUint32(out, uint32(f.ErrorCode))
	}
	if f.Type != MessageFullServerResponse && f.Type != MessageServerError {
		return out, nil
	}
	var body []byte
	if len(f.Payload) > 0 {
		packed, err := gzipx.Compress(f.Payload)
		if err != nil {
			return nil, fmt.Errorf("compress payload: %w", err)
		}
		body = packed
	}
	out = binary.BigEndian.AppendUint32(out, uint32(len(body)))
	return append(out, body...), nil
}

// Request is a decoded client frame.
type Request struct {
	Header   Header
	Sequence SequenceNumber
	// Payload is the decompressed body.
	Payload []byte
}

// DecodeRequest parses a frame produced by EncodeRequest.
func DecodeRequest(data []byte) (*Request, error) {
	h, err := DecodeHeader(data)
	if err != nil {
		return nil, err
	}
	if h.MessageType != MessageFullClientRequest && h.MessageType != MessageAudioOnlyRequest {
		return nil, malformed("unexpected client message type %s", h.MessageType)
	}
	c := cursor{b: data, off: h.Size()}
	seq, err := c.int32("sequence")
	if err != nil {
		return nil, err
	}
	body, err := c.payload()
	if err != nil {
		return nil, err
	}
	raw, err := unpack(h.Compression, body)
	if err != nil {
		return nil, malformed("payload: %v", err)
	}
	return &Request{Header: h, Sequence: SequenceNumber(seq), Payload: raw}, nil
}
