package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/harunnryd/asrstream/pkg/gzipx"
)

// EncodeRequest builds a client frame. The payload is gzip-compressed and
// the flags are derived from seq, so a terminal sequence number always
// travels with the terminal flag.
func EncodeRequest(messageType MessageType, seq SequenceNumber, payload []byte) ([]byte, error) {
	packed, err := gzipx.Compress(payload)
	if err != nil {
		return nil, fmt.Errorf("compress payload: %w", err)
	}
	header := EncodeHeader(messageType, seq.Flags())
	out := make([]byte, 0, len(header)+8+len(packed))
	out = append(out, header[:]...)
	out = binary.BigEndian.AppendUint32(out, uint32(seq.Int32()))
	out = binary.BigEndian.AppendUint32(out, uint32(len(packed)))
	out = append(out, packed...)
	return out, nil
}

// Response is a decoded server frame.
type Response struct {
	Header      Header
	HasSequence bool
	Sequence    SequenceNumber
	Terminal    bool
	HasEvent    bool
	Event       int32
	// Payload is the decompressed body; nil for frames without one.
	Payload []byte
	// JSON holds Payload decoded as an object when the frame declares JSON.
	JSON map[string]any
}

// DecodeResponse parses a server frame. Error-response frames are returned
// as a *RemoteError; unknown message types yield a Response with only the
// header fields populated.
func DecodeResponse(data []byte) (*Response, error) {
	h, err := DecodeHeader(data)
	if err != nil {
		return nil, err
	}
	c := cursor{b: data, off: h.Size()}
	resp := &Response{Header: h}

	if h.Flags.Has(FlagSequence) {
		v, err := c.int32("sequence")
		if err != nil {
			return nil, err
		}
		resp.HasSequence = true
		resp.Sequence = SequenceNumber(v)
	}
	if h.Flags.Has(FlagTerminal) || (resp.HasSequence && resp.Sequence.IsTerminal()) {
		resp.Terminal = true
	}
	if h.Flags.Has(FlagEvent) {
		v, err := c.int32("event")
		if err != nil {
			return nil, err
		}
		resp.HasEvent = true
		resp.Event = v
	}

	switch h.MessageType {
	case MessageFullServerResponse:
		body, err := c.payload()
		if err != nil {
			return nil, err
		}
		if err := resp.decodeBody(body); err != nil {
			return nil, err
		}
		return resp, nil
	case MessageServerError:
		code, err := c.int32("error code")
		if err != nil {
			return nil, err
		}
		body, err := c.payload()
		if err != nil {
			return nil, err
		}
		remote := &RemoteError{Code: code}
		if raw, err := unpack(h.Compression, body); err == nil {
			remote.Message = errorMessage(raw)
		}
		return nil, remote
	default:
		return resp, nil
	}
}

func (r *Response) decodeBody(body []byte) error {
	if len(body) == 0 {
		return nil
	}
	raw, err := unpack(r.Header.Compression, body)
	if err != nil {
		return malformed("payload: %v", err)
	}
	r.Payload = raw
	if r.Header.Serialization != SerializationJSON || len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return malformed("payload json: %v", err)
	}
	// Non-object JSON is kept in Payload only.
	if obj, ok := v.(map[string]any); ok {
		r.JSON = obj
	}
	return nil
}

func unpack(c Compression, body []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		return body, nil
	case CompressionGzip:
		return gzipx.Decompress(body)
	default:
		return nil, fmt.Errorf("unsupported compression %d", c)
	}
}

// errorMessage pulls a human-readable message from an error payload.
func errorMessage(raw []byte) string {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		for _, key := range []string{"message", "error", "msg"} {
			if s, ok := obj[key].(string); ok && s != "" {
				return s
			}
		}
	}
	return strings.TrimSpace(string(raw))
}

type cursor struct {
	b   []byte
	off int
}

func (c *cursor) take(n int, field string) ([]byte, error) {
	if n < 0 || c.off+n > len(c.b) {
		return nil, malformed("%s needs %d bytes at offset %d, frame has %d", field, n, c.off, len(c.b))
	}
	out := c.b[c.off : c.off+n]
	c.off += n
	return out, nil
}

func (c *cursor) int32(field string) (int32, error) {
	b, err := c.take(4, field)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

func (c *cursor) payload() ([]byte, error) {
	b, err := c.take(4, "payload size")
	if err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(b)
	if uint64(size) > uint64(len(c.b)-c.off) {
		return nil, malformed("payload declares %d bytes, %d remain", size, len(c.b)-c.off)
	}
	return c.take(int(size), "payload")
}
