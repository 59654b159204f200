package protocol

import "fmt"

const (
	Version         uint8 = 0b0001
	HeaderSizeWords uint8 = 0b0001
	wordSize              = 4
	fixedHeaderSize       = 4
)

// MessageType selects which trailing fields a frame carries.
type MessageType uint8

const (
	MessageFullClientRequest  MessageType = 0b0001
	MessageAudioOnlyRequest   MessageType = 0b0010
	MessageFullServerResponse MessageType = 0b1001
	MessageServerError        MessageType = 0b1111
)

func (m MessageType) String() string {
	switch m {
	case MessageFullClientRequest:
		return "full_client_request"
	case MessageAudioOnlyRequest:
		return "audio_only_request"
	case MessageFullServerResponse:
		return "full_server_response"
	case MessageServerError:
		return "server_error_response"
	default:
		return fmt.Sprintf("message_type(%d)", uint8(m))
	}
}

// Flags are independent bits; a frame may carry a sequence number and be
// terminal at the same time.
type Flags uint8

const (
	FlagSequence Flags = 0b0001
	FlagTerminal Flags = 0b0010
	FlagEvent    Flags = 0b0100
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

type Serialization uint8

const (
	SerializationNone Serialization = 0b0000
	SerializationJSON Serialization = 0b0001
)

type Compression uint8

const (
	CompressionNone Compression = 0b0000
	CompressionGzip Compression = 0b0001
)

// Header is the decoded fixed frame header.
type Header struct {
	Version         uint8
	HeaderSizeWords uint8
	MessageType     MessageType
	Flags           Flags
	Serialization   Serialization
	Compression     Compression
}

// Size is the number of bytes to skip before the first optional field.
func (h Header) Size() int { return int(h.HeaderSizeWords) * wordSize }

// EncodeHeader builds the 4-byte header used by every client frame.
func EncodeHeader(messageType MessageType, flags Flags) [4]byte {
	return [4]byte{
		Version<<4 | HeaderSizeWords,
		uint8(messageType)<<4 | uint8(flags)&0x0f,
		uint8(SerializationJSON)<<4 | uint8(CompressionGzip),
		0,
	}
}

// DecodeHeader reads the fixed header fields. It validates that the
// declared header size fits in data.
func DecodeHeader(data []byte) (Header, error) {
	if len(data) < fixedHeaderSize {
		return Header{}, malformed("frame is %d bytes, header needs %d", len(data), fixedHeaderSize)
	}
	h := Header{
		Version:         data[0] >> 4,
		HeaderSizeWords: data[0] & 0x0f,
		MessageType:     MessageType(data[1] >> 4),
		Flags:           Flags(data[1] & 0x0f),
		Serialization:   Serialization(data[2] >> 4),
		Compression:     Compression(data[2] & 0x0f),
	}
	if h.HeaderSizeWords == 0 {
		return Header{}, malformed("header size is zero words")
	}
	if h.Size() > len(data) {
		return Header{}, malformed("header declares %d bytes, frame has %d", h.Size(), len(data))
	}
	return h, nil
}
