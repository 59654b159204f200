package asr

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/harunnryd/asrstream/pkg/audio"
	"github.com/harunnryd/asrstream/pkg/protocol"
)

// RequestOptions are the recognition toggles sent in the configuration frame.
type RequestOptions struct {
	ModelName         string `json:"model_name" mapstructure:"model_name"`
	EnableITN         bool   `json:"enable_itn" mapstructure:"enable_itn"`
	EnablePunctuation bool   `json:"enable_punc" mapstructure:"enable_punc"`
	EnableDDC         bool   `json:"enable_ddc" mapstructure:"enable_ddc"`
	ShowUtterances    bool   `json:"show_utterances" mapstructure:"show_utterances"`
	ResultType        string `json:"result_type,omitempty" mapstructure:"result_type"`
	Language          string `json:"language,omitempty" mapstructure:"language"`
}

// DefaultRequestOptions mirrors what the hosted service expects for
// single-utterance dictation.
func DefaultRequestOptions() RequestOptions {
	return RequestOptions{
		ModelName:         "bigmodel",
		EnableITN:         true,
		EnablePunctuation: true,
		EnableDDC:         true,
		ShowUtterances:    false,
		ResultType:        "full",
	}
}

type UserInfo struct {
	UID string `json:"uid" mapstructure:"uid"`
}

type audioParams struct {
	Format  string `json:"format"`
	Codec   string `json:"codec"`
	Rate    int    `json:"rate"`
	Bits    int    `json:"bits"`
	Channel int    `json:"channel"`
}

type requestParams struct {
	RequestOptions
	RequestID string `json:"reqid"`
}

type configPayload struct {
	User    UserInfo      `json:"user"`
	Audio   audioParams   `json:"audio"`
	Request requestParams `json:"request"`
}

// Builder produces the outbound frames of one session in order. It owns the
// sequence counter and is not safe for concurrent use.
type Builder struct {
	format    audio.Format
	options   RequestOptions
	user      UserInfo
	requestID string
	next      int32
}

func NewBuilder(format audio.Format, options RequestOptions, user UserInfo) *Builder {
	return &Builder{
		format:    format,
		options:   options,
		user:      user,
		requestID: uuid.NewString(),
		next:      1,
	}
}

// RequestID is the reqid carried in the configuration frame.
func (b *Builder) RequestID() string { return b.requestID }

// ConfigFrame encodes the configuration frame. It must be called first.
func (b *Builder) ConfigFrame() ([]byte, error) {
	if b.next != 1 {
		return nil, fmt.Errorf("config frame must be first, sequence is at %d", b.next)
	}
	payload, err := json.Marshal(configPayload{
		User: b.user,
		Audio: audioParams{
			Format:  "pcm",
			Codec:   "raw",
			Rate:    b.format.SampleRate,
			Bits:    b.format.BitsPerSample,
			Channel: b.format.Channels,
		},
		Request: requestParams{RequestOptions: b.options, RequestID: b.requestID},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal config payload: %w", err)
	}
	return b.frame(protocol.MessageFullClientRequest, protocol.Sequence(b.take()), payload)
}

// AudioFrame encodes one segment. The last segment carries the terminal
// sequence number.
func (b *Builder) AudioFrame(segment []byte, last bool) ([]byte, error) {
	if b.next == 1 {
		return nil, fmt.Errorf("audio frame before config frame")
	}
	seq := protocol.Sequence(b.take())
	if last {
		seq = protocol.Terminal(seq.Position())
	}
	return b.frame(protocol.MessageAudioOnlyRequest, seq, segment)
}

// Next reports the position the next frame will be assigned.
func (b *Builder) Next() int32 { return b.next }

func (b *Builder) take() int32 {
	n := b.next
	b.next++
	return n
}

func (b *Builder) frame(mt protocol.MessageType, seq protocol.SequenceNumber, payload []byte) ([]byte, error) {
	out, err := protocol.EncodeRequest(mt, seq, payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s seq %d: %w", mt, seq.Int32(), err)
	}
	return out, nil
}
