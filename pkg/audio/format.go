package audio

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidFormat = errors.New("invalid audio format")

// Format describes interleaved linear PCM.
type Format struct {
	SampleRate    int
	BitsPerSample int
	Channels      int
}

// DefaultFormat is what the recognition service expects: mono 16 kHz 16-bit.
var DefaultFormat = Format{SampleRate: 16000, BitsPerSample: 16, Channels: 1}

func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrInvalidFormat, f.SampleRate)
	}
	switch f.BitsPerSample {
	case 8, 16, 24, 32:
	default:
		return fmt.Errorf("%w: bits per sample %d", ErrInvalidFormat, f.BitsPerSample)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("%w: channels %d", ErrInvalidFormat, f.Channels)
	}
	return nil
}

// BytesPerSecond is the byte rate of the stream.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * (f.BitsPerSample / 8) * f.Channels
}

// Duration reports how long n bytes of f play for.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bps)
}

// SegmentSize is the byte length of one segment of the given duration.
// It never returns less than 1.
func SegmentSize(f Format, duration time.Duration) int {
	size := int(int64(f.BytesPerSecond()) * duration.Milliseconds() / 1000)
	if size < 1 {
		return 1
	}
	return size
}
