package gzipx

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

const (
	minInflateBuffer = 1 << 10
	// maxInflateBuffer bounds the growth loop so a hostile body cannot
	// exhaust memory.
	maxInflateBuffer = 64 << 20
)

var errShortBuffer = errors.New("gzipx: inflate buffer too small")

// inflate decodes a raw DEFLATE body. The output size is unknown up front,
// so it starts from a guess and doubles the buffer on every short attempt.
func inflate(body []byte) ([]byte, error) {
	size := 4 * len(body)
	if size < minInflateBuffer {
		size = minInflateBuffer
	}
	for {
		out, err := inflateInto(body, size)
		if !errors.Is(err, errShortBuffer) {
			return out, err
		}
		if size >= maxInflateBuffer {
			return nil, fmt.Errorf("%w: inflated size exceeds %d bytes", ErrCorrupt, maxInflateBuffer)
		}
		size *= 2
	}
}

func inflateInto(body []byte, capacity int) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(body))
	defer r.Close()

	buf := make([]byte, capacity)
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err == io.EOF {
			return buf[:n], nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: inflate: %v", ErrCorrupt, err)
		}
	}

	// Buffer is full; the stream must end here or the buffer was too small.
	var probe [1]byte
	for {
		m, err := r.Read(probe[:])
		if m > 0 {
			return nil, errShortBuffer
		}
		if err == io.EOF {
			return buf, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: inflate: %v", ErrCorrupt, err)
		}
	}
}
