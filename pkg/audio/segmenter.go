package audio

// Segmenter hands out consecutive fixed-size slices of a PCM buffer. It is
// single-pass; a new session needs a new Segmenter.
type Segmenter struct {
	buf  []byte
	size int
	off  int
}

func NewSegmenter(pcm []byte, size int) *Segmenter {
	if size < 1 {
		size = 1
	}
	return &Segmenter{buf: pcm, size: size}
}

// Next returns the next segment. The last one may be shorter than the
// segment size. ok is false once the buffer is exhausted.
func (s *Segmenter) Next() (segment []byte, ok bool) {
	if s.off >= len(s.buf) {
		return nil, false
	}
	end := s.off + s.size
	if end > len(s.buf) {
		end = len(s.buf)
	}
	segment = s.buf[s.off:end]
	s.off = end
	return segment, true
}

// Count is the total number of segments the buffer yields.
func (s *Segmenter) Count() int {
	return (len(s.buf) + s.size - 1) / s.size
}

// Remaining is the number of segments Next has not returned yet.
func (s *Segmenter) Remaining() int {
	left := len(s.buf) - s.off
	if left <= 0 {
		return 0
	}
	return (left + s.size - 1) / s.size
}

// Split cuts pcm into segments of size bytes.
func Split(pcm []byte, size int) [][]byte {
	s := NewSegmenter(pcm, size)
	out := make([][]byte, 0, s.Count())
	for seg, ok := s.Next(); ok; seg, ok = s.Next() {
		out = append(out, seg)
	}
	return out
}
