package gzipx

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/klauspost/compress/flate"
)

const (
	Magic1 byte = 0x1f
	Magic2 byte = 0x8b

	// MethodDeflate is the only compression method defined by RFC 1952.
	MethodDeflate byte = 0x08
	// OSUnknown is written into the OS byte of every container we emit.
	OSUnknown byte = 0xff

	// CRCPolynomial is the reflected IEEE polynomial required by gzip.
	CRCPolynomial uint32 = 0xedb88320

	HeaderSize  = 10
	TrailerSize = 8
	// MinSize is the smallest possible container: header plus trailer.
	MinSize = HeaderSize + TrailerSize

	flagText    byte = 0x01
	flagHCRC    byte = 0x02
	flagExtra   byte = 0x04
	flagName    byte = 0x08
	flagComment byte = 0x10
)

// ErrCorrupt is returned for containers that cannot be decoded.
var ErrCorrupt = errors.New("gzipx: corrupt container")

var crcTable = crc32.MakeTable(CRCPolynomial)

// Checksum returns the gzip CRC32 of b: all-ones initial value, reflected
// table, inverted result.
func Checksum(b []byte) uint32 {
	return crc32.Checksum(b, crcTable)
}

// Compress wraps raw in a gzip container.
func Compress(raw []byte) ([]byte, error) {
	var body bytes.Buffer
	fw, err := flate.NewWriter(&body, flate.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("gzipx: init deflate: %w", err)
	}
	if _, err := fw.Write(raw); err != nil {
		return nil, fmt.Errorf("gzipx: deflate: %w", err)
	}
	if err := fw.Close(); err != nil {
		return nil, fmt.Errorf("gzipx: deflate close: %w", err)
	}

	out := make([]byte, 0, MinSize+body.Len())
	out = append(out,
		Magic1, Magic2, MethodDeflate,
		0,          // flags
		0, 0, 0, 0, // mtime
		0, // extra flags
		OSUnknown,
	)
	out = append(out, body.Bytes()...)
	out = binary.LittleEndian.AppendUint32(out, Checksum(raw))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(raw)))
	return out, nil
}

// Decompress unwraps a gzip container produced by Compress or by any
// standard gzip encoder, skipping the optional header sections.
func Decompress(data []byte) ([]byte, error) {
	if len(data) < MinSize {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrCorrupt, len(data), MinSize)
	}
	if data[0] != Magic1 || data[1] != Magic2 {
		return nil, fmt.Errorf("%w: bad magic %#02x %#02x", ErrCorrupt, data[0], data[1])
	}
	if data[2] != MethodDeflate {
		return nil, fmt.Errorf("%w: unsupported method %d", ErrCorrupt, data[2])
	}

	end := len(data) - TrailerSize
	off, err := bodyOffset(data[:end], data[3])
	if err != nil {
		return nil, err
	}

	raw, err := inflate(data[off:end])
	if err != nil {
		return nil, err
	}

	wantCRC := binary.LittleEndian.Uint32(data[end:])
	wantSize := binary.LittleEndian.Uint32(data[end+4:])
	if got := Checksum(raw); got != wantCRC {
		return nil, fmt.Errorf("%w: crc mismatch %08x != %08x", ErrCorrupt, got, wantCRC)
	}
	if uint32(len(raw)) != wantSize {
		return nil, fmt.Errorf("%w: size mismatch %d != %d", ErrCorrupt, uint32(len(raw)), wantSize)
	}
	return raw, nil
}

// bodyOffset walks the variable part of the header and returns where the
// DEFLATE body starts. head excludes the trailer.
func bodyOffset(head []byte, flags byte) (int, error) {
	off := HeaderSize
	if flags&flagExtra != 0 {
		if off+2 > len(head) {
			return 0, fmt.Errorf("%w: truncated extra length", ErrCorrupt)
		}
		xlen := int(binary.LittleEndian.Uint16(head[off:]))
		off += 2 + xlen
		if off > len(head) {
			return 0, fmt.Errorf("%w: truncated extra field", ErrCorrupt)
		}
	}
	if flags&flagName != 0 {
		n, err := skipZeroTerminated(head, off, "file name")
		if err != nil {
			return 0, err
		}
		off = n
	}
	if flags&flagComment != 0 {
		n, err := skipZeroTerminated(head, off, "comment")
		if err != nil {
			return 0, err
		}
		off = n
	}
	if flags&flagHCRC != 0 {
		off += 2
		if off > len(head) {
			return 0, fmt.Errorf("%w: truncated header crc", ErrCorrupt)
		}
	}
	return off, nil
}

func skipZeroTerminated(b []byte, off int, what string) (int, error) {
	i := bytes.IndexByte(b[off:], 0)
	if i < 0 {
		return 0, fmt.Errorf("%w: unterminated %s", ErrCorrupt, what)
	}
	return off + i + 1, nil
}
