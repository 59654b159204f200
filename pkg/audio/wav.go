package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrMalformedAudio is returned for input that is not a usable PCM WAV file.
var ErrMalformedAudio = errors.New("malformed audio container")

const wavFormatPCM = 1

// LoadWAV decodes a 16-bit PCM WAV stream into interleaved little-endian
// sample bytes.
func LoadWAV(r io.ReadSeeker) ([]byte, Format, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, Format{}, fmt.Errorf("%w: not a RIFF/WAVE file", ErrMalformedAudio)
	}
	if d.WavAudioFormat != wavFormatPCM {
		return nil, Format{}, fmt.Errorf("%w: audio format %d is not PCM", ErrMalformedAudio, d.WavAudioFormat)
	}
	if d.BitDepth != 16 {
		return nil, Format{}, fmt.Errorf("%w: %d-bit samples, want 16", ErrMalformedAudio, d.BitDepth)
	}
	f := Format{
		SampleRate:    int(d.SampleRate),
		BitsPerSample: int(d.BitDepth),
		Channels:      int(d.NumChans),
	}
	if err := f.Validate(); err != nil {
		return nil, Format{}, fmt.Errorf("%w: %v", ErrMalformedAudio, err)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, Format{}, fmt.Errorf("%w: %v", ErrMalformedAudio, err)
	}
	pcm := make([]byte, 0, len(buf.Data)*2)
	for _, v := range buf.Data {
		pcm = binary.LittleEndian.AppendUint16(pcm, uint16(int16(v)))
	}
	return pcm, f, nil
}

// LoadWAVFile opens path and decodes it with LoadWAV.
func LoadWAVFile(path string) ([]byte, Format, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, Format{}, err
	}
	defer fh.Close()
	return LoadWAV(fh)
}

// EncodeWAV writes 16-bit little-endian PCM as a WAV stream.
func EncodeWAV(w io.WriteSeeker, pcm []byte, f Format) error {
	if f.BitsPerSample != 16 {
		return fmt.Errorf("%w: only 16-bit output is supported", ErrInvalidFormat)
	}
	if err := f.Validate(); err != nil {
		return err
	}
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
	}
	enc := wav.NewEncoder(w, f.SampleRate, f.BitsPerSample, f.Channels, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
		Data:           samples,
		SourceBitDepth: f.BitsPerSample,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	return enc.Close()
}

// WriteWAVFile writes pcm to path as a WAV file.
func WriteWAVFile(path string, pcm []byte, f Format) error {
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := EncodeWAV(fh, pcm, f); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}
