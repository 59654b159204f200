// Package audio prepares raw PCM for streaming: it sizes and cuts
// fixed-duration segments and decodes WAV input into interleaved
// little-endian PCM bytes.
package audio
