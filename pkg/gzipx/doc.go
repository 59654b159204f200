// Package gzipx builds and parses RFC 1952 gzip containers around a raw
// DEFLATE stream. The remote recognition service expects standard gzip
// members, while the compressor only emits headerless DEFLATE, so the
// 10-byte header and the CRC32/ISIZE trailer are synthesized here.
package gzipx
