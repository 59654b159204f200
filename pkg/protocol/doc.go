// Package protocol implements the binary frame codec spoken with the
// streaming recognition service.
//
// Every frame starts with a 4-byte header:
//
//	byte0: version(4) | header size in 4-byte words(4)
//	byte1: message type(4) | flags(4)
//	byte2: serialization(4) | compression(4)
//	byte3: reserved
//
// Client requests follow the header with a big-endian sequence number, a
// big-endian payload length and the gzip-compressed payload. Server frames
// carry optional sequence and event fields selected by the flag bits,
// followed by fields that depend on the message type.
package protocol
