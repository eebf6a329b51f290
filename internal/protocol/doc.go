// Package protocol implements the audio datagram wire format: the packed
// 18-byte little-endian header, CRC-16 payload integrity, and the framer
// that splits capture frames into MTU-sized, sequenced packets.
package protocol
