package protocol

import (
	"encoding/binary"
	"fmt"
)

// Protocol constants
const (
	// HeaderSize is the packed header size in bytes: 4+4+2+2+2+2+1+1.
	HeaderSize = 18

	// Flag bits
	FlagUtteranceStart = 0x01 // first packet of an utterance
	FlagUtteranceEnd   = 0x02 // final packet of an utterance

	// BytesPerSample is the payload sample width (signed 16-bit PCM).
	BytesPerSample = 2
)

// Header represents the 18-byte packet header.
// Layout (little-endian, no implicit padding):
// [Sequence:4][Timestamp:4][DeviceID:2][SampleRate:2][SampleCount:2][Checksum:2][Flags:1][Reserved:1]
type Header struct {
	Sequence    uint32 // monotonic per-utterance packet counter, starts at 0
	Timestamp   uint32 // device uptime in milliseconds at capture time
	DeviceID    uint16 // stable per-node identity
	SampleRate  uint16 // declared PCM sample rate
	SampleCount uint16 // number of 16-bit samples in the payload
	Checksum    uint16 // CRC-16 over the payload bytes only
	Flags       uint8  // FlagUtteranceStart | FlagUtteranceEnd
}

// Packet is a fully parsed audio datagram.
type Packet struct {
	Header  Header
	Samples []int16 // little-endian signed 16-bit PCM, mono
}

// MarshalPacket serializes a header and payload into one wire-format
// datagram. The checksum field of the header is computed here, over the
// payload bytes only; the reserved byte is always zero.
func MarshalPacket(h Header, samples []int16) ([]byte, error) {
	if len(samples) > 0xFFFF {
		return nil, fmt.Errorf("sample count %d exceeds field range", len(samples))
	}
	h.SampleCount = uint16(len(samples))

	buf := make([]byte, HeaderSize+len(samples)*BytesPerSample)
	payload := buf[HeaderSize:]
	for i, s := range samples {
		binary.LittleEndian.PutUint16(payload[i*BytesPerSample:], uint16(s))
	}
	h.Checksum = CRC16(payload)

	binary.LittleEndian.PutUint32(buf[0:], h.Sequence)
	binary.LittleEndian.PutUint32(buf[4:], h.Timestamp)
	binary.LittleEndian.PutUint16(buf[8:], h.DeviceID)
	binary.LittleEndian.PutUint16(buf[10:], h.SampleRate)
	binary.LittleEndian.PutUint16(buf[12:], h.SampleCount)
	binary.LittleEndian.PutUint16(buf[14:], h.Checksum)
	buf[16] = h.Flags
	buf[17] = 0 // reserved

	return buf, nil
}

// ParseHeader parses the 18-byte packet header.
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("header too short: expected %d bytes, got %d", HeaderSize, len(data))
	}

	header := &Header{
		Sequence:    binary.LittleEndian.Uint32(data[0:4]),
		Timestamp:   binary.LittleEndian.Uint32(data[4:8]),
		DeviceID:    binary.LittleEndian.Uint16(data[8:10]),
		SampleRate:  binary.LittleEndian.Uint16(data[10:12]),
		SampleCount: binary.LittleEndian.Uint16(data[12:14]),
		Checksum:    binary.LittleEndian.Uint16(data[14:16]),
		Flags:       data[16],
	}

	return header, nil
}

// ParsePacket parses a complete datagram (header + payload). It validates
// the declared sample count against the actual payload length but does NOT
// verify the checksum; call VerifyChecksum so a mismatch can be accounted as
// a lost unit rather than a parse failure.
func ParsePacket(data []byte) (*Packet, error) {
	header, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}

	payload := data[HeaderSize:]
	expected := int(header.SampleCount) * BytesPerSample
	if len(payload) != expected {
		return nil, fmt.Errorf("payload length mismatch: header declares %d samples (%d bytes), got %d bytes",
			header.SampleCount, expected, len(payload))
	}

	samples := make([]int16, header.SampleCount)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(payload[i*BytesPerSample:]))
	}

	return &Packet{Header: *header, Samples: samples}, nil
}

// VerifyChecksum recomputes the CRC-16 over the packet's payload bytes and
// reports whether it matches the header field.
func (p *Packet) VerifyChecksum() bool {
	payload := make([]byte, len(p.Samples)*BytesPerSample)
	for i, s := range p.Samples {
		binary.LittleEndian.PutUint16(payload[i*BytesPerSample:], uint16(s))
	}
	return CRC16(payload) == p.Header.Checksum
}

// IsStart reports whether this packet opens an utterance.
func (h *Header) IsStart() bool { return h.Flags&FlagUtteranceStart != 0 }

// IsEnd reports whether this packet closes an utterance.
func (h *Header) IsEnd() bool { return h.Flags&FlagUtteranceEnd != 0 }

// String returns a human-readable representation of the header.
func (h *Header) String() string {
	return fmt.Sprintf("Header{Seq:%d, Ts:%dms, Device:%d, Rate:%d, Samples:%d, CRC:0x%04X, Flags:0x%02X}",
		h.Sequence, h.Timestamp, h.DeviceID, h.SampleRate, h.SampleCount, h.Checksum, h.Flags)
}
