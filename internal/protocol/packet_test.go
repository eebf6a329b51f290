package protocol

import (
	"encoding/binary"
	"strings"
	"testing"
)

func TestMarshalPacketLayout(t *testing.T) {
	samples := []int16{100, -200, 32767, -32768}

	data, err := MarshalPacket(Header{
		Sequence:   7,
		Timestamp:  123456,
		DeviceID:   1,
		SampleRate: 16000,
		Flags:      FlagUtteranceStart,
	}, samples)
	if err != nil {
		t.Fatalf("MarshalPacket failed: %v", err)
	}

	if len(data) != HeaderSize+len(samples)*BytesPerSample {
		t.Fatalf("packet size = %d, expected %d", len(data), HeaderSize+len(samples)*BytesPerSample)
	}

	if seq := binary.LittleEndian.Uint32(data[0:4]); seq != 7 {
		t.Errorf("sequence bytes = %d, expected 7", seq)
	}
	if ts := binary.LittleEndian.Uint32(data[4:8]); ts != 123456 {
		t.Errorf("timestamp bytes = %d, expected 123456", ts)
	}
	if id := binary.LittleEndian.Uint16(data[8:10]); id != 1 {
		t.Errorf("device id bytes = %d, expected 1", id)
	}
	if rate := binary.LittleEndian.Uint16(data[10:12]); rate != 16000 {
		t.Errorf("sample rate bytes = %d, expected 16000", rate)
	}
	if count := binary.LittleEndian.Uint16(data[12:14]); count != uint16(len(samples)) {
		t.Errorf("sample count bytes = %d, expected %d", count, len(samples))
	}
	if crc := binary.LittleEndian.Uint16(data[14:16]); crc != CRC16(data[HeaderSize:]) {
		t.Errorf("checksum bytes = 0x%04X, expected 0x%04X", crc, CRC16(data[HeaderSize:]))
	}
	if data[16] != FlagUtteranceStart {
		t.Errorf("flags byte = 0x%02X, expected 0x%02X", data[16], FlagUtteranceStart)
	}
	if data[17] != 0 {
		t.Errorf("reserved byte = 0x%02X, expected 0", data[17])
	}

	// Payload is little-endian PCM.
	if s := int16(binary.LittleEndian.Uint16(data[HeaderSize:])); s != 100 {
		t.Errorf("first payload sample = %d, expected 100", s)
	}
	if s := int16(binary.LittleEndian.Uint16(data[HeaderSize+6:])); s != -32768 {
		t.Errorf("last payload sample = %d, expected -32768", s)
	}
}

func TestPacketRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		header  Header
		samples []int16
	}{
		{
			name: "start packet with audio",
			header: Header{
				Sequence:   0,
				Timestamp:  1000,
				DeviceID:   1,
				SampleRate: 16000,
				Flags:      FlagUtteranceStart,
			},
			samples: []int16{0, 1, -1, 12345, -12345},
		},
		{
			name: "end packet with empty payload",
			header: Header{
				Sequence:   42,
				Timestamp:  99999,
				DeviceID:   2,
				SampleRate: 16000,
				Flags:      FlagUtteranceEnd,
			},
			samples: nil,
		},
		{
			name: "mid-utterance packet",
			header: Header{
				Sequence:   3,
				Timestamp:  2048,
				DeviceID:   2,
				SampleRate: 8000,
			},
			samples: []int16{-32768, 32767},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := MarshalPacket(tt.header, tt.samples)
			if err != nil {
				t.Fatalf("MarshalPacket failed: %v", err)
			}

			pkt, err := ParsePacket(data)
			if err != nil {
				t.Fatalf("ParsePacket failed: %v", err)
			}

			h := pkt.Header
			if h.Sequence != tt.header.Sequence || h.Timestamp != tt.header.Timestamp ||
				h.DeviceID != tt.header.DeviceID || h.SampleRate != tt.header.SampleRate ||
				h.Flags != tt.header.Flags {
				t.Errorf("header mismatch: got %+v, expected %+v", h, tt.header)
			}
			if int(h.SampleCount) != len(tt.samples) {
				t.Errorf("sample count = %d, expected %d", h.SampleCount, len(tt.samples))
			}
			if len(pkt.Samples) != len(tt.samples) {
				t.Fatalf("payload length = %d, expected %d", len(pkt.Samples), len(tt.samples))
			}
			for i := range tt.samples {
				if pkt.Samples[i] != tt.samples[i] {
					t.Errorf("sample %d = %d, expected %d", i, pkt.Samples[i], tt.samples[i])
				}
			}
			if !pkt.VerifyChecksum() {
				t.Error("recomputed checksum does not match header")
			}
		})
	}
}

func TestParsePacketErrors(t *testing.T) {
	valid, err := MarshalPacket(Header{DeviceID: 1, SampleRate: 16000}, []int16{1, 2, 3})
	if err != nil {
		t.Fatalf("MarshalPacket failed: %v", err)
	}

	tests := []struct {
		name     string
		data     []byte
		errorMsg string
	}{
		{
			name:     "empty data",
			data:     []byte{},
			errorMsg: "header too short",
		},
		{
			name:     "truncated header",
			data:     valid[:HeaderSize-1],
			errorMsg: "header too short",
		},
		{
			name:     "truncated payload",
			data:     valid[:len(valid)-2],
			errorMsg: "payload length mismatch",
		},
		{
			name:     "trailing garbage",
			data:     append(append([]byte{}, valid...), 0x00),
			errorMsg: "payload length mismatch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePacket(tt.data)
			if err == nil {
				t.Fatal("expected error but got none")
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("expected error containing %q, got %q", tt.errorMsg, err.Error())
			}
		})
	}
}

func TestVerifyChecksumDetectsCorruption(t *testing.T) {
	data, err := MarshalPacket(Header{DeviceID: 1, SampleRate: 16000}, []int16{500, -500, 1000})
	if err != nil {
		t.Fatalf("MarshalPacket failed: %v", err)
	}

	// Flip one payload bit.
	data[HeaderSize] ^= 0x01

	pkt, err := ParsePacket(data)
	if err != nil {
		t.Fatalf("ParsePacket failed: %v", err)
	}
	if pkt.VerifyChecksum() {
		t.Error("corrupted payload passed checksum verification")
	}
}

func TestHeaderFlagHelpers(t *testing.T) {
	h := Header{Flags: FlagUtteranceStart}
	if !h.IsStart() || h.IsEnd() {
		t.Errorf("flags 0x%02X: IsStart=%v IsEnd=%v", h.Flags, h.IsStart(), h.IsEnd())
	}

	h.Flags = FlagUtteranceStart | FlagUtteranceEnd
	if !h.IsStart() || !h.IsEnd() {
		t.Errorf("flags 0x%02X: IsStart=%v IsEnd=%v", h.Flags, h.IsStart(), h.IsEnd())
	}

	h.Flags = 0
	if h.IsStart() || h.IsEnd() {
		t.Errorf("flags 0x%02X: IsStart=%v IsEnd=%v", h.Flags, h.IsStart(), h.IsEnd())
	}
}
