package protocol

import (
	"math/rand"
	"testing"
)

// crc16Table is a table-driven reference implementation used to cross-check
// the bit-by-bit production code.
var crc16Table = func() [256]uint16 {
	var table [256]uint16
	for i := 0; i < 256; i++ {
		crc := uint16(i)
		for j := 0; j < 8; j++ {
			if crc&0x0001 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
		table[i] = crc
	}
	return table
}()

func crc16Reference(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc = (crc >> 8) ^ crc16Table[byte(crc)^b]
	}
	return crc
}

func TestCRC16KnownVectors(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{
			name:     "empty payload leaves seed unchanged",
			data:     []byte{},
			expected: 0xFFFF,
		},
		{
			name:     "nil payload",
			data:     nil,
			expected: 0xFFFF,
		},
		{
			name:     "single zero byte",
			data:     []byte{0x00},
			expected: 0x40BF,
		},
		{
			name:     "check string 123456789",
			data:     []byte("123456789"),
			expected: 0x4B37,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CRC16(tt.data)
			if got != tt.expected {
				t.Errorf("CRC16(%v) = 0x%04X, expected 0x%04X", tt.data, got, tt.expected)
			}
		})
	}
}

func TestCRC16MatchesTableReference(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for _, size := range []int{1, 2, 17, 160, 512, 1006} {
		data := make([]byte, size)
		rng.Read(data)

		bitwise := CRC16(data)
		table := crc16Reference(data)
		if bitwise != table {
			t.Errorf("size %d: bit-by-bit CRC 0x%04X != table reference 0x%04X", size, bitwise, table)
		}
	}
}

func TestCRC16Deterministic(t *testing.T) {
	data := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x7F, 0x80}

	first := CRC16(data)
	for i := 0; i < 10; i++ {
		if got := CRC16(data); got != first {
			t.Fatalf("CRC16 not deterministic: run %d got 0x%04X, expected 0x%04X", i, got, first)
		}
	}
}

func TestCRC16DetectsSingleBitFlips(t *testing.T) {
	data := make([]byte, 64)
	for i := range data {
		data[i] = byte(i * 7)
	}
	original := CRC16(data)

	for i := range data {
		for bit := 0; bit < 8; bit++ {
			data[i] ^= 1 << bit
			if CRC16(data) == original {
				t.Errorf("single bit flip at byte %d bit %d not detected", i, bit)
			}
			data[i] ^= 1 << bit
		}
	}
}

func TestSaturatingSum(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{
			name:     "empty",
			data:     []byte{},
			expected: 0,
		},
		{
			name:     "positive samples",
			data:     []byte{0x01, 0x00, 0x02, 0x00}, // 1 + 2
			expected: 3,
		},
		{
			name:     "negative sample uses magnitude",
			data:     []byte{0xFF, 0xFF, 0x05, 0x00}, // |-1| + 5
			expected: 6,
		},
		{
			name:     "wraps modulo 65536",
			data:     []byte{0xFF, 0x7F, 0xFF, 0x7F, 0x04, 0x00}, // 32767*2 + 4
			expected: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SaturatingSum(tt.data)
			if got != tt.expected {
				t.Errorf("SaturatingSum(%v) = %d, expected %d", tt.data, got, tt.expected)
			}
		})
	}
}
