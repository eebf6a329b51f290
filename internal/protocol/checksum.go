package protocol

// crc16Init is the CRC-16 seed. The reflected polynomial 0xA001 with this
// seed matches what the original firmware and collector both compute.
const (
	crc16Init = 0xFFFF
	crc16Poly = 0xA001
)

// CRC16 computes the CRC-16 (poly 0xA001, reflected, seed 0xFFFF) over data,
// bit by bit. An empty input returns the seed unchanged.
func CRC16(data []byte) uint16 {
	crc := uint16(crc16Init)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&0x0001 != 0 {
				crc = (crc >> 1) ^ crc16Poly
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// SaturatingSum is the legacy integrity code: the sum of absolute sample
// magnitudes modulo 65536 over the payload's little-endian int16 samples.
// It only detects gross corruption and is kept for interoperability with
// older firmware; CRC16 is the canonical code.
func SaturatingSum(data []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(data); i += 2 {
		s := int32(int16(uint16(data[i]) | uint16(data[i+1])<<8))
		if s < 0 {
			s = -s
		}
		sum += uint32(s)
	}
	return uint16(sum)
}
