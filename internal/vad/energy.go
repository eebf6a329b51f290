package vad

// MeanAbs computes the mean absolute sample magnitude of a frame. The
// accumulator is 64-bit so a full buffer of -32768 samples cannot overflow.
// An empty frame scores zero.
func MeanAbs(samples []int16) uint32 {
	if len(samples) == 0 {
		return 0
	}

	var sum uint64
	for _, s := range samples {
		v := int32(s)
		if v < 0 {
			v = -v
		}
		sum += uint64(v)
	}
	return uint32(sum / uint64(len(samples)))
}
