package protocol

import (
	"fmt"
)

// Framer turns capture frames into wire-format datagrams. It owns the
// per-utterance sequence counter and the start/end flag placement: the
// sequence increments once per emitted packet (not once per capture frame),
// only the first packet after BeginUtterance carries the start flag, and
// only the last packet of a final frame carries the end flag.
type Framer struct {
	deviceID   uint16
	sampleRate uint16
	mtu        int

	seq          uint32
	pendingStart bool
}

// NewFramer creates a framer for one device. mtu is the largest datagram
// (header + payload) the framer may emit; it must leave room for at least
// one sample.
func NewFramer(deviceID, sampleRate uint16, mtu int) (*Framer, error) {
	if mtu < HeaderSize+BytesPerSample {
		return nil, fmt.Errorf("mtu %d too small: need at least %d", mtu, HeaderSize+BytesPerSample)
	}
	return &Framer{
		deviceID:   deviceID,
		sampleRate: sampleRate,
		mtu:        mtu,
	}, nil
}

// MaxSamplesPerPacket returns how many samples fit in one datagram.
func (f *Framer) MaxSamplesPerPacket() int {
	return (f.mtu - HeaderSize) / BytesPerSample
}

// BeginUtterance resets the sequence counter to 0 and arms the start flag
// for the next emitted packet.
func (f *Framer) BeginUtterance() {
	f.seq = 0
	f.pendingStart = true
}

// Sequence returns the next sequence number the framer will assign.
func (f *Framer) Sequence() uint32 {
	return f.seq
}

// Frame serializes one capture frame into one or more datagrams, splitting
// across consecutive sequence numbers when header+payload would exceed the
// MTU. final marks the terminating event of the utterance: its last packet
// carries the end flag. A final frame with no samples still emits a single
// zero-payload packet so the end of the utterance is signalled.
func (f *Framer) Frame(samples []int16, timestamp uint32, final bool) ([][]byte, error) {
	maxSamples := f.MaxSamplesPerPacket()

	chunks := (len(samples) + maxSamples - 1) / maxSamples
	if chunks == 0 {
		if !final {
			return nil, nil
		}
		chunks = 1 // dedicated end-of-utterance packet
	}

	packets := make([][]byte, 0, chunks)
	for i := 0; i < chunks; i++ {
		lo := i * maxSamples
		hi := lo + maxSamples
		if hi > len(samples) {
			hi = len(samples)
		}

		var flags uint8
		if f.pendingStart {
			flags |= FlagUtteranceStart
			f.pendingStart = false
		}
		if final && i == chunks-1 {
			flags |= FlagUtteranceEnd
		}

		pkt, err := MarshalPacket(Header{
			Sequence:   f.seq,
			Timestamp:  timestamp,
			DeviceID:   f.deviceID,
			SampleRate: f.sampleRate,
			Flags:      flags,
		}, samples[lo:hi])
		if err != nil {
			return nil, fmt.Errorf("marshal packet seq %d: %w", f.seq, err)
		}

		packets = append(packets, pkt)
		f.seq++
	}

	return packets, nil
}
