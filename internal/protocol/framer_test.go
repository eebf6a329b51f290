package protocol

import (
	"testing"
)

func newTestFramer(t *testing.T, mtu int) *Framer {
	t.Helper()
	f, err := NewFramer(1, 16000, mtu)
	if err != nil {
		t.Fatalf("NewFramer failed: %v", err)
	}
	return f
}

func TestNewFramerRejectsTinyMTU(t *testing.T) {
	if _, err := NewFramer(1, 16000, HeaderSize); err == nil {
		t.Error("expected error for MTU with no payload room")
	}
	if _, err := NewFramer(1, 16000, HeaderSize+BytesPerSample); err != nil {
		t.Errorf("MTU with room for one sample rejected: %v", err)
	}
}

func TestFrameRespectsMTU(t *testing.T) {
	const mtu = 100 // 41 samples per packet
	f := newTestFramer(t, mtu)
	f.BeginUtterance()

	// Every sample count from 1 up to a full capture buffer must frame into
	// packets that never exceed the MTU.
	for count := 1; count <= 512; count++ {
		samples := make([]int16, count)
		packets, err := f.Frame(samples, 0, false)
		if err != nil {
			t.Fatalf("Frame(%d samples) failed: %v", count, err)
		}
		for i, pkt := range packets {
			if len(pkt) > mtu {
				t.Fatalf("count %d: packet %d size %d exceeds MTU %d", count, i, len(pkt), mtu)
			}
		}

		total := 0
		for _, pkt := range packets {
			parsed, err := ParsePacket(pkt)
			if err != nil {
				t.Fatalf("count %d: parse failed: %v", count, err)
			}
			total += len(parsed.Samples)
		}
		if total != count {
			t.Fatalf("count %d: %d samples framed", count, total)
		}
	}
}

func TestFrameSplitsWithContiguousSequences(t *testing.T) {
	f := newTestFramer(t, HeaderSize+20*BytesPerSample) // 20 samples per packet
	f.BeginUtterance()

	samples := make([]int16, 65) // 4 packets: 20+20+20+5
	for i := range samples {
		samples[i] = int16(i)
	}

	packets, err := f.Frame(samples, 500, false)
	if err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
	if len(packets) != 4 {
		t.Fatalf("got %d packets, expected 4", len(packets))
	}

	var reassembled []int16
	for i, data := range packets {
		pkt, err := ParsePacket(data)
		if err != nil {
			t.Fatalf("packet %d parse failed: %v", i, err)
		}
		if pkt.Header.Sequence != uint32(i) {
			t.Errorf("packet %d sequence = %d", i, pkt.Header.Sequence)
		}
		if pkt.Header.Timestamp != 500 {
			t.Errorf("packet %d timestamp = %d, expected 500", i, pkt.Header.Timestamp)
		}
		reassembled = append(reassembled, pkt.Samples...)
	}

	for i := range samples {
		if reassembled[i] != samples[i] {
			t.Fatalf("sample %d = %d after reassembly, expected %d", i, reassembled[i], samples[i])
		}
	}

	// Next frame continues the sequence with no gap.
	more, err := f.Frame(make([]int16, 5), 600, false)
	if err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
	pkt, err := ParsePacket(more[0])
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if pkt.Header.Sequence != 4 {
		t.Errorf("continuation sequence = %d, expected 4", pkt.Header.Sequence)
	}
}

func TestFrameFlagPlacement(t *testing.T) {
	f := newTestFramer(t, HeaderSize+10*BytesPerSample)
	f.BeginUtterance()

	// First frame splits into 3 packets: start flag only on the first.
	packets, err := f.Frame(make([]int16, 25), 0, false)
	if err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
	for i, data := range packets {
		pkt, _ := ParsePacket(data)
		wantStart := i == 0
		if pkt.Header.IsStart() != wantStart {
			t.Errorf("packet %d IsStart = %v, expected %v", i, pkt.Header.IsStart(), wantStart)
		}
		if pkt.Header.IsEnd() {
			t.Errorf("packet %d unexpectedly flagged end", i)
		}
	}

	// Middle frame carries neither flag.
	packets, _ = f.Frame(make([]int16, 5), 0, false)
	pkt, _ := ParsePacket(packets[0])
	if pkt.Header.Flags != 0 {
		t.Errorf("mid-utterance flags = 0x%02X, expected 0", pkt.Header.Flags)
	}

	// Final frame splits into 2 packets: end flag only on the last.
	packets, err = f.Frame(make([]int16, 15), 0, true)
	if err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
	if len(packets) != 2 {
		t.Fatalf("got %d packets, expected 2", len(packets))
	}
	first, _ := ParsePacket(packets[0])
	last, _ := ParsePacket(packets[1])
	if first.Header.IsEnd() {
		t.Error("non-terminal packet of final frame flagged end")
	}
	if !last.Header.IsEnd() {
		t.Error("last packet of final frame not flagged end")
	}
}

func TestFrameEmptyFinalEmitsEndPacket(t *testing.T) {
	f := newTestFramer(t, 1024)
	f.BeginUtterance()

	if _, err := f.Frame(make([]int16, 100), 0, false); err != nil {
		t.Fatalf("Frame failed: %v", err)
	}

	packets, err := f.Frame(nil, 900, true)
	if err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
	if len(packets) != 1 {
		t.Fatalf("got %d packets, expected 1 dedicated end packet", len(packets))
	}

	pkt, err := ParsePacket(packets[0])
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !pkt.Header.IsEnd() {
		t.Error("dedicated final packet not flagged end")
	}
	if len(pkt.Samples) != 0 {
		t.Errorf("dedicated final packet carries %d samples", len(pkt.Samples))
	}
	if !pkt.VerifyChecksum() {
		t.Error("empty payload checksum mismatch")
	}
}

func TestFrameEmptyNonFinalEmitsNothing(t *testing.T) {
	f := newTestFramer(t, 1024)
	f.BeginUtterance()

	packets, err := f.Frame(nil, 0, false)
	if err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
	if len(packets) != 0 {
		t.Errorf("got %d packets for empty non-final frame, expected 0", len(packets))
	}
}

func TestBeginUtteranceResetsSequence(t *testing.T) {
	f := newTestFramer(t, 1024)

	f.BeginUtterance()
	if _, err := f.Frame(make([]int16, 10), 0, false); err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
	if _, err := f.Frame(make([]int16, 10), 0, true); err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
	if f.Sequence() != 2 {
		t.Fatalf("sequence after utterance = %d, expected 2", f.Sequence())
	}

	f.BeginUtterance()
	packets, err := f.Frame(make([]int16, 10), 0, false)
	if err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
	pkt, _ := ParsePacket(packets[0])
	if pkt.Header.Sequence != 0 {
		t.Errorf("first packet of new utterance sequence = %d, expected 0", pkt.Header.Sequence)
	}
	if !pkt.Header.IsStart() {
		t.Error("first packet of new utterance not flagged start")
	}
}
