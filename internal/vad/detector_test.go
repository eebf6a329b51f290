package vad

import (
	"testing"
)

func newTestDetector(t *testing.T, threshold uint32, voiceFrames, silenceFrames int) *Detector {
	t.Helper()
	d, err := NewDetector(Config{
		EnergyThreshold: threshold,
		MinVoiceFrames:  voiceFrames,
		SilenceFrames:   silenceFrames,
	})
	if err != nil {
		t.Fatalf("NewDetector failed: %v", err)
	}
	return d
}

func TestNewDetectorValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero threshold", Config{EnergyThreshold: 0, MinVoiceFrames: 3, SilenceFrames: 10}},
		{"zero voice frames", Config{EnergyThreshold: 800, MinVoiceFrames: 0, SilenceFrames: 10}},
		{"zero silence frames", Config{EnergyThreshold: 800, MinVoiceFrames: 3, SilenceFrames: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewDetector(tt.cfg); err == nil {
				t.Error("expected error but got none")
			}
		})
	}
}

func TestStartDebounceBoundary(t *testing.T) {
	const threshold = 800

	// Exactly MinVoiceFrames-1 voiced frames must NOT transition.
	d := newTestDetector(t, threshold, 3, 10)
	for i := 0; i < 2; i++ {
		dec := d.Observe(900, uint32(i*32))
		if dec.Transmit || dec.Start {
			t.Fatalf("frame %d: transmitted before debounce complete", i)
		}
	}
	if d.State() != StateIdle {
		t.Fatal("detector left idle after threshold-1 voiced frames")
	}

	// The frame that completes the debounce transitions and is transmitted.
	dec := d.Observe(900, 64)
	if !dec.Start || !dec.Transmit {
		t.Errorf("debounce-completing frame: Start=%v Transmit=%v", dec.Start, dec.Transmit)
	}
	if d.State() != StateTransmitting {
		t.Error("detector not transmitting after debounce")
	}
}

func TestVoiceRunResetBySilence(t *testing.T) {
	d := newTestDetector(t, 800, 3, 10)

	// Two voiced, one silent, two voiced: the silent frame breaks the run,
	// so no transition happens.
	for _, e := range []uint32{900, 900, 200, 900, 900} {
		dec := d.Observe(e, 0)
		if dec.Start {
			t.Fatal("transient noise triggered an utterance")
		}
	}
	if d.State() != StateIdle {
		t.Error("detector left idle state")
	}

	// A third consecutive voiced frame completes the debounce.
	if dec := d.Observe(900, 0); !dec.Start {
		t.Error("third consecutive voiced frame did not start utterance")
	}
}

func TestStopDebounceBoundary(t *testing.T) {
	d := newTestDetector(t, 800, 1, 5)
	d.Observe(900, 0) // enter transmitting

	// SilenceFrames-1 silent frames stay in the utterance, every frame
	// still transmitted.
	for i := 0; i < 4; i++ {
		dec := d.Observe(100, 0)
		if !dec.Transmit {
			t.Fatalf("silent frame %d inside utterance not transmitted", i)
		}
		if dec.End {
			t.Fatalf("utterance ended after %d silent frames", i+1)
		}
	}
	if d.State() != StateTransmitting {
		t.Fatal("detector left transmitting before silence debounce")
	}

	// The frame completing the debounce is transmitted and flagged final.
	dec := d.Observe(100, 0)
	if !dec.Transmit || !dec.End {
		t.Errorf("debounce-completing silent frame: Transmit=%v End=%v", dec.Transmit, dec.End)
	}
	if d.State() != StateIdle {
		t.Error("detector not idle after utterance end")
	}
}

func TestSilenceRunResetByVoice(t *testing.T) {
	d := newTestDetector(t, 800, 1, 3)
	d.Observe(900, 0)

	// Dips shorter than the silence debounce do not fragment the utterance.
	for _, e := range []uint32{100, 100, 900, 100, 100, 900} {
		dec := d.Observe(e, 0)
		if !dec.Transmit {
			t.Fatal("frame inside utterance not transmitted")
		}
		if dec.End {
			t.Fatal("brief dip ended the utterance")
		}
	}

	for i := 0; i < 2; i++ {
		if dec := d.Observe(100, 0); dec.End {
			t.Fatalf("utterance ended one frame early (silent frame %d)", i+1)
		}
	}
	if dec := d.Observe(100, 0); !dec.End {
		t.Error("third consecutive silent frame did not end utterance")
	}
}

// Scenario from the tuning defaults: threshold 800, 3 frames to start, 10 to
// stop, energies [900 x3, 200 x10]. One utterance; the debounce-completing
// voiced frame opens it, every following frame is transmitted, and the 10th
// silent frame closes it as the 11th transmitted frame.
func TestUtteranceScenario(t *testing.T) {
	d := newTestDetector(t, 800, 3, 10)

	energies := []uint32{900, 900, 900}
	for i := 0; i < 10; i++ {
		energies = append(energies, 200)
	}

	var transmitted, starts, ends int
	var startIndex, endIndex int
	for i, e := range energies {
		dec := d.Observe(e, uint32(i*32))
		if dec.Transmit {
			transmitted++
		}
		if dec.Start {
			starts++
			startIndex = transmitted
		}
		if dec.End {
			ends++
			endIndex = transmitted
		}
	}

	if starts != 1 || ends != 1 {
		t.Fatalf("starts=%d ends=%d, expected exactly one utterance", starts, ends)
	}
	if transmitted != 11 {
		t.Errorf("transmitted %d frames, expected 11 (debounce frame + 10 silent)", transmitted)
	}
	if startIndex != 1 {
		t.Errorf("utterance started at transmitted frame %d, expected 1", startIndex)
	}
	if endIndex != 11 {
		t.Errorf("utterance ended at transmitted frame %d, expected 11", endIndex)
	}
	if d.State() != StateIdle {
		t.Error("detector not idle after scenario")
	}

	observed, voiced, utterances := d.Stats()
	if observed != 13 || voiced != 3 || utterances != 1 {
		t.Errorf("stats observed=%d voiced=%d utterances=%d, expected 13/3/1", observed, voiced, utterances)
	}
}

func TestThresholdIsInclusive(t *testing.T) {
	d := newTestDetector(t, 800, 1, 1)

	if dec := d.Observe(799, 0); dec.Voiced {
		t.Error("energy below threshold classified voiced")
	}
	if dec := d.Observe(800, 0); !dec.Voiced {
		t.Error("energy at threshold classified silent")
	}
}

func TestLastVoiceTimestamp(t *testing.T) {
	d := newTestDetector(t, 800, 1, 2)

	d.Observe(900, 1000)
	d.Observe(100, 1032)
	if d.LastVoice() != 1000 {
		t.Errorf("LastVoice = %d, expected 1000", d.LastVoice())
	}
	d.Observe(900, 1064)
	if d.LastVoice() != 1064 {
		t.Errorf("LastVoice = %d, expected 1064", d.LastVoice())
	}
}

func TestResetAbandonsUtterance(t *testing.T) {
	d := newTestDetector(t, 800, 1, 10)
	d.Observe(900, 0)
	if d.State() != StateTransmitting {
		t.Fatal("not transmitting")
	}

	d.Reset()
	if d.State() != StateIdle {
		t.Error("Reset did not return to idle")
	}
	if dec := d.Observe(100, 0); dec.Transmit || dec.End {
		t.Error("silent frame after Reset produced transmission")
	}
}
