package vad

import (
	"fmt"
)

// State is the utterance state of the detector.
type State int

const (
	// StateIdle covers both idle and armed (debouncing) phases: no packets
	// are emitted until the voice debounce completes.
	StateIdle State = iota
	// StateTransmitting: every frame is transmitted until the silence
	// debounce completes.
	StateTransmitting
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTransmitting:
		return "transmitting"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Decision is the per-frame verdict of the detector.
type Decision struct {
	Voiced   bool // frame classified as speech
	Transmit bool // frame the current buffer and send it
	Start    bool // this frame opens a new utterance
	End      bool // this frame terminates the utterance
}

// Config holds the static detector tuning. The energy threshold is fixed
// configuration, not adapted to ambient noise.
type Config struct {
	EnergyThreshold uint32 // frames scoring at or above are voiced
	MinVoiceFrames  int    // consecutive voiced frames to start an utterance
	SilenceFrames   int    // consecutive silent frames to end an utterance
}

// Detector is the voice activity state machine. It consumes one energy
// value per capture frame and applies hysteresis: a short debounce to start
// an utterance, a longer one to stop, so brief dips inside an utterance do
// not fragment it. Not safe for concurrent use; the node loop is the only
// caller.
type Detector struct {
	cfg Config

	state      State
	voiceRun   int
	silenceRun int
	lastVoice  uint32 // uptime ms of the last voiced frame

	framesObserved uint64
	framesVoiced   uint64
	utterances     uint64
}

// NewDetector validates the configuration and returns a detector in the
// idle state.
func NewDetector(cfg Config) (*Detector, error) {
	if cfg.EnergyThreshold == 0 {
		return nil, fmt.Errorf("energy threshold must be positive")
	}
	if cfg.MinVoiceFrames < 1 {
		return nil, fmt.Errorf("min voice frames must be at least 1, got %d", cfg.MinVoiceFrames)
	}
	if cfg.SilenceFrames < 1 {
		return nil, fmt.Errorf("silence frames must be at least 1, got %d", cfg.SilenceFrames)
	}
	return &Detector{cfg: cfg}, nil
}

// Observe feeds one frame's energy into the state machine and returns the
// decision for that frame. now is the device uptime in milliseconds at
// capture time.
//
// While idle, voiced frames arm the start debounce; the frame that reaches
// MinVoiceFrames consecutive voiced frames transitions to transmitting and
// is itself transmitted as the first packet of the utterance. While
// transmitting, every frame is transmitted regardless of its own
// classification; the frame that reaches SilenceFrames consecutive silent
// frames is transmitted as the final packet and returns the machine to
// idle with both run counters cleared.
func (d *Detector) Observe(energy uint32, now uint32) Decision {
	voiced := energy >= d.cfg.EnergyThreshold

	d.framesObserved++
	if voiced {
		d.framesVoiced++
	}

	dec := Decision{Voiced: voiced}

	switch d.state {
	case StateIdle:
		if voiced {
			d.voiceRun++
			d.silenceRun = 0
			d.lastVoice = now
			if d.voiceRun >= d.cfg.MinVoiceFrames {
				d.state = StateTransmitting
				d.voiceRun = 0
				d.silenceRun = 0
				d.utterances++
				dec.Transmit = true
				dec.Start = true
			}
		} else {
			d.voiceRun = 0
			d.silenceRun++
		}

	case StateTransmitting:
		dec.Transmit = true
		if voiced {
			d.voiceRun++
			d.silenceRun = 0
			d.lastVoice = now
		} else {
			d.silenceRun++
			d.voiceRun = 0
			if d.silenceRun >= d.cfg.SilenceFrames {
				d.state = StateIdle
				d.voiceRun = 0
				d.silenceRun = 0
				dec.End = true
			}
		}
	}

	return dec
}

// State returns the current utterance state.
func (d *Detector) State() State { return d.state }

// LastVoice returns the uptime of the most recent voiced frame.
func (d *Detector) LastVoice() uint32 { return d.lastVoice }

// Stats reports how many frames were observed, how many were voiced, and
// how many utterances were started.
func (d *Detector) Stats() (observed, voiced, utterances uint64) {
	return d.framesObserved, d.framesVoiced, d.utterances
}

// Reset returns the detector to idle and clears the debounce counters. An
// utterance in progress is abandoned without emitting an end decision.
func (d *Detector) Reset() {
	d.state = StateIdle
	d.voiceRun = 0
	d.silenceRun = 0
}
