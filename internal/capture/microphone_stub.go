//go:build !portaudio
// +build !portaudio

package capture

import (
	"context"
	"fmt"
	"log/slog"
)

// Microphone stub when portaudio is not compiled in. Start fails, which the
// node treats as a fatal startup fault.
type Microphone struct {
	logger *slog.Logger
}

// NewMicrophone returns the stub microphone.
func NewMicrophone(sampleRate, burstSize int, logger *slog.Logger) *Microphone {
	return &Microphone{logger: logger}
}

// Start always fails: capture is unavailable in this build.
func (m *Microphone) Start(_ context.Context, _ *Cell) error {
	return fmt.Errorf("microphone capture not available: rebuild with -tags portaudio")
}

// Stop is a no-op.
func (m *Microphone) Stop() error {
	return nil
}
