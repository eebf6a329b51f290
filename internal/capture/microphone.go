//go:build portaudio
// +build portaudio

package capture

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gordonklaus/portaudio"
)

// Microphone captures mono 16-bit PCM from the default input device and
// publishes one cell frame per buffer read. Reads happen on a dedicated
// goroutine; the processing loop only ever sees complete frames through
// the cell.
type Microphone struct {
	sampleRate int
	burstSize  int
	logger     *slog.Logger

	stream *portaudio.Stream
	buffer []int16
	quit   chan struct{}
	done   chan struct{}
}

// NewMicrophone creates a microphone source producing bursts of burstSize
// samples at sampleRate.
func NewMicrophone(sampleRate, burstSize int, logger *slog.Logger) *Microphone {
	return &Microphone{
		sampleRate: sampleRate,
		burstSize:  burstSize,
		logger:     logger,
		buffer:     make([]int16, burstSize),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start opens and starts the default input stream and launches the read
// loop. Timestamps are uptime milliseconds measured from Start.
func (m *Microphone) Start(ctx context.Context, cell *Cell) error {
	if cell.Capacity() < m.burstSize {
		return fmt.Errorf("cell capacity %d smaller than burst size %d", cell.Capacity(), m.burstSize)
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initializing portaudio: %w", err)
	}

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(m.sampleRate), m.burstSize, m.buffer)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("opening input stream: %w", err)
	}
	m.stream = stream

	if err := m.stream.Start(); err != nil {
		m.stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("starting input stream: %w", err)
	}

	started := time.Now()
	go func() {
		defer close(m.done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.quit:
				return
			default:
			}

			if err := m.stream.Read(); err != nil {
				select {
				case <-m.quit:
					return
				default:
				}
				m.logger.Warn("microphone read failed", slog.String("error", err.Error()))
				continue
			}
			cell.Publish(m.buffer, uint32(time.Since(started).Milliseconds()))
		}
	}()

	m.logger.Info("microphone started",
		slog.Int("sample_rate", m.sampleRate),
		slog.Int("burst_samples", m.burstSize),
	)
	return nil
}

// Stop stops and closes the stream and terminates portaudio.
func (m *Microphone) Stop() error {
	close(m.quit)
	if m.stream != nil {
		m.stream.Stop()
		<-m.done
		m.stream.Close()
	}
	portaudio.Terminate()
	return nil
}
