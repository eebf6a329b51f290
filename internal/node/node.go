package node

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DaviBaechtold/voice-assistant-arduino/internal/capture"
	"github.com/DaviBaechtold/voice-assistant-arduino/internal/config"
	"github.com/DaviBaechtold/voice-assistant-arduino/internal/link"
	"github.com/DaviBaechtold/voice-assistant-arduino/internal/metrics"
	"github.com/DaviBaechtold/voice-assistant-arduino/internal/protocol"
	"github.com/DaviBaechtold/voice-assistant-arduino/internal/transport"
	"github.com/DaviBaechtold/voice-assistant-arduino/internal/vad"
)

// pollInterval is how long the loop sleeps when no frame is ready. Frames
// arrive every 32ms at the default tuning, so this keeps take latency well
// under one frame period without spinning.
const pollInterval = 2 * time.Millisecond

// Node is the sensor runtime. One Node owns one capture source, one cell,
// one detector, one framer, and one link to the collector.
type Node struct {
	cfg     *config.NodeConfig
	source  capture.Source
	cell    *capture.Cell
	monitor *link.Monitor
	sender  transport.Sender
	det     *vad.Detector
	framer  *protocol.Framer
	metrics *metrics.NodeMetrics
	logger  *slog.Logger

	scratch        capture.Frame
	pacing         time.Duration
	seenOverruns   uint64
	seenReconnects uint64
}

// New wires a node from its collaborators. sender and the monitor's link
// are normally the same transport.UDPSender; they are separate parameters
// so tests can substitute either side.
func New(cfg *config.NodeConfig, source capture.Source, sender transport.Sender, monitor *link.Monitor, m *metrics.NodeMetrics, logger *slog.Logger) (*Node, error) {
	cell, err := capture.NewCell(cfg.Audio.FrameSamples)
	if err != nil {
		return nil, fmt.Errorf("creating capture cell: %w", err)
	}

	det, err := vad.NewDetector(vad.Config{
		EnergyThreshold: cfg.VAD.EnergyThreshold,
		MinVoiceFrames:  cfg.VAD.MinVoiceFrames,
		SilenceFrames:   cfg.VAD.SilenceFrames,
	})
	if err != nil {
		return nil, fmt.Errorf("creating detector: %w", err)
	}

	framer, err := protocol.NewFramer(cfg.Node.DeviceID, uint16(cfg.Audio.SampleRate), cfg.Node.MTU)
	if err != nil {
		return nil, fmt.Errorf("creating framer: %w", err)
	}

	return &Node{
		cfg:     cfg,
		source:  source,
		cell:    cell,
		monitor: monitor,
		sender:  sender,
		det:     det,
		framer:  framer,
		metrics: m,
		logger:  logger,
		scratch: capture.Frame{Samples: make([]int16, cfg.Audio.FrameSamples)},
		pacing:  cfg.Node.GetPacingDelay(),
	}, nil
}

// Run starts the capture source and drives the processing loop until ctx
// is cancelled. A capture source that fails to start is a fatal fault: the
// node has nothing to transmit without it. A link that cannot be
// established is not fatal; frames captured during the outage are absorbed
// by the cell's drop-oldest policy.
func (n *Node) Run(ctx context.Context) error {
	if err := n.source.Start(ctx, n.cell); err != nil {
		return fmt.Errorf("starting capture source: %w", err)
	}
	defer n.source.Stop()

	n.logger.Info("node started",
		slog.Int("device_id", int(n.cfg.Node.DeviceID)),
		slog.Int("sample_rate", n.cfg.Audio.SampleRate),
		slog.Int("frame_samples", n.cfg.Audio.FrameSamples),
		slog.String("collector", fmt.Sprintf("%s:%d", n.cfg.Node.CollectorAddress, n.cfg.Node.CollectorPort)),
	)

	for {
		if err := ctx.Err(); err != nil {
			n.logger.Info("node stopping", slog.String("reason", err.Error()))
			return nil
		}

		if err := n.monitor.Ensure(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			n.metrics.RecordLinkFailure()
			n.metrics.SetLinkConnected(false)
			n.logger.Error("link unavailable, capture continues", slog.String("error", err.Error()))
			continue
		}
		n.metrics.SetLinkConnected(true)
		if r := n.monitor.Reconnects(); r > n.seenReconnects {
			for ; n.seenReconnects < r; n.seenReconnects++ {
				n.metrics.RecordReconnect()
			}
		}

		if !n.cell.TryTake(&n.scratch) {
			select {
			case <-ctx.Done():
			case <-time.After(pollInterval):
			}
			continue
		}

		n.handleFrame(ctx, &n.scratch)
	}
}

// handleFrame scores one frame and transmits it if the detector says so.
// Send failures are counted and logged but never retried: the sequence
// number has already been consumed, so the collector sees the packet as
// lost, which is the correct accounting for a datagram link.
func (n *Node) handleFrame(ctx context.Context, f *capture.Frame) {
	n.metrics.RecordFrameCaptured()
	if o := n.cell.Overruns(); o > n.seenOverruns {
		for ; n.seenOverruns < o; n.seenOverruns++ {
			n.metrics.RecordCellOverrun()
		}
		n.logger.Warn("capture overrun, oldest frame dropped", slog.Uint64("total", o))
	}

	samples := f.Samples[:f.Count]
	energy := vad.MeanAbs(samples)
	dec := n.det.Observe(energy, f.Timestamp)
	n.metrics.RecordFrameAnalyzed(energy, dec.Voiced)

	if !dec.Transmit {
		return
	}

	if dec.Start {
		n.framer.BeginUtterance()
		n.metrics.RecordUtteranceStarted()
		n.logger.Info("utterance started",
			slog.Uint64("energy", uint64(energy)),
			slog.Uint64("timestamp_ms", uint64(f.Timestamp)),
		)
	}

	packets, err := n.framer.Frame(samples, f.Timestamp, dec.End)
	if err != nil {
		n.logger.Error("framing failed", slog.String("error", err.Error()))
		return
	}

	for i, pkt := range packets {
		if i > 0 && n.pacing > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(n.pacing):
			}
		}
		if err := n.sender.Send(pkt); err != nil {
			n.metrics.RecordSendFailure()
			n.logger.Warn("packet send failed",
				slog.Uint64("seq", uint64(n.framer.Sequence()-1)),
				slog.String("error", err.Error()),
			)
			continue
		}
		n.metrics.RecordPacketSent(len(pkt))
	}

	if dec.End {
		observed, voiced, utterances := n.det.Stats()
		n.logger.Info("utterance complete",
			slog.Uint64("packets", uint64(n.framer.Sequence())),
			slog.Uint64("frames_observed", observed),
			slog.Uint64("frames_voiced", voiced),
			slog.Uint64("utterances", utterances),
		)
	}
}
