package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// NodeMetrics contains Prometheus metrics for a sensor node
type NodeMetrics struct {
	// Capture metrics
	FramesCaptured prometheus.Counter
	CellOverruns   prometheus.Counter

	// VAD metrics
	FramesAnalyzed prometheus.Counter
	VoicedFrames   prometheus.Counter
	Utterances     prometheus.Counter
	FrameEnergy    prometheus.Histogram

	// Transmission metrics
	PacketsSent   prometheus.Counter
	BytesSent     prometheus.Counter
	SendFailures  prometheus.Counter
	Reconnects    prometheus.Counter
	LinkFailures  prometheus.Counter
	LinkConnected prometheus.Gauge
}

// NewNodeMetrics creates and registers all node-side Prometheus metrics
func NewNodeMetrics() *NodeMetrics {
	return &NodeMetrics{
		// Capture metrics
		FramesCaptured: promauto.NewCounter(prometheus.CounterOpts{
			Name: "node_frames_captured_total",
			Help: "Total number of audio frames captured from the microphone",
		}),
		CellOverruns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "node_cell_overruns_total",
			Help: "Total number of frames overwritten before the processing loop consumed them",
		}),

		// VAD metrics
		FramesAnalyzed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "node_vad_frames_analyzed_total",
			Help: "Total number of frames run through voice activity detection",
		}),
		VoicedFrames: promauto.NewCounter(prometheus.CounterOpts{
			Name: "node_vad_voiced_frames_total",
			Help: "Total number of frames whose energy exceeded the voice threshold",
		}),
		Utterances: promauto.NewCounter(prometheus.CounterOpts{
			Name: "node_utterances_total",
			Help: "Total number of utterances started",
		}),
		FrameEnergy: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "node_frame_energy",
			Help:    "Mean absolute amplitude per frame",
			Buckets: prometheus.ExponentialBuckets(50, 2, 10), // 50 to ~25600
		}),

		// Transmission metrics
		PacketsSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "node_packets_sent_total",
			Help: "Total number of UDP audio packets sent to the collector",
		}),
		BytesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "node_bytes_sent_total",
			Help: "Total number of bytes sent to the collector",
		}),
		SendFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "node_send_failures_total",
			Help: "Total number of UDP send errors",
		}),
		Reconnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "node_link_reconnects_total",
			Help: "Total number of successful link reconnections",
		}),
		LinkFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "node_link_failures_total",
			Help: "Total number of reconnection rounds that exhausted the retry limit",
		}),
		LinkConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "node_link_connected",
			Help: "Whether the UDP link to the collector is currently established (1) or not (0)",
		}),
	}
}

// RecordFrameCaptured increments the frames captured counter
func (m *NodeMetrics) RecordFrameCaptured() {
	m.FramesCaptured.Inc()
}

// RecordCellOverrun increments the cell overruns counter
func (m *NodeMetrics) RecordCellOverrun() {
	m.CellOverruns.Inc()
}

// RecordFrameAnalyzed records a VAD decision for one frame
func (m *NodeMetrics) RecordFrameAnalyzed(energy uint32, voiced bool) {
	m.FramesAnalyzed.Inc()
	m.FrameEnergy.Observe(float64(energy))
	if voiced {
		m.VoicedFrames.Inc()
	}
}

// RecordUtteranceStarted increments the utterances counter
func (m *NodeMetrics) RecordUtteranceStarted() {
	m.Utterances.Inc()
}

// RecordPacketSent records a successfully sent packet
func (m *NodeMetrics) RecordPacketSent(sizeBytes int) {
	m.PacketsSent.Inc()
	m.BytesSent.Add(float64(sizeBytes))
}

// RecordSendFailure increments the send failures counter
func (m *NodeMetrics) RecordSendFailure() {
	m.SendFailures.Inc()
}

// RecordReconnect increments the successful reconnections counter
func (m *NodeMetrics) RecordReconnect() {
	m.Reconnects.Inc()
}

// RecordLinkFailure increments the failed reconnection rounds counter
func (m *NodeMetrics) RecordLinkFailure() {
	m.LinkFailures.Inc()
}

// SetLinkConnected sets the link connectivity gauge
func (m *NodeMetrics) SetLinkConnected(connected bool) {
	if connected {
		m.LinkConnected.Set(1)
	} else {
		m.LinkConnected.Set(0)
	}
}

// CollectorMetrics contains Prometheus metrics for the collector service
type CollectorMetrics struct {
	// UDP packet metrics
	PacketsReceived  prometheus.Counter
	PacketsProcessed prometheus.Counter
	ParseErrors      prometheus.Counter
	ChecksumErrors   prometheus.Counter
	LostPackets      prometheus.Counter
	QueueSize        prometheus.Gauge

	// Session metrics
	ActiveSessions      prometheus.Gauge
	UtterancesAssembled prometheus.Counter
	UtterancesExpired   prometheus.Counter
	UtteranceDuration   prometheus.Histogram
	UtteranceSize       prometheus.Histogram

	// Recording metrics
	RecordingsWritten prometheus.Counter
	RecordingFailures prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewCollectorMetrics creates and registers all collector-side Prometheus metrics
func NewCollectorMetrics() *CollectorMetrics {
	return &CollectorMetrics{
		// UDP packet metrics
		PacketsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "collector_packets_received_total",
			Help: "Total number of UDP packets received",
		}),
		PacketsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "collector_packets_processed_total",
			Help: "Total number of UDP packets successfully processed",
		}),
		ParseErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "collector_parse_errors_total",
			Help: "Total number of packet parsing errors",
		}),
		ChecksumErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "collector_checksum_errors_total",
			Help: "Total number of packets dropped due to checksum mismatch",
		}),
		LostPackets: promauto.NewCounter(prometheus.CounterOpts{
			Name: "collector_lost_packets_total",
			Help: "Total number of packets missing from received sequence ranges",
		}),
		QueueSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "collector_packet_queue_size",
			Help: "Current number of packets in the processing queue",
		}),

		// Session metrics
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "collector_active_sessions",
			Help: "Current number of devices with an utterance in progress",
		}),
		UtterancesAssembled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "collector_utterances_assembled_total",
			Help: "Total number of utterances completed via an end-flagged packet",
		}),
		UtterancesExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "collector_utterances_expired_total",
			Help: "Total number of utterances finalized by inactivity timeout",
		}),
		UtteranceDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "collector_utterance_duration_seconds",
			Help:    "Duration of assembled utterances in seconds",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 0.25s to ~2 minutes
		}),
		UtteranceSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "collector_utterance_size_bytes",
			Help:    "Size of assembled utterances in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),

		// Recording metrics
		RecordingsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "collector_recordings_written_total",
			Help: "Total number of WAV recordings written to disk",
		}),
		RecordingFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "collector_recording_failures_total",
			Help: "Total number of failed WAV recording writes",
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "collector_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// RecordPacketReceived increments the packets received counter
func (m *CollectorMetrics) RecordPacketReceived() {
	m.PacketsReceived.Inc()
}

// RecordPacketProcessed increments the packets processed counter
func (m *CollectorMetrics) RecordPacketProcessed() {
	m.PacketsProcessed.Inc()
}

// RecordParseError increments the parse errors counter
func (m *CollectorMetrics) RecordParseError() {
	m.ParseErrors.Inc()
}

// RecordChecksumError increments the checksum errors counter
func (m *CollectorMetrics) RecordChecksumError() {
	m.ChecksumErrors.Inc()
}

// RecordLostPackets adds to the lost packets counter
func (m *CollectorMetrics) RecordLostPackets(count int) {
	m.LostPackets.Add(float64(count))
}

// SetQueueSize sets the current queue size
func (m *CollectorMetrics) SetQueueSize(size int) {
	m.QueueSize.Set(float64(size))
}

// SetActiveSessions sets the current number of in-progress utterances
func (m *CollectorMetrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}

// RecordUtteranceAssembled records a completed utterance
func (m *CollectorMetrics) RecordUtteranceAssembled(durationSeconds float64, sizeBytes int) {
	m.UtterancesAssembled.Inc()
	m.UtteranceDuration.Observe(durationSeconds)
	m.UtteranceSize.Observe(float64(sizeBytes))
}

// RecordUtteranceExpired records an utterance finalized by timeout
func (m *CollectorMetrics) RecordUtteranceExpired(durationSeconds float64, sizeBytes int) {
	m.UtterancesExpired.Inc()
	m.UtteranceDuration.Observe(durationSeconds)
	m.UtteranceSize.Observe(float64(sizeBytes))
}

// RecordRecordingWritten increments the recordings written counter
func (m *CollectorMetrics) RecordRecordingWritten() {
	m.RecordingsWritten.Inc()
}

// RecordRecordingFailure increments the recording failures counter
func (m *CollectorMetrics) RecordRecordingFailure() {
	m.RecordingFailures.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *CollectorMetrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
