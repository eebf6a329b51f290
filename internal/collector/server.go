package collector

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/DaviBaechtold/voice-assistant-arduino/internal/config"
	"github.com/DaviBaechtold/voice-assistant-arduino/internal/metrics"
	"github.com/DaviBaechtold/voice-assistant-arduino/internal/protocol"
)

// UDPServer receives audio datagrams from the sensor nodes and feeds the
// verified ones into the session manager. Receiving and processing are
// decoupled by a bounded channel so a slow disk write never backs up the
// socket.
type UDPServer struct {
	conn    *net.UDPConn
	config  *config.ServerConfig
	logger  *slog.Logger
	manager *Manager
	metrics *metrics.CollectorMetrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	packetChan chan *incomingPacket
	readerDone chan struct{}

	mu               sync.RWMutex
	packetsReceived  uint64
	packetsProcessed uint64
	parseErrors      uint64
	checksumErrors   uint64
}

// incomingPacket is one received datagram with receive metadata.
type incomingPacket struct {
	data       []byte
	remoteAddr *net.UDPAddr
}

// NewUDPServer creates an unstarted server.
func NewUDPServer(cfg *config.ServerConfig, logger *slog.Logger, manager *Manager, m *metrics.CollectorMetrics) *UDPServer {
	ctx, cancel := context.WithCancel(context.Background())

	return &UDPServer{
		config:     cfg,
		logger:     logger,
		manager:    manager,
		metrics:    m,
		ctx:        ctx,
		cancel:     cancel,
		packetChan: make(chan *incomingPacket, 1000),
		readerDone: make(chan struct{}),
	}
}

// Start binds the UDP socket and launches the receive loop and the packet
// processing workers.
func (s *UDPServer) Start() error {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", s.config.BindAddress, s.config.UDPPort))
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}
	s.conn = conn

	if err := s.conn.SetReadBuffer(s.config.BufferSize); err != nil {
		s.logger.Warn("Failed to set UDP read buffer size",
			slog.Int("buffer_size", s.config.BufferSize),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("UDP server started",
		slog.String("address", s.conn.LocalAddr().String()),
		slog.Int("buffer_size", s.config.BufferSize),
	)

	numWorkers := 2 // one per expected device is plenty
	for i := 0; i < numWorkers; i++ {
		s.wg.Add(1)
		go s.packetProcessor(i)
	}

	s.wg.Add(1)
	go s.receiveLoop()

	return nil
}

// Addr returns the bound socket address, useful when the configured port
// was 0.
func (s *UDPServer) Addr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Stop gracefully stops the server.
func (s *UDPServer) Stop() error {
	s.logger.Info("Stopping UDP server...")

	s.cancel()

	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Warn("Error closing UDP connection", slog.String("error", err.Error()))
		}
		// The receive loop may still be forwarding a datagram read just
		// before the close; the channel must outlive it.
		<-s.readerDone
	}

	close(s.packetChan)
	s.wg.Wait()

	s.mu.RLock()
	received := s.packetsReceived
	processed := s.packetsProcessed
	parseErrors := s.parseErrors
	checksumErrors := s.checksumErrors
	s.mu.RUnlock()

	s.logger.Info("UDP server stopped",
		slog.Uint64("packets_received", received),
		slog.Uint64("packets_processed", processed),
		slog.Uint64("parse_errors", parseErrors),
		slog.Uint64("checksum_errors", checksumErrors),
	)

	return nil
}

// receiveLoop is the main packet receiving loop.
func (s *UDPServer) receiveLoop() {
	defer s.wg.Done()
	defer close(s.readerDone)

	buffer := make([]byte, s.config.BufferSize)

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("Receive loop stopping due to context cancellation")
			return
		default:
		}

		// Read deadline so context cancellation is observed periodically.
		if err := s.conn.SetReadDeadline(time.Now().Add(1 * time.Second)); err != nil {
			s.logger.Error("Failed to set read deadline", slog.String("error", err.Error()))
			continue
		}

		n, remoteAddr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-s.ctx.Done():
				return
			default:
				s.logger.Error("Failed to read UDP packet", slog.String("error", err.Error()))
				continue
			}
		}

		s.mu.Lock()
		s.packetsReceived++
		s.mu.Unlock()
		s.metrics.RecordPacketReceived()

		// The receive buffer is reused; the packet owns a copy.
		packetData := make([]byte, n)
		copy(packetData, buffer[:n])

		packet := &incomingPacket{data: packetData, remoteAddr: remoteAddr}

		select {
		case s.packetChan <- packet:
			s.metrics.SetQueueSize(len(s.packetChan))
		default:
			s.logger.Warn("Packet processing queue full, dropping packet",
				slog.String("remote_addr", remoteAddr.String()),
				slog.Int("packet_size", n),
			)
		}
	}
}

// packetProcessor drains the packet channel.
func (s *UDPServer) packetProcessor(workerID int) {
	defer s.wg.Done()

	s.logger.Debug("Packet processor started", slog.Int("worker_id", workerID))

	for packet := range s.packetChan {
		s.handlePacket(packet, workerID)
	}

	s.logger.Debug("Packet processor stopped", slog.Int("worker_id", workerID))
}

// handlePacket parses and verifies one datagram, then routes it to the
// owning device session. A checksum mismatch drops the payload; the gap in
// the sequence space is accounted as loss when the utterance finalizes.
func (s *UDPServer) handlePacket(packet *incomingPacket, workerID int) {
	parsed, err := protocol.ParsePacket(packet.data)
	if err != nil {
		s.mu.Lock()
		s.parseErrors++
		s.mu.Unlock()
		s.metrics.RecordParseError()

		s.logger.Error("Failed to parse packet",
			slog.String("remote_addr", packet.remoteAddr.String()),
			slog.Int("packet_size", len(packet.data)),
			slog.String("error", err.Error()),
			slog.Int("worker_id", workerID),
		)
		return
	}

	if !parsed.VerifyChecksum() {
		s.mu.Lock()
		s.checksumErrors++
		s.mu.Unlock()
		s.metrics.RecordChecksumError()

		s.logger.Warn("Checksum mismatch, dropping payload",
			slog.String("remote_addr", packet.remoteAddr.String()),
			slog.Int("device_id", int(parsed.Header.DeviceID)),
			slog.Uint64("seq", uint64(parsed.Header.Sequence)),
			slog.Int("worker_id", workerID),
		)
		return
	}

	s.mu.Lock()
	s.packetsProcessed++
	s.mu.Unlock()
	s.metrics.RecordPacketProcessed()

	s.manager.AddPacket(parsed)

	s.logger.Debug("Audio packet processed",
		slog.Int("device_id", int(parsed.Header.DeviceID)),
		slog.Uint64("seq", uint64(parsed.Header.Sequence)),
		slog.Int("samples", len(parsed.Samples)),
		slog.Int("worker_id", workerID),
	)
}

// GetStatistics returns current server statistics.
func (s *UDPServer) GetStatistics() ServerStatistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return ServerStatistics{
		PacketsReceived:  s.packetsReceived,
		PacketsProcessed: s.packetsProcessed,
		ParseErrors:      s.parseErrors,
		ChecksumErrors:   s.checksumErrors,
		QueueSize:        uint64(len(s.packetChan)),
		QueueCapacity:    uint64(cap(s.packetChan)),
	}
}

// ServerStatistics represents server performance counters.
type ServerStatistics struct {
	PacketsReceived  uint64 `json:"packets_received"`
	PacketsProcessed uint64 `json:"packets_processed"`
	ParseErrors      uint64 `json:"parse_errors"`
	ChecksumErrors   uint64 `json:"checksum_errors"`
	QueueSize        uint64 `json:"queue_size"`
	QueueCapacity    uint64 `json:"queue_capacity"`
}
