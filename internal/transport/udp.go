// Package transport provides the datagram send primitive the node uses to
// reach the collector: a connected UDP socket bound to a fixed per-device
// local port.
package transport

import (
	"fmt"
	"net"
	"sync"
)

// Sender sends one opaque datagram to the configured peer.
type Sender interface {
	Send(data []byte) error
}

// UDPSender is a connected UDP socket from a fixed local port to the fixed
// collector address:port. The distinct local port per device simplifies
// collector-side demultiplexing, though the device_id in the packet header
// stays the authoritative discriminator. It implements both Sender and the
// link.Link interface.
type UDPSender struct {
	localPort     int
	collectorAddr string
	collectorPort int

	mu   sync.Mutex
	conn *net.UDPConn
}

// NewUDPSender creates an unconnected sender; call Connect (usually through
// the link monitor) before Send.
func NewUDPSender(localPort int, collectorAddr string, collectorPort int) *UDPSender {
	return &UDPSender{
		localPort:     localPort,
		collectorAddr: collectorAddr,
		collectorPort: collectorPort,
	}
}

// Connected reports whether the socket is currently established.
func (s *UDPSender) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Connect (re)establishes the socket. An existing socket is closed first so
// reconnecting after an error always starts clean.
func (s *UDPSender) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}

	raddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", s.collectorAddr, s.collectorPort))
	if err != nil {
		return fmt.Errorf("resolving collector address: %w", err)
	}
	laddr := &net.UDPAddr{Port: s.localPort}

	conn, err := net.DialUDP("udp", laddr, raddr)
	if err != nil {
		return fmt.Errorf("dialing collector %s: %w", raddr, err)
	}

	s.conn = conn
	return nil
}

// Send transmits one datagram. A send on a disconnected socket fails
// immediately; the caller treats any failure as a lost packet, not a reason
// to abort the utterance.
func (s *UDPSender) Send(data []byte) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}
	if _, err := conn.Write(data); err != nil {
		// A write error usually means the socket is unusable; drop it so
		// the link monitor re-establishes on the next loop iteration.
		s.mu.Lock()
		if s.conn == conn {
			s.conn.Close()
			s.conn = nil
		}
		s.mu.Unlock()
		return fmt.Errorf("sending datagram: %w", err)
	}
	return nil
}

// Close releases the socket.
func (s *UDPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
