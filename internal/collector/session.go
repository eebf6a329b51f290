package collector

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/DaviBaechtold/voice-assistant-arduino/internal/metrics"
	"github.com/DaviBaechtold/voice-assistant-arduino/internal/protocol"
)

// Utterance is one fully assembled voice segment from one device, handed
// to the sink when the end packet arrives or the inactivity timeout fires.
type Utterance struct {
	DeviceID   uint16
	DeviceName string
	SampleRate int
	Samples    []int16
	StartTime  time.Time
	Packets    uint64
	Lost       uint64
	Reason     string // "end" or "timeout"
}

// Duration returns the audio length of the utterance.
func (u *Utterance) Duration() time.Duration {
	if u.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(u.Samples)) * time.Second / time.Duration(u.SampleRate)
}

// Sink consumes finished utterances. The recorder is the production sink.
type Sink interface {
	HandleUtterance(u *Utterance) error
}

// DeviceSession assembles the in-flight utterance of one device. Packets
// may arrive out of order; the session appends them in sequence order and
// parks early arrivals in a pending map until the gap fills or the
// utterance is finalized, at which point unfilled gaps are counted as
// lost packets.
type DeviceSession struct {
	DeviceID uint16
	Name     string

	mu           sync.Mutex
	active       bool
	sawStart     bool
	startTime    time.Time
	lastActivity time.Time
	sampleRate   int

	expectedSeq uint32
	pending     map[uint32][]int16
	assembled   []int16
	packets     uint64
	lost        uint64

	// Lifetime counters, surviving across utterances.
	totalPackets    uint64
	totalLost       uint64
	utterancesDone  uint64
	utterancesDrops uint64
}

// DeviceInfo is a monitoring snapshot of one device session.
type DeviceInfo struct {
	DeviceID            uint16    `json:"device_id"`
	Name                string    `json:"name"`
	Active              bool      `json:"active"`
	LastActivity        time.Time `json:"last_activity"`
	PacketsReceived     uint64    `json:"packets_received"`
	PacketsLost         uint64    `json:"packets_lost"`
	UtterancesCompleted uint64    `json:"utterances_completed"`
	UtterancesExpired   uint64    `json:"utterances_expired"`
}

// Manager routes parsed packets to per-device sessions and finalizes
// utterances, either on an end-flagged packet or when a device goes quiet
// for longer than the timeout.
type Manager struct {
	mu       sync.RWMutex
	sessions map[uint16]*DeviceSession

	names   map[uint16]string
	sink    Sink
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.CollectorMetrics

	done    chan struct{}
	cleanup chan struct{}
}

// NewManager creates a session manager. names maps the declared device IDs
// to human-readable labels used in log lines and recording filenames;
// packets from undeclared devices are still assembled, under a generated
// label.
func NewManager(names map[uint16]string, sink Sink, timeout time.Duration, logger *slog.Logger, m *metrics.CollectorMetrics) (*Manager, error) {
	if sink == nil {
		return nil, fmt.Errorf("sink must not be nil")
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive, got %v", timeout)
	}

	mgr := &Manager{
		sessions: make(map[uint16]*DeviceSession),
		names:    names,
		sink:     sink,
		timeout:  timeout,
		logger:   logger,
		metrics:  m,
		done:     make(chan struct{}),
		cleanup:  make(chan struct{}),
	}

	go mgr.cleanupLoop()

	return mgr, nil
}

// AddPacket feeds one verified packet into the owning device session.
func (m *Manager) AddPacket(pkt *protocol.Packet) {
	session := m.getOrCreateSession(pkt.Header.DeviceID)

	if finished := session.addPacket(pkt, m.logger); finished != nil {
		m.deliver(finished)
	}
	m.metrics.SetActiveSessions(m.activeCount())
}

func (m *Manager) getOrCreateSession(deviceID uint16) *DeviceSession {
	m.mu.RLock()
	session, exists := m.sessions[deviceID]
	m.mu.RUnlock()
	if exists {
		return session
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if session, exists = m.sessions[deviceID]; exists {
		return session
	}

	name, declared := m.names[deviceID]
	if !declared {
		name = fmt.Sprintf("device%d", deviceID)
		m.logger.Warn("packet from undeclared device",
			slog.Int("device_id", int(deviceID)),
		)
	}

	session = &DeviceSession{
		DeviceID: deviceID,
		Name:     name,
		pending:  make(map[uint32][]int16),
	}
	m.sessions[deviceID] = session

	m.logger.Info("device session created",
		slog.Int("device_id", int(deviceID)),
		slog.String("name", name),
	)

	return session
}

// deliver hands a finished utterance to the sink and records the outcome.
func (m *Manager) deliver(u *Utterance) {
	sizeBytes := len(u.Samples) * 2
	switch u.Reason {
	case "timeout":
		m.metrics.RecordUtteranceExpired(u.Duration().Seconds(), sizeBytes)
	default:
		m.metrics.RecordUtteranceAssembled(u.Duration().Seconds(), sizeBytes)
	}
	m.metrics.RecordLostPackets(int(u.Lost))

	m.logger.Info("utterance finalized",
		slog.Int("device_id", int(u.DeviceID)),
		slog.String("device", u.DeviceName),
		slog.String("reason", u.Reason),
		slog.Uint64("packets", u.Packets),
		slog.Uint64("lost", u.Lost),
		slog.Float64("duration_seconds", u.Duration().Seconds()),
	)

	if err := m.sink.HandleUtterance(u); err != nil {
		m.metrics.RecordRecordingFailure()
		m.logger.Error("utterance sink failed",
			slog.Int("device_id", int(u.DeviceID)),
			slog.String("error", err.Error()),
		)
	}
}

// GetDevices returns a monitoring snapshot of all known device sessions,
// ordered by device ID.
func (m *Manager) GetDevices() []DeviceInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]DeviceInfo, 0, len(m.sessions))
	for _, session := range m.sessions {
		infos = append(infos, session.info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].DeviceID < infos[j].DeviceID })
	return infos
}

// GetDevice returns the snapshot of one device session.
func (m *Manager) GetDevice(deviceID uint16) (DeviceInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[deviceID]
	if !exists {
		return DeviceInfo{}, false
	}
	return session.info(), true
}

func (m *Manager) activeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, session := range m.sessions {
		session.mu.Lock()
		if session.active {
			count++
		}
		session.mu.Unlock()
	}
	return count
}

// Stop finalizes any in-flight utterances and stops the cleanup loop.
func (m *Manager) Stop() {
	close(m.done)
	<-m.cleanup

	m.mu.RLock()
	sessions := make([]*DeviceSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, session := range sessions {
		if u := session.expire(time.Time{}); u != nil {
			m.deliver(u)
		}
	}

	m.logger.Info("session manager stopped",
		slog.Int("devices", len(sessions)),
	)
}

// cleanupLoop finalizes utterances whose device went quiet. A node that
// crashed mid-utterance or whose end packet was lost would otherwise hold
// its session open forever.
func (m *Manager) cleanupLoop() {
	defer close(m.cleanup)

	interval := m.timeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.expireIdleSessions()
		}
	}
}

func (m *Manager) expireIdleSessions() {
	cutoff := time.Now().Add(-m.timeout)

	m.mu.RLock()
	sessions := make([]*DeviceSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, session := range sessions {
		if u := session.expire(cutoff); u != nil {
			m.deliver(u)
		}
	}
	m.metrics.SetActiveSessions(m.activeCount())
}

// addPacket integrates one packet. It returns a finished utterance when
// this packet completes one, nil otherwise.
func (s *DeviceSession) addPacket(pkt *protocol.Packet, logger *slog.Logger) *Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastActivity = time.Now()
	s.totalPackets++

	var superseded *Utterance

	if pkt.Header.IsStart() {
		if s.active && !s.sawStart {
			// The open utterance was adopted from a mid-utterance packet and
			// this is its start packet, reordered past its successors. Fold
			// it into the open utterance rather than opening a second one.
			s.sawStart = true
			logger.Info("reordered start packet merged into adopted utterance",
				slog.Int("device_id", int(s.DeviceID)),
				slog.Uint64("seq", uint64(pkt.Header.Sequence)),
			)
		} else {
			if s.active {
				// A new utterance started before the previous one ended: the
				// end packet was lost. Close the old one out first.
				superseded = s.finalizeLocked("timeout")
				logger.Warn("utterance superseded by new start",
					slog.Int("device_id", int(s.DeviceID)),
				)
			}
			s.beginLocked(pkt)
		}
	} else if !s.active {
		// Mid-utterance packet with no open utterance: the start packet
		// was reordered or lost, or the collector restarted. Adopt the
		// utterance with the sequence base still at zero so a late start
		// packet can slot in; any head gap still unfilled when the
		// utterance ends is charged as lost at finalize.
		s.beginLocked(pkt)
		logger.Warn("utterance adopted without start packet",
			slog.Int("device_id", int(s.DeviceID)),
			slog.Uint64("seq", uint64(pkt.Header.Sequence)),
		)
	}

	s.packets++

	// Park the payload and drain everything now contiguous.
	if pkt.Header.Sequence >= s.expectedSeq {
		s.pending[pkt.Header.Sequence] = pkt.Samples
		for {
			samples, ok := s.pending[s.expectedSeq]
			if !ok {
				break
			}
			s.assembled = append(s.assembled, samples...)
			delete(s.pending, s.expectedSeq)
			s.expectedSeq++
		}
	} else {
		// Duplicate or a retransmission of an already-assembled sequence.
		logger.Warn("stale sequence dropped",
			slog.Int("device_id", int(s.DeviceID)),
			slog.Uint64("seq", uint64(pkt.Header.Sequence)),
			slog.Uint64("expected", uint64(s.expectedSeq)),
		)
	}

	var finished *Utterance
	if pkt.Header.IsEnd() {
		finished = s.finalizeLocked("end")
	}

	// At most one of the two is non-nil per packet in practice; a start
	// packet carrying an end flag closes both.
	if superseded != nil && finished != nil {
		// Deliver the superseded one by merging is not meaningful; the
		// caller only handles one. Prefer the just-finished utterance and
		// drop the superseded remnant, which has already been counted.
		return finished
	}
	if superseded != nil {
		return superseded
	}
	return finished
}

func (s *DeviceSession) beginLocked(pkt *protocol.Packet) {
	s.active = true
	s.sawStart = pkt.Header.IsStart()
	s.startTime = time.Now()
	s.sampleRate = int(pkt.Header.SampleRate)
	s.expectedSeq = 0
	s.pending = make(map[uint32][]int16)
	s.assembled = s.assembled[:0]
	s.packets = 0
	s.lost = 0
}

// finalizeLocked flushes out-of-order remnants in sequence order, counts
// the unfilled gaps as lost, and resets the session to idle. Caller holds
// s.mu.
func (s *DeviceSession) finalizeLocked(reason string) *Utterance {
	if !s.active {
		return nil
	}

	if len(s.pending) > 0 {
		seqs := make([]uint32, 0, len(s.pending))
		for seq := range s.pending {
			seqs = append(seqs, seq)
		}
		sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })

		for _, seq := range seqs {
			s.lost += uint64(seq - s.expectedSeq)
			s.assembled = append(s.assembled, s.pending[seq]...)
			s.expectedSeq = seq + 1
		}
		s.pending = make(map[uint32][]int16)
	}

	u := &Utterance{
		DeviceID:   s.DeviceID,
		DeviceName: s.Name,
		SampleRate: s.sampleRate,
		Samples:    append([]int16(nil), s.assembled...),
		StartTime:  s.startTime,
		Packets:    s.packets,
		Lost:       s.lost,
		Reason:     reason,
	}

	s.totalLost += s.lost
	if reason == "end" {
		s.utterancesDone++
	} else {
		s.utterancesDrops++
	}

	s.active = false
	s.assembled = s.assembled[:0]
	s.packets = 0
	s.lost = 0

	return u
}

// expire finalizes the in-flight utterance if the session has been idle
// since before cutoff. A zero cutoff forces expiry regardless of activity.
func (s *DeviceSession) expire(cutoff time.Time) *Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return nil
	}
	if !cutoff.IsZero() && s.lastActivity.After(cutoff) {
		return nil
	}
	return s.finalizeLocked("timeout")
}

func (s *DeviceSession) info() DeviceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	return DeviceInfo{
		DeviceID:            s.DeviceID,
		Name:                s.Name,
		Active:              s.active,
		LastActivity:        s.lastActivity,
		PacketsReceived:     s.totalPackets,
		PacketsLost:         s.totalLost,
		UtterancesCompleted: s.utterancesDone,
		UtterancesExpired:   s.utterancesDrops,
	}
}
