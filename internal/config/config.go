package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// NodeConfig is the complete sensor node configuration.
type NodeConfig struct {
	Node    NodeSection    `yaml:"node"`
	Audio   AudioConfig    `yaml:"audio"`
	VAD     VADConfig      `yaml:"vad"`
	Link    LinkConfig     `yaml:"link"`
	HTTP    HTTPConfig     `yaml:"http"`
	Logging LoggingConfig  `yaml:"logging"`
}

// CollectorConfig is the complete collector service configuration.
type CollectorConfig struct {
	Server  ServerConfig      `yaml:"server"`
	HTTP    HTTPConfig        `yaml:"http"`
	Audio   AudioConfig       `yaml:"audio"`
	Output  OutputConfig      `yaml:"output"`
	Devices map[uint16]string `yaml:"devices"`
	Logging LoggingConfig     `yaml:"logging"`
}

// NodeSection identifies one physical node and its network endpoints.
type NodeSection struct {
	DeviceID         uint16 `yaml:"device_id"`
	LocalPort        int    `yaml:"local_port"`
	CollectorAddress string `yaml:"collector_address"`
	CollectorPort    int    `yaml:"collector_port"`
	MTU              int    `yaml:"mtu"`
	PacingDelayMs    int    `yaml:"pacing_delay_ms"` // delay between split packets of one frame
}

// AudioConfig contains the PCM parameters shared by node and collector.
type AudioConfig struct {
	SampleRate    int `yaml:"sample_rate"`
	Channels      int `yaml:"channels"`
	BitDepth      int `yaml:"bit_depth"`
	FrameSamples  int `yaml:"frame_samples"`  // capture burst size (node)
	StreamTimeout int `yaml:"stream_timeout"` // seconds without packets before an utterance is abandoned (collector)
}

// VADConfig contains the voice activity detector tuning. The threshold is
// static; it is not adapted to ambient noise.
type VADConfig struct {
	EnergyThreshold uint32 `yaml:"energy_threshold"`
	MinVoiceFrames  int    `yaml:"min_voice_frames"`
	SilenceFrames   int    `yaml:"silence_frames"`
}

// LinkConfig contains the reconnect backoff tuning.
type LinkConfig struct {
	InitialBackoffMs int `yaml:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms"`
	MaxRetries       int `yaml:"max_retries"`
}

// ServerConfig contains the collector's UDP listener configuration.
type ServerConfig struct {
	UDPPort     int    `yaml:"udp_port"`
	BindAddress string `yaml:"bind_address"`
	BufferSize  int    `yaml:"buffer_size"`
}

// HTTPConfig contains the monitoring HTTP server configuration.
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// OutputConfig controls where the collector writes finished utterances.
type OutputConfig struct {
	RecordingsDir string `yaml:"recordings_dir"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// LoadNode reads and validates a node configuration file.
func LoadNode(path string) (*NodeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg NodeConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadCollector reads and validates a collector configuration file.
func LoadCollector(path string) (*CollectorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg CollectorConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate performs validation of the node configuration.
func (c *NodeConfig) Validate() error {
	if err := c.Node.Validate(); err != nil {
		return fmt.Errorf("node config: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}
	if err := c.Link.Validate(); err != nil {
		return fmt.Errorf("link config: %w", err)
	}
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	// The header must leave room for at least one payload sample.
	const headerSize = 18
	if c.Node.MTU < headerSize+2 {
		return fmt.Errorf("node config: mtu %d leaves no payload room (minimum %d)", c.Node.MTU, headerSize+2)
	}

	return nil
}

// Validate performs validation of the collector configuration.
func (c *CollectorConfig) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if c.Output.RecordingsDir == "" {
		return fmt.Errorf("output config: recordings_dir cannot be empty")
	}
	if len(c.Devices) == 0 {
		return fmt.Errorf("devices config: at least one device must be declared")
	}
	if c.Audio.StreamTimeout < 1 {
		return fmt.Errorf("audio config: stream_timeout must be at least 1 second, got %d", c.Audio.StreamTimeout)
	}

	return nil
}

// Validate validates the node identity and endpoints.
func (n *NodeSection) Validate() error {
	if n.DeviceID == 0 {
		return fmt.Errorf("device_id must be positive")
	}
	if n.LocalPort < 1 || n.LocalPort > 65535 {
		return fmt.Errorf("local_port must be between 1 and 65535, got %d", n.LocalPort)
	}
	if n.CollectorAddress == "" {
		return fmt.Errorf("collector_address cannot be empty")
	}
	if n.CollectorPort < 1 || n.CollectorPort > 65535 {
		return fmt.Errorf("collector_port must be between 1 and 65535, got %d", n.CollectorPort)
	}
	if n.MTU < 64 {
		return fmt.Errorf("mtu must be at least 64 bytes, got %d", n.MTU)
	}
	if n.PacingDelayMs < 0 {
		return fmt.Errorf("pacing_delay_ms cannot be negative, got %d", n.PacingDelayMs)
	}
	return nil
}

// Validate validates the PCM parameters.
func (a *AudioConfig) Validate() error {
	if a.SampleRate != 16000 {
		return fmt.Errorf("sample_rate must be 16000 Hz, got %d", a.SampleRate)
	}
	if a.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", a.Channels)
	}
	if a.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16, got %d", a.BitDepth)
	}
	if a.FrameSamples != 0 && (a.FrameSamples < 64 || a.FrameSamples > 4096) {
		return fmt.Errorf("frame_samples must be between 64 and 4096, got %d", a.FrameSamples)
	}
	return nil
}

// Validate validates the detector tuning.
func (v *VADConfig) Validate() error {
	if v.EnergyThreshold == 0 {
		return fmt.Errorf("energy_threshold must be positive")
	}
	if v.MinVoiceFrames < 1 {
		return fmt.Errorf("min_voice_frames must be at least 1, got %d", v.MinVoiceFrames)
	}
	if v.SilenceFrames < 1 {
		return fmt.Errorf("silence_frames must be at least 1, got %d", v.SilenceFrames)
	}
	return nil
}

// Validate validates the backoff tuning. Zero values select the defaults.
func (l *LinkConfig) Validate() error {
	if l.InitialBackoffMs < 0 || l.MaxBackoffMs < 0 || l.MaxRetries < 0 {
		return fmt.Errorf("backoff values cannot be negative")
	}
	if l.MaxBackoffMs > 0 && l.MaxBackoffMs < l.InitialBackoffMs {
		return fmt.Errorf("max_backoff_ms %d below initial_backoff_ms %d", l.MaxBackoffMs, l.InitialBackoffMs)
	}
	return nil
}

// Validate validates the UDP listener configuration.
func (s *ServerConfig) Validate() error {
	if s.UDPPort < 1 || s.UDPPort > 65535 {
		return fmt.Errorf("udp_port must be between 1 and 65535, got %d", s.UDPPort)
	}
	if s.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}
	if s.BufferSize < 1024 {
		return fmt.Errorf("buffer_size must be at least 1024 bytes, got %d", s.BufferSize)
	}
	return nil
}

// Validate validates the HTTP configuration.
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}
		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when enabled")
		}
	}
	return nil
}

// Validate validates the logging configuration.
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetPacingDelay returns the inter-packet pacing delay as a time.Duration.
func (n *NodeSection) GetPacingDelay() time.Duration {
	return time.Duration(n.PacingDelayMs) * time.Millisecond
}

// GetStreamTimeoutDuration returns the utterance inactivity timeout.
func (a *AudioConfig) GetStreamTimeoutDuration() time.Duration {
	return time.Duration(a.StreamTimeout) * time.Second
}

// GetInitialBackoff returns the initial reconnect backoff.
func (l *LinkConfig) GetInitialBackoff() time.Duration {
	return time.Duration(l.InitialBackoffMs) * time.Millisecond
}

// GetMaxBackoff returns the reconnect backoff ceiling.
func (l *LinkConfig) GetMaxBackoff() time.Duration {
	return time.Duration(l.MaxBackoffMs) * time.Millisecond
}
