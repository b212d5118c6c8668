package config

import (
	"errors"
	"fmt"
	"math/bits"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every setting consumed by the binaries.
type Config struct {
	// LogLevel is the minimum level written to the console.
	LogLevel string `yaml:"log_level"`
	// Audio selects and shapes the capture source.
	Audio Audio `yaml:"audio"`
	// Detector holds the tone timing protocol.
	Detector Detector `yaml:"detector"`
	// Alert configures the UDP distribution server.
	Alert Alert `yaml:"alert"`
	// Tones is the table of known pagers matched against detected pairs.
	Tones []TonePair `yaml:"tones"`
	// Tolerance is the maximum distance in Hz between a detected and a known tone.
	Tolerance float64 `yaml:"tolerance"`
	// Metrics configures the Prometheus endpoint.
	Metrics Endpoint `yaml:"metrics"`
	// Health configures the gRPC health endpoint.
	Health Endpoint `yaml:"health"`
	// MQTT configures the optional broker fan-out.
	MQTT MQTT `yaml:"mqtt"`
	// Listener holds the peer client settings used by tone-listener.
	Listener Listener `yaml:"listener"`
}

// Audio describes where samples come from and how they are cut into blocks.
type Audio struct {
	// Source is one of SourceStdin, SourceFile or SourceRTP.
	Source string `yaml:"source"`
	// Path is the raw PCM file read by SourceFile.
	Path string `yaml:"path,omitempty"`
	// RTPAddress is the UDP group or unicast address read by SourceRTP.
	RTPAddress string `yaml:"rtp_address,omitempty"`
	// RTPSSRC filters RTP packets by stream, zero accepts any stream.
	RTPSSRC uint32 `yaml:"rtp_ssrc,omitempty"`
	// SampleRate is the sample rate in Hz.
	SampleRate int `yaml:"sample_rate"`
	// BlockSize is the FFT length in samples, a power of two.
	BlockSize int `yaml:"block_size"`
	// Window is the FFT window, WindowRectangular or WindowHann.
	Window string `yaml:"window"`
}

// Window is a [Min, Max] hold duration.
type Window struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
}

// Detector holds the squelch and hold windows.
type Detector struct {
	// Squelch is the spectral magnitude at or below which the channel is silent.
	Squelch float64 `yaml:"squelch"`
	// ToneA is the hold window of the first tone.
	ToneA Window `yaml:"tone_a"`
	// ToneB is the hold window of the second tone.
	ToneB Window `yaml:"tone_b"`
	// QueueSize bounds the events buffered between the audio path and consumers.
	QueueSize int `yaml:"queue_size"`
}

// Alert configures the UDP alert server.
type Alert struct {
	// Enabled starts the server together with the detector.
	Enabled bool `yaml:"enabled"`
	// ListenAddress is the UDP address the server binds.
	ListenAddress string `yaml:"listen_address"`
	// Secret is the shared token peers prove knowledge of.
	Secret string `yaml:"secret"`
	// HeartbeatTimeout expires peers that stopped pinging.
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"`
	// SweepInterval is how often stale peers are expired.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// TonePair is a known pager address.
type TonePair struct {
	Alias string  `yaml:"alias"`
	ToneA float64 `yaml:"tone_a"`
	ToneB float64 `yaml:"tone_b"`
}

// Endpoint is an optional listen address; empty disables the endpoint.
type Endpoint struct {
	ListenAddress string `yaml:"listen_address"`
}

// MQTT configures the broker that receives tone pairs.
type MQTT struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Listener configures the peer client.
type Listener struct {
	// ServerAddress is the host:port of the alert server.
	ServerAddress string `yaml:"server_address"`
	// NodeID is the identity announced in AUTH.
	NodeID string `yaml:"node_id"`
	// Secret is the shared token, the alert secret is used when empty.
	Secret string `yaml:"secret"`
	// PingInterval is the delay between heartbeats.
	PingInterval time.Duration `yaml:"ping_interval"`
	// OnReport is a command run for every tone report, with the frequencies
	// in TONE_FREQUENCY_A and TONE_FREQUENCY_B.
	OnReport []string `yaml:"on_report,omitempty"`
}

// Audio source kinds.
const (
	SourceStdin = "stdin"
	SourceFile  = "file"
	SourceRTP   = "rtp"
)

// FFT windows.
const (
	WindowRectangular = "rectangular"
	WindowHann        = "hann"
)

const (
	// DefaultConfigFilename is the default settings file name.
	DefaultConfigFilename = "tone-alert-settings.yaml"

	// DefaultFilePermissions is the permission used when saving settings.
	DefaultFilePermissions = 0o600

	// DefaultSampleRate is the capture rate of the reference decoder.
	DefaultSampleRate = 44100
	// DefaultBlockSize is the FFT length of the reference decoder.
	DefaultBlockSize = 4096
	// DefaultSquelch is the silence threshold of the reference decoder.
	DefaultSquelch = 0.1
	// DefaultQueueSize bounds the event queue.
	DefaultQueueSize = 64
	// DefaultTolerance is the tone matching tolerance in Hz.
	DefaultTolerance = 5.0

	// DefaultListenAddress is the UDP alert endpoint.
	DefaultListenAddress = ":11000"
	// DefaultHeartbeatTimeout expires silent peers.
	DefaultHeartbeatTimeout = 15 * time.Second
	// DefaultSweepInterval is the stale peer sweep cadence.
	DefaultSweepInterval = 10 * time.Second
	// DefaultPingInterval is the listener heartbeat cadence.
	DefaultPingInterval = 5 * time.Second
	// DefaultMQTTTopic receives tone pairs when MQTT is enabled.
	DefaultMQTTTopic = "tone-alert/pairs"
)

// Default QuickCall II hold windows.
var (
	//nolint:gochecknoglobals // Read-only defaults.
	DefaultToneA = Window{Min: 700 * time.Millisecond, Max: time.Second}
	//nolint:gochecknoglobals // Read-only defaults.
	DefaultToneB = Window{Min: 2500 * time.Millisecond, Max: 3 * time.Second}
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errUnknownSource is returned for an unsupported audio source.
	errUnknownSource = errors.New("unknown audio source")
	// errSourcePathRequired is returned when the file source has no path.
	errSourcePathRequired = errors.New("audio path must be provided for file source")
	// errRTPAddressRequired is returned when the RTP source has no address.
	errRTPAddressRequired = errors.New("rtp address must be provided for rtp source")
	// errUnknownWindow is returned for an unsupported FFT window.
	errUnknownWindow = errors.New("unknown fft window")
	// errBlockSize is returned when the FFT length is not a power of two.
	errBlockSize = errors.New("block size must be a positive power of two")
	// errNegative is returned for negative numeric settings.
	errNegative = errors.New("value must not be negative")
	// errWindowOrder is returned when a hold window is not 0 < min < max.
	errWindowOrder = errors.New("hold window must satisfy 0 < min < max")
	// errSecretRequired is returned when the alert server has no secret.
	errSecretRequired = errors.New("alert secret must be provided")
	// errSweepInterval is returned when peers could never be swept in time.
	errSweepInterval = errors.New("sweep interval must be positive")
	// errBadLogLevel is returned when log_level is unrecognised.
	errBadLogLevel = errors.New("unknown log level")
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := new(Config)

	//nolint:errcheck // An empty configuration always validates.
	_ = Validate(cfg)

	return cfg
}

// Load reads configuration from the provided path and validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes cfg to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate fills defaults and rejects settings the detector cannot run with.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if _, ok := parseLevel(cfg.LogLevel); !ok {
		return fmt.Errorf("%w: %q", errBadLogLevel, cfg.LogLevel)
	}

	if err := validateAudio(&cfg.Audio); err != nil {
		return fmt.Errorf("audio: %w", err)
	}

	if err := validateDetector(&cfg.Detector); err != nil {
		return fmt.Errorf("detector: %w", err)
	}

	if err := validateAlert(&cfg.Alert); err != nil {
		return fmt.Errorf("alert: %w", err)
	}

	switch {
	case cfg.Tolerance < 0:
		return fmt.Errorf("tolerance: %w", errNegative)
	case cfg.Tolerance == 0:
		cfg.Tolerance = DefaultTolerance
	}

	if cfg.MQTT.Broker != "" && cfg.MQTT.Topic == "" {
		cfg.MQTT.Topic = DefaultMQTTTopic
	}

	if cfg.Listener.PingInterval <= 0 {
		cfg.Listener.PingInterval = DefaultPingInterval
	}

	if cfg.Listener.Secret == "" {
		cfg.Listener.Secret = cfg.Alert.Secret
	}

	return nil
}

func validateAudio(a *Audio) error {
	if a.Source == "" {
		a.Source = SourceStdin
	}

	switch a.Source {
	case SourceStdin:
	case SourceFile:
		if a.Path == "" {
			return errSourcePathRequired
		}
	case SourceRTP:
		if a.RTPAddress == "" {
			return errRTPAddressRequired
		}

		if _, err := net.ResolveUDPAddr("udp", a.RTPAddress); err != nil {
			return fmt.Errorf("invalid rtp address: %w", err)
		}
	default:
		return fmt.Errorf("%w: %q", errUnknownSource, a.Source)
	}

	switch {
	case a.SampleRate < 0:
		return fmt.Errorf("sample rate: %w", errNegative)
	case a.SampleRate == 0:
		a.SampleRate = DefaultSampleRate
	}

	if a.BlockSize == 0 {
		a.BlockSize = DefaultBlockSize
	}

	if a.BlockSize < 0 || bits.OnesCount(uint(a.BlockSize)) != 1 {
		return fmt.Errorf("%w: %d", errBlockSize, a.BlockSize)
	}

	if a.Window == "" {
		a.Window = WindowRectangular
	}

	switch strings.ToLower(a.Window) {
	case WindowRectangular, WindowHann:
		a.Window = strings.ToLower(a.Window)
	default:
		return fmt.Errorf("%w: %q", errUnknownWindow, a.Window)
	}

	return nil
}

func validateDetector(d *Detector) error {
	switch {
	case d.Squelch < 0:
		return fmt.Errorf("squelch: %w", errNegative)
	case d.Squelch == 0:
		d.Squelch = DefaultSquelch
	}

	if err := validateWindow(&d.ToneA, DefaultToneA); err != nil {
		return fmt.Errorf("tone_a: %w", err)
	}

	if err := validateWindow(&d.ToneB, DefaultToneB); err != nil {
		return fmt.Errorf("tone_b: %w", err)
	}

	switch {
	case d.QueueSize < 0:
		return fmt.Errorf("queue size: %w", errNegative)
	case d.QueueSize == 0:
		d.QueueSize = DefaultQueueSize
	}

	return nil
}

func validateWindow(w *Window, fallback Window) error {
	if w.Min == 0 && w.Max == 0 {
		*w = fallback
	}

	if w.Min <= 0 || w.Min >= w.Max {
		return fmt.Errorf("%w: [%s, %s]", errWindowOrder, w.Min, w.Max)
	}

	return nil
}

func validateAlert(a *Alert) error {
	if a.ListenAddress == "" {
		a.ListenAddress = DefaultListenAddress
	}

	if _, err := net.ResolveUDPAddr("udp", a.ListenAddress); err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}

	if a.Enabled && a.Secret == "" {
		return errSecretRequired
	}

	switch {
	case a.HeartbeatTimeout < 0:
		return fmt.Errorf("heartbeat timeout: %w", errNegative)
	case a.HeartbeatTimeout == 0:
		a.HeartbeatTimeout = DefaultHeartbeatTimeout
	}

	switch {
	case a.SweepInterval < 0:
		return errSweepInterval
	case a.SweepInterval == 0:
		a.SweepInterval = DefaultSweepInterval
	}

	return nil
}

// parseLevel mirrors logger.ParseLogLevel without importing zap into config.
func parseLevel(s string) (string, bool) {
	level := strings.ToLower(strings.TrimSpace(s))
	switch level {
	case "", "debug", "info", "warn", "warning", "error", "fatal":
		return level, true
	default:
		return level, false
	}
}
