package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestValidate_Defaults checks that an empty configuration gets the reference decoder settings.
func TestValidate_Defaults(t *testing.T) {
	t.Parallel()

	cfg := new(Config)
	require.NoError(t, Validate(cfg))

	require.Equal(t, SourceStdin, cfg.Audio.Source)
	require.Equal(t, DefaultSampleRate, cfg.Audio.SampleRate)
	require.Equal(t, DefaultBlockSize, cfg.Audio.BlockSize)
	require.Equal(t, WindowRectangular, cfg.Audio.Window)
	require.InDelta(t, DefaultSquelch, cfg.Detector.Squelch, 1e-12)
	require.Equal(t, DefaultToneA, cfg.Detector.ToneA)
	require.Equal(t, DefaultToneB, cfg.Detector.ToneB)
	require.Equal(t, DefaultListenAddress, cfg.Alert.ListenAddress)
	require.Equal(t, DefaultHeartbeatTimeout, cfg.Alert.HeartbeatTimeout)
	require.Equal(t, DefaultSweepInterval, cfg.Alert.SweepInterval)
	require.Equal(t, DefaultPingInterval, cfg.Listener.PingInterval)
	require.InDelta(t, DefaultTolerance, cfg.Tolerance, 1e-12)
}

// TestValidate_Rejects covers the settings the detector refuses to start with.
func TestValidate_Rejects(t *testing.T) {
	t.Parallel()

	cases := map[string]func(*Config){
		"bad log level":     func(c *Config) { c.LogLevel = "loud" },
		"unknown source":    func(c *Config) { c.Audio.Source = "alsa" },
		"file without path": func(c *Config) { c.Audio.Source = SourceFile },
		"rtp without addr":  func(c *Config) { c.Audio.Source = SourceRTP },
		"block not pow2":    func(c *Config) { c.Audio.BlockSize = 3000 },
		"negative rate":     func(c *Config) { c.Audio.SampleRate = -1 },
		"unknown window":    func(c *Config) { c.Audio.Window = "kaiser" },
		"negative squelch":  func(c *Config) { c.Detector.Squelch = -0.5 },
		"a min above max": func(c *Config) {
			c.Detector.ToneA = Window{Min: time.Second, Max: 500 * time.Millisecond}
		},
		"b min equals max": func(c *Config) {
			c.Detector.ToneB = Window{Min: time.Second, Max: time.Second}
		},
		"enabled without secret": func(c *Config) { c.Alert.Enabled = true },
		"bad listen address":     func(c *Config) { c.Alert.ListenAddress = "nowhere:port" },
		"negative tolerance":     func(c *Config) { c.Tolerance = -1 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg := new(Config)
			mutate(cfg)
			require.Error(t, Validate(cfg))
		})
	}

	require.Error(t, Validate(nil))
}

// TestValidate_ListenerSecretFallsBack ensures a single-host setup needs the secret only once.
func TestValidate_ListenerSecretFallsBack(t *testing.T) {
	t.Parallel()

	cfg := &Config{Alert: Alert{Enabled: true, Secret: "secret"}}
	require.NoError(t, Validate(cfg))
	require.Equal(t, "secret", cfg.Listener.Secret)
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.yaml")

	cfg := &Config{
		LogLevel: "debug",
		Audio: Audio{
			Source:     SourceRTP,
			RTPAddress: "239.1.2.3:5004",
			SampleRate: 12000,
			BlockSize:  2048,
			Window:     "HANN",
		},
		Detector: Detector{
			Squelch: 0.25,
			ToneA:   Window{Min: 800 * time.Millisecond, Max: 1200 * time.Millisecond},
		},
		Alert: Alert{Enabled: true, Secret: "secret", ListenAddress: "127.0.0.1:11001"},
		Tones: []TonePair{{Alias: "Station 1", ToneA: 349.0, ToneB: 433.7}},
		MQTT:  MQTT{Broker: "tcp://127.0.0.1:1883"},
	}

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
	require.Equal(t, WindowHann, loaded.Audio.Window)
	require.Equal(t, DefaultMQTTTopic, loaded.MQTT.Topic)

	_, err = os.Stat(path)
	require.NoError(t, err)
}

// TestLoad_DurationStrings checks the human-friendly duration form used in the sample settings.
func TestLoad_DurationStrings(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.yaml")
	contents := []byte(`
detector:
  tone_a: {min: 600ms, max: 1s}
  tone_b: {min: 2s, max: 3.5s}
alert:
  heartbeat_timeout: 20s
`)
	require.NoError(t, os.WriteFile(path, contents, DefaultFilePermissions))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, Window{Min: 600 * time.Millisecond, Max: time.Second}, cfg.Detector.ToneA)
	require.Equal(t, Window{Min: 2 * time.Second, Max: 3500 * time.Millisecond}, cfg.Detector.ToneB)
	require.Equal(t, 20*time.Second, cfg.Alert.HeartbeatTimeout)
}
