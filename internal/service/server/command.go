package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/oshokin/tone-alert/internal/config"
	"github.com/oshokin/tone-alert/internal/logger"
)

// Options controls the tone-detector process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// ListenAddress overrides the alert listen address and enables the alert server.
	ListenAddress string
	// Source overrides the audio source kind.
	Source string
	// Input overrides the file path or RTP address of the audio source.
	Input string
}

// Run decodes pages until context is canceled or the audio input ends.
// Loads configuration first, then applies command line overrides.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "tone-detector")

	cfg, err := loadSettings(ctx, opts)
	if err != nil {
		return err
	}

	// Apply configured verbosity before anything else logs.
	if level, ok := logger.ParseLogLevel(cfg.LogLevel); ok {
		logger.SetLevel(level)
	}

	svc, err := New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialise service: %w", err)
	}

	return svc.Run(ctx)
}

// loadSettings reads the settings file and applies opts on top of it.
// A missing default settings file means built-in defaults.
func loadSettings(ctx context.Context, opts *Options) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)

	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist) && (opts.ConfigPath == "" || opts.ConfigPath == config.DefaultConfigFilename):
		logger.WarnKV(ctx, "Settings file not found, using defaults", "path", config.DefaultConfigFilename)

		cfg = config.Default()
	default:
		return nil, fmt.Errorf("load settings: %w", err)
	}

	applyOverrides(cfg, opts)

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate settings: %w", err)
	}

	return cfg, nil
}

// applyOverrides copies non-empty command line values into cfg.
func applyOverrides(cfg *config.Config, opts *Options) {
	if opts.Source != "" {
		cfg.Audio.Source = opts.Source
	}

	if opts.Input != "" {
		// Input means the RTP address for RTP and a file path otherwise.
		if cfg.Audio.Source == config.SourceRTP {
			cfg.Audio.RTPAddress = opts.Input
		} else {
			cfg.Audio.Source = config.SourceFile
			cfg.Audio.Path = opts.Input
		}
	}

	if opts.ListenAddress != "" {
		cfg.Alert.Enabled = true
		cfg.Alert.ListenAddress = opts.ListenAddress
	}
}
