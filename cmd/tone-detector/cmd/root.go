package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/tone-alert/internal/audio"
	"github.com/oshokin/tone-alert/internal/config"
	"github.com/oshokin/tone-alert/internal/service/server"
	"github.com/oshokin/tone-alert/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// source overrides the audio source kind.
	source string
	// input overrides the audio file path or RTP address.
	input string

	// rootCmd represents the base command for running the detector.
	rootCmd = &cobra.Command{
		Use:   "tone-detector [listen-address]",
		Short: "Decode two-tone pages and alert remote listeners.",
		Long: `Decodes sequential two-tone pages from an audio stream and distributes them.

Audio is raw signed 16-bit mono PCM from stdin or a file, or L16 over RTP.
Every detected tone pair is logged, matched against the known pagers table,
sent to authenticated listeners over UDP and optionally published to MQTT.
The UDP listen address can be provided as argument, which also enables the
alert server (e.g., :11000, 0.0.0.0:11000).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use listen address argument if provided, otherwise rely on config.
			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			options := &server.Options{
				ConfigPath:    configPath,
				ListenAddress: listenAddress,
				Source:        source,
				Input:         input,
			}

			return server.Run(ctx, options)
		},
	}

	// devicesCmd lists the capture devices of the host.
	devicesCmd = &cobra.Command{
		Use:   "devices",
		Short: "List audio capture devices.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			devices, err := audio.ListDevices()
			if err != nil {
				return err
			}

			for _, d := range devices {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), d.String())
			}

			return nil
		},
	}
)

// Execute runs the tone-detector CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)
	rootCmd.AddCommand(devicesCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVar(&source, "source", "", "audio source: stdin, file or rtp")
	rootCmd.Flags().StringVarP(&input, "input", "i", "", "PCM file path, or RTP address with --source rtp")
}
