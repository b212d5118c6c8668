package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/tone-alert/internal/config"
	"github.com/oshokin/tone-alert/internal/service/listener"
	"github.com/oshokin/tone-alert/internal/version"
)

var (
	// configPath stores the path to the configuration YAML file.
	configPath string
	// nodeID overrides the announced identity.
	nodeID string

	// rootCmd represents the base command for listening to tone reports.
	rootCmd = &cobra.Command{
		Use:   "tone-listener [server-address]",
		Short: "Receive tone pair alerts from a tone-detector.",
		Long: `Authenticates with a tone-detector alert server and logs every tone pair it reports.

The listener pings the server at a fixed interval to keep its session alive and
authenticates again when the server stops answering.
Server address can be provided as argument or loaded from configuration file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use server address argument if provided, otherwise rely on config.
			var serverAddress string
			if len(args) > 0 {
				serverAddress = args[0]
			}

			listenerOptions := &listener.Options{
				ConfigPath:    configPath,
				ServerAddress: serverAddress,
				NodeID:        nodeID,
			}

			return listener.Run(ctx, listenerOptions)
		},
	}
)

// Execute runs the tone-listener CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&nodeID, "node-id", "n", "", "identity announced to the server (default user@host)")
}
