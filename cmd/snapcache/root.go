package main

import (
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/snapcache/internal/infrastructure/config"
	"github.com/GriffinCanCode/snapcache/internal/infrastructure/logging"
	"github.com/GriffinCanCode/snapcache/internal/server"
)

// rootFlags are shared by every subcommand.
type rootFlags struct {
	config string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "snapcache",
		Short: "Offline page snapshot cache",
		Long: `snapcache fetches web pages, inlines their stylesheets, scripts and
images, and keeps the self-contained result for offline reading.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&flags.config, "config", "c", "", "Path to a YAML configuration file")

	cmd.AddCommand(
		newServeCmd(flags),
		newBuildCmd(flags),
		newShowCmd(flags),
		newEvictCmd(flags),
		newListCmd(flags),
	)
	return cmd
}

// open loads configuration and wires a server without listening.
func (f *rootFlags) open() (*server.Server, *config.Config, error) {
	cfg, err := config.LoadFile(f.config)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.NewFromLevel(cfg.Logging.Level, cfg.Logging.Development)
	srv, err := server.New(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return srv, cfg, nil
}
