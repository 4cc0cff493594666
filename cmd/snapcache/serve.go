package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var grace time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, _, err := flags.open()
			if err != nil {
				return err
			}
			logger := srv.Logger()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigChan)

			errChan := make(chan error, 1)
			go func() {
				errChan <- srv.Run()
			}()

			select {
			case sig := <-sigChan:
				logger.Info("Shutting down gracefully", zap.String("signal", sig.String()))
			case err := <-errChan:
				if err != nil {
					logger.Error("Server error", zap.Error(err))
					_ = srv.Close()
					return err
				}
			}

			ctx, cancel := context.WithTimeout(context.Background(), grace)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", 15*time.Second, "Time allowed for in-flight requests and builds on shutdown")
	return cmd
}
