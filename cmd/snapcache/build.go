package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/snapcache/internal/server"
	"github.com/GriffinCanCode/snapcache/internal/task"
)

type buildFlags struct {
	alwaysRebuild bool
	timeout       time.Duration
}

func newBuildCmd(flags *rootFlags) *cobra.Command {
	opts := &buildFlags{}

	cmd := &cobra.Command{
		Use:   "build URL...",
		Short: "Build snapshots for the given pages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, cfg, err := flags.open()
			if err != nil {
				return err
			}
			defer srv.Close()

			buildOpts := server.BuildOptions(cfg, srv.Logger().Component("build"))
			buildOpts.AlwaysRebuild = buildOpts.AlwaysRebuild || opts.alwaysRebuild

			builds := make([]*task.Task, 0, len(args))
			for _, raw := range args {
				req, err := http.NewRequest(http.MethodGet, raw, nil)
				if err != nil {
					return fmt.Errorf("invalid url %q: %w", raw, err)
				}
				builds = append(builds, srv.Builds().Submit(req, buildOpts))
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			failed := 0
			for _, b := range builds {
				if _, err := b.Wait(ctx); err != nil {
					return fmt.Errorf("waiting for %s: %w", b.Key(), err)
				}
				status := b.Status()
				switch {
				case status.State != task.Completed:
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", status.State, status.URL, status.Error)
				case status.AlreadyCached:
					fmt.Fprintf(cmd.OutOrStdout(), "cached\t%s\n", status.URL)
				default:
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tunresolved=%d\n", status.State, status.URL, status.Unresolved)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d builds did not complete", failed, len(builds))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.alwaysRebuild, "always-rebuild", false, "Rebuild even when a snapshot exists")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Minute, "Maximum time to wait for all builds")
	return cmd
}
