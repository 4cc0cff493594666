package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/snapcache/internal/cache"
)

func newEvictCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "evict URL",
		Short: "Remove a cached snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := cache.ParseKey(args[0])
			if err != nil {
				return err
			}
			srv, _, err := flags.open()
			if err != nil {
				return err
			}
			defer srv.Close()

			if err := srv.Cache().Evict(cmd.Context(), key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "evicted\t%s\n", key)
			return nil
		},
	}
}

func newListCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached pages (sqlite backend)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, _, err := flags.open()
			if err != nil {
				return err
			}
			defer srv.Close()

			keys, err := srv.Keys(cmd.Context())
			if err != nil {
				return err
			}
			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}
}
