package main

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/snapcache/internal/cache"
)

func newShowCmd(flags *rootFlags) *cobra.Command {
	var metadata bool

	cmd := &cobra.Command{
		Use:   "show URL",
		Short: "Print a cached snapshot",
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

			entry, ok := srv.Cache().Get(cmd.Context(), key)
			if !ok {
				return fmt.Errorf("%s is not cached", key)
			}
			if metadata {
				out, err := sonic.ConfigStd.MarshalIndent(entry, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			}
			_, err = cmd.OutOrStdout().Write(entry.HTML)
			return err
		},
	}
	cmd.Flags().BoolVar(&metadata, "metadata", false, "Print entry metadata as JSON instead of the document")
	return cmd
}
