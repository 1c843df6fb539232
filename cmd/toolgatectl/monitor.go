package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
)

func newMonitorCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Probe endpoints on an interval and serve health and metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			gateway, err := newApp(opts, true)
			if err != nil {
				return err
			}
			defer gateway.Close()

			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()

			if err := gateway.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
