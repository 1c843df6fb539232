package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"toolgate/internal/infra/catalog"
)

func newValidateCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the config file without contacting any endpoint",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := catalog.NewLoader(opts.logger).Load(opts.configPath)
			if err != nil {
				return exitWith(1, fmt.Sprintf("config invalid: %v", err))
			}
			if opts.jsonOutput {
				return writeJSON(map[string]any{
					"valid":     true,
					"endpoints": len(cfg.Endpoints),
					"enabled":   len(cfg.Enabled()),
				})
			}
			fmt.Printf("config valid: %d endpoints (%d enabled)\n", len(cfg.Endpoints), len(cfg.Enabled()))
			return nil
		},
	}
}
