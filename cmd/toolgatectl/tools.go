package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"toolgate/internal/infra/client"
)

func newToolsCmd(opts *cliOptions) *cobra.Command {
	var noCache bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools an endpoint advertises",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			gateway, err := newApp(opts, false)
			if err != nil {
				return err
			}
			defer gateway.Close()

			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()

			listOpts := client.ListOptions{NoCache: noCache}

			if opts.endpoint != "" {
				spec, headers, err := gateway.ResolveEndpoint(ctx, opts.endpoint)
				if err != nil {
					return err
				}
				tools, err := gateway.Client().ListToolsWithOptions(ctx, spec.URL, headers, listOpts)
				if err != nil {
					return exitWith(1, fmt.Sprintf("list tools for %s: %v", spec.Name, err))
				}
				return printTools(spec.Name, tools, opts.jsonOutput)
			}

			cfg := gateway.Config()
			enabled := cfg.Enabled()
			if len(enabled) == 0 {
				return exitWith(1, "no enabled endpoints in config")
			}
			failed := 0
			for _, spec := range enabled {
				headers, err := cfg.Credentials().Headers(ctx, spec.URL)
				if err != nil {
					return err
				}
				tools, err := gateway.Client().ListToolsWithOptions(ctx, spec.URL, headers, listOpts)
				if err != nil {
					failed++
					fmt.Printf("endpoint=%s error=%v\n", spec.Name, err)
					continue
				}
				if err := printTools(spec.Name, tools, opts.jsonOutput); err != nil {
					return err
				}
			}
			if failed > 0 {
				return exitError{code: 1, silent: true}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noCache, "no-cache", false, "skip the cached listing and query the endpoint live")

	return cmd
}
