package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"toolgate/internal/domain"
)

func newCallCmd(opts *cliOptions) *cobra.Command {
	var argsJSON string

	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Invoke a single tool on an endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var arguments map[string]any
			if argsJSON != "" {
				if err := json.Unmarshal([]byte(argsJSON), &arguments); err != nil {
					return fmt.Errorf("parse --args: %w", err)
				}
			}

			gateway, err := newApp(opts, false)
			if err != nil {
				return err
			}
			defer gateway.Close()

			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()

			spec, headers, err := gateway.ResolveEndpoint(ctx, opts.endpoint)
			if err != nil {
				return err
			}

			result := gateway.Client().CallTool(ctx, spec.URL, domain.CallRequest{
				Tool:      args[0],
				Arguments: arguments,
			}, headers)
			if err := printCallResult(result, opts.jsonOutput); err != nil {
				return err
			}
			if !result.IsSuccess() {
				return exitError{code: 1, silent: true}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&argsJSON, "args", "", "tool arguments as a JSON object")

	return cmd
}
