package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"toolgate/internal/domain"
	"toolgate/internal/infra/client"
)

// batchFile is the on-disk shape the run command consumes: a list of tool
// invocations executed against one endpoint with bounded concurrency.
type batchFile struct {
	MaxConcurrent int                  `json:"maxConcurrent,omitempty"`
	Calls         []domain.CallRequest `json:"calls"`
}

func newRunCmd(opts *cliOptions) *cobra.Command {
	var maxConcurrent int
	var noCache bool

	cmd := &cobra.Command{
		Use:   "run <batch-file>",
		Short: "Execute a batch of tool calls in parallel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read batch file: %w", err)
			}
			var batch batchFile
			if err := json.Unmarshal(raw, &batch); err != nil {
				return fmt.Errorf("parse batch file: %w", err)
			}
			if len(batch.Calls) == 0 {
				return exitWith(1, "batch file has no calls")
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

			limit := maxConcurrent
			if limit <= 0 {
				limit = batch.MaxConcurrent
			}
			if limit <= 0 {
				limit = spec.MaxConcurrent
			}

			if noCache {
				// Refresh discovery so argument validation sees the live
				// catalog rather than a possibly stale cached one.
				if _, err := gateway.Client().ListToolsWithOptions(ctx, spec.URL, headers, client.ListOptions{NoCache: true}); err != nil {
					return exitWith(1, fmt.Sprintf("refresh tool listing: %v", err))
				}
			}

			results := gateway.Client().CallToolsParallel(ctx, spec.URL, batch.Calls, limit, headers)
			if err := printBatchResults(results, opts.jsonOutput); err != nil {
				return err
			}
			for _, result := range results {
				if !result.IsSuccess() {
					return exitError{code: 1, silent: true}
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 0, "cap on in-flight calls (overrides the batch file and config)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "refresh the tool listing before validating the batch")

	return cmd
}
