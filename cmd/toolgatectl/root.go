package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"toolgate/internal/app"
)

type cliOptions struct {
	configPath string
	endpoint   string
	jsonOutput bool
	verbose    bool
	logger     *zap.Logger
}

func newRootCommand() *cobra.Command {
	opts := cliOptions{
		configPath: "toolgate.yaml",
		logger:     zap.NewNop(),
	}

	root := &cobra.Command{
		Use:   "toolgatectl",
		Short: "Resilient client gateway for HTTP tool servers",
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if opts.verbose {
				logger, err := zap.NewDevelopment()
				if err != nil {
					return err
				}
				opts.logger = logger
			}
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			_ = opts.logger.Sync()
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", opts.configPath, "path to the endpoint config file")
	root.PersistentFlags().StringVar(&opts.endpoint, "endpoint", "", "endpoint name from the config, or a literal URL")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "output JSON")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log to stderr")

	root.AddCommand(
		newToolsCmd(&opts),
		newCallCmd(&opts),
		newRunCmd(&opts),
		newMonitorCmd(&opts),
		newValidateCmd(&opts),
	)

	return root
}

// newApp wires the gateway for one command invocation.
func newApp(opts *cliOptions, enableMetrics bool) (*app.App, error) {
	return app.New(app.Options{
		ConfigPath:    opts.configPath,
		Logger:        opts.logger,
		EnableMetrics: enableMetrics,
	})
}

func signalAwareContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
