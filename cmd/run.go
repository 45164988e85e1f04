package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zjrosen/registrar/internal/log"
	"github.com/zjrosen/registrar/internal/watcher"
)

var (
	runEvents  bool
	runEchoLog bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build the registry and keep it running",
	Long: `Build every contract and keep the registry alive until SIGINT or SIGTERM.

When a config file is in use it is watched; each change tears down every
object, reloads the configuration and runs the reload hooks (unless
registry.reset_on_config_change is false). On exit the registry is shut
down and every closeable object is closed in reverse creation order.

--events prints registry lifecycle events (objects created, resets).
--echo-log copies log lines to the output, useful when log.path is a file.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runEvents, "events", false, "print registry lifecycle events")
	runCmd.Flags().BoolVar(&runEchoLog, "echo-log", false, "copy log lines to the command output")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	r, app, err := newApp()
	if err != nil {
		return err
	}
	defer shutdown(r, app)

	out := &syncWriter{w: cmd.OutOrStdout()}
	followCtx, stopFollow := context.WithCancel(ctx)
	var followers []<-chan struct{}
	if runEvents {
		followers = append(followers, followLifecycle(followCtx, r, out))
	}
	if runEchoLog {
		followers = append(followers, echoLog(followCtx, out))
	}
	defer func() {
		stopFollow()
		for _, done := range followers {
			<-done
		}
	}()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("starting registry: %w", err)
	}
	if err := r.TestAllContracts(ctx); err != nil {
		log.Warn(log.CatCLI, "some contracts failed to build", "error", err)
	}

	var changes <-chan struct{}
	if cfgPath != "" {
		w, err := watcher.New(watcher.Config{Path: cfgPath, DebounceDur: cfg.Registry.WatchDebounce})
		if err != nil {
			return err
		}
		defer func() { _ = w.Stop() }()
		if changes, err = w.Start(); err != nil {
			return err
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	_, _ = fmt.Fprintf(out, "registry %s running with %d object(s)\n", r.ID(), len(r.Objects()))
	_, _ = fmt.Fprintln(out, "Press Ctrl+C to stop")

	for {
		select {
		case sig := <-sigCh:
			_, _ = fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
			return nil
		case <-ctx.Done():
			return nil
		case <-changes:
			current, err := app.Config.Get(ctx)
			if err == nil && !current.Registry.ResetOnConfigChange {
				log.Info(log.CatCLI, "config changed, reset disabled", "path", cfgPath)
				continue
			}
			if err := app.Reload(ctx); err != nil {
				log.ErrorErr(log.CatCLI, "reload failed", err, "path", cfgPath)
				continue
			}
			_, _ = fmt.Fprintf(out, "config reloaded, %d object(s)\n", len(r.Objects()))
		}
	}
}
