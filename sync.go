package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/cloudmirror/internal/config"
	"github.com/tonimelisma/cloudmirror/internal/objectstore"
	"github.com/tonimelisma/cloudmirror/internal/objectstore/fsstore"
	"github.com/tonimelisma/cloudmirror/internal/sync"
)

// syncOptions carries the sync command's flags into runSync. The zero value
// is the continuous supervisor loop.
type syncOptions struct {
	Once   bool
	DryRun bool
	Force  bool
}

func newSyncCmd() *cobra.Command {
	var opts syncOptions

	cmd := &cobra.Command{
		Use:   "sync <provider>",
		Short: "Synchronize a provider's local directory with its bucket",
		Long: `Run the reconciliation loop for the named provider: rebuild the remote
tree, pull remote changes down, rebuild the local tree, push local changes
up, persist the history snapshots, and sleep until the next cycle.

Use --once for a single cycle, --dry-run to preview actions without
executing them, and --force to override the big-delete protection.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Once, "once", false, "run a single cycle and exit")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "preview sync actions without executing")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "override big-delete safety threshold")

	cmd.AddCommand(newSyncNowCmd())

	return cmd
}

// newSyncNowCmd signals a running supervisor to start its next cycle
// immediately instead of waiting out the poll interval.
func newSyncNowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "now <provider>",
		Short: "Trigger an immediate cycle on a running sync",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if err := signalOwner(pidFilePath(args[0]), syscall.SIGHUP); err != nil {
				return err
			}

			statusf("signalled %s to sync now\n", args[0])

			return nil
		},
	}
}

// runSync resolves the provider, constructs its adapter, and runs the
// supervisor until interrupted. Initialization failures (unknown provider,
// unreadable local root, unreachable bucket) surface as errors before the
// loop starts; a clean interrupt returns nil.
func runSync(ctx context.Context, providerName string, opts syncOptions) error {
	logger := buildLogger(resolvedCfg)

	provider, err := config.ResolveProvider(resolvedCfg, providerName)
	if err != nil {
		return err
	}

	adapter, closeAdapter, err := buildAdapter(ctx, provider, logger)
	if err != nil {
		return err
	}
	defer closeAdapter()

	// One supervisor per provider at a time; a second invocation for the
	// same provider fails fast instead of fighting over the trees.
	lock, err := acquirePIDFile(pidFilePath(provider.Name))
	if err != nil {
		return err
	}
	defer lock.Release()

	supervisor, err := sync.NewSupervisor(sync.SupervisorConfig{
		Provider: provider,
		Adapter:  adapter,
		Logger:   logger,
		Force:    opts.Force,
		DryRun:   opts.DryRun,
		Once:     opts.Once,
	})
	if err != nil {
		return err
	}

	logger.Info("starting sync",
		"provider", provider.Name,
		"local_path", provider.LocalPath,
		"cloud_path", provider.CloudPath,
		"dry_run", opts.DryRun,
	)
	statusf("syncing %s: %s <-> %s\n", provider.Name, provider.LocalPath, provider.CloudPath)

	runCtx := shutdownContext(ctx, logger)

	stopHUP := notifySyncNow(runCtx, supervisor)
	defer stopHUP()

	return supervisor.Run(runCtx)
}

// notifySyncNow forwards SIGHUP to the supervisor as an immediate-cycle
// nudge (`cloudmirror sync now <provider>` sends it). Returns a stop
// function that releases the signal handler.
func notifySyncNow(ctx context.Context, supervisor *sync.Supervisor) func() {
	sigCh := sighupChannel()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigCh:
				supervisor.Wake()
			}
		}
	}()

	return func() { signal.Stop(sigCh) }
}

// buildAdapter constructs the object-store adapter for a provider's backend
// and installs the bandwidth limiter when one is configured.
func buildAdapter(ctx context.Context, p *config.ResolvedProvider, logger *slog.Logger) (objectstore.Adapter, func(), error) {
	switch p.Backend {
	case config.BackendLocalDir:
		store, err := fsstore.Open(ctx, p.BucketDir, p.CloudPath, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("opening bucket directory: %w", err)
		}

		limiter, err := sync.NewBandwidthLimiter(p.Transfers, logger)
		if err != nil {
			store.Close()
			return nil, nil, err
		}

		if limiter != nil {
			store.SetLimiter(limiter)
		}

		return store, func() { store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("provider %q: no adapter for backend %q", p.Name, p.Backend)
	}
}

// pidFilePath returns the per-provider PID file location under the
// platform data directory.
func pidFilePath(provider string) string {
	return filepath.Join(config.DefaultDataDir(), "sync-"+provider+".pid")
}
