package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/cloudmirror/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagSync       string
	flagJSON       bool
	flagVerbose    bool
	flagDebug      bool
	flagQuiet      bool
)

// resolvedCfg is the effective configuration after file, environment, and
// flag resolution, populated by PersistentPreRunE before any RunE executes.
var resolvedCfg *config.Config

// newRootCmd builds and returns the fully-assembled root command. Running
// the bare root with -s/--sync starts the supervisor loop for that provider;
// without it, usage is printed.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "cloudmirror",
		Short:   "Bidirectional directory-to-bucket sync",
		Long:    "cloudmirror keeps a local directory continuously reconciled with a remote bucket prefix, propagating creations, modifications, and deletions in both directions.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			provider := selectedProvider()
			if provider == "" {
				return cmd.Help()
			}

			return runSync(cmd.Context(), provider, syncOptions{})
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVarP(&flagSync, "sync", "s", "", "provider to sync continuously")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "show detailed output")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// selectedProvider returns the provider named by --sync, falling back to the
// CLOUDMIRROR_SYNC environment variable.
func selectedProvider() string {
	if flagSync != "" {
		return flagSync
	}

	return config.ReadEnvOverrides().Provider
}

// loadConfig resolves the config file path (flag > environment > platform
// default), loads it, and stores the result for RunE handlers.
func loadConfig(_ *cobra.Command) error {
	logger := buildLogger(nil)

	env := config.ReadEnvOverrides()
	cfgPath := config.ResolveConfigPath(env, flagConfigPath, logger)

	cfg, err := config.LoadOrDefault(cfgPath, logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = cfg

	return nil
}

// buildLogger creates an slog.Logger from the config-file log level with CLI
// flags layered on top (flags always win; they are mutually exclusive).
// Interactive terminals get the human-readable text handler; redirected
// output gets JSON so log collectors see structured records.
func buildLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelWarn

	if cfg != nil {
		switch cfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelInfo
	}

	if flagDebug {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
