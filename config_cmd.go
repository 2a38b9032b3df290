package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/cloudmirror/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigProvidersCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		RunE:  runConfigShow,
	}
}

func runConfigShow(_ *cobra.Command, _ []string) error {
	if resolvedCfg == nil {
		return fmt.Errorf("no configuration loaded")
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(resolvedCfg)
	}

	return config.RenderEffective(resolvedCfg, os.Stdout)
}

func newConfigProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List configured sync providers",
		RunE:  runConfigProviders,
	}
}

func runConfigProviders(_ *cobra.Command, _ []string) error {
	if resolvedCfg == nil {
		return fmt.Errorf("no configuration loaded")
	}

	names := make([]string, 0, len(resolvedCfg.Providers))
	for name := range resolvedCfg.Providers {
		names = append(names, name)
	}

	sort.Strings(names)

	rows := make([][]string, 0, len(names))

	for _, name := range names {
		rp, err := config.ResolveProvider(resolvedCfg, name)
		if err != nil {
			return err
		}

		maxSize, err := config.ParseSize(rp.Filter.MaxFileSize)
		if err != nil {
			return err
		}

		rows = append(rows, []string{name, rp.Backend, rp.LocalPath, rp.CloudPath, formatSize(maxSize)})
	}

	printTable(os.Stdout, []string{"NAME", "BACKEND", "LOCAL", "CLOUD", "MAX FILE"}, rows)
	statusf("%d provider(s) configured\n", len(names))

	return nil
}
