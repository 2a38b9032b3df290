package config

import (
	"fmt"
	"strings"
	"time"
)

// Validate checks a decoded Config for internal consistency: every provider
// must name a local path and a cloud path (trailing "/" required, so the
// reconciliation core's path-prefix translation never has to guess a
// separator), a non-empty history prefix, a known backend, and any
// size-string fields must parse via ParseSize.
func Validate(cfg *Config) error {
	if err := validateSizeFields(cfg); err != nil {
		return err
	}

	for name, p := range cfg.Providers {
		if err := validateProvider(name, p); err != nil {
			return err
		}
	}

	return nil
}

func validateProvider(name string, p Provider) error {
	if name == "" {
		return fmt.Errorf("provider: name must not be empty")
	}

	if p.LocalPath == "" {
		return fmt.Errorf("provider %q: local_path must not be empty", name)
	}

	if !strings.HasSuffix(p.LocalPath, "/") {
		return fmt.Errorf("provider %q: local_path %q must end with \"/\"", name, p.LocalPath)
	}

	if p.CloudPath == "" {
		return fmt.Errorf("provider %q: cloud_path must not be empty", name)
	}

	if !strings.HasSuffix(p.CloudPath, "/") {
		return fmt.Errorf("provider %q: cloud_path %q must end with \"/\"", name, p.CloudPath)
	}

	if p.HistoryPath == "" {
		return fmt.Errorf("provider %q: history_path must not be empty", name)
	}

	switch p.Backend {
	case "", BackendLocalDir:
		if p.BucketDir == "" {
			return fmt.Errorf("provider %q: bucket_dir is required for the %s backend", name, BackendLocalDir)
		}
	default:
		return fmt.Errorf("provider %q: unknown backend %q", name, p.Backend)
	}

	if p.Filter != nil {
		if _, err := ParseSize(p.Filter.MaxFileSize); err != nil {
			return fmt.Errorf("provider %q: filter.max_file_size: %w", name, err)
		}
	}

	if p.Transfers != nil {
		if err := validateTransfers(p.Transfers); err != nil {
			return fmt.Errorf("provider %q: %w", name, err)
		}
	}

	if p.Safety != nil {
		if _, err := ParseSize(p.Safety.MinFreeSpace); err != nil {
			return fmt.Errorf("provider %q: safety.min_free_space: %w", name, err)
		}
	}

	return nil
}

// validateTransfers checks the bandwidth limit and every schedule entry:
// times must be HH:MM, limits must parse as rates. A schedule entry that
// fails here would otherwise surface only when the limiter is built at
// sync startup.
func validateTransfers(t *TransfersConfig) error {
	if _, err := ParseRate(t.BandwidthLimit); err != nil {
		return fmt.Errorf("transfers.bandwidth_limit: %w", err)
	}

	for _, e := range t.BandwidthSchedule {
		if _, err := time.Parse("15:04", e.Time); err != nil {
			return fmt.Errorf("transfers.bandwidth_schedule: time %q: want HH:MM", e.Time)
		}

		if _, err := ParseRate(e.Limit); err != nil {
			return fmt.Errorf("transfers.bandwidth_schedule: limit at %s: %w", e.Time, err)
		}
	}

	return nil
}

func validateSizeFields(cfg *Config) error {
	if _, err := ParseSize(cfg.Filter.MaxFileSize); err != nil {
		return fmt.Errorf("filter.max_file_size: %w", err)
	}

	if err := validateTransfers(&cfg.Transfers); err != nil {
		return err
	}

	if _, err := ParseSize(cfg.Safety.MinFreeSpace); err != nil {
		return fmt.Errorf("safety.min_free_space: %w", err)
	}

	if cfg.Safety.BigDeletePercentage < 0 || cfg.Safety.BigDeletePercentage > 100 {
		return fmt.Errorf("safety.big_delete_percentage: must be between 0 and 100, got %d", cfg.Safety.BigDeletePercentage)
	}

	return nil
}
