// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for cloudmirror. The reconciliation
// core never reads configuration directly; the CLI resolves a provider
// section here and hands the supervisor a fully-resolved value.
package config

// Config is the top-level configuration structure: named provider sections
// plus global defaults every provider inherits unless it overrides them.
// A per-provider section override completely replaces the corresponding
// global section rather than merging field by field.
type Config struct {
	Providers map[string]Provider `toml:"provider"`
	Filter    FilterConfig        `toml:"filter"`
	Transfers TransfersConfig     `toml:"transfers"`
	Safety    SafetyConfig        `toml:"safety"`
	Sync      SyncConfig          `toml:"sync"`
	Logging   LoggingConfig       `toml:"logging"`
}

// Provider is one sync pair: a local directory mirrored against a remote
// bucket prefix. LocalPath and CloudPath must end in "/"; HistoryPath is a
// bare path prefix the snapshot store appends ".local"/".cloud" to.
// Credentials and Endpoint are opaque to the core; adapter construction
// reads them by convention.
type Provider struct {
	LocalPath   string            `toml:"local_path"`
	CloudPath   string            `toml:"cloud_path"`
	HistoryPath string            `toml:"history_path"`
	Backend     string            `toml:"backend"`
	BucketDir   string            `toml:"bucket_dir"`
	Endpoint    string            `toml:"endpoint"`
	Credentials map[string]string `toml:"credentials"`

	Filter    *FilterConfig    `toml:"filter"`
	Transfers *TransfersConfig `toml:"transfers"`
	Safety    *SafetyConfig    `toml:"safety"`
}

// FilterConfig controls which files and directories are included in sync.
type FilterConfig struct {
	SkipFiles    []string `toml:"skip_files"`
	SkipDirs     []string `toml:"skip_dirs"`
	SkipDotfiles bool     `toml:"skip_dotfiles"`
	SkipSymlinks bool     `toml:"skip_symlinks"`
	MaxFileSize  string   `toml:"max_file_size"`
	SyncPaths    []string `toml:"sync_paths"`
	IgnoreMarker string   `toml:"ignore_marker"`
}

// TransfersConfig controls parallel workers and bandwidth.
type TransfersConfig struct {
	ParallelDownloads int                      `toml:"parallel_downloads"`
	ParallelUploads   int                      `toml:"parallel_uploads"`
	BandwidthLimit    string                   `toml:"bandwidth_limit"`
	BandwidthSchedule []BandwidthScheduleEntry `toml:"bandwidth_schedule"`
}

// BandwidthScheduleEntry defines a time-of-day bandwidth limit.
type BandwidthScheduleEntry struct {
	Time  string `toml:"time"`
	Limit string `toml:"limit"`
}

// SafetyConfig controls protective defaults and thresholds around the
// dispatcher's delete/download actions.
type SafetyConfig struct {
	BigDeleteThreshold  int    `toml:"big_delete_threshold"`
	BigDeletePercentage int    `toml:"big_delete_percentage"`
	BigDeleteMinItems   int    `toml:"big_delete_min_items"`
	MinFreeSpace        string `toml:"min_free_space"`
	UseLocalTrash       bool   `toml:"use_local_trash"`
}

// SyncConfig controls supervisor loop behavior.
type SyncConfig struct {
	PollInterval    string `toml:"poll_interval"`
	DryRun          bool   `toml:"dry_run"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFile   string `toml:"log_file"`
	LogFormat string `toml:"log_format"`
}
