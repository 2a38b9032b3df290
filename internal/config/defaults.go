package config

// Default values for configuration options: the "layer 0" of the
// defaults -> config file -> environment -> CLI override chain, chosen to be
// safe, reasonable starting points that work without any config file.
// BackendLocalDir mirrors against a second local directory (bucket_dir),
// the built-in object-store backend. Remote provider backends register
// their own names.
const BackendLocalDir = "localdir"

const (
	defaultIgnoreMarker       = ".cmignore"
	defaultMaxFileSize        = "50GB"
	defaultParallelDownloads  = 8
	defaultParallelUploads    = 8
	defaultBandwidthLimit     = "0"
	defaultBigDeleteThreshold = 1000
	defaultBigDeletePct       = 50
	defaultBigDeleteMinItems  = 10
	defaultMinFreeSpace       = "1GB"
	defaultPollInterval       = "29s"
	defaultShutdownTimeout    = "30s"
	defaultLogLevel           = "info"
	defaultLogFormat          = "auto"
)

// DefaultConfig returns a Config populated with all default values. Used
// both as the decode target (so unset TOML keys retain defaults) and as the
// fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Providers: make(map[string]Provider),
		Filter:    defaultFilterConfig(),
		Transfers: defaultTransfersConfig(),
		Safety:    defaultSafetyConfig(),
		Sync:      defaultSyncConfig(),
		Logging:   defaultLoggingConfig(),
	}
}

func defaultFilterConfig() FilterConfig {
	return FilterConfig{
		SkipDotfiles: false,
		SkipSymlinks: false,
		MaxFileSize:  defaultMaxFileSize,
		IgnoreMarker: defaultIgnoreMarker,
	}
}

func defaultTransfersConfig() TransfersConfig {
	return TransfersConfig{
		ParallelDownloads: defaultParallelDownloads,
		ParallelUploads:   defaultParallelUploads,
		BandwidthLimit:    defaultBandwidthLimit,
	}
}

func defaultSafetyConfig() SafetyConfig {
	return SafetyConfig{
		BigDeleteThreshold:  defaultBigDeleteThreshold,
		BigDeletePercentage: defaultBigDeletePct,
		BigDeleteMinItems:   defaultBigDeleteMinItems,
		MinFreeSpace:        defaultMinFreeSpace,
		UseLocalTrash:       true,
	}
}

func defaultSyncConfig() SyncConfig {
	return SyncConfig{
		PollInterval:    defaultPollInterval,
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		LogLevel:  defaultLogLevel,
		LogFormat: defaultLogFormat,
	}
}
