package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file and validates it: decode into
// DefaultConfig() so unset keys keep their defaults, then reject unknown
// keys via the decode MetaData. A plain map[string]Provider field lets one
// toml.Decode populate both the flat globals and the named provider tables
// in a single pass.
func Load(path string, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Debug("loading config file", "path", path)

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s: unknown key %q", path, undecoded[0].String())
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	logger.Debug("config file parsed successfully", "path", path, "provider_count", len(cfg.Providers))

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with defaults — the zero-config experience for a user who
// has not created a config file yet.
func LoadOrDefault(path string, logger *slog.Logger) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if logger == nil {
			logger = slog.Default()
		}

		logger.Debug("config file not found, using defaults", "path", path)

		return DefaultConfig(), nil
	}

	return Load(path, logger)
}

// ResolveConfigPath determines the config file path using the three-layer
// priority: CLI flag > environment variable > platform default.
func ResolveConfigPath(env EnvOverrides, cliConfigPath string, logger *slog.Logger) string {
	cfgPath := DefaultConfigPath()
	source := "default"

	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
		source = "env"
	}

	if cliConfigPath != "" {
		cfgPath = cliConfigPath
		source = "cli"
	}

	if logger != nil {
		logger.Debug("config path resolved", "path", cfgPath, "source", source)
	}

	return cfgPath
}

// ResolvedProvider is a Provider with its global-section overrides merged in
// — the settings one supervisor for that provider runs with. CLI run flags
// (dry-run, force, once) are not part of it; they travel separately in
// sync.SupervisorConfig.
type ResolvedProvider struct {
	Name      string
	LocalPath string
	CloudPath string
	HistPath  string
	Backend   string
	BucketDir string
	Endpoint  string

	Credentials map[string]string

	Filter    FilterConfig
	Transfers TransfersConfig
	Safety    SafetyConfig
	Sync      SyncConfig
}

// ResolveProvider looks up name in cfg.Providers and merges global defaults
// with any per-provider overrides: global first, then a set per-provider
// section replaces the whole corresponding global section.
func ResolveProvider(cfg *Config, name string) (*ResolvedProvider, error) {
	p, ok := cfg.Providers[name]
	if !ok {
		return nil, fmt.Errorf("config: no provider named %q", name)
	}

	backend := p.Backend
	if backend == "" {
		backend = BackendLocalDir
	}

	rp := &ResolvedProvider{
		Name:        name,
		LocalPath:   p.LocalPath,
		CloudPath:   p.CloudPath,
		HistPath:    p.HistoryPath,
		Backend:     backend,
		BucketDir:   p.BucketDir,
		Endpoint:    p.Endpoint,
		Credentials: p.Credentials,
		Filter:      cfg.Filter,
		Transfers:   cfg.Transfers,
		Safety:      cfg.Safety,
		Sync:        cfg.Sync,
	}

	if p.Filter != nil {
		rp.Filter = *p.Filter
	}

	if p.Transfers != nil {
		rp.Transfers = *p.Transfers
	}

	if p.Safety != nil {
		rp.Safety = *p.Safety
	}

	return rp, nil
}
