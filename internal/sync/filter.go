package sync

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	gosync "sync"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/tonimelisma/cloudmirror/internal/config"
)

// tempFileSuffixes are always excluded to prevent syncing partial/temp
// files that indicate an in-progress write.
var tempFileSuffixes = []string{".partial", ".tmp"}

// tempFilePrefix is a tilde prefix pattern for temp files (e.g., ~lockfile).
const tempFilePrefix = "~"

// FilterResult indicates whether a path should be synced, and if not, why.
type FilterResult struct {
	Included bool
	Reason   string
}

// FilterEngine implements the Filter interface consumed by internal/localfs
// and internal/objectstore with a three-layer cascade: sync_paths
// allowlist, config patterns (skip_files, skip_dirs, skip_dotfiles,
// max_file_size, the always-on partial/temp-file exclusion), and
// ignore-marker files.
type FilterEngine struct {
	cfg      config.FilterConfig
	logger   *slog.Logger
	syncRoot string

	// maxFileSizeBytes is the parsed max_file_size threshold (0 = no limit).
	maxFileSizeBytes int64

	// ignoreCache stores parsed ignore-marker files per directory path.
	// A nil entry means the directory was checked but had no marker file.
	// Protected by mu for concurrent scanner access.
	ignoreCache map[string]*ignore.GitIgnore
	mu          gosync.RWMutex
}

// NewFilterEngine creates a filter engine from the given config and sync root.
// It parses the max_file_size threshold and initializes the ignore-marker cache.
func NewFilterEngine(cfg *config.FilterConfig, syncRoot string, logger *slog.Logger) (*FilterEngine, error) {
	logger.Info("initializing filter engine",
		"sync_root", syncRoot,
		"skip_dotfiles", cfg.SkipDotfiles,
		"skip_files", cfg.SkipFiles,
		"skip_dirs", cfg.SkipDirs,
		"max_file_size", cfg.MaxFileSize,
		"sync_paths", cfg.SyncPaths,
		"ignore_marker", cfg.IgnoreMarker,
	)

	maxBytes, err := config.ParseSize(cfg.MaxFileSize)
	if err != nil {
		return nil, fmt.Errorf("invalid max_file_size %q: %w", cfg.MaxFileSize, err)
	}

	return &FilterEngine{
		cfg:              *cfg,
		logger:           logger,
		syncRoot:         syncRoot,
		maxFileSizeBytes: maxBytes,
		ignoreCache:      make(map[string]*ignore.GitIgnore),
	}, nil
}

// ShouldSync evaluates whether the given path should be included in sync.
// The path must be relative to the sync root.
func (f *FilterEngine) ShouldSync(path string, isDir bool, size int64) FilterResult {
	// Layer 1: sync_paths allowlist — if configured, only allowed subtrees pass.
	if result := f.checkSyncPaths(path, isDir); !result.Included {
		return result
	}

	// Layer 2: Config patterns — safety suffixes, skip_files, skip_dirs, skip_dotfiles, max_file_size.
	if result := f.checkConfigPatterns(path, isDir, size); !result.Included {
		return result
	}

	// Layer 3: ignore-marker files — per-directory gitignore-style patterns.
	if result := f.checkIgnoreMarker(path, isDir); !result.Included {
		return result
	}

	return FilterResult{Included: true}
}

// checkSyncPaths evaluates Layer 1: the sync_paths allowlist.
// If sync_paths is not configured, all paths pass. Parent directories of
// allowed paths are traversable but not themselves synced as content.
func (f *FilterEngine) checkSyncPaths(path string, isDir bool) FilterResult {
	if len(f.cfg.SyncPaths) == 0 {
		return FilterResult{Included: true}
	}

	if f.matchesSyncPaths(path, isDir) {
		return FilterResult{Included: true}
	}

	f.logger.Debug("path excluded by sync_paths", "path", path)

	return FilterResult{Included: false, Reason: "not in sync_paths"}
}

// checkConfigPatterns evaluates Layer 2: safety suffix patterns, skip_files,
// skip_dirs, skip_dotfiles, and max_file_size.
func (f *FilterEngine) checkConfigPatterns(path string, isDir bool, size int64) FilterResult {
	name := filepath.Base(path)

	// Safety suffix/prefix patterns always apply — never sync partial/temp files.
	if !isDir {
		if result := f.checkSafetyPatterns(name, path); !result.Included {
			return result
		}
	}

	// skip_dotfiles applies to both files and directories.
	if f.cfg.SkipDotfiles && strings.HasPrefix(name, ".") {
		f.logger.Debug("path excluded by skip_dotfiles", "path", path)
		return FilterResult{Included: false, Reason: "dotfile excluded"}
	}

	if isDir {
		return f.checkDirPatterns(name, path)
	}

	return f.checkFilePatterns(name, path, size)
}

// checkSafetyPatterns checks the always-on partial/temp-file patterns
// (.partial, .tmp, ~*) that protect against syncing an in-progress write.
func (f *FilterEngine) checkSafetyPatterns(name, path string) FilterResult {
	lower := strings.ToLower(name)

	for _, suffix := range tempFileSuffixes {
		if strings.HasSuffix(lower, suffix) {
			f.logger.Debug("path excluded by safety pattern", "path", path, "suffix", suffix)
			return FilterResult{Included: false, Reason: fmt.Sprintf("matches %s pattern", suffix)}
		}
	}

	if strings.HasPrefix(name, tempFilePrefix) {
		f.logger.Debug("path excluded by safety pattern", "path", path, "prefix", tempFilePrefix)
		return FilterResult{Included: false, Reason: "matches ~* pattern"}
	}

	return FilterResult{Included: true}
}

// checkDirPatterns checks skip_dirs glob patterns against the directory basename.
func (f *FilterEngine) checkDirPatterns(name, path string) FilterResult {
	if matchesSkipPattern(name, f.cfg.SkipDirs) {
		f.logger.Debug("path excluded by skip_dirs", "path", path, "name", name)
		return FilterResult{Included: false, Reason: "matches skip_dirs pattern"}
	}

	return FilterResult{Included: true}
}

// checkFilePatterns checks skip_files glob patterns and max_file_size threshold.
func (f *FilterEngine) checkFilePatterns(name, path string, size int64) FilterResult {
	if matchesSkipPattern(name, f.cfg.SkipFiles) {
		f.logger.Debug("path excluded by skip_files", "path", path, "name", name)
		return FilterResult{Included: false, Reason: "matches skip_files pattern"}
	}

	if f.maxFileSizeBytes > 0 && size > f.maxFileSizeBytes {
		f.logger.Debug("path excluded by max_file_size",
			"path", path, "size", size, "max", f.maxFileSizeBytes)
		return FilterResult{Included: false, Reason: "exceeds max_file_size"}
	}

	return FilterResult{Included: true}
}

// checkIgnoreMarker evaluates Layer 3: ignore-marker file patterns.
func (f *FilterEngine) checkIgnoreMarker(path string, isDir bool) FilterResult {
	if f.cfg.IgnoreMarker == "" {
		return FilterResult{Included: true}
	}

	dir := filepath.Dir(path)
	gi := f.loadIgnoreMarker(dir)

	if gi == nil {
		return FilterResult{Included: true}
	}

	// go-gitignore expects forward slashes and uses trailing slash for dirs.
	matchPath := filepath.ToSlash(path)
	if isDir {
		matchPath += "/"
	}

	if gi.MatchesPath(matchPath) {
		f.logger.Debug("path excluded by ignore marker", "path", path, "dir", dir)
		return FilterResult{Included: false, Reason: "excluded by " + f.cfg.IgnoreMarker}
	}

	return FilterResult{Included: true}
}

// matchesSyncPaths checks whether path falls under any configured sync_path.
// A path matches if it equals, is a child of, or is a parent of a sync path.
// Parent directories are "traversable" — they pass the filter so the scanner
// can reach the allowed subtrees, but their own content is not synced.
func (f *FilterEngine) matchesSyncPaths(path string, isDir bool) bool {
	normalPath := filepath.ToSlash(filepath.Clean(path))

	for _, sp := range f.cfg.SyncPaths {
		normalSP := filepath.ToSlash(filepath.Clean(sp))

		// Exact match — always included.
		if normalPath == normalSP {
			return true
		}

		// Path is under a sync path — included.
		if strings.HasPrefix(normalPath, normalSP+"/") {
			return true
		}

		// Path is a parent of a sync path — traversable (directories only).
		if isDir && strings.HasPrefix(normalSP, normalPath+"/") {
			return true
		}
	}

	return false
}

// matchesSkipPattern checks if name matches any of the given glob patterns.
// Comparison is case-insensitive. Malformed patterns are logged and skipped.
func matchesSkipPattern(name string, patterns []string) bool {
	lowerName := strings.ToLower(name)

	for _, pattern := range patterns {
		lowerPattern := strings.ToLower(pattern)

		matched, err := filepath.Match(lowerPattern, lowerName)
		if err != nil {
			// Malformed pattern — skip it rather than failing the entire filter.
			slog.Warn("malformed skip pattern", "pattern", pattern, "error", err)
			continue
		}

		if matched {
			return true
		}
	}

	return false
}

// loadIgnoreMarker loads and caches the ignore-marker file for the given directory.
// Returns nil if no marker file exists in that directory.
func (f *FilterEngine) loadIgnoreMarker(dir string) *ignore.GitIgnore {
	// Fast path: check cache with read lock.
	f.mu.RLock()
	gi, cached := f.ignoreCache[dir]
	f.mu.RUnlock()

	if cached {
		return gi
	}

	// Slow path: load from disk and cache.
	f.mu.Lock()
	defer f.mu.Unlock()

	// Double-check after acquiring write lock (another goroutine may have loaded it).
	if gi, cached = f.ignoreCache[dir]; cached {
		return gi
	}

	markerPath := filepath.Join(f.syncRoot, dir, f.cfg.IgnoreMarker)

	parsed, err := ignore.CompileIgnoreFile(markerPath)
	if err != nil {
		// File doesn't exist or is unreadable — cache nil to avoid repeated attempts.
		f.logger.Debug("no ignore marker file found", "dir", dir, "path", markerPath)
		f.ignoreCache[dir] = nil

		return nil
	}

	f.logger.Debug("loaded ignore marker file", "dir", dir, "path", markerPath)
	f.ignoreCache[dir] = parsed

	return parsed
}
