package sync

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/cloudmirror/internal/config"
	"github.com/tonimelisma/cloudmirror/internal/reconcile"
)

// percentMultiplier converts a count to a percentage (multiply before
// dividing to avoid integer truncation).
const percentMultiplier = 100

// ErrBigDeleteBlocked is returned when a cycle's planned deletes exceed the
// configured safety thresholds. --force overrides it.
var ErrBigDeleteBlocked = errors.New("big-delete protection triggered")

// ErrInsufficientDiskSpace is returned when completing all planned downloads
// would reduce available disk space below the configured minimum.
var ErrInsufficientDiskSpace = errors.New("insufficient disk space")

// SafetyGuard validates a cycle's planned reconcile.Actions against
// big-delete and disk-space thresholds before any are dispatched, the last
// line of defense when a mis-scan (an unmounted local root, a truncated
// remote listing) would otherwise wipe a side.
type SafetyGuard struct {
	cfg        config.SafetyConfig
	syncRoot   string
	logger     *slog.Logger
	statfsFunc func(path string) (uint64, error)
}

// NewSafetyGuard creates a SafetyGuard for syncRoot using cfg's thresholds.
func NewSafetyGuard(cfg config.SafetyConfig, syncRoot string, logger *slog.Logger) *SafetyGuard {
	if logger == nil {
		logger = slog.Default()
	}

	return &SafetyGuard{cfg: cfg, syncRoot: syncRoot, logger: logger, statfsFunc: getDiskSpace}
}

// downloadSize reports the byte size of a file about to be downloaded. The
// reconciliation core tracks only hash/mtime/uuid, not sizes, so callers
// that want disk-space enforcement must supply a sizer; a nil sizer
// disables the check.
type downloadSize func(action reconcile.Action) int64

// Check counts planned deletes against the big-delete threshold and,
// when sizer is non-nil, sums planned download sizes against free disk
// space. totalEntries is the current tree's total entry count, used as the
// percentage denominator.
func (sg *SafetyGuard) Check(actions []reconcile.Action, totalEntries int, sizer downloadSize, force, dryRun bool) error {
	if err := sg.checkBigDelete(actions, totalEntries, force, dryRun); err != nil {
		return err
	}

	return sg.checkDiskSpace(actions, sizer, dryRun)
}

func isDeleteKind(k reconcile.Kind) bool {
	switch k {
	case reconcile.DeleteCloudFile, reconcile.DeleteLocalFile, reconcile.DeleteCloudFolder, reconcile.DeleteLocalFolder:
		return true
	default:
		return false
	}
}

func (sg *SafetyGuard) checkBigDelete(actions []reconcile.Action, totalEntries int, force, dryRun bool) error {
	var deleteCount int

	for _, a := range actions {
		if isDeleteKind(a.Kind) {
			deleteCount++
		}
	}

	if deleteCount == 0 {
		return nil
	}

	if totalEntries < sg.cfg.BigDeleteMinItems {
		sg.logger.Debug("safety: below min items, skipping big-delete check",
			"total_entries", totalEntries, "min_items", sg.cfg.BigDeleteMinItems)

		return nil
	}

	countExceeded := deleteCount > sg.cfg.BigDeleteThreshold

	var percentExceeded bool
	if totalEntries > 0 {
		percentExceeded = (deleteCount * percentMultiplier / totalEntries) > sg.cfg.BigDeletePercentage
	}

	if !countExceeded && !percentExceeded {
		return nil
	}

	msg := fmt.Sprintf("would delete %d entries out of %d, thresholds: %d entries or %d%%",
		deleteCount, totalEntries, sg.cfg.BigDeleteThreshold, sg.cfg.BigDeletePercentage)

	if force {
		sg.logger.Warn("safety: big-delete override via --force", "detail", msg)
		return nil
	}

	if dryRun {
		sg.logger.Warn("safety: big-delete would block (dry-run)", "detail", msg)
		return nil
	}

	sg.logger.Error("safety: big-delete protection triggered", "detail", msg)

	return fmt.Errorf("%w: %s", ErrBigDeleteBlocked, msg)
}

func (sg *SafetyGuard) checkDiskSpace(actions []reconcile.Action, sizer downloadSize, dryRun bool) error {
	if sizer == nil {
		return nil
	}

	var total int64

	for _, a := range actions {
		if a.Kind == reconcile.DownloadFile {
			total += sizer(a)
		}
	}

	if total == 0 {
		return nil
	}

	minFreeBytes, err := config.ParseSize(sg.cfg.MinFreeSpace)
	if err != nil {
		return fmt.Errorf("safety: parse min_free_space %q: %w", sg.cfg.MinFreeSpace, err)
	}

	if minFreeBytes == 0 {
		return nil
	}

	available, err := sg.statfsFunc(sg.syncRoot)
	if err != nil {
		return fmt.Errorf("safety: get disk space for %q: %w", sg.syncRoot, err)
	}

	remaining := int64(available) - total //nolint:gosec // bounded by real disk sizes
	if remaining >= minFreeBytes {
		return nil
	}

	msg := fmt.Sprintf("downloads need %d bytes, %d available, would leave %d (min %d required)",
		total, available, remaining, minFreeBytes)

	if dryRun {
		sg.logger.Warn("safety: insufficient disk space (dry-run)", "detail", msg)
		return nil
	}

	sg.logger.Error("safety: insufficient disk space", "detail", msg)

	return fmt.Errorf("%w: %s", ErrInsufficientDiskSpace, msg)
}
