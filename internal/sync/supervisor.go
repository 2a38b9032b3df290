package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	gosync "sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/cloudmirror/internal/config"
	"github.com/tonimelisma/cloudmirror/internal/dispatch"
	"github.com/tonimelisma/cloudmirror/internal/localfs"
	"github.com/tonimelisma/cloudmirror/internal/metatree"
	"github.com/tonimelisma/cloudmirror/internal/objectstore"
	"github.com/tonimelisma/cloudmirror/internal/reconcile"
	"github.com/tonimelisma/cloudmirror/internal/snapshot"
)

// State is the supervisor lifecycle: Stopped -> Running -> Stopping -> Stopped.
type State int32

const (
	StateStopped State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "stopped"
	}
}

// stalePartialThreshold is how old a leftover .partial file must be before
// the end-of-cycle scan warns about it.
const stalePartialThreshold = 24 * time.Hour

// SupervisorConfig holds the inputs for creating a Supervisor. The CLI
// layer populates this from the resolved provider section and a constructed
// adapter.
type SupervisorConfig struct {
	Provider *config.ResolvedProvider
	Adapter  objectstore.Adapter
	Logger   *slog.Logger

	// Force overrides the big-delete safety threshold for this run.
	Force bool
	// DryRun logs every planned action without executing any of them.
	DryRun bool
	// Once runs a single cycle and returns instead of looping.
	Once bool
}

// CycleReport summarizes one completed reconciliation cycle.
type CycleReport struct {
	PullActions    int
	PushActions    int
	SkippedActions int
	FailedActions  int
	Duration       time.Duration
}

// Supervisor owns the four trees and drives the periodic reconciliation
// cycle: rebuild cloud tree, PULL, rebuild local tree, PUSH, persist both
// snapshots, sleep. The reconciliation engine borrows the trees read-only
// and the dispatcher never touches them, so no locking is needed around the
// trees themselves — they are only replaced between cycles, on this
// goroutine.
type Supervisor struct {
	provider   *config.ResolvedProvider
	adapter    objectstore.Adapter
	dispatcher *dispatch.Dispatcher
	filter     *FilterEngine
	guard      *SafetyGuard
	failures   *failureTracker
	logger     *slog.Logger

	force  bool
	dryRun bool
	once   bool

	pollInterval time.Duration

	localHistory *metatree.Tree
	cloudHistory *metatree.Tree
	// lastLocal is the most recently built local tree; its file-id index
	// feeds the PULL pass's download-shortcut before this cycle's local
	// rebuild happens. Starts as the loaded local history snapshot.
	lastLocal *metatree.Tree

	// wake is nudged by the filesystem watcher to cut the sleep short.
	wake chan struct{}

	mu    gosync.Mutex
	state State
}

// NewSupervisor validates cfg and assembles the cycle machinery. Fatal
// misconfiguration (unreadable local root, malformed sizes or intervals)
// surfaces here, before the loop ever starts.
func NewSupervisor(cfg SupervisorConfig) (*Supervisor, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := cfg.Provider

	info, err := os.Stat(strings.TrimSuffix(p.LocalPath, "/"))
	if err != nil {
		return nil, fmt.Errorf("sync: local root %q: %w", p.LocalPath, err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("sync: local root %q is not a directory", p.LocalPath)
	}

	filter, err := NewFilterEngine(&p.Filter, strings.TrimSuffix(p.LocalPath, "/"), logger)
	if err != nil {
		return nil, fmt.Errorf("sync: filter: %w", err)
	}

	interval, err := time.ParseDuration(p.Sync.PollInterval)
	if err != nil {
		return nil, fmt.Errorf("sync: poll_interval %q: %w", p.Sync.PollInterval, err)
	}

	d := dispatch.New(cfg.Adapter, logger)
	if p.Safety.UseLocalTrash {
		d.TrashFunc = defaultTrashFunc
	}

	return &Supervisor{
		provider:     p,
		adapter:      cfg.Adapter,
		dispatcher:   d,
		filter:       filter,
		guard:        NewSafetyGuard(p.Safety, strings.TrimSuffix(p.LocalPath, "/"), logger),
		failures:     newFailureTracker(logger),
		logger:       logger,
		force:        cfg.Force,
		dryRun:       cfg.DryRun,
		once:         cfg.Once,
		pollInterval: interval,
		wake:         make(chan struct{}, 1),
		state:        StateStopped,
	}, nil
}

// Wake nudges the supervisor to cut the current sleep short and start the
// next cycle immediately. Safe to call from any goroutine; a nudge during a
// running cycle is coalesced into one early wake-up.
func (s *Supervisor) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// State reports the supervisor's lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Run loads the history snapshots and cycles until ctx is cancelled (or,
// with Once set, until the first cycle completes). Cancellation is observed
// only at cycle boundaries: the in-flight cycle finishes cleanly first.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.initialize(ctx); err != nil {
		return err
	}

	s.setState(StateRunning)
	defer s.setState(StateStopped)

	g, gctx := errgroup.WithContext(ctx)

	watchCtx, stopWatch := context.WithCancel(gctx)
	g.Go(func() error {
		s.watchLocal(watchCtx)
		return nil
	})

	g.Go(func() error {
		defer stopWatch()
		return s.loop(gctx)
	})

	return g.Wait()
}

func (s *Supervisor) initialize(ctx context.Context) error {
	p := s.provider

	localHistory, err := snapshot.Load(ctx, p.HistPath+".local", p.LocalPath, s.logger)
	if err != nil {
		s.logger.Warn("sync: local history unreadable, starting from empty", "error", err)
		localHistory = metatree.NewTree(metatree.NewDirectory(p.LocalPath, 0, ""))
	}

	cloudHistory, err := snapshot.Load(ctx, p.HistPath+".cloud", p.CloudPath, s.logger)
	if err != nil {
		s.logger.Warn("sync: cloud history unreadable, starting from empty", "error", err)
		cloudHistory = metatree.NewTree(metatree.NewDirectory(p.CloudPath, 0, ""))
	}

	s.localHistory = localHistory
	s.cloudHistory = cloudHistory
	s.lastLocal = localHistory

	// An unreachable remote root is fatal at startup, same as an unreadable
	// local root. CreateFolder bootstraps an empty bucket prefix so the
	// first cycle has something to list.
	if _, err := s.adapter.Stat(ctx, p.CloudPath); err != nil {
		if !errors.Is(err, objectstore.ErrNotFound) {
			return fmt.Errorf("sync: cloud root %q unreachable: %w", p.CloudPath, err)
		}

		if err := s.adapter.CreateFolder(ctx, p.CloudPath); err != nil {
			return fmt.Errorf("sync: creating cloud root %q: %w", p.CloudPath, err)
		}

		s.logger.Info("sync: created cloud root", "path", p.CloudPath)
	}

	return nil
}

func (s *Supervisor) loop(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	// Drain the immediate first tick so the loop below owns the schedule.
	<-timer.C

	for {
		report, err := s.RunCycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			// A failed cycle leaves the histories untouched; the same diff
			// re-emerges next cycle.
			s.logger.Error("sync: cycle failed", "error", err)
		} else {
			s.logger.Info("sync: cycle complete",
				"pull_actions", report.PullActions,
				"push_actions", report.PushActions,
				"skipped", report.SkippedActions,
				"failed", report.FailedActions,
				"duration", report.Duration,
			)
		}

		if s.once {
			return nil
		}

		timer.Reset(s.pollInterval)

		select {
		case <-ctx.Done():
			s.setState(StateStopping)
			return nil
		case <-timer.C:
		case <-s.wake:
			s.logger.Debug("sync: woken early by filesystem change")
			if !timer.Stop() {
				<-timer.C
			}
		}
	}
}

// RunCycle executes one full reconciliation cycle: build cloud tree, PULL,
// build local tree, PUSH, then replace and persist both histories. The
// histories are updated only after both passes finish — a mid-cycle error
// leaves them untouched.
func (s *Supervisor) RunCycle(ctx context.Context) (*CycleReport, error) {
	started := time.Now()
	report := &CycleReport{}
	p := s.provider

	cloudCurrent, err := objectstore.BuildTree(ctx, s.adapter, p.CloudPath, s.filterFunc(), s.logger)
	if err != nil {
		return nil, fmt.Errorf("building cloud tree: %w", err)
	}

	pullActions, err := s.plan(ctx, func(dispatchFn reconcile.Dispatch) error {
		return reconcile.Pull(ctx, cloudCurrent, s.cloudHistory, p.LocalPath, dispatchFn)
	})
	if err != nil {
		return nil, fmt.Errorf("pull: %w", err)
	}

	if err := s.guard.Check(pullActions, treeSize(s.lastLocal), nil, s.force, s.dryRun); err != nil {
		return nil, fmt.Errorf("pull: %w", err)
	}

	s.dispatcher.SetIndices(s.lastLocal.Index, cloudCurrent.Index)
	report.PullActions = len(pullActions)
	pulled := s.execute(ctx, pullActions, report)

	localCurrent, err := localfs.BuildTree(ctx, p.LocalPath, localfs.Filter(s.filterFunc()), s.logger)
	if err != nil {
		return nil, fmt.Errorf("building local tree: %w", err)
	}

	pushActions, err := s.plan(ctx, func(dispatchFn reconcile.Dispatch) error {
		return reconcile.Push(ctx, localCurrent, s.localHistory, p.CloudPath, dispatchFn)
	})
	if err != nil {
		return nil, fmt.Errorf("push: %w", err)
	}

	pushActions = suppressEchoes(pushActions, pulled)

	if err := s.guard.Check(pushActions, treeSize(cloudCurrent), nil, s.force, s.dryRun); err != nil {
		return nil, fmt.Errorf("push: %w", err)
	}

	s.dispatcher.SetIndices(localCurrent.Index, cloudCurrent.Index)
	report.PushActions = len(pushActions)
	s.execute(ctx, pushActions, report)

	report.Duration = time.Since(started)

	if s.dryRun {
		return report, nil
	}

	s.cloudHistory = cloudCurrent
	s.localHistory = localCurrent
	s.lastLocal = localCurrent

	if err := snapshot.Save(ctx, p.HistPath+".cloud", cloudCurrent, s.logger); err != nil {
		return nil, fmt.Errorf("persisting cloud history: %w", err)
	}

	if err := snapshot.Save(ctx, p.HistPath+".local", localCurrent, s.logger); err != nil {
		return nil, fmt.Errorf("persisting local history: %w", err)
	}

	stale, err := findStalePartials(strings.TrimSuffix(p.LocalPath, "/"), stalePartialThreshold)
	if err != nil {
		s.logger.Warn("sync: scanning for stale partial files", "error", err)
	} else if len(stale) > 0 {
		s.logger.Warn("sync: stale partial files left behind, consider removing them",
			"count", len(stale), "paths", stale)
	}

	return report, nil
}

// plan runs one reconciliation pass with a collecting dispatch, returning
// the deterministic action sequence the pass emitted. Splitting planning
// from execution lets the safety guard veto a runaway delete batch before
// anything runs; the dispatcher's own pre-condition re-checks keep the
// collected actions valid even though they execute slightly after the walk
// that produced them.
func (s *Supervisor) plan(_ context.Context, pass func(reconcile.Dispatch) error) ([]reconcile.Action, error) {
	var actions []reconcile.Action

	err := pass(func(a reconcile.Action) error {
		actions = append(actions, a)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return actions, nil
}

// execute runs the collected actions in emission order and returns the set
// of local paths the actions wrote to. Per-action errors are logged and
// swallowed: the state diff still holds, so the next cycle retries
// naturally. Paths that keep failing are suppressed for a cooldown period
// instead of hammering the adapter every 29 seconds.
func (s *Supervisor) execute(ctx context.Context, actions []reconcile.Action, report *CycleReport) map[string]struct{} {
	written := make(map[string]struct{})

	for _, a := range actions {
		if s.dryRun {
			s.logger.Info("sync: dry-run action", "kind", a.Kind.String(), "from", a.FromPath, "to", a.ToPath)
			continue
		}

		if s.failures.shouldSkip(a.FromPath) {
			report.SkippedActions++
			continue
		}

		if err := s.dispatcher.Dispatch(ctx, a); err != nil {
			report.FailedActions++
			s.failures.recordFailure(a.FromPath, err.Error())
			s.logger.Warn("sync: action failed, will retry next cycle",
				"kind", a.Kind.String(), "from", a.FromPath, "to", a.ToPath, "error", err)

			continue
		}

		s.failures.recordSuccess(a.FromPath)

		if a.ToPath != "" {
			written[a.ToPath] = struct{}{}
		}
	}

	return written
}

// suppressEchoes drops PUSH transfer actions whose source is a local path
// the PULL pass wrote this cycle. The rebuilt local tree sees pulled
// content as a local change (new hash, newer mtime than the local history),
// and without this filter every pulled update would bounce straight back to
// the cloud.
func suppressEchoes(actions []reconcile.Action, pulled map[string]struct{}) []reconcile.Action {
	if len(pulled) == 0 {
		return actions
	}

	kept := actions[:0]

	for _, a := range actions {
		if _, echo := pulled[a.FromPath]; echo &&
			(a.Kind == reconcile.UploadFile || a.Kind == reconcile.UpdateCloudFile) {
			continue
		}

		kept = append(kept, a)
	}

	return kept
}

func (s *Supervisor) filterFunc() objectstore.Filter {
	return func(relPath string, isDir bool, size int64) bool {
		return s.filter.ShouldSync(relPath, isDir, size).Included
	}
}

// treeSize counts the entries in a tree, the denominator for the big-delete
// percentage check.
func treeSize(t *metatree.Tree) int {
	if t == nil || t.Root == nil {
		return 0
	}

	return countEntries(t.Root)
}

func countEntries(dir *metatree.DirectoryEntry) int {
	n := 0

	for _, child := range dir.Children.All() {
		n++

		if child.IsDir() {
			n += countEntries(&metatree.DirectoryEntry{Entry: child.Entry, Children: child.Children})
		}
	}

	return n
}

// watchLocal nudges the wake channel whenever anything changes under the
// local root, so an interactive edit syncs in seconds instead of waiting
// out the poll interval. Best-effort: if the watcher cannot start, the
// supervisor silently falls back to pure polling.
func (s *Supervisor) watchLocal(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Warn("sync: filesystem watcher unavailable, polling only", "error", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(strings.TrimSuffix(s.provider.LocalPath, "/")); err != nil {
		s.logger.Warn("sync: cannot watch local root, polling only", "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-watcher.Events:
			if !ok {
				return
			}

			select {
			case s.wake <- struct{}{}:
			default:
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}

			s.logger.Debug("sync: watcher error", "error", err)
		}
	}
}
