package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// pidFile is an exclusive per-provider run lock: a flock-guarded file
// holding the owner's PID. The flock is authoritative (it vanishes with the
// process, so crashes never wedge the lock); the PID content exists so
// other invocations can signal the owner.
type pidFile struct {
	path string
	file *os.File
}

// acquirePIDFile takes the exclusive lock at path, creating parent
// directories as needed, and records the current PID. Fails immediately if
// another live process holds the lock.
func acquirePIDFile(path string) (*pidFile, error) {
	if path == "" {
		return nil, errors.New("pid file path is empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating pid file directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening pid file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()

		return nil, fmt.Errorf("another sync for this provider is already running (could not lock %s)", path)
	}

	if err := f.Truncate(0); err != nil {
		f.Close()

		return nil, fmt.Errorf("truncating pid file: %w", err)
	}

	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		f.Close()

		return nil, fmt.Errorf("writing pid file: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()

		return nil, fmt.Errorf("syncing pid file: %w", err)
	}

	return &pidFile{path: path, file: f}, nil
}

// Release removes the pid file and drops the lock. Safe to call once.
func (p *pidFile) Release() {
	os.Remove(p.path)
	p.file.Close()
}

// ownerPID parses the PID recorded at path.
func ownerPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading pid file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid pid in %s: %w", path, err)
	}

	return pid, nil
}

// signalOwner sends sig to the process recorded at path. A missing file
// means no daemon is running; a recorded but dead process is reported and
// its stale pid file removed.
func signalOwner(path string, sig syscall.Signal) error {
	pid, err := ownerPID(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("no running sync found (no pid file at %s)", path)
		}

		return err
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}

	// Signal 0 probes liveness without side effects.
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		os.Remove(path)

		return fmt.Errorf("recorded sync (pid %d) is not running (stale pid file removed)", pid)
	}

	if err := proc.Signal(sig); err != nil {
		return fmt.Errorf("signalling pid %d: %w", pid, err)
	}

	return nil
}
