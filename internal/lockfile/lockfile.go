// Package lockfile keeps a single monitor instance per host using a PID file.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
)

// ErrAlreadyRunning is returned when the lock file names a live process.
var ErrAlreadyRunning = errors.New("lockfile: another instance is running")

// Lock is a held PID file. Release removes it.
type Lock struct {
	path string
	once sync.Once
}

// Acquire writes the current PID to path. A file naming a live process
// other than this one fails with ErrAlreadyRunning; stale, empty, or
// unparsable files are overwritten.
func Acquire(path string) (*Lock, error) {
	if pid, err := readPID(path); err == nil && pid != os.Getpid() && isProcess(pid) {
		return nil, fmt.Errorf("%w (pid %d, lock %s)", ErrAlreadyRunning, pid, path)
	}
	if err := writePID(path); err != nil {
		return nil, err
	}
	return &Lock{path: path}, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string { return l.path }

// Release removes the lock file. Calling it more than once is harmless.
func (l *Lock) Release() error {
	var err error
	l.once.Do(func() {
		if rerr := os.Remove(l.path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			err = fmt.Errorf("lockfile: remove %s: %w", l.path, rerr)
		}
	})
	return err
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func writePID(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("lockfile: mkdir: %w", err)
	}
	pid := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(path, []byte(pid), 0644); err != nil {
		return fmt.Errorf("lockfile: write %s: %w", path, err)
	}
	return nil
}

// isProcess reports whether pid refers to a running process.
func isProcess(pid int) bool {
	if pid <= 0 {
		return false
	}
	if _, err := os.Stat(filepath.Join("/proc", strconv.Itoa(pid))); err == nil {
		return true
	}
	// Without procfs, signal 0 probes for existence.
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = p.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
