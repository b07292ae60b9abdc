package fstore

import (
	"encoding/json"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/AlbertoV5/workstream/internal/errors"
)

// Lock acquisition defaults. Staleness covers a holder that died without
// releasing; anything younger than the threshold with a live PID is treated
// as active contention.
const (
	// DefaultStaleAfter is the lock-file age beyond which a lock is
	// reclaimable regardless of holder liveness.
	DefaultStaleAfter = 30 * time.Second

	// DefaultRetryInterval is the pause between acquisition attempts.
	DefaultRetryInterval = 100 * time.Millisecond

	// DefaultMaxRetries bounds the acquisition attempts before ErrLocked
	// surfaces to the caller.
	DefaultMaxRetries = 50
)

// lockSuffix is appended to the protected path to form the lock file path.
const lockSuffix = ".lock"

// HolderInfo is the JSON payload written into a lock file so that a
// contending process can report who holds the lock and decide staleness.
type HolderInfo struct {
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Locker acquires and releases advisory locks on ledger files. The zero
// configuration from NewLocker is suitable for all ledger mutations; tests
// shorten the intervals.
type Locker struct {
	StaleAfter    time.Duration
	RetryInterval time.Duration
	MaxRetries    uint64
}

// NewLocker returns a Locker with default contention settings.
func NewLocker() *Locker {
	return &Locker{
		StaleAfter:    DefaultStaleAfter,
		RetryInterval: DefaultRetryInterval,
		MaxRetries:    DefaultMaxRetries,
	}
}

// WithLock acquires the lock guarding path, runs fn, and always releases
// the lock afterwards, even when fn returns an error. Acquisition retries
// with constant backoff until the retry budget is exhausted, at which point
// a LockError wrapping ErrLocked is returned.
//
// The lock is a sibling file {path}.lock created with O_EXCL. A holder that
// died without releasing is detected via PID liveness and file age, and the
// lock is forcibly reclaimed.
func (l *Locker) WithLock(path string, fn func() error) error {
	lockPath := path + lockSuffix

	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(l.RetryInterval), l.MaxRetries)
	err := backoff.Retry(func() error {
		return l.tryAcquire(lockPath)
	}, policy)
	if err != nil {
		return err
	}

	defer func() {
		_ = os.Remove(lockPath)
	}()
	return fn()
}

// tryAcquire attempts a single lock acquisition. A failure to acquire due
// to an active holder is retryable; unexpected filesystem errors are
// returned as permanent so the retry loop stops immediately.
func (l *Locker) tryAcquire(lockPath string) error {
	if err := l.reclaimIfStale(lockPath); err != nil {
		return backoff.Permanent(err)
	}

	f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			lockErr := errors.NewLockError(lockPath, errors.ErrLocked)
			if holder, readErr := readHolder(lockPath); readErr == nil {
				lockErr = lockErr.WithHolder(fmt.Sprintf("pid %d on %s", holder.PID, holder.Hostname))
			}
			return lockErr
		}
		return backoff.Permanent(fmt.Errorf("failed to create lock file: %w", err))
	}
	defer f.Close()

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	holder := HolderInfo{
		PID:        os.Getpid(),
		Hostname:   hostname,
		AcquiredAt: time.Now(),
	}

	data, err := json.MarshalIndent(holder, "", "  ")
	if err != nil {
		os.Remove(lockPath)
		return backoff.Permanent(fmt.Errorf("failed to marshal lock holder: %w", err))
	}
	if _, err := f.Write(data); err != nil {
		os.Remove(lockPath)
		return backoff.Permanent(fmt.Errorf("failed to write lock file: %w", err))
	}
	return nil
}

// reclaimIfStale removes a lock file left behind by a dead or wedged
// holder. A lock is stale when its holder PID is no longer alive, or when
// the file is older than StaleAfter (covers holders on other hosts).
func (l *Locker) reclaimIfStale(lockPath string) error {
	info, err := os.Stat(lockPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat lock file: %w", err)
	}

	stale := time.Since(info.ModTime()) > l.StaleAfter
	if !stale {
		holder, readErr := readHolder(lockPath)
		if readErr != nil {
			// Unreadable lock younger than the threshold: another
			// process may be mid-write. Leave it for the retry loop.
			return nil
		}
		if holder.Hostname == currentHostname() && !isProcessAlive(holder.PID) {
			stale = true
		}
	}

	if stale {
		if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to reclaim stale lock: %w", err)
		}
	}
	return nil
}

// readHolder parses the holder info from a lock file.
func readHolder(lockPath string) (*HolderInfo, error) {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return nil, err
	}
	var holder HolderInfo
	if err := json.Unmarshal(data, &holder); err != nil {
		return nil, err
	}
	return &holder, nil
}

// isProcessAlive checks if a process with the given PID exists.
// Uses kill(pid, 0) which checks for process existence without sending
// a signal.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil
}

func currentHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}
