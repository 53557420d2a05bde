// Package lock guarantees at most one active maintenance run at a time.
package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/snapguard-project/snapguard/pkg/errclass"
	"github.com/snapguard-project/snapguard/pkg/fsutil"
	"github.com/snapguard-project/snapguard/pkg/model"
)

const lockFileName = "snapguard.lock.json"

// Manager handles the exclusive run lock.
type Manager struct {
	dir string
	mu  sync.Mutex
}

// NewManager creates a lock manager rooted at dir.
func NewManager(dir string) *Manager {
	return &Manager{dir: dir}
}

// Acquire attempts to take the run lock for runID. A second run attempting
// to start while one is active fails immediately with ErrLockHeld rather
// than queueing. A lock left behind by a dead process is reclaimed.
func (m *Manager) Acquire(runID string) (*model.LockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lockPath := m.lockPath()
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	// O_CREAT|O_EXCL for atomic acquire
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			rec, readErr := m.readLock(lockPath)
			if readErr != nil {
				return nil, fmt.Errorf("read existing lock: %w", readErr)
			}
			if holderAlive(rec.PID) {
				return nil, errclass.ErrLockHeld.WithMessagef(
					"a run (%s, pid %d) has been active since %s",
					rec.RunID, rec.PID, rec.AcquiredAt.Format(time.RFC3339))
			}
			// Holder is gone; reclaim in place.
			return m.steal(lockPath, runID)
		}
		return nil, fmt.Errorf("create lock: %w", err)
	}
	defer file.Close()

	rec := newRecord(runID)
	if err := m.writeLock(file, rec); err != nil {
		os.Remove(lockPath)
		return nil, err
	}

	return rec, nil
}

// Release frees the lock if runID holds it. Releasing an already-released
// lock is a no-op.
func (m *Manager) Release(runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lockPath := m.lockPath()
	rec, err := m.readLock(lockPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // already released
		}
		return fmt.Errorf("read lock: %w", err)
	}

	if rec.RunID != runID {
		return errclass.ErrLockNotHeld.WithMessagef("lock is held by run %s, not %s", rec.RunID, runID)
	}

	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock: %w", err)
	}

	return nil
}

// Status returns the current holder, or nil when the lock is free.
func (m *Manager) Status() (*model.LockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.readLock(m.lockPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read lock: %w", err)
	}
	return rec, nil
}

func (m *Manager) steal(lockPath, runID string) (*model.LockRecord, error) {
	rec := newRecord(runID)
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal lock: %w", err)
	}
	if err := fsutil.AtomicWrite(lockPath, data, 0644); err != nil {
		return nil, fmt.Errorf("reclaim lock: %w", err)
	}
	return rec, nil
}

func (m *Manager) lockPath() string {
	return filepath.Join(m.dir, lockFileName)
}

func (m *Manager) readLock(path string) (*model.LockRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec model.LockRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse lock: %w", err)
	}
	return &rec, nil
}

func (m *Manager) writeLock(file *os.File, rec *model.LockRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal lock: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("write lock: %w", err)
	}
	return file.Sync()
}

func newRecord(runID string) *model.LockRecord {
	hostname, _ := os.Hostname()
	return &model.LockRecord{
		RunID:      runID,
		PID:        os.Getpid(),
		Hostname:   hostname,
		AcquiredAt: time.Now().UTC(),
	}
}

// holderAlive reports whether the lock holder's process still exists.
func holderAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	// EPERM means the process exists but belongs to another user.
	return err == nil || err == syscall.EPERM
}
