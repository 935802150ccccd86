package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	lockFileName = "store.lock"
	lockWait     = 2 * time.Second
	lockPollMin  = 5 * time.Millisecond
	lockPollMax  = 50 * time.Millisecond
)

// ErrLockTimeout is returned when another process holds the store lock too long.
var ErrLockTimeout = errors.New("store lock timeout")

// lockHolder is written into the lock file by the process holding it.
type lockHolder struct {
	PID     int       `json:"pid"`
	Command string    `json:"command"`
	Since   time.Time `json:"since"`
}

func (h *lockHolder) String() string {
	if h == nil {
		return "unknown"
	}
	s := fmt.Sprintf("%s pid:%d since %s", h.Command, h.PID, h.Since.Format(time.RFC3339))
	if !isProcessAlive(h.PID) {
		s += " (stale)"
	}
	return s
}

// LockTimeoutError names the process that kept the lock.
type LockTimeoutError struct {
	Waited time.Duration
	Holder *lockHolder
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("%v after %v (holder: %s)", ErrLockTimeout, e.Waited, e.Holder)
}

func (e *LockTimeoutError) Unwrap() error { return ErrLockTimeout }

// storeLock serializes write transactions of the processes sharing a data
// dir: the daemon and the one-shot commands that queue actions. The OS drops
// the lock when its holder exits.
type storeLock struct {
	path string
	f    *os.File
}

func newStoreLock(dataDir string) *storeLock {
	return &storeLock{path: filepath.Join(dataDir, lockFileName)}
}

// acquire polls for the lock until it is free, wait elapses or ctx ends.
func (l *storeLock) acquire(ctx context.Context, wait time.Duration) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	l.f = f

	timer := time.NewTimer(wait)
	defer timer.Stop()
	poll := lockPollMin
	for {
		if l.tryLock() == nil {
			l.stamp()
			return nil
		}
		select {
		case <-ctx.Done():
			l.closeFile()
			return ctx.Err()
		case <-timer.C:
			holder := l.holder()
			l.closeFile()
			return &LockTimeoutError{Waited: wait, Holder: holder}
		case <-time.After(poll):
			poll = min(poll*2, lockPollMax)
		}
	}
}

func (l *storeLock) release() {
	if l.f == nil {
		return
	}
	l.f.Truncate(0)
	l.unlock()
	l.closeFile()
}

func (l *storeLock) closeFile() {
	l.f.Close()
	l.f = nil
}

// stamp records this process as the holder.
func (l *storeLock) stamp() {
	cmd := "unknown"
	if len(os.Args) > 0 {
		cmd = filepath.Base(os.Args[0])
	}
	data, _ := json.Marshal(lockHolder{PID: os.Getpid(), Command: cmd, Since: time.Now()})
	l.f.Truncate(0)
	l.f.WriteAt(data, 0)
	l.f.Sync()
}

func (l *storeLock) holder() *lockHolder {
	data, err := os.ReadFile(l.path)
	if err != nil || len(data) == 0 {
		return nil
	}
	var h lockHolder
	if json.Unmarshal(data, &h) != nil || h.PID == 0 {
		return nil
	}
	return &h
}
