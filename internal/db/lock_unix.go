//go:build unix

package db

import (
	"golang.org/x/sys/unix"
)

// tryLock takes an exclusive flock without blocking.
func (l *storeLock) tryLock() error {
	return unix.Flock(int(l.f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
}

func (l *storeLock) unlock() {
	if l.f != nil {
		unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	}
}

// isProcessAlive probes pid with signal 0.
func isProcessAlive(pid int) bool {
	return unix.Kill(pid, 0) == nil
}
