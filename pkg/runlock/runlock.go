// Package runlock keeps two scheduled runs from racing on the same artifact
// files.
package runlock

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"
)

// ErrHeld is returned by Acquire when another process holds the lock.
var ErrHeld = errors.New("another run holds the lock")

// Lock is an exclusive, non-blocking advisory file lock. The lock file is
// left in place on release; only the lock on it is dropped.
type Lock struct {
	fl *flock.Flock
}

func New(path string) *Lock {
	return &Lock{fl: flock.New(path)}
}

// Acquire takes the lock without waiting.
func (l *Lock) Acquire() error {
	locked, err := l.fl.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", l.fl.Path(), err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", ErrHeld, l.fl.Path())
	}
	return nil
}

func (l *Lock) Release() error {
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock %s: %w", l.fl.Path(), err)
	}
	return nil
}

func (l *Lock) Path() string {
	return l.fl.Path()
}
