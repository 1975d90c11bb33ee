package syncer

import (
	"errors"
	"sync"
)

// ErrRunInProgress indicates a sync run is already executing.
var ErrRunInProgress = errors.New("sync run already in progress")

// RunLock serializes sync runs triggered from concurrent sources
// (webhook, watcher, CLI). Acquisition never blocks: a trigger arriving
// mid-run is rejected, since the running pass will already observe the
// state that prompted it or the next trigger will.
type RunLock struct {
	mu sync.Mutex
}

// Acquire takes the lock, returning a release func, or ErrRunInProgress
// if a run holds it.
func (l *RunLock) Acquire() (func(), error) {
	if !l.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	return l.mu.Unlock, nil
}
