package scanner

import "sync"

// State is the run lifecycle state.
type State string

const (
	StateIdle      State = "IDLE"
	StateRunning   State = "RUNNING"
	StateCompleted State = "COMPLETED"
	StateAborted   State = "ABORTED"
)

// RunLock admits at most one run at a time. It also carries the lifecycle
// state: IDLE before the first run, RUNNING while held, then COMPLETED or
// ABORTED for the last run.
type RunLock struct {
	mu      sync.Mutex
	running bool
	state   State
}

// TryAcquire takes the lock if it is free. It never blocks.
func (l *RunLock) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return false
	}
	l.running = true
	l.state = StateRunning
	return true
}

// Release frees the lock and records how the run ended.
func (l *RunLock) Release(final State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.running = false
	l.state = final
}

// State returns the current lifecycle state.
func (l *RunLock) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == "" {
		return StateIdle
	}
	return l.state
}
