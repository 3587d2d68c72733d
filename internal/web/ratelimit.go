package web

import (
	"sync"
	"time"
)

// loginAttempt tracks failed logins from one IP.
type loginAttempt struct {
	count    int
	firstAt  time.Time
	lockedAt time.Time
	locked   bool
}

// loginLimiter locks an IP out after too many failed logins in a window.
type loginLimiter struct {
	mu           sync.Mutex
	attempts     map[string]*loginAttempt
	maxAttempts  int
	windowPeriod time.Duration
	lockDuration time.Duration
	now          func() time.Time
}

func newLoginLimiter(maxAttempts int, window, lock time.Duration) *loginLimiter {
	return &loginLimiter{
		attempts:     make(map[string]*loginAttempt),
		maxAttempts:  maxAttempts,
		windowPeriod: window,
		lockDuration: lock,
		now:          time.Now,
	}
}

// Check reports whether ip may try again, and if not, for how long it must wait.
func (l *loginLimiter) Check(ip string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	a, ok := l.attempts[ip]
	if !ok {
		return true, 0
	}
	if a.locked {
		if remaining := l.lockDuration - now.Sub(a.lockedAt); remaining > 0 {
			return false, remaining
		}
		delete(l.attempts, ip)
		return true, 0
	}
	if now.Sub(a.firstAt) > l.windowPeriod {
		delete(l.attempts, ip)
	}
	return true, 0
}

// Record counts a login result. Success clears the history for ip.
func (l *loginLimiter) Record(ip string, success bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if success {
		delete(l.attempts, ip)
		return
	}
	now := l.now()
	a, ok := l.attempts[ip]
	if !ok || now.Sub(a.firstAt) > l.windowPeriod {
		a = &loginAttempt{firstAt: now}
		l.attempts[ip] = a
	}
	a.count++
	if a.count >= l.maxAttempts {
		a.locked = true
		a.lockedAt = now
	}
}

// cleanup drops expired entries.
func (l *loginLimiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for ip, a := range l.attempts {
		if a.locked {
			if now.Sub(a.lockedAt) > l.lockDuration {
				delete(l.attempts, ip)
			}
		} else if now.Sub(a.firstAt) > l.windowPeriod {
			delete(l.attempts, ip)
		}
	}
}
