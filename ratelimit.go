package auth

import (
	"sync"
	"time"
)

// LoginPolicy is the client-side throttle for password logins. The
// captcha threshold is deliberately a policy value, not a constant.
type LoginPolicy struct {
	MaxAttempts      int
	Window           time.Duration
	CaptchaThreshold int
}

func (p *LoginPolicy) applyDefaults() {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = 5
	}
	if p.Window == 0 {
		p.Window = 15 * time.Minute
	}
	if p.CaptchaThreshold == 0 {
		p.CaptchaThreshold = 2
	}
}

type attemptRecord struct {
	count   int
	resetAt time.Time
}

// LoginLimiter counts login attempts per key in a fixed window. A
// successful login clears the key, so an outstanding count is the number
// of failed attempts in the current window.
type LoginLimiter struct {
	mu       sync.Mutex
	attempts map[string]*attemptRecord

	now func() time.Time
}

func NewLoginLimiter() *LoginLimiter {
	return &LoginLimiter{
		attempts: map[string]*attemptRecord{},
		now:      time.Now,
	}
}

// Allow consumes one attempt for key. It returns false once max attempts
// have been made inside the window.
func (l *LoginLimiter) Allow(key string, max int, window time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rec, ok := l.attempts[key]
	if !ok || now.After(rec.resetAt) {
		l.attempts[key] = &attemptRecord{count: 1, resetAt: now.Add(window)}
		return true
	}

	if rec.count >= max {
		return false
	}

	rec.count++
	return true
}

func (l *LoginLimiter) Count(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.attempts[key]
	if !ok || l.now().After(rec.resetAt) {
		return 0
	}

	return rec.count
}

func (l *LoginLimiter) Clear(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, key)
}
