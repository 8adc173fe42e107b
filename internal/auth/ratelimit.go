package auth

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter throttles failed logins per client IP and email. Each key has
// a token bucket holding MaxAttempts failures that refills over the window;
// emptying it locks the key out. This is separate from the per-account
// lockout stored with the user.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*loginBucket

	limit    rate.Limit
	burst    int
	lockout  time.Duration
	idleTTL  time.Duration
	interval time.Duration

	stopOnce sync.Once
	done     chan struct{}
}

type loginBucket struct {
	limiter     *rate.Limiter
	lockedUntil time.Time
	lastFailure time.Time
}

// RateLimitConfig configures a RateLimiter. Zero fields take defaults.
type RateLimitConfig struct {
	MaxAttempts     int           // failures allowed per window (5)
	WindowDuration  time.Duration // time for a full bucket to refill (15m)
	LockoutDuration time.Duration // lockout once the bucket is empty (30m)
	CleanupInterval time.Duration // how often idle keys are dropped (5m)
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.WindowDuration <= 0 {
		cfg.WindowDuration = 15 * time.Minute
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = 30 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}

	rl := &RateLimiter{
		buckets:  make(map[string]*loginBucket),
		limit:    rate.Every(cfg.WindowDuration / time.Duration(cfg.MaxAttempts)),
		burst:    cfg.MaxAttempts,
		lockout:  cfg.LockoutDuration,
		idleTTL:  cfg.WindowDuration + cfg.LockoutDuration,
		interval: cfg.CleanupInterval,
		done:     make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

func bucketKey(ip, email string) string {
	return ip + ":" + strings.ToLower(strings.TrimSpace(email))
}

// Allow reports whether a login attempt may proceed and, if not, how long
// the caller should wait.
func (rl *RateLimiter) Allow(ip, email string) (bool, time.Duration) {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[bucketKey(ip, email)]
	if !ok || !now.Before(b.lockedUntil) {
		return true, 0
	}
	return false, b.lockedUntil.Sub(now)
}

// RecordFailure spends one token for the key and reports whether that
// locked it out.
func (rl *RateLimiter) RecordFailure(ip, email string) (bool, time.Duration) {
	now := time.Now()
	key := bucketKey(ip, email)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		b = &loginBucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastFailure = now

	if !b.limiter.AllowN(now, 1) || b.limiter.TokensAt(now) < 1 {
		b.lockedUntil = now.Add(rl.lockout)
		return true, rl.lockout
	}
	return false, 0
}

// RecordSuccess forgets the key's failures.
func (rl *RateLimiter) RecordSuccess(ip, email string) {
	rl.mu.Lock()
	delete(rl.buckets, bucketKey(ip, email))
	rl.mu.Unlock()
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			rl.dropIdle(now)
		case <-rl.done:
			return
		}
	}
}

// dropIdle removes keys that are not locked and have not failed recently.
func (rl *RateLimiter) dropIdle(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, b := range rl.buckets {
		if now.After(b.lockedUntil) && now.Sub(b.lastFailure) > rl.idleTTL {
			delete(rl.buckets, key)
		}
	}
}
