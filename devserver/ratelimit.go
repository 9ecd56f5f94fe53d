package devserver

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// loginRateLimiter tracks failed login attempts per username and enforces
// exponential backoff.
type loginRateLimiter struct {
	mu       sync.Mutex
	attempts map[string]*attemptRecord
	now      func() time.Time
}

type attemptRecord struct {
	failures    int
	lastFailure time.Time
	lockedUntil time.Time
}

const (
	// maxFailures is the number of consecutive failures before lockout begins.
	maxFailures = 5
	baseLockout = 1 * time.Minute
	maxLockout  = 15 * time.Minute
	// attemptExpiry is how long after the last failure a record is forgotten.
	attemptExpiry = 1 * time.Hour
)

func newLoginRateLimiter() *loginRateLimiter {
	return &loginRateLimiter{
		attempts: make(map[string]*attemptRecord),
		now:      time.Now,
	}
}

// check reports whether username is locked out and for how long.
func (rl *loginRateLimiter) check(username string) (blocked bool, retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rec, ok := rl.attempts[username]
	if !ok {
		return false, 0
	}
	now := rl.now()
	if now.Sub(rec.lastFailure) > attemptExpiry {
		delete(rl.attempts, username)
		return false, 0
	}
	if now.Before(rec.lockedUntil) {
		return true, rec.lockedUntil.Sub(now)
	}
	return false, 0
}

func (rl *loginRateLimiter) recordFailure(username string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rec, ok := rl.attempts[username]
	if !ok {
		rec = &attemptRecord{}
		rl.attempts[username] = rec
	}
	rec.failures++
	rec.lastFailure = rl.now()

	if rec.failures >= maxFailures {
		lockout := baseLockout
		for i := 0; i < rec.failures-maxFailures; i++ {
			lockout *= 2
			if lockout > maxLockout {
				lockout = maxLockout
				break
			}
		}
		rec.lockedUntil = rec.lastFailure.Add(lockout)
	}
}

func (rl *loginRateLimiter) recordSuccess(username string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.attempts, username)
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	secs := int(retryAfter.Seconds())
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeError(w, http.StatusTooManyRequests, "too many failed login attempts; try again later")
}
