package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// TextLimiter rate-limits text messages per session with a token
// bucket, one bucket per session id, created lazily (§5, §7 RateLimit
// "drop or delay per limiter").
type TextLimiter struct {
	mu       sync.Mutex
	buckets  map[uint32]*rate.Limiter
	r        rate.Limit
	burst    int
}

// NewTextLimiter builds a limiter allowing ratePerSecond messages per
// second per session, with burst capacity burst.
func NewTextLimiter(ratePerSecond float64, burst int) *TextLimiter {
	return &TextLimiter{
		buckets: make(map[uint32]*rate.Limiter),
		r:       rate.Limit(ratePerSecond),
		burst:   burst,
	}
}

// Allow reports whether session may send a text message now,
// consuming one token if so.
func (t *TextLimiter) Allow(session uint32) bool {
	t.mu.Lock()
	limiter, ok := t.buckets[session]
	if !ok {
		limiter = rate.NewLimiter(t.r, t.burst)
		t.buckets[session] = limiter
	}
	t.mu.Unlock()
	return limiter.Allow()
}

// Forget drops a session's bucket on disconnect, bounding memory use.
func (t *TextLimiter) Forget(session uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.buckets, session)
}

// AutoBan tracks failed connection attempts per IP in a sliding
// window and reports when a ban should be imposed (§5, §7 "Auto-ban").
// Each Edge builds its own AutoBan, so attempts made against different
// Edges are counted separately; no counter is kept on the Hub.
type AutoBan struct {
	mu        sync.Mutex
	attempts  map[string][]time.Time
	threshold int
	window    time.Duration
	duration  time.Duration
	countSuccess bool
}

// NewAutoBan builds a counter that bans an IP for duration once it
// records more than threshold qualifying attempts within window.
// countSuccess selects whether successful connections also contribute
// to the counter (Open Question: "document whether it contributes to
// the counter or only resets it" — resolved in DESIGN.md).
func NewAutoBan(threshold int, window, duration time.Duration, countSuccess bool) *AutoBan {
	return &AutoBan{
		attempts:     make(map[string][]time.Time),
		threshold:    threshold,
		window:       window,
		duration:     duration,
		countSuccess: countSuccess,
	}
}

// RecordFailure registers a failed connection attempt from ip at now,
// reporting whether the count in the window now exceeds threshold.
// Duration() holds the configured ban length. The Edge's authentication
// path discards this result, so no ban is imposed from it.
func (a *AutoBan) RecordFailure(ip string, now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.evict(ip, now)
	a.attempts[ip] = append(a.attempts[ip], now)
	return len(a.attempts[ip]) > a.threshold
}

// RecordSuccess resets the IP's counter, or contributes to it if
// countSuccess was configured.
func (a *AutoBan) RecordSuccess(ip string, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.countSuccess {
		a.evict(ip, now)
		a.attempts[ip] = append(a.attempts[ip], now)
		return
	}
	delete(a.attempts, ip)
}

// Duration returns the configured ban duration.
func (a *AutoBan) Duration() time.Duration {
	return a.duration
}

func (a *AutoBan) evict(ip string, now time.Time) {
	cutoff := now.Add(-a.window)
	times := a.attempts[ip]
	i := 0
	for ; i < len(times); i++ {
		if times[i].After(cutoff) {
			break
		}
	}
	if i == len(times) {
		delete(a.attempts, ip)
		return
	}
	a.attempts[ip] = times[i:]
}
