// Package ratelimit implements per-client, per-endpoint-class token bucket
// rate limiting with an in-memory bucket store.
package ratelimit

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"math"
	"sync"
	"time"
)

// Class names an endpoint policy grouping. Every route is bound to one
// class; each (client, class) pair gets its own bucket.
type Class string

const (
	ClassDefault    Class = "default"
	ClassPrediction Class = "prediction"
	ClassMLAnalysis Class = "ml-analysis"
	ClassReport     Class = "report"
)

// Policy is the immutable rate configuration for one class.
type Policy struct {
	// Capacity is the maximum token count and the per-window limit.
	Capacity int
	// RefillPerSec is the continuous refill rate in tokens per second.
	RefillPerSec float64
}

// PolicyPerMinute builds a Policy from a requests-per-minute limit.
func PolicyPerMinute(limit int) Policy {
	return Policy{Capacity: limit, RefillPerSec: float64(limit) / 60.0}
}

// DefaultPolicies mirrors the shipped per-class limits.
func DefaultPolicies() map[Class]Policy {
	return map[Class]Policy{
		ClassDefault:    PolicyPerMinute(100),
		ClassPrediction: PolicyPerMinute(30),
		ClassMLAnalysis: PolicyPerMinute(20),
		ClassReport:     PolicyPerMinute(10),
	}
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed bool
	// Limit is the bucket capacity for the class.
	Limit int
	// Remaining is the floor of the token count after this request.
	Remaining int
	// RetryAfter is the whole seconds until one token is available.
	// Zero when Allowed.
	RetryAfter int
	// Denials is the consecutive denial count for this bucket, reset on
	// every admitted request. Callers may use it to flag abusive clients.
	Denials int
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall-clock time source.
func SystemClock() Clock { return systemClock{} }

// bucket holds per-(client, class) state. All fields are protected by mu;
// refill and consume are applied as one atomic unit.
type bucket struct {
	mu      sync.Mutex
	tokens  float64
	last    time.Time
	denials int
}

// Limiter maintains the bucket store. It is the only component with
// persistent cross-request state; Admit never returns an error, denial is
// a normal outcome.
type Limiter struct {
	policies map[Class]Policy
	clock    Clock

	mu      sync.RWMutex
	buckets map[string]*bucket

	// idleAfter controls advisory eviction of stale buckets.
	idleAfter time.Duration
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock injects a time source.
func WithClock(c Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

// WithIdleEviction sets how long a bucket may sit untouched before the
// housekeeping pass frees it.
func WithIdleEviction(idle time.Duration) Option {
	return func(l *Limiter) { l.idleAfter = idle }
}

// New creates a Limiter with the given per-class policies. Unknown classes
// fall back to the default class policy.
func New(policies map[Class]Policy, opts ...Option) *Limiter {
	if policies == nil {
		policies = DefaultPolicies()
	}
	l := &Limiter{
		policies:  policies,
		clock:     systemClock{},
		buckets:   make(map[string]*bucket),
		idleAfter: 10 * time.Minute,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Policy returns the effective policy for a class.
func (l *Limiter) Policy(class Class) Policy {
	if p, ok := l.policies[class]; ok {
		return p
	}
	return l.policies[ClassDefault]
}

// Admit refills and consumes one token for (clientKey, class). The bucket
// is created lazily at full capacity on first use.
func (l *Limiter) Admit(clientKey string, class Class) Decision {
	policy := l.Policy(class)
	b := l.bucketFor(clientKey+"|"+string(class), policy)

	b.mu.Lock()
	defer b.mu.Unlock()

	// The clock is read under the bucket lock so refill and consume act on
	// one consistent timestamp per request; last never moves backwards, so
	// an interval is credited at most once.
	now := l.clock.Now()
	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens = math.Min(float64(policy.Capacity), b.tokens+elapsed*policy.RefillPerSec)
		b.last = now
	}

	if b.tokens >= 1 {
		b.tokens--
		b.denials = 0
		return Decision{
			Allowed:   true,
			Limit:     policy.Capacity,
			Remaining: int(math.Floor(b.tokens)),
		}
	}

	b.denials++
	return Decision{
		Allowed:    false,
		Limit:      policy.Capacity,
		Remaining:  0,
		RetryAfter: int(math.Ceil((1 - b.tokens) / policy.RefillPerSec)),
		Denials:    b.denials,
	}
}

func (l *Limiter) bucketFor(key string, policy Policy) *bucket {
	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok = l.buckets[key]; ok {
		return b
	}
	b = &bucket{tokens: float64(policy.Capacity), last: l.clock.Now()}
	l.buckets[key] = b
	return b
}

// EvictIdle removes buckets untouched for longer than the idle window and
// returns how many were freed. Advisory: a freed bucket simply recreates
// at full capacity on the next request.
func (l *Limiter) EvictIdle() int {
	cutoff := l.clock.Now().Add(-l.idleAfter)

	l.mu.Lock()
	defer l.mu.Unlock()

	evicted := 0
	for key, b := range l.buckets {
		b.mu.Lock()
		stale := b.last.Before(cutoff)
		b.mu.Unlock()
		if stale {
			delete(l.buckets, key)
			evicted++
		}
	}
	return evicted
}

// Run performs the housekeeping pass until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context) {
	interval := l.idleAfter / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.EvictIdle()
		}
	}
}

// Stats reports bucket store counters for diagnostics.
type Stats struct {
	Buckets  int              `json:"buckets"`
	Policies map[Class]Policy `json:"policies"`
}

// Stats returns a snapshot of the limiter state.
func (l *Limiter) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	policies := make(map[Class]Policy, len(l.policies))
	for class, p := range l.policies {
		policies[class] = p
	}
	return Stats{Buckets: len(l.buckets), Policies: policies}
}

// ClientKey derives the limiter identity for a request from the remote
// address and user agent.
func ClientKey(remoteAddr, userAgent string) string {
	sum := md5.Sum([]byte(remoteAddr + ":" + userAgent))
	return hex.EncodeToString(sum[:])
}
