// Package ratelimit keeps per-identifier request logs over a one-minute and a
// one-hour window.  The log lives in a Store: MemoryStore caps each process
// separately, RedisStore shares the cap across processes.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Bucket names used by the HTTP layer.
const (
	BucketGeneral = "general"
	BucketAuth    = "auth"
)

const (
	minuteWindow = time.Minute
	hourWindow   = time.Hour
)

// Policy caps requests per sliding minute and hour.
type Policy struct {
	PerMinute int `json:"per_minute"`
	PerHour   int `json:"per_hour"`
}

// DefaultPolicies returns the stock bucket caps.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		BucketGeneral: {PerMinute: 60, PerHour: 1000},
		BucketAuth:    {PerMinute: 10, PerHour: 100},
	}
}

// Status reports usage for one identifier and bucket.
type Status struct {
	MinuteUsed      int    `json:"minute_used"`
	HourUsed        int    `json:"hour_used"`
	MinuteRemaining int    `json:"minute_remaining"`
	HourRemaining   int    `json:"hour_remaining"`
	Limits          Policy `json:"limits"`
}

// RetryAfter is how long a denied caller should wait before the window that
// denied it has room again.
func (s Status) RetryAfter() time.Duration {
	if s.HourRemaining == 0 {
		return hourWindow
	}
	if s.MinuteRemaining == 0 {
		return minuteWindow
	}
	return 0
}

// Store persists the per-key request log.
type Store interface {
	// Admit drops entries older than an hour, counts the remaining ones in
	// both windows and records now only when both counts are under p.
	// The returned counts are before recording.
	Admit(ctx context.Context, key string, now time.Time, p Policy) (allowed bool, minute, hour int, err error)
	// Counts returns the entries inside each window without mutating.
	Counts(ctx context.Context, key string, now time.Time) (minute, hour int, err error)
}

// Limiter applies bucket policies over a Store.
type Limiter struct {
	store    Store
	policies map[string]Policy
	now      func() time.Time
}

// New builds a Limiter.  Unknown buckets fall back to the general policy.
func New(store Store, policies map[string]Policy, now func() time.Time) *Limiter {
	if policies == nil {
		policies = DefaultPolicies()
	}
	if now == nil {
		now = time.Now
	}
	return &Limiter{store: store, policies: policies, now: now}
}

func (l *Limiter) policy(bucket string) Policy {
	if p, ok := l.policies[bucket]; ok {
		return p
	}
	return l.policies[BucketGeneral]
}

func key(identifier, bucket string) string { return identifier + ":" + bucket }

// Allowed reports whether identifier may make another request in bucket and
// records it if so.  Denied checks are not recorded.
func (l *Limiter) Allowed(ctx context.Context, identifier, bucket string) (bool, error) {
	ok, _, _, err := l.store.Admit(ctx, key(identifier, bucket), l.now(), l.policy(bucket))
	if err != nil {
		return false, fmt.Errorf("ratelimit.Allowed: %w", err)
	}
	return ok, nil
}

// Status returns current usage for identifier in bucket.
func (l *Limiter) Status(ctx context.Context, identifier, bucket string) (Status, error) {
	p := l.policy(bucket)
	minute, hour, err := l.store.Counts(ctx, key(identifier, bucket), l.now())
	if err != nil {
		return Status{}, fmt.Errorf("ratelimit.Status: %w", err)
	}
	return Status{
		MinuteUsed:      minute,
		HourUsed:        hour,
		MinuteRemaining: max(0, p.PerMinute-minute),
		HourRemaining:   max(0, p.PerHour-hour),
		Limits:          p,
	}, nil
}
