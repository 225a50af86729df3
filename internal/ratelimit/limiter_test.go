package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time          { return c.t }
func (c *stepClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	m := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, "rl")
}

func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  newRedisStore(t),
	}
}

func TestMinuteCap(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := &stepClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
			l := New(store, DefaultPolicies(), clock.Now)

			for i := 1; i <= 60; i++ {
				ok, err := l.Allowed(ctx, "1.2.3.4", BucketGeneral)
				if err != nil {
					t.Fatalf("Allowed() error: %v", err)
				}
				if !ok {
					t.Fatalf("call %d denied", i)
				}
				clock.Advance(500 * time.Millisecond)
			}
			ok, err := l.Allowed(ctx, "1.2.3.4", BucketGeneral)
			if err != nil || ok {
				t.Fatalf("61st call = %v, %v; want denied", ok, err)
			}

			st, err := l.Status(ctx, "1.2.3.4", BucketGeneral)
			if err != nil {
				t.Fatalf("Status() error: %v", err)
			}
			if st.MinuteUsed != 60 || st.MinuteRemaining != 0 || st.HourRemaining != 940 || st.RetryAfter() != time.Minute {
				t.Fatalf("unexpected status: %+v", st)
			}

			clock.Advance(61 * time.Second)
			ok, err = l.Allowed(ctx, "1.2.3.4", BucketGeneral)
			if err != nil || !ok {
				t.Fatalf("call after 61s = %v, %v; want allowed", ok, err)
			}
		})
	}
}

func TestDeniedCallsAreNotRecorded(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := &stepClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
			l := New(store, map[string]Policy{BucketGeneral: {PerMinute: 2, PerHour: 10}}, clock.Now)

			for i := 0; i < 10; i++ {
				_, _ = l.Allowed(ctx, "u1", BucketGeneral)
			}
			st, err := l.Status(ctx, "u1", BucketGeneral)
			if err != nil {
				t.Fatalf("Status() error: %v", err)
			}
			if st.MinuteUsed != 2 || st.HourUsed != 2 {
				t.Fatalf("denied checks were counted: %+v", st)
			}
		})
	}
}

func TestHourCap(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := &stepClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
			l := New(store, map[string]Policy{BucketAuth: {PerMinute: 10, PerHour: 3}}, clock.Now)

			for i := 0; i < 3; i++ {
				if ok, _ := l.Allowed(ctx, "u1", BucketAuth); !ok {
					t.Fatalf("call %d denied", i)
				}
				clock.Advance(2 * time.Minute)
			}
			if ok, _ := l.Allowed(ctx, "u1", BucketAuth); ok {
				t.Fatalf("hour cap not enforced")
			}
			st, _ := l.Status(ctx, "u1", BucketAuth)
			if st.RetryAfter() != time.Hour {
				t.Fatalf("RetryAfter() = %v", st.RetryAfter())
			}

			clock.Advance(time.Hour)
			if ok, _ := l.Allowed(ctx, "u1", BucketAuth); !ok {
				t.Fatalf("entries older than an hour still counted")
			}
		})
	}
}

func TestBucketsAreIndependent(t *testing.T) {
	ctx := context.Background()
	clock := &stepClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	l := New(NewMemoryStore(), nil, clock.Now)

	for i := 0; i < 10; i++ {
		if ok, _ := l.Allowed(ctx, "ip", BucketAuth); !ok {
			t.Fatalf("auth call %d denied", i)
		}
	}
	if ok, _ := l.Allowed(ctx, "ip", BucketAuth); ok {
		t.Fatalf("11th auth call allowed")
	}
	if ok, _ := l.Allowed(ctx, "ip", BucketGeneral); !ok {
		t.Fatalf("general bucket affected by auth bucket")
	}
	if ok, _ := l.Allowed(ctx, "other-ip", BucketAuth); !ok {
		t.Fatalf("identifiers share a log")
	}
}

func TestUnknownBucketUsesGeneralPolicy(t *testing.T) {
	l := New(NewMemoryStore(), nil, time.Now)
	st, err := l.Status(context.Background(), "x", "uploads")
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if st.Limits != DefaultPolicies()[BucketGeneral] {
		t.Fatalf("unexpected limits: %+v", st.Limits)
	}
}
