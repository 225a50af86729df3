package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps request logs in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	logs map[string][]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{logs: map[string][]time.Time{}}
}

func (m *MemoryStore) Admit(_ context.Context, key string, now time.Time, p Policy) (bool, int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	log := prune(m.logs[key], now)
	minute, hour := count(log, now)
	allowed := minute < p.PerMinute && hour < p.PerHour
	if allowed {
		log = append(log, now)
	}
	if len(log) == 0 {
		delete(m.logs, key)
	} else {
		m.logs[key] = log
	}
	return allowed, minute, hour, nil
}

func (m *MemoryStore) Counts(_ context.Context, key string, now time.Time) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	minute, hour := count(m.logs[key], now)
	return minute, hour, nil
}

// prune drops entries at least an hour old.  Entries are appended in clock
// order, so the survivors are a suffix.
func prune(log []time.Time, now time.Time) []time.Time {
	i := 0
	for i < len(log) && now.Sub(log[i]) >= hourWindow {
		i++
	}
	return log[i:]
}

func count(log []time.Time, now time.Time) (minute, hour int) {
	for _, ts := range log {
		age := now.Sub(ts)
		if age >= hourWindow {
			continue
		}
		hour++
		if age < minuteWindow {
			minute++
		}
	}
	return minute, hour
}
