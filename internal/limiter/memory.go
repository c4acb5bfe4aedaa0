package limiter

import (
	"context"
	"sync"
	"time"

	"github.com/and161185/leadgate/internal/metrics"
)

// MaxKeys is the map size above which expired keys are swept.
const MaxKeys = 20000

// Memory is a process-local sliding-window log limiter.
type Memory struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	hits   map[string][]time.Time
	now    func() time.Time
}

// NewMemory constructs a limiter admitting max requests per key per window.
func NewMemory(max int, window time.Duration) *Memory {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Second
	}
	return &Memory{
		max:    max,
		window: window,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow implements Limiter. It never fails.
func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	recent := inWindow(m.hits[key], now.Add(-m.window))
	if len(recent) >= m.max {
		m.hits[key] = recent
		metrics.RateLimitDecisions.WithLabelValues("memory", metrics.DecisionDeny).Inc()
		return false, nil
	}
	m.hits[key] = append(recent, now)
	if len(m.hits) > MaxKeys {
		m.sweep(now)
	}
	metrics.RateLimitDecisions.WithLabelValues("memory", metrics.DecisionAllow).Inc()
	return true, nil
}

// Len returns the number of tracked keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hits)
}

func (m *Memory) sweep(now time.Time) {
	cutoff := now.Add(-m.window)
	for k, ts := range m.hits {
		recent := inWindow(ts, cutoff)
		if len(recent) == 0 {
			delete(m.hits, k)
			continue
		}
		m.hits[k] = recent
	}
}

// inWindow drops timestamps at or before cutoff. ts is ascending.
func inWindow(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}
