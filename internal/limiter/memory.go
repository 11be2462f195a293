package limiter

import (
	"context"
	"sync"
	"time"
)

// Memory is a process-local sliding-window limiter.
type Memory struct {
	mu   sync.Mutex
	hits map[string][]time.Time
	now  func() time.Time
}

// NewMemory returns an empty in-process limiter.
func NewMemory() *Memory {
	return &Memory{hits: make(map[string][]time.Time), now: time.Now}
}

// Allow implements Limiter.
func (m *Memory) Allow(_ context.Context, key string, rule Rule) (bool, time.Duration, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.hits[key][:0]
	for _, t := range m.hits[key] {
		if now.Sub(t) < rule.Window {
			kept = append(kept, t)
		}
	}
	if len(kept) >= rule.Limit {
		m.hits[key] = kept
		return false, kept[0].Add(rule.Window).Sub(now), nil
	}
	m.hits[key] = append(kept, now)
	return true, 0, nil
}
