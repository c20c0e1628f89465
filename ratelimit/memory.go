package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const memoryShards = 32

type window struct {
	mu     sync.Mutex
	stamps []time.Time
	dead   bool
}

type memoryShard struct {
	mu      sync.RWMutex
	windows map[string]*window
}

// Memory keeps windows in process. Different pairs only contend on a shard
// lookup; decisions for the same pair are serialized by that pair's window.
type Memory struct {
	cfg    Config
	now    func() time.Time
	shards [memoryShards]memoryShard
}

func NewMemory(cfg Config) *Memory {
	m := &Memory{cfg: cfg.normalized(), now: time.Now}
	for i := range m.shards {
		m.shards[i].windows = map[string]*window{}
	}
	return m
}

// WithClock replaces the time source. Intended for tests.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	if now != nil {
		m.now = now
	}
	return m
}

func (m *Memory) Config() Config { return m.cfg }

func (m *Memory) Admit(_ context.Context, tenantID, userID string) bool {
	if m.cfg.MaxPrompts <= 0 {
		return true
	}
	key := pairKey(tenantID, userID)
	for {
		w := m.window(key)
		w.mu.Lock()
		if w.dead {
			// Swept between lookup and lock; fetch the replacement.
			w.mu.Unlock()
			continue
		}
		now := m.now()
		w.stamps = pruneStamps(w.stamps, now, m.cfg.Window)
		if len(w.stamps) >= m.cfg.MaxPrompts {
			w.mu.Unlock()
			return false
		}
		w.stamps = append(w.stamps, now)
		w.mu.Unlock()
		return true
	}
}

// Sweep drops windows with no timestamps inside the trailing window and
// returns how many were removed.
func (m *Memory) Sweep() int {
	removed := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		now := m.now()
		for key, w := range s.windows {
			w.mu.Lock()
			w.stamps = pruneStamps(w.stamps, now, m.cfg.Window)
			if len(w.stamps) == 0 {
				w.dead = true
				delete(s.windows, key)
				removed++
			}
			w.mu.Unlock()
		}
		s.mu.Unlock()
	}
	return removed
}

// Len reports the number of tracked pairs.
func (m *Memory) Len() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		n += len(s.windows)
		s.mu.RUnlock()
	}
	return n
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *Memory) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Sweep()
		}
	}
}

func (m *Memory) window(key string) *window {
	s := &m.shards[shardIndex(key)]
	s.mu.RLock()
	w, ok := s.windows[key]
	s.mu.RUnlock()
	if ok {
		return w
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok = s.windows[key]; ok {
		return w
	}
	w = &window{}
	s.windows[key] = w
	return w
}

func shardIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % memoryShards)
}

// pruneStamps drops timestamps at or beyond the window age. Stamps are in
// admission order so the survivors are a suffix.
func pruneStamps(stamps []time.Time, now time.Time, win time.Duration) []time.Time {
	i := 0
	for i < len(stamps) && now.Sub(stamps[i]) >= win {
		i++
	}
	if i == 0 {
		return stamps
	}
	return append(stamps[:0], stamps[i:]...)
}
