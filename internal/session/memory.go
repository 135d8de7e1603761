package session

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	sel     Selection
	expires time.Time
}

// Memory is an in-process Store with a per-entry TTL and a size bound.
// When full, the entry closest to expiry is evicted.
type Memory struct {
	mu      sync.Mutex
	ttl     time.Duration
	size    int
	now     func() time.Time
	entries map[int64]entry
}

// NewMemory creates a store holding up to size users. Non-positive ttl or
// size use DefaultTTL and 10000.
func NewMemory(ttl time.Duration, size int) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if size <= 0 {
		size = 10000
	}
	return &Memory{
		ttl:     ttl,
		size:    size,
		now:     time.Now,
		entries: make(map[int64]entry),
	}
}

// Put stores sel for userID, replacing any earlier selection. When the
// store is full it purges expired entries and then evicts the oldest.
func (m *Memory) Put(_ context.Context, userID int64, sel Selection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if sel.CreatedAt.IsZero() {
		sel.CreatedAt = now
	}
	if _, ok := m.entries[userID]; !ok && len(m.entries) >= m.size {
		m.purge(now)
		if len(m.entries) >= m.size {
			m.evictOldest()
		}
	}
	m.entries[userID] = entry{sel: sel, expires: now.Add(m.ttl)}
	return nil
}

// Take removes and returns the selection for userID, or ErrExpired when
// none is stored or its TTL has passed.
func (m *Memory) Take(_ context.Context, userID int64) (*Selection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[userID]
	if !ok {
		return nil, ErrExpired
	}
	delete(m.entries, userID)
	if !m.now().Before(e.expires) {
		return nil, ErrExpired
	}
	return &e.sel, nil
}

// Purge removes expired entries and returns how many were dropped.
func (m *Memory) Purge(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.purge(now)
}

// Len reports the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

func (m *Memory) purge(now time.Time) int {
	n := 0
	for id, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, id)
			n++
		}
	}
	return n
}

func (m *Memory) evictOldest() {
	var (
		victim int64
		oldest time.Time
		found  bool
	)
	for id, e := range m.entries {
		if !found || e.expires.Before(oldest) {
			victim, oldest, found = id, e.expires, true
		}
	}
	if found {
		delete(m.entries, victim)
	}
}
