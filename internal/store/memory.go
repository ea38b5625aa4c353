package store

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// entry is one stored value; a zero expiresAt means no expiry
type entry struct {
	value     string
	expiresAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Memory is the in-process KV implementation used for single-instance
// deployments. All operations are atomic per key.
type Memory struct {
	mu        sync.Mutex
	data      map[string]*entry
	stop      chan struct{}
	closeOnce sync.Once
}

// NewMemory creates an in-process KV store
func NewMemory() *Memory {
	m := &Memory{
		data: make(map[string]*entry),
		stop: make(chan struct{}),
	}
	go m.janitor()
	return m
}

// janitor drops expired keys so a long-lived process does not grow
// unbounded from one-shot locks and windows.
func (m *Memory) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
		}

		now := time.Now()
		m.mu.Lock()
		for key, e := range m.data {
			if e.expired(now) {
				delete(m.data, key)
			}
		}
		m.mu.Unlock()
	}
}

// Close stops the janitor goroutine. The store remains usable for
// reads and writes afterwards; expired keys are then only dropped
// lazily on access. Safe to call more than once.
func (m *Memory) Close() error {
	m.closeOnce.Do(func() { close(m.stop) })
	return nil
}

func (m *Memory) get(key string) (*entry, bool) {
	e, ok := m.data[key]
	if !ok {
		return nil, false
	}
	if e.expired(time.Now()) {
		delete(m.data, key)
		return nil, false
	}
	return e, true
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.get(key)
	if !ok {
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := &entry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	m.data[key] = e
	return nil
}

func (m *Memory) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.get(key); ok {
		return false, nil
	}

	e := &entry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	m.data[key] = e
	return true, nil
}

// Incr atomically increments the counter at key, creating it with ttl
// when absent or expired.
func (m *Memory) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.get(key)
	if !ok {
		e = &entry{value: "0"}
		if ttl > 0 {
			e.expiresAt = time.Now().Add(ttl)
		}
		m.data[key] = e
	}

	n, err := strconv.ParseInt(e.value, 10, 64)
	if err != nil {
		n = 0
	}
	n++
	e.value = strconv.FormatInt(n, 10)
	return n, nil
}

// TTL returns the remaining lifetime of key, 0 when the key is absent
// or has no expiry.
func (m *Memory) TTL(_ context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.get(key)
	if !ok || e.expiresAt.IsZero() {
		return 0, nil
	}
	return time.Until(e.expiresAt), nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}
