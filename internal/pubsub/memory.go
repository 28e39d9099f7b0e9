package pubsub

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryPublisher is an in-process Publisher used in tests and local
// development. Streams accumulate per-name; cooldowns expire lazily.
type MemoryPublisher struct {
	mu        sync.Mutex
	streams   map[string][]string // stream name -> JSON payloads, in publish order
	cooldowns map[string]time.Time
	failNext  error
}

// NewMemoryPublisher creates an empty in-memory publisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{
		streams:   make(map[string][]string),
		cooldowns: make(map[string]time.Time),
	}
}

// PublishToStream records a JSON-serialized payload against the stream.
func (m *MemoryPublisher) PublishToStream(ctx context.Context, stream string, key string, value interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.streams[stream] = append(m.streams[stream], string(data))
	return nil
}

// SetCooldown arms a cooldown key.
func (m *MemoryPublisher) SetCooldown(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cooldowns[key] = time.Now().Add(ttl)
	return nil
}

// IsOnCooldown reports whether the key is armed and unexpired.
func (m *MemoryPublisher) IsOnCooldown(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	expiry, ok := m.cooldowns[key]
	if !ok {
		return false, nil
	}
	if time.Now().After(expiry) {
		delete(m.cooldowns, key)
		return false, nil
	}
	return true, nil
}

// Close is a no-op.
func (m *MemoryPublisher) Close() error { return nil }

// Published returns the payloads recorded for a stream. Test helper.
func (m *MemoryPublisher) Published(stream string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.streams[stream]...)
}

// FailNext makes the next publish return err. Test helper.
func (m *MemoryPublisher) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}
