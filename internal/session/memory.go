package session

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultMemoryTTL is how long an idle session lives in a MemoryBackend
	DefaultMemoryTTL = 30 * time.Minute

	// CleanupInterval is how often the background cleanup runs
	CleanupInterval = 30 * time.Second
)

type memorySession struct {
	values    map[string][]byte
	expiresAt time.Time
}

// MemoryBackend implements Backend with in-process storage. Sessions expire
// after ttl without writes.
type MemoryBackend struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
	ttl      time.Duration
	now      func() time.Time

	stopCleanup chan struct{}
	wg          sync.WaitGroup
}

func NewMemoryBackend(ttl time.Duration) *MemoryBackend {
	if ttl <= 0 {
		ttl = DefaultMemoryTTL
	}
	b := &MemoryBackend{
		sessions:    make(map[string]*memorySession),
		ttl:         ttl,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}

	b.wg.Add(1)
	go b.cleanupLoop()

	return b
}

func (b *MemoryBackend) cleanupLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.expireSessions()
		case <-b.stopCleanup:
			return
		}
	}
}

func (b *MemoryBackend) expireSessions() {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	for id, s := range b.sessions {
		if now.After(s.expiresAt) {
			delete(b.sessions, id)
		}
	}
}

func (b *MemoryBackend) Get(_ context.Context, sessionID, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s, ok := b.sessions[sessionID]
	if !ok || b.now().After(s.expiresAt) {
		return nil, ErrMissing
	}
	v, ok := s.values[key]
	if !ok {
		return nil, ErrMissing
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (b *MemoryBackend) Remember(_ context.Context, sessionID, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.sessions[sessionID]
	if !ok || b.now().After(s.expiresAt) {
		s = &memorySession{values: make(map[string][]byte)}
		b.sessions[sessionID] = s
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	s.values[key] = stored
	s.expiresAt = b.now().Add(b.ttl)
	return nil
}

func (b *MemoryBackend) Forget(_ context.Context, sessionID, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.sessions[sessionID]; ok {
		delete(s.values, key)
	}
	return nil
}

// Close stops the background cleanup and waits for it to finish
func (b *MemoryBackend) Close() error {
	close(b.stopCleanup)
	b.wg.Wait()
	return nil
}
