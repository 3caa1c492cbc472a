package ratelimit

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore tracks hits per key in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	maxAge   time.Duration
	stop     chan struct{}
	once     sync.Once
}

// NewMemoryStore starts a store whose cleanup drops keys idle for longer than maxAge.
func NewMemoryStore(maxAge time.Duration) *MemoryStore {
	s := &MemoryStore{
		requests: make(map[string][]time.Time),
		maxAge:   maxAge,
		stop:     make(chan struct{}),
	}

	// Start cleanup goroutine to prevent memory leak
	go s.cleanupLoop()

	return s
}

func (s *MemoryStore) RecordIfAllowed(_ context.Context, key string, now time.Time, window time.Duration, limit int) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	valid := s.prune(key, now, window)
	if len(valid) >= limit {
		return false, len(valid), nil
	}

	valid = append(valid, now)
	s.requests[key] = valid
	return true, len(valid), nil
}

func (s *MemoryStore) Release(_ context.Context, key string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	requests := s.requests[key]
	for i := len(requests) - 1; i >= 0; i-- {
		if requests[i].Equal(at) {
			s.requests[key] = slices.Delete(requests, i, i+1)
			break
		}
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.requests, key)
	return nil
}

func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

// prune drops hits outside the window. Must be called with lock held.
func (s *MemoryStore) prune(key string, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	requests := s.requests[key]

	valid := requests[:0]
	for _, t := range requests {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	if len(valid) == 0 {
		delete(s.requests, key)
		return nil
	}
	s.requests[key] = valid
	return valid
}

func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup(time.Now())
		case <-s.stop:
			return
		}
	}
}

// cleanup removes keys with no recent requests
func (s *MemoryStore) cleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-s.maxAge)
	for key, requests := range s.requests {
		if len(requests) == 0 || !requests[len(requests)-1].After(cutoff) {
			delete(s.requests, key)
		}
	}
}
