package controller

import "sync"

// sessionLocks provides a mutex per session ID so workflow advances for the
// same session serialize. Locks are never evicted; the population is bounded
// by the number of distinct sessions a process touches.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the mutex for sessionID and returns the release function.
func (s *sessionLocks) lock(sessionID string) func() {
	s.mu.Lock()
	m, ok := s.locks[sessionID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[sessionID] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}
