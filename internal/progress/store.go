package progress

import "sync"

// Store is a concurrency-safe map of job ID to progress percentage.
// Unknown job IDs read as 0.
type Store struct {
	mu      sync.RWMutex
	entries map[string]int
}

// NewStore creates an empty progress store
func NewStore() *Store {
	return &Store{
		entries: make(map[string]int),
	}
}

// SetProgress records percent for jobID, replacing any previous value
func (s *Store) SetProgress(jobID string, percent int) {
	s.mu.Lock()
	s.entries[jobID] = percent
	s.mu.Unlock()
}

// GetProgress returns the stored percentage for jobID, or 0 if the job is not tracked
func (s *Store) GetProgress(jobID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[jobID]
}

// Lookup is GetProgress that also reports whether jobID is tracked
func (s *Store) Lookup(jobID string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	percent, ok := s.entries[jobID]
	return percent, ok
}

// GetAllProgress returns a copy of every tracked job's progress.
// The returned map is owned by the caller.
func (s *Store) GetAllProgress() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make(map[string]int, len(s.entries))
	for jobID, percent := range s.entries {
		snapshot[jobID] = percent
	}
	return snapshot
}

// RemoveJob forgets jobID. Removing an unknown job is a no-op.
func (s *Store) RemoveJob(jobID string) {
	s.mu.Lock()
	delete(s.entries, jobID)
	s.mu.Unlock()
}

// Len returns the number of tracked jobs
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
