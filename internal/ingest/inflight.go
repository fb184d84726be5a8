package ingest

import "sync"

// InFlightSet tracks the absolute paths currently being ingested. Membership
// is tested and inserted under one lock so two triggers for the same file
// cannot both proceed.
type InFlightSet struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

// NewInFlightSet creates an empty set.
func NewInFlightSet() *InFlightSet {
	return &InFlightSet{paths: make(map[string]struct{})}
}

// TryAcquire adds path and reports true, or reports false if it is already present.
func (s *InFlightSet) TryAcquire(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.paths[path]; ok {
		return false
	}
	s.paths[path] = struct{}{}
	return true
}

// Release removes path.
func (s *InFlightSet) Release(path string) {
	s.mu.Lock()
	delete(s.paths, path)
	s.mu.Unlock()
}

// Contains reports whether path is being ingested.
func (s *InFlightSet) Contains(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.paths[path]
	return ok
}

// Len returns the number of paths in flight.
func (s *InFlightSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.paths)
}
