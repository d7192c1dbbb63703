package hood

import "sync"

// Store holds the last known full device state. The poller merges into it
// from the background while callers snapshot it, so access is guarded by
// a read-write lock. Fields are never deleted, only overwritten.
type Store struct {
	mu    sync.RWMutex
	state State
}

// NewStore seeds the store so Snapshot is usable before the first
// successful exchange.
func NewStore(defaults State) *Store {
	return &Store{state: defaults.Clone()}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Merge applies a shallow union: keys in partial overwrite the store,
// every other key is retained.
func (s *Store) Merge(partial State) {
	if len(partial) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range partial {
		s.state[k] = v
	}
}
