package entity

import (
	"sync"

	"github.com/roach88/graphgate/internal/value"
)

// snapshot is the local copy of an entity's properties plus its staleness
// flag. The mutex keeps the maps memory-safe; it does not serialize
// conflicting updates, which is the database transaction's job.
type snapshot struct {
	mu    sync.RWMutex
	props map[string]any
	stale bool
}

func (s *snapshot) reset(props map[string]any) {
	s.props = value.NormalizeMap(props)
	s.stale = false
}

// Stale reports whether the snapshot must be re-read before use.
func (s *snapshot) Stale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stale
}

func (s *snapshot) setStale() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stale = true
}

func (s *snapshot) get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.props[key]
	return value.Clone(v), ok
}

func (s *snapshot) keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return value.SortedKeys(s.props)
}

func (s *snapshot) properties() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.props))
	for k, v := range s.props {
		out[k] = value.Clone(v)
	}
	return out
}

// changes returns the subset of updates that differ from the snapshot. A
// nil value means removal and only counts when the key is present.
func (s *snapshot) changes(updates map[string]any) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any)
	for k, v := range updates {
		v = value.Normalize(v)
		cur, ok := s.props[k]
		switch {
		case v == nil && !ok:
		case v == nil:
			out[k] = nil
		case ok && value.Equal(cur, v):
		default:
			out[k] = v
		}
	}
	return out
}

func (s *snapshot) apply(changes map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range changes {
		if v == nil {
			delete(s.props, k)
			continue
		}
		s.props[k] = value.Clone(v)
	}
}
