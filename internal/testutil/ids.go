package testutil

import "sync"

// IDSequence hands out monotonically increasing entity identities.
//
// Thread-safety: all methods are safe for concurrent use.
type IDSequence struct {
	mu   sync.Mutex
	last int64
}

// NewIDSequence returns a sequence whose first Next is start.
func NewIDSequence(start int64) *IDSequence {
	return &IDSequence{last: start - 1}
}

// Next returns the next identity.
func (s *IDSequence) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last++
	return s.last
}

// Current returns the last identity handed out.
func (s *IDSequence) Current() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Skip advances the sequence so the next identity is greater than id.
func (s *IDSequence) Skip(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = max(s.last, id)
}
