package generic

import "sync"

// =============================================================================
// SEQUENCER - Stale response detection for async suggestion calls
// =============================================================================

// Sequencer hands out monotonically increasing sequence numbers per logical
// key (a slot key, or an operation name). A response is applied only if its
// sequence is still the latest issued for that key.
type Sequencer struct {
	mu     sync.Mutex
	latest map[string]uint64
	next   uint64
}

func NewSequencer() *Sequencer {
	return &Sequencer{latest: make(map[string]uint64)}
}

// Issue records and returns a new sequence number for key.
func (s *Sequencer) Issue(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.latest[key] = s.next
	return s.next
}

// Check returns a *StaleRequestError if seq is not the latest for key.
func (s *Sequencer) Check(key string, seq uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if latest := s.latest[key]; latest != seq {
		return &StaleRequestError{Key: key, Seq: seq, Latest: latest}
	}
	return nil
}

// Done forgets key once its latest request has been applied.
func (s *Sequencer) Done(key string, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest[key] == seq {
		delete(s.latest, key)
	}
}
