package crdt

import (
	"bytes"
	"crypto/sha256"
	"sort"
)

// UpdateLog is a state-based grow-only update set. Each update is keyed by
// its SHA-256 digest, so replaying an update is a no-op and merge order never
// matters. It implements the minimal convergence contract the gateway needs;
// a richer engine can be swapped in behind the Engine interface.
type UpdateLog struct{}

func NewUpdateLog() *UpdateLog {
	return &UpdateLog{}
}

var _ Engine = (*UpdateLog)(nil)

func (e *UpdateLog) NewState() State {
	return &logState{updates: make(map[[sha256.Size]byte]Update)}
}

type logState struct {
	updates map[[sha256.Size]byte]Update
}

func (s *logState) Merge(u Update) bool {
	key := sha256.Sum256(u)
	if _, exists := s.updates[key]; exists {
		return false
	}
	// Copy so a caller reusing its buffer cannot mutate merged state.
	stored := make(Update, len(u))
	copy(stored, u)
	s.updates[key] = stored
	return true
}

func (s *logState) Snapshot() []Update {
	out := make([]Update, 0, len(s.updates))
	for _, u := range s.updates {
		out = append(out, u)
	}
	// Lexicographic content order is stable across processes; arrival order is not.
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i], out[j]) < 0
	})
	return out
}

func (s *logState) Len() int {
	return len(s.updates)
}
