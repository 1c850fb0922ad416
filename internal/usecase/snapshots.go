package usecase

import (
	"sort"
	"sync"

	"TradePilot/internal/domain/models"
)

// SnapshotStore holds the latest signal snapshot per instrument. A single
// writer (the trading cycle) publishes; readers get copies stamped with a
// monotonically increasing version, so a dashboard can detect staleness.
type SnapshotStore struct {
	mu      sync.RWMutex
	latest  map[string]models.SignalSnapshot
	version uint64
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{latest: make(map[string]models.SignalSnapshot)}
}

// Publish replaces the instrument's snapshot and assigns the next version.
func (s *SnapshotStore) Publish(snap models.SignalSnapshot) models.SignalSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version++
	snap.Version = s.version
	s.latest[snap.Instrument] = snap
	return snap
}

// Get returns the latest snapshot for one instrument.
func (s *SnapshotStore) Get(instrument string) (models.SignalSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.latest[instrument]
	return snap, ok
}

// All returns every instrument's latest snapshot, ordered by instrument.
func (s *SnapshotStore) All() []models.SignalSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.SignalSnapshot, 0, len(s.latest))
	for _, snap := range s.latest {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instrument < out[j].Instrument })
	return out
}
