package optimizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"TradePilot/internal/domain/models"
)

// FetchCheckpoint is the persisted partial progress of a chunked history
// fetch. A crash mid-fetch resumes from the last saved chunk instead of
// restarting.
type FetchCheckpoint struct {
	Instrument string       `json:"instrument"`
	Requested  int          `json:"requested"`
	Chunks     int          `json:"chunks"`
	Bars       []models.Bar `json:"bars"`
	SavedAt    time.Time    `json:"saved_at"`
}

// SweepState is the persisted progress of a parameter sweep: the set of
// already-evaluated combinations plus the running best. The best is saved
// the moment it changes, never batched, so a partial sweep always leaves a
// usable answer.
type SweepState struct {
	Evaluated map[string]bool            `json:"evaluated"`
	Best      *models.OptimizationResult `json:"best,omitempty"`
	SavedAt   time.Time                  `json:"saved_at"`
}

// StateStore owns the on-disk optimizer state. Writes are atomic
// (temp file + fsync + rename) so an interrupt between chunks or
// evaluations never leaves a corrupt checkpoint.
type StateStore struct {
	mu  sync.Mutex
	dir string
}

func NewStateStore(dir string) (*StateStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("state dir: %w", err)
	}
	return &StateStore{dir: dir}, nil
}

func (s *StateStore) fetchPath(instrument string) string {
	return filepath.Join(s.dir, "fetch_"+instrument+".json")
}

func (s *StateStore) sweepPath() string {
	return filepath.Join(s.dir, "sweep.json")
}

// LoadFetch returns the saved fetch checkpoint, or ok=false when none
// exists or it cannot be decoded.
func (s *StateStore) LoadFetch(instrument string) (FetchCheckpoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cp FetchCheckpoint
	if !s.readJSON(s.fetchPath(instrument), &cp) {
		return FetchCheckpoint{}, false
	}
	return cp, cp.Instrument == instrument
}

func (s *StateStore) SaveFetch(cp FetchCheckpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp.SavedAt = time.Now().UTC()
	return s.writeJSON(s.fetchPath(cp.Instrument), cp)
}

// ClearFetch removes the checkpoint once a fetch completes.
func (s *StateStore) ClearFetch(instrument string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = os.Remove(s.fetchPath(instrument))
}

func (s *StateStore) LoadSweep() SweepState {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st SweepState
	if !s.readJSON(s.sweepPath(), &st) || st.Evaluated == nil {
		st.Evaluated = make(map[string]bool)
	}
	return st
}

func (s *StateStore) SaveSweep(st SweepState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st.SavedAt = time.Now().UTC()
	return s.writeJSON(s.sweepPath(), st)
}

// ClearSweep discards sweep progress; used when the grid changes.
func (s *StateStore) ClearSweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = os.Remove(s.sweepPath())
}

func (s *StateStore) readJSON(path string, dest any) bool {
	b, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return json.Unmarshal(b, dest) == nil
}

func (s *StateStore) writeJSON(path string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	return writeFileAtomic(path, b, 0o644)
}

// writeFileAtomic writes data via a temp file in the same directory, syncs
// it, then renames over the destination.
func writeFileAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.Rename(tmpPath, path)
}
