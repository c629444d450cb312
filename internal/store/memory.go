package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu      sync.RWMutex
	runs    map[string]*Run
	history map[string][]TimestepRecord
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:    make(map[string]*Run),
		history: make(map[string][]TimestepRecord),
	}
}

func (s *MemoryStore) CreateRun(_ context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[run.ID]; ok {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	// Store a copy to avoid external mutation.
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateRunStatus(_ context.Context, id string, status RunStatus, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	run.Status = status
	if status == StatusFailed {
		run.Error = msg
	}
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	cp := *run
	return &cp, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]Run, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, *r)
	}
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.After(runs[j].CreatedAt)
		}
		return runs[i].ID < runs[j].ID
	})
	return runs, nil
}

func (s *MemoryStore) InsertTimestep(_ context.Context, rec *TimestepRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[rec.RunID] = append(s.history[rec.RunID], *rec)
	return nil
}

func (s *MemoryStore) GetRunHistory(_ context.Context, runID string) ([]TimestepRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.history[runID]
	out := make([]TimestepRecord, len(recs))
	copy(out, recs)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestep < out[j].Timestep })
	return out, nil
}
