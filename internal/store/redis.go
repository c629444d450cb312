package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis
// read-through cache. Writes go to the primary store and invalidate
// the cache; reads check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateRun(ctx context.Context, run *Run) error {
	if err := s.primary.CreateRun(ctx, run); err != nil {
		return err
	}
	s.cacheRun(ctx, run)
	return nil
}

func (s *CachedStore) UpdateRunStatus(ctx context.Context, id string, status RunStatus, msg string) error {
	if err := s.primary.UpdateRunStatus(ctx, id, status, msg); err != nil {
		return err
	}
	// Invalidate; next read will re-populate.
	s.rdb.Del(ctx, runKey(id))
	return nil
}

func (s *CachedStore) InsertTimestep(ctx context.Context, rec *TimestepRecord) error {
	if err := s.primary.InsertTimestep(ctx, rec); err != nil {
		return err
	}
	s.rdb.Del(ctx, historyKey(rec.RunID))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetRun(ctx context.Context, id string) (*Run, error) {
	data, err := s.rdb.Get(ctx, runKey(id)).Bytes()
	if err == nil {
		var run Run
		if json.Unmarshal(data, &run) == nil {
			return &run, nil
		}
	}

	run, err := s.primary.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheRun(ctx, run)
	return run, nil
}

func (s *CachedStore) GetRunHistory(ctx context.Context, runID string) ([]TimestepRecord, error) {
	data, err := s.rdb.Get(ctx, historyKey(runID)).Bytes()
	if err == nil {
		var recs []TimestepRecord
		if json.Unmarshal(data, &recs) == nil {
			return recs, nil
		}
	}

	recs, err := s.primary.GetRunHistory(ctx, runID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(recs); err == nil {
		s.rdb.Set(ctx, historyKey(runID), data, s.ttl)
	}
	return recs, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListRuns(ctx context.Context) ([]Run, error) {
	return s.primary.ListRuns(ctx)
}

// --- Cache helpers ---

func (s *CachedStore) cacheRun(ctx context.Context, run *Run) {
	if data, err := json.Marshal(run); err == nil {
		s.rdb.Set(ctx, runKey(run.ID), data, s.ttl)
	}
}

func runKey(id string) string     { return fmt.Sprintf("run:%s", id) }
func historyKey(id string) string { return fmt.Sprintf("run:%s:history", id) }
