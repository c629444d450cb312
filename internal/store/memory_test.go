package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/makerlab/cdp-engine/internal/fix"
)

func testRun(id string, created time.Time) *Run {
	return &Run{
		ID:        id,
		Seed:      7,
		Timesteps: 10,
		Policy:    "shuffled",
		Status:    StatusPending,
		CreatedAt: created,
	}
}

// --- Run lifecycle tests ---

func TestMemoryStore_RunLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()

	if err := s.CreateRun(ctx, testRun("r1", now)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateRun(ctx, testRun("r1", now)); err == nil {
		t.Fatal("duplicate run id accepted")
	}

	if err := s.UpdateRunStatus(ctx, "r1", StatusRunning, ""); err != nil {
		t.Fatalf("update: %v", err)
	}
	run, err := s.GetRun(ctx, "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if run.Status != StatusRunning || run.Error != "" {
		t.Errorf("run = %+v, want running with no error", run)
	}

	if err := s.UpdateRunStatus(ctx, "r1", StatusFailed, "oracle exhausted"); err != nil {
		t.Fatalf("update: %v", err)
	}
	run, err = s.GetRun(ctx, "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if run.Status != StatusFailed || run.Error != "oracle exhausted" {
		t.Errorf("run = %+v, want failed with message", run)
	}
}

func TestMemoryStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.GetRun(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("get: got %v, want ErrNotFound", err)
	}
	if err := s.UpdateRunStatus(ctx, "ghost", StatusRunning, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("update: got %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_GetRunCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.CreateRun(ctx, testRun("r1", time.Now())); err != nil {
		t.Fatalf("create: %v", err)
	}
	run, _ := s.GetRun(ctx, "r1")
	run.Status = StatusCompleted

	again, _ := s.GetRun(ctx, "r1")
	if again.Status != StatusPending {
		t.Error("mutating a returned run leaked into the store")
	}
}

func TestMemoryStore_ListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Now()
	for i, id := range []string{"old", "mid", "new"} {
		if err := s.CreateRun(ctx, testRun(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	runs, err := s.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("len = %d, want 3", len(runs))
	}
	for i, want := range []string{"new", "mid", "old"} {
		if runs[i].ID != want {
			t.Errorf("runs[%d] = %s, want %s", i, runs[i].ID, want)
		}
	}
}

// --- History tests ---

func TestMemoryStore_History(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for _, ts := range []int{0, 1, 2} {
		rec := &TimestepRecord{
			RunID:    "r1",
			Timestep: ts,
			Debt:     fix.RadFromInt(int64(1000 * (ts + 1))),
			EthPrice: fix.WadFromInt(150),
			DaiPrice: fix.WadFromInt(1),
		}
		if err := s.InsertTimestep(ctx, rec); err != nil {
			t.Fatalf("insert %d: %v", ts, err)
		}
	}

	recs, err := s.GetRunHistory(ctx, "r1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("len = %d, want 3", len(recs))
	}
	for i, rec := range recs {
		if rec.Timestep != i {
			t.Errorf("recs[%d].Timestep = %d", i, rec.Timestep)
		}
	}
	if !recs[2].Debt.Equal(fix.RadFromInt(3000)) {
		t.Errorf("final debt = %s, want 3000", recs[2].Debt)
	}

	empty, err := s.GetRunHistory(ctx, "ghost")
	if err != nil || len(empty) != 0 {
		t.Errorf("unknown run history = (%v, %v), want empty", empty, err)
	}
}
