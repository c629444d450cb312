// Package store defines the persistence interface for simulation runs
// and their per-timestep history. Implementations include PostgreSQL
// (source of truth), Redis (read-through cache), and in-memory (for
// testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/makerlab/cdp-engine/internal/fix"
)

// ErrNotFound is returned for a run id with no stored record.
var ErrNotFound = errors.New("store: not found")

// RunStatus is the lifecycle state of a simulation run.
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// Run is one simulation run.
type Run struct {
	ID        string    `json:"id"`
	Seed      int64     `json:"seed"`
	Timesteps int       `json:"timesteps"`
	Policy    string    `json:"policy"`
	Status    RunStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TimestepRecord is the solvency snapshot of one committed timestep.
type TimestepRecord struct {
	RunID        string  `json:"run_id"`
	Timestep     int     `json:"timestep"`
	Debt         fix.Rad `json:"debt"`
	Vice         fix.Rad `json:"vice"`
	Litter       fix.Rad `json:"litter"`
	EthPrice     fix.Wad `json:"eth_price"`
	DaiPrice     fix.Wad `json:"dai_price"`
	OpenAuctions int     `json:"open_auctions"`
	Bites        int     `json:"num_bites"`
	Bids         int     `json:"num_bids"`
	Deals        int     `json:"num_deals"`
	VaultsOpened int     `json:"num_vaults_opened"`
}

// Store is the persistence interface. PostgreSQL is the source of
// truth; Redis provides a read-through cache layer.
type Store interface {
	// CreateRun persists a new run record.
	CreateRun(ctx context.Context, run *Run) error

	// UpdateRunStatus moves a run through its lifecycle. The message is
	// stored for failed runs and ignored otherwise.
	UpdateRunStatus(ctx context.Context, id string, status RunStatus, msg string) error

	// GetRun retrieves a run by its id.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns all runs, newest first.
	ListRuns(ctx context.Context) ([]Run, error)

	// InsertTimestep appends one timestep snapshot to a run's history.
	InsertTimestep(ctx context.Context, rec *TimestepRecord) error

	// GetRunHistory returns a run's timesteps in order.
	GetRunHistory(ctx context.Context, runID string) ([]TimestepRecord, error)
}
