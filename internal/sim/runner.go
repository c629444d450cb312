package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/makerlab/cdp-engine/internal/params"
	"github.com/makerlab/cdp-engine/internal/spot"
)

// Stage is one step of the per-timestep pipeline.
type Stage struct {
	Name string
	Run  func(p *params.Params, s *State) (Patch, error)
}

// Observer is called with each committed snapshot, the initial one
// included. Snapshots are immutable; observers may retain them.
type Observer func(s *State)

// Runner drives the simulation. All randomness flows through a single
// seeded source, so the same parameters always produce the same run.
type Runner struct {
	params *params.Params
	oracle spot.Oracle
	rng    *rand.Rand
	log    *slog.Logger
	stages []Stage
}

// New validates the parameters and builds a runner over the given
// price oracle.
func New(p *params.Params, orc spot.Oracle, log *slog.Logger) (*Runner, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	r := &Runner{
		params: p,
		oracle: orc,
		rng:    rand.New(rand.NewSource(p.Seed)),
		log:    log,
	}
	r.stages = []Stage{
		{Name: "tick", Run: r.tick},
		{Name: "open_vaults", Run: r.openVaults},
		{Name: "bite_scan", Run: r.biteScan},
		{Name: "bid_round", Run: r.bidRound},
		{Name: "deal_scan", Run: r.dealScan},
		{Name: "vow_upkeep", Run: r.vowUpkeep},
	}
	return r, nil
}

// Init builds the timestep-zero snapshot: configured components plus
// the seeded vault and keeper population.
func (r *Runner) Init() (*State, error) {
	s := NewState(r.params)
	patch, err := r.seedVaults(r.params, s)
	if err != nil {
		return nil, fmt.Errorf("sim: init: %w", err)
	}
	return s.Apply(patch), nil
}

// Step advances one timestep, running every stage in order and
// merging each patch before the next stage sees the state.
func (r *Runner) Step(s *State) (*State, error) {
	next := s.Apply(Patch{})
	next.Timestep = s.Timestep + 1
	for _, st := range r.stages {
		patch, err := st.Run(r.params, next)
		if err != nil {
			return nil, fmt.Errorf("sim: timestep %d, stage %s: %w", next.Timestep, st.Name, err)
		}
		next = next.Apply(patch)
	}
	return next, nil
}

// Run executes the full simulation, invoking obs after every committed
// timestep. Returns the final snapshot.
func (r *Runner) Run(ctx context.Context, obs Observer) (*State, error) {
	s, err := r.Init()
	if err != nil {
		return nil, err
	}
	if obs != nil {
		obs(s)
	}
	for s.Timestep < r.params.Timesteps {
		if err := ctx.Err(); err != nil {
			return s, err
		}
		s, err = r.Step(s)
		if err != nil {
			return nil, err
		}
		if obs != nil {
			obs(s)
		}
		r.log.Debug("timestep complete",
			"timestep", s.Timestep,
			"debt", s.Vat.Debt,
			"litter", s.Cat.Litter,
			"open_auctions", s.OpenAuctions(),
			"bites", s.Stats.Bites,
			"bids", s.Stats.Bids,
		)
	}
	return s, nil
}
