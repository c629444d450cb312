// Package sim sequences the per-timestep simulation: oracle update,
// stochastic vault creation, liquidation scan, bidding round and
// settlement scan. Every stage receives an immutable state snapshot and
// returns a patch of the components it changed; the runner owns merging
// patches into the next snapshot.
package sim

import (
	"github.com/makerlab/cdp-engine/internal/auction"
	"github.com/makerlab/cdp-engine/internal/cat"
	"github.com/makerlab/cdp-engine/internal/fix"
	"github.com/makerlab/cdp-engine/internal/keeper"
	"github.com/makerlab/cdp-engine/internal/params"
	"github.com/makerlab/cdp-engine/internal/spot"
	"github.com/makerlab/cdp-engine/internal/vat"
	"github.com/makerlab/cdp-engine/internal/vow"
)

// IlkEth is the single real collateral ilk of the simulation.
const IlkEth = "eth"

// GemGov is the system gem sold in surplus auctions and minted in debt
// auctions.
const GemGov = "mkr"

// Stats are the per-timestep activity counters, reset at every tick.
type Stats struct {
	Bites        int `json:"num_bites"`
	Bids         int `json:"num_bids"`
	Deals        int `json:"num_deals"`
	VaultsOpened int `json:"num_vaults_opened"`
}

// State is one immutable snapshot of the full simulation. Stages read
// it and return patches; nothing mutates a snapshot in place.
type State struct {
	Timestep int                     `json:"timestep"`
	Vat      *vat.Vat                `json:"vat"`
	Spotter  *spot.Spotter           `json:"spotter"`
	Cat      *cat.Cat                `json:"cat"`
	Vow      *vow.Vow                `json:"vow"`
	Flip     *auction.Flipper        `json:"flip"`
	Flap     *auction.Flapper        `json:"flap"`
	Flop     *auction.Flopper        `json:"flop"`
	Keepers  map[string]keeper.Model `json:"keepers"`
	VaultSeq int                     `json:"vault_seq"` // next vault address index
	Stats    Stats                   `json:"stats"`
}

// Patch carries the components a stage rebuilt. Nil fields mean
// "unchanged"; the runner folds non-nil fields into the next snapshot.
type Patch struct {
	Vat      *vat.Vat
	Spotter  *spot.Spotter
	Cat      *cat.Cat
	Vow      *vow.Vow
	Flip     *auction.Flipper
	Flap     *auction.Flapper
	Flop     *auction.Flopper
	Keepers  map[string]keeper.Model
	VaultSeq *int
	Stats    *Stats
}

// NewState builds the configured, empty initial snapshot: ilks
// registered, system dai accounts opened, no vaults yet.
func NewState(p *params.Params) *State {
	v := vat.New(p.VatLine)
	v.Init(IlkEth, p.EthRate, p.EthLine, p.EthDust)
	v.Init(GemGov, fix.RayFromInt(1), fix.Rad{}, fix.Rad{})

	sp := spot.New(p.SpotterPar)
	sp.Init(IlkEth, p.EthMat, p.EthPip)
	sp.Init(spot.IlkDai, fix.RayFromInt(1), p.DaiPip)
	sp.Init(spot.IlkGas, fix.RayFromInt(1), p.GasPip)

	c := cat.New(p.CatBox, vow.Addr)
	c.Init(IlkEth, p.EthChop, p.EthDunk)

	flip := auction.NewFlipper(IlkEth, p.FlipBeg, p.FlipTTL, p.FlipTau)
	flap := auction.NewFlapper(GemGov, p.FlapBeg, p.FlapTTL, p.FlapTau)
	flop := auction.NewFlopper(GemGov, p.FlopBeg, p.FlopPad, p.FlopTTL, p.FlopTau)

	for _, addr := range []string{cat.Addr, vow.Addr, flip.Escrow(), flap.Escrow()} {
		v.InitDai(addr)
	}

	return &State{
		Vat:     v,
		Spotter: sp,
		Cat:     c,
		Vow:     vow.New(p.VowDump, p.VowSump, p.VowBump, p.VowHump),
		Flip:    flip,
		Flap:    flap,
		Flop:    flop,
		Keepers: make(map[string]keeper.Model),
	}
}

// Apply folds a patch into a new snapshot. Untouched components are
// shared between snapshots; they are never mutated in place.
func (s *State) Apply(p Patch) *State {
	next := *s
	if p.Vat != nil {
		next.Vat = p.Vat
	}
	if p.Spotter != nil {
		next.Spotter = p.Spotter
	}
	if p.Cat != nil {
		next.Cat = p.Cat
	}
	if p.Vow != nil {
		next.Vow = p.Vow
	}
	if p.Flip != nil {
		next.Flip = p.Flip
	}
	if p.Flap != nil {
		next.Flap = p.Flap
	}
	if p.Flop != nil {
		next.Flop = p.Flop
	}
	if p.Keepers != nil {
		next.Keepers = p.Keepers
	}
	if p.VaultSeq != nil {
		next.VaultSeq = *p.VaultSeq
	}
	if p.Stats != nil {
		next.Stats = *p.Stats
	}
	return &next
}

// OpenAuctions counts the open auctions across all three houses.
func (s *State) OpenAuctions() int {
	return len(s.Flip.Bids) + len(s.Flap.Bids) + len(s.Flop.Bids)
}

// Clone deep-copies the snapshot.
func (s *State) Clone() *State {
	keepers := make(map[string]keeper.Model, len(s.Keepers))
	for id, m := range s.Keepers {
		cp := m
		if m.GasCeiling != nil {
			g := *m.GasCeiling
			cp.GasCeiling = &g
		}
		keepers[id] = cp
	}
	return &State{
		Timestep: s.Timestep,
		Vat:      s.Vat.Clone(),
		Spotter:  s.Spotter.Clone(),
		Cat:      s.Cat.Clone(),
		Vow:      s.Vow.Clone(),
		Flip:     s.Flip.Clone(),
		Flap:     s.Flap.Clone(),
		Flop:     s.Flop.Clone(),
		Keepers:  keepers,
		VaultSeq: s.VaultSeq,
		Stats:    s.Stats,
	}
}
