// Package vat implements the core ledger: per-collateral risk state,
// user positions, collateral and dai balances, and the invariant checks
// that guard every position mutation.
package vat

import (
	"errors"
	"fmt"

	"github.com/makerlab/cdp-engine/internal/fix"
)

// Invariant violations. These abort a single operation and are expected,
// recoverable conditions during a simulation.
var (
	// ErrCeilingExceeded is returned when a debt increase would break the
	// per-ilk or global debt ceiling.
	ErrCeilingExceeded = errors.New("vat: ceiling exceeded")

	// ErrNotSafe is returned when a position would end up
	// undercollateralized after increasing debt or removing collateral.
	ErrNotSafe = errors.New("vat: not safe")

	// ErrDust is returned when a position would end up nonzero but below
	// the ilk's minimum debt.
	ErrDust = errors.New("vat: dust")

	// ErrInsufficientGem is returned when a collateral transfer would
	// overdraw the source balance.
	ErrInsufficientGem = errors.New("vat: insufficient gem")
)

// Consistency errors. Referencing state that does not exist indicates a
// caller bug, not a recoverable simulation condition.
var (
	ErrUnknownIlk     = errors.New("vat: unknown ilk")
	ErrUnknownUrn     = errors.New("vat: unknown urn")
	ErrUnknownAddress = errors.New("vat: unknown address")
)

// Ilk holds the risk state of one collateral type.
type Ilk struct {
	Rate fix.Ray `json:"rate"` // debt scaling accumulator
	Spot fix.Ray `json:"spot"` // max dai per unit collateral
	Line fix.Rad `json:"line"` // per-ilk debt ceiling
	Dust fix.Rad `json:"dust"` // minimum position debt
	Art  fix.Wad `json:"art"`  // total normalized debt
}

// Urn is a single address's position in one ilk. Zeroed positions
// persist as zero-valued records; urns are never deleted.
type Urn struct {
	Ink fix.Wad `json:"ink"` // locked collateral
	Art fix.Wad `json:"art"` // normalized debt
}

// Vat is the global ledger.
type Vat struct {
	Ilks map[string]*Ilk            `json:"ilks"`
	Urns map[string]map[string]*Urn `json:"urns"` // ilk -> address -> urn
	Gem  map[string]map[string]fix.Wad `json:"gem"` // ilk -> address -> unlocked collateral
	Dai  map[string]fix.Rad         `json:"dai"`  // address -> dai balance
	Sin  map[string]fix.Rad         `json:"sin"`  // address -> seized (unbacked) debt
	Debt fix.Rad                    `json:"debt"` // total dai issued
	Vice fix.Rad                    `json:"vice"` // total unbacked dai
	Line fix.Rad                    `json:"line"` // global debt ceiling
}

// New creates an empty ledger with the given global debt ceiling.
func New(line fix.Rad) *Vat {
	return &Vat{
		Ilks: make(map[string]*Ilk),
		Urns: make(map[string]map[string]*Urn),
		Gem:  make(map[string]map[string]fix.Wad),
		Dai:  make(map[string]fix.Rad),
		Sin:  make(map[string]fix.Rad),
		Line: line,
	}
}

// Init registers a collateral type. The rate, line and dust fields are
// fixed at setup; spot is written by the price oracle adapter.
func (v *Vat) Init(ilkID string, rate fix.Ray, line, dust fix.Rad) {
	v.Ilks[ilkID] = &Ilk{Rate: rate, Line: line, Dust: dust}
	v.Urns[ilkID] = make(map[string]*Urn)
	v.Gem[ilkID] = make(map[string]fix.Wad)
}

// InitDai creates a dai balance record for addr if it has none. System
// addresses (liquidator, auction escrows, the vow) get their records at
// setup so transfers between them never hit ErrUnknownAddress.
func (v *Vat) InitDai(addr string) {
	if _, ok := v.Dai[addr]; !ok {
		v.Dai[addr] = fix.Rad{}
	}
}

// SetSpot writes the safety price for an ilk. Called by the oracle
// adapter once per timestep.
func (v *Vat) SetSpot(ilkID string, spot fix.Ray) error {
	ilk, ok := v.Ilks[ilkID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownIlk, ilkID)
	}
	ilk.Spot = spot
	return nil
}

// Slip adds wad (possibly negative) to addr's unlocked collateral,
// creating the balance at zero if absent. No invariant checks; this is
// the join-layer deposit/withdrawal primitive.
func (v *Vat) Slip(ilkID, addr string, wad fix.Wad) error {
	gems, ok := v.Gem[ilkID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownIlk, ilkID)
	}
	gems[addr] = gems[addr].Add(wad)
	return nil
}

// Flux moves unlocked collateral between addresses. Fails rather than
// overdraw src: transfers never create value.
func (v *Vat) Flux(ilkID, src, dst string, wad fix.Wad) error {
	gems, ok := v.Gem[ilkID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownIlk, ilkID)
	}
	if gems[src].LessThan(wad) {
		return fmt.Errorf("%w: %s has %s, moving %s", ErrInsufficientGem, src, gems[src], wad)
	}
	gems[src] = gems[src].Sub(wad)
	gems[dst] = gems[dst].Add(wad)
	return nil
}

// Move transfers dai between two existing balances.
func (v *Vat) Move(src, dst string, rad fix.Rad) error {
	if _, ok := v.Dai[src]; !ok {
		return fmt.Errorf("%w: dai src %s", ErrUnknownAddress, src)
	}
	if _, ok := v.Dai[dst]; !ok {
		return fmt.Errorf("%w: dai dst %s", ErrUnknownAddress, dst)
	}
	v.Dai[src] = v.Dai[src].Sub(rad)
	v.Dai[dst] = v.Dai[dst].Add(rad)
	return nil
}

// Frob is the central position mutation: apply dink to the urn's
// collateral and dart to its normalized debt. All four invariants are
// checked against the proposed post-state; the mutation commits only if
// every check passes, otherwise the ledger is untouched.
func (v *Vat) Frob(ilkID, addr string, dink, dart fix.Wad) error {
	ilk, ok := v.Ilks[ilkID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownIlk, ilkID)
	}

	urn := Urn{}
	if u, ok := v.Urns[ilkID][addr]; ok {
		urn = *u
	}

	urn.Ink = urn.Ink.Add(dink)
	urn.Art = urn.Art.Add(dart)
	newIlkArt := ilk.Art.Add(dart)

	dtab := fix.MulWR(dart, ilk.Rate)
	tab := fix.MulWR(urn.Art, ilk.Rate)
	newDebt := v.Debt.Add(dtab)

	if dart.IsPositive() {
		if fix.MulWR(newIlkArt, ilk.Rate).GreaterThan(ilk.Line) || newDebt.GreaterThan(v.Line) {
			return fmt.Errorf("%w: ilk %s", ErrCeilingExceeded, ilkID)
		}
	}
	if dart.IsPositive() || dink.IsNegative() {
		if tab.GreaterThan(fix.MulWR(urn.Ink, ilk.Spot)) {
			return fmt.Errorf("%w: %s/%s tab %s", ErrNotSafe, ilkID, addr, tab)
		}
	}
	if !urn.Art.IsZero() && tab.LessThan(ilk.Dust) {
		return fmt.Errorf("%w: %s/%s tab %s below %s", ErrDust, ilkID, addr, tab, ilk.Dust)
	}

	v.Debt = newDebt
	v.Gem[ilkID][addr] = v.Gem[ilkID][addr].Sub(dink)
	v.Dai[addr] = v.Dai[addr].Add(dtab)
	v.Urns[ilkID][addr] = &urn
	ilk.Art = newIlkArt
	return nil
}

// Grab is the liquidation variant of Frob: it applies the same deltas
// but skips the invariant checks (the position is unsafe by
// construction), debits the seized collateral to the liquidator `who`,
// and books the removed debt against the vow's sin balance.
func (v *Vat) Grab(ilkID, addr, who, vowAddr string, dink, dart fix.Wad) error {
	ilk, ok := v.Ilks[ilkID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownIlk, ilkID)
	}
	urn, ok := v.Urns[ilkID][addr]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrUnknownUrn, ilkID, addr)
	}

	urn.Ink = urn.Ink.Add(dink)
	urn.Art = urn.Art.Add(dart)
	ilk.Art = ilk.Art.Add(dart)

	dtab := fix.MulWR(dart, ilk.Rate)

	v.Gem[ilkID][who] = v.Gem[ilkID][who].Sub(dink)
	v.Sin[vowAddr] = v.Sin[vowAddr].Sub(dtab)
	v.Vice = v.Vice.Sub(dtab)
	return nil
}

// Heal cancels rad of the given address's dai against its sin,
// shrinking both total debt and total unbacked debt.
func (v *Vat) Heal(addr string, rad fix.Rad) error {
	if v.Dai[addr].LessThan(rad) || v.Sin[addr].LessThan(rad) {
		return fmt.Errorf("vat: heal %s exceeds balances of %s", rad, addr)
	}
	v.Dai[addr] = v.Dai[addr].Sub(rad)
	v.Sin[addr] = v.Sin[addr].Sub(rad)
	v.Vice = v.Vice.Sub(rad)
	v.Debt = v.Debt.Sub(rad)
	return nil
}

// Suck mints rad of unbacked dai to dst, booked against src's sin.
// Used by debt auctions to pay out proceeds.
func (v *Vat) Suck(src, dst string, rad fix.Rad) {
	v.Sin[src] = v.Sin[src].Add(rad)
	v.Dai[dst] = v.Dai[dst].Add(rad)
	v.Vice = v.Vice.Add(rad)
	v.Debt = v.Debt.Add(rad)
}

// Clone deep-copies the ledger. Stages mutate a clone and hand it back
// as a patch; the previous snapshot stays untouched.
func (v *Vat) Clone() *Vat {
	c := &Vat{
		Ilks: make(map[string]*Ilk, len(v.Ilks)),
		Urns: make(map[string]map[string]*Urn, len(v.Urns)),
		Gem:  make(map[string]map[string]fix.Wad, len(v.Gem)),
		Dai:  make(map[string]fix.Rad, len(v.Dai)),
		Sin:  make(map[string]fix.Rad, len(v.Sin)),
		Debt: v.Debt,
		Vice: v.Vice,
		Line: v.Line,
	}
	for id, ilk := range v.Ilks {
		cp := *ilk
		c.Ilks[id] = &cp
	}
	for id, urns := range v.Urns {
		m := make(map[string]*Urn, len(urns))
		for addr, u := range urns {
			cp := *u
			m[addr] = &cp
		}
		c.Urns[id] = m
	}
	for id, gems := range v.Gem {
		m := make(map[string]fix.Wad, len(gems))
		for addr, g := range gems {
			m[addr] = g
		}
		c.Gem[id] = m
	}
	for addr, d := range v.Dai {
		c.Dai[addr] = d
	}
	for addr, s := range v.Sin {
		c.Sin[addr] = s
	}
	return c
}
