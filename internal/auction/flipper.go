// Package auction implements the collateral, surplus and debt auction
// state machines. The Flipper is the two-phase collateral auction: a
// tend phase raising the dai bid at fixed lot, then a dent phase
// lowering the lot at the saturated bid. The Flapper and Flopper are its
// single-phase specializations for surplus and unbacked debt.
package auction

import (
	"errors"
	"fmt"
	"sort"

	"github.com/makerlab/cdp-engine/internal/fix"
	"github.com/makerlab/cdp-engine/internal/vat"
)

var (
	// ErrFinishedTic is returned when the soft (per-bid) deadline passed.
	ErrFinishedTic = errors.New("auction: soft deadline passed")

	// ErrFinishedEnd is returned when the hard deadline passed.
	ErrFinishedEnd = errors.New("auction: hard deadline passed")

	// ErrLotNotMatching is returned by tend when the lot is not the
	// auction's current lot (the lot is frozen during tend).
	ErrLotNotMatching = errors.New("auction: lot not matching")

	// ErrHigherThanTab is returned when a tend bid exceeds the target.
	ErrHigherThanTab = errors.New("auction: bid higher than tab")

	// ErrBidNotHigher is returned when a tend bid does not beat the
	// standing bid.
	ErrBidNotHigher = errors.New("auction: bid not higher")

	// ErrInsufficientIncrease is returned when a tend bid clears the
	// standing bid but not the minimum increment.
	ErrInsufficientIncrease = errors.New("auction: insufficient increase")

	// ErrBidNotMatching is returned by dent when the dai amount differs
	// from the standing bid.
	ErrBidNotMatching = errors.New("auction: bid not matching")

	// ErrTendNotFinished is returned by dent before the bid has reached
	// the tab.
	ErrTendNotFinished = errors.New("auction: tend not finished")

	// ErrLotNotLower is returned when a dent bid does not shrink the lot.
	ErrLotNotLower = errors.New("auction: lot not lower")

	// ErrInsufficientDecrease is returned when a dent bid shrinks the lot
	// by less than the minimum decrement.
	ErrInsufficientDecrease = errors.New("auction: insufficient decrease")

	// ErrNotFinished is returned by deal while both deadlines are open.
	ErrNotFinished = errors.New("auction: not finished")

	// ErrUnknownBid indicates a nonexistent auction id: a caller bug.
	ErrUnknownBid = errors.New("auction: unknown bid id")
)

// Clawer releases liquidation capacity when a collateral auction
// settles. Satisfied by the liquidation engine.
type Clawer interface {
	Claw(rad fix.Rad)
}

// Bid is the state of one open auction.
type Bid struct {
	Bid fix.Rad `json:"bid"` // standing dai bid
	Lot fix.Wad `json:"lot"` // collateral on offer
	Guy string  `json:"guy"` // standing bidder
	Tic int     `json:"tic"` // soft deadline; 0 means never bid on
	End int     `json:"end"` // hard deadline
	Usr string  `json:"usr"` // original position owner (dent rebates)
	Gal string  `json:"gal"` // beneficiary of bid proceeds
	Tab fix.Rad `json:"tab"` // target debt to raise
}

// TendPhase reports whether the auction is still in the tend phase.
// The transition to dent is implicit the instant bid == tab.
func (b *Bid) TendPhase() bool { return b.Bid.LessThan(b.Tab) }

// Flipper runs two-phase collateral auctions for one ilk.
type Flipper struct {
	IlkID  string          `json:"ilk"`
	Beg    fix.Ray         `json:"beg"` // minimum bid-increment ratio
	TTL    int             `json:"ttl"` // soft timeout per bid
	Tau    int             `json:"tau"` // hard auction lifetime
	Kicks  int             `json:"kicks"`
	Bids   map[int]*Bid    `json:"bids"`
	escrow string
}

// NewFlipper creates a flipper for one collateral type.
func NewFlipper(ilkID string, beg fix.Ray, ttl, tau int) *Flipper {
	return &Flipper{
		IlkID:  ilkID,
		Beg:    beg,
		TTL:    ttl,
		Tau:    tau,
		Bids:   make(map[int]*Bid),
		escrow: "flipper_" + ilkID,
	}
}

// Escrow returns the address holding auctioned collateral.
func (f *Flipper) Escrow() string { return f.escrow }

// Kick opens a new auction: the seized lot moves from guy's collateral
// balance into escrow, and guy stands as the zero bidder. The hard
// deadline is now + tau.
func (f *Flipper) Kick(v *vat.Vat, usr, gal, guy string, tab fix.Rad, lot fix.Wad, bid fix.Rad, now int) (int, error) {
	if err := v.Flux(f.IlkID, guy, f.escrow, lot); err != nil {
		return 0, err
	}
	f.Kicks++
	id := f.Kicks
	f.Bids[id] = &Bid{
		Bid: bid,
		Lot: lot,
		Guy: guy,
		End: now + f.Tau,
		Usr: usr,
		Gal: gal,
		Tab: tab,
	}
	return id, nil
}

// SufficientTend reports whether a tend of `bid` clears the minimum
// increment on auction b. Against a standing bid the raise must be at
// least beg times that bid, waived only when hitting the tab exactly.
// The first bid has no standing bid to raise from; its baseline is the
// tab itself: bid*beg must reach the tab. Below tab/beg there is no
// sufficient first increase.
func (f *Flipper) SufficientTend(b *Bid, bid fix.Rad) bool {
	if b.Bid.IsZero() {
		return bid.MulRay(f.Beg).GreaterThanOrEqual(b.Tab)
	}
	return bid.GreaterThanOrEqual(b.Bid.MulRay(f.Beg)) || bid.Equal(b.Tab)
}

// SufficientDent reports whether lowering the lot to `lot` clears the
// minimum decrement on auction b.
func (f *Flipper) SufficientDent(b *Bid, lot fix.Wad) bool {
	return lot.LessThan(b.Lot) && !lot.MulRay(f.Beg).GreaterThan(b.Lot)
}

func checkDeadlines(b *Bid, now int) error {
	if b.Tic != 0 && b.Tic <= now {
		return ErrFinishedTic
	}
	if b.End <= now {
		return ErrFinishedEnd
	}
	return nil
}

// Tend raises the dai bid at fixed lot. A displaced incumbent is
// refunded in full before the increment moves to the beneficiary.
func (f *Flipper) Tend(v *vat.Vat, id int, guy string, lot fix.Wad, bid fix.Rad, now int) error {
	b, ok := f.Bids[id]
	if !ok {
		return fmt.Errorf("%w: flip %d", ErrUnknownBid, id)
	}
	if err := checkDeadlines(b, now); err != nil {
		return err
	}
	if !lot.Equal(b.Lot) {
		return ErrLotNotMatching
	}
	if bid.GreaterThan(b.Tab) {
		return ErrHigherThanTab
	}
	if !bid.GreaterThan(b.Bid) {
		return ErrBidNotHigher
	}
	if !f.SufficientTend(b, bid) {
		return ErrInsufficientIncrease
	}

	if guy != b.Guy {
		if err := v.Move(guy, b.Guy, b.Bid); err != nil {
			return err
		}
		b.Guy = guy
	}
	if err := v.Move(guy, b.Gal, bid.Sub(b.Bid)); err != nil {
		return err
	}

	b.Bid = bid
	b.Tic = now + f.TTL
	return nil
}

// Dent lowers the lot at the saturated bid. The freed collateral goes
// back to the original urn owner as the liquidation-penalty rebate.
func (f *Flipper) Dent(v *vat.Vat, id int, guy string, lot fix.Wad, bid fix.Rad, now int) error {
	b, ok := f.Bids[id]
	if !ok {
		return fmt.Errorf("%w: flip %d", ErrUnknownBid, id)
	}
	if err := checkDeadlines(b, now); err != nil {
		return err
	}
	if !bid.Equal(b.Bid) {
		return ErrBidNotMatching
	}
	if !bid.Equal(b.Tab) {
		return ErrTendNotFinished
	}
	if !lot.LessThan(b.Lot) {
		return ErrLotNotLower
	}
	if lot.MulRay(f.Beg).GreaterThan(b.Lot) {
		return ErrInsufficientDecrease
	}

	if guy != b.Guy {
		if err := v.Move(guy, b.Guy, b.Bid); err != nil {
			return err
		}
		b.Guy = guy
	}
	if err := v.Flux(f.IlkID, f.escrow, b.Usr, b.Lot.Sub(lot)); err != nil {
		return err
	}

	b.Lot = lot
	b.Tic = now + f.TTL
	return nil
}

// Deal settles an expired auction: the final lot leaves escrow for the
// standing bidder, the tab's liquidation capacity is released, and the
// record is deleted. An auction that was bid on settles once its soft
// deadline lapses; one that never drew a bid settles only at its hard
// deadline.
func (f *Flipper) Deal(v *vat.Vat, c Clawer, id, now int) error {
	b, ok := f.Bids[id]
	if !ok {
		return fmt.Errorf("%w: flip %d", ErrUnknownBid, id)
	}
	if !(b.End <= now || (b.Tic != 0 && b.Tic <= now)) {
		return ErrNotFinished
	}

	c.Claw(b.Tab)
	if err := v.Flux(f.IlkID, f.escrow, b.Guy, b.Lot); err != nil {
		return err
	}
	delete(f.Bids, id)
	return nil
}

// Dealable reports whether an auction can be dealt at the given
// timestep without mutating anything.
func (f *Flipper) Dealable(id, now int) bool {
	b, ok := f.Bids[id]
	if !ok {
		return false
	}
	return b.End <= now || (b.Tic != 0 && b.Tic <= now)
}

// OpenIDs returns the open auction ids in ascending order.
func (f *Flipper) OpenIDs() []int {
	ids := make([]int, 0, len(f.Bids))
	for id := range f.Bids {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Clone deep-copies the flipper.
func (f *Flipper) Clone() *Flipper {
	c := &Flipper{
		IlkID:  f.IlkID,
		Beg:    f.Beg,
		TTL:    f.TTL,
		Tau:    f.Tau,
		Kicks:  f.Kicks,
		Bids:   make(map[int]*Bid, len(f.Bids)),
		escrow: f.escrow,
	}
	for id, b := range f.Bids {
		cp := *b
		c.Bids[id] = &cp
	}
	return c
}
