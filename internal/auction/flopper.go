package auction

import (
	"errors"
	"fmt"
	"sort"

	"github.com/makerlab/cdp-engine/internal/fix"
	"github.com/makerlab/cdp-engine/internal/vat"
)

// ErrNotExpired is returned when restarting a debt auction whose hard
// deadline has not passed, or one that already drew a bid.
var ErrNotExpired = errors.New("auction: not expired")

// FlopBid is the state of one debt auction: a shrinking gem lot sold
// for a fixed dai bid.
type FlopBid struct {
	Bid fix.Rad `json:"bid"` // fixed dai raised
	Lot fix.Wad `json:"lot"` // gem minted to the winner
	Guy string  `json:"guy"`
	Tic int     `json:"tic"`
	End int     `json:"end"`
}

// Flopper runs debt auctions: the dent-only specialization of the
// two-phase machine. Settlement mints the final gem lot to the winner.
type Flopper struct {
	GemID string           `json:"gem"`
	Beg   fix.Ray          `json:"beg"`
	Pad   fix.Ray          `json:"pad"` // lot widening on restart
	TTL   int              `json:"ttl"`
	Tau   int              `json:"tau"`
	Kicks int              `json:"kicks"`
	Bids  map[int]*FlopBid `json:"bids"`
}

// NewFlopper creates a debt auction house minting gemID.
func NewFlopper(gemID string, beg, pad fix.Ray, ttl, tau int) *Flopper {
	return &Flopper{
		GemID: gemID,
		Beg:   beg,
		Pad:   pad,
		TTL:   ttl,
		Tau:   tau,
		Bids:  make(map[int]*FlopBid),
	}
}

// Kick opens a debt auction seeking bid dai for at most lot gem.
func (f *Flopper) Kick(gal string, lot fix.Wad, bid fix.Rad, now int) int {
	f.Kicks++
	id := f.Kicks
	f.Bids[id] = &FlopBid{
		Bid: bid,
		Lot: lot,
		Guy: gal,
		End: now + f.Tau,
	}
	return id
}

// Dent accepts a smaller gem lot for the fixed dai bid. The first
// bidder pays the kicker in full; later bidders refund the incumbent.
func (f *Flopper) Dent(v *vat.Vat, id int, guy string, lot fix.Wad, bid fix.Rad, now int) error {
	b, ok := f.Bids[id]
	if !ok {
		return fmt.Errorf("%w: flop %d", ErrUnknownBid, id)
	}
	if b.Tic != 0 && b.Tic <= now {
		return ErrFinishedTic
	}
	if b.End <= now {
		return ErrFinishedEnd
	}
	if !bid.Equal(b.Bid) {
		return ErrBidNotMatching
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

	b.Lot = lot
	b.Tic = now + f.TTL
	return nil
}

// Tick restarts an expired auction that never drew a bid, widening the
// lot by pad so the next round clears at a worse price for the system.
func (f *Flopper) Tick(id, now int) error {
	b, ok := f.Bids[id]
	if !ok {
		return fmt.Errorf("%w: flop %d", ErrUnknownBid, id)
	}
	if b.End > now || b.Tic != 0 {
		return ErrNotExpired
	}
	b.Lot = b.Lot.MulRay(f.Pad)
	b.End = now + f.Tau
	return nil
}

// Deal settles a finished debt auction, minting the final lot to the
// standing bidder. Only auctions that drew a bid settle; unbid ones are
// restarted via Tick instead.
func (f *Flopper) Deal(v *vat.Vat, id, now int) error {
	b, ok := f.Bids[id]
	if !ok {
		return fmt.Errorf("%w: flop %d", ErrUnknownBid, id)
	}
	if b.Tic == 0 || !(b.Tic <= now || b.End <= now) {
		return ErrNotFinished
	}

	if err := v.Slip(f.GemID, b.Guy, b.Lot); err != nil {
		return err
	}
	delete(f.Bids, id)
	return nil
}

// OpenIDs returns the open auction ids in ascending order.
func (f *Flopper) OpenIDs() []int {
	ids := make([]int, 0, len(f.Bids))
	for id := range f.Bids {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Clone deep-copies the flopper.
func (f *Flopper) Clone() *Flopper {
	c := &Flopper{
		GemID: f.GemID,
		Beg:   f.Beg,
		Pad:   f.Pad,
		TTL:   f.TTL,
		Tau:   f.Tau,
		Kicks: f.Kicks,
		Bids:  make(map[int]*FlopBid, len(f.Bids)),
	}
	for id, b := range f.Bids {
		cp := *b
		c.Bids[id] = &cp
	}
	return c
}
